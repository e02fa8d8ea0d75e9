package csv

import (
	"bufio"
	"io"
)

const utf8BOM = "\uFEFF"

// skipBOM returns src with a leading UTF-8 byte-order mark removed, so a
// BOM never ends up glued to the first header name or the first field.
func skipBOM(src io.Reader) io.Reader {
	br := bufio.NewReader(src)
	if b, err := br.Peek(len(utf8BOM)); err == nil && string(b) == utf8BOM {
		br.Discard(len(utf8BOM))
	}
	return br
}
