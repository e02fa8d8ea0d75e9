package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CSV writes delimiter-joined rows. With one partition the output is a
// single file at path. With more, path becomes a directory of part-%04d
// files in partition order; the header goes into part-0000 only, so
// concatenating the parts yields one well-formed file.
type CSV struct {
	path   string
	header []string
	delim  string
	parts  int
}

func NewCSV(path string, header []string, delim string, parts int) (*CSV, error) {
	if parts < 1 {
		return nil, fmt.Errorf("csv sink: parts must be >= 1, got %d", parts)
	}
	if parts > 1 {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("csv sink: %w", err)
		}
	}
	return &CSV{path: path, header: header, delim: delim, parts: parts}, nil
}

func (c *CSV) OpenPart(part int) (RowWriter, error) {
	if part < 0 || part >= c.parts {
		return nil, fmt.Errorf("csv sink: part %d out of range [0,%d)", part, c.parts)
	}
	name := c.path
	if c.parts > 1 {
		name = filepath.Join(c.path, fmt.Sprintf("part-%04d", part))
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("csv sink: %w", err)
	}
	w := &csvPartWriter{f: f, bw: bufio.NewWriter(f), delim: c.delim}
	if part == 0 && len(c.header) > 0 {
		if _, err := w.bw.WriteString(strings.Join(c.header, c.delim) + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("csv sink: write header: %w", err)
		}
	}
	return w, nil
}

func (c *CSV) Close() error { return nil }

type csvPartWriter struct {
	f     *os.File
	bw    *bufio.Writer
	delim string
}

func (w *csvPartWriter) WriteRow(_ int, tokens []string) error {
	if _, err := w.bw.WriteString(strings.Join(tokens, w.delim)); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

func (w *csvPartWriter) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
