// Package colindex resolves human-readable column names to stable, 1-based
// numeric column ids for one transformation cycle.
//
// The index is built once, from the header line of a sample input file (or
// synthesized as V1..Vn when the input carries no header), and is immutable
// afterwards. Every downstream component (spec compiler, agents, metadata
// store) addresses columns exclusively by id, so the mapping must be stable
// for the lifetime of a fit/apply cycle.
package colindex

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// MalformedHeaderError indicates the sample file was empty, unreadable, or
// produced a header that cannot form a valid index (e.g. duplicate names).
type MalformedHeaderError struct {
	Reason string
	Err    error
}

func (e *MalformedHeaderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed header: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed header: %s", e.Reason)
}

func (e *MalformedHeaderError) Unwrap() error { return e.Err }

// Index is a bidirectional mapping between column names and 1-based ids.
// Position i of Names holds the name of column id i+1.
type Index struct {
	names []string
	ids   map[string]int
}

// Resolve reads the first line of sample, splits it by delim, and builds the
// index. When hasHeader is false the first line is treated as data and names
// V1..Vn are synthesized from its token count, matching the width of the file.
//
// Header tokens are trimmed, unquoted, and NFC-normalized before the mapping
// is built; ids are assigned by position in token order.
func Resolve(sample io.Reader, delim string, hasHeader bool) (*Index, error) {
	if delim == "" {
		delim = ","
	}
	sc := bufio.NewScanner(sample)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, &MalformedHeaderError{Reason: "cannot read sample line", Err: err}
		}
		return nil, &MalformedHeaderError{Reason: "sample file is empty"}
	}
	line := strings.TrimPrefix(sc.Text(), utf8BOM)
	if strings.TrimSpace(line) == "" {
		return nil, &MalformedHeaderError{Reason: "sample file starts with a blank line"}
	}

	// Parse the line with the same reader the data rows go through, so a
	// quoted name containing the delimiter still counts as one column.
	cr := csv.NewReader(strings.NewReader(line))
	for _, r := range delim {
		cr.Comma = r
		break
	}
	cr.LazyQuotes = true
	tokens, err := cr.Read()
	if err != nil {
		return nil, &MalformedHeaderError{Reason: "cannot parse sample line", Err: err}
	}
	names := make([]string, len(tokens))
	if hasHeader {
		for i, tok := range tokens {
			names[i] = CleanName(tok)
		}
	} else {
		for i := range tokens {
			names[i] = fmt.Sprintf("V%d", i+1)
		}
	}
	return New(names)
}

// New builds an Index from an ordered name list. Names must already be clean
// (see CleanName) and unique; ids are positional and 1-based.
func New(names []string) (*Index, error) {
	ids := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, &MalformedHeaderError{Reason: fmt.Sprintf("empty column name at position %d", i+1)}
		}
		if prev, dup := ids[n]; dup {
			return nil, &MalformedHeaderError{
				Reason: fmt.Sprintf("duplicate column name %q (positions %d and %d)", n, prev, i+1),
			}
		}
		ids[n] = i + 1
	}
	return &Index{names: append([]string(nil), names...), ids: ids}, nil
}

// CleanName trims surrounding space and quotes from a raw header token and
// normalizes it to NFC so that visually identical names map to one id.
func CleanName(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, utf8BOM)
	s = unquote(s)
	return norm.NFC.String(s)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// NumColumns returns the column count.
func (x *Index) NumColumns() int { return len(x.names) }

// ID returns the 1-based id for name. The second result reports whether the
// name exists in the index.
func (x *Index) ID(name string) (int, bool) {
	id, ok := x.ids[name]
	return id, ok
}

// Name returns the column name for the given 1-based id, or "" when id is out
// of range.
func (x *Index) Name(id int) string {
	if id < 1 || id > len(x.names) {
		return ""
	}
	return x.names[id-1]
}

// Names returns the ordered name list. Callers must not modify it.
func (x *Index) Names() []string { return x.names }

// HeaderLine joins the names with delim, reproducing the given header line.
func (x *Index) HeaderLine(delim string) string { return strings.Join(x.names, delim) }
