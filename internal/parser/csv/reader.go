// Package csv streams delimited text rows for the fit and apply passes.
//
// It is a thin, allocation-conscious wrapper over encoding/csv: records are
// reused inside the reader and copied only for rows the caller actually
// consumes, which matters when a partitioned run strides over a large file
// and touches a fraction of its rows.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Options tunes row streaming.
type Options struct {
	// Comma is the field delimiter; ',' when zero.
	Comma rune
	// TrimSpace trims surrounding whitespace from every field.
	TrimSpace bool
	// SkipHeader discards the first line.
	SkipHeader bool
	// Stride and Offset select an interleaved row subset: rows whose 0-based
	// data-row index i satisfy i % Stride == Offset. Stride <= 1 selects all
	// rows.
	Stride int
	Offset int
}

// RowError reports a malformed data row, carrying its 1-based line number.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// StreamRows reads delimited rows from src and calls fn for every selected
// data row with its 0-based data-row index and a caller-owned token slice of
// exactly ncols fields. A row with the wrong field count is a fatal RowError;
// there is no silent skipping. fn errors abort the stream.
func StreamRows(ctx context.Context, src io.Reader, ncols int, opt Options, fn func(idx int, row []string) error) error {
	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(skipBOM(src))
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1 // width checked below so the error can name the line

	line := 0
	read := func() ([]string, error) { line++; return cr.Read() }

	if opt.SkipHeader {
		if _, err := read(); err != nil {
			if err == io.EOF {
				return nil
			}
			return &RowError{Line: line, Err: fmt.Errorf("read header: %w", err)}
		}
	}

	stride := opt.Stride
	if stride < 1 {
		stride = 1
	}

	idx := -1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &RowError{Line: line, Err: err}
		}
		idx++
		if idx%stride != opt.Offset {
			continue
		}
		if len(rec) != ncols {
			return &RowError{Line: line, Err: fmt.Errorf("expected %d fields, got %d", ncols, len(rec))}
		}

		row := make([]string, ncols)
		for i, v := range rec {
			if opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			row[i] = v
		}
		if err := fn(idx, row); err != nil {
			return err
		}
	}
}

// CountRows returns the number of data rows in src.
func CountRows(src io.Reader, comma rune, skipHeader bool) (int, error) {
	if comma == 0 {
		comma = ','
	}
	cr := csv.NewReader(skipBOM(src))
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	n := 0
	for {
		_, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		n++
	}
	if skipHeader && n > 0 {
		n--
	}
	return n, nil
}
