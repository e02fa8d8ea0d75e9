package csv

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStreamRows(t *testing.T) {
	t.Parallel()

	input := "a,b\n1, x \n2,y\n3,z\n"
	var got [][]string
	err := StreamRows(context.Background(), strings.NewReader(input), 2,
		Options{TrimSpace: true, SkipHeader: true},
		func(idx int, row []string) error {
			got = append(got, row)
			return nil
		})
	if err != nil {
		t.Fatalf("StreamRows() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("rows = %d, want 3", len(got))
	}
	if got[0][1] != "x" {
		t.Fatalf("trimmed field = %q, want %q", got[0][1], "x")
	}
}

func TestStreamRowsStride(t *testing.T) {
	t.Parallel()

	input := "1\n2\n3\n4\n5\n"
	collect := func(stride, offset int) []string {
		var vals []string
		err := StreamRows(context.Background(), strings.NewReader(input), 1,
			Options{Stride: stride, Offset: offset},
			func(idx int, row []string) error {
				vals = append(vals, row[0])
				return nil
			})
		if err != nil {
			t.Fatalf("StreamRows(stride=%d offset=%d): %v", stride, offset, err)
		}
		return vals
	}

	if got := strings.Join(collect(2, 0), ","); got != "1,3,5" {
		t.Fatalf("stride 2 offset 0 = %s, want 1,3,5", got)
	}
	if got := strings.Join(collect(2, 1), ","); got != "2,4" {
		t.Fatalf("stride 2 offset 1 = %s, want 2,4", got)
	}
}

func TestStreamRowsWidthMismatch(t *testing.T) {
	t.Parallel()

	err := StreamRows(context.Background(), strings.NewReader("1,2\n3\n"), 2,
		Options{}, func(int, []string) error { return nil })
	var re *RowError
	if !errors.As(err, &re) {
		t.Fatalf("StreamRows() error = %v, want RowError", err)
	}
	if re.Line != 2 {
		t.Fatalf("RowError.Line = %d, want 2", re.Line)
	}
}

func TestCountRows(t *testing.T) {
	t.Parallel()

	n, err := CountRows(strings.NewReader("h1,h2\n1,2\n3,4\n"), ',', true)
	if err != nil {
		t.Fatalf("CountRows() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("CountRows() = %d, want 2", n)
	}

	n, err = CountRows(strings.NewReader(""), ',', true)
	if err != nil {
		t.Fatalf("CountRows(empty) error = %v", err)
	}
	if n != 0 {
		t.Fatalf("CountRows(empty) = %d, want 0", n)
	}
}

func TestStreamRowsStripsBOM(t *testing.T) {
	t.Parallel()

	input := "\uFEFFa,b\n1,2\n"
	var header []string
	err := StreamRows(context.Background(), strings.NewReader(input), 2,
		Options{},
		func(idx int, row []string) error {
			if idx == 0 {
				header = append([]string(nil), row...)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("StreamRows() error = %v", err)
	}
	if header[0] != "a" {
		t.Fatalf("first field = %q, want %q", header[0], "a")
	}
}
