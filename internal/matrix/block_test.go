package matrix

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
)

func TestDenseIJV(t *testing.T) {
	t.Parallel()

	b := NewDense(3, 2)
	b.SetRow(0, []float64{1, 0})
	b.SetRow(1, []float64{0, 2.5})
	b.SetRow(2, []float64{3, 4})

	if got, want := b.NNZ(), int64(4); got != want {
		t.Fatalf("NNZ = %d, want %d", got, want)
	}

	var buf bytes.Buffer
	if err := b.WriteIJV(&buf); err != nil {
		t.Fatalf("WriteIJV: %v", err)
	}
	want := "1 1 1\n2 2 2.5\n3 1 3\n3 2 4\n"
	if buf.String() != want {
		t.Fatalf("IJV output = %q, want %q", buf.String(), want)
	}
}

func TestSparseIJVSortedAcrossGoroutines(t *testing.T) {
	t.Parallel()

	b := NewSparse(4, 2)
	var wg sync.WaitGroup
	rows := [][]float64{{1, 0}, {0, 2}, {0, 0}, {3, 4}}
	for i, vals := range rows {
		wg.Add(1)
		go func(i int, vals []float64) {
			defer wg.Done()
			b.SetRow(i, vals)
		}(i, vals)
	}
	wg.Wait()

	if got, want := b.NNZ(), int64(4); got != want {
		t.Fatalf("NNZ = %d, want %d", got, want)
	}

	var buf bytes.Buffer
	if err := b.WriteIJV(&buf); err != nil {
		t.Fatalf("WriteIJV: %v", err)
	}
	want := "1 1 1\n2 2 2\n4 1 3\n4 2 4\n"
	if buf.String() != want {
		t.Fatalf("IJV output = %q, want %q", buf.String(), want)
	}
}

func TestWriteMTD(t *testing.T) {
	t.Parallel()

	b := NewDense(2, 3)
	b.SetRow(0, []float64{1, 0, 0})
	b.SetRow(1, []float64{0, 0, 2})

	var buf bytes.Buffer
	if err := WriteMTD(&buf, b, "text"); err != nil {
		t.Fatalf("WriteMTD: %v", err)
	}

	var got MTD
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode sidecar: %v", err)
	}
	want := MTD{Rows: 2, Cols: 3, NNZ: 2, Format: "text"}
	if got != want {
		t.Fatalf("sidecar = %+v, want %+v", got, want)
	}
}
