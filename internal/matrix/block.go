// Package matrix holds the numeric output block of an apply pass and writes
// it as IJV text with a JSON metadata sidecar.
package matrix

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
)

// Block is a fixed-shape numeric matrix filled row by row. SetRow calls for
// distinct rows may run concurrently; writing the same row twice is a caller
// bug and the result is unspecified.
type Block interface {
	NumRows() int
	NumCols() int
	SetRow(i int, vals []float64)
	NNZ() int64
	WriteIJV(w io.Writer) error
}

// Dense stores every cell. Rows occupy disjoint slices of the backing array,
// so concurrent SetRow needs no lock.
type Dense struct {
	rows, cols int
	data       []float64
}

func NewDense(rows, cols int) *Dense {
	return &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

func (d *Dense) NumRows() int { return d.rows }
func (d *Dense) NumCols() int { return d.cols }

func (d *Dense) SetRow(i int, vals []float64) {
	copy(d.data[i*d.cols:(i+1)*d.cols], vals)
}

func (d *Dense) NNZ() int64 {
	var n int64
	for _, v := range d.data {
		if v != 0 {
			n++
		}
	}
	return n
}

// WriteIJV writes one "i j v" line per non-zero cell, 1-based, in row-major
// order.
func (d *Dense) WriteIJV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < d.rows; i++ {
		for j := 0; j < d.cols; j++ {
			v := d.data[i*d.cols+j]
			if v == 0 {
				continue
			}
			if err := writeCell(bw, i+1, j+1, v); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

type entry struct {
	row, col int
	val      float64
}

// Sparse stores only non-zero cells. Appends are serialized with a mutex;
// WriteIJV sorts into row-major order so output does not depend on partition
// scheduling.
type Sparse struct {
	rows, cols int

	mu      sync.Mutex
	entries []entry
}

func NewSparse(rows, cols int) *Sparse {
	return &Sparse{rows: rows, cols: cols}
}

func (s *Sparse) NumRows() int { return s.rows }
func (s *Sparse) NumCols() int { return s.cols }

func (s *Sparse) SetRow(i int, vals []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for j, v := range vals {
		if v != 0 {
			s.entries = append(s.entries, entry{row: i, col: j, val: v})
		}
	}
}

func (s *Sparse) NNZ() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries))
}

func (s *Sparse) WriteIJV(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.entries, func(a, b int) bool {
		if s.entries[a].row != s.entries[b].row {
			return s.entries[a].row < s.entries[b].row
		}
		return s.entries[a].col < s.entries[b].col
	})
	bw := bufio.NewWriter(w)
	for _, e := range s.entries {
		if err := writeCell(bw, e.row+1, e.col+1, e.val); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeCell(w io.Writer, i, j int, v float64) error {
	_, err := fmt.Fprintf(w, "%d %d %s\n", i, j, strconv.FormatFloat(v, 'g', -1, 64))
	return err
}
