package sink

import (
	"fmt"
	"os"
	"strconv"

	"tfengine/internal/matrix"
)

// Matrix fills a numeric block and persists it on Close as IJV text at path,
// with a path+".mtd" JSON sidecar. Partitions write disjoint row ranges, so
// the dense block needs no locking; the sparse block locks internally.
type Matrix struct {
	path  string
	block matrix.Block
}

func NewMatrix(path string, rows, cols int, sparse bool) *Matrix {
	var b matrix.Block
	if sparse {
		b = matrix.NewSparse(rows, cols)
	} else {
		b = matrix.NewDense(rows, cols)
	}
	return &Matrix{path: path, block: b}
}

func (m *Matrix) OpenPart(part int) (RowWriter, error) {
	return &matrixPartWriter{block: m.block}, nil
}

func (m *Matrix) Close() error {
	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("matrix sink: %w", err)
	}
	if err := m.block.WriteIJV(f); err != nil {
		f.Close()
		return fmt.Errorf("matrix sink: write ijv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("matrix sink: %w", err)
	}

	mf, err := os.Create(m.path + ".mtd")
	if err != nil {
		return fmt.Errorf("matrix sink: %w", err)
	}
	if err := matrix.WriteMTD(mf, m.block, "text"); err != nil {
		mf.Close()
		return fmt.Errorf("matrix sink: write mtd: %w", err)
	}
	return mf.Close()
}

type matrixPartWriter struct {
	block matrix.Block
	vals  []float64
}

func (w *matrixPartWriter) WriteRow(globalRow int, tokens []string) error {
	if cap(w.vals) < len(tokens) {
		w.vals = make([]float64, len(tokens))
	}
	w.vals = w.vals[:len(tokens)]
	for j, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("matrix sink: row %d column %d: non-numeric value %q", globalRow+1, j+1, tok)
		}
		w.vals[j] = v
	}
	w.block.SetRow(globalRow, w.vals)
	return nil
}

func (w *matrixPartWriter) Close() error { return nil }
