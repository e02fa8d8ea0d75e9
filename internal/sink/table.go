package sink

import (
	"context"
	"fmt"
	"strconv"

	"tfengine/internal/storage"
)

// Table streams rows into a storage.Repository through the batched loader.
// All part writers feed one channel; Close closes the channel and waits for
// the final flush.
type Table struct {
	repo    storage.Repository
	columns []string

	rows chan []any
	done chan struct{}

	total int64
	err   error
}

func NewTable(ctx context.Context, repo storage.Repository, columns []string, batchSize int) *Table {
	t := &Table{
		repo:    repo,
		columns: columns,
		rows:    make(chan []any, batchSize),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		t.total, t.err = storage.LoadBatches(ctx, columns, t.rows, batchSize, repo.CopyFrom)
	}()
	return t
}

func (t *Table) OpenPart(part int) (RowWriter, error) {
	return &tablePartWriter{sink: t}, nil
}

// Close stops the loader and reports the first insert error. The repository
// itself stays open; the caller owns it.
func (t *Table) Close() error {
	close(t.rows)
	<-t.done
	return t.err
}

// Inserted reports the rows the backend acknowledged. Valid after Close.
func (t *Table) Inserted() int64 { return t.total }

type tablePartWriter struct{ sink *Table }

func (w *tablePartWriter) WriteRow(globalRow int, tokens []string) error {
	row := make([]any, len(tokens))
	for j, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("table sink: row %d column %d: non-numeric value %q", globalRow+1, j+1, tok)
		}
		row[j] = v
	}
	select {
	case w.sink.rows <- row:
		return nil
	case <-w.sink.done:
		// Loader exited early; surface its error instead of blocking.
		if w.sink.err != nil {
			return w.sink.err
		}
		return fmt.Errorf("table sink: loader stopped")
	}
}

func (w *tablePartWriter) Close() error { return nil }
