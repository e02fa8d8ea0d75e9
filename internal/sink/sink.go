// Package sink writes transformed rows to the configured outputs. A pass may
// drive any subset of sinks at once; each apply partition opens its own part
// writer, so sinks decide their own concurrency discipline.
package sink

import "errors"

// RowWriter receives rows for one partition. globalRow is the 0-based row
// index across the whole input; partitions cover disjoint ranges.
type RowWriter interface {
	WriteRow(globalRow int, tokens []string) error
	Close() error
}

// Sink produces one RowWriter per partition and finalizes the output on
// Close. OpenPart may be called concurrently for distinct parts.
type Sink interface {
	OpenPart(part int) (RowWriter, error)
	Close() error
}

// Multi fans one row stream out to several sinks.
type Multi struct{ sinks []Sink }

func NewMulti(sinks ...Sink) *Multi { return &Multi{sinks: sinks} }

func (m *Multi) OpenPart(part int) (RowWriter, error) {
	ws := make([]RowWriter, 0, len(m.sinks))
	for _, s := range m.sinks {
		w, err := s.OpenPart(part)
		if err != nil {
			for _, open := range ws {
				open.Close()
			}
			return nil, err
		}
		ws = append(ws, w)
	}
	return &multiWriter{ws: ws}, nil
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type multiWriter struct{ ws []RowWriter }

func (m *multiWriter) WriteRow(globalRow int, tokens []string) error {
	for _, w := range m.ws {
		if err := w.WriteRow(globalRow, tokens); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiWriter) Close() error {
	var errs []error
	for _, w := range m.ws {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
