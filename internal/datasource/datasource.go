// Package datasource defines the input abstraction the pipeline reads
// delimited rows from. Implementations open a byte stream; parsing is the
// caller's concern.
package datasource

import (
	"context"
	"io"
)

// Source is an openable stream of input bytes. Open may be called more than
// once: the fit pass and the apply pass each read the input from the start.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
