// Package file implements local filesystem-backed data sources.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local is a data source that opens a single file from the local disk.
type Local struct{ path string }

// NewLocal returns a Local data source bound to path. The value is safe for
// concurrent use; each Open returns an independent *os.File.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open opens the configured path for reading. If ctx is already done the
// context error is returned without touching the filesystem. Filesystem
// errors are wrapped with the path and remain inspectable via errors.Is.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
