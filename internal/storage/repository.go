// Package storage defines the backend-agnostic contract for table output and
// a factory keyed by backend kind. Concrete backends register themselves in
// init; importing storage/all enables every built-in backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Repository is the bulk-insert surface a table sink writes through.
type Repository interface {
	// CopyFrom inserts rows aligned to columns order and returns the number
	// of rows the backend reports as inserted.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs an arbitrary SQL statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind    string   // registered backend kind, e.g. "sqlite", "postgres"
	DSN     string   // backend connection string
	Table   string   // destination table, possibly schema-qualified
	Columns []string // ordered destination columns
}

// Factory constructs a Repository for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. Backend packages
// call this from init.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// New opens a Repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return fn(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered backend kinds.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
