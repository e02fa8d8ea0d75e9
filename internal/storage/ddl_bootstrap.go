package storage

import (
	"context"
	"fmt"
	"sync"
)

// DDLBootstrapper creates the destination table for a backend kind if it does
// not already exist. Output columns are always numeric, so backends only need
// to pick their floating-point column type.
type DDLBootstrapper func(ctx context.Context, repo Repository, cfg Config) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for kind. Called
// from backend packages' init functions.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable invokes the DDLBootstrapper registered for cfg.Kind against the
// already-open repo.
func EnsureTable(ctx context.Context, repo Repository, cfg Config) error {
	ddlMu.RLock()
	fn, ok := ddlFns[cfg.Kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", cfg.Kind)
	}
	return fn(ctx, repo, cfg)
}
