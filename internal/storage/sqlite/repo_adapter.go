package sqlite

import (
	"context"
	"fmt"
	"strings"

	"tfengine/internal/storage"
)

// newRepository is a seam for tests that want to avoid a real database.
var newRepository = NewRepository

// wrappedRepo adapts *Repository to storage.Repository, adding the Close
// method from the cleanup function NewRepository returns.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	// Output columns are always numeric after transformation.
	storage.RegisterDDL("sqlite", func(ctx context.Context, repo storage.Repository, cfg storage.Config) error {
		if len(cfg.Columns) == 0 {
			return fmt.Errorf("sqlite ddl: no columns configured")
		}
		defs := make([]string, len(cfg.Columns))
		for i, c := range cfg.Columns {
			defs[i] = fmt.Sprintf("%q REAL", c)
		}
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", cfg.Table, strings.Join(defs, ", "))
		return repo.Exec(ctx, ddl)
	})
}
