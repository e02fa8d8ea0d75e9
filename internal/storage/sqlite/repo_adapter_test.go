package sqlite

import (
	"context"
	"testing"

	"tfengine/internal/storage"
)

// Verifies the "sqlite" backend registered in init uses the newRepository
// seam and that wrappedRepo delegates Close to the cleanup function.
func TestRegistrationUsesNewRepositorySeam(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var (
		gotCfg Config
		closed bool
	)
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	cfg := storage.Config{
		Kind:  "sqlite",
		DSN:   "file:test.db?mode=memory&cache=shared",
		Table: "features",
	}
	repo, err := storage.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	if gotCfg.DSN != cfg.DSN || gotCfg.Table != cfg.Table {
		t.Fatalf("seam saw cfg %+v, want DSN=%q Table=%q", gotCfg, cfg.DSN, cfg.Table)
	}

	repo.Close()
	if !closed {
		t.Fatalf("Close did not reach the cleanup function")
	}
}

func TestDDLCreatesNumericTable(t *testing.T) {
	t.Parallel()

	r, closeFn, err := NewRepository(context.Background(), Config{DSN: ":memory:", Table: "features"})
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer closeFn()
	repo := &wrappedRepo{Repository: r, closeFn: nil}

	cfg := storage.Config{Kind: "sqlite", Table: "features", Columns: []string{"b_1", "b_2", "a"}}
	if err := storage.EnsureTable(context.Background(), repo, cfg); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	if _, err := r.CopyFrom(context.Background(), cfg.Columns, [][]any{{1.0, 0.0, 2.0}}); err != nil {
		t.Fatalf("insert into bootstrapped table: %v", err)
	}
}
