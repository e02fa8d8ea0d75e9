package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalOpen(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		prepare     func(t *testing.T) string
		makeCtx     func() context.Context
		wantErrIs   error
		wantContent string
	}{
		{
			name: "reads content",
			prepare: func(t *testing.T) string {
				t.Helper()
				p := filepath.Join(t.TempDir(), "data.csv")
				if err := os.WriteFile(p, []byte("1,x\n2,y\n"), 0o644); err != nil {
					t.Fatalf("write: %v", err)
				}
				return p
			},
			makeCtx:     context.Background,
			wantContent: "1,x\n2,y\n",
		},
		{
			name: "missing file",
			prepare: func(t *testing.T) string {
				t.Helper()
				return filepath.Join(t.TempDir(), "missing.csv")
			},
			makeCtx:   context.Background,
			wantErrIs: os.ErrNotExist,
		},
		{
			name: "pre-canceled context",
			prepare: func(t *testing.T) string {
				t.Helper()
				p := filepath.Join(t.TempDir(), "data.csv")
				if err := os.WriteFile(p, []byte("ignored"), 0o644); err != nil {
					t.Fatalf("write: %v", err)
				}
				return p
			},
			makeCtx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErrIs: context.Canceled,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			rc, err := NewLocal(c.prepare(t)).Open(c.makeCtx())
			if c.wantErrIs != nil {
				if !errors.Is(err, c.wantErrIs) {
					t.Fatalf("Open error = %v, want errors.Is %v", err, c.wantErrIs)
				}
				if rc != nil {
					rc.Close()
					t.Fatalf("got non-nil ReadCloser on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != c.wantContent {
				t.Fatalf("content = %q, want %q", got, c.wantContent)
			}
		})
	}
}
