package file

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParts_SingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte("a,b\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := Parts(path)
	if err != nil {
		t.Fatalf("Parts error: %v", err)
	}
	want := []string{path}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parts(%q) = %#v, want %#v", path, got, want)
	}
}

func TestParts_DirectorySortedAndFiltered(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"part-0002", "part-0000", "part-0001", ".crc", "_SUCCESS"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	got, err := Parts(dir)
	if err != nil {
		t.Fatalf("Parts error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "part-0000"),
		filepath.Join(dir, "part-0001"),
		filepath.Join(dir, "part-0002"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parts(%q) = %#v, want %#v", dir, got, want)
	}
}

func TestParts_EmptyDirectory(t *testing.T) {
	t.Parallel()

	if _, err := Parts(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty directory, got nil")
	}
}

func TestParts_Missing(t *testing.T) {
	t.Parallel()

	if _, err := Parts(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing path, got nil")
	}
}
