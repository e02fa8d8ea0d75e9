// Package metastore implements the durable metadata directory shared between
// the fit and apply passes.
//
// Layout (stable across the fit/apply boundary):
//
//	<dir>/spec.json                     compiled id-keyed spec
//	<dir>/column.names.given            pre-transform header
//	<dir>/column.names.transformed      post-transform header
//	<dir>/Impute/<name>.impute          per-column imputation artifact
//	<dir>/Recode/<name>.map             category -> code table
//	<dir>/Recode/<name>.ndistinct       distinct-category count
//	<dir>/Bin/<name>.bin                bin boundaries and count
//	<dir>/Scale/<name>.scale            mean/stdev
//	<dir>/Dummycode/dummyCodeMaps.csv   derived one-hot widths and offsets
//	<dir>/manifest.json                 artifact -> xxh3 checksum map
//
// Writers never touch <dir> directly. All artifacts go into a staging
// directory first and become visible through a single directory rename, so a
// concurrently running apply pass can never observe a half-written artifact
// set. The manifest lets readers detect truncated or corrupted artifacts.
package metastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// Artifact and directory names inside the metadata directory.
const (
	FileSpec             = "spec.json"
	FileNamesGiven       = "column.names.given"
	FileNamesTransformed = "column.names.transformed"
	FileManifest         = "manifest.json"

	DirImpute    = "Impute"
	DirRecode    = "Recode"
	DirBin       = "Bin"
	DirScale     = "Scale"
	DirDummycode = "Dummycode"

	SuffixImpute    = ".impute"
	SuffixRecodeMap = ".map"
	SuffixNDistinct = ".ndistinct"
	SuffixBin       = ".bin"
	SuffixScale     = ".scale"

	FileDummyCodeMaps = "dummyCodeMaps.csv"

	// Sep separates fields inside per-column metadata artifacts.
	Sep = "\t"
)

// MissingMetadataError reports an artifact required by the apply pass that is
// absent from the store, e.g. a dummy-code request for a column the original
// fit never recoded or binned.
type MissingMetadataError struct {
	ColumnID   int
	ColumnName string
	Artifact   string
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("transformation metadata for column (id=%d, name=%q) not found: missing %s",
		e.ColumnID, e.ColumnName, e.Artifact)
}

// CorruptMetadataError reports an artifact whose content does not match its
// manifest checksum.
type CorruptMetadataError struct {
	Artifact string
}

func (e *CorruptMetadataError) Error() string {
	return fmt.Sprintf("metadata artifact %s is corrupt (checksum mismatch)", e.Artifact)
}

type manifest struct {
	Artifacts map[string]string `json:"artifacts"` // rel path -> xxh3 hex
}

// Store provides read access to a published metadata directory.
type Store struct {
	dir      string
	checksum map[string]string
}

// Open opens an existing metadata directory. When a manifest is present its
// checksum table is loaded and every subsequent ReadFile verifies against it;
// directories written by other tools (no manifest) are still readable.
func Open(dir string) (*Store, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open metadata dir %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("metadata path %s is not a directory", dir)
	}
	st := &Store{dir: dir}
	raw, err := os.ReadFile(filepath.Join(dir, FileManifest))
	if err == nil {
		var m manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", FileManifest, err)
		}
		st.checksum = m.Artifacts
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", FileManifest, err)
	}
	return st, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Exists reports whether the artifact at rel exists in the store.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(filepath.Join(s.dir, rel))
	return err == nil
}

// ReadFile reads an artifact and verifies its manifest checksum when one is
// recorded. A mismatch yields CorruptMetadataError; a missing file yields the
// underlying os error (callers wrap it into MissingMetadataError when they
// know the column).
func (s *Store) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, rel))
	if err != nil {
		return nil, err
	}
	if want, ok := s.checksum[rel]; ok {
		if got := hashHex(data); got != want {
			return nil, &CorruptMetadataError{Artifact: rel}
		}
	}
	return data, nil
}

// Staging is a write-side view of a metadata directory under construction.
// Artifacts accumulate in a temporary sibling of the final path; Publish
// commits them all at once.
type Staging struct {
	final     string
	dir       string
	checksum  map[string]string
	published bool
}

// NewStaging creates a staging directory next to the final metadata path.
func NewStaging(final string) (*Staging, error) {
	dir := final + ".tmp-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &Staging{final: final, dir: dir, checksum: map[string]string{}}, nil
}

// WriteFile stores an artifact at rel inside the staging directory, creating
// intermediate directories as needed, and records its checksum for the
// manifest.
func (s *Staging) WriteFile(rel string, data []byte) error {
	path := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("stage %s: %w", rel, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("stage %s: %w", rel, err)
	}
	s.checksum[rel] = hashHex(data)
	return nil
}

// Publish writes the manifest and renames the staging directory onto the
// final path. The rename is the commit point: before it the final path is
// untouched, after it readers see the complete artifact set. Any previously
// published directory at the final path is replaced.
func (s *Staging) Publish() error {
	raw, err := json.MarshalIndent(manifest{Artifacts: s.checksum}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, FileManifest), raw, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.RemoveAll(s.final); err != nil {
		return fmt.Errorf("clear %s: %w", s.final, err)
	}
	if err := os.Rename(s.dir, s.final); err != nil {
		return fmt.Errorf("publish metadata to %s: %w", s.final, err)
	}
	s.published = true
	return nil
}

// Discard removes the staging directory without publishing. Safe to call
// after Publish (it becomes a no-op), which makes `defer st.Discard()` the
// standard cleanup pattern.
func (s *Staging) Discard() {
	if s.published {
		return
	}
	_ = os.RemoveAll(s.dir)
}

func hashHex(data []byte) string {
	return strconv.FormatUint(xxh3.Hash(data), 16)
}

// ImputePath returns the artifact path for a column's imputation metadata.
func ImputePath(name string) string { return filepath.Join(DirImpute, name+SuffixImpute) }

// RecodeMapPath returns the artifact path for a column's recode table.
func RecodeMapPath(name string) string { return filepath.Join(DirRecode, name+SuffixRecodeMap) }

// NDistinctPath returns the artifact path for a column's distinct count.
func NDistinctPath(name string) string { return filepath.Join(DirRecode, name+SuffixNDistinct) }

// BinPath returns the artifact path for a column's bin boundaries.
func BinPath(name string) string { return filepath.Join(DirBin, name+SuffixBin) }

// ScalePath returns the artifact path for a column's scaling metadata.
func ScalePath(name string) string { return filepath.Join(DirScale, name+SuffixScale) }

// DummyCodeMapsPath returns the artifact path for the dummy-code width table.
func DummyCodeMapsPath() string { return filepath.Join(DirDummycode, FileDummyCodeMaps) }
