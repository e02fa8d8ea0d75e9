// Package config defines the canonical, JSON-serializable configuration model
// for a transformation run. It is intentionally small, explicit, and
// dependency-free so that pipelines can be loaded from disk and passed through
// the program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "job":    "census",
//	  "source": { "kind": "file", "file": { "path": "data/census.csv" } },
//	  "csv":    { "delimiter": ",", "header": true, "na_strings": ["", "NA"] },
//	  "transform": { "spec_path": "spec.json", "metadata_path": "out/mtd" },
//	  "outputs":   { "csv": { "path": "out/transformed.csv" } },
//	  "runtime":   { "partitions": 4 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run; it is used for metrics labeling and log prefixes.
	Job string `json:"job"`

	// Source describes where input rows come from.
	Source Source `json:"source"`

	// CSV configures how the input is split into rows and columns.
	CSV CSVOptions `json:"csv"`

	// Transform selects the spec document and the metadata directory, and
	// chooses between fit+apply and apply-only operation.
	Transform Transform `json:"transform"`

	// Outputs lists the sinks the apply pass writes to. Any subset may be set.
	Outputs Outputs `json:"outputs"`

	Runtime RuntimeConfig `json:"runtime"`
}

// Source identifies the data source. Additional kinds can be added over time.
type Source struct {
	// Kind selects the source implementation: "file" or "http".
	Kind string `json:"kind"`

	File SourceFile `json:"file"`
	HTTP SourceHTTP `json:"http"`
}

// SourceFile holds configuration for the "file" source kind. Path may name a
// single file or a directory of part files.
type SourceFile struct {
	Path string `json:"path"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	URL string `json:"url"`

	// TimeoutSeconds is the per-request timeout; 0 means the client default.
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxRetries is the retry count after the initial attempt.
	MaxRetries int `json:"max_retries"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

// CSVOptions configures input parsing.
type CSVOptions struct {
	// Delimiter is a single-character field separator; default ",".
	Delimiter string `json:"delimiter"`

	// Header reports whether the first input line names the columns. Without
	// it, columns are addressed as V1..Vn.
	Header bool `json:"header"`

	// NAStrings are tokens treated as missing values. The empty token is
	// always missing; listing extra markers (e.g. "NA", "?") adds to that.
	NAStrings []string `json:"na_strings"`

	// TrimSpace trims surrounding whitespace from every field.
	TrimSpace bool `json:"trim_space"`
}

// DelimiterOrDefault returns the configured delimiter or ",".
func (c CSVOptions) DelimiterOrDefault() string {
	if c.Delimiter == "" {
		return ","
	}
	return c.Delimiter
}

// Transform selects the transformation inputs and mode.
type Transform struct {
	// SpecPath is the name-keyed spec document (JSON or YAML). Required for
	// fit+apply; ignored in apply-only mode.
	SpecPath string `json:"spec_path"`

	// MetadataPath is the durable metadata directory: the publish target of a
	// fit pass and the read source of an apply pass.
	MetadataPath string `json:"metadata_path"`

	// ApplyOnly skips fitting and loads previously published metadata.
	ApplyOnly bool `json:"apply_only"`
}

// Outputs lists the output sinks. A nil entry means the sink is off.
type Outputs struct {
	CSV    *CSVOutput    `json:"csv,omitempty"`
	Matrix *MatrixOutput `json:"matrix,omitempty"`
	Table  *TableOutput  `json:"table,omitempty"`
}

// CSVOutput writes delimiter-joined transformed rows. With more than one
// partition, Path becomes a directory of part files.
type CSVOutput struct {
	Path string `json:"path"`

	// Delimiter defaults to the input delimiter.
	Delimiter string `json:"delimiter"`
}

// MatrixOutput writes the numeric block as IJV text plus a .mtd sidecar.
type MatrixOutput struct {
	Path   string `json:"path"`
	Sparse bool   `json:"sparse"`
}

// TableOutput streams rows into a database table.
type TableOutput struct {
	// Kind selects the registered storage backend, e.g. "sqlite", "postgres".
	Kind string `json:"kind"`

	DSN   string `json:"dsn"`
	Table string `json:"table"`

	// AutoCreateTable creates the destination table before the first insert.
	AutoCreateTable bool `json:"auto_create_table"`

	// BatchSize controls loader batching; default 500.
	BatchSize int `json:"batch_size"`
}

// BatchSizeOrDefault returns the configured batch size or 500.
func (t TableOutput) BatchSizeOrDefault() int {
	if t.BatchSize <= 0 {
		return 500
	}
	return t.BatchSize
}

// RuntimeConfig controls parallelism.
type RuntimeConfig struct {
	// Partitions is the number of row partitions for the fit and apply
	// passes. 0 or 1 runs single-node. For a directory source the part-file
	// count wins over this value.
	Partitions int `json:"partitions"`
}

// Load reads and decodes a pipeline file.
func Load(path string) (Pipeline, error) {
	var p Pipeline
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read pipeline: %w", err)
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode pipeline %s: %w", path, err)
	}
	return p, nil
}
