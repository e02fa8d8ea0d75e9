// This file adds a lightweight linter for Pipeline values. It performs static
// checks over a decoded Pipeline and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced to users but
	// does not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline. Path is a
// dotted path into the config (e.g. "transform.spec_path").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error where convenient.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue carries SeverityError.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline; callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateCSV(p.CSV)...)
	issues = append(issues, validateTransform(p.Transform)...)
	issues = append(issues, validateOutputs(p.Outputs)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
		return issues
	}

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	case "http":
		if strings.TrimSpace(s.HTTP.URL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.url",
				Message:  "http source requires a non-empty url",
			})
		}
		if s.HTTP.InsecureSkipVerify {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.http.insecure_skip_verify",
				Message:  "TLS verification is disabled for the input download",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching implementation exists", s.Kind),
		})
	}

	return issues
}

func validateCSV(c CSVOptions) []Issue {
	var issues []Issue

	if c.Delimiter != "" && utf8.RuneCountInString(c.Delimiter) != 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "csv.delimiter",
			Message:  fmt.Sprintf("delimiter must be a single character, got %q", c.Delimiter),
		})
	}
	for i, na := range c.NAStrings {
		if na == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("csv.na_strings[%d]", i),
				Message:  "the empty token is always treated as missing; listing it is redundant",
			})
		}
	}

	return issues
}

func validateTransform(t Transform) []Issue {
	var issues []Issue

	if strings.TrimSpace(t.MetadataPath) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "transform.metadata_path",
			Message:  "metadata_path must not be empty; it is the publish target of fit and the read source of apply",
		})
	}
	if t.ApplyOnly {
		if strings.TrimSpace(t.SpecPath) != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "transform.spec_path",
				Message:  "spec_path is ignored in apply-only mode; the published spec.json is used instead",
			})
		}
	} else if strings.TrimSpace(t.SpecPath) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "transform.spec_path",
			Message:  "spec_path is required unless apply_only is set",
		})
	}

	return issues
}

func validateOutputs(o Outputs) []Issue {
	var issues []Issue

	if o.CSV == nil && o.Matrix == nil && o.Table == nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "outputs",
			Message:  "at least one output (csv, matrix, table) must be configured",
		})
		return issues
	}

	if o.CSV != nil && strings.TrimSpace(o.CSV.Path) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "outputs.csv.path",
			Message:  "csv output requires a non-empty path",
		})
	}
	if o.Matrix != nil && strings.TrimSpace(o.Matrix.Path) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "outputs.matrix.path",
			Message:  "matrix output requires a non-empty path",
		})
	}
	if t := o.Table; t != nil {
		if strings.TrimSpace(t.Kind) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "outputs.table.kind",
				Message:  "table output requires a storage kind",
			})
		} else if t.Kind != "sqlite" && t.Kind != "postgres" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "outputs.table.kind",
				Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", t.Kind),
			})
		}
		if strings.TrimSpace(t.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "outputs.table.dsn",
				Message:  "table output requires a dsn",
			})
		}
		if strings.TrimSpace(t.Table) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "outputs.table.table",
				Message:  "table output requires a table name",
			})
		}
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.Partitions < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.partitions",
			Message:  "partitions must not be negative",
		})
	}

	return issues
}
