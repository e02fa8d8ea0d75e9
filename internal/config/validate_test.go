package config

import (
	"strings"
	"testing"
)

func validPipeline() Pipeline {
	return Pipeline{
		Job:    "census",
		Source: Source{Kind: "file", File: SourceFile{Path: "data.csv"}},
		CSV:    CSVOptions{Delimiter: ",", Header: true},
		Transform: Transform{
			SpecPath:     "spec.json",
			MetadataPath: "out/mtd",
		},
		Outputs: Outputs{CSV: &CSVOutput{Path: "out.csv"}},
	}
}

func findIssue(issues []Issue, path string) *Issue {
	for i := range issues {
		if issues[i].Path == path {
			return &issues[i]
		}
	}
	return nil
}

func TestValidatePipelineCleanConfig(t *testing.T) {
	t.Parallel()

	if issues := ValidatePipeline(validPipeline()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestValidatePipeline(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		mutate   func(*Pipeline)
		wantPath string
		wantSev  IssueSeverity
	}{
		{
			name:     "empty job",
			mutate:   func(p *Pipeline) { p.Job = " " },
			wantPath: "job",
			wantSev:  SeverityError,
		},
		{
			name:     "empty source kind",
			mutate:   func(p *Pipeline) { p.Source.Kind = "" },
			wantPath: "source.kind",
			wantSev:  SeverityError,
		},
		{
			name:     "unknown source kind warns",
			mutate:   func(p *Pipeline) { p.Source.Kind = "s3" },
			wantPath: "source.kind",
			wantSev:  SeverityWarning,
		},
		{
			name:     "file source without path",
			mutate:   func(p *Pipeline) { p.Source.File.Path = "" },
			wantPath: "source.file.path",
			wantSev:  SeverityError,
		},
		{
			name: "http source without url",
			mutate: func(p *Pipeline) {
				p.Source = Source{Kind: "http"}
			},
			wantPath: "source.http.url",
			wantSev:  SeverityError,
		},
		{
			name: "insecure http warns",
			mutate: func(p *Pipeline) {
				p.Source = Source{Kind: "http", HTTP: SourceHTTP{URL: "https://x", InsecureSkipVerify: true}}
			},
			wantPath: "source.http.insecure_skip_verify",
			wantSev:  SeverityWarning,
		},
		{
			name:     "multi-char delimiter",
			mutate:   func(p *Pipeline) { p.CSV.Delimiter = ";;" },
			wantPath: "csv.delimiter",
			wantSev:  SeverityError,
		},
		{
			name:     "redundant empty na token warns",
			mutate:   func(p *Pipeline) { p.CSV.NAStrings = []string{""} },
			wantPath: "csv.na_strings[0]",
			wantSev:  SeverityWarning,
		},
		{
			name:     "missing metadata path",
			mutate:   func(p *Pipeline) { p.Transform.MetadataPath = "" },
			wantPath: "transform.metadata_path",
			wantSev:  SeverityError,
		},
		{
			name:     "missing spec path in fit mode",
			mutate:   func(p *Pipeline) { p.Transform.SpecPath = "" },
			wantPath: "transform.spec_path",
			wantSev:  SeverityError,
		},
		{
			name:     "spec path ignored in apply-only",
			mutate:   func(p *Pipeline) { p.Transform.ApplyOnly = true },
			wantPath: "transform.spec_path",
			wantSev:  SeverityWarning,
		},
		{
			name:     "no outputs",
			mutate:   func(p *Pipeline) { p.Outputs = Outputs{} },
			wantPath: "outputs",
			wantSev:  SeverityError,
		},
		{
			name:     "csv output without path",
			mutate:   func(p *Pipeline) { p.Outputs.CSV.Path = "" },
			wantPath: "outputs.csv.path",
			wantSev:  SeverityError,
		},
		{
			name: "table output without dsn",
			mutate: func(p *Pipeline) {
				p.Outputs.Table = &TableOutput{Kind: "sqlite", Table: "t"}
			},
			wantPath: "outputs.table.dsn",
			wantSev:  SeverityError,
		},
		{
			name: "unknown table kind warns",
			mutate: func(p *Pipeline) {
				p.Outputs.Table = &TableOutput{Kind: "oracle", DSN: "x", Table: "t"}
			},
			wantPath: "outputs.table.kind",
			wantSev:  SeverityWarning,
		},
		{
			name:     "negative partitions",
			mutate:   func(p *Pipeline) { p.Runtime.Partitions = -1 },
			wantPath: "runtime.partitions",
			wantSev:  SeverityError,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			p := validPipeline()
			c.mutate(&p)

			issues := ValidatePipeline(p)
			got := findIssue(issues, c.wantPath)
			if got == nil {
				t.Fatalf("no issue at path %q; issues: %v", c.wantPath, issues)
			}
			if got.Severity != c.wantSev {
				t.Fatalf("issue severity = %s, want %s (%v)", got.Severity, c.wantSev, got)
			}
		})
	}
}

func TestHasErrors(t *testing.T) {
	t.Parallel()

	if HasErrors([]Issue{{Severity: SeverityWarning}}) {
		t.Fatalf("warnings alone should not count as errors")
	}
	if !HasErrors([]Issue{{Severity: SeverityWarning}, {Severity: SeverityError}}) {
		t.Fatalf("expected HasErrors to detect the error issue")
	}
}

func TestIssueError(t *testing.T) {
	t.Parallel()

	i := Issue{Severity: SeverityError, Path: "job", Message: "must not be empty"}
	if got := i.Error(); !strings.Contains(got, "job") || !strings.Contains(got, "error") {
		t.Fatalf("Issue.Error() = %q", got)
	}
}
