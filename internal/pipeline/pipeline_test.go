package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tfengine/internal/config"
	"tfengine/internal/matrix"
	"tfengine/internal/metastore"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

// basePipeline wires a fit+apply run over dir/input.csv with a CSV output.
func basePipeline(dir string) config.Pipeline {
	return config.Pipeline{
		Job:    "test",
		Source: config.Source{Kind: "file", File: config.SourceFile{Path: filepath.Join(dir, "input.csv")}},
		CSV:    config.CSVOptions{Header: true},
		Transform: config.Transform{
			SpecPath:     filepath.Join(dir, "spec.json"),
			MetadataPath: filepath.Join(dir, "mtd"),
		},
		Outputs: config.Outputs{CSV: &config.CSVOutput{Path: filepath.Join(dir, "out.csv")}},
	}
}

func TestRunFitApply(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input.csv"), "a,b\n1,x\n2,y\n3,x\n")
	writeFile(t, filepath.Join(dir, "spec.json"),
		`{"recode":["b"],"bin":[{"name":"a","method":"equi-width","numbins":2}]}`)

	sum, err := New(basePipeline(dir)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.RowsFit != 3 || sum.RowsApplied != 3 {
		t.Fatalf("rows fit=%d applied=%d, want 3/3", sum.RowsFit, sum.RowsApplied)
	}
	if sum.NumColumns != 2 || sum.NumColumnsTransformed != 2 {
		t.Fatalf("columns %d -> %d, want 2 -> 2", sum.NumColumns, sum.NumColumnsTransformed)
	}

	got := readFile(t, filepath.Join(dir, "out.csv"))
	want := "a,b\n1,1\n2,2\n2,1\n"
	if got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}

	store, err := metastore.Open(filepath.Join(dir, "mtd"))
	if err != nil {
		t.Fatalf("open metadata: %v", err)
	}
	for _, rel := range []string{
		metastore.FileSpec,
		metastore.FileNamesGiven,
		metastore.FileNamesTransformed,
		metastore.RecodeMapPath("b"),
		metastore.NDistinctPath("b"),
		metastore.BinPath("a"),
	} {
		if !store.Exists(rel) {
			t.Fatalf("metadata artifact %s missing", rel)
		}
	}
	given, err := store.ReadFile(metastore.FileNamesGiven)
	if err != nil {
		t.Fatalf("read names: %v", err)
	}
	if string(given) != "a,b\n" {
		t.Fatalf("column.names.given = %q", given)
	}
}

func TestRunApplyOnlyMatchesFitApply(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input.csv"), "a,b\n1,x\n2,y\n3,x\n")
	writeFile(t, filepath.Join(dir, "spec.json"),
		`{"recode":["b"],"bin":[{"name":"a","method":"equi-width","numbins":2}]}`)

	cfg := basePipeline(dir)
	if _, err := New(cfg).Run(context.Background()); err != nil {
		t.Fatalf("fit+apply: %v", err)
	}

	cfg.Transform.ApplyOnly = true
	cfg.Transform.SpecPath = ""
	cfg.Outputs.CSV.Path = filepath.Join(dir, "out2.csv")
	sum, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("apply-only: %v", err)
	}
	if sum.RowsFit != 0 {
		t.Fatalf("apply-only fit %d rows, want 0", sum.RowsFit)
	}
	first := readFile(t, filepath.Join(dir, "out.csv"))
	second := readFile(t, filepath.Join(dir, "out2.csv"))
	if first != second {
		t.Fatalf("apply-only output diverged:\nfit+apply: %q\napply-only: %q", first, second)
	}
}

func TestRunFullChain(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input.csv"), "age,city\n20,ny\n,sf\n40,ny\n")
	writeFile(t, filepath.Join(dir, "spec.json"),
		`{"impute":[{"name":"age","method":"global_mean"}],"recode":["city"],"dummycode":["city"]}`)

	sum, err := New(basePipeline(dir)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.NumColumnsTransformed != 3 {
		t.Fatalf("transformed width %d, want 3", sum.NumColumnsTransformed)
	}
	if sum.NAValues != 1 {
		t.Fatalf("na values %d, want 1", sum.NAValues)
	}

	got := readFile(t, filepath.Join(dir, "out.csv"))
	want := "age,city_1,city_2\n20,1,0\n30,0,1\n40,1,0\n"
	if got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestRunPartitionedDeterminism(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input.csv"), "a,b\n1,x\n2,y\n3,x\n")
	writeFile(t, filepath.Join(dir, "spec.json"),
		`{"recode":["b"],"bin":[{"name":"a","method":"equi-width","numbins":2}]}`)

	cfg := basePipeline(dir)
	if _, err := New(cfg).Run(context.Background()); err != nil {
		t.Fatalf("single-node: %v", err)
	}
	singleMap := readFile(t, filepath.Join(dir, "mtd", metastore.RecodeMapPath("b")))

	cfg.Runtime.Partitions = 2
	cfg.Transform.MetadataPath = filepath.Join(dir, "mtd2")
	cfg.Outputs.CSV.Path = filepath.Join(dir, "out-parts")
	sum, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("partitioned: %v", err)
	}
	if sum.RowsFit != 3 || sum.RowsApplied != 3 {
		t.Fatalf("rows fit=%d applied=%d, want 3/3", sum.RowsFit, sum.RowsApplied)
	}

	partMap := readFile(t, filepath.Join(dir, "mtd2", metastore.RecodeMapPath("b")))
	if partMap != singleMap {
		t.Fatalf("recode map diverged:\nsingle: %q\npartitioned: %q", singleMap, partMap)
	}

	// Partition 0 takes data rows 0 and 2, partition 1 takes row 1.
	got0 := readFile(t, filepath.Join(dir, "out-parts", "part-0000"))
	got1 := readFile(t, filepath.Join(dir, "out-parts", "part-0001"))
	if got0 != "a,b\n1,1\n2,1\n" {
		t.Fatalf("part 0 = %q", got0)
	}
	if got1 != "2,2\n" {
		t.Fatalf("part 1 = %q", got1)
	}
}

func TestRunDirectorySource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := filepath.Join(dir, "input.csv")
	writeFile(t, filepath.Join(in, "part-0"), "a,b\n1,x\n2,y\n")
	writeFile(t, filepath.Join(in, "part-1"), "3,x\n")
	writeFile(t, filepath.Join(dir, "spec.json"), `{"recode":["b"]}`)

	sum, err := New(basePipeline(dir)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.RowsFit != 3 {
		t.Fatalf("fit rows %d, want 3", sum.RowsFit)
	}
	got0 := readFile(t, filepath.Join(dir, "out.csv", "part-0000"))
	got1 := readFile(t, filepath.Join(dir, "out.csv", "part-0001"))
	if got0 != "a,b\n1,1\n2,2\n" || got1 != "3,1\n" {
		t.Fatalf("parts = %q / %q", got0, got1)
	}
}

func TestRunMatrixOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input.csv"), "a,b\n1,x\n2,y\n3,x\n")
	writeFile(t, filepath.Join(dir, "spec.json"),
		`{"recode":["b"],"bin":[{"name":"a","method":"equi-width","numbins":2}]}`)

	cfg := basePipeline(dir)
	cfg.Outputs.CSV = nil
	cfg.Outputs.Matrix = &config.MatrixOutput{Path: filepath.Join(dir, "out.ijv")}
	if _, err := New(cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := readFile(t, filepath.Join(dir, "out.ijv"))
	want := "1 1 1\n1 2 1\n2 1 2\n2 2 2\n3 1 2\n3 2 1\n"
	if got != want {
		t.Fatalf("ijv = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.ijv.mtd")); err != nil {
		t.Fatalf("mtd sidecar: %v", err)
	}
}

func TestRunPartitionedMatrixOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input.csv"), "a,b\n1,x\n2,y\n3,x\n")
	writeFile(t, filepath.Join(dir, "spec.json"),
		`{"recode":["b"],"bin":[{"name":"a","method":"equi-width","numbins":2}]}`)

	cfg := basePipeline(dir)
	cfg.Runtime.Partitions = 2
	cfg.Outputs.CSV = nil
	cfg.Outputs.Matrix = &config.MatrixOutput{Path: filepath.Join(dir, "out.ijv")}
	sum, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.RowsApplied != 3 {
		t.Fatalf("applied %d rows, want 3", sum.RowsApplied)
	}

	// Partition 0 covers data rows 0 and 2 (global rows 1-2), partition 1
	// covers data row 1 (global row 3). The block must hold exactly three
	// rows with no gaps or overlaps.
	got := readFile(t, filepath.Join(dir, "out.ijv"))
	want := "1 1 1\n1 2 1\n2 1 2\n2 2 1\n3 1 2\n3 2 2\n"
	if got != want {
		t.Fatalf("ijv = %q, want %q", got, want)
	}

	var mtd matrix.MTD
	if err := json.Unmarshal([]byte(readFile(t, filepath.Join(dir, "out.ijv.mtd"))), &mtd); err != nil {
		t.Fatalf("decode mtd: %v", err)
	}
	if mtd.Rows != 3 || mtd.Cols != 2 {
		t.Fatalf("mtd = %dx%d, want 3x2", mtd.Rows, mtd.Cols)
	}
}

func TestRunUnknownCategoryApplyOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input.csv"), "a,b\n1,x\n2,y\n")
	writeFile(t, filepath.Join(dir, "spec.json"), `{"recode":["b"]}`)

	cfg := basePipeline(dir)
	if _, err := New(cfg).Run(context.Background()); err != nil {
		t.Fatalf("fit+apply: %v", err)
	}

	writeFile(t, filepath.Join(dir, "input.csv"), "a,b\n1,z\n")
	cfg.Transform.ApplyOnly = true
	_, err := New(cfg).Run(context.Background())
	if err == nil {
		t.Fatal("expected unknown-category error")
	}
	var pe *PhaseError
	if !errors.As(err, &pe) {
		t.Fatalf("error %T, want *PhaseError", err)
	}
	if pe.Phase != PhaseApply || pe.Column != "b" {
		t.Fatalf("phase=%s column=%q, want apply/b", pe.Phase, pe.Column)
	}
}

func TestRunFailedFitKeepsPublishedMetadata(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input.csv"), "a,b\n1,x\n2,y\n")
	writeFile(t, filepath.Join(dir, "spec.json"),
		`{"recode":["b"],"bin":[{"name":"a","method":"equi-width","numbins":2}]}`)

	cfg := basePipeline(dir)
	if _, err := New(cfg).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := readFile(t, filepath.Join(dir, "mtd", metastore.RecodeMapPath("b")))

	// Non-numeric value in the binned column fails the fit pass.
	writeFile(t, filepath.Join(dir, "input.csv"), "a,b\noops,x\n")
	_, err := New(cfg).Run(context.Background())
	if err == nil {
		t.Fatal("expected fit failure")
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseFit {
		t.Fatalf("error = %v, want fit phase failure", err)
	}

	after := readFile(t, filepath.Join(dir, "mtd", metastore.RecodeMapPath("b")))
	if before != after {
		t.Fatalf("published metadata changed after failed fit")
	}
	if _, err := metastore.Open(filepath.Join(dir, "mtd")); err != nil {
		t.Fatalf("metadata no longer opens: %v", err)
	}
}

func TestInterleavedCount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		total, stride, offset int
		want                  int
	}{
		{0, 2, 0, 0},
		{0, 2, 1, 0},
		{3, 2, 0, 2},
		{3, 2, 1, 1},
		{4, 2, 0, 2},
		{4, 2, 1, 2},
		{5, 3, 2, 1},
		{1, 4, 3, 0},
	}
	for _, tt := range tests {
		got := interleavedCount(tt.total, tt.stride, tt.offset)
		if got != tt.want {
			t.Fatalf("interleavedCount(%d,%d,%d) = %d, want %d", tt.total, tt.stride, tt.offset, got, tt.want)
		}
	}
}

func TestRowOffsets(t *testing.T) {
	t.Parallel()
	offsets, total := rowOffsets([]int{3, 0, 2})
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if offsets[0] != 0 || offsets[1] != 3 || offsets[2] != 3 {
		t.Fatalf("offsets = %v, want [0 3 3]", offsets)
	}
}
