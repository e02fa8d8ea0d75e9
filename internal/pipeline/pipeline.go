// Package pipeline orchestrates a transformation run: resolving columns,
// compiling the spec, fitting per-column metadata across partitions,
// publishing it atomically, and applying it to produce the output rows.
//
// A run is either fit+apply (compile, fit, publish, then apply) or
// apply-only (load previously published metadata, then apply). Both modes
// drive the apply pass from the published artifacts, never from in-memory
// fit state, so a fit+apply run and a later apply-only run over the same
// metadata produce byte-identical output.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tfengine/internal/agent"
	"tfengine/internal/colindex"
	"tfengine/internal/config"
	"tfengine/internal/metastore"
	"tfengine/internal/metrics"
	"tfengine/internal/parser/csv"
	"tfengine/internal/sink"
	"tfengine/internal/spec"
	"tfengine/internal/storage"
)

// Runner executes one pipeline configuration.
type Runner struct {
	cfg config.Pipeline

	// Verbose enables per-partition progress logging.
	Verbose bool

	rowsFit     atomic.Int64
	rowsApplied atomic.Int64
	naValues    atomic.Int64
	rowErrors   atomic.Int64
}

// Summary reports what a completed run did.
type Summary struct {
	Job                   string
	RowsFit               int64
	RowsApplied           int64
	NAValues              int64
	RowsInserted          int64
	NumColumns            int
	NumColumnsTransformed int
	MetadataDir           string
}

// New builds a Runner for cfg. The config should have been validated first.
func New(cfg config.Pipeline) *Runner {
	return &Runner{cfg: cfg}
}

// Run executes the configured passes and returns a run summary. On error the
// published metadata directory is left exactly as it was before the run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	parts, err := partitionsFor(r.cfg)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseResolveColumns, Err: err}
	}
	delim := r.cfg.CSV.DelimiterOrDefault()
	na := agent.NewNASet(r.cfg.CSV.NAStrings)

	var ix *colindex.Index
	err = r.phase(PhaseResolveColumns, func() error {
		rc, err := parts[0].Source.Open(ctx)
		if err != nil {
			return err
		}
		defer rc.Close()
		ix, err = colindex.Resolve(rc, delim, r.cfg.CSV.Header)
		return err
	})
	if err != nil {
		return nil, err
	}

	counts := make([]int, len(parts))
	if !r.cfg.Transform.ApplyOnly {
		var compiled *spec.Compiled
		err = r.phase(PhaseCompileSpec, func() error {
			doc, err := spec.LoadDocument(r.cfg.Transform.SpecPath)
			if err != nil {
				return err
			}
			compiled, err = spec.Compile(doc, ix)
			return err
		})
		if err != nil {
			return nil, err
		}

		var merged *fitPartial
		err = r.phase(PhaseFit, func() error {
			var err error
			merged, err = r.fitPass(ctx, compiled, ix, na, parts, counts)
			return err
		})
		if err != nil {
			metrics.RecordRows(r.cfg.Job, "row_errors", r.rowErrors.Load())
			return nil, err
		}
		metrics.RecordRows(r.cfg.Job, "fit", r.rowsFit.Load())

		err = r.phase(PhasePublish, func() error {
			return r.publish(compiled, ix, delim, merged)
		})
		if err != nil {
			return nil, err
		}
	}

	var (
		store    *metastore.Store
		compiled *spec.Compiled
		ch       *chain
		ncolsTf  int
		outNames []string
	)
	err = r.phase(PhaseLoadMetadata, func() error {
		var err error
		store, err = metastore.Open(r.cfg.Transform.MetadataPath)
		if err != nil {
			return err
		}
		raw, err := store.ReadFile(metastore.FileSpec)
		if err != nil {
			return err
		}
		compiled, err = spec.UnmarshalCompiled(raw)
		if err != nil {
			return err
		}
		given, err := store.ReadFile(metastore.FileNamesGiven)
		if err != nil {
			return err
		}
		if got, want := ix.HeaderLine(delim), strings.TrimRight(string(given), "\n"); got != want {
			return fmt.Errorf("input columns %q do not match published metadata columns %q", got, want)
		}
		transformed, err := store.ReadFile(metastore.FileNamesTransformed)
		if err != nil {
			return err
		}
		outNames = strings.Split(strings.TrimRight(string(transformed), "\n"), delim)
		ncolsTf, err = agent.NumColumnsTransformed(compiled, ix, store)
		if err != nil {
			return err
		}
		ch, err = loadChain(compiled, ix, na, store)
		return err
	})
	if err != nil {
		return nil, err
	}

	if r.cfg.Transform.ApplyOnly {
		for i, p := range parts {
			n, err := r.countPartition(ctx, p)
			if err != nil {
				return nil, &PhaseError{Phase: PhaseApply, Err: err}
			}
			counts[i] = n
		}
	}
	offsets, totalRows := rowOffsets(counts)

	snk, finish, err := r.buildSinks(ctx, outNames, totalRows, len(parts))
	if err != nil {
		return nil, &PhaseError{Phase: PhaseWriteOutput, Err: err}
	}

	err = r.phase(PhaseApply, func() error {
		return r.applyPass(ctx, ch, na, ix.NumColumns(), parts, offsets, snk)
	})
	if err != nil {
		metrics.RecordRows(r.cfg.Job, "row_errors", r.rowErrors.Load())
		snk.Close()
		finish()
		return nil, err
	}
	metrics.RecordRows(r.cfg.Job, "applied", r.rowsApplied.Load())
	metrics.RecordRows(r.cfg.Job, "na_values", r.naValues.Load())

	var inserted int64
	err = r.phase(PhaseWriteOutput, func() error {
		if err := snk.Close(); err != nil {
			return err
		}
		inserted = finish()
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordRows(r.cfg.Job, "inserted", inserted)

	return &Summary{
		Job:                   r.cfg.Job,
		RowsFit:               r.rowsFit.Load(),
		RowsApplied:           r.rowsApplied.Load(),
		NAValues:              r.naValues.Load(),
		RowsInserted:          inserted,
		NumColumns:            ix.NumColumns(),
		NumColumnsTransformed: ncolsTf,
		MetadataDir:           store.Dir(),
	}, nil
}

// phase runs one stage, records its metric, and wraps failures with the
// phase name and offending column.
func (r *Runner) phase(name Phase, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordPhase(r.cfg.Job, string(name), err, time.Since(start))
	if err != nil {
		if pe, ok := err.(*PhaseError); ok {
			return pe
		}
		return &PhaseError{Phase: name, Column: columnOf(err), Err: err}
	}
	if r.Verbose {
		log.Printf("%s: phase %s done in %s", r.cfg.Job, name, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// fitPartial carries one partition's accumulated fit state.
type fitPartial struct {
	rows   int
	impute *agent.ImputeAgent
	recode *agent.RecodeAgent
	bin    *agent.BinAgent
	scale  *agent.ScaleAgent
}

func newFitPartial(c *spec.Compiled, ix *colindex.Index, na *agent.NASet) *fitPartial {
	return &fitPartial{
		impute: agent.NewImputeAgent(c, ix, na),
		recode: agent.NewRecodeAgent(c, ix, na),
		bin:    agent.NewBinAgent(c, ix, na),
		scale:  agent.NewScaleAgent(c, ix, na),
	}
}

func (p *fitPartial) agents() []agent.Agent {
	var as []agent.Agent
	if p.impute != nil {
		as = append(as, p.impute)
	}
	if p.recode != nil {
		as = append(as, p.recode)
	}
	if p.bin != nil {
		as = append(as, p.bin)
	}
	if p.scale != nil {
		as = append(as, p.scale)
	}
	return as
}

// merge folds other into p. Partition partials must be merged in ascending
// partition index so that ties (equal value counts, first-seen categories)
// resolve the same way on every run.
func (p *fitPartial) merge(other *fitPartial) error {
	p.rows += other.rows
	if p.impute != nil {
		if err := p.impute.Merge(other.impute); err != nil {
			return err
		}
	}
	if p.recode != nil {
		if err := p.recode.Merge(other.recode); err != nil {
			return err
		}
	}
	if p.bin != nil {
		if err := p.bin.Merge(other.bin); err != nil {
			return err
		}
	}
	if p.scale != nil {
		if err := p.scale.Merge(other.scale); err != nil {
			return err
		}
	}
	return nil
}

// fitPass streams every partition through its own agent set concurrently,
// then merges the partials serially in ascending partition index. counts is
// filled with per-partition data-row counts for the apply pass.
func (r *Runner) fitPass(ctx context.Context, c *spec.Compiled, ix *colindex.Index, na *agent.NASet, parts []Partition, counts []int) (*fitPartial, error) {
	partials := make([]*fitPartial, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parts {
		g.Go(func() error {
			partial := newFitPartial(c, ix, na)
			agents := partial.agents()
			rc, err := p.Source.Open(gctx)
			if err != nil {
				return err
			}
			defer rc.Close()
			err = csv.StreamRows(gctx, rc, ix.NumColumns(), streamOptions(r.cfg.CSV, p), func(idx int, row []string) error {
				for _, a := range agents {
					if err := a.Prepare(row); err != nil {
						r.rowErrors.Add(1)
						return err
					}
				}
				partial.rows++
				return nil
			})
			if err != nil {
				return err
			}
			if r.Verbose {
				log.Printf("%s: fit partition %d read %d rows", r.cfg.Job, p.Index, partial.rows)
			}
			partials[i] = partial
			// Snapshot the per-partition count here: merging below folds
			// row totals into partials[0] and must not disturb the counts
			// the apply pass turns into row offsets.
			counts[i] = partial.rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	merged := partials[0]
	for _, p := range partials[1:] {
		if err := merged.merge(p); err != nil {
			return nil, err
		}
	}
	r.rowsFit.Store(int64(merged.rows))
	return merged, nil
}

// publish writes every artifact of the fit into a staging directory and
// renames it over the metadata path in one step. A failed or canceled run
// leaves previously published metadata untouched.
func (r *Runner) publish(c *spec.Compiled, ix *colindex.Index, delim string, merged *fitPartial) (err error) {
	st, err := metastore.NewStaging(r.cfg.Transform.MetadataPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			st.Discard()
		}
	}()

	raw, err := c.Marshal()
	if err != nil {
		return err
	}
	if err = st.WriteFile(metastore.FileSpec, raw); err != nil {
		return err
	}
	if err = st.WriteFile(metastore.FileNamesGiven, []byte(ix.HeaderLine(delim)+"\n")); err != nil {
		return err
	}
	for _, a := range merged.agents() {
		if err = a.Persist(st); err != nil {
			return err
		}
	}
	transformed := ix.HeaderLine(delim)
	if dc := agent.NewDummycodeAgent(c, ix); dc != nil {
		if err = dc.ResolveFromFit(merged.recode, merged.bin); err != nil {
			return err
		}
		if err = dc.Persist(st); err != nil {
			return err
		}
		transformed = dc.TransformedHeader(delim)
	}
	if err = st.WriteFile(metastore.FileNamesTransformed, []byte(transformed+"\n")); err != nil {
		return err
	}
	return st.Publish()
}

// chain holds the loaded apply-side agents in application order. Apply is
// metadata-only, so one chain is shared by all apply partitions.
type chain struct {
	impute *agent.ImputeAgent
	recode *agent.RecodeAgent
	bin    *agent.BinAgent
	scale  *agent.ScaleAgent
	dummy  *agent.DummycodeAgent
}

func loadChain(c *spec.Compiled, ix *colindex.Index, na *agent.NASet, store *metastore.Store) (*chain, error) {
	ch := &chain{}
	var err error
	if ch.impute, err = agent.LoadImputeAgent(c, ix, na, store); err != nil {
		return nil, err
	}
	if ch.recode, err = agent.LoadRecodeAgent(c, ix, na, store); err != nil {
		return nil, err
	}
	if ch.bin, err = agent.LoadBinAgent(c, ix, na, store); err != nil {
		return nil, err
	}
	if ch.scale, err = agent.LoadScaleAgent(c, ix, na, store); err != nil {
		return nil, err
	}
	if ch.dummy, err = agent.LoadDummycodeAgent(c, ix, store); err != nil {
		return nil, err
	}
	return ch, nil
}

// apply pushes one row through the agents in their fixed order: impute,
// recode, bin, scale, dummycode.
func (ch *chain) apply(row []string) ([]string, error) {
	var err error
	if ch.impute != nil {
		if row, err = ch.impute.Apply(row); err != nil {
			return nil, err
		}
	}
	if ch.recode != nil {
		if row, err = ch.recode.Apply(row); err != nil {
			return nil, err
		}
	}
	if ch.bin != nil {
		if row, err = ch.bin.Apply(row); err != nil {
			return nil, err
		}
	}
	if ch.scale != nil {
		if row, err = ch.scale.Apply(row); err != nil {
			return nil, err
		}
	}
	if ch.dummy != nil {
		if row, err = ch.dummy.Apply(row); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// applyPass transforms every partition concurrently. Row i of partition p is
// written at global index offsets[p]+i, so partitions never contend for the
// same output row.
func (r *Runner) applyPass(ctx context.Context, ch *chain, na *agent.NASet, ncols int, parts []Partition, offsets []int, snk sink.Sink) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parts {
		offset := offsets[i]
		g.Go(func() error {
			w, err := snk.OpenPart(p.Index)
			if err != nil {
				return err
			}
			rc, err := p.Source.Open(gctx)
			if err != nil {
				w.Close()
				return err
			}
			defer rc.Close()
			local := 0
			err = csv.StreamRows(gctx, rc, ncols, streamOptions(r.cfg.CSV, p), func(idx int, row []string) error {
				for _, tok := range row {
					if na.IsNA(tok) {
						r.naValues.Add(1)
					}
				}
				out, err := ch.apply(row)
				if err != nil {
					r.rowErrors.Add(1)
					return err
				}
				if err := w.WriteRow(offset+local, out); err != nil {
					return err
				}
				local++
				return nil
			})
			r.rowsApplied.Add(int64(local))
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			if r.Verbose {
				log.Printf("%s: apply partition %d wrote %d rows", r.cfg.Job, p.Index, local)
			}
			return err
		})
	}
	return g.Wait()
}

// countPartition counts the data rows a partition will stream, without
// transforming them. Used by apply-only runs, where no fit pass has counted
// the input.
func (r *Runner) countPartition(ctx context.Context, p Partition) (int, error) {
	rc, err := p.Source.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	total, err := csv.CountRows(rc, delimRune(r.cfg.CSV.DelimiterOrDefault()), sourceHasHeader(r.cfg.CSV, p))
	if err != nil {
		return 0, err
	}
	if p.Stride > 1 {
		return interleavedCount(total, p.Stride, p.Offset), nil
	}
	return total, nil
}

// interleavedCount is the number of indices in [0,total) congruent to
// offset modulo stride.
func interleavedCount(total, stride, offset int) int {
	if total <= offset {
		return 0
	}
	return (total-offset-1)/stride + 1
}

// rowOffsets turns per-partition row counts into disjoint global row ranges.
func rowOffsets(counts []int) (offsets []int, total int) {
	offsets = make([]int, len(counts))
	for i, n := range counts {
		offsets[i] = total
		total += n
	}
	return offsets, total
}

// buildSinks assembles the configured outputs behind one Sink. finish closes
// backend resources and reports the rows a table backend acknowledged; it is
// safe to call after a failed run.
func (r *Runner) buildSinks(ctx context.Context, outNames []string, totalRows, nparts int) (sink.Sink, func() int64, error) {
	var sinks []sink.Sink
	finish := func() int64 { return 0 }

	if out := r.cfg.Outputs.CSV; out != nil {
		delim := out.Delimiter
		if delim == "" {
			delim = r.cfg.CSV.DelimiterOrDefault()
		}
		var header []string
		if r.cfg.CSV.Header {
			header = outNames
		}
		s, err := sink.NewCSV(out.Path, header, delim, nparts)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	if out := r.cfg.Outputs.Matrix; out != nil {
		sinks = append(sinks, sink.NewMatrix(out.Path, totalRows, len(outNames), out.Sparse))
	}
	if out := r.cfg.Outputs.Table; out != nil {
		repo, err := storage.New(ctx, storage.Config{Kind: out.Kind, DSN: out.DSN, Table: out.Table, Columns: outNames})
		if err != nil {
			return nil, nil, err
		}
		if out.AutoCreateTable {
			if err := storage.EnsureTable(ctx, repo, storage.Config{Kind: out.Kind, Table: out.Table, Columns: outNames}); err != nil {
				repo.Close()
				return nil, nil, err
			}
		}
		tbl := sink.NewTable(ctx, repo, outNames, out.BatchSizeOrDefault())
		sinks = append(sinks, tbl)
		finish = func() int64 {
			repo.Close()
			return tbl.Inserted()
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, nopSink{})
	}
	return sink.NewMulti(sinks...), finish, nil
}

// nopSink discards rows. A run with no outputs still fits and publishes.
type nopSink struct{}

func (nopSink) OpenPart(int) (sink.RowWriter, error) { return nopWriter{}, nil }
func (nopSink) Close() error                         { return nil }

type nopWriter struct{}

func (nopWriter) WriteRow(int, []string) error { return nil }
func (nopWriter) Close() error                 { return nil }
