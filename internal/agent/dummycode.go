package agent

import (
	"fmt"
	"strconv"
	"strings"

	"tfengine/internal/colindex"
	"tfengine/internal/metastore"
	"tfengine/internal/spec"
)

// DummycodeAgent expands each requested column into a one-hot indicator
// vector. It carries no fit statistic of its own: the width of every expanded
// column comes from Recode (distinct count) or Bin (bin count) metadata,
// which is why it must resolve only after those agents have finalized, and
// why it always runs last in the apply chain.
type DummycodeAgent struct {
	ix *colindex.Index

	attrs []int
	ncols int

	width   []int // per source column id (index col-1); 1 for pass-through
	start   []int // 1-based destination start id per source column
	ncolsTf int
}

// NewDummycodeAgent builds an unresolved agent from the compiled spec.
// Returns nil when the spec requests no dummy-coding. Callers must call
// ResolveFromFit or Load before Persist/Apply.
func NewDummycodeAgent(c *spec.Compiled, ix *colindex.Index) *DummycodeAgent {
	if c.Dummycode == nil || len(c.Dummycode.Attrs) == 0 {
		return nil
	}
	return &DummycodeAgent{ix: ix, attrs: c.Dummycode.Attrs, ncols: ix.NumColumns()}
}

// LoadDummycodeAgent builds an apply-side agent from published artifacts.
func LoadDummycodeAgent(c *spec.Compiled, ix *colindex.Index, store *metastore.Store) (*DummycodeAgent, error) {
	a := NewDummycodeAgent(c, ix)
	if a == nil {
		return nil, nil
	}
	if err := a.Load(store); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *DummycodeAgent) Name() string { return "dummycode" }

// Prepare is a no-op: dummy-coding derives all state from other agents.
func (a *DummycodeAgent) Prepare([]string) error { return nil }

// Merge is a no-op for the same reason.
func (a *DummycodeAgent) Merge(Agent) error { return nil }

// ResolveFromFit derives expansion widths from freshly merged fit partials,
// before anything has been published. Recode and Bin must already carry their
// merged global state; a dummy-coded column must appear in one of them.
func (a *DummycodeAgent) ResolveFromFit(rc *RecodeAgent, bn *BinAgent) error {
	return a.resolve(func(col int, name string) (int, error) {
		if bn != nil {
			for i, c := range bn.attrs {
				if c == col {
					return bn.numBins[i], nil
				}
			}
		}
		if rc != nil {
			for i, c := range rc.attrs {
				if c == col {
					if n := len(rc.order[i]); n > 0 {
						return n, nil
					}
				}
			}
		}
		return 0, &metastore.MissingMetadataError{ColumnID: col, ColumnName: name, Artifact: metastore.DummyCodeMapsPath()}
	})
}

// Load rebuilds the expansion layout from the published width table, falling
// back to the Bin/Recode artifacts when the table is absent (metadata written
// by a fit that predates this dummy-code request). A column with neither
// artifact fails with MissingMetadataError naming it.
func (a *DummycodeAgent) Load(store *metastore.Store) error {
	rel := metastore.DummyCodeMapsPath()
	if raw, err := store.ReadFile(rel); err == nil {
		widths := map[int]int{}
		for _, line := range strings.Split(string(raw), "\n") {
			if line == "" {
				continue
			}
			fields := strings.Split(line, ",")
			if len(fields) != 4 {
				return &metastore.CorruptMetadataError{Artifact: rel}
			}
			col, err1 := strconv.Atoi(fields[0])
			w, err2 := strconv.Atoi(fields[1])
			if err1 != nil || err2 != nil || w < 1 {
				return &metastore.CorruptMetadataError{Artifact: rel}
			}
			widths[col] = w
		}
		return a.resolve(func(col int, name string) (int, error) {
			w, ok := widths[col]
			if !ok {
				return 0, &metastore.MissingMetadataError{ColumnID: col, ColumnName: name, Artifact: rel}
			}
			return w, nil
		})
	} else if store.Exists(rel) {
		return err
	}

	return a.resolve(func(col int, name string) (int, error) {
		return resolveWidthFromArtifacts(store, col, name)
	})
}

// resolveWidthFromArtifacts reads the one-hot width for a column straight
// from its Bin or Recode artifact; Bin wins when both exist.
func resolveWidthFromArtifacts(store *metastore.Store, col int, name string) (int, error) {
	binRel := metastore.BinPath(name)
	if store.Exists(binRel) {
		raw, err := store.ReadFile(binRel)
		if err != nil {
			return 0, err
		}
		fields := strings.Split(strings.TrimRight(string(raw), "\n"), metastore.Sep)
		if len(fields) != 4 {
			return 0, &metastore.CorruptMetadataError{Artifact: binRel}
		}
		nb, err := strconv.Atoi(fields[3])
		if err != nil || nb < 1 {
			return 0, &metastore.CorruptMetadataError{Artifact: binRel}
		}
		return nb, nil
	}
	ndRel := metastore.NDistinctPath(name)
	if store.Exists(ndRel) {
		raw, err := store.ReadFile(ndRel)
		if err != nil {
			return 0, err
		}
		nd, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil || nd < 1 {
			return 0, &metastore.CorruptMetadataError{Artifact: ndRel}
		}
		return nd, nil
	}
	return 0, &metastore.MissingMetadataError{ColumnID: col, ColumnName: name, Artifact: binRel}
}

func (a *DummycodeAgent) resolve(widthOf func(col int, name string) (int, error)) error {
	expand := map[int]int{}
	for _, col := range a.attrs {
		w, err := widthOf(col, a.ix.Name(col))
		if err != nil {
			return err
		}
		expand[col] = w
	}

	a.width = make([]int, a.ncols)
	a.start = make([]int, a.ncols)
	next := 1
	for c := 1; c <= a.ncols; c++ {
		w := 1
		if ew, ok := expand[c]; ok {
			w = ew
		}
		a.width[c-1] = w
		a.start[c-1] = next
		next += w
	}
	a.ncolsTf = next - 1
	return nil
}

// Persist writes the derived width table. Requires a prior ResolveFromFit.
func (a *DummycodeAgent) Persist(st *metastore.Staging) error {
	if a.width == nil {
		return fmt.Errorf("dummycode: persist before resolve")
	}
	var sb strings.Builder
	for _, col := range a.attrs {
		w := a.width[col-1]
		start := a.start[col-1]
		fmt.Fprintf(&sb, "%d,%d,%d,%d\n", col, w, start, start+w-1)
	}
	return st.WriteFile(metastore.DummyCodeMapsPath(), []byte(sb.String()))
}

// Apply expands the row to the derived output width. Dummy-coded cells must
// hold a 1-based code or bin id within the column's width (they are produced
// by the recode/bin agents earlier in the chain).
func (a *DummycodeAgent) Apply(row []string) ([]string, error) {
	out := make([]string, a.ncolsTf)
	for c := 1; c <= a.ncols; c++ {
		w := a.width[c-1]
		dst := a.start[c-1] - 1
		if w == 1 {
			out[dst] = row[c-1]
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(row[c-1]))
		if err != nil || v < 1 || v > w {
			return nil, &ValueError{
				Column: a.ix.Name(c),
				Token:  row[c-1],
				Reason: fmt.Sprintf("not a valid code in [1,%d] for one-hot expansion", w),
			}
		}
		for k := 0; k < w; k++ {
			out[dst+k] = "0"
		}
		out[dst+v-1] = "1"
	}
	return out, nil
}

// NumColumnsTransformed returns the derived output width.
func (a *DummycodeAgent) NumColumnsTransformed() int { return a.ncolsTf }

// TransformedHeader builds the post-transform header: expanded columns
// contribute name_1..name_w, everything else passes through in order.
func (a *DummycodeAgent) TransformedHeader(delim string) string {
	var names []string
	for c := 1; c <= a.ncols; c++ {
		name := a.ix.Name(c)
		if w := a.width[c-1]; w > 1 {
			for k := 1; k <= w; k++ {
				names = append(names, fmt.Sprintf("%s_%d", name, k))
			}
		} else {
			names = append(names, name)
		}
	}
	return strings.Join(names, delim)
}

// NumColumnsTransformed derives the post-transform column count from the
// compiled spec and published artifacts alone. The orchestrator calls it on
// every invocation instead of trusting any cached value, because the width
// depends on the data, not the spec text.
func NumColumnsTransformed(c *spec.Compiled, ix *colindex.Index, store *metastore.Store) (int, error) {
	ncols := ix.NumColumns()
	if c.Dummycode == nil || len(c.Dummycode.Attrs) == 0 {
		return ncols, nil
	}
	total := ncols
	for _, col := range c.Dummycode.Attrs {
		w, err := resolveWidthFromArtifacts(store, col, ix.Name(col))
		if err != nil {
			return 0, err
		}
		total += w - 1
	}
	return total, nil
}
