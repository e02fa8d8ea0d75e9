package agent

import (
	"fmt"
	"strings"

	"tfengine/internal/colindex"
	"tfengine/internal/metastore"
	"tfengine/internal/spec"
)

// ImputeAgent replaces missing-value tokens with a per-column scalar derived
// from the data (global mean or mode) or supplied in the spec (constant).
type ImputeAgent struct {
	ix *colindex.Index
	na *NASet

	attrs     []int
	methods   []spec.ImputeMethod
	constants []string

	// fit partials, one slot per attr
	sum   []float64
	count []int64
	freq  []map[string]int64
	order [][]string // encounter order of mode keys, for deterministic argmax

	// finalized / loaded
	replacement []string
}

// NewImputeAgent builds a fit-side agent from the compiled spec. Returns nil
// when the spec requests no imputation.
func NewImputeAgent(c *spec.Compiled, ix *colindex.Index, na *NASet) *ImputeAgent {
	if c.Impute == nil || len(c.Impute.Attrs) == 0 {
		return nil
	}
	n := len(c.Impute.Attrs)
	a := &ImputeAgent{
		ix:        ix,
		na:        na,
		attrs:     c.Impute.Attrs,
		methods:   c.Impute.Methods,
		constants: c.Impute.Constants,
		sum:       make([]float64, n),
		count:     make([]int64, n),
		freq:      make([]map[string]int64, n),
		order:     make([][]string, n),
	}
	for i := range a.freq {
		a.freq[i] = map[string]int64{}
	}
	return a
}

// LoadImputeAgent builds an apply-side agent from published artifacts.
func LoadImputeAgent(c *spec.Compiled, ix *colindex.Index, na *NASet, store *metastore.Store) (*ImputeAgent, error) {
	a := NewImputeAgent(c, ix, na)
	if a == nil {
		return nil, nil
	}
	if err := a.Load(store); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ImputeAgent) Name() string { return "impute" }

func (a *ImputeAgent) Prepare(row []string) error {
	for i, col := range a.attrs {
		tok := row[col-1]
		if a.na.IsNA(tok) {
			continue
		}
		switch a.methods[i] {
		case spec.ImputeMean:
			v, err := parseFloatToken(a.ix, col, tok)
			if err != nil {
				return err
			}
			a.sum[i] += v
			a.count[i]++
		case spec.ImputeMode:
			if _, seen := a.freq[i][tok]; !seen {
				a.order[i] = append(a.order[i], tok)
			}
			a.freq[i][tok]++
		case spec.ImputeConstant:
			// nothing to accumulate
		}
	}
	return nil
}

func (a *ImputeAgent) Merge(other Agent) error {
	o, ok := other.(*ImputeAgent)
	if !ok {
		return mergeTypeError(a, other)
	}
	for i := range a.attrs {
		a.sum[i] += o.sum[i]
		a.count[i] += o.count[i]
		for _, key := range o.order[i] {
			if _, seen := a.freq[i][key]; !seen {
				a.order[i] = append(a.order[i], key)
			}
			a.freq[i][key] += o.freq[i][key]
		}
	}
	return nil
}

// finalize computes the replacement scalar for every column.
func (a *ImputeAgent) finalize() error {
	a.replacement = make([]string, len(a.attrs))
	for i, col := range a.attrs {
		switch a.methods[i] {
		case spec.ImputeMean:
			if a.count[i] == 0 {
				return fmt.Errorf("impute: column %q has no non-missing numeric values to compute a mean", a.ix.Name(col))
			}
			a.replacement[i] = formatValue(a.sum[i] / float64(a.count[i]))
		case spec.ImputeMode:
			// Argmax over the frequency table; iteration follows encounter
			// order so ties resolve to the first-encountered key across
			// partitions merged in ascending index.
			var best string
			var bestN int64 = -1
			for _, key := range a.order[i] {
				if n := a.freq[i][key]; n > bestN {
					best, bestN = key, n
				}
			}
			if bestN < 0 {
				return fmt.Errorf("impute: column %q has no non-missing values to compute a mode", a.ix.Name(col))
			}
			a.replacement[i] = best
		case spec.ImputeConstant:
			a.replacement[i] = a.constants[i]
		}
	}
	return nil
}

func (a *ImputeAgent) Persist(st *metastore.Staging) error {
	if err := a.finalize(); err != nil {
		return err
	}
	for i, col := range a.attrs {
		content := fmt.Sprintf("%d%s%s\n", a.methods[i], metastore.Sep, a.replacement[i])
		if err := st.WriteFile(metastore.ImputePath(a.ix.Name(col)), []byte(content)); err != nil {
			return err
		}
	}
	return nil
}

func (a *ImputeAgent) Load(store *metastore.Store) error {
	a.replacement = make([]string, len(a.attrs))
	for i, col := range a.attrs {
		rel := metastore.ImputePath(a.ix.Name(col))
		raw, err := store.ReadFile(rel)
		if err != nil {
			if store.Exists(rel) {
				return err
			}
			return &metastore.MissingMetadataError{ColumnID: col, ColumnName: a.ix.Name(col), Artifact: rel}
		}
		parts := strings.SplitN(strings.TrimRight(string(raw), "\n"), metastore.Sep, 2)
		if len(parts) != 2 {
			return &metastore.CorruptMetadataError{Artifact: rel}
		}
		a.replacement[i] = parts[1]
	}
	return nil
}

func (a *ImputeAgent) Apply(row []string) ([]string, error) {
	for i, col := range a.attrs {
		if a.na.IsNA(row[col-1]) {
			row[col-1] = a.replacement[i]
		}
	}
	return row, nil
}

// Replacement exposes the finalized scalar for the i-th imputed column.
func (a *ImputeAgent) Replacement(i int) string { return a.replacement[i] }
