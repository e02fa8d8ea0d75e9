package agent

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"tfengine/internal/colindex"
	"tfengine/internal/metastore"
	"tfengine/internal/spec"
)

// ScaleAgent centers numeric columns (mean-subtraction) or standardizes them
// (z-score) using mean/stdev computed during fit. It runs after impute,
// recode, and bin but before dummycode, so its columns are still addressed by
// their original ids.
type ScaleAgent struct {
	ix *colindex.Index
	na *NASet

	attrs   []int
	methods []spec.ScaleMethod

	// fit partials
	sum   []float64
	sumSq []float64
	count []int64

	// finalized / loaded
	mean  []float64
	stdev []float64
}

// NewScaleAgent builds a fit-side agent from the compiled spec. Returns nil
// when the spec requests no scaling.
func NewScaleAgent(c *spec.Compiled, ix *colindex.Index, na *NASet) *ScaleAgent {
	if c.Scale == nil || len(c.Scale.Attrs) == 0 {
		return nil
	}
	n := len(c.Scale.Attrs)
	return &ScaleAgent{
		ix:      ix,
		na:      na,
		attrs:   c.Scale.Attrs,
		methods: c.Scale.Methods,
		sum:     make([]float64, n),
		sumSq:   make([]float64, n),
		count:   make([]int64, n),
	}
}

// LoadScaleAgent builds an apply-side agent from published artifacts.
func LoadScaleAgent(c *spec.Compiled, ix *colindex.Index, na *NASet, store *metastore.Store) (*ScaleAgent, error) {
	a := NewScaleAgent(c, ix, na)
	if a == nil {
		return nil, nil
	}
	if err := a.Load(store); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ScaleAgent) Name() string { return "scale" }

func (a *ScaleAgent) Prepare(row []string) error {
	for i, col := range a.attrs {
		tok := row[col-1]
		if a.na.IsNA(tok) {
			continue
		}
		v, err := parseFloatToken(a.ix, col, tok)
		if err != nil {
			return err
		}
		a.sum[i] += v
		a.sumSq[i] += v * v
		a.count[i]++
	}
	return nil
}

func (a *ScaleAgent) Merge(other Agent) error {
	o, ok := other.(*ScaleAgent)
	if !ok {
		return mergeTypeError(a, other)
	}
	for i := range a.attrs {
		a.sum[i] += o.sum[i]
		a.sumSq[i] += o.sumSq[i]
		a.count[i] += o.count[i]
	}
	return nil
}

func (a *ScaleAgent) finalize() error {
	a.mean = make([]float64, len(a.attrs))
	a.stdev = make([]float64, len(a.attrs))
	for i, col := range a.attrs {
		if a.count[i] == 0 {
			return fmt.Errorf("scale: column %q has no non-missing numeric values", a.ix.Name(col))
		}
		n := float64(a.count[i])
		mean := a.sum[i] / n
		variance := a.sumSq[i]/n - mean*mean
		if variance < 0 {
			variance = 0 // numeric noise
		}
		a.mean[i] = mean
		a.stdev[i] = math.Sqrt(variance)
	}
	return nil
}

func (a *ScaleAgent) Persist(st *metastore.Staging) error {
	if err := a.finalize(); err != nil {
		return err
	}
	for i, col := range a.attrs {
		content := fmt.Sprintf("%d%s%s%s%s\n",
			a.methods[i], metastore.Sep,
			formatValue(a.mean[i]), metastore.Sep,
			formatValue(a.stdev[i]))
		if err := st.WriteFile(metastore.ScalePath(a.ix.Name(col)), []byte(content)); err != nil {
			return err
		}
	}
	return nil
}

func (a *ScaleAgent) Load(store *metastore.Store) error {
	a.mean = make([]float64, len(a.attrs))
	a.stdev = make([]float64, len(a.attrs))
	for i, col := range a.attrs {
		name := a.ix.Name(col)
		rel := metastore.ScalePath(name)
		raw, err := store.ReadFile(rel)
		if err != nil {
			if store.Exists(rel) {
				return err
			}
			return &metastore.MissingMetadataError{ColumnID: col, ColumnName: name, Artifact: rel}
		}
		fields := strings.Split(strings.TrimRight(string(raw), "\n"), metastore.Sep)
		if len(fields) != 3 {
			return &metastore.CorruptMetadataError{Artifact: rel}
		}
		mean, err1 := strconv.ParseFloat(fields[1], 64)
		sd, err2 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil {
			return &metastore.CorruptMetadataError{Artifact: rel}
		}
		a.mean[i], a.stdev[i] = mean, sd
	}
	return nil
}

func (a *ScaleAgent) Apply(row []string) ([]string, error) {
	for i, col := range a.attrs {
		tok := row[col-1]
		v, err := parseFloatToken(a.ix, col, tok)
		if err != nil {
			return nil, err
		}
		switch a.methods[i] {
		case spec.ScaleMeanSubtraction:
			row[col-1] = formatValue(v - a.mean[i])
		case spec.ScaleZScore:
			if a.stdev[i] == 0 {
				return nil, &DivideByZeroError{Column: a.ix.Name(col)}
			}
			row[col-1] = formatValue((v - a.mean[i]) / a.stdev[i])
		}
	}
	return row, nil
}

// Moments exposes the finalized mean and stdev for the i-th scaled column.
func (a *ScaleAgent) Moments(i int) (mean, stdev float64) { return a.mean[i], a.stdev[i] }
