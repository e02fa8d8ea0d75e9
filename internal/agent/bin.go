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

// BinAgent discretizes numeric columns into equi-width bins derived from the
// observed min/max. Equi-height binning is rejected upstream by the spec
// compiler and never reaches this agent.
type BinAgent struct {
	ix *colindex.Index
	na *NASet

	attrs   []int
	numBins []int

	// fit partials
	min  []float64
	max  []float64
	seen []bool

	loaded bool
}

// NewBinAgent builds a fit-side agent from the compiled spec. Returns nil
// when the spec requests no binning.
func NewBinAgent(c *spec.Compiled, ix *colindex.Index, na *NASet) *BinAgent {
	if c.Bin == nil || len(c.Bin.Attrs) == 0 {
		return nil
	}
	n := len(c.Bin.Attrs)
	a := &BinAgent{
		ix:      ix,
		na:      na,
		attrs:   c.Bin.Attrs,
		numBins: c.Bin.NumBins,
		min:     make([]float64, n),
		max:     make([]float64, n),
		seen:    make([]bool, n),
	}
	for i := range a.min {
		a.min[i] = math.Inf(1)
		a.max[i] = math.Inf(-1)
	}
	return a
}

// LoadBinAgent builds an apply-side agent from published artifacts.
func LoadBinAgent(c *spec.Compiled, ix *colindex.Index, na *NASet, store *metastore.Store) (*BinAgent, error) {
	a := NewBinAgent(c, ix, na)
	if a == nil {
		return nil, nil
	}
	if err := a.Load(store); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *BinAgent) Name() string { return "bin" }

func (a *BinAgent) Prepare(row []string) error {
	for i, col := range a.attrs {
		tok := row[col-1]
		if a.na.IsNA(tok) {
			continue
		}
		v, err := parseFloatToken(a.ix, col, tok)
		if err != nil {
			return err
		}
		if v < a.min[i] {
			a.min[i] = v
		}
		if v > a.max[i] {
			a.max[i] = v
		}
		a.seen[i] = true
	}
	return nil
}

func (a *BinAgent) Merge(other Agent) error {
	o, ok := other.(*BinAgent)
	if !ok {
		return mergeTypeError(a, other)
	}
	for i := range a.attrs {
		if o.min[i] < a.min[i] {
			a.min[i] = o.min[i]
		}
		if o.max[i] > a.max[i] {
			a.max[i] = o.max[i]
		}
		a.seen[i] = a.seen[i] || o.seen[i]
	}
	return nil
}

func (a *BinAgent) Persist(st *metastore.Staging) error {
	for i, col := range a.attrs {
		if !a.seen[i] {
			return fmt.Errorf("bin: column %q has no non-missing numeric values", a.ix.Name(col))
		}
		content := fmt.Sprintf("%d%s%s%s%s%s%d\n",
			col, metastore.Sep,
			formatValue(a.min[i]), metastore.Sep,
			formatValue(a.max[i]), metastore.Sep,
			a.numBins[i])
		if err := st.WriteFile(metastore.BinPath(a.ix.Name(col)), []byte(content)); err != nil {
			return err
		}
	}
	a.loaded = true
	return nil
}

func (a *BinAgent) Load(store *metastore.Store) error {
	for i, col := range a.attrs {
		name := a.ix.Name(col)
		rel := metastore.BinPath(name)
		raw, err := store.ReadFile(rel)
		if err != nil {
			if store.Exists(rel) {
				return err
			}
			return &metastore.MissingMetadataError{ColumnID: col, ColumnName: name, Artifact: rel}
		}
		fields := strings.Split(strings.TrimRight(string(raw), "\n"), metastore.Sep)
		if len(fields) != 4 {
			return &metastore.CorruptMetadataError{Artifact: rel}
		}
		mn, err1 := strconv.ParseFloat(fields[1], 64)
		mx, err2 := strconv.ParseFloat(fields[2], 64)
		nb, err3 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil || err3 != nil || nb < 1 {
			return &metastore.CorruptMetadataError{Artifact: rel}
		}
		a.min[i], a.max[i], a.numBins[i], a.seen[i] = mn, mx, nb, true
	}
	a.loaded = true
	return nil
}

func (a *BinAgent) Apply(row []string) ([]string, error) {
	for i, col := range a.attrs {
		tok := row[col-1]
		if a.na.IsNA(tok) {
			return nil, &ValueError{Column: a.ix.Name(col), Token: tok, Reason: "missing value in binned column (impute it first)"}
		}
		v, err := parseFloatToken(a.ix, col, tok)
		if err != nil {
			return nil, err
		}
		row[col-1] = strconv.Itoa(a.binID(i, v))
	}
	return row, nil
}

// binID maps a value into [1, numBins]. The bin width derives from the
// observed min/max; the observed max lands in the last bin via the clamp.
func (a *BinAgent) binID(i int, v float64) int {
	nb := a.numBins[i]
	span := a.max[i] - a.min[i]
	if span <= 0 {
		return 1
	}
	id := int(math.Floor((v-a.min[i])/(span/float64(nb)))) + 1
	if id < 1 {
		id = 1
	}
	if id > nb {
		id = nb
	}
	return id
}

// NumBins returns the bin count for the i-th binned column.
func (a *BinAgent) NumBins(i int) int { return a.numBins[i] }
