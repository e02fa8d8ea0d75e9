package agent

import (
	"fmt"
	"strconv"
	"strings"

	"tfengine/internal/colindex"
	"tfengine/internal/metastore"
	"tfengine/internal/spec"
)

// RecodeAgent maps categorical strings to 1-based integer codes. The code
// table is built during fit in encounter order and is authoritative at apply
// time: a category without a code is an error, never a silent passthrough.
type RecodeAgent struct {
	ix *colindex.Index
	na *NASet

	attrs []int

	// fit partials: per attr, encounter-ordered category lists
	order [][]string
	seen  []map[string]struct{}

	// finalized / loaded
	codes   []map[string]int64
	decodes []map[int64]string
}

// NewRecodeAgent builds a fit-side agent from the compiled spec. Returns nil
// when the spec requests no recoding.
func NewRecodeAgent(c *spec.Compiled, ix *colindex.Index, na *NASet) *RecodeAgent {
	if c.Recode == nil || len(c.Recode.Attrs) == 0 {
		return nil
	}
	n := len(c.Recode.Attrs)
	a := &RecodeAgent{
		ix:    ix,
		na:    na,
		attrs: c.Recode.Attrs,
		order: make([][]string, n),
		seen:  make([]map[string]struct{}, n),
	}
	for i := range a.seen {
		a.seen[i] = map[string]struct{}{}
	}
	return a
}

// LoadRecodeAgent builds an apply-side agent from published artifacts.
func LoadRecodeAgent(c *spec.Compiled, ix *colindex.Index, na *NASet, store *metastore.Store) (*RecodeAgent, error) {
	a := NewRecodeAgent(c, ix, na)
	if a == nil {
		return nil, nil
	}
	if err := a.Load(store); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *RecodeAgent) Name() string { return "recode" }

func (a *RecodeAgent) Prepare(row []string) error {
	for i, col := range a.attrs {
		tok := row[col-1]
		if a.na.IsNA(tok) {
			continue
		}
		if _, ok := a.seen[i][tok]; !ok {
			a.seen[i][tok] = struct{}{}
			a.order[i] = append(a.order[i], tok)
		}
	}
	return nil
}

// Merge folds another partition's category tables into this one. Callers
// merge partials in ascending partition index, so when two partitions both
// introduce a category the lower partition index assigns the earlier code.
func (a *RecodeAgent) Merge(other Agent) error {
	o, ok := other.(*RecodeAgent)
	if !ok {
		return mergeTypeError(a, other)
	}
	for i := range a.attrs {
		for _, tok := range o.order[i] {
			if _, ok := a.seen[i][tok]; !ok {
				a.seen[i][tok] = struct{}{}
				a.order[i] = append(a.order[i], tok)
			}
		}
	}
	return nil
}

// finalize assigns 1-based codes in encounter order.
func (a *RecodeAgent) finalize() error {
	a.codes = make([]map[string]int64, len(a.attrs))
	a.decodes = make([]map[int64]string, len(a.attrs))
	for i, col := range a.attrs {
		if len(a.order[i]) == 0 {
			return fmt.Errorf("recode: column %q has no non-missing categories", a.ix.Name(col))
		}
		a.codes[i] = make(map[string]int64, len(a.order[i]))
		a.decodes[i] = make(map[int64]string, len(a.order[i]))
		for j, tok := range a.order[i] {
			code := int64(j + 1)
			a.codes[i][tok] = code
			a.decodes[i][code] = tok
		}
	}
	return nil
}

func (a *RecodeAgent) Persist(st *metastore.Staging) error {
	if err := a.finalize(); err != nil {
		return err
	}
	for i, col := range a.attrs {
		name := a.ix.Name(col)
		var sb strings.Builder
		for j, tok := range a.order[i] {
			sb.WriteString(tok)
			sb.WriteString(metastore.Sep)
			sb.WriteString(strconv.Itoa(j + 1))
			sb.WriteByte('\n')
		}
		if err := st.WriteFile(metastore.RecodeMapPath(name), []byte(sb.String())); err != nil {
			return err
		}
		nd := strconv.Itoa(len(a.order[i])) + "\n"
		if err := st.WriteFile(metastore.NDistinctPath(name), []byte(nd)); err != nil {
			return err
		}
	}
	return nil
}

func (a *RecodeAgent) Load(store *metastore.Store) error {
	a.codes = make([]map[string]int64, len(a.attrs))
	a.decodes = make([]map[int64]string, len(a.attrs))
	for i, col := range a.attrs {
		name := a.ix.Name(col)
		rel := metastore.RecodeMapPath(name)
		raw, err := store.ReadFile(rel)
		if err != nil {
			if store.Exists(rel) {
				return err
			}
			return &metastore.MissingMetadataError{ColumnID: col, ColumnName: name, Artifact: rel}
		}
		a.codes[i] = map[string]int64{}
		a.decodes[i] = map[int64]string{}
		for _, line := range strings.Split(string(raw), "\n") {
			if line == "" {
				continue
			}
			cut := strings.LastIndex(line, metastore.Sep)
			if cut < 0 {
				return &metastore.CorruptMetadataError{Artifact: rel}
			}
			code, err := strconv.ParseInt(line[cut+1:], 10, 64)
			if err != nil {
				return &metastore.CorruptMetadataError{Artifact: rel}
			}
			a.codes[i][line[:cut]] = code
			a.decodes[i][code] = line[:cut]
		}
	}
	return nil
}

func (a *RecodeAgent) Apply(row []string) ([]string, error) {
	for i, col := range a.attrs {
		tok := row[col-1]
		code, ok := a.codes[i][tok]
		if !ok {
			return nil, &UnknownCategoryError{Column: a.ix.Name(col), Category: tok}
		}
		row[col-1] = strconv.FormatInt(code, 10)
	}
	return row, nil
}

// Decode recovers the original category string for a code on the i-th
// recoded column. It is the inverse of the mapping Apply uses.
func (a *RecodeAgent) Decode(i int, code int64) (string, bool) {
	tok, ok := a.decodes[i][code]
	return tok, ok
}

// NumDistinct returns the distinct-category count for the i-th recoded
// column.
func (a *RecodeAgent) NumDistinct(i int) int { return len(a.codes[i]) }
