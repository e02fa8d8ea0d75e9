// Package agent implements the per-column transformation agents: impute,
// recode, bin, scale, and dummycode.
//
// Every agent follows one of two trajectories. The fit trajectory runs on a
// per-partition instance: Prepare accumulates a strictly local partial
// statistic per row, Merge folds another partition's partial into this one
// (callers merge in ascending partition index so code assignment and mode
// tie-breaks are deterministic), and Persist writes the finalized metadata
// into a metastore staging area. The apply trajectory starts from Load, which
// rebuilds the agent from published artifacts, after which Apply is a pure
// function of the row and may run concurrently from any number of partitions.
package agent

import (
	"fmt"
	"strconv"
	"strings"

	"tfengine/internal/colindex"
	"tfengine/internal/metastore"
)

// NASet is the configurable set of tokens treated as missing values.
type NASet struct {
	set map[string]struct{}
}

// NewNASet builds an NASet from the given markers. The empty token is always
// treated as missing.
func NewNASet(markers []string) *NASet {
	s := &NASet{set: make(map[string]struct{}, len(markers)+1)}
	s.set[""] = struct{}{}
	for _, m := range markers {
		s.set[m] = struct{}{}
	}
	return s
}

// IsNA reports whether tok is a missing-value marker.
func (s *NASet) IsNA(tok string) bool {
	_, ok := s.set[tok]
	return ok
}

// UnknownCategoryError reports a category observed at apply time that was
// never seen during fit, so no code exists for it.
type UnknownCategoryError struct {
	Column   string
	Category string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("column %q: category %q was not seen during fit", e.Column, e.Category)
}

// DivideByZeroError reports a z-score transformation over a column whose
// standard deviation is zero.
type DivideByZeroError struct {
	Column string
}

func (e *DivideByZeroError) Error() string {
	return fmt.Sprintf("column %q: z-score requires non-zero standard deviation", e.Column)
}

// ValueError reports a malformed token for the requested transformation,
// e.g. a non-numeric value in a binned or scaled column.
type ValueError struct {
	Column string
	Token  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("column %q: bad value %q: %s", e.Column, e.Token, e.Reason)
}

// Agent is the common contract shared by the transformation agents.
type Agent interface {
	// Name identifies the agent in logs and errors.
	Name() string
	// Prepare accumulates one row into this partition's partial statistic.
	Prepare(row []string) error
	// Merge folds another partition's partial into this one. The argument
	// must be an instance of the same agent type built from the same spec.
	Merge(other Agent) error
	// Persist finalizes the partial statistic and writes the per-column
	// artifacts into the staging area.
	Persist(st *metastore.Staging) error
	// Load rebuilds apply-side state from published artifacts.
	Load(store *metastore.Store) error
	// Apply transforms the row's relevant columns using loaded metadata
	// only. It must be side-effect-free with respect to the agent and safe
	// for concurrent use.
	Apply(row []string) ([]string, error)
}

// formatValue renders a computed float the same way on every run, so a
// fit+apply run and a later apply-only run over its metadata stay
// byte-identical.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloatToken(ix *colindex.Index, col int, tok string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
	if err != nil {
		return 0, &ValueError{Column: ix.Name(col), Token: tok, Reason: "not numeric"}
	}
	return v, nil
}

func mergeTypeError(a Agent, other Agent) error {
	return fmt.Errorf("%s: cannot merge partial of type %T", a.Name(), other)
}
