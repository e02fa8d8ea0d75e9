package spec

import "fmt"

// Method tags are closed enumerations, assigned once at compile time. After
// compilation no component dispatches on method strings; agents switch
// exhaustively on these tags.

// ImputeMethod selects the missing-value replacement strategy for a column.
type ImputeMethod uint8

const (
	ImputeMean ImputeMethod = iota + 1
	ImputeMode
	ImputeConstant
)

// BinMethod selects the binning strategy for a column. Equi-height binning is
// recognized at parse time but intentionally rejected by the compiler, so it
// has no tag.
type BinMethod uint8

const (
	BinEquiWidth BinMethod = iota + 1
)

// ScaleMethod selects the scaling strategy for a column.
type ScaleMethod uint8

const (
	ScaleMeanSubtraction ScaleMethod = iota + 1
	ScaleZScore
)

// Method strings accepted in name-keyed spec documents.
const (
	MethodGlobalMean      = "global_mean"
	MethodGlobalMode      = "global_mode"
	MethodConstant        = "constant"
	MethodEquiWidth       = "equi-width"
	MethodEquiHeight      = "equi-height"
	MethodZScore          = "z-score"
	MethodMeanSubtraction = "mean-subtraction"
)

// UnsupportedMethodError reports a method string that cannot be compiled,
// either because it is unknown or because it is recognized but deliberately
// not implemented (equi-height binning).
type UnsupportedMethodError struct {
	Category string // "impute", "bin", "scale"
	Method   string
}

func (e *UnsupportedMethodError) Error() string {
	if e.Method == MethodEquiHeight {
		return fmt.Sprintf("%s method %q is not supported", e.Category, e.Method)
	}
	return fmt.Sprintf("unknown %s method %q", e.Category, e.Method)
}

// UnknownColumnError reports a spec entry referencing a column name that is
// absent from the resolved column index.
type UnknownColumnError struct {
	Category string
	Name     string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("%s spec references unknown column %q", e.Category, e.Name)
}
