package spec

import (
	"encoding/json"
	"fmt"

	"tfengine/internal/colindex"
)

// ImputeSpec is the compiled, id-keyed imputation request list. The three
// slices are parallel: Attrs[i] is imputed with Methods[i], and Constants[i]
// holds the replacement for the constant method.
type ImputeSpec struct {
	Attrs     []int          `json:"attrs"`
	Methods   []ImputeMethod `json:"methods"`
	Constants []string       `json:"constants"`
}

// RecodeSpec lists the columns to recode.
type RecodeSpec struct {
	Attrs []int `json:"attrs"`
}

// BinSpec is the compiled binning request list; slices are parallel.
type BinSpec struct {
	Attrs   []int       `json:"attrs"`
	Methods []BinMethod `json:"methods"`
	NumBins []int       `json:"numbins"`
}

// DummycodeSpec lists the columns to one-hot expand.
type DummycodeSpec struct {
	Attrs []int `json:"attrs"`
}

// ScaleSpec is the compiled scaling request list; slices are parallel.
type ScaleSpec struct {
	Attrs   []int         `json:"attrs"`
	Methods []ScaleMethod `json:"methods"`
}

// Compiled is the id-keyed specification. It is immutable after compilation
// and persisted as spec.json in the metadata directory, so apply-only runs
// reconstruct the full transformation from durable state alone.
type Compiled struct {
	Impute    *ImputeSpec    `json:"impute,omitempty"`
	Recode    *RecodeSpec    `json:"recode,omitempty"`
	Bin       *BinSpec       `json:"bin,omitempty"`
	Dummycode *DummycodeSpec `json:"dummycode,omitempty"`
	Scale     *ScaleSpec     `json:"scale,omitempty"`
}

// Compile translates a name-keyed document into the id-keyed form using the
// resolved column index. Every referenced name must exist in the index and
// every method string must map to a supported tag; violations surface as
// UnknownColumnError and UnsupportedMethodError respectively. Equi-height
// binning is parsed but always rejected.
func Compile(doc *Document, ix *colindex.Index) (*Compiled, error) {
	out := &Compiled{}

	lookup := func(category, name string) (int, error) {
		id, ok := ix.ID(colindex.CleanName(name))
		if !ok {
			return 0, &UnknownColumnError{Category: category, Name: name}
		}
		return id, nil
	}

	if len(doc.Impute) > 0 {
		mv := &ImputeSpec{}
		for _, e := range doc.Impute {
			id, err := lookup("impute", e.Name)
			if err != nil {
				return nil, err
			}
			var m ImputeMethod
			switch e.Method {
			case MethodGlobalMean:
				m = ImputeMean
			case MethodGlobalMode:
				m = ImputeMode
			case MethodConstant:
				m = ImputeConstant
			default:
				return nil, &UnsupportedMethodError{Category: "impute", Method: e.Method}
			}
			mv.Attrs = append(mv.Attrs, id)
			mv.Methods = append(mv.Methods, m)
			mv.Constants = append(mv.Constants, e.Value)
		}
		out.Impute = mv
	}

	if len(doc.Recode) > 0 {
		rc := &RecodeSpec{}
		for _, name := range doc.Recode {
			id, err := lookup("recode", name)
			if err != nil {
				return nil, err
			}
			rc.Attrs = append(rc.Attrs, id)
		}
		out.Recode = rc
	}

	if len(doc.Bin) > 0 {
		bn := &BinSpec{}
		for _, e := range doc.Bin {
			id, err := lookup("bin", e.Name)
			if err != nil {
				return nil, err
			}
			switch e.Method {
			case MethodEquiWidth:
				// supported
			case MethodEquiHeight:
				// Recognized but deliberately unimplemented; never degrade
				// silently to equi-width.
				return nil, &UnsupportedMethodError{Category: "bin", Method: e.Method}
			default:
				return nil, &UnsupportedMethodError{Category: "bin", Method: e.Method}
			}
			if e.NumBins < 1 {
				return nil, fmt.Errorf("bin spec for column %q: numbins must be >= 1, got %d", e.Name, e.NumBins)
			}
			bn.Attrs = append(bn.Attrs, id)
			bn.Methods = append(bn.Methods, BinEquiWidth)
			bn.NumBins = append(bn.NumBins, e.NumBins)
		}
		out.Bin = bn
	}

	if len(doc.Dummycode) > 0 {
		dc := &DummycodeSpec{}
		for _, name := range doc.Dummycode {
			id, err := lookup("dummycode", name)
			if err != nil {
				return nil, err
			}
			dc.Attrs = append(dc.Attrs, id)
		}
		out.Dummycode = dc
	}

	if len(doc.Scale) > 0 {
		sc := &ScaleSpec{}
		for _, e := range doc.Scale {
			id, err := lookup("scale", e.Name)
			if err != nil {
				return nil, err
			}
			var m ScaleMethod
			switch e.Method {
			case MethodMeanSubtraction:
				m = ScaleMeanSubtraction
			case MethodZScore:
				m = ScaleZScore
			default:
				return nil, &UnsupportedMethodError{Category: "scale", Method: e.Method}
			}
			sc.Attrs = append(sc.Attrs, id)
			sc.Methods = append(sc.Methods, m)
		}
		out.Scale = sc
	}

	return out, nil
}

// Marshal serializes the compiled spec for durable storage.
func (c *Compiled) Marshal() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// UnmarshalCompiled reconstructs a compiled spec from its serialized form.
func UnmarshalCompiled(raw []byte) (*Compiled, error) {
	var c Compiled
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse compiled spec: %w", err)
	}
	return &c, nil
}
