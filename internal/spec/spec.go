// Package spec models the declarative transformation specification and its
// compilation from a name-keyed document into an id-keyed form.
//
// Two representations exist on purpose: the Document is what users author
// (column names, method strings), while the Compiled form addresses columns
// by their 1-based ids and carries closed method tags. The compiled form is
// persisted verbatim into the metadata directory so a later apply-only run
// never needs the original document.
package spec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ImputeEntry requests missing-value imputation for one named column.
type ImputeEntry struct {
	Name   string `json:"name" yaml:"name"`
	Method string `json:"method" yaml:"method"`
	// Value is the replacement used by the "constant" method; ignored
	// otherwise.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// BinEntry requests binning for one named column.
type BinEntry struct {
	Name    string `json:"name" yaml:"name"`
	Method  string `json:"method" yaml:"method"`
	NumBins int    `json:"numbins" yaml:"numbins"`
}

// ScaleEntry requests scaling for one named column.
type ScaleEntry struct {
	Name   string `json:"name" yaml:"name"`
	Method string `json:"method" yaml:"method"`
}

// Document is the name-keyed specification as authored by the user. Recode
// and dummycode take bare column-name lists; the other categories carry a
// method per column.
type Document struct {
	Impute    []ImputeEntry `json:"impute,omitempty" yaml:"impute,omitempty"`
	Recode    []string      `json:"recode,omitempty" yaml:"recode,omitempty"`
	Bin       []BinEntry    `json:"bin,omitempty" yaml:"bin,omitempty"`
	Dummycode []string      `json:"dummycode,omitempty" yaml:"dummycode,omitempty"`
	Scale     []ScaleEntry  `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// LoadDocument reads a spec document from path. Files ending in .yml or
// .yaml are parsed as YAML; everything else is parsed as JSON.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", path, err)
	}
	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse spec %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse spec %s: %w", path, err)
		}
	}
	return &doc, nil
}

// Empty reports whether the document requests no transformation at all.
func (d *Document) Empty() bool {
	return len(d.Impute) == 0 && len(d.Recode) == 0 && len(d.Bin) == 0 &&
		len(d.Dummycode) == 0 && len(d.Scale) == 0
}
