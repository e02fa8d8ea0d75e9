package matrix

import (
	"encoding/json"
	"io"
)

// MTD is the JSON sidecar describing a persisted matrix file.
type MTD struct {
	Rows   int64  `json:"rows"`
	Cols   int64  `json:"cols"`
	NNZ    int64  `json:"nnz"`
	Format string `json:"format"`
}

// WriteMTD writes the sidecar for b. format is "text" for IJV output.
func WriteMTD(w io.Writer, b Block, format string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(MTD{
		Rows:   int64(b.NumRows()),
		Cols:   int64(b.NumCols()),
		NNZ:    b.NNZ(),
		Format: format,
	})
}
