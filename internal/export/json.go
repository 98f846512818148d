package export

import (
	"encoding/json"
	"io"

	"github.com/san-kum/ctlkit/internal/evidence"
)

// Document bundles a recorded run for tools that want one JSON file
// instead of the metadata and CSV pair.
type Document struct {
	*evidence.RunMetadata
	Times []float64   `json:"times"`
	R     [][]float64 `json:"r"`
	Y     [][]float64 `json:"y"`
	U     [][]float64 `json:"u"`
}

func WriteJSON(w io.Writer, meta *evidence.RunMetadata, tr *evidence.Trace) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{
		RunMetadata: meta,
		Times:       tr.Times,
		R:           tr.R,
		Y:           tr.Y,
		U:           tr.U,
	})
}
