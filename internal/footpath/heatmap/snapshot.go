package heatmap

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Snapshot is an immutable copy of a heatmap grid.
type Snapshot struct {
	Cols     int
	Rows     int
	CellSize int
	Cells    []float64
	TakenAt  time.Time
}

// At returns the intensity of the cell at column x, row y.
func (s Snapshot) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= s.Cols || y >= s.Rows {
		return 0
	}
	return s.Cells[y*s.Cols+x]
}

// Max returns the largest cell value, or 0 for an empty snapshot.
func (s Snapshot) Max() float64 {
	if len(s.Cells) == 0 {
		return 0
	}
	return floats.Max(s.Cells)
}

// Hotspots extracts hotspots from the snapshot.
func (s Snapshot) Hotspots(threshold float64, minArea int) []Hotspot {
	return findHotspots(s.Cells, s.Cols, s.Rows, s.CellSize, threshold, minArea)
}

// SparsePoint is one non-negligible cell in a sparse export.
type SparsePoint struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Value float64 `json:"value"`
}

// SparseExport is a JSON-friendly form of a snapshot that keeps only cells
// whose normalized value is at least the export threshold.
type SparseExport struct {
	Cols     int           `json:"cols"`
	Rows     int           `json:"rows"`
	CellSize int           `json:"cell_size"`
	MaxValue float64       `json:"max_value"`
	Points   []SparsePoint `json:"points"`
}

// Sparse exports cells with normalized value >= minValue. Values in the
// export are normalized to [0, 1].
func (s Snapshot) Sparse(minValue float64) SparseExport {
	out := SparseExport{Cols: s.Cols, Rows: s.Rows, CellSize: s.CellSize, MaxValue: s.Max()}
	if out.MaxValue <= 0 {
		return out
	}
	for i, v := range s.Cells {
		n := v / out.MaxValue
		if n >= minValue {
			out.Points = append(out.Points, SparsePoint{X: i % s.Cols, Y: i / s.Cols, Value: n})
		}
	}
	return out
}

// EncodeSnapshot compresses the snapshot using gob encoding and gzip compression.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(s); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot decompresses and decodes a snapshot from a gob+gzip blob.
func DecodeSnapshot(blob []byte) (Snapshot, error) {
	if len(blob) == 0 {
		return Snapshot{}, fmt.Errorf("empty heatmap blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var s Snapshot
	if err := gob.NewDecoder(gz).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode heatmap snapshot: %w", err)
	}
	if s.Cols*s.Rows != len(s.Cells) {
		return Snapshot{}, fmt.Errorf("heatmap snapshot is %dx%d but has %d cells", s.Cols, s.Rows, len(s.Cells))
	}
	return s, nil
}
