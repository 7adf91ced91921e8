package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/footpath.report/internal/db"
	"github.com/banshee-data/footpath.report/internal/footpath/heatmap"
)

// Export is the JSON form of a report.
type Export struct {
	CameraID    string                 `json:"camera_id"`
	WindowStart time.Time              `json:"window_start"`
	WindowEnd   time.Time              `json:"window_end"`
	Zones       []db.AnalyticsSnapshot `json:"zones"`
	Heatmap     heatmap.SparseExport   `json:"heatmap"`
	Hotspots    []heatmap.Hotspot      `json:"hotspots"`
	Patterns    []db.PatternRecord     `json:"patterns"`
}

// WriteJSON writes the report as indented JSON. The heatmap keeps only cells
// whose normalized value is at least minValue.
func WriteJSON(w io.Writer, rep Report, minValue float64) error {
	out := Export{
		CameraID:    rep.CameraID,
		WindowStart: rep.Window.WindowStart,
		WindowEnd:   rep.Window.WindowEnd,
		Zones:       rep.Zones,
		Heatmap:     rep.Grid.Sparse(minValue),
		Hotspots:    rep.Hotspots,
		Patterns:    rep.Patterns,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
