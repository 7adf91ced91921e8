// Package report renders the persisted analytics of a camera as an HTML page
// (go-echarts) or a PNG heatmap (gonum/plot).
package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/footpath.report/internal/db"
	"github.com/banshee-data/footpath.report/internal/footpath/heatmap"
)

// Store is the read side of the analytics database used by the report.
type Store interface {
	LatestSnapshot(cameraID string) (db.AnalyticsSnapshot, error)
	Snapshots(cameraID string, limit int) ([]db.AnalyticsSnapshot, error)
	Patterns(cameraID string, limit int) ([]db.PatternRecord, error)
}

var _ Store = (*db.DB)(nil)

// ErrNoAnalytics is returned by Load when the camera has no persisted heatmap.
var ErrNoAnalytics = errors.New("no analytics with a heatmap")

// Report is the latest analytics window of one camera.
type Report struct {
	CameraID string
	// Window is the record of the window that carries the heatmap.
	Window db.AnalyticsSnapshot
	// Zones holds every zone record of the same window.
	Zones    []db.AnalyticsSnapshot
	Grid     heatmap.Snapshot
	Hotspots []heatmap.Hotspot
	Patterns []db.PatternRecord
}

// Load assembles the latest report for cameraID with up to patternLimit of
// the most recent patterns.
func Load(store Store, cameraID string, patternLimit int) (Report, error) {
	latest, err := store.LatestSnapshot(cameraID)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, fmt.Errorf("%w for camera %s", ErrNoAnalytics, cameraID)
	}
	if err != nil {
		return Report{}, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	rep := Report{CameraID: cameraID, Window: latest}
	rep.Grid, err = heatmap.DecodeSnapshot(latest.HeatmapBlob)
	if err != nil {
		return Report{}, fmt.Errorf("snapshot %s: %w", latest.ID, err)
	}
	if len(latest.HotspotsJSON) > 0 {
		if err := json.Unmarshal(latest.HotspotsJSON, &rep.Hotspots); err != nil {
			return Report{}, fmt.Errorf("snapshot %s: failed to decode hotspots: %w", latest.ID, err)
		}
	}

	// Zone rows of one window share its end time; a few hundred rows covers
	// any realistic zone count.
	rows, err := store.Snapshots(cameraID, 500)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load zone snapshots: %w", err)
	}
	for _, r := range rows {
		if r.WindowEnd.Equal(latest.WindowEnd) {
			rep.Zones = append(rep.Zones, r)
		}
	}

	if patternLimit > 0 {
		rep.Patterns, err = store.Patterns(cameraID, patternLimit)
		if err != nil {
			return Report{}, fmt.Errorf("failed to load patterns: %w", err)
		}
	}
	return rep, nil
}

// Downsample block-averages s so that it has at most maxCells cells. The
// returned CellSize grows by the block factor so that cell coordinates still
// map to frame pixels.
func Downsample(s heatmap.Snapshot, maxCells int) heatmap.Snapshot {
	if maxCells <= 0 || s.Cols*s.Rows <= maxCells {
		return s
	}
	f := int(math.Ceil(math.Sqrt(float64(s.Cols*s.Rows) / float64(maxCells))))
	for ceilDiv(s.Cols, f)*ceilDiv(s.Rows, f) > maxCells {
		f++
	}
	cols, rows := ceilDiv(s.Cols, f), ceilDiv(s.Rows, f)
	out := heatmap.Snapshot{
		Cols:     cols,
		Rows:     rows,
		CellSize: max(s.CellSize, 1) * f,
		Cells:    make([]float64, cols*rows),
		TakenAt:  s.TakenAt,
	}
	counts := make([]int, len(out.Cells))
	for y := 0; y < s.Rows; y++ {
		for x := 0; x < s.Cols; x++ {
			i := (y/f)*cols + x/f
			out.Cells[i] += s.Cells[y*s.Cols+x]
			counts[i]++
		}
	}
	for i, n := range counts {
		if n > 0 {
			out.Cells[i] /= float64(n)
		}
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func zoneLabel(id string) string {
	if id == "" {
		return "camera"
	}
	return id
}
