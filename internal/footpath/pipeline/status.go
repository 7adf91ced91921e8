package pipeline

import (
	"time"

	"github.com/banshee-data/footpath.report/internal/footpath/tracks"
	"github.com/banshee-data/footpath.report/internal/footpath/zones"
	"github.com/banshee-data/footpath.report/internal/monitoring"
)

// State is the processor lifecycle state.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateActive        State = "ACTIVE"
	StateStopped       State = "STOPPED"
)

func (s State) cameraStatus() monitoring.CameraStatus {
	switch s {
	case StateActive:
		return monitoring.StatusActive
	case StateStopped:
		return monitoring.StatusStopped
	default:
		return monitoring.StatusInitialized
	}
}

// Status is a point-in-time view of a processor, published after every loop
// iteration for debug surfaces.
type Status struct {
	CameraID        string            `json:"camera_id"`
	State           State             `json:"status"`
	Width           int               `json:"width,omitempty"`
	Height          int               `json:"height,omitempty"`
	HeatmapCols     int               `json:"heatmap_cols,omitempty"`
	HeatmapRows     int               `json:"heatmap_rows,omitempty"`
	FramesProcessed uint64            `json:"frames_processed"`
	FramesFailed    uint64            `json:"frames_failed"`
	Tracking        tracks.Stats      `json:"tracking"`
	ActiveTracks    int               `json:"active_tracks"`
	Zones           []zones.Analytics `json:"analytics,omitempty"`
	PendingSegments int               `json:"pending_segments"`
	WindowStart     time.Time         `json:"window_start"`
	LastSnapshot    time.Time         `json:"last_analytics_save"`
	LastMining      time.Time         `json:"last_pattern_analysis"`
	LastCleanup     time.Time         `json:"last_cleanup"`
	LastError       string            `json:"last_error,omitempty"`
}
