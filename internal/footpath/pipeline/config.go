package pipeline

import (
	"fmt"
	"time"

	"github.com/banshee-data/footpath.report/internal/config"
	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/footpath/patterns"
	"github.com/banshee-data/footpath.report/internal/footpath/zones"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

// Config holds the settings of one camera session.
type Config struct {
	CameraID string
	Zones    []zones.Zone

	SnapshotInterval time.Duration
	MiningInterval   time.Duration
	CleanupInterval  time.Duration

	TrackMaxAge    time.Duration
	ActiveWindow   time.Duration
	MinTrackLength int

	HeatmapDecay     float64
	HeatmapCellSize  int
	SmoothingRadius  int
	HotspotThreshold float64
	HotspotMinArea   int

	DBSCANEps           float64
	DBSCANMinSamples    int
	PatternMinFrequency int
	PatternConfidence   float64
	FrequencyMode       patterns.FrequencyMode
	MaxPendingSegments  int

	// FinalFlush persists the open analytics window and pending segments
	// when the session ends without a source error.
	FinalFlush bool

	Clock timeutil.Clock
}

// NewConfig builds a session Config from the process configuration and one
// camera entry.
func NewConfig(cfg *config.FootpathConfig, cam config.CameraConfig) Config {
	return Config{
		CameraID:            cam.CameraID,
		Zones:               ZonesFromConfig(cam.Zones),
		SnapshotInterval:    cfg.GetSnapshotInterval(),
		MiningInterval:      cfg.GetMiningInterval(),
		CleanupInterval:     cfg.GetCleanupInterval(),
		TrackMaxAge:         cfg.GetTrackMaxAge(),
		ActiveWindow:        cfg.GetActiveWindow(),
		MinTrackLength:      cfg.GetMinTrackLength(),
		HeatmapDecay:        cfg.GetHeatmapDecay(),
		HeatmapCellSize:     cfg.GetHeatmapCellSize(),
		SmoothingRadius:     cfg.GetSmoothingRadius(),
		HotspotThreshold:    cfg.GetHotspotThreshold(),
		HotspotMinArea:      cfg.GetHotspotMinArea(),
		DBSCANEps:           cfg.GetDBSCANEps(),
		DBSCANMinSamples:    cfg.GetDBSCANMinSamples(),
		PatternMinFrequency: cfg.GetPatternMinFrequency(),
		PatternConfidence:   cfg.GetPatternConfidence(),
		FrequencyMode:       patterns.FrequencyMode(cfg.GetFrequencyMode()),
		MaxPendingSegments:  cfg.GetMaxPendingSegments(),
		FinalFlush:          cfg.GetFinalFlush(),
	}
}

// DefaultConfig returns the built-in defaults for a camera without zones.
func DefaultConfig(cameraID string) Config {
	return NewConfig(config.EmptyFootpathConfig(), config.CameraConfig{CameraID: cameraID})
}

// ZonesFromConfig converts configured polygons into zones. Vertex pairs are
// checked by config validation; short entries are skipped here.
func ZonesFromConfig(zcs []config.ZoneConfig) []zones.Zone {
	out := make([]zones.Zone, 0, len(zcs))
	for _, zc := range zcs {
		poly := make([]geom.Point, 0, len(zc.Polygon))
		for _, v := range zc.Polygon {
			if len(v) < 2 {
				continue
			}
			poly = append(poly, geom.Point{X: v[0], Y: v[1]})
		}
		out = append(out, zones.Zone{ID: zc.ID, Name: zc.Name, Polygon: poly})
	}
	return out
}

// withDefaults fills unset fields from the built-in defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig(c.CameraID)
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = d.SnapshotInterval
	}
	if c.MiningInterval <= 0 {
		c.MiningInterval = d.MiningInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.TrackMaxAge <= 0 {
		c.TrackMaxAge = d.TrackMaxAge
	}
	if c.ActiveWindow <= 0 {
		c.ActiveWindow = d.ActiveWindow
	}
	if c.MinTrackLength <= 0 {
		c.MinTrackLength = d.MinTrackLength
	}
	if c.HeatmapDecay == 0 {
		c.HeatmapDecay = d.HeatmapDecay
	}
	if c.HeatmapCellSize <= 0 {
		c.HeatmapCellSize = d.HeatmapCellSize
	}
	if c.HotspotThreshold == 0 {
		c.HotspotThreshold = d.HotspotThreshold
	}
	if c.DBSCANEps <= 0 {
		c.DBSCANEps = d.DBSCANEps
	}
	if c.PatternMinFrequency <= 0 {
		c.PatternMinFrequency = d.PatternMinFrequency
	}
	if c.PatternConfidence == 0 {
		c.PatternConfidence = d.PatternConfidence
	}
	if c.FrequencyMode == "" {
		c.FrequencyMode = d.FrequencyMode
	}
	if c.MaxPendingSegments <= 0 {
		c.MaxPendingSegments = d.MaxPendingSegments
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	return c
}

// validate checks the settings that would otherwise only fail once the
// first frame has been read.
func (c Config) validate() error {
	if _, err := zones.NewEngine(c.Zones); err != nil {
		return err
	}
	if !(c.HeatmapDecay > 0 && c.HeatmapDecay <= 1) {
		return fmt.Errorf("heatmap decay must be in (0, 1], got %v", c.HeatmapDecay)
	}
	if c.SmoothingRadius < 0 {
		return fmt.Errorf("smoothing radius must be non-negative, got %d", c.SmoothingRadius)
	}
	return nil
}
