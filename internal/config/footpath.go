// Package config loads the footpath runner configuration.
//
// Every tunable is a pointer so that a partial file only overrides what it
// names; the Get* accessors supply the defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ExampleConfigPath is the path to the annotated example configuration.
const ExampleConfigPath = "config/footpath.example.yaml"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Frequency modes for the pattern miner.
const (
	FrequencyPoints = "points"
	FrequencyTracks = "tracks"
)

// FootpathConfig is the root configuration for a footpath runner process.
type FootpathConfig struct {
	DatabasePath *string `json:"database_path,omitempty" yaml:"database_path,omitempty"`
	DebugListen  *string `json:"debug_listen,omitempty" yaml:"debug_listen,omitempty"`
	HealthListen *string `json:"health_listen,omitempty" yaml:"health_listen,omitempty"`

	// Timer intervals, duration strings like "5m".
	SnapshotInterval *string `json:"snapshot_interval,omitempty" yaml:"snapshot_interval,omitempty"`
	MiningInterval   *string `json:"mining_interval,omitempty" yaml:"mining_interval,omitempty"`
	CleanupInterval  *string `json:"cleanup_interval,omitempty" yaml:"cleanup_interval,omitempty"`

	// Track store params
	TrackMaxAge    *string  `json:"track_max_age,omitempty" yaml:"track_max_age,omitempty"`
	ActiveWindow   *string  `json:"active_window,omitempty" yaml:"active_window,omitempty"`
	MinTrackLength *int     `json:"min_track_length,omitempty" yaml:"min_track_length,omitempty"`
	MinConfidence  *float64 `json:"min_confidence,omitempty" yaml:"min_confidence,omitempty"`

	// Heatmap params
	HeatmapDecay     *float64 `json:"heatmap_decay,omitempty" yaml:"heatmap_decay,omitempty"`
	HeatmapCellSize  *int     `json:"heatmap_cell_size,omitempty" yaml:"heatmap_cell_size,omitempty"`
	SmoothingRadius  *int     `json:"smoothing_radius,omitempty" yaml:"smoothing_radius,omitempty"`
	HotspotThreshold *float64 `json:"hotspot_threshold,omitempty" yaml:"hotspot_threshold,omitempty"`
	HotspotMinArea   *int     `json:"hotspot_min_area,omitempty" yaml:"hotspot_min_area,omitempty"`

	// Pattern miner params
	DBSCANEps           *float64 `json:"dbscan_eps,omitempty" yaml:"dbscan_eps,omitempty"`
	DBSCANMinSamples    *int     `json:"dbscan_min_samples,omitempty" yaml:"dbscan_min_samples,omitempty"`
	PatternMinFrequency *int     `json:"pattern_min_frequency,omitempty" yaml:"pattern_min_frequency,omitempty"`
	PatternConfidence   *float64 `json:"pattern_confidence,omitempty" yaml:"pattern_confidence,omitempty"`
	FrequencyMode       *string  `json:"frequency_mode,omitempty" yaml:"frequency_mode,omitempty"`
	MaxPendingSegments  *int     `json:"max_pending_segments,omitempty" yaml:"max_pending_segments,omitempty"`

	// FinalFlush persists analytics one last time when a session stops cleanly.
	FinalFlush *bool `json:"final_flush,omitempty" yaml:"final_flush,omitempty"`

	Cameras []CameraConfig `json:"cameras" yaml:"cameras"`
}

// CameraConfig describes one camera session.
type CameraConfig struct {
	CameraID   string       `json:"camera_id" yaml:"camera_id"`
	ReplayPath string       `json:"replay_path" yaml:"replay_path"`
	Zones      []ZoneConfig `json:"zones,omitempty" yaml:"zones,omitempty"`
}

// ZoneConfig is a named polygon in frame pixel coordinates. Each polygon
// vertex is an [x, y] pair.
type ZoneConfig struct {
	ID      string      `json:"id" yaml:"id"`
	Name    string      `json:"name,omitempty" yaml:"name,omitempty"`
	Polygon [][]float64 `json:"polygon" yaml:"polygon"`
}

// EmptyFootpathConfig returns a FootpathConfig with all fields unset.
func EmptyFootpathConfig() *FootpathConfig {
	return &FootpathConfig{}
}

// LoadFootpathConfig loads a FootpathConfig from a .json, .yaml or .yml file.
// Fields omitted from the file keep their defaults.
func LoadFootpathConfig(path string) (*FootpathConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFootpathConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid. Zone geometry is
// checked again by the zone engine when a session starts.
func (c *FootpathConfig) Validate() error {
	durations := map[string]*string{
		"snapshot_interval": c.SnapshotInterval,
		"mining_interval":   c.MiningInterval,
		"cleanup_interval":  c.CleanupInterval,
		"track_max_age":     c.TrackMaxAge,
		"active_window":     c.ActiveWindow,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.HeatmapDecay != nil {
		if *c.HeatmapDecay <= 0 || *c.HeatmapDecay > 1 {
			return fmt.Errorf("heatmap_decay must be in (0, 1], got %f", *c.HeatmapDecay)
		}
	}
	if c.HotspotThreshold != nil {
		if *c.HotspotThreshold < 0 || *c.HotspotThreshold > 1 {
			return fmt.Errorf("hotspot_threshold must be between 0 and 1, got %f", *c.HotspotThreshold)
		}
	}
	if c.PatternConfidence != nil {
		if *c.PatternConfidence < 0 || *c.PatternConfidence > 1 {
			return fmt.Errorf("pattern_confidence must be between 0 and 1, got %f", *c.PatternConfidence)
		}
	}
	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}
	if c.DBSCANEps != nil {
		if *c.DBSCANEps <= 0 || math.IsNaN(*c.DBSCANEps) || math.IsInf(*c.DBSCANEps, 0) {
			return fmt.Errorf("dbscan_eps must be a positive number, got %f", *c.DBSCANEps)
		}
	}

	nonNegative := map[string]*int{
		"min_track_length":      c.MinTrackLength,
		"smoothing_radius":      c.SmoothingRadius,
		"hotspot_min_area":      c.HotspotMinArea,
		"dbscan_min_samples":    c.DBSCANMinSamples,
		"max_pending_segments":  c.MaxPendingSegments,
		"pattern_min_frequency": c.PatternMinFrequency,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}
	if c.HeatmapCellSize != nil && *c.HeatmapCellSize < 1 {
		return fmt.Errorf("heatmap_cell_size must be at least 1, got %d", *c.HeatmapCellSize)
	}

	if c.FrequencyMode != nil {
		switch *c.FrequencyMode {
		case "", FrequencyPoints, FrequencyTracks:
		default:
			return fmt.Errorf("frequency_mode must be %q or %q, got %q", FrequencyPoints, FrequencyTracks, *c.FrequencyMode)
		}
	}

	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.CameraID == "" {
			return fmt.Errorf("cameras[%d]: camera_id is required", i)
		}
		if seen[cam.CameraID] {
			return fmt.Errorf("cameras[%d]: duplicate camera_id %q", i, cam.CameraID)
		}
		seen[cam.CameraID] = true
		for j, z := range cam.Zones {
			for k, v := range z.Polygon {
				if len(v) != 2 {
					return fmt.Errorf("camera %q zone[%d] vertex %d: expected [x, y], got %d values", cam.CameraID, j, k, len(v))
				}
			}
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetDatabasePath returns the database_path value or the default.
func (c *FootpathConfig) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "footpath.db"
	}
	return *c.DatabasePath
}

// GetDebugListen returns the debug_listen value or the default.
func (c *FootpathConfig) GetDebugListen() string {
	if c.DebugListen == nil {
		return "localhost:8090"
	}
	return *c.DebugListen
}

// GetHealthListen returns the health_listen value. Empty disables the gRPC
// health service.
func (c *FootpathConfig) GetHealthListen() string {
	if c.HealthListen == nil {
		return ""
	}
	return *c.HealthListen
}

// GetSnapshotInterval returns the snapshot_interval value or the default.
func (c *FootpathConfig) GetSnapshotInterval() time.Duration {
	return durationOr(c.SnapshotInterval, 5*time.Minute)
}

// GetMiningInterval returns the mining_interval value or the default.
func (c *FootpathConfig) GetMiningInterval() time.Duration {
	return durationOr(c.MiningInterval, 15*time.Minute)
}

// GetCleanupInterval returns the cleanup_interval value or the default.
func (c *FootpathConfig) GetCleanupInterval() time.Duration {
	return durationOr(c.CleanupInterval, 60*time.Minute)
}

// GetTrackMaxAge returns the track_max_age value or the default.
func (c *FootpathConfig) GetTrackMaxAge() time.Duration {
	return durationOr(c.TrackMaxAge, time.Hour)
}

// GetActiveWindow returns the active_window value or the default.
func (c *FootpathConfig) GetActiveWindow() time.Duration {
	return durationOr(c.ActiveWindow, 5*time.Second)
}

// GetMinTrackLength returns the min_track_length value or the default.
func (c *FootpathConfig) GetMinTrackLength() int {
	if c.MinTrackLength == nil {
		return 5
	}
	return *c.MinTrackLength
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *FootpathConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.5
	}
	return *c.MinConfidence
}

// GetHeatmapDecay returns the heatmap_decay value or the default.
func (c *FootpathConfig) GetHeatmapDecay() float64 {
	if c.HeatmapDecay == nil {
		return 0.95
	}
	return *c.HeatmapDecay
}

// GetHeatmapCellSize returns the heatmap_cell_size value or the default.
func (c *FootpathConfig) GetHeatmapCellSize() int {
	if c.HeatmapCellSize == nil {
		return 1
	}
	return *c.HeatmapCellSize
}

// GetSmoothingRadius returns the smoothing_radius value or the default.
func (c *FootpathConfig) GetSmoothingRadius() int {
	if c.SmoothingRadius == nil {
		return 7
	}
	return *c.SmoothingRadius
}

// GetHotspotThreshold returns the hotspot_threshold value or the default.
func (c *FootpathConfig) GetHotspotThreshold() float64 {
	if c.HotspotThreshold == nil {
		return 0.7
	}
	return *c.HotspotThreshold
}

// GetHotspotMinArea returns the hotspot_min_area value or the default.
func (c *FootpathConfig) GetHotspotMinArea() int {
	if c.HotspotMinArea == nil {
		return 100
	}
	return *c.HotspotMinArea
}

// GetDBSCANEps returns the dbscan_eps value or the default.
func (c *FootpathConfig) GetDBSCANEps() float64 {
	if c.DBSCANEps == nil {
		return 50
	}
	return *c.DBSCANEps
}

// GetDBSCANMinSamples returns the dbscan_min_samples value. Zero means the
// miner uses the pattern minimum frequency.
func (c *FootpathConfig) GetDBSCANMinSamples() int {
	if c.DBSCANMinSamples == nil {
		return 0
	}
	return *c.DBSCANMinSamples
}

// GetPatternMinFrequency returns the pattern_min_frequency value or the default.
func (c *FootpathConfig) GetPatternMinFrequency() int {
	if c.PatternMinFrequency == nil {
		return 2
	}
	return *c.PatternMinFrequency
}

// GetPatternConfidence returns the pattern_confidence value or the default.
func (c *FootpathConfig) GetPatternConfidence() float64 {
	if c.PatternConfidence == nil {
		return 0.8
	}
	return *c.PatternConfidence
}

// GetFrequencyMode returns the frequency_mode value or the default.
func (c *FootpathConfig) GetFrequencyMode() string {
	if c.FrequencyMode == nil || *c.FrequencyMode == "" {
		return FrequencyPoints
	}
	return *c.FrequencyMode
}

// GetMaxPendingSegments returns the max_pending_segments value or the default.
func (c *FootpathConfig) GetMaxPendingSegments() int {
	if c.MaxPendingSegments == nil {
		return 10000
	}
	return *c.MaxPendingSegments
}

// GetFinalFlush returns the final_flush value or the default.
func (c *FootpathConfig) GetFinalFlush() bool {
	if c.FinalFlush == nil {
		return true
	}
	return *c.FinalFlush
}
