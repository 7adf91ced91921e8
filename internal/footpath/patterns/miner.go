// Package patterns mines recurring spatial clusters from path segments.
package patterns

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/footpath/tracks"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

// TypeMovementClusters tags patterns produced by density clustering of path points.
const TypeMovementClusters = "movement_clusters"

// FrequencyMode selects what a pattern's frequency counts.
type FrequencyMode string

const (
	// FrequencyPoints counts member points.
	FrequencyPoints FrequencyMode = "points"
	// FrequencyTracks counts distinct contributing tracks and drops clusters
	// with fewer than the minimum frequency of them.
	FrequencyTracks FrequencyMode = "tracks"
)

// DefaultMaxMembers caps the representative point set stored per pattern.
const DefaultMaxMembers = 64

// Pattern is one mined cluster. Patterns are never mutated after creation.
type Pattern struct {
	ID             string        `json:"id"`
	Type           string        `json:"pattern_type"`
	ZoneID         string        `json:"zone_id,omitempty"`
	Center         geom.Point    `json:"center"`
	Members        []geom.Point  `json:"members"`
	PointCount     int           `json:"point_count"`
	Frequency      int           `json:"frequency"`
	DistinctTracks int           `json:"distinct_tracks"`
	AvgDuration    time.Duration `json:"avg_duration"`
	Confidence     float64       `json:"confidence"`
	CreatedAt      time.Time     `json:"created_at"`
}

// MinerConfig configures a Miner.
type MinerConfig struct {
	Eps float64
	// MinSamples is the DBSCAN core-point threshold. Zero uses the
	// minFrequency passed to FindPatterns.
	MinSamples    int
	Confidence    float64
	FrequencyMode FrequencyMode
	MaxMembers    int
	Clock         timeutil.Clock
	// Clusterer overrides the DBSCAN clusterer built from Eps.
	Clusterer Clusterer
}

// Miner turns batches of path segments into patterns. It only reads the
// segments it is given.
type Miner struct {
	cfg       MinerConfig
	clusterer Clusterer
}

// NewMiner creates a Miner, filling unset fields with defaults.
func NewMiner(cfg MinerConfig) *Miner {
	if cfg.Eps <= 0 {
		cfg.Eps = 50
	}
	if cfg.FrequencyMode == "" {
		cfg.FrequencyMode = FrequencyPoints
	}
	if cfg.MaxMembers <= 0 {
		cfg.MaxMembers = DefaultMaxMembers
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	c := cfg.Clusterer
	if c == nil {
		c = NewDBSCANClusterer(cfg.Eps, cfg.MinSamples)
	}
	return &Miner{cfg: cfg, clusterer: c}
}

// FindPatterns flattens the segments' points, clusters them and emits one
// pattern per non-noise cluster, ordered by center. Fewer than minFrequency
// segments or points yield no patterns.
func (m *Miner) FindPatterns(segments []tracks.PathSegment, minFrequency int) []Pattern {
	if len(segments) < minFrequency {
		return nil
	}

	var points []geom.Point
	var owner []int // point index -> segment index
	for si, seg := range segments {
		for _, p := range seg.Points {
			if !p.Finite() {
				continue
			}
			points = append(points, p)
			owner = append(owner, si)
		}
	}
	if len(points) == 0 || len(points) < minFrequency {
		return nil
	}

	params := m.clusterer.GetParams()
	params.MinPts = m.cfg.MinSamples
	if params.MinPts <= 0 {
		params.MinPts = max(minFrequency, 1)
	}
	m.clusterer.SetParams(params)

	now := m.cfg.Clock.Now()
	var out []Pattern
	for _, cl := range m.clusterer.Cluster(points) {
		segs := make(map[int]struct{})
		trackIDs := make(map[string]struct{})
		for _, idx := range cl.Members {
			segs[owner[idx]] = struct{}{}
			trackIDs[segments[owner[idx]].TrackID] = struct{}{}
		}

		freq := len(cl.Members)
		if m.cfg.FrequencyMode == FrequencyTracks {
			freq = len(trackIDs)
			if freq < minFrequency {
				continue
			}
		}

		durations := make([]float64, 0, len(segs))
		for si := range segs {
			durations = append(durations, segments[si].Duration.Seconds())
		}

		out = append(out, Pattern{
			ID:             uuid.NewString(),
			Type:           TypeMovementClusters,
			Center:         cl.Center,
			Members:        representative(points, cl.Members, m.cfg.MaxMembers),
			PointCount:     len(cl.Members),
			Frequency:      freq,
			DistinctTracks: len(trackIDs),
			AvgDuration:    time.Duration(stat.Mean(durations, nil) * float64(time.Second)),
			Confidence:     m.cfg.Confidence,
			CreatedAt:      now,
		})
	}
	return out
}

// representative picks up to limit members at an even stride.
func representative(points []geom.Point, members []int, limit int) []geom.Point {
	n := len(members)
	k := min(n, limit)
	out := make([]geom.Point, k)
	for i := 0; i < k; i++ {
		out[i] = points[members[i*n/k]]
	}
	return out
}
