// Package tracks keeps the per-entity trajectory history for one camera.
//
// The Store is owned by a single camera processor loop and is not safe for
// concurrent use.
package tracks

import (
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

// Detection is one detector/tracker output for a frame. A nil or negative
// TrackID marks the detection as untracked.
type Detection struct {
	BBox       geom.BoundingBox `json:"bbox"`
	Confidence float64          `json:"confidence"`
	TrackID    *int64           `json:"track_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Tracked reports whether the detection carries a usable tracker identity.
func (d Detection) Tracked() bool {
	return d.TrackID != nil && *d.TrackID >= 0
}

// Sample is one observed position of a track.
type Sample struct {
	Position  geom.Point
	Timestamp time.Time
	BBox      geom.BoundingBox
}

// Track is the trajectory of one physical entity.
type Track struct {
	ID        string
	Samples   []Sample
	FirstSeen time.Time
	LastSeen  time.Time
	// Synthetic is set when the store generated the ID for an untracked detection.
	Synthetic bool
}

// Latest returns the most recently appended sample.
func (t *Track) Latest() (Sample, bool) {
	if len(t.Samples) == 0 {
		return Sample{}, false
	}
	return t.Samples[len(t.Samples)-1], true
}

// Stats mirrors the tracker statistics reported with each analytics window.
type Stats struct {
	// TotalDetections counts samples appended since the last ResetStatistics.
	TotalDetections int `json:"total_detections"`
	// ActiveTracks counts distinct tracks updated since the last ResetStatistics.
	ActiveTracks int `json:"active_tracks"`
	// TotalTracks is the number of tracks currently held.
	TotalTracks int `json:"total_tracks"`
}

// Store holds the rolling history of every track seen by one camera.
type Store struct {
	clock    timeutil.Clock
	tracks   map[string]*Track
	nextAnon int64

	totalDetections int
	activeIDs       map[string]struct{}
}

// NewStore creates an empty Store reading time from clock.
func NewStore(clock timeutil.Clock) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{
		clock:     clock,
		tracks:    make(map[string]*Track),
		nextAnon:  1,
		activeIDs: make(map[string]struct{}),
	}
}

// TrackerID formats the store ID used for an external tracker identity.
func TrackerID(id int64) string {
	return fmt.Sprintf("trk-%d", id)
}

// Update appends the bounding-box center of each detection to its track,
// creating tracks on first sight. Detections with a zero timestamp are
// stamped with the store clock. Detections whose center is not finite are
// dropped. It returns the IDs of the tracks updated, in detection order.
func (s *Store) Update(detections []Detection) []string {
	updated := make([]string, 0, len(detections))
	for _, det := range detections {
		center := det.BBox.Center()
		if !center.Finite() {
			continue
		}
		ts := det.Timestamp
		if ts.IsZero() {
			ts = s.clock.Now()
		}

		var id string
		synthetic := false
		if det.Tracked() {
			id = TrackerID(*det.TrackID)
		} else {
			id = fmt.Sprintf("anon-%d", s.nextAnon)
			s.nextAnon++
			synthetic = true
		}

		track, ok := s.tracks[id]
		if !ok {
			track = &Track{ID: id, FirstSeen: ts, LastSeen: ts, Synthetic: synthetic}
			s.tracks[id] = track
		}
		track.Samples = append(track.Samples, Sample{Position: center, Timestamp: ts, BBox: det.BBox})
		if ts.Before(track.FirstSeen) {
			track.FirstSeen = ts
		}
		if ts.After(track.LastSeen) {
			track.LastSeen = ts
		}

		s.totalDetections++
		s.activeIDs[id] = struct{}{}
		updated = append(updated, id)
	}
	return updated
}

// view returns a copy of the track header. Samples are append-only so the
// returned slice is capped to stop callers from aliasing future appends.
func view(t *Track) Track {
	out := *t
	out.Samples = t.Samples[:len(t.Samples):len(t.Samples)]
	return out
}

func (s *Store) collect(keep func(*Track) bool) []Track {
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if keep(t) {
			out = append(out, view(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tracks returns every track with at least minLength samples, sorted by ID.
// The returned samples must be treated as read-only.
func (s *Store) Tracks(minLength int) []Track {
	return s.collect(func(t *Track) bool { return len(t.Samples) >= minLength })
}

// Get returns the track with the given ID.
func (s *Store) Get(id string) (Track, bool) {
	t, ok := s.tracks[id]
	if !ok {
		return Track{}, false
	}
	return view(t), true
}

// ActiveTracks returns tracks last seen strictly within window of now.
func (s *Store) ActiveTracks(window time.Duration) []Track {
	now := s.clock.Now()
	return s.collect(func(t *Track) bool { return now.Sub(t.LastSeen) < window })
}

// EvictStale removes every track with now - last_seen >= maxAge and returns
// their final path segments, sorted by track ID. This is the only operation
// that discards history.
func (s *Store) EvictStale(maxAge time.Duration) []PathSegment {
	now := s.clock.Now()
	stale := s.collect(func(t *Track) bool { return now.Sub(t.LastSeen) >= maxAge })
	segments := make([]PathSegment, 0, len(stale))
	for i := range stale {
		segments = append(segments, stale[i].Segment(true))
		delete(s.tracks, stale[i].ID)
		delete(s.activeIDs, stale[i].ID)
	}
	return segments
}

// Len returns the number of tracks held.
func (s *Store) Len() int {
	return len(s.tracks)
}

// Stats returns the current statistics.
func (s *Store) Stats() Stats {
	return Stats{
		TotalDetections: s.totalDetections,
		ActiveTracks:    len(s.activeIDs),
		TotalTracks:     len(s.tracks),
	}
}

// ResetStatistics clears the detection counter and the active set. Track
// history is untouched.
func (s *Store) ResetStatistics() {
	s.totalDetections = 0
	s.activeIDs = make(map[string]struct{})
}
