package tracks

import (
	"time"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
)

// PathSegment is an immutable snapshot of a track's point sequence. Final is
// set when the track was evicted; otherwise the segment samples a track that
// is still in progress.
type PathSegment struct {
	TrackID    string
	Points     []geom.Point
	Timestamps []time.Time
	Start      time.Time
	End        time.Time
	Duration   time.Duration
	Final      bool
}

// Segment snapshots the track as a PathSegment.
func (t Track) Segment(final bool) PathSegment {
	seg := PathSegment{
		TrackID:    t.ID,
		Points:     make([]geom.Point, len(t.Samples)),
		Timestamps: make([]time.Time, len(t.Samples)),
		Start:      t.FirstSeen,
		End:        t.LastSeen,
		Duration:   t.LastSeen.Sub(t.FirstSeen),
		Final:      final,
	}
	for i, s := range t.Samples {
		seg.Points[i] = s.Position
		seg.Timestamps[i] = s.Timestamp
	}
	return seg
}

// Since returns a copy holding only the samples taken after t, and false when
// there are none. The zero time keeps every sample. Start, End and Duration
// still describe the whole track.
func (s PathSegment) Since(t time.Time) (PathSegment, bool) {
	i := 0
	for i < len(s.Timestamps) && !s.Timestamps[i].After(t) {
		i++
	}
	if i == len(s.Points) {
		return PathSegment{}, false
	}
	out := s
	out.Points = append([]geom.Point(nil), s.Points[i:]...)
	out.Timestamps = append([]time.Time(nil), s.Timestamps[i:]...)
	return out, true
}
