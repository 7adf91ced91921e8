package zones

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/footpath/tracks"
)

// DwellRecord is the dwell state of one track in one zone. There is at most
// one open interval per record.
type DwellRecord struct {
	TrackID string
	ZoneID  string
	// Accumulated is the closed-interval time since the last Reset.
	Accumulated time.Duration
	// Closed counts intervals closed since the last Reset.
	Closed    int
	Inside    bool
	EnteredAt time.Time
}

// Analytics is the rollup for one zone since the last Reset.
type Analytics struct {
	ZoneID         string  `json:"zone_id"`
	UniqueVisitors int     `json:"unique_visitors"`
	AvgDwellSecs   float64 `json:"avg_dwell_time"`
	MaxDwellSecs   float64 `json:"max_dwell_time"`
	TotalDwellSecs float64 `json:"total_dwell_time"`
}

// Engine tracks per (track, zone) inside/outside state for a fixed set of
// zones. It is not safe for concurrent use.
type Engine struct {
	zones    []Zone
	records  map[string]map[string]*DwellRecord // zone -> track -> record
	visitors map[string]map[string]struct{}     // zone -> track set
}

// NewEngine validates zones and returns an engine over them. A malformed
// polygon or a duplicate ID yields an error wrapping ErrInvalidZone.
func NewEngine(zs []Zone) (*Engine, error) {
	e := &Engine{
		zones:    make([]Zone, 0, len(zs)),
		records:  make(map[string]map[string]*DwellRecord, len(zs)),
		visitors: make(map[string]map[string]struct{}, len(zs)),
	}
	for _, z := range zs {
		if err := z.Validate(); err != nil {
			return nil, err
		}
		if _, dup := e.records[z.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate zone id %q", ErrInvalidZone, z.ID)
		}
		poly := make([]geom.Point, len(z.Polygon))
		copy(poly, z.Polygon)
		z.Polygon = poly
		e.zones = append(e.zones, z)
		e.records[z.ID] = make(map[string]*DwellRecord)
		e.visitors[z.ID] = make(map[string]struct{})
	}
	return e, nil
}

// Analyze advances the two-state machine of every (track, zone) pair using
// each track's latest sample. Entering opens an interval at the sample
// timestamp and records a visitor; leaving closes the interval and credits
// its length.
func (e *Engine) Analyze(ts []tracks.Track) {
	for i := range ts {
		sample, ok := ts[i].Latest()
		if !ok {
			continue
		}
		for _, z := range e.zones {
			inside := PointInZone(sample.Position, z)
			rec := e.records[z.ID][ts[i].ID]
			wasInside := rec != nil && rec.Inside

			switch {
			case inside && !wasInside:
				if rec == nil {
					rec = &DwellRecord{TrackID: ts[i].ID, ZoneID: z.ID}
					e.records[z.ID][ts[i].ID] = rec
				}
				rec.Inside = true
				rec.EnteredAt = sample.Timestamp
				e.visitors[z.ID][ts[i].ID] = struct{}{}
			case !inside && wasInside:
				if d := sample.Timestamp.Sub(rec.EnteredAt); d > 0 {
					rec.Accumulated += d
				}
				rec.Closed++
				rec.Inside = false
				rec.EnteredAt = time.Time{}
			}
		}
	}
}

// Inside reports whether the track currently has an open interval in the zone.
func (e *Engine) Inside(trackID, zoneID string) bool {
	rec := e.records[zoneID][trackID]
	return rec != nil && rec.Inside
}

// Record returns a copy of the dwell record for the pair.
func (e *Engine) Record(trackID, zoneID string) (DwellRecord, bool) {
	rec := e.records[zoneID][trackID]
	if rec == nil {
		return DwellRecord{}, false
	}
	return *rec, true
}

// ZoneAnalytics returns the rollup for a single zone.
func (e *Engine) ZoneAnalytics(zoneID string) (Analytics, bool) {
	recs, ok := e.records[zoneID]
	if !ok {
		return Analytics{}, false
	}
	a := Analytics{ZoneID: zoneID, UniqueVisitors: len(e.visitors[zoneID])}

	dwell := make([]float64, 0, len(recs))
	for _, rec := range recs {
		if rec.Closed > 0 {
			dwell = append(dwell, rec.Accumulated.Seconds())
		}
	}
	if len(dwell) > 0 {
		a.AvgDwellSecs = stat.Mean(dwell, nil)
		a.MaxDwellSecs = floats.Max(dwell)
		a.TotalDwellSecs = floats.Sum(dwell)
	}
	return a, true
}

// Analytics returns the rollup of every zone in configuration order.
func (e *Engine) Analytics() []Analytics {
	out := make([]Analytics, 0, len(e.zones))
	for _, z := range e.zones {
		a, _ := e.ZoneAnalytics(z.ID)
		out = append(out, a)
	}
	return out
}

// Reset clears visitor sets and closed dwell time. Open intervals survive so
// that an entity inside a zone stays inside across the window boundary.
func (e *Engine) Reset() {
	for zoneID, recs := range e.records {
		for trackID, rec := range recs {
			if !rec.Inside {
				delete(recs, trackID)
				continue
			}
			rec.Accumulated = 0
			rec.Closed = 0
		}
		e.visitors[zoneID] = make(map[string]struct{})
	}
}

// Forget drops the state of tracks that no longer exist. Open intervals are
// discarded without credit; closed time already counted in this window is
// kept.
func (e *Engine) Forget(trackIDs []string) {
	for _, recs := range e.records {
		for _, id := range trackIDs {
			rec := recs[id]
			if rec == nil {
				continue
			}
			if rec.Closed == 0 {
				delete(recs, id)
				continue
			}
			rec.Inside = false
			rec.EnteredAt = time.Time{}
		}
	}
}

// ZoneAt returns the ID of the first zone, in configuration order, that
// contains p.
func (e *Engine) ZoneAt(p geom.Point) (string, bool) {
	for _, z := range e.zones {
		if PointInZone(p, z) {
			return z.ID, true
		}
	}
	return "", false
}
