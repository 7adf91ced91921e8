package zones

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/footpath/tracks"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func square(id string, x0, y0, size float64) Zone {
	return Zone{ID: id, Name: id, Polygon: []geom.Point{
		{X: x0, Y: y0}, {X: x0 + size, Y: y0}, {X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size},
	}}
}

// at builds a single-sample track view positioned at (x, y) at epoch+sec.
func at(trackID string, x, y float64, sec int) tracks.Track {
	ts := epoch.Add(time.Duration(sec) * time.Second)
	return tracks.Track{
		ID:        trackID,
		Samples:   []tracks.Sample{{Position: geom.Point{X: x, Y: y}, Timestamp: ts}},
		FirstSeen: ts,
		LastSeen:  ts,
	}
}

func TestPointInZone(t *testing.T) {
	t.Parallel()
	sq := square("sq", 0, 0, 10)
	// Concave "L" shape.
	ell := Zone{ID: "L", Polygon: []geom.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 4}, {X: 4, Y: 4}, {X: 4, Y: 10}, {X: 0, Y: 10}}}

	tests := []struct {
		name string
		p    geom.Point
		z    Zone
		want bool
	}{
		{"center", geom.Point{X: 5, Y: 5}, sq, true},
		{"outside", geom.Point{X: 11, Y: 5}, sq, false},
		{"on edge", geom.Point{X: 10, Y: 5}, sq, true},
		{"on vertex", geom.Point{X: 0, Y: 0}, sq, true},
		{"on bottom edge", geom.Point{X: 3, Y: 10}, sq, true},
		{"concave notch", geom.Point{X: 7, Y: 7}, ell, false},
		{"concave arm", geom.Point{X: 2, Y: 8}, ell, true},
		{"concave inner edge", geom.Point{X: 6, Y: 4}, ell, true},
		{"nan point", geom.Point{X: math.NaN(), Y: 1}, sq, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointInZone(tt.p, tt.z))
		})
	}
}

func TestZoneValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		z    Zone
	}{
		{"empty id", Zone{Polygon: square("x", 0, 0, 1).Polygon}},
		{"two vertices", Zone{ID: "z", Polygon: []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}}},
		{"collinear", Zone{ID: "z", Polygon: []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}}},
		{"infinite vertex", Zone{ID: "z", Polygon: []geom.Point{{X: 0, Y: 0}, {X: math.Inf(1), Y: 0}, {X: 0, Y: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.z.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidZone))
		})
	}
	assert.NoError(t, square("ok", 0, 0, 1).Validate())
}

func TestNewEngineRejectsDuplicates(t *testing.T) {
	t.Parallel()
	_, err := NewEngine([]Zone{square("a", 0, 0, 1), square("a", 5, 5, 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidZone)
}

func TestAnalyzeDwellInterval(t *testing.T) {
	t.Parallel()
	e, err := NewEngine([]Zone{square("door", 0, 0, 10)})
	require.NoError(t, err)

	e.Analyze([]tracks.Track{at("trk-1", 20, 20, 0)})
	assert.False(t, e.Inside("trk-1", "door"))

	e.Analyze([]tracks.Track{at("trk-1", 5, 5, 3)})
	assert.True(t, e.Inside("trk-1", "door"))
	a, _ := e.ZoneAnalytics("door")
	assert.Equal(t, 1, a.UniqueVisitors)
	assert.Zero(t, a.TotalDwellSecs, "open interval is not counted")

	// No transition while inside.
	e.Analyze([]tracks.Track{at("trk-1", 6, 6, 5)})
	a, _ = e.ZoneAnalytics("door")
	assert.Zero(t, a.TotalDwellSecs)

	e.Analyze([]tracks.Track{at("trk-1", 30, 30, 10)})
	a, _ = e.ZoneAnalytics("door")
	assert.InDelta(t, 7.0, a.TotalDwellSecs, 1e-9, "exit at 10s minus entry at 3s")
	assert.InDelta(t, 7.0, a.MaxDwellSecs, 1e-9)
	assert.InDelta(t, 7.0, a.AvgDwellSecs, 1e-9)
	assert.False(t, e.Inside("trk-1", "door"))
}

func TestAnalyzeMultipleTracksAndZones(t *testing.T) {
	t.Parallel()
	e, err := NewEngine([]Zone{square("a", 0, 0, 10), square("b", 5, 5, 10)})
	require.NoError(t, err)

	// trk-1 sits in the overlap of a and b.
	e.Analyze([]tracks.Track{at("trk-1", 7, 7, 0), at("trk-2", 1, 1, 0)})
	e.Analyze([]tracks.Track{at("trk-1", 50, 50, 4), at("trk-2", 50, 50, 2)})

	got := e.Analytics()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ZoneID)
	assert.Equal(t, 2, got[0].UniqueVisitors)
	assert.InDelta(t, 6.0, got[0].TotalDwellSecs, 1e-9)
	assert.InDelta(t, 3.0, got[0].AvgDwellSecs, 1e-9)
	assert.InDelta(t, 4.0, got[0].MaxDwellSecs, 1e-9)
	assert.Equal(t, 1, got[1].UniqueVisitors)
	assert.InDelta(t, 4.0, got[1].TotalDwellSecs, 1e-9)

	id, ok := e.ZoneAt(geom.Point{X: 7, Y: 7})
	assert.True(t, ok)
	assert.Equal(t, "a", id, "first zone in configuration order wins")
	_, ok = e.ZoneAt(geom.Point{X: 100, Y: 100})
	assert.False(t, ok)
}

func TestDwellNonDecreasing(t *testing.T) {
	t.Parallel()
	e, err := NewEngine([]Zone{square("z", 0, 0, 10)})
	require.NoError(t, err)

	prev := 0.0
	for sec := 0; sec < 60; sec++ {
		x := 50.0
		if (sec/5)%2 == 0 {
			x = 5
		}
		e.Analyze([]tracks.Track{at("trk-1", x, 5, sec)})
		// Repeating the same frame must be idempotent.
		e.Analyze([]tracks.Track{at("trk-1", x, 5, sec)})
		a, _ := e.ZoneAnalytics("z")
		assert.GreaterOrEqual(t, a.TotalDwellSecs, prev)
		prev = a.TotalDwellSecs
	}
	assert.InDelta(t, 30.0, prev, 1e-9)
}

func TestResetKeepsOpenIntervals(t *testing.T) {
	t.Parallel()
	e, err := NewEngine([]Zone{square("z", 0, 0, 10)})
	require.NoError(t, err)

	e.Analyze([]tracks.Track{at("trk-1", 5, 5, 0), at("trk-2", 5, 5, 0)})
	e.Analyze([]tracks.Track{at("trk-2", 50, 50, 2)})
	e.Analyze([]tracks.Track{at("trk-1", 5, 5, 10)})

	e.Reset()
	a, _ := e.ZoneAnalytics("z")
	assert.Equal(t, Analytics{ZoneID: "z"}, a)
	assert.True(t, e.Inside("trk-1", "z"), "reset does not change inside state")
	assert.False(t, e.Inside("trk-2", "z"))

	// trk-1 leaves after the reset; the whole open interval is credited to
	// the new window.
	e.Analyze([]tracks.Track{at("trk-1", 50, 50, 12)})
	a, _ = e.ZoneAnalytics("z")
	assert.InDelta(t, 12.0, a.TotalDwellSecs, 1e-9)
	assert.Equal(t, 0, a.UniqueVisitors)
}

func TestForgetDropsOpenInterval(t *testing.T) {
	t.Parallel()
	e, err := NewEngine([]Zone{square("z", 0, 0, 10)})
	require.NoError(t, err)

	e.Analyze([]tracks.Track{at("trk-1", 5, 5, 0)})
	e.Analyze([]tracks.Track{at("trk-1", 50, 5, 4)})
	e.Analyze([]tracks.Track{at("trk-1", 5, 5, 6)})
	e.Analyze([]tracks.Track{at("trk-9", 5, 5, 6)})

	e.Forget([]string{"trk-1", "trk-9"})
	assert.False(t, e.Inside("trk-1", "z"))
	_, ok := e.Record("trk-9", "z")
	assert.False(t, ok)

	a, _ := e.ZoneAnalytics("z")
	assert.InDelta(t, 4.0, a.TotalDwellSecs, 1e-9, "closed time survives, open interval is not credited")
	assert.Equal(t, 2, a.UniqueVisitors)
}
