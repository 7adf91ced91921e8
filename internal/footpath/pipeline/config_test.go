package pipeline

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footpath.report/internal/config"
	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/footpath/patterns"
	"github.com/banshee-data/footpath.report/internal/footpath/zones"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

func TestNewConfig_Overrides(t *testing.T) {
	t.Parallel()
	interval := "30s"
	decay := 0.5
	mode := config.FrequencyTracks
	flush := true
	cfg := &config.FootpathConfig{
		SnapshotInterval: &interval,
		HeatmapDecay:     &decay,
		FrequencyMode:    &mode,
		FinalFlush:       &flush,
	}
	cam := config.CameraConfig{
		CameraID: "lobby",
		Zones: []config.ZoneConfig{
			{ID: "door", Name: "Front door", Polygon: [][]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}},
		},
	}

	got := NewConfig(cfg, cam)
	assert.Equal(t, "lobby", got.CameraID)
	assert.Equal(t, 30*time.Second, got.SnapshotInterval)
	assert.Equal(t, 15*time.Minute, got.MiningInterval)
	assert.Equal(t, 0.5, got.HeatmapDecay)
	assert.Equal(t, patterns.FrequencyTracks, got.FrequencyMode)
	assert.True(t, got.FinalFlush)

	want := []zones.Zone{{
		ID:      "door",
		Name:    "Front door",
		Polygon: []geom.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
	}}
	if diff := cmp.Diff(want, got.Zones); diff != "" {
		t.Errorf("zones mismatch (-want +got):\n%s", diff)
	}
}

func TestZonesFromConfig_SkipsShortVertices(t *testing.T) {
	t.Parallel()
	got := ZonesFromConfig([]config.ZoneConfig{{ID: "z", Polygon: [][]float64{{1, 2}, {3}, {4, 5}}}})
	require.Len(t, got, 1)
	assert.Equal(t, []geom.Point{{X: 1, Y: 2}, {X: 4, Y: 5}}, got[0].Polygon)
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	got := Config{CameraID: "cam", MinTrackLength: 9, Clock: clock}.withDefaults()

	assert.Equal(t, 9, got.MinTrackLength)
	assert.Equal(t, 5*time.Minute, got.SnapshotInterval)
	assert.Equal(t, time.Hour, got.TrackMaxAge)
	assert.Equal(t, 0.95, got.HeatmapDecay)
	assert.Equal(t, 2, got.PatternMinFrequency)
	assert.Equal(t, patterns.FrequencyPoints, got.FrequencyMode)
	assert.Same(t, clock, got.Clock)
	assert.False(t, got.FinalFlush)

	assert.IsType(t, timeutil.RealClock{}, Config{}.withDefaults().Clock)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ok := DefaultConfig("cam")
	require.NoError(t, ok.validate())

	cases := map[string]func(*Config){
		"decay above one": func(c *Config) { c.HeatmapDecay = 1.5 },
		"negative decay":  func(c *Config) { c.HeatmapDecay = -0.1 },
		"negative radius": func(c *Config) { c.SmoothingRadius = -1 },
		"duplicate zones": func(c *Config) { c.Zones = []zones.Zone{square("a", 0, 0, 1, 1), square("a", 2, 2, 3, 3)} },
		"degenerate zone": func(c *Config) { c.Zones = []zones.Zone{square("a", 0, 0, 0, 5)} },
		"zone without id": func(c *Config) { c.Zones = []zones.Zone{square("", 0, 0, 1, 1)} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig("cam")
			mutate(&c)
			assert.Error(t, c.validate())
		})
	}
}
