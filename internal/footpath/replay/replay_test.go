package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footpath.report/internal/config"
	"github.com/banshee-data/footpath.report/internal/db"
	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/footpath/pipeline"
	"github.com/banshee-data/footpath.report/internal/footpath/tracks"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const recording = `# two frames and a gap
{"seq": 10, "timestamp": "2026-03-01T09:00:00Z", "width": 640, "height": 480, "detections": [{"bbox": [0, 0, 10, 20], "confidence": 0.9, "track_id": 3}]}

{"timestamp": "2026-03-01T09:00:01Z", "detections": []}
{"timestamp": "2026-03-01T09:00:02Z", "width": 320, "height": 240}
`

func readAll(t *testing.T, src *Source) []pipeline.Frame {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, src.Open(ctx))
	defer src.Close()
	var frames []pipeline.Frame
	for {
		f, err := src.Read(ctx)
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

func TestSource_ReadsRecording(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Time{})
	frames := readAll(t, NewReaderSource(strings.NewReader(recording), SourceConfig{Clock: clock}))

	require.Len(t, frames, 3)
	assert.Equal(t, uint64(10), frames[0].Seq)
	assert.Equal(t, uint64(1), frames[1].Seq, "seq defaults to the frame position")
	assert.Equal(t, uint64(2), frames[2].Seq)

	assert.Equal(t, 640, frames[1].Width, "resolution carries over")
	assert.Equal(t, 480, frames[1].Height)
	assert.Equal(t, 320, frames[2].Width)

	assert.True(t, frames[1].Timestamp.Equal(t0.Add(time.Second)))
	assert.True(t, clock.Now().Equal(t0.Add(2*time.Second)), "clock is pinned to the last frame")
	assert.JSONEq(t, `[]`, string(frames[1].Data))
	assert.JSONEq(t, `[]`, string(frames[2].Data), "missing detections read as an empty list")
}

func TestSource_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := NewReaderSource(strings.NewReader("{\"timestamp\": \"2026-03-01T09:00:00Z\"}\nnot json\n"), SourceConfig{})
	_, err := src.Read(ctx)
	assert.ErrorContains(t, err, "not open")

	require.NoError(t, src.Open(ctx))
	assert.Error(t, src.Open(ctx), "double open")
	_, err = src.Read(ctx)
	require.NoError(t, err)
	_, err = src.Read(ctx)
	assert.ErrorContains(t, err, "line 2")
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	src = NewReaderSource(strings.NewReader(`{"detections": []}`), SourceConfig{})
	require.NoError(t, src.Open(ctx))
	_, err = src.Read(ctx)
	assert.ErrorContains(t, err, "missing timestamp")

	missing := NewSource(SourceConfig{Path: filepath.Join(t.TempDir(), "nope.jsonl")})
	assert.ErrorContains(t, missing.Open(ctx), "failed to open recording")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	src = NewReaderSource(strings.NewReader(recording), SourceConfig{})
	require.NoError(t, src.Open(ctx))
	_, err = src.Read(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSource_Pacing(t *testing.T) {
	t.Parallel()
	sleeper := timeutil.NewMockClock(t0)
	readAll(t, NewReaderSource(strings.NewReader(recording), SourceConfig{SpeedMultiplier: 2, Sleeper: sleeper}))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, sleeper.Sleeps())

	unpaced := timeutil.NewMockClock(t0)
	readAll(t, NewReaderSource(strings.NewReader(recording), SourceConfig{Sleeper: unpaced}))
	assert.Empty(t, unpaced.Sleeps())
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()
	id := int64(4)
	seq := uint64(0)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Record{
		Seq:        &seq,
		Timestamp:  t0,
		Width:      64,
		Height:     48,
		Detections: []Detection{{BBox: [4]float64{1, 2, 3, 4}, Confidence: 0.75, TrackID: &id}},
	}))
	require.NoError(t, Encode(&buf, Record{Timestamp: t0.Add(time.Second)}))

	frames := readAll(t, NewReaderSource(&buf, SourceConfig{}))
	require.Len(t, frames, 2)

	dets, err := Detector{}.Detect(context.Background(), frames[0])
	require.NoError(t, err)
	want := []tracks.Detection{{
		BBox:       geom.BoundingBox{X1: 1, Y1: 2, X2: 3, Y2: 4},
		Confidence: 0.75,
		TrackID:    &id,
		Timestamp:  t0,
	}}
	if diff := cmp.Diff(want, dets); diff != "" {
		t.Errorf("detections mismatch (-want +got):\n%s", diff)
	}

	dets, err = Detector{}.Detect(context.Background(), frames[1])
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDetector_MinConfidence(t *testing.T) {
	t.Parallel()
	payload, err := json.Marshal([]Detection{
		{BBox: [4]float64{0, 0, 2, 2}, Confidence: 0.2},
		{BBox: [4]float64{0, 0, 4, 4}, Confidence: 0.5},
		{BBox: [4]float64{0, 0, 6, 6}, Confidence: 0.9},
	})
	require.NoError(t, err)

	dets, err := Detector{MinConfidence: 0.5}.Detect(context.Background(), pipeline.Frame{Timestamp: t0, Data: payload})
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, 0.5, dets[0].Confidence)
	assert.Equal(t, geom.Point{X: 3, Y: 3}, dets[1].BBox.Center())
	assert.False(t, dets[0].Tracked())

	_, err = Detector{}.Detect(context.Background(), pipeline.Frame{Seq: 7, Data: []byte("{")})
	assert.ErrorContains(t, err, "frame 7")
}

// TestLobbyRecording replays the bundled lobby recording with the example
// configuration into a fresh database.
func TestLobbyRecording(t *testing.T) {
	t.Parallel()
	root := filepath.Join("..", "..", "..")
	cfg, err := config.LoadFootpathConfig(filepath.Join(root, config.ExampleConfigPath))
	require.NoError(t, err)
	require.Len(t, cfg.Cameras, 1)
	cam := cfg.Cameras[0]

	database, err := db.NewDB(filepath.Join(t.TempDir(), "footpath.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	clock := timeutil.NewMockClock(time.Time{})
	pcfg := pipeline.NewConfig(cfg, cam)
	pcfg.Clock = clock
	src := NewSource(SourceConfig{Path: filepath.Join(root, cam.ReplayPath), Clock: clock})
	p := pipeline.New(pcfg, src, Detector{MinConfidence: cfg.GetMinConfidence()}, database, nil)

	require.NoError(t, p.Start(context.Background()))
	st := p.Status()
	assert.Equal(t, pipeline.StateStopped, st.State)
	assert.Equal(t, uint64(600), st.FramesProcessed)
	assert.Zero(t, st.FramesFailed)

	snaps, err := database.Snapshots("lobby", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	counter, entrance := snaps[0], snaps[1]

	assert.Equal(t, "entrance", entrance.ZoneID)
	assert.Equal(t, 2, entrance.UniqueVisitors)
	assert.InDelta(t, 58, entrance.TotalDwellSecs, 0.01, "only the visitor who left is credited")
	assert.Equal(t, 801, entrance.TrafficCount, "low-confidence detections are filtered")

	assert.Equal(t, "counter", counter.ZoneID)
	assert.Equal(t, 1, counter.UniqueVisitors)
	assert.Zero(t, counter.TotalDwellSecs)

	latest, err := database.LatestSnapshot("lobby")
	require.NoError(t, err)
	assert.Equal(t, 640, latest.HeatmapWidth)
	assert.NotEmpty(t, latest.HeatmapBlob)

	pats, err := database.Patterns("lobby", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, pats)
}
