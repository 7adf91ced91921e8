// Package pipeline runs one camera's analytics session: it pulls frames,
// feeds detections through the track store, zone engine and heatmap, and
// fires the periodic persistence, mining and cleanup tasks.
package pipeline

import (
	"context"
	"time"

	"github.com/banshee-data/footpath.report/internal/db"
	"github.com/banshee-data/footpath.report/internal/footpath/tracks"
)

// Frame is one decoded camera frame. Data is opaque to the processor and is
// only handed to the Detector.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// FrameSource yields frames from a camera or a recording. Read returns
// io.EOF once the source is exhausted.
type FrameSource interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Detector turns a frame into detections, optionally carrying tracker IDs.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]tracks.Detection, error)
}

// Persister stores analytics output. Each call is expected to be atomic.
type Persister interface {
	SaveSnapshots(ctx context.Context, snapshots []db.AnalyticsSnapshot) error
	SavePatterns(ctx context.Context, patterns []db.PatternRecord) error
	SaveSegments(ctx context.Context, segments []db.SegmentRecord) error
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame Frame) ([]tracks.Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, frame Frame) ([]tracks.Detection, error) {
	return f(ctx, frame)
}

type nopPersister struct{}

func (nopPersister) SaveSnapshots(context.Context, []db.AnalyticsSnapshot) error { return nil }
func (nopPersister) SavePatterns(context.Context, []db.PatternRecord) error      { return nil }
func (nopPersister) SaveSegments(context.Context, []db.SegmentRecord) error      { return nil }

var _ Persister = (*db.DB)(nil)
