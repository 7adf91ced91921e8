// Package replay drives a camera session from recorded detections instead of
// a live camera and model.
//
// A recording is a JSONL file with one frame per line:
//
//	{"seq": 0, "timestamp": "2026-03-01T09:00:00Z", "width": 640, "height": 480,
//	 "detections": [{"bbox": [10, 20, 30, 60], "confidence": 0.9, "track_id": 7}]}
//
// Blank lines and lines starting with '#' are skipped. Width and height carry
// over from the previous frame when omitted, and seq defaults to the frame's
// position in the file.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/footpath.report/internal/footpath/pipeline"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

// maxLineSize bounds a single recorded frame.
const maxLineSize = 4 * 1024 * 1024

// Record is one line of a recording.
type Record struct {
	Seq        *uint64     `json:"seq,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Width      int         `json:"width,omitempty"`
	Height     int         `json:"height,omitempty"`
	Detections []Detection `json:"detections"`
}

// Detection is the recorded form of one detector output. BBox is
// [x1, y1, x2, y2] in frame pixels.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	TrackID    *int64     `json:"track_id,omitempty"`
}

// wireRecord keeps detections undecoded so the source can hand them to the
// detector as the frame payload.
type wireRecord struct {
	Seq        *uint64         `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Detections json.RawMessage `json:"detections"`
}

// SourceConfig configures a replay Source.
type SourceConfig struct {
	Path string

	// Clock, when set, is pinned to each frame's timestamp before the frame
	// is returned, so session timers and heatmap decay follow recorded time.
	Clock *timeutil.MockClock

	// SpeedMultiplier paces frames by their recorded spacing (1.0 = real
	// time, 2.0 = twice as fast). Zero or less replays as fast as possible.
	SpeedMultiplier float64

	// Sleeper waits between paced frames. Nil uses a timer that honours
	// context cancellation.
	Sleeper timeutil.Clock
}

// Source is a pipeline.FrameSource reading a JSONL recording.
type Source struct {
	cfg SourceConfig

	r       io.Reader
	closer  io.Closer
	scan    *bufio.Scanner
	line    int
	frames  uint64
	width   int
	height  int
	lastTS  time.Time
	started bool
}

// NewSource returns a Source for the recording at cfg.Path. The file is
// opened by Open.
func NewSource(cfg SourceConfig) *Source {
	return &Source{cfg: cfg}
}

// NewReaderSource returns a Source reading from r. Close does not close r.
func NewReaderSource(r io.Reader, cfg SourceConfig) *Source {
	return &Source{cfg: cfg, r: r}
}

// Open prepares the recording for reading.
func (s *Source) Open(context.Context) error {
	if s.scan != nil {
		return fmt.Errorf("replay source %s already open", s.name())
	}
	r := s.r
	if r == nil {
		f, err := os.Open(s.cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to open recording: %w", err)
		}
		s.closer = f
		r = f
	}
	s.scan = bufio.NewScanner(r)
	s.scan.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return nil
}

// Read returns the next recorded frame, or io.EOF at the end of the file.
// The frame payload holds the recorded detections for Detector.
func (s *Source) Read(ctx context.Context) (pipeline.Frame, error) {
	if s.scan == nil {
		return pipeline.Frame{}, fmt.Errorf("replay source %s is not open", s.name())
	}
	for {
		if err := ctx.Err(); err != nil {
			return pipeline.Frame{}, err
		}
		if !s.scan.Scan() {
			if err := s.scan.Err(); err != nil {
				return pipeline.Frame{}, fmt.Errorf("failed to read %s: %w", s.name(), err)
			}
			return pipeline.Frame{}, io.EOF
		}
		s.line++
		line := bytes.TrimSpace(s.scan.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		return s.frame(ctx, line)
	}
}

func (s *Source) frame(ctx context.Context, line []byte) (pipeline.Frame, error) {
	var rec wireRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return pipeline.Frame{}, fmt.Errorf("failed to parse %s line %d: %w", s.name(), s.line, err)
	}
	if rec.Timestamp.IsZero() {
		return pipeline.Frame{}, fmt.Errorf("%s line %d: missing timestamp", s.name(), s.line)
	}
	if rec.Width > 0 && rec.Height > 0 {
		s.width, s.height = rec.Width, rec.Height
	}

	seq := s.frames
	if rec.Seq != nil {
		seq = *rec.Seq
	}
	s.frames++

	if err := s.pace(ctx, rec.Timestamp); err != nil {
		return pipeline.Frame{}, err
	}
	if s.cfg.Clock != nil {
		s.cfg.Clock.Set(rec.Timestamp)
	}

	data := []byte(rec.Detections)
	if len(data) == 0 {
		data = []byte("[]")
	}
	return pipeline.Frame{
		Seq:       seq,
		Timestamp: rec.Timestamp,
		Width:     s.width,
		Height:    s.height,
		Data:      data,
	}, nil
}

// pace waits for the scaled gap between the previous and the current frame.
func (s *Source) pace(ctx context.Context, ts time.Time) error {
	defer func() {
		if ts.After(s.lastTS) {
			s.lastTS = ts
		}
		s.started = true
	}()
	if s.cfg.SpeedMultiplier <= 0 || !s.started {
		return nil
	}
	delay := time.Duration(float64(ts.Sub(s.lastTS)) / s.cfg.SpeedMultiplier)
	if delay <= 0 {
		return nil
	}
	if s.cfg.Sleeper != nil {
		s.cfg.Sleeper.Sleep(delay)
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close releases the recording file.
func (s *Source) Close() error {
	s.scan = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

func (s *Source) name() string {
	if s.cfg.Path != "" {
		return s.cfg.Path
	}
	return "recording"
}

// Encode writes rec as one JSONL line.
func Encode(w io.Writer, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

var _ pipeline.FrameSource = (*Source)(nil)
