package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultLatencyWindow is the number of recent frame latencies kept per camera.
const DefaultLatencyWindow = 1024

// MetricsSink keeps in-memory per-camera counters and a rolling window of
// frame latencies. It backs the /debug camera status page.
type MetricsSink struct {
	mu      sync.Mutex
	window  int
	cameras map[string]*cameraMetrics
}

type cameraMetrics struct {
	status     CameraStatus
	frames     uint64
	detections uint64
	lastTracks int
	latencies  []float64 // seconds, ring buffer
	next       int
	errors     map[ErrorClass]uint64
	lastError  string
	lastErrAt  time.Time
}

// LatencySummary describes the recent frame latency distribution in seconds.
type LatencySummary struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean_secs"`
	P50     float64 `json:"p50_secs"`
	P95     float64 `json:"p95_secs"`
	Max     float64 `json:"max_secs"`
}

// CameraMetrics is a point-in-time copy of one camera's counters.
type CameraMetrics struct {
	CameraID   string                `json:"camera_id"`
	Status     CameraStatus          `json:"status"`
	Frames     uint64                `json:"frames"`
	Detections uint64                `json:"detections"`
	Tracks     int                   `json:"tracks"`
	Latency    LatencySummary        `json:"latency"`
	Errors     map[ErrorClass]uint64 `json:"errors"`
	LastError  string                `json:"last_error,omitempty"`
	LastErrAt  time.Time             `json:"last_error_at,omitempty"`
}

// NewMetricsSink creates a MetricsSink keeping window latencies per camera.
// A non-positive window uses DefaultLatencyWindow.
func NewMetricsSink(window int) *MetricsSink {
	if window <= 0 {
		window = DefaultLatencyWindow
	}
	return &MetricsSink{
		window:  window,
		cameras: make(map[string]*cameraMetrics),
	}
}

func (m *MetricsSink) camera(id string) *cameraMetrics {
	c, ok := m.cameras[id]
	if !ok {
		c = &cameraMetrics{
			latencies: make([]float64, 0, m.window),
			errors:    make(map[ErrorClass]uint64),
		}
		m.cameras[id] = c
	}
	return c
}

// FrameProcessed records a frame latency.
func (m *MetricsSink) FrameProcessed(cameraID string, elapsed time.Duration, detections, tracks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.camera(cameraID)
	c.frames++
	c.detections += uint64(detections)
	c.lastTracks = tracks
	secs := elapsed.Seconds()
	if len(c.latencies) < m.window {
		c.latencies = append(c.latencies, secs)
		return
	}
	c.latencies[c.next] = secs
	c.next = (c.next + 1) % m.window
}

// StatusChanged records the latest status.
func (m *MetricsSink) StatusChanged(cameraID string, status CameraStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.camera(cameraID).status = status
}

// Error counts an error by class.
func (m *MetricsSink) Error(cameraID string, class ErrorClass, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.camera(cameraID)
	c.errors[class]++
	if err != nil {
		c.lastError = err.Error()
	}
	c.lastErrAt = time.Now()
}

// Snapshot returns a copy of every camera's counters, sorted by camera ID.
func (m *MetricsSink) Snapshot() []CameraMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CameraMetrics, 0, len(m.cameras))
	for id, c := range m.cameras {
		errs := make(map[ErrorClass]uint64, len(c.errors))
		for k, v := range c.errors {
			errs[k] = v
		}
		out = append(out, CameraMetrics{
			CameraID:   id,
			Status:     c.status,
			Frames:     c.frames,
			Detections: c.detections,
			Tracks:     c.lastTracks,
			Latency:    summarise(c.latencies),
			Errors:     errs,
			LastError:  c.lastError,
			LastErrAt:  c.lastErrAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

func summarise(latencies []float64) LatencySummary {
	if len(latencies) == 0 {
		return LatencySummary{}
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)
	return LatencySummary{
		Samples: len(sorted),
		Mean:    stat.Mean(sorted, nil),
		P50:     stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:     stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:     floats.Max(sorted),
	}
}

var _ Sink = (*MetricsSink)(nil)
