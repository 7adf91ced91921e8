package monitoring

import (
	"time"
)

// CameraStatus is a lifecycle status reported for one camera session.
type CameraStatus string

const (
	StatusInitialized CameraStatus = "initialized"
	StatusActive      CameraStatus = "active"
	StatusStopped     CameraStatus = "stopped"
)

// ErrorClass tags an error event so that dashboards can separate a flaky
// detector from a broken database without parsing messages.
type ErrorClass string

const (
	ErrorSource        ErrorClass = "source"
	ErrorDetector      ErrorClass = "detector"
	ErrorPersistence   ErrorClass = "persistence"
	ErrorConfiguration ErrorClass = "configuration"
	ErrorComponent     ErrorClass = "component"
	ErrorMining        ErrorClass = "mining"
)

// Sink receives observability events from camera processors. Implementations
// must be safe for concurrent use because every camera session runs on its
// own goroutine and shares the sink.
type Sink interface {
	// FrameProcessed records one loop iteration, including any timer work
	// that ran after the frame.
	FrameProcessed(cameraID string, elapsed time.Duration, detections, tracks int)

	// StatusChanged records a lifecycle transition.
	StatusChanged(cameraID string, status CameraStatus)

	// Error records a classified error event.
	Error(cameraID string, class ErrorClass, err error)
}

// LogSink writes status transitions and errors through Logf. Per-frame
// timings are only logged when Verbose is set.
type LogSink struct {
	Verbose bool
}

// FrameProcessed logs frame timing when verbose.
func (s LogSink) FrameProcessed(cameraID string, elapsed time.Duration, detections, tracks int) {
	if !s.Verbose {
		return
	}
	Logf("[camera %s] frame processed in %v: detections=%d tracks=%d", cameraID, elapsed, detections, tracks)
}

// StatusChanged logs a lifecycle transition.
func (s LogSink) StatusChanged(cameraID string, status CameraStatus) {
	Logf("[camera %s] status=%s", cameraID, status)
}

// Error logs a classified error.
func (s LogSink) Error(cameraID string, class ErrorClass, err error) {
	Logf("[camera %s] error class=%s: %v", cameraID, class, err)
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// FrameProcessed forwards to every sink.
func (m MultiSink) FrameProcessed(cameraID string, elapsed time.Duration, detections, tracks int) {
	for _, s := range m {
		s.FrameProcessed(cameraID, elapsed, detections, tracks)
	}
}

// StatusChanged forwards to every sink.
func (m MultiSink) StatusChanged(cameraID string, status CameraStatus) {
	for _, s := range m {
		s.StatusChanged(cameraID, status)
	}
}

// Error forwards to every sink.
func (m MultiSink) Error(cameraID string, class ErrorClass, err error) {
	for _, s := range m {
		s.Error(cameraID, class, err)
	}
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) FrameProcessed(string, time.Duration, int, int) {}
func (NopSink) StatusChanged(string, CameraStatus)             {}
func (NopSink) Error(string, ErrorClass, error)                {}

var (
	_ Sink = LogSink{}
	_ Sink = MultiSink(nil)
	_ Sink = NopSink{}
)
