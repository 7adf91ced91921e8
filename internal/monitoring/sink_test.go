package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type recordingSink struct {
	mu     sync.Mutex
	frames int
	status []CameraStatus
	errs   []ErrorClass
}

func (r *recordingSink) FrameProcessed(string, time.Duration, int, int) {
	r.mu.Lock()
	r.frames++
	r.mu.Unlock()
}

func (r *recordingSink) StatusChanged(_ string, s CameraStatus) {
	r.mu.Lock()
	r.status = append(r.status, s)
	r.mu.Unlock()
}

func (r *recordingSink) Error(_ string, c ErrorClass, _ error) {
	r.mu.Lock()
	r.errs = append(r.errs, c)
	r.mu.Unlock()
}

func TestMultiSink_FansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{a, b}

	m.FrameProcessed("cam", time.Millisecond, 1, 1)
	m.StatusChanged("cam", StatusActive)
	m.Error("cam", ErrorDetector, errors.New("boom"))

	for _, r := range []*recordingSink{a, b} {
		assert.Equal(t, 1, r.frames)
		assert.Equal(t, []CameraStatus{StatusActive}, r.status)
		assert.Equal(t, []ErrorClass{ErrorDetector}, r.errs)
	}
}

func TestMetricsSink_Summary(t *testing.T) {
	t.Parallel()
	m := NewMetricsSink(0)

	for i := 1; i <= 100; i++ {
		m.FrameProcessed("cam-b", time.Duration(i)*time.Millisecond, 2, 3)
	}
	m.StatusChanged("cam-b", StatusActive)
	m.Error("cam-b", ErrorDetector, errors.New("bad frame"))
	m.Error("cam-b", ErrorDetector, errors.New("bad frame again"))
	m.StatusChanged("cam-a", StatusInitialized)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "cam-a", snap[0].CameraID)

	b := snap[1]
	assert.Equal(t, StatusActive, b.Status)
	assert.Equal(t, uint64(100), b.Frames)
	assert.Equal(t, uint64(200), b.Detections)
	assert.Equal(t, 3, b.Tracks)
	assert.Equal(t, 100, b.Latency.Samples)
	assert.InDelta(t, 0.0505, b.Latency.Mean, 1e-9)
	assert.InDelta(t, 0.050, b.Latency.P50, 1e-9)
	assert.InDelta(t, 0.095, b.Latency.P95, 1e-9)
	assert.InDelta(t, 0.100, b.Latency.Max, 1e-9)
	assert.Equal(t, uint64(2), b.Errors[ErrorDetector])
	assert.Equal(t, "bad frame again", b.LastError)
}

func TestMetricsSink_RingBufferWraps(t *testing.T) {
	t.Parallel()
	m := NewMetricsSink(4)
	for i := 1; i <= 10; i++ {
		m.FrameProcessed("cam", time.Duration(i)*time.Second, 0, 0)
	}
	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 4, snap[0].Latency.Samples)
	assert.Equal(t, uint64(10), snap[0].Frames)
	// Only 7..10 remain.
	assert.InDelta(t, 8.5, snap[0].Latency.Mean, 1e-9)
	assert.InDelta(t, 10.0, snap[0].Latency.Max, 1e-9)
}

func TestHealthSink_MapsStatus(t *testing.T) {
	t.Parallel()
	h := NewHealthSink(nil)
	ctx := context.Background()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := h.Server().Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.Status
	}

	h.StatusChanged("cam-1", StatusInitialized)
	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, check("cam-1"))

	h.StatusChanged("cam-1", StatusActive)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("cam-1"))

	h.Error("cam-1", ErrorSource, errors.New("eof"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("cam-1"))

	h.StatusChanged("cam-1", StatusStopped)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check("cam-1"))
}
