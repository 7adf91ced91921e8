package monitoring

import (
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthSink mirrors camera status into a gRPC health server. Each camera is
// registered as a health "service" named by its camera ID, so a probe can
// ask for one camera or for the overall process ("").
type HealthSink struct {
	server *health.Server
}

// NewHealthSink wraps a gRPC health server. If hs is nil a new server is created.
func NewHealthSink(hs *health.Server) *HealthSink {
	if hs == nil {
		hs = health.NewServer()
	}
	return &HealthSink{server: hs}
}

// Server returns the underlying health server for registration on a grpc.Server.
func (h *HealthSink) Server() *health.Server {
	return h.server
}

// FrameProcessed is a no-op; health only reflects lifecycle.
func (h *HealthSink) FrameProcessed(string, time.Duration, int, int) {}

// StatusChanged maps a camera status onto a serving status.
func (h *HealthSink) StatusChanged(cameraID string, status CameraStatus) {
	h.server.SetServingStatus(cameraID, servingStatus(status))
}

// Error is a no-op; per-frame errors do not change serving status.
func (h *HealthSink) Error(string, ErrorClass, error) {}

func servingStatus(status CameraStatus) healthpb.HealthCheckResponse_ServingStatus {
	switch status {
	case StatusActive:
		return healthpb.HealthCheckResponse_SERVING
	case StatusStopped:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_UNKNOWN
	}
}

var _ Sink = (*HealthSink)(nil)
