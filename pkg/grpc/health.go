package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the memory store.
const ServiceName = "recall.v1.Memory"

// Pinger checks the memory store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer wraps the gRPC health check server
type HealthServer struct {
	server *health.Server
}

// NewHealthServer creates a new health check server
func NewHealthServer() *HealthServer {
	return &HealthServer{
		server: health.NewServer(),
	}
}

// SetServing marks the overall server and the memory service as serving or
// not.
func (h *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}

// Probe pings store once and updates the serving status.
func (h *HealthServer) Probe(ctx context.Context, store Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := store.Ping(ctx)
	h.SetServing(err == nil)
	return err
}

// Watch probes store every interval until ctx is done.
func (h *HealthServer) Watch(ctx context.Context, store Pinger, interval time.Duration, log Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Probe(ctx, store); err != nil && ctx.Err() == nil {
				log.Warn("gRPC health probe failed", "error", err)
			}
		}
	}
}

// Shutdown marks every service as not serving; later updates are ignored.
func (h *HealthServer) Shutdown() {
	h.server.Shutdown()
}

// GetServer returns the underlying health server for registration
func (h *HealthServer) GetServer() *health.Server {
	return h.server
}
