package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/recallkit/recall/pkg/api/response"
	"github.com/recallkit/recall/pkg/memory"
	"github.com/recallkit/recall/pkg/version"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbedderStatus reports the embedder lifecycle.
type EmbedderStatus interface {
	State() memory.EmbedderState
	Model() string
}

// SchedulerStatus reports scheduled jobs.
type SchedulerStatus interface {
	Scheduled() []string
	Next(job string) time.Time
}

// HealthOptions holds the optional dependencies reported by /status.
type HealthOptions struct {
	Embedder  EmbedderStatus
	Scheduler SchedulerStatus
	Clients   func() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store   Pinger
	opts    HealthOptions
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store Pinger, opts HealthOptions) *HealthHandler {
	return &HealthHandler{store: store, opts: opts, started: time.Now()}
}

// StatusResponse is the detailed service status.
type StatusResponse struct {
	Status        string            `json:"status"`
	Build         version.BuildInfo `json:"build"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Storage       string            `json:"storage"`
	Embedder      *EmbedderReport   `json:"embedder,omitempty"`
	Jobs          []JobReport       `json:"jobs,omitempty"`
	EventClients  int               `json:"event_clients"`
}

// EmbedderReport describes the embedder.
type EmbedderReport struct {
	State string `json:"state"`
	Model string `json:"model"`
}

// JobReport describes one scheduled job.
type JobReport struct {
	Name    string     `json:"name"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// Health handles the /health endpoint (liveness probe).
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint (readiness probe).
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 503 {object} map[string]bool
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r.Context()); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// Status handles the /status endpoint (detailed status).
// @Summary Service status
// @Tags health
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /status [get]
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        "ok",
		Build:         version.Info(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Storage:       "ok",
	}
	if err := h.ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Storage = err.Error()
	}
	if h.opts.Embedder != nil {
		resp.Embedder = &EmbedderReport{
			State: h.opts.Embedder.State().String(),
			Model: h.opts.Embedder.Model(),
		}
	}
	if h.opts.Scheduler != nil {
		for _, name := range h.opts.Scheduler.Scheduled() {
			job := JobReport{Name: name}
			if next := h.opts.Scheduler.Next(name); !next.IsZero() {
				job.NextRun = &next
			}
			resp.Jobs = append(resp.Jobs, job)
		}
	}
	if h.opts.Clients != nil {
		resp.EventClients = h.opts.Clients()
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) ping(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.store.Ping(ctx)
}
