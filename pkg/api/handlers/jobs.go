package handlers

import (
	"context"
	"net/http"

	"github.com/recallkit/recall/pkg/api/response"
	"github.com/recallkit/recall/pkg/jobs"
	"github.com/recallkit/recall/pkg/memory"
)

// JobRunner runs maintenance jobs.
type JobRunner interface {
	FinalizeIdle(ctx context.Context, trigger string) (memory.FinalizeReport, error)
	Compress(ctx context.Context, trigger string) (memory.CompressionReport, error)
}

// JobsHandler exposes the maintenance jobs as token-guarded triggers.
type JobsHandler struct {
	runner JobRunner
	logger handlerLogger
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(runner JobRunner, log handlerLogger) *JobsHandler {
	return &JobsHandler{runner: runner, logger: orNop(log)}
}

// FinalizeIdleResponse reports one finalize-idle run.
type FinalizeIdleResponse struct {
	OK        bool `json:"ok"`
	Checked   int  `json:"checked"`
	Finalized int  `json:"finalized"`
	Embedded  int  `json:"embedded"`
}

// CompressResponse reports one compression run. Failed users carry -1 in
// every tier.
type CompressResponse struct {
	OK      bool                         `json:"ok"`
	Results map[string]memory.TierCounts `json:"results"`
}

// FinalizeIdle handles POST /api/v1/jobs/finalize-idle
// @Summary Finalize idle chats
// @Description Finalizes and summarizes chats idle past the configured window and embeds their messages.
// @Tags jobs
// @Produce json
// @Security JobToken
// @Success 200 {object} FinalizeIdleResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/jobs/finalize-idle [post]
func (h *JobsHandler) FinalizeIdle(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.FinalizeIdle(r.Context(), jobs.TriggerHTTP)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, FinalizeIdleResponse{
		OK:        true,
		Checked:   report.Checked,
		Finalized: report.Finalized,
		Embedded:  report.Embedded,
	})
}

// CompressMemory handles POST /api/v1/jobs/compress-memory
// @Summary Compress memory
// @Description Runs tiered distillation for every user.
// @Tags jobs
// @Produce json
// @Security JobToken
// @Success 200 {object} CompressResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/jobs/compress-memory [post]
func (h *JobsHandler) CompressMemory(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.Compress(r.Context(), jobs.TriggerHTTP)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	results := make(map[string]memory.TierCounts, len(report))
	for user, counts := range report {
		results[user] = counts
	}
	response.JSON(w, http.StatusOK, CompressResponse{OK: true, Results: results})
}
