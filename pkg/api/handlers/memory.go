package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/recallkit/recall/pkg/api/response"
	"github.com/recallkit/recall/pkg/memory"
	"github.com/recallkit/recall/pkg/storage"
)

const (
	noMatchesMessage    = "No matching messages found."
	searchFailedMessage = "Search failed."
	isoMillis           = "2006-01-02T15:04:05.000Z07:00"

	defaultListLimit = 20
	maxListLimit     = 100
)

// MemoryService is the memory pipeline behind the memory endpoints.
type MemoryService interface {
	Search(ctx context.Context, userID, query string, limit int) ([]memory.SearchResult, error)
	SearchDistilled(ctx context.Context, userID, query string, limit int) ([]memory.DistilledResult, error)
	BuildContext(ctx context.Context, userID, message string) (string, bool)
	DeleteUser(ctx context.Context, userID string) error
}

// MemoryReader reads stored memory.
type MemoryReader interface {
	storage.SummaryStore
	ListEntries(ctx context.Context, userID string, tier storage.Tier, createdBefore time.Time, limit int) ([]*storage.DistilledEntry, error)
}

// MemoryHandler handles memory-related API endpoints.
type MemoryHandler struct {
	hub    MemoryService
	store  MemoryReader
	logger handlerLogger
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(hub MemoryService, store MemoryReader, log handlerLogger) *MemoryHandler {
	return &MemoryHandler{hub: hub, store: store, logger: orNop(log)}
}

// SearchHit is one search-memory tool result.
type SearchHit struct {
	ChatID  string `json:"chat_id"`
	Role    string `json:"role"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
}

// SearchResponse is the search-memory tool shape.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
	Message string      `json:"message,omitempty"`
}

// ContextResponse is a built memory context.
type ContextResponse struct {
	Context   string `json:"context"`
	Length    int    `json:"length"`
	HasMemory bool   `json:"has_memory"`
}

// SummaryResponse wraps the rolling summary; Summary is null before the
// first finalized chat.
type SummaryResponse struct {
	Summary *storage.Summary `json:"summary"`
}

// VersionsResponse lists archived summaries, newest first.
type VersionsResponse struct {
	Versions []*storage.SummaryVersion `json:"versions"`
}

// DistilledResponse lists distilled entries, newest first.
type DistilledResponse struct {
	Entries []*storage.DistilledEntry `json:"entries"`
}

// DistilledSearchResponse lists semantic hits over distilled memory.
type DistilledSearchResponse struct {
	Results []memory.DistilledResult `json:"results"`
}

// Search handles GET /api/v1/users/{userID}/memory/search
// @Summary Search past messages
// @Description Hybrid keyword and semantic search over the user's messages.
// @Tags memory
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Param q query string true "Query"
// @Param limit query int false "Maximum results (default 10, max 50)"
// @Success 200 {object} SearchResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/users/{userID}/memory/search [get]
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, "limit", 0, memory.MaxSearchLimit)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	userID := userParam(r)
	results, err := h.hub.Search(r.Context(), userID, r.URL.Query().Get("q"), limit)
	if err != nil {
		if userID == "" {
			writeError(w, r, h.logger, err)
			return
		}
		h.logger.Warn("memory search failed", "user_id", userID, "error", err)
		response.JSON(w, http.StatusOK, SearchResponse{Results: []SearchHit{}, Message: searchFailedMessage})
		return
	}

	resp := SearchResponse{Results: make([]SearchHit, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, SearchHit{
			ChatID:  res.ChatID,
			Role:    res.Role,
			Date:    res.CreatedAt.UTC().Format(isoMillis),
			Snippet: res.Snippet,
		})
	}
	if len(resp.Results) == 0 {
		resp.Message = noMatchesMessage
	}
	response.JSON(w, http.StatusOK, resp)
}

// Context handles GET /api/v1/users/{userID}/memory/context
// @Summary Build memory context
// @Description Builds the bounded memory context injected into a prompt.
// @Tags memory
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Param message query string false "Current user message"
// @Success 200 {object} ContextResponse
// @Router /api/v1/users/{userID}/memory/context [get]
func (h *MemoryHandler) Context(w http.ResponseWriter, r *http.Request) {
	userID := userParam(r)
	if userID == "" {
		writeError(w, r, h.logger, memory.ErrInvalidUserID)
		return
	}
	text, has := h.hub.BuildContext(r.Context(), userID, r.URL.Query().Get("message"))
	response.JSON(w, http.StatusOK, ContextResponse{
		Context:   text,
		Length:    len([]rune(text)),
		HasMemory: has,
	})
}

// Summary handles GET /api/v1/users/{userID}/memory/summary
// @Summary Get the rolling summary
// @Tags memory
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Success 200 {object} SummaryResponse
// @Router /api/v1/users/{userID}/memory/summary [get]
func (h *MemoryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID := userParam(r)
	if userID == "" {
		writeError(w, r, h.logger, memory.ErrInvalidUserID)
		return
	}
	summary, err := h.store.GetSummary(r.Context(), userID)
	if err != nil && !storage.IsNotFound(err) {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, SummaryResponse{Summary: summary})
}

// SummaryVersions handles GET /api/v1/users/{userID}/memory/summary/versions
// @Summary List archived summaries
// @Tags memory
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Param limit query int false "Maximum versions (default 20, max 100)"
// @Success 200 {object} VersionsResponse
// @Router /api/v1/users/{userID}/memory/summary/versions [get]
func (h *MemoryHandler) SummaryVersions(w http.ResponseWriter, r *http.Request) {
	userID := userParam(r)
	if userID == "" {
		writeError(w, r, h.logger, memory.ErrInvalidUserID)
		return
	}
	limit, err := parseLimit(r, "limit", defaultListLimit, maxListLimit)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	versions, err := h.store.ListSummaryVersions(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if versions == nil {
		versions = []*storage.SummaryVersion{}
	}
	response.JSON(w, http.StatusOK, VersionsResponse{Versions: versions})
}

// Distilled handles GET /api/v1/users/{userID}/memory/distilled
// @Summary List distilled memory
// @Tags memory
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Param tier query int false "Tier (1-3); all tiers when omitted"
// @Param limit query int false "Maximum entries per tier (default 20, max 100)"
// @Success 200 {object} DistilledResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/users/{userID}/memory/distilled [get]
func (h *MemoryHandler) Distilled(w http.ResponseWriter, r *http.Request) {
	userID := userParam(r)
	if userID == "" {
		writeError(w, r, h.logger, memory.ErrInvalidUserID)
		return
	}
	limit, err := parseLimit(r, "limit", defaultListLimit, maxListLimit)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	tiers := []storage.Tier{storage.TierSession, storage.TierWeekly, storage.TierLongTerm}
	if raw := strings.TrimSpace(r.URL.Query().Get("tier")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !storage.Tier(n).Valid() {
			badRequest(w, r, "tier must be 1, 2 or 3")
			return
		}
		tiers = []storage.Tier{storage.Tier(n)}
	}

	entries := []*storage.DistilledEntry{}
	for _, tier := range tiers {
		got, err := h.store.ListEntries(r.Context(), userID, tier, time.Time{}, limit)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		entries = append(entries, got...)
	}
	response.JSON(w, http.StatusOK, DistilledResponse{Entries: entries})
}

// SearchDistilled handles GET /api/v1/users/{userID}/memory/distilled/search
// @Summary Search distilled memory
// @Description Semantic search over embeddings of distilled entries. Empty when no embedder is available.
// @Tags memory
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Param q query string true "Query"
// @Param limit query int false "Maximum results (default 10, max 50)"
// @Success 200 {object} DistilledSearchResponse
// @Router /api/v1/users/{userID}/memory/distilled/search [get]
func (h *MemoryHandler) SearchDistilled(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, "limit", 0, memory.MaxSearchLimit)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	results, err := h.hub.SearchDistilled(r.Context(), userParam(r), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, DistilledSearchResponse{Results: results})
}

// DeleteMemory handles DELETE /api/v1/users/{userID}/memory
// @Summary Delete all memory of a user
// @Description Removes chats, messages, summaries, distilled entries and embeddings.
// @Tags memory
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Success 200 {object} map[string]bool
// @Router /api/v1/users/{userID}/memory [delete]
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.DeleteUser(r.Context(), userParam(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
