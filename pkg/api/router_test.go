package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/api/handlers"
	"github.com/recallkit/recall/pkg/logger"
	"github.com/recallkit/recall/pkg/memory"
	memstore "github.com/recallkit/recall/pkg/storage/memory"
)

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "summary", nil
}

type stubRunner struct{}

func (stubRunner) FinalizeIdle(ctx context.Context, trigger string) (memory.FinalizeReport, error) {
	return memory.FinalizeReport{Checked: 1}, nil
}

func (stubRunner) Compress(ctx context.Context, trigger string) (memory.CompressionReport, error) {
	return memory.CompressionReport{}, nil
}

type countingRecorder struct {
	requests atomic.Int32
}

func (c *countingRecorder) RecordHTTPRequest(method, path, status string, d time.Duration) {
	c.requests.Add(1)
}
func (c *countingRecorder) IncActiveConnections() {}
func (c *countingRecorder) DecActiveConnections() {}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.HTTP.RequestTimeout = 5 * time.Second
	return cfg
}

func createTestHandlers(t *testing.T, token *atomic.Value) *Handlers {
	t.Helper()
	store := memstore.NewMemoryStorage()
	hub := memory.NewHub(store, memstore.NewEmbeddingStore(), nil, echoGenerator{}, memory.DefaultConfig())
	events := handlers.NewWebSocketHandler(nil, handlers.WebSocketConfig{})
	t.Cleanup(events.Close)

	return &Handlers{
		Jobs:    handlers.NewJobsHandler(stubRunner{}, nil),
		Chats:   handlers.NewChatHandler(store, hub, nil),
		Memory:  handlers.NewMemoryHandler(hub, store, nil),
		Health:  handlers.NewHealthHandler(store, handlers.HealthOptions{Clients: events.Clients}),
		Events:  events,
		Metrics: &countingRecorder{},
		JobToken: func() string {
			s, _ := token.Load().(string)
			return s
		},
	}
}

func newTestRouter(t *testing.T, secret string) (http.Handler, *atomic.Value, *Handlers) {
	t.Helper()
	var token atomic.Value
	token.Store(secret)
	h := createTestHandlers(t, &token)
	return NewRouter(testConfig(), logger.Discard(), h), &token, h
}

func serve(router http.Handler, method, path, token string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_ProbesAreOpen(t *testing.T) {
	router, _, _ := newTestRouter(t, "s3cret")

	for _, path := range []string{"/health", "/ready", "/status"} {
		rec := serve(router, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), path)
	}
}

func TestRouter_APIRequiresToken(t *testing.T) {
	router, _, _ := newTestRouter(t, "s3cret")

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/jobs/finalize-idle"},
		{http.MethodPost, "/api/v1/jobs/compress-memory"},
		{http.MethodPost, "/api/v1/users/u1/chats"},
		{http.MethodGet, "/api/v1/users/u1/memory/search?q=x"},
		{http.MethodGet, "/api/v1/users/u1/memory/context"},
		{http.MethodDelete, "/api/v1/users/u1/memory"},
		{http.MethodGet, "/api/v1/events"},
	}
	for _, rt := range routes {
		rec := serve(router, rt.method, rt.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)

		rec = serve(router, rt.method, rt.path, "wrong", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)
	}
}

func TestRouter_UnconfiguredTokenRejectsAll(t *testing.T) {
	router, _, _ := newTestRouter(t, "")
	rec := serve(router, http.MethodPost, "/api/v1/jobs/finalize-idle", "anything", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_TokenRotation(t *testing.T) {
	router, token, _ := newTestRouter(t, "old")

	require.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/api/v1/jobs/finalize-idle", "old", "").Code)

	token.Store("new")
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, "/api/v1/jobs/finalize-idle", "old", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/api/v1/jobs/finalize-idle", "new", "").Code)
}

func TestRouter_JobTokenHeader(t *testing.T) {
	router, _, _ := newTestRouter(t, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/compress-memory", nil)
	req.Header.Set("X-JOB-TOKEN", "s3cret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"results":{}}`, rec.Body.String())
}

func TestRouter_ChatLifecycle(t *testing.T) {
	router, _, h := newTestRouter(t, "s3cret")

	rec := serve(router, http.MethodPost, "/api/v1/users/u1/chats", "s3cret", `{"id":"c1","title":"Trip"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodPost, "/api/v1/users/u1/chats/c1/messages", "s3cret",
		`{"messages":[{"role":"user","parts":[{"type":"text","text":"we planned a hiking trip"}]}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/v1/users/u1/memory/search?q=hiking", "s3cret", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"chat_id":"c1"`)

	rec = serve(router, http.MethodPost, "/api/v1/users/u1/chats/c1/finalize", "s3cret", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"finalized":true}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/v1/users/u1/memory/summary", "s3cret", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"summary"`)

	rec = serve(router, http.MethodDelete, "/api/v1/users/u1/memory", "s3cret", "")
	require.Equal(t, http.StatusOK, rec.Code)

	recorder := h.Metrics.(*countingRecorder)
	assert.GreaterOrEqual(t, recorder.requests.Load(), int32(6))
}

func TestRouter_NotFound(t *testing.T) {
	router, _, _ := newTestRouter(t, "s3cret")
	rec := serve(router, http.MethodGet, "/api/v1/unknown", "s3cret", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Swagger(t *testing.T) {
	router, _, _ := newTestRouter(t, "s3cret")
	rec := serve(router, http.MethodGet, "/swagger/doc.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/jobs/finalize-idle")
	assert.Contains(t, rec.Body.String(), "Recall API")
}
