package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall/pkg/api/response"
	"github.com/recallkit/recall/pkg/cache"
	"github.com/recallkit/recall/pkg/memory"
	"github.com/recallkit/recall/pkg/storage"
	memstore "github.com/recallkit/recall/pkg/storage/memory"
)

type fixedGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *fixedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return "The user enjoys hiking in the Alps.", nil
}

type testEnv struct {
	store  *memstore.MemoryStorage
	hub    *memory.Hub
	router http.Handler
}

func newTestEnv(t *testing.T, opts ...memory.Option) *testEnv {
	t.Helper()
	store := memstore.NewMemoryStorage()
	embedder := memory.NewLazyEmbedder(memory.HashBackend{Dimension: 32}, memory.EmbedderOptions{Dimension: 32})
	hub := memory.NewHub(store, memstore.NewEmbeddingStore(), embedder, &fixedGenerator{}, memory.DefaultConfig(), opts...)

	chats := NewChatHandler(store, hub, nil)
	mem := NewMemoryHandler(hub, store, nil)

	r := chi.NewRouter()
	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Post("/chats", chats.CreateChat)
		r.Post("/chats/{chatID}/messages", chats.AppendMessages)
		r.Post("/chats/{chatID}/finalize", chats.FinalizeChat)
		r.Route("/memory", func(r chi.Router) {
			r.Delete("/", mem.DeleteMemory)
			r.Get("/search", mem.Search)
			r.Get("/context", mem.Context)
			r.Get("/summary", mem.Summary)
			r.Get("/summary/versions", mem.SummaryVersions)
			r.Get("/distilled", mem.Distilled)
			r.Get("/distilled/search", mem.SearchDistilled)
		})
	})
	return &testEnv{store: store, hub: hub, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) seedChat(t *testing.T, userID, chatID string, texts ...string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/users/"+userID+"/chats", CreateChatRequest{ID: chatID, Title: "t"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	if len(texts) == 0 {
		return
	}
	msgs := make([]MessageRequest, len(texts))
	for i, text := range texts {
		msgs[i] = MessageRequest{Role: "user", Parts: []PartRequest{{Type: "text", Text: text}}}
	}
	rec = e.do(t, http.MethodPost, "/api/v1/users/"+userID+"/chats/"+chatID+"/messages", AppendMessagesRequest{Messages: msgs})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestChatHandler_CreateChat(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/users/u1/chats", CreateChatRequest{Title: "Trip"})
	require.Equal(t, http.StatusCreated, rec.Code)
	chat := decodeBody[storage.Chat](t, rec)
	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, "u1", chat.UserID)
	assert.Equal(t, storage.VisibilityPrivate, chat.Visibility)

	rec = env.do(t, http.MethodPost, "/api/v1/users/u1/chats", CreateChatRequest{ID: chat.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/users/u1/chats", CreateChatRequest{Visibility: "secret"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.ErrCodeValidationFailed, decodeBody[response.ErrorResponse](t, rec).Error.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/users/u1/chats", map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandler_AppendMessagesRefreshesCachedContext(t *testing.T) {
	env := newTestEnv(t, memory.WithContextCache(cache.NewMemoryCache(time.Minute)))
	env.seedChat(t, "u1", "c1", "We talked about an alpine lake.")

	rec := env.do(t, http.MethodGet, "/api/v1/users/u1/memory/context?message=glacier", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[ContextResponse](t, rec).HasMemory)

	req := AppendMessagesRequest{Messages: []MessageRequest{
		{Role: "user", Parts: []PartRequest{{Type: "text", Text: "Next summer I want a glacier trek."}}},
	}}
	rec = env.do(t, http.MethodPost, "/api/v1/users/u1/chats/c1/messages", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/users/u1/memory/context?message=glacier", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ContextResponse](t, rec)
	assert.True(t, resp.HasMemory)
	assert.Contains(t, resp.Context, "trek")
}

func TestChatHandler_AppendMessages(t *testing.T) {
	env := newTestEnv(t)
	env.seedChat(t, "u1", "c1")

	req := AppendMessagesRequest{Messages: []MessageRequest{
		{ID: "m1", Role: "user", Parts: []PartRequest{{Type: "text", Text: "hello"}}},
		{Role: "assistant", Parts: []PartRequest{{Type: "text", Text: "hi"}}},
	}}
	rec := env.do(t, http.MethodPost, "/api/v1/users/u1/chats/c1/messages", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[AppendMessagesResponse](t, rec)
	assert.Equal(t, 2, resp.Appended)
	require.Len(t, resp.IDs, 2)
	assert.Equal(t, "m1", resp.IDs[0])

	chat, err := env.store.GetChat(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, chat.MessageCount)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown chat", "/api/v1/users/u1/chats/missing/messages", req, http.StatusNotFound},
		{"foreign chat", "/api/v1/users/u2/chats/c1/messages", req, http.StatusForbidden},
		{"no messages", "/api/v1/users/u1/chats/c1/messages", AppendMessagesRequest{}, http.StatusBadRequest},
		{"bad role", "/api/v1/users/u1/chats/c1/messages", AppendMessagesRequest{Messages: []MessageRequest{
			{Role: "robot", Parts: []PartRequest{{Type: "text", Text: "x"}}},
		}}, http.StatusBadRequest},
		{"duplicate id", "/api/v1/users/u1/chats/c1/messages", AppendMessagesRequest{Messages: []MessageRequest{
			{ID: "m1", Role: "user", Parts: []PartRequest{{Type: "text", Text: "again"}}},
		}}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestChatHandler_FinalizeChat(t *testing.T) {
	env := newTestEnv(t)
	env.seedChat(t, "u1", "c1", "I went hiking in the Alps")

	rec := env.do(t, http.MethodPost, "/api/v1/users/u1/chats/c1/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, FinalizeChatResponse{OK: true, Finalized: true}, decodeBody[FinalizeChatResponse](t, rec))

	rec = env.do(t, http.MethodPost, "/api/v1/users/u1/chats/c1/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, FinalizeChatResponse{OK: true, Finalized: false}, decodeBody[FinalizeChatResponse](t, rec))

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/v1/users/u2/chats/c1/finalize", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/users/u1/chats/nope/finalize", nil).Code)

	rec = env.do(t, http.MethodGet, "/api/v1/users/u1/memory/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[SummaryResponse](t, rec)
	require.NotNil(t, summary.Summary)
	assert.Equal(t, "The user enjoys hiking in the Alps.", summary.Summary.Content)
	assert.Equal(t, 1, summary.Summary.Version)
}

func TestMemoryHandler_Search(t *testing.T) {
	env := newTestEnv(t)
	env.seedChat(t, "u1", "c1", "I went hiking in the Alps", "Dinner was pasta")
	env.seedChat(t, "u2", "c2", "hiking alone")

	rec := env.do(t, http.MethodGet, "/api/v1/users/u1/memory/search?q=hiking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[SearchResponse](t, rec)
	require.NotEmpty(t, resp.Results)
	assert.Empty(t, resp.Message)
	for _, hit := range resp.Results {
		assert.Equal(t, "c1", hit.ChatID)
		assert.Equal(t, "user", hit.Role)
		_, err := time.Parse(isoMillis, hit.Date)
		assert.NoError(t, err)
		assert.True(t, strings.HasSuffix(hit.Date, "Z"), hit.Date)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/users/u3/memory/search?q=hiking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[SearchResponse](t, rec)
	assert.Empty(t, resp.Results)
	assert.Equal(t, noMatchesMessage, resp.Message)
	assert.Contains(t, rec.Body.String(), `"results":[]`)

	rec = env.do(t, http.MethodGet, "/api/v1/users/u1/memory/search?q=hiking&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingMemory struct{ MemoryService }

func (failingMemory) Search(context.Context, string, string, int) ([]memory.SearchResult, error) {
	return nil, errors.New("index offline")
}

func TestMemoryHandler_SearchFailure(t *testing.T) {
	h := NewMemoryHandler(failingMemory{}, nil, nil)
	r := chi.NewRouter()
	r.Get("/users/{userID}/search", h.Search)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u1/search?q=x", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[SearchResponse](t, rec)
	assert.Empty(t, resp.Results)
	assert.Equal(t, searchFailedMessage, resp.Message)
}

func TestMemoryHandler_Context(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/users/u1/memory/context?message=hi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decodeBody[ContextResponse](t, rec)
	assert.False(t, empty.HasMemory)
	assert.Equal(t, len([]rune(empty.Context)), empty.Length)

	env.seedChat(t, "u1", "c1", "I went hiking in the Alps")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/users/u1/chats/c1/finalize", nil).Code)

	rec = env.do(t, http.MethodGet, "/api/v1/users/u1/memory/context?message=hiking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[ContextResponse](t, rec)
	assert.True(t, got.HasMemory)
	assert.Contains(t, got.Context, "hiking in the Alps")
	assert.Equal(t, len([]rune(got.Context)), got.Length)
	assert.LessOrEqual(t, got.Length, env.hub.Config().Memory.ContextBudget)
}

func TestMemoryHandler_SummaryAndVersions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/users/u1/memory/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"summary":null}`, rec.Body.String())

	env.seedChat(t, "u1", "c1", "first")
	env.seedChat(t, "u1", "c2", "second")
	env.do(t, http.MethodPost, "/api/v1/users/u1/chats/c1/finalize", nil)
	env.do(t, http.MethodPost, "/api/v1/users/u1/chats/c2/finalize", nil)

	rec = env.do(t, http.MethodGet, "/api/v1/users/u1/memory/summary/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decodeBody[VersionsResponse](t, rec)
	require.Len(t, versions.Versions, 1)
	assert.Equal(t, 1, versions.Versions[0].Version)

	rec = env.do(t, http.MethodGet, "/api/v1/users/u1/memory/summary/versions?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemoryHandler_Distilled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.InsertEntry(ctx, &storage.DistilledEntry{
		ID: "e1", UserID: "u1", Tier: storage.TierSession, Content: "likes hiking",
		SourceChatIDs: []string{"c1"}, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, env.store.InsertEntry(ctx, &storage.DistilledEntry{
		ID: "e2", UserID: "u1", Tier: storage.TierWeekly, Content: "outdoor person",
		SourceChatIDs: []string{"c1"}, CreatedAt: time.Now().UTC(),
	}))

	rec := env.do(t, http.MethodGet, "/api/v1/users/u1/memory/distilled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[DistilledResponse](t, rec).Entries, 2)

	rec = env.do(t, http.MethodGet, "/api/v1/users/u1/memory/distilled?tier=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[DistilledResponse](t, rec).Entries
	require.Len(t, entries, 1)
	assert.Equal(t, "e2", entries[0].ID)

	for _, tier := range []string{"0", "4", "x"} {
		rec = env.do(t, http.MethodGet, "/api/v1/users/u1/memory/distilled?tier="+tier, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tier)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/users/u2/memory/distilled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())
}

func TestMemoryHandler_SearchDistilledEmptyQuery(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/users/u1/memory/distilled/search?q=", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())
}

func TestMemoryHandler_DeleteMemory(t *testing.T) {
	env := newTestEnv(t)
	env.seedChat(t, "u1", "c1", "I went hiking in the Alps")
	env.do(t, http.MethodPost, "/api/v1/users/u1/chats/c1/finalize", nil)

	rec := env.do(t, http.MethodDelete, "/api/v1/users/u1/memory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	assert.JSONEq(t, `{"summary":null}`, env.do(t, http.MethodGet, "/api/v1/users/u1/memory/summary", nil).Body.String())
	_, err := env.store.GetChat(context.Background(), "c1")
	assert.True(t, storage.IsNotFound(err))
}

type fakeRunner struct {
	finalize memory.FinalizeReport
	compress memory.CompressionReport
	err      error
	triggers []string
}

func (f *fakeRunner) FinalizeIdle(ctx context.Context, trigger string) (memory.FinalizeReport, error) {
	f.triggers = append(f.triggers, trigger)
	return f.finalize, f.err
}

func (f *fakeRunner) Compress(ctx context.Context, trigger string) (memory.CompressionReport, error) {
	f.triggers = append(f.triggers, trigger)
	return f.compress, f.err
}

func TestJobsHandler(t *testing.T) {
	runner := &fakeRunner{
		finalize: memory.FinalizeReport{Checked: 3, Finalized: 2, Embedded: 5},
		compress: memory.CompressionReport{
			"u1": {Tier1: 2, Tier2: 1},
			"u2": {Tier1: memory.FailedCount, Tier2: memory.FailedCount, Tier3: memory.FailedCount},
		},
	}
	h := NewJobsHandler(runner, nil)

	rec := httptest.NewRecorder()
	h.FinalizeIdle(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/finalize-idle", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"checked":3,"finalized":2,"embedded":5}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.CompressMemory(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/compress-memory", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"results":{
		"u1":{"tier1":2,"tier2":1,"tier3":0},
		"u2":{"tier1":-1,"tier2":-1,"tier3":-1}}}`, rec.Body.String())

	assert.Equal(t, []string{"http", "http"}, runner.triggers)

	runner.err = errors.New("store down")
	rec = httptest.NewRecorder()
	h.FinalizeIdle(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/finalize-idle", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubScheduler struct{ next time.Time }

func (s stubScheduler) Scheduled() []string       { return []string{"compress-memory"} }
func (s stubScheduler) Next(job string) time.Time { return s.next }

func TestHealthHandler(t *testing.T) {
	embedder := memory.NewLazyEmbedder(memory.HashBackend{Dimension: 8}, memory.EmbedderOptions{Dimension: 8})
	next := time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC)
	h := NewHealthHandler(stubPinger{}, HealthOptions{
		Embedder:  embedder,
		Scheduler: stubScheduler{next: next},
		Clients:   func() int { return 2 },
	})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[StatusResponse](t, rec)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 2, status.EventClients)
	require.NotNil(t, status.Embedder)
	assert.Equal(t, "hash-8", status.Embedder.Model)
	require.Len(t, status.Jobs, 1)
	require.NotNil(t, status.Jobs[0].NextRun)
	assert.True(t, next.Equal(*status.Jobs[0].NextRun))

	down := NewHealthHandler(stubPinger{err: errors.New("db locked")}, HealthOptions{})
	rec = httptest.NewRecorder()
	down.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	down.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, "degraded", decodeBody[StatusResponse](t, rec).Status)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 10, false},
		{"limit=5", 5, false},
		{"limit=500", 50, false},
		{"limit=0", 0, true},
		{"limit=-1", 0, true},
		{"limit=x", 0, true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		got, err := parseLimit(req, "limit", 10, 50)
		if tt.wantErr {
			assert.Error(t, err, tt.query)
			continue
		}
		require.NoError(t, err, tt.query)
		assert.Equal(t, tt.want, got, tt.query)
	}
}
