package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/recallkit/recall/pkg/storage"
	memstore "github.com/recallkit/recall/pkg/storage/memory"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// scriptedGenerator answers prompts with reply and records every prompt.
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	n := len(g.prompts)
	g.mu.Unlock()
	if g.reply == nil {
		return fmt.Sprintf("generated %d", n), nil
	}
	return g.reply(prompt)
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *scriptedGenerator) last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu        sync.Mutex
	finalized []string
	versions  []int
	distilled []TierCounts
}

func (n *recordingNotifier) ChatFinalized(userID, chatID string, summarized bool) {
	n.mu.Lock()
	n.finalized = append(n.finalized, chatID)
	n.mu.Unlock()
}

func (n *recordingNotifier) SummaryUpdated(userID string, version int) {
	n.mu.Lock()
	n.versions = append(n.versions, version)
	n.mu.Unlock()
}

func (n *recordingNotifier) MemoryDistilled(userID string, t1, t2, t3 int) {
	n.mu.Lock()
	n.distilled = append(n.distilled, TierCounts{t1, t2, t3})
	n.mu.Unlock()
}

type testEnv struct {
	hub     *Hub
	store   *memstore.MemoryStorage
	vectors *memstore.EmbeddingStore
	gen     *scriptedGenerator
	clock   *testClock
}

// newTestEnv builds a hub over in-memory storage. A nil embedder leaves
// semantic retrieval disabled.
func newTestEnv(t *testing.T, embedder Embedder, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   memstore.NewMemoryStorage(),
		vectors: memstore.NewEmbeddingStore(),
		gen:     &scriptedGenerator{},
		clock:   &testClock{t: baseTime},
	}
	opts = append([]Option{WithClock(env.clock.now)}, opts...)
	env.hub = NewHub(env.store, env.vectors, embedder, env.gen, DefaultConfig(), opts...)
	return env
}

func hashEmbedder() *LazyEmbedder {
	return NewLazyEmbedder(HashBackend{Dimension: 64}, EmbedderOptions{Dimension: 64})
}

// seedChat creates a chat whose messages alternate user and assistant roles,
// one second apart from start.
func (e *testEnv) seedChat(t *testing.T, userID, chatID string, start time.Time, texts ...string) {
	t.Helper()
	ctx := context.Background()
	if err := e.store.CreateChat(ctx, &storage.Chat{
		ID: chatID, UserID: userID, Title: chatID, CreatedAt: start,
	}); err != nil {
		t.Fatalf("CreateChat(%s) error = %v", chatID, err)
	}
	msgs := make([]*storage.Message, len(texts))
	for i, text := range texts {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs[i] = &storage.Message{
			ID:        fmt.Sprintf("%s-m%d", chatID, i),
			Role:      role,
			Parts:     []storage.Part{{Type: "text", Text: text}},
			CreatedAt: start.Add(time.Duration(i) * time.Second),
		}
	}
	if err := e.store.AppendMessages(ctx, chatID, msgs); err != nil {
		t.Fatalf("AppendMessages(%s) error = %v", chatID, err)
	}
}

func (e *testEnv) entries(t *testing.T, userID string, tier storage.Tier) []*storage.DistilledEntry {
	t.Helper()
	entries, err := e.store.ListEntries(context.Background(), userID, tier, time.Time{}, 0)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	return entries
}

func (e *testEnv) insertEntry(t *testing.T, userID, id string, tier storage.Tier, content string, createdAt time.Time, sources ...string) {
	t.Helper()
	if err := e.store.InsertEntry(context.Background(), &storage.DistilledEntry{
		ID: id, UserID: userID, Tier: tier, Content: content,
		SourceChatIDs: sources, CreatedAt: createdAt,
	}); err != nil {
		t.Fatalf("InsertEntry(%s) error = %v", id, err)
	}
}

func ids(results []SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.MessageID
	}
	return out
}

func repeat(s string, n int) string { return strings.Repeat(s, n) }
