// Package memory implements recall's tiered chat memory: rolling summaries
// folded in on chat finalization, tiered distillation of old sessions,
// hybrid lexical and semantic retrieval, and bounded prompt context.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/storage"
)

// Sentinel errors for the memory system.
var (
	ErrInvalidUserID = errors.New("memory: invalid user ID")
	ErrInvalidChatID = errors.New("memory: invalid chat ID")
	ErrChatNotOwned  = errors.New("memory: chat belongs to another user")
)

// Generator is the generative text service behind summarization and
// distillation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Logger is the minimal logger interface used by the memory pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// Recorder receives pipeline metrics.
type Recorder interface {
	RecordSummary(status string, duration time.Duration)
	RecordDistilled(tier int, created int)
	RecordDistillFailure()
	RecordSearch(signals string, results int, duration time.Duration)
	SetEmbedderAvailable(available bool)
	RecordContextCache(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordSummary(string, time.Duration)     {}
func (nopRecorder) RecordDistilled(int, int)                {}
func (nopRecorder) RecordDistillFailure()                   {}
func (nopRecorder) RecordSearch(string, int, time.Duration) {}
func (nopRecorder) SetEmbedderAvailable(bool)               {}
func (nopRecorder) RecordContextCache(bool)                 {}

// Notifier is told about memory changes, typically to fan them out to
// event subscribers.
type Notifier interface {
	ChatFinalized(userID, chatID string, summarized bool)
	SummaryUpdated(userID string, version int)
	MemoryDistilled(userID string, tier1, tier2, tier3 int)
}

type nopNotifier struct{}

func (nopNotifier) ChatFinalized(string, string, bool)    {}
func (nopNotifier) SummaryUpdated(string, int)            {}
func (nopNotifier) MemoryDistilled(string, int, int, int) {}

// ContextCache stores built contexts. Invalidate must make every earlier
// entry of the user unreachable, including entries whose build started
// before the invalidation and whose Set arrives after it.
type ContextCache interface {
	Get(ctx context.Context, userID, message string) (content string, generation int64, found bool, err error)
	Set(ctx context.Context, userID, message, content string, generation int64) error
	Invalidate(ctx context.Context, userID string) error
}

// Config holds the budgets and windows of the pipeline.
type Config struct {
	Memory  config.MemoryConfig
	Distill config.DistillConfig
}

// DefaultConfig returns the default budgets and windows.
func DefaultConfig() Config {
	d := config.DefaultConfig()
	return Config{Memory: d.Memory, Distill: d.Distill}
}

// Hub wires storage, the embedder and the generator into the memory
// pipeline. It holds no per-user locks; storage-level compare-and-set and
// membership exclusion keep concurrent runs idempotent.
type Hub struct {
	store    storage.Storage
	vectors  storage.EmbeddingStore
	embedder Embedder
	gen      Generator

	mu  sync.RWMutex
	cfg Config

	logger   Logger
	metrics  Recorder
	notifier Notifier
	cache    ContextCache
	now      func() time.Time
	newID    func() string
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Hub) {
		if r != nil {
			h.metrics = r
		}
	}
}

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) Option {
	return func(h *Hub) {
		if n != nil {
			h.notifier = n
		}
	}
}

// WithContextCache enables caching of built contexts.
func WithContextCache(c ContextCache) Option {
	return func(h *Hub) { h.cache = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub creates a Hub. A nil embedder disables semantic retrieval.
func NewHub(store storage.Storage, vectors storage.EmbeddingStore, embedder Embedder, gen Generator, cfg Config, opts ...Option) *Hub {
	if embedder == nil {
		embedder = NewLazyEmbedder(noneBackend{}, EmbedderOptions{})
	}
	h := &Hub{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		gen:      gen,
		cfg:      cfg,
		logger:   nopLogger{},
		metrics:  nopRecorder{},
		notifier: nopNotifier{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Config returns the current configuration.
func (h *Hub) Config() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// UpdateMemoryConfig swaps the retrieval and context budgets at runtime.
func (h *Hub) UpdateMemoryConfig(mem config.MemoryConfig) {
	h.mu.Lock()
	h.cfg.Memory = mem
	h.mu.Unlock()
	h.logger.Info("memory budgets updated",
		"context_budget", mem.ContextBudget,
		"search_limit", mem.SearchLimit,
	)
}

// Store returns the underlying storage.
func (h *Hub) Store() storage.Storage { return h.store }

// Embedder returns the embedder.
func (h *Hub) Embedder() Embedder { return h.embedder }

// DeleteUser removes every chat, message, summary, distilled entry and
// embedding owned by userID.
func (h *Hub) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	if err := h.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	if h.vectors != nil {
		if err := h.vectors.DeleteUser(ctx, userID); err != nil {
			return err
		}
	}
	h.invalidate(ctx, userID)
	h.logger.Info("user memory deleted", "user_id", userID)
	return nil
}

// InvalidateContext drops cached contexts of the user. Callers that write
// chat messages outside the hub use it.
func (h *Hub) InvalidateContext(ctx context.Context, userID string) {
	h.invalidate(ctx, userID)
}

// invalidate drops cached contexts of the user; failures only cost a rebuild.
func (h *Hub) invalidate(ctx context.Context, userID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, userID); err != nil {
		h.logger.Warn("context cache invalidation failed", "user_id", userID, "error", err)
	}
}
