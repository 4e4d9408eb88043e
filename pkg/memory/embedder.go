package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/sync/singleflight"

	"github.com/recallkit/recall/config"
)

// Embedder turns text into normalized vectors. It is best-effort: when the
// backend is unavailable every input maps to a zero-length vector, which
// downstream code treats as "no semantic signal".
type Embedder interface {
	Embed(ctx context.Context, texts []string) [][]float32
	Available(ctx context.Context) bool
	// Model identifies the vector space; embeddings from another model are
	// not comparable.
	Model() string
}

// Backend produces raw embeddings.
type Backend interface {
	Model() string
	// Load checks configuration and prepares the backend.
	Load(ctx context.Context) error
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderState is the lifecycle state of a LazyEmbedder.
type EmbedderState int32

const (
	StateUninitialized EmbedderState = iota
	StateLoading
	StateAvailable
	StateUnavailable
)

func (s EmbedderState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

const probeText = "recall embedder probe"

// EmbedderOptions configures a LazyEmbedder.
type EmbedderOptions struct {
	Dimension   int
	BatchSize   int
	LoadTimeout time.Duration
	Logger      Logger
	// OnReady is called once with the terminal state.
	OnReady func(available bool)
}

// LazyEmbedder loads its backend on first use. The load runs at most once
// per process; concurrent callers wait for the same attempt. Once the state
// is available or unavailable it never changes.
type LazyEmbedder struct {
	backend Backend
	opts    EmbedderOptions
	logger  Logger

	state atomic.Int32
	group singleflight.Group
}

// NewLazyEmbedder wraps backend.
func NewLazyEmbedder(backend Backend, opts EmbedderOptions) *LazyEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &LazyEmbedder{backend: backend, opts: opts, logger: logger}
}

// State returns the current lifecycle state.
func (e *LazyEmbedder) State() EmbedderState {
	return EmbedderState(e.state.Load())
}

// Model returns the backend model id.
func (e *LazyEmbedder) Model() string { return e.backend.Model() }

// Available triggers loading if needed and reports the outcome.
func (e *LazyEmbedder) Available(ctx context.Context) bool {
	return e.ensure(ctx)
}

func (e *LazyEmbedder) ensure(ctx context.Context) bool {
	switch e.State() {
	case StateAvailable:
		return true
	case StateUnavailable:
		return false
	}

	ch := e.group.DoChan("load", func() (any, error) {
		switch e.State() {
		case StateAvailable:
			return true, nil
		case StateUnavailable:
			return false, nil
		}
		e.state.Store(int32(StateLoading))

		// The load outlives the first caller's context so a cancelled
		// request cannot poison the process-wide state.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.LoadTimeout)
		defer cancel()

		err := e.load(loadCtx)
		if err != nil {
			e.state.Store(int32(StateUnavailable))
			e.logger.Warn("embedder unavailable, semantic search disabled",
				"model", e.backend.Model(), "error", err)
		} else {
			e.state.Store(int32(StateAvailable))
			e.logger.Info("embedder loaded, semantic search enabled",
				"model", e.backend.Model(), "dimension", e.opts.Dimension)
		}
		if e.opts.OnReady != nil {
			e.opts.OnReady(err == nil)
		}
		return err == nil, nil
	})

	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

func (e *LazyEmbedder) load(ctx context.Context) error {
	if err := e.backend.Load(ctx); err != nil {
		return err
	}
	vecs, err := e.backend.Embed(ctx, []string{probeText})
	if err != nil {
		return fmt.Errorf("probe embedding: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("probe embedding: expected 1 vector, got %d", len(vecs))
	}
	if e.opts.Dimension > 0 && len(vecs[0]) != e.opts.Dimension {
		return fmt.Errorf("probe embedding: dimension %d, configured %d", len(vecs[0]), e.opts.Dimension)
	}
	return nil
}

// Embed returns one normalized vector per input, in order. Inputs the
// backend could not embed get a zero-length vector.
func (e *LazyEmbedder) Embed(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out
	}
	if !e.ensure(ctx) {
		return emptyVectors(len(texts))
	}

	for start := 0; start < len(texts); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.backend.Embed(ctx, texts[start:end])
		if err == nil && len(vecs) != end-start {
			err = fmt.Errorf("expected %d vectors, got %d", end-start, len(vecs))
		}
		if err != nil {
			e.logger.Warn("embedding failed, degrading to empty vectors",
				"model", e.backend.Model(), "inputs", end-start, "error", err)
			for i := start; i < end; i++ {
				out[i] = []float32{}
			}
			continue
		}
		for i, v := range vecs {
			if e.opts.Dimension > 0 && len(v) != e.opts.Dimension {
				out[start+i] = []float32{}
				continue
			}
			out[start+i] = Normalize(v)
		}
	}
	return out
}

func emptyVectors(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{}
	}
	return out
}

// ErrEmbedderDisabled is returned by the none backend.
var ErrEmbedderDisabled = errors.New("memory: embedder disabled")

type noneBackend struct{}

func (noneBackend) Model() string                  { return "none" }
func (noneBackend) Load(ctx context.Context) error { return ErrEmbedderDisabled }
func (noneBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrEmbedderDisabled
}

// HashBackend is a deterministic feature-hashing embedder. Texts sharing
// words share dimensions, which is enough for offline and test use.
type HashBackend struct {
	Dimension int
}

// Model returns the hash model id.
func (h HashBackend) Model() string { return fmt.Sprintf("hash-%d", h.Dimension) }

// Load validates the dimension.
func (h HashBackend) Load(ctx context.Context) error {
	if h.Dimension <= 0 {
		return fmt.Errorf("hash embedder: invalid dimension %d", h.Dimension)
	}
	return nil
}

// Embed hashes each lowercase word into a signed bucket.
func (h HashBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, h.Dimension)
		for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			sum := sha256.Sum256([]byte(word))
			idx := binary.BigEndian.Uint32(sum[:4]) % uint32(h.Dimension)
			if sum[4]&1 == 0 {
				vec[idx]++
			} else {
				vec[idx]--
			}
		}
		out[i] = vec
	}
	return out, nil
}

// OpenAIBackend calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAIBackend struct {
	client    openai.Client
	apiKey    string
	model     string
	dimension int
	timeout   time.Duration
}

// NewOpenAIBackend creates an OpenAI embeddings backend.
func NewOpenAIBackend(cfg config.EmbedderConfig, fallbackAPIKey string) *OpenAIBackend {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = fallbackAPIKey
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIBackend{
		client:    openai.NewClient(opts...),
		apiKey:    apiKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		timeout:   cfg.Timeout,
	}
}

// Model returns the embedding model name.
func (b *OpenAIBackend) Model() string { return b.model }

// Load checks that the backend is configured.
func (b *OpenAIBackend) Load(ctx context.Context) error {
	if b.apiKey == "" {
		return errors.New("openai embedder: api key not configured")
	}
	if b.model == "" {
		return errors.New("openai embedder: model not configured")
	}
	return nil
}

// Embed requests embeddings with the configured dimension.
func (b *OpenAIBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(b.model),
	}
	if b.dimension > 0 {
		params.Dimensions = openai.Int(int64(b.dimension))
	}
	resp, err := b.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			vec[i] = float32(x)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// NewEmbedder builds a LazyEmbedder from configuration.
func NewEmbedder(cfg config.EmbedderConfig, openAIKey string, logger Logger, onReady func(bool)) *LazyEmbedder {
	var backend Backend
	switch cfg.Provider {
	case "openai":
		backend = NewOpenAIBackend(cfg, openAIKey)
	case "hash":
		backend = HashBackend{Dimension: cfg.Dimension}
	default:
		backend = noneBackend{}
	}
	return NewLazyEmbedder(backend, EmbedderOptions{
		Dimension: cfg.Dimension,
		BatchSize: cfg.BatchSize,
		Logger:    logger,
		OnReady:   onReady,
	})
}
