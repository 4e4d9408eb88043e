package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/api/events"
	"github.com/recallkit/recall/pkg/cache"
	"github.com/recallkit/recall/pkg/jobs"
	"github.com/recallkit/recall/pkg/llm"
	"github.com/recallkit/recall/pkg/logger"
	"github.com/recallkit/recall/pkg/memory"
	"github.com/recallkit/recall/pkg/metrics"
	"github.com/recallkit/recall/pkg/storage"
	"github.com/recallkit/recall/pkg/storage/badger"
	memstore "github.com/recallkit/recall/pkg/storage/memory"
	"github.com/recallkit/recall/pkg/storage/sqlite"
	"github.com/recallkit/recall/pkg/telemetry/tracing"
	"github.com/recallkit/recall/pkg/version"
)

// app holds the components shared by the serve and job commands.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	metrics  *metrics.Manager
	store    *sqlite.Store
	vectors  storage.EmbeddingStore
	embedder *memory.LazyEmbedder
	cache    cache.Cache
	events   *events.Broadcaster
	hub      *memory.Hub
	runner   *jobs.Runner

	jobToken atomic.Value
	hot      atomic.Value

	closers []func(context.Context) error
}

// generatorFactory builds the generative text service; tests replace it.
var generatorFactory = func(cfg config.LLMConfig, log logger.Logger, rec llm.Recorder) (memory.Generator, error) {
	return llm.New(cfg, log, rec)
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, events: events.NewBroadcaster()}
	a.jobToken.Store(cfg.Jobs.Token)
	a.hot.Store(config.ExtractHotReloadable(cfg))
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func(ctx context.Context) error { return shutdownTracing(ctx) })

	mc := metrics.DefaultConfig()
	mc.Enabled = cfg.Metrics.Enabled
	mc.Port = cfg.Metrics.Port
	mc.Path = cfg.Metrics.Path
	a.metrics = metrics.NewManager(mc)

	a.store, err = sqlite.New(&sqlite.Config{
		Path:         cfg.Storage.SQLite.Path,
		BusyTimeout:  cfg.Storage.SQLite.BusyTimeout,
		MaxOpenConns: cfg.Storage.SQLite.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite storage: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })
	log.Info("Initialized SQLite storage", "path", cfg.Storage.SQLite.Path)

	a.vectors, err = newEmbeddingStore(cfg.Storage, a.store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.vectors.Close() })
	log.Info("Initialized embedding store", "backend", cfg.Storage.Embeddings)

	a.embedder = memory.NewEmbedder(cfg.Embedder, cfg.LLM.OpenAI.APIKey, log, a.metrics.SetEmbedderAvailable)

	gen, err := generatorFactory(cfg.LLM, log, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}

	a.cache, err = cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("init context cache: %w", err)
	}

	opts := []memory.Option{
		memory.WithLogger(log),
		memory.WithRecorder(a.metrics),
		memory.WithNotifier(a.events),
	}
	if a.cache != nil {
		opts = append(opts, memory.WithContextCache(a.cache))
		a.closers = append(a.closers, func(context.Context) error { return a.cache.Close() })
		log.Info("Context cache enabled", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)
	}
	a.hub = memory.NewHub(a.store, a.vectors, a.embedder, gen,
		memory.Config{Memory: cfg.Memory, Distill: cfg.Distill}, opts...)

	a.runner = jobs.NewRunner(a.hub, cfg.Jobs,
		jobs.WithLogger(log),
		jobs.WithRecorder(a.metrics),
		jobs.WithPublisher(a.events),
	)
	return a, nil
}

func newEmbeddingStore(cfg config.StorageConfig, store *sqlite.Store) (storage.EmbeddingStore, error) {
	switch cfg.Embeddings {
	case "", "sqlite":
		return sqlite.NewEmbeddingStore(store), nil
	case "badger":
		vs, err := badger.NewEmbeddingStore(&badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
			CacheSize:         cfg.Badger.CacheSize,
		})
		if err != nil {
			return nil, fmt.Errorf("open badger embedding store: %w", err)
		}
		return vs, nil
	case "memory":
		return memstore.NewEmbeddingStore(), nil
	default:
		return nil, fmt.Errorf("unknown embedding store %q", cfg.Embeddings)
	}
}

// token returns the current job token.
func (a *app) token() string {
	s, _ := a.jobToken.Load().(string)
	return s
}

// applyReload pushes hot-reloadable values of next into the running
// components.
func (a *app) applyReload(next *config.Config) {
	prev, _ := a.hot.Load().(config.HotReloadable)
	cur := config.ExtractHotReloadable(next)
	a.hot.Store(cur)

	if cur.LogLevel != prev.LogLevel {
		a.log.SetLevel(logger.ParseLevel(cur.LogLevel))
	}
	if cur.JobToken != prev.JobToken {
		a.jobToken.Store(cur.JobToken)
	}
	a.hub.UpdateMemoryConfig(next.Memory)
	a.runner.UpdateConfig(next.Jobs)

	a.log.Info("Configuration reloaded",
		"changed", prev.Changed(cur),
		"log_level", cur.LogLevel,
		"job_token_changed", cur.JobToken != prev.JobToken,
		"context_budget", cur.ContextBudget,
		"search_limit", cur.SearchLimit,
	)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	a.events.Close()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
