package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "recall",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			GRPC: GRPCConfig{
				Enabled:          false,
				Port:             9090,
				EnableReflection: false,
				MaxIdleSeconds:   300,
				KeepaliveSeconds: 60,
			},
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    10 * time.Minute,
				IdleTimeout:     120 * time.Second,
				RequestTimeout:  10 * time.Minute,
				ShutdownTimeout: 30 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-JOB-TOKEN"},
				ExposedHeaders: []string{"X-Request-ID"},
				MaxAge:         300,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:         "./data/recall.sqlite",
				BusyTimeout:  5 * time.Second,
				MaxOpenConns: 4,
			},
			Embeddings: "badger",
			Badger: BadgerConfig{
				Path:              "./data/embeddings",
				SyncWrites:        true,
				ValueLogFileSize:  256 << 20, // 256MB
				NumVersionsToKeep: 1,
				CacheSize:         256,
			},
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Timeout:   2 * time.Minute,
			MaxTokens: 2048,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 2,
				Burst:             4,
			},
			OpenAI: OpenAIConfig{
				Model: "gpt-4o-mini",
			},
			Anthropic: AnthropicConfig{
				Model: "claude-3-5-haiku-latest",
			},
		},
		Embedder: EmbedderConfig{
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			Dimension: 384,
			BatchSize: 64,
			Timeout:   30 * time.Second,
		},
		Memory: MemoryConfig{
			SummaryCap:         8000,
			ContextBudget:      4000,
			ContextMinSection:  100,
			ContextSearchLimit: 5,
			ContextTier1Limit:  5,
			ContextTier2Limit:  3,
			SearchLimit:        10,
			RecencyDecay:       0.05,
			RRFK:               60,
			SnippetChars:       120,
		},
		Distill: DistillConfig{
			Tier1After:      48 * time.Hour,
			Tier2After:      7 * 24 * time.Hour,
			Tier3After:      30 * 24 * time.Hour,
			Tier1InputCap:   6000,
			CompactInputCap: 8000,
			ScanLimit:       100,
			Workers:         1,
		},
		Jobs: JobsConfig{
			IdleMinutes:     30,
			EmbedOnFinalize: true,
			Scheduler: SchedulerConfig{
				Enabled:        false,
				FinalizeIdle:   "0 */5 * * * *",
				CompressMemory: "0 0 3 * * *",
			},
		},
		Cache: CacheConfig{
			Type: "none",
			TTL:  5 * time.Minute,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				Password:  "",
				DB:        0,
				KeyPrefix: "recall:",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlp",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
	}
}
