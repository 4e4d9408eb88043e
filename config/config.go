// Package config provides configuration management for recall.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for recall.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage is the persistence configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// LLM is the generative text service configuration.
	LLM LLMConfig `mapstructure:"llm"`

	// Embedder is the embedding backend configuration.
	Embedder EmbedderConfig `mapstructure:"embedder"`

	// Memory holds retrieval and summarization budgets.
	Memory MemoryConfig `mapstructure:"memory"`

	// Distill holds the tiered compaction settings.
	Distill DistillConfig `mapstructure:"distill"`

	// Jobs is the scheduled job configuration.
	Jobs JobsConfig `mapstructure:"jobs"`

	// Cache is the memory context cache configuration.
	Cache CacheConfig `mapstructure:"cache"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"required,env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP/gRPC server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// GRPC is the gRPC health server configuration.
	GRPC GRPCConfig `mapstructure:"grpc"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`
}

// GRPCConfig holds gRPC-specific settings.
type GRPCConfig struct {
	// Enabled enables the gRPC server.
	Enabled bool `mapstructure:"enabled"`

	// Port is the gRPC server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// EnableReflection enables gRPC server reflection for debugging.
	EnableReflection bool `mapstructure:"enable_reflection"`

	// MaxIdleSeconds is the maximum idle time before closing a connection.
	MaxIdleSeconds int `mapstructure:"max_idle_seconds" validate:"min=0"`

	// KeepaliveSeconds is the keepalive ping interval.
	KeepaliveSeconds int `mapstructure:"keepalive_seconds" validate:"min=0"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// RequestTimeout bounds a single request, including job triggers.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// SQLite holds the relational store and lexical index settings.
	SQLite SQLiteConfig `mapstructure:"sqlite"`

	// Embeddings selects the embedding store backend (badger, sqlite, memory).
	Embeddings string `mapstructure:"embeddings" validate:"oneof=badger sqlite memory"`

	// Badger is the BadgerDB embedding store configuration.
	Badger BadgerConfig `mapstructure:"badger"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `mapstructure:"path" validate:"required"`

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `mapstructure:"max_open_conns" validate:"min=0"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`

	// CacheSize is the number of users whose decoded vectors stay in memory.
	CacheSize int `mapstructure:"cache_size" validate:"min=0"`
}

// LLMConfig holds generative text service settings.
type LLMConfig struct {
	// Provider is the primary provider (openai, anthropic).
	Provider string `mapstructure:"provider" validate:"oneof=openai anthropic"`

	// Fallback is an optional secondary provider tried on retryable failures.
	Fallback string `mapstructure:"fallback" validate:"omitempty,oneof=openai anthropic"`

	// Timeout bounds a single generation call.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxTokens caps generated output tokens.
	MaxTokens int `mapstructure:"max_tokens" validate:"min=1"`

	// RateLimit throttles outgoing generation calls.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// OpenAI holds OpenAI-compatible provider settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`

	// Anthropic holds Anthropic provider settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// RateLimitConfig holds token-bucket settings.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate; 0 disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the bucket size.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// EmbedderConfig holds embedding backend settings.
type EmbedderConfig struct {
	// Provider is the backend (openai, hash, none).
	Provider string `mapstructure:"provider" validate:"oneof=openai hash none"`

	// Model is the embedding model name.
	Model string `mapstructure:"model"`

	// Dimension is the vector dimension every backend must produce.
	Dimension int `mapstructure:"dimension" validate:"min=1"`

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string `mapstructure:"base_url"`

	// APIKey is the embedding API key; falls back to llm.openai.api_key.
	APIKey string `mapstructure:"api_key"`

	// BatchSize caps inputs per embedding request.
	BatchSize int `mapstructure:"batch_size" validate:"min=1"`

	// Timeout bounds a single embedding request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// MemoryConfig holds summarization, search and context budgets.
type MemoryConfig struct {
	// SummaryCap is the hard cap of the rolling summary in characters.
	SummaryCap int `mapstructure:"summary_cap" validate:"min=1,max=8000"`

	// ContextBudget is the maximum size of a built context in characters.
	ContextBudget int `mapstructure:"context_budget" validate:"min=1,max=4000"`

	// ContextMinSection is the smallest remaining budget worth a section.
	ContextMinSection int `mapstructure:"context_min_section" validate:"min=0"`

	// ContextSearchLimit is the number of hybrid hits added to a context.
	ContextSearchLimit int `mapstructure:"context_search_limit" validate:"min=0"`

	// ContextTier1Limit is the number of tier-1 entries added to a context.
	ContextTier1Limit int `mapstructure:"context_tier1_limit" validate:"min=0"`

	// ContextTier2Limit is the number of tier-2 entries added to a context.
	ContextTier2Limit int `mapstructure:"context_tier2_limit" validate:"min=0"`

	// SearchLimit is the default hybrid search result count.
	SearchLimit int `mapstructure:"search_limit" validate:"min=1"`

	// RecencyDecay is the per-day exponential decay of semantic scores.
	RecencyDecay float64 `mapstructure:"recency_decay" validate:"min=0"`

	// RRFK is the reciprocal rank fusion constant.
	RRFK int `mapstructure:"rrf_k" validate:"min=1"`

	// SnippetChars is the fallback snippet length in characters.
	SnippetChars int `mapstructure:"snippet_chars" validate:"min=1"`
}

// DistillConfig holds the tiered compaction settings.
type DistillConfig struct {
	// Tier1After is the minimum age of a finalized chat before distillation.
	Tier1After time.Duration `mapstructure:"tier1_after"`

	// Tier2After is the minimum age of a tier-1 entry before compaction.
	Tier2After time.Duration `mapstructure:"tier2_after"`

	// Tier3After is the minimum age of a tier-2 entry before compaction.
	Tier3After time.Duration `mapstructure:"tier3_after"`

	// Tier1InputCap caps the transcript fed to tier-1 generation.
	Tier1InputCap int `mapstructure:"tier1_input_cap" validate:"min=1"`

	// CompactInputCap caps the combined input of tier-2/3 generation.
	CompactInputCap int `mapstructure:"compact_input_cap" validate:"min=1"`

	// ScanLimit is how many recent entries a compaction pass inspects.
	ScanLimit int `mapstructure:"scan_limit" validate:"min=2"`

	// Workers bounds how many users are distilled concurrently.
	Workers int `mapstructure:"workers" validate:"min=1"`
}

// JobsConfig holds scheduled job settings.
type JobsConfig struct {
	// Token is the shared secret job triggers must present.
	Token string `mapstructure:"token"`

	// IdleMinutes is how long a chat must be idle before finalization.
	IdleMinutes int `mapstructure:"idle_minutes" validate:"min=1"`

	// EmbedOnFinalize embeds messages of newly finalized chats.
	EmbedOnFinalize bool `mapstructure:"embed_on_finalize"`

	// Scheduler is the in-process cron scheduler configuration.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// SchedulerConfig holds cron settings.
type SchedulerConfig struct {
	// Enabled starts the in-process scheduler with the server.
	Enabled bool `mapstructure:"enabled"`

	// FinalizeIdle is the cron spec of the idle finalization job.
	FinalizeIdle string `mapstructure:"finalize_idle" validate:"omitempty,cron"`

	// CompressMemory is the cron spec of the compression job.
	CompressMemory string `mapstructure:"compress_memory" validate:"omitempty,cron"`
}

// CacheConfig holds context cache settings.
type CacheConfig struct {
	// Type is the cache backend (none, memory, redis).
	Type string `mapstructure:"type" validate:"oneof=none memory redis"`

	// TTL is how long a built context stays cached.
	TTL time.Duration `mapstructure:"ttl"`

	// Redis is the Redis configuration.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`

	// KeyPrefix namespaces every key written by recall.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlp).
	Exporter string `mapstructure:"exporter" validate:"oneof=otlp"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds a single export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is the sampling strategy (always_on, always_off, ratio).
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off ratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`

	// Headers are extra exporter headers.
	Headers map[string]string `mapstructure:"headers"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := ValidateWithDetails(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, LLM: %s, Embedder: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.LLM.Provider, c.Embedder.Provider)
}
