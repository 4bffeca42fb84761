package config

import (
	"time"

	"github.com/ahrav/go-simjudge/internal/execution"
	"github.com/ahrav/go-simjudge/internal/judging"
	"github.com/ahrav/go-simjudge/internal/llm"
)

// Defaults for settings that have no home package.
const (
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisPrefix     = "simjudge"
	DefaultSQLitePath      = "simjudge.db"
	DefaultProviderTimeout = 90 * time.Second
	DefaultCacheTTL        = 24 * time.Hour
	DefaultFetchTimeout    = 30 * time.Second
	DefaultEventStream     = "simjudge:events"
	DefaultTemporalHost    = "localhost:7233"
	DefaultTaskQueue       = "simjudge"
	DefaultHTTPAddr        = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
)

// DefaultConfig returns a configuration that runs everything in memory
// against the Anthropic and OpenAI public endpoints.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis:   RedisConfig{Addr: DefaultRedisAddr, Prefix: DefaultRedisPrefix},
			SQLite:  SQLiteConfig{Path: DefaultSQLitePath},
		},
		Providers: ProvidersConfig{
			Anthropic: ProviderConfig{APIKeyEnv: "ANTHROPIC_API_KEY"},
			OpenAI:    ProviderConfig{APIKeyEnv: "OPENAI_API_KEY"},
			Timeout:   DefaultProviderTimeout,
		},
		Execution: execution.DefaultConfig(),
		Judging:   judging.DefaultConfig(),
		Retry:     llm.DefaultRetryConfig(),
		RateLimit: llm.RateLimitConfig{TokensPerSecond: 10, Burst: 20},
		Cache:     CacheConfig{TTL: DefaultCacheTTL},
		Dataset:   DatasetConfig{FetchTimeout: DefaultFetchTimeout},
		Events:    EventsConfig{Sink: SinkNone, Stream: DefaultEventStream},
		Temporal: TemporalConfig{
			HostPort:  DefaultTemporalHost,
			Namespace: "default",
			TaskQueue: DefaultTaskQueue,
		},
		HTTP:    HTTPConfig{Addr: DefaultHTTPAddr, ShutdownTimeout: DefaultShutdownTimeout},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}
