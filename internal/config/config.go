// Package config loads the simjudge configuration from YAML, environment
// variables and .env files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-simjudge/internal/execution"
	"github.com/ahrav/go-simjudge/internal/judging"
	"github.com/ahrav/go-simjudge/internal/llm"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIMJUDGE_"

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Event sinks.
const (
	SinkNone  = "none"
	SinkRedis = "redis"
)

// Config is the complete simjudge configuration.
type Config struct {
	Store     StoreConfig         `yaml:"store"`
	Providers ProvidersConfig     `yaml:"providers"`
	Execution execution.Config    `yaml:"execution"`
	Judging   judging.Config      `yaml:"judging"`
	Retry     llm.RetryConfig     `yaml:"retry"`
	RateLimit llm.RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig         `yaml:"cache"`
	Dataset   DatasetConfig       `yaml:"dataset"`
	Events    EventsConfig        `yaml:"events"`
	Temporal  TemporalConfig      `yaml:"temporal"`
	HTTP      HTTPConfig          `yaml:"http"`
	Logging   LoggingConfig       `yaml:"logging"`
}

// StoreConfig selects the run state backend.
type StoreConfig struct {
	Backend string       `yaml:"backend" validate:"oneof=memory redis sqlite"`
	Redis   RedisConfig  `yaml:"redis"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig addresses the Redis server shared by the store, the response
// cache and the event stream.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db" validate:"min=0"`
	Prefix   string `yaml:"prefix"`
}

// ProvidersConfig holds vendor credentials. Keys are read from the named
// environment variables and never from the file itself.
type ProvidersConfig struct {
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
	// Timeout bounds each vendor HTTP request.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

// ProviderConfig is one vendor's connection settings.
type ProviderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	APIKey    string `yaml:"-"`
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
}

// Enabled reports whether the vendor has credentials.
func (p ProviderConfig) Enabled() bool { return p.APIKey != "" }

// CacheConfig controls the provider response cache. It needs Redis.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl" validate:"min=0"`
}

// DatasetConfig bounds remote dataset fetches.
type DatasetConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout" validate:"min=0"`
	MaxBytes     int64         `yaml:"max_bytes" validate:"min=0"`
}

// EventsConfig selects where stage events go.
type EventsConfig struct {
	Sink   string `yaml:"sink" validate:"oneof=none redis"`
	Stream string `yaml:"stream" validate:"required_if=Sink redis"`
	MaxLen int64  `yaml:"max_len" validate:"min=0"`
}

// TemporalConfig addresses the Temporal frontend.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" validate:"required"`
	Namespace string `yaml:"namespace" validate:"required"`
	TaskQueue string `yaml:"task_queue" validate:"required"`
}

// HTTPConfig configures the query API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration: defaults, then the YAML file at path when
// path is non-empty, then SIMJUDGE_* environment overrides. A .env file in
// the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.resolveSecrets(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays a single YAML document onto cfg, rejecting unknown keys.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("expected a single YAML document")
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLite.Path == "" {
		return errors.New("invalid configuration: sqlite backend requires store.sqlite.path")
	}
	if c.Cache.Enabled && c.Store.Redis.Addr == "" {
		return errors.New("invalid configuration: cache requires store.redis.addr")
	}
	if c.Events.Sink == SinkRedis && c.Store.Redis.Addr == "" {
		return errors.New("invalid configuration: redis events require store.redis.addr")
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv applies SIMJUDGE_* overrides.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("STORE_BACKEND", &c.Store.Backend)
	str("REDIS_ADDR", &c.Store.Redis.Addr)
	integer("REDIS_DB", &c.Store.Redis.DB)
	str("REDIS_PREFIX", &c.Store.Redis.Prefix)
	str("SQLITE_PATH", &c.Store.SQLite.Path)
	integer("EXECUTION_CONCURRENCY", &c.Execution.Concurrency)
	duration("EXECUTION_CALL_TIMEOUT", &c.Execution.CallTimeout)
	str("MODEL_NAME", &c.Execution.Defaults.ModelName)
	integer("JUDGING_CONCURRENCY", &c.Judging.Concurrency)
	str("JUDGE_MODEL", &c.Judging.JudgeModel)
	integer("SIMILARITY_THRESHOLD", &c.Judging.Threshold)
	boolean("CACHE_ENABLED", &c.Cache.Enabled)
	str("EVENTS_SINK", &c.Events.Sink)
	str("TEMPORAL_HOST_PORT", &c.Temporal.HostPort)
	str("TEMPORAL_NAMESPACE", &c.Temporal.Namespace)
	str("TEMPORAL_TASK_QUEUE", &c.Temporal.TaskQueue)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// resolveSecrets reads credentials from the environment.
func (c *Config) resolveSecrets(getenv func(string) string) {
	if c.Providers.Anthropic.APIKeyEnv != "" {
		c.Providers.Anthropic.APIKey = getenv(c.Providers.Anthropic.APIKeyEnv)
	}
	if c.Providers.OpenAI.APIKeyEnv != "" {
		c.Providers.OpenAI.APIKey = getenv(c.Providers.OpenAI.APIKeyEnv)
	}
	c.Store.Redis.Password = getenv(EnvPrefix + "REDIS_PASSWORD")
}
