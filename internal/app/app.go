// Package app assembles the pipeline from configuration: the run state
// backend, the event sink, metrics, the provider stack, the four stages and
// the services built on them. Every command and the worker start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-simjudge/internal/config"
	"github.com/ahrav/go-simjudge/internal/dataset"
	"github.com/ahrav/go-simjudge/internal/execution"
	"github.com/ahrav/go-simjudge/internal/ingestion"
	"github.com/ahrav/go-simjudge/internal/judging"
	"github.com/ahrav/go-simjudge/internal/llm"
	"github.com/ahrav/go-simjudge/internal/llm/providers"
	"github.com/ahrav/go-simjudge/internal/metrics"
	"github.com/ahrav/go-simjudge/internal/pipeline"
	"github.com/ahrav/go-simjudge/internal/processing"
	"github.com/ahrav/go-simjudge/internal/results"
	"github.com/ahrav/go-simjudge/internal/runstate"
	"github.com/ahrav/go-simjudge/internal/stage"
	"github.com/ahrav/go-simjudge/internal/store"
	"github.com/ahrav/go-simjudge/internal/workflow"
	"github.com/ahrav/go-simjudge/pkg/events"
)

// App holds every long-lived component. Close releases the connections it
// opened.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	KV       store.KV
	Store    *runstate.Store
	Events   events.EventSink
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder
	Provider llm.Provider

	Ingest  *ingestion.Stage
	Process *processing.Stage
	Execute *execution.Stage
	Judge   *judging.Stage

	Runner     *pipeline.Runner
	Activities *workflow.Activities
	Results    *results.Service

	closers []func() error
}

type options struct {
	provider llm.Provider
}

// Option customizes New.
type Option func(*options)

// WithProvider replaces the vendor router with p. The configured middleware
// still wraps it.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// New builds the application described by cfg. On error every connection
// opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var rdb redis.UniversalClient
	if needsRedis(cfg) {
		if rdb, err = a.dialRedis(ctx, cfg.Store.Redis); err != nil {
			return nil, err
		}
	}

	if a.KV, err = a.openKV(ctx, cfg.Store, rdb); err != nil {
		return nil, err
	}
	a.Store = runstate.New(a.KV)
	a.Events = newEventSink(cfg.Events, rdb)

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if a.Provider, err = a.buildProvider(cfg, rdb, o.provider); err != nil {
		return nil, err
	}

	validator, err := dataset.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("compiling dataset schemas: %w", err)
	}
	loader := dataset.NewLoader(nil, dataset.LoaderConfig{
		FetchTimeout: cfg.Dataset.FetchTimeout,
		MaxBytes:     cfg.Dataset.MaxBytes,
	})

	deps := stage.Deps{Store: a.Store, Events: a.Events, Metrics: a.Metrics}
	a.Ingest = ingestion.New(deps, loader, validator)
	a.Process = processing.New(deps, processing.WithModelDefaults(cfg.Execution.Defaults))
	a.Execute = execution.New(deps, a.Provider, cfg.Execution)
	a.Judge = judging.New(deps, a.Provider, cfg.Judging)

	a.Runner = pipeline.NewRunner(a.Ingest, a.Process, a.Execute, a.Judge)
	a.Activities = workflow.NewActivities(a.Ingest, a.Process, a.Execute, a.Judge)
	a.Results = results.NewService(a.Store)

	logger.InfoContext(ctx, "application ready",
		"store", cfg.Store.Backend,
		"events", cfg.Events.Sink,
		"cache", cfg.Cache.Enabled)
	return a, nil
}

// OpenStore opens only the run state backend. Commands that never call a
// model use it instead of New.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.KV, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		kv, err := store.OpenRedisKV(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case config.BackendSQLite:
		kv, err := store.OpenSQLiteKV(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return kv, nil
	default:
		return store.NewMemoryKV(), nil
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Store.Backend == config.BackendRedis ||
		cfg.Cache.Enabled ||
		cfg.Events.Sink == config.SinkRedis
}

// dialRedis opens the single client shared by the store, the response cache
// and the event stream.
func (a *App) dialRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func (a *App) openKV(ctx context.Context, cfg config.StoreConfig, rdb redis.UniversalClient) (store.KV, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		// The shared client is closed on its own; closing the KV would
		// close it twice.
		return store.NewRedisKV(rdb, cfg.Redis.Prefix), nil
	case config.BackendSQLite:
		kv, err := store.OpenSQLiteKV(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kv.Close)
		return kv, nil
	default:
		return store.NewMemoryKV(), nil
	}
}

func newEventSink(cfg config.EventsConfig, rdb redis.UniversalClient) events.EventSink {
	if cfg.Sink != config.SinkRedis {
		return events.NewNoOpEventSink()
	}
	var opts []events.RedisStreamOption
	if cfg.MaxLen > 0 {
		opts = append(opts, events.WithMaxLen(cfg.MaxLen))
	}
	return events.NewRedisStreamSink(rdb, cfg.Stream, opts...)
}

// buildProvider wraps the model backend in the middleware stack. From the
// outside in: logging, response cache, metrics, retry, rate limit and the
// per-attempt timeout.
func (a *App) buildProvider(cfg *config.Config, rdb redis.UniversalClient, base llm.Provider) (llm.Provider, error) {
	if base == nil {
		router, err := newRouter(cfg.Providers)
		if err != nil {
			return nil, err
		}
		if len(router.Providers()) == 0 {
			a.Logger.Warn("no provider credentials configured; every model call will fail")
		}
		base = router
	}

	retry, err := llm.WithRetry(cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("configuring retry: %w", err)
	}

	var cache llm.Middleware
	if cfg.Cache.Enabled {
		cache = llm.WithCache(llm.NewRedisCache(rdb, cfg.Store.Redis.Prefix), cfg.Cache.TTL)
	}

	return llm.Chain(base,
		llm.WithLogging(a.Logger),
		cache,
		a.Metrics.ProviderMiddleware(),
		retry,
		llm.WithRateLimit(cfg.RateLimit),
		llm.WithTimeout(cfg.Providers.Timeout),
	), nil
}

func newRouter(cfg config.ProvidersConfig) (*providers.Router, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	vendors := make(map[string]providers.Config, 2)
	if cfg.Anthropic.Enabled() {
		vendors[providers.ProviderAnthropic] = providers.Config{
			APIKey:     cfg.Anthropic.APIKey,
			BaseURL:    cfg.Anthropic.BaseURL,
			HTTPClient: httpClient,
		}
	}
	if cfg.OpenAI.Enabled() {
		vendors[providers.ProviderOpenAI] = providers.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			HTTPClient: httpClient,
		}
	}
	router, err := providers.NewRouter(vendors)
	if err != nil {
		return nil, fmt.Errorf("configuring providers: %w", err)
	}
	return router, nil
}
