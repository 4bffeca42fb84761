package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ahrav/go-simjudge/internal/app"
	"github.com/ahrav/go-simjudge/internal/config"
	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/results"
	"github.com/ahrav/go-simjudge/internal/runstate"
	"github.com/ahrav/go-simjudge/internal/store"
)

// cli carries the global flags and the process-wide logger.
type cli struct {
	configPath string
	logLevel   string

	stderr io.Writer
	log    *slog.Logger

	// appOptions are passed to every app.New call.
	appOptions []app.Option
}

func newCLI(stderr io.Writer) *cli {
	return &cli{stderr: stderr}
}

func (c *cli) logger() *slog.Logger {
	if c.log == nil {
		c.log = config.LoggingConfig{Level: "info", Format: "json"}.NewLogger(c.stderr)
	}
	return c.log
}

// loadConfig reads the configuration and installs the configured logger.
func (c *cli) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	c.log = cfg.Logging.NewLogger(c.stderr)
	slog.SetDefault(c.log)
	return cfg, nil
}

// openApp builds the full application. The in-memory backend forgets
// everything when the process exits, which only suits "run".
func (c *cli) openApp(ctx context.Context, warnMemory bool) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if warnMemory && cfg.Store.Backend == config.BackendMemory {
		c.log.Warn("memory store does not persist between commands; configure store.backend")
	}
	return app.New(ctx, cfg, c.log, c.appOptions...)
}

// openResults builds the query service over the configured store only.
func (c *cli) openResults(ctx context.Context) (*results.Service, store.KV, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	kv, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	return results.NewService(runstate.New(kv)), kv, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeError prints the caller-facing form of err. Internal details are
// left to the log on stderr.
func writeError(w io.Writer, err error) {
	resp := domain.NewErrorResponse(err)
	var plain *plainError
	if errors.As(err, &plain) {
		resp.Error = plain.Error()
	}
	_ = writeJSON(w, resp)
}

// plainError carries a message that is safe to print as is: a flag or
// argument mistake, or a workflow failure already reduced to its message.
type plainError struct{ err error }

func (e *plainError) Error() string { return e.err.Error() }
func (e *plainError) Unwrap() error { return e.err }
