package worker

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-simjudge/internal/config"
	"github.com/ahrav/go-simjudge/internal/workflow"
)

// Dial connects to the Temporal frontend named by cfg. The SDK logs
// through logger.
func Dial(cfg config.TemporalConfig, logger *slog.Logger) (client.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    log.NewStructuredLogger(logger.With("component", "temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// New creates a worker polling taskQueue with the workflow and the stage
// activities registered. The caller starts and stops it.
func New(c client.Client, taskQueue string, acts *workflow.Activities) sdkworker.Worker {
	w := sdkworker.New(c, taskQueue, sdkworker.Options{})
	RegisterAll(w, acts)
	return w
}
