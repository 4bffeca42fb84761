package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-simjudge/internal/app"
	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/httpapi"
	"github.com/ahrav/go-simjudge/internal/results"
	"github.com/ahrav/go-simjudge/internal/runstate"
	"github.com/ahrav/go-simjudge/internal/worker"
	"github.com/ahrav/go-simjudge/internal/workflow"
)

// =============================================================================
// Argument helpers
// =============================================================================

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return &plainError{err: err}
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	check := cobra.ExactArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &plainError{err: err}
		}
		return nil
	}
}

type ingestOptions struct {
	id          string
	template    string
	variables   []string
	format      string
	datasetPath string
	datasetURL  string
	datasetJSON string
	replace     bool
}

func (o ingestOptions) request() domain.IngestRequest {
	req := domain.IngestRequest{
		EvaluationID: o.id,
		Format:       domain.DatasetFormat(o.format),
		DatasetPath:  o.datasetPath,
		DatasetURL:   o.datasetURL,
		Replace:      o.replace,
	}
	if o.template != "" || len(o.variables) > 0 {
		req.PromptTemplate = &domain.PromptTemplate{Template: o.template, Variables: o.variables}
	}
	if o.datasetJSON != "" {
		req.DatasetJSON = json.RawMessage(o.datasetJSON)
	}
	return req
}

// modelFlags are the optional model configuration overrides of process and
// execute. Only flags given on the command line are sent.
type modelFlags struct {
	name        string
	maxTokens   int
	temperature float64
}

func (m *modelFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&m.name, "model-name", "", "Model under test")
	f.IntVar(&m.maxTokens, "max-tokens", 0, "Maximum response tokens (1-4000)")
	f.Float64Var(&m.temperature, "temperature", 0, "Sampling temperature (0-2)")
}

func (m *modelFlags) input(cmd *cobra.Command) *domain.ModelConfigInput {
	f := cmd.Flags()
	var in domain.ModelConfigInput
	set := false
	if f.Changed("model-name") {
		in.ModelName = &m.name
		set = true
	}
	if f.Changed("max-tokens") {
		in.MaxTokens = &m.maxTokens
		set = true
	}
	if f.Changed("temperature") {
		in.Temperature = &m.temperature
		set = true
	}
	if !set {
		return nil
	}
	return &in
}

// readRequest decodes an evaluation request from path, or stdin for "-".
func readRequest(cmd *cobra.Command, path string) (domain.EvaluationRequest, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return domain.EvaluationRequest{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		defer f.Close()
		r = f
	}

	var req domain.EvaluationRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return domain.EvaluationRequest{}, fmt.Errorf("%w: decoding %s: %w", domain.ErrInvalidRequest, path, err)
	}
	return req, nil
}

// =============================================================================
// Stage handlers
// =============================================================================

func (c *cli) runIngest(cmd *cobra.Command, o ingestOptions) error {
	return c.withApp(cmd, true, func(ctx context.Context, a *app.App) (any, error) {
		return a.Ingest.LoadDataset(ctx, o.request())
	})
}

func (c *cli) runProcess(cmd *cobra.Command, id string, mc *domain.ModelConfigInput) error {
	return c.withApp(cmd, true, func(ctx context.Context, a *app.App) (any, error) {
		return a.Process.ProcessTemplates(ctx, domain.ProcessRequest{EvaluationID: id, ModelConfig: mc})
	})
}

func (c *cli) runExecute(cmd *cobra.Command, id string, mc *domain.ModelConfigInput) error {
	return c.withApp(cmd, true, func(ctx context.Context, a *app.App) (any, error) {
		return a.Execute.ExecuteCases(ctx, domain.ExecuteRequest{EvaluationID: id, ModelConfig: mc})
	})
}

func (c *cli) runJudge(cmd *cobra.Command, id, judgeModel string, threshold *int) error {
	return c.withApp(cmd, true, func(ctx context.Context, a *app.App) (any, error) {
		return a.Judge.JudgeResults(ctx, domain.JudgeRequest{
			EvaluationID:        id,
			JudgeModel:          judgeModel,
			SimilarityThreshold: threshold,
		})
	})
}

func (c *cli) runPipeline(cmd *cobra.Command, path string) error {
	req, err := readRequest(cmd, path)
	if err != nil {
		return err
	}
	return c.withApp(cmd, false, func(ctx context.Context, a *app.App) (any, error) {
		return a.Runner.Run(ctx, req)
	})
}

// withApp builds the application, runs fn and prints its result.
func (c *cli) withApp(cmd *cobra.Command, warnMemory bool, fn func(context.Context, *app.App) (any, error)) error {
	ctx := cmd.Context()
	a, err := c.openApp(ctx, warnMemory)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

// =============================================================================
// Results handlers
// =============================================================================

func (c *cli) withResults(cmd *cobra.Command, fn func(context.Context, *results.Service) (any, error)) error {
	ctx := cmd.Context()
	svc, kv, err := c.openResults(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	out, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func (c *cli) runResultsList(cmd *cobra.Command) error {
	return c.withResults(cmd, func(ctx context.Context, svc *results.Service) (any, error) {
		runs, err := svc.ListEvaluations(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"evaluations": runs}, nil
	})
}

func (c *cli) runResultsShow(cmd *cobra.Command, id string) error {
	return c.withResults(cmd, func(ctx context.Context, svc *results.Service) (any, error) {
		return svc.Describe(ctx, id)
	})
}

func (c *cli) runResultsSummary(cmd *cobra.Command, id string) error {
	return c.withResults(cmd, func(ctx context.Context, svc *results.Service) (any, error) {
		return svc.GetSummary(ctx, id)
	})
}

func (c *cli) runResultsCases(cmd *cobra.Command, id, category string) error {
	return c.withResults(cmd, func(ctx context.Context, svc *results.Service) (any, error) {
		cases, err := svc.GetCases(ctx, id, results.CaseFilter{Category: domain.SimilarityCategory(category)})
		if err != nil {
			return nil, err
		}
		return map[string]any{"evaluation_id": id, "count": len(cases), "cases": cases}, nil
	})
}

// =============================================================================
// Service handlers
// =============================================================================

func (c *cli) runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := c.openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(a.Results, a.Registry, a.Logger)
	return httpapi.Serve(ctx, a.Config.HTTP.Addr, router, a.Config.HTTP.ShutdownTimeout, a.Logger)
}

func (c *cli) runWorker(cmd *cobra.Command, withHTTP bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := c.openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	tc, err := worker.Dial(a.Config.Temporal, a.Logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	w := worker.New(tc, a.Config.Temporal.TaskQueue, a.Activities)
	if err := w.Start(); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	defer w.Stop()
	a.Logger.InfoContext(ctx, "worker started",
		"task_queue", a.Config.Temporal.TaskQueue,
		"namespace", a.Config.Temporal.Namespace)

	g, gctx := errgroup.WithContext(ctx)
	if withHTTP {
		gin.SetMode(gin.ReleaseMode)
		router := httpapi.NewRouter(a.Results, a.Registry, a.Logger)
		g.Go(func() error {
			return httpapi.Serve(gctx, a.Config.HTTP.Addr, router, a.Config.HTTP.ShutdownTimeout, a.Logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

func (c *cli) runStart(cmd *cobra.Command, path string, wait bool) error {
	req, err := readRequest(cmd, path)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tc, err := worker.Dial(cfg.Temporal, c.log)
	if err != nil {
		return err
	}
	defer tc.Close()

	run, err := tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflow.WorkflowID(req.EvaluationID),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflow.EvaluationWorkflow, req)
	if err != nil {
		return fmt.Errorf("starting workflow: %w", err)
	}
	if !wait {
		return writeJSON(cmd.OutOrStdout(), map[string]string{
			"evaluation_id": req.EvaluationID,
			"workflow_id":   run.GetID(),
			"run_id":        run.GetRunID(),
		})
	}

	var h domain.Handoff
	if err := run.Get(ctx, &h); err != nil {
		return workflowError(err)
	}
	return writeJSON(cmd.OutOrStdout(), h)
}

// workflowError reports a caller-correctable workflow failure by its
// message. Internal failures stay opaque.
func workflowError(err error) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != string(domain.ClassInternal) {
		return &plainError{err: errors.New(appErr.Message())}
	}
	return err
}

func (c *cli) runMigrateKeys(cmd *cobra.Command, dryRun bool) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	kv, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer kv.Close()

	report, err := runstate.MigrateLegacyKeys(ctx, kv, dryRun)
	if err != nil {
		return err
	}
	c.log.InfoContext(ctx, "legacy keys migrated",
		"moved", len(report.Moved),
		"skipped", len(report.Skipped),
		"dry_run", report.DryRun)
	return writeJSON(cmd.OutOrStdout(), report)
}
