package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "simjudge",
		Short: "Evaluate model responses against expected answers with an LLM judge",
		Long: `simjudge runs an evaluation in four stages:

  ingest   load a dataset and prompt template, start the run
  process  render one prompt per dataset record
  execute  send every prompt to the model under test
  judge    score each response against its expected answer

Each stage reads its predecessor's output from the run state store, so the
stages can be invoked one at a time, end to end with "run", or durably
through the Temporal workflow with "start" and "worker".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"Path to YAML configuration file (or set SIMJUDGE_CONFIG)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "",
		"Override logging.level: debug, info, warn or error")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &plainError{err: err}
	})

	root.AddCommand(
		c.ingestCmd(),
		c.processCmd(),
		c.executeCmd(),
		c.judgeCmd(),
		c.runCmd(),
		c.resultsCmd(),
		c.serveCmd(),
		c.workerCmd(),
		c.startCmd(),
		c.migrateKeysCmd(),
	)
	return root
}

// =============================================================================
// Stage Commands
// =============================================================================

func (c *cli) ingestCmd() *cobra.Command {
	var o ingestOptions
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a dataset and prompt template and start a run",
		Example: `  simjudge ingest --id batman --template "{{query}}" --variables query \
    --dataset-path testdata/batman.json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runIngest(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.id, "id", "", "Evaluation id")
	f.StringVar(&o.template, "template", "", "Prompt template with {{variable}} placeholders")
	f.StringSliceVar(&o.variables, "variables", nil, "Declared template variables, in binding order")
	f.StringVar(&o.format, "format", "", "Dataset format (default query_response_pairs)")
	f.StringVar(&o.datasetPath, "dataset-path", "", "Read the dataset from a local file")
	f.StringVar(&o.datasetURL, "dataset-url", "", "Fetch the dataset over HTTP")
	f.StringVar(&o.datasetJSON, "dataset-json", "", "Inline dataset JSON")
	f.BoolVar(&o.replace, "replace", false, "Supersede an existing run with different input")
	return cmd
}

func (c *cli) processCmd() *cobra.Command {
	var (
		id string
		mc modelFlags
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Render one prompt per dataset record",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runProcess(cmd, id, mc.input(cmd))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Evaluation id")
	mc.register(cmd)
	return cmd
}

func (c *cli) executeCmd() *cobra.Command {
	var (
		id string
		mc modelFlags
	)
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Send every rendered prompt to the model under test",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runExecute(cmd, id, mc.input(cmd))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Evaluation id")
	mc.register(cmd)
	return cmd
}

func (c *cli) judgeCmd() *cobra.Command {
	var (
		id         string
		judgeModel string
		threshold  int
	)
	cmd := &cobra.Command{
		Use:   "judge",
		Short: "Score each response against its expected answer",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var t *int
			if cmd.Flags().Changed("threshold") {
				t = &threshold
			}
			return c.runJudge(cmd, id, judgeModel, t)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Evaluation id")
	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "Judge model (default judging.judge_model)")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Similarity threshold 0-100 (default judging.similarity_threshold)")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <request.json>",
		Short: "Run every stage in-process for one evaluation request",
		Long: `Run reads an evaluation request (JSON, "-" for stdin) and drives it through
ingestion, processing, execution and judging, printing the final hand-off.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPipeline(cmd, args[0])
		},
	}
}

// =============================================================================
// Results Commands
// =============================================================================

func (c *cli) resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Query runs and their verdicts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every run, newest first",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runResultsList(cmd)
		},
	}
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run's metadata and, once judged, its summary",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResultsShow(cmd, args[0])
		},
	}
	summary := &cobra.Command{
		Use:   "summary <id>",
		Short: "Show a judged run's comparison summary",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResultsSummary(cmd, args[0])
		},
	}

	var category string
	cases := &cobra.Command{
		Use:   "cases <id>",
		Short: "Show a judged run's case verdicts",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResultsCases(cmd, args[0], category)
		},
	}
	cases.Flags().StringVar(&category, "category", "", "Only cases in this category: high, medium, low or error")

	cmd.AddCommand(list, show, summary, cases)
	return cmd
}

// =============================================================================
// Service Commands
// =============================================================================

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the results API and metrics over HTTP",
		Long: `Serve exposes:

  GET /api/evaluations
  GET /api/evaluations/:id
  GET /api/evaluations/:id/summary
  GET /api/evaluations/:id/cases?category=
  GET /healthz
  GET /metrics

Shutdown is graceful on SIGINT/SIGTERM.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd)
		},
	}
}

func (c *cli) workerCmd() *cobra.Command {
	var withHTTP bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker hosting the evaluation workflow",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runWorker(cmd, withHTTP)
		},
	}
	cmd.Flags().BoolVar(&withHTTP, "http", false, "Also serve the results API and metrics on http.addr")
	return cmd
}

func (c *cli) startCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "start <request.json>",
		Short: "Start the evaluation workflow on Temporal",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStart(cmd, args[0], wait)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the workflow and print its result")
	return cmd
}

func (c *cli) migrateKeysCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate-keys",
		Short: "Move records stored under eval_run_{id}_{suffix} keys to bare-id keys",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runMigrateKeys(cmd, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would move without writing")
	return cmd
}
