package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/julianshen/worldforge/internal/config"
	"github.com/julianshen/worldforge/internal/llm"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/output"
	"github.com/julianshen/worldforge/internal/pipeline"
	"github.com/julianshen/worldforge/internal/runner"
	"github.com/julianshen/worldforge/internal/store"
)

// runOptions are the flags shared by ingest and analyze.
type runOptions struct {
	strict      bool
	outDir      string
	reportsDir  string
	analysisDir string
	seedsDir    string
	modelsDir   string
	noLLM       bool
	offline     bool
	summary     string
	timeout     time.Duration
}

func (o *runOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.strict, "strict", false, "treat a not-ready verdict as fatal")
	cmd.Flags().StringVar(&o.outDir, "out", "", "output directory (overrides paths.out_dir)")
	cmd.Flags().StringVar(&o.reportsDir, "reports", "", "audit report directory (overrides paths.reports_dir)")
	cmd.Flags().StringVar(&o.analysisDir, "analysis", "", "canonical entity directory (overrides paths.analysis_dir)")
	cmd.Flags().StringVar(&o.seedsDir, "seeds", "", "seed library cache (overrides paths.seeds_dir)")
	cmd.Flags().BoolVar(&o.noLLM, "no-llm", false, "skip the model-assisted analysis")
	cmd.Flags().BoolVar(&o.offline, "offline", false, "answer model requests from the response cache only")
	cmd.Flags().StringVar(&o.summary, "summary", "markdown", "summary format: json, markdown")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "abort the run after this long (0 = no limit)")
}

// apply folds the flags into the file configuration.
func (o *runOptions) apply(cfg *config.Config) {
	if o.strict {
		cfg.Analysis.Strict = true
	}
	if o.outDir != "" {
		cfg.Paths.OutDir = o.outDir
	}
	if o.reportsDir != "" {
		cfg.Paths.ReportsDir = o.reportsDir
	}
	if o.analysisDir != "" {
		cfg.Paths.AnalysisDir = o.analysisDir
	}
	if o.seedsDir != "" {
		cfg.Paths.SeedsDir = o.seedsDir
	}
	if o.modelsDir != "" {
		cfg.Paths.ModelsDir = o.modelsDir
	}
	if o.noLLM {
		cfg.LLM.Enabled = false
	}
}

// ingestCmd returns the "ingest" command, which runs every stage.
func ingestCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "ingest [snapshot]",
		Short: "Run the full ingestion pipeline",
		Long: `Read the snapshot, classify and analyse its entities, cross-validate the
analyses and, unless --strict stops a not-ready run, emit sources, write the
game content database, stage models and write audit reports.

Exit codes: 0 success, 1 fatal error, 2 snapshot missing, 3 not ready (strict).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, &opts, false)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.modelsDir, "models", "", "3D model source directory (overrides paths.models_dir)")
	return cmd
}

func runPipeline(cmd *cobra.Command, args []string, opts *runOptions, analyzeOnly bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	snap, err := runner.ResolveSnapshot(arg, cfg.Paths.Snapshot)
	if err != nil {
		return runner.Exit(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	if err := os.MkdirAll(cfg.Paths.OutDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	st, err := store.NewStore(cfg.Paths.CacheDBPath())
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer st.Close()

	pcfg := pipeline.FromConfig(cfg, snap)
	pcfg.AnalyzeOnly = analyzeOnly

	var deps pipeline.Deps
	if sub := newSubmitter(cfg, st, opts.offline); sub != nil {
		deps.Submitter = sub
	}

	started := time.Now()
	runID, err := st.StartRun(ctx, snap, started)
	if err != nil {
		logger.Warn("run history unavailable", "err", err)
	}

	res, runErr := pipeline.Run(ctx, pcfg, deps)

	if runID != "" {
		rec := store.Run{
			ID:         runID,
			Snapshot:   snap,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Verdict:    res.Verdict(),
			Partial:    res.Partial,
		}
		if runErr != nil {
			rec.Fatal = runErr.Error()
		}
		if err := st.FinishRun(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn("recording run failed", "err", err)
		}
	}

	if err := printSummary(cmd.OutOrStdout(), res.Summary(cmd.Name()), opts.summary); err != nil {
		return err
	}
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return runner.Exit(fmt.Errorf("run cancelled: %w", runErr))
	}
	return runner.Exit(runErr)
}

// newSubmitter builds the cached model client, or nil when the model
// analysis is disabled. Without an API key, or with offline set, the cache
// is replayed and misses become model-unavailable warnings.
func newSubmitter(cfg *config.Config, st *store.Store, offline bool) *llm.Cached {
	if !cfg.LLM.Enabled {
		logger.Info("model analysis disabled")
		return nil
	}
	var inner llm.Completer
	if !offline {
		key, err := cfg.LLM.ResolveKey()
		if err != nil {
			logger.Warn("no model API key, replaying cached responses only", "err", err)
		} else {
			client, err := llm.NewOpenAI(llm.OpenAIParams{
				APIKey:  key,
				BaseURL: cfg.LLM.BaseURL,
				Timeout: cfg.LLM.Timeout,
			})
			if err != nil {
				logger.Warn("model client unavailable", "err", err)
			} else {
				inner = client
			}
		}
	}
	return llm.NewCached(inner, st, llm.WithRateLimit(cfg.LLM.RequestsPerMinute))
}

// printSummary writes the exit summary. Markdown on a terminal is styled
// and followed by a one-line verdict.
func printSummary(w io.Writer, s *output.Summary, format string) error {
	data, err := output.ForName(format).Format(s)
	if err != nil {
		return fmt.Errorf("formatting summary: %w", err)
	}

	if file, ok := w.(*os.File); ok && format != "json" && output.IsTerminal(file) {
		rendered, err := output.RenderMarkdown(data, output.TerminalWidth(file))
		if err == nil {
			fmt.Fprint(w, rendered)
			fmt.Fprintln(w, output.VerdictLine(s))
			return nil
		}
		logger.Debug("markdown rendering failed", "err", err)
	}
	_, err = w.Write(data)
	return err
}
