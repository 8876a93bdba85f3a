package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/llmrun/pkg/adapter"
	"github.com/zen-systems/llmrun/pkg/config"
	"github.com/zen-systems/llmrun/pkg/evaluation"
	"github.com/zen-systems/llmrun/pkg/execlog"
	"github.com/zen-systems/llmrun/pkg/pipeline"
	"github.com/zen-systems/llmrun/pkg/pricing"
	"github.com/zen-systems/llmrun/pkg/tokens"
)

const rule = "============================================================"

type runFlags struct {
	llm         string
	model       string
	prompt      textFlag
	system      textFlag
	context     textFlag
	groundTruth textFlag
	temperature float64
	maxTokens   int
	eval        bool
	noLog       bool
	metricsFile string
}

// textFlag is a value given inline or read from a file.
type textFlag struct {
	value string
	file  string
}

func (f textFlag) read() (string, error) {
	if f.file == "" {
		return f.value, nil
	}
	data, err := os.ReadFile(f.file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", f.file, err)
	}
	return string(data), nil
}

func runCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send a prompt to an LLM provider",
		Long: `Sends the prompt to the chosen provider and prints the response.

	Every call is logged as JSON with token usage, cost and latency unless
	--no-log is given. Use --eval to score the response; supplying --context
	and/or --ground-truth enables the faithfulness and correctness metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.llm, "llm", "openai", "provider ("+strings.Join(adapter.Names(), ", ")+")")
	flags.StringVar(&f.model, "model", "", "model or alias (defaults to the provider's model)")
	flags.StringVar(&f.prompt.value, "prompt", "", "prompt to execute")
	flags.StringVar(&f.prompt.file, "prompt-file", "", "file with the prompt")
	flags.StringVar(&f.system.value, "system", "", "system prompt")
	flags.StringVar(&f.system.file, "system-file", "", "file with the system prompt")
	flags.StringVar(&f.context.value, "context", "", "reference context for evaluation")
	flags.StringVar(&f.context.file, "context-file", "", "file with reference context")
	flags.StringVar(&f.groundTruth.value, "ground-truth", "", "expected answer for evaluation")
	flags.StringVar(&f.groundTruth.file, "ground-truth-file", "", "file with the expected answer")
	flags.Float64Var(&f.temperature, "temperature", 0, "sampling temperature (provider default when unset)")
	flags.IntVar(&f.maxTokens, "max-tokens", 0, "maximum output tokens (provider default when unset)")
	flags.BoolVar(&f.eval, "eval", false, "score the response with the evaluation engine")
	flags.BoolVar(&f.noLog, "no-log", false, "disable JSON execution logging")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")

	cmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")
	cmd.MarkFlagsMutuallyExclusive("system", "system-file")
	cmd.MarkFlagsMutuallyExclusive("context", "context-file")
	cmd.MarkFlagsMutuallyExclusive("ground-truth", "ground-truth-file")

	return cmd
}

func runPrompt(cmd *cobra.Command, f runFlags) error {
	prompt, err := f.prompt.read()
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return errors.New("you must specify --prompt or --prompt-file")
	}
	system, err := f.system.read()
	if err != nil {
		return err
	}
	evalContext, err := f.context.read()
	if err != nil {
		return err
	}
	groundTruth, err := f.groundTruth.read()
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := cmd.Context()
	provider, err := newProvider(ctx, cfg, f.llm, f.model)
	if err != nil {
		return err
	}

	table, err := cfg.PricingTable()
	if err != nil {
		return err
	}

	runnerOpts := []pipeline.RunnerOption{
		pipeline.WithLogger(logger),
		pipeline.WithCalculator(pricing.NewCalculator(table)),
		pipeline.WithNormalizer(tokens.NewNormalizer(tokens.CounterFor, logger)),
	}
	if !f.noLog {
		runnerOpts = append(runnerOpts, pipeline.WithExecutionLog(execlog.New(cfg.LogDir, execlog.WithLogger(logger))))
	}
	if f.eval {
		selector, err := newSelector(ctx, cfg)
		if err != nil {
			logger.Warn("evaluation unavailable", zap.Error(err))
		}
		runnerOpts = append(runnerOpts, pipeline.WithSelector(selector))
	}

	var reg *prometheus.Registry
	if f.metricsFile != "" {
		reg = prometheus.NewRegistry()
		metrics, err := pipeline.NewMetrics(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		runnerOpts = append(runnerOpts, pipeline.WithMetrics(metrics))
	}

	opts := pipeline.Options{
		SystemPrompt:    system,
		Logging:         !f.noLog,
		Evaluation:      f.eval,
		EvalContext:     evalContext,
		EvalGroundTruth: groundTruth,
	}
	if cmd.Flags().Changed("temperature") {
		opts.Temperature = &f.temperature
	}
	if cmd.Flags().Changed("max-tokens") {
		opts.MaxTokens = &f.maxTokens
	}

	meta := provider.Metadata()
	fmt.Fprintf(os.Stderr, "Using %s (%s)\n", f.llm, meta.Model)

	exec, err := pipeline.NewRunner(runnerOpts...).Execute(ctx, provider, prompt, opts)
	if err != nil {
		if status := adapter.StatusCode(err); status != 0 {
			logger.Debug("generation failed", zap.String("provider", f.llm), zap.Int("status", status), zap.Error(err))
			return fmt.Errorf("%s call failed (status %d): %w", f.llm, status, err)
		}
		return fmt.Errorf("%s call failed: %w", f.llm, err)
	}

	fmt.Println(rule)
	fmt.Println("RESPONSE:")
	fmt.Println(rule)
	fmt.Println(exec.Response)
	fmt.Println(rule)
	printSummary(exec)

	if reg != nil {
		if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
			logger.Warn("failed to write metrics", zap.String("file", f.metricsFile), zap.Error(err))
		}
	}
	return nil
}

func newProvider(ctx context.Context, cfg *config.Config, name, model string) (adapter.Provider, error) {
	if !cfg.HasProvider(name) {
		return nil, fmt.Errorf("provider %q has no API key configured", name)
	}
	provider, err := adapter.New(ctx, name, cfg.ProviderConfig(name, aliases.Resolve(model)))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", name, err)
	}
	resolved := provider.Metadata().Model
	if err := aliases.ValidateModel(name, resolved); err != nil {
		logger.Warn("model is not a known model for this provider",
			zap.String("provider", name), zap.String("model", resolved), zap.Error(err))
	}
	return provider, nil
}

// newSelector builds the configured evaluation engine. On error the returned
// selector still works and reports the failure in each result.
func newSelector(ctx context.Context, cfg *config.Config) (*evaluation.Selector, error) {
	ec := cfg.Evaluation
	switch ec.Engine {
	case config.EngineJudge:
		judgeName := ec.JudgeProvider
		if judgeName == "" {
			judgeName = "openai"
		}
		judge, err := newProvider(ctx, cfg, judgeName, ec.JudgeModel)
		if err != nil {
			return evaluation.NewSelector(nil, logger), err
		}
		engine, err := evaluation.NewJudgeEngine(judge)
		if err != nil {
			return evaluation.NewSelector(nil, logger), err
		}
		return evaluation.NewSelector(engine, logger), nil
	default:
		engine, err := evaluation.NewHTTPEngine(ec.Endpoint, ec.Timeout)
		if err != nil {
			return evaluation.NewSelector(nil, logger), err
		}
		return evaluation.NewSelector(engine, logger), nil
	}
}

func printSummary(exec *pipeline.Execution) {
	fmt.Fprintf(os.Stderr, "Latency: %.2f ms\n", exec.LatencyMs)
	if exec.LogPath == "" && exec.Usage == (adapter.Usage{}) {
		return
	}
	fmt.Fprintf(os.Stderr, "Tokens: %d in / %d out / %d total\n",
		exec.Usage.InputTokens, exec.Usage.OutputTokens, exec.Usage.TotalTokens)
	if exec.Cost.PricingAvailable {
		fmt.Fprintf(os.Stderr, "Cost: %s\n", pricing.FormatCost(exec.Cost.TotalCost))
	} else {
		fmt.Fprintln(os.Stderr, "Cost: no pricing for this model")
	}
	if exec.LogPath != "" {
		fmt.Fprintf(os.Stderr, "Logged: %s\n", exec.LogPath)
	}

	ev := exec.Evaluation
	if ev == nil {
		return
	}
	if ev.Failed() {
		fmt.Fprintf(os.Stderr, "Evaluation failed: %s\n", ev.Error)
		return
	}
	fmt.Fprintf(os.Stderr, "Evaluation (%s):\n", strings.Join(ev.MetricsUsed, ", "))
	for _, s := range []struct {
		label string
		value *float64
	}{
		{"relevance", ev.Relevance},
		{"coherence", ev.Coherence},
		{"correctness", ev.Correctness},
		{"context quality", ev.ContextQuality},
		{"overall", ev.OverallScore},
	} {
		if s.value != nil {
			fmt.Fprintf(os.Stderr, "  %-16s %.3f\n", s.label, *s.value)
		}
	}
}
