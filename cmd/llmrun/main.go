package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zen-systems/llmrun/pkg/adapter"
	"github.com/zen-systems/llmrun/pkg/config"
	"github.com/zen-systems/llmrun/pkg/execlog"
	"github.com/zen-systems/llmrun/pkg/pricing"
)

var (
	verbose bool
	logDir  string
	logger  = zap.NewNop()
	aliases *config.ModelAliases

	buildLogger = newLogger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "llmrun",
		Short: "Run prompts against LLM providers with usage, cost and quality tracking",
		Long: `llmrun sends a prompt to one of several LLM providers and records every
	call as a JSON log entry with token usage, cost and latency. Responses can
	optionally be scored by an evaluation service.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := buildLogger(verbose)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			logger = l
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for execution logs (overrides LLMRUN_LOG_DIR)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(pricingCmd())
	return rootCmd
}

// newLogger builds a console logger on stderr. Without --verbose only
// warnings and errors are shown.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = !debug
	return cfg.Build()
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available providers and model aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tDEFAULT MODEL\tSTATUS")
			for _, info := range adapter.Providers() {
				model := info.DefaultModel
				if m := cfg.Models[info.Name]; m != "" {
					model = m
				}
				status := "no key"
				if cfg.HasProvider(info.Name) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, model, status)
			}

			fmt.Fprintln(w)
			fmt.Fprintln(w, "ALIAS\tMODEL\tPROVIDER")
			for _, alias := range aliases.AliasNames() {
				model := aliases.Resolve(alias)
				fmt.Fprintf(w, "%s\t%s\t%s\n", alias, model, orDash(aliases.ProviderFor(model)))
			}
			return w.Flush()
		},
	}
}

func statsCmd() *cobra.Command {
	var watchFlag bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize logged executions",
		Long: `Aggregates every log entry in the log directory: number of calls,
	total cost, total tokens and the providers used.

	Use --watch to keep the summary current as new calls are logged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			store := execlog.New(cfg.LogDir, execlog.WithLogger(logger))

			if watchFlag {
				return store.Watch(cmd.Context(), printStats)
			}

			stats, err := store.Stats()
			if err != nil {
				return err
			}
			printStats(stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&watchFlag, "watch", false, "refresh the summary when the log directory changes")
	return cmd
}

func printStats(s execlog.Stats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Log directory:\t%s\n", s.LogDirectory)
	fmt.Fprintf(w, "Executions:\t%d\n", s.TotalLogs)
	if s.Skipped > 0 {
		fmt.Fprintf(w, "Unreadable:\t%d\n", s.Skipped)
	}
	fmt.Fprintf(w, "Total tokens:\t%d\n", s.TotalTokens)
	fmt.Fprintf(w, "Total cost:\t%s\n", pricing.FormatCost(s.TotalCost))
	fmt.Fprintf(w, "Providers:\t%s\n", orDash(strings.Join(s.ProvidersUsed, ", ")))
	_ = w.Flush()
}

func pricingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pricing [model...]",
		Short: "Show per-million-token prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			table, err := cfg.PricingTable()
			if err != nil {
				return err
			}
			calc := pricing.NewCalculator(table)

			models := args
			if len(models) == 0 {
				models = calc.Models()
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "MODEL\tINPUT (%s/1M)\tOUTPUT (%s/1M)\n", pricing.Currency, pricing.Currency)
			for _, name := range models {
				model := aliases.Resolve(name)
				price, ok := calc.Lookup(model)
				if !ok {
					fmt.Fprintf(w, "%s\t-\t-\n", model)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", model, pricing.FormatCost(price.Input), pricing.FormatCost(price.Output))
			}
			return w.Flush()
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logDir != "" {
		cfg.LogDir = logDir
	}

	aliases, err = config.LoadUserAliases(cfg.ConfigDir)
	if err != nil {
		logger.Warn("ignoring model aliases", zap.Error(err))
		aliases = config.DefaultAliases()
	}
	return cfg, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
