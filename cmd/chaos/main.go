// cmd/chaos/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"libraindex/internal/chaos"
	"libraindex/internal/config"
	"libraindex/internal/telemetry"
)

type options struct {
	configPath string
	name       string
	only       []string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "chaos",
		Short:         "Run the catalog fault-injection game day",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGameDay(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.name, "name", "Catalog Chaos Game Day", "game day name")
	flags.StringSliceVar(&opts.only, "only", nil, "run only the named experiments")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print experiment results as JSON")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func selectExperiments(all []chaos.Experiment, names []string) ([]chaos.Experiment, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]chaos.Experiment, len(all))
	for _, exp := range all {
		byName[exp.Name] = exp
	}
	selected := make([]chaos.Experiment, 0, len(names))
	for _, name := range names {
		exp, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown experiment %q", name)
		}
		selected = append(selected, exp)
	}
	return selected, nil
}

func runGameDay(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()

	// The human-readable report goes to stderr when stdout carries JSON.
	report := cmd.OutOrStdout()
	if opts.jsonOutput {
		report = cmd.ErrOrStderr()
	}

	engine := chaos.NewEngine(
		chaos.WithLogger(logger),
		chaos.WithTracerProvider(otel.GetTracerProvider()),
		chaos.WithOutput(report),
		chaos.WithSampleInterval(cfg.Chaos.SampleInterval),
		chaos.WithPause(cfg.Chaos.Pause),
	)
	engine.RegisterExperiments()

	scenarios, err := selectExperiments(engine.Experiments(), opts.only)
	if err != nil {
		return err
	}

	results, err := engine.ExecuteGameDay(ctx, chaos.GameDay{
		Name:      opts.name,
		Date:      time.Now(),
		Scenarios: scenarios,
	})
	if err != nil {
		return fmt.Errorf("game day %q: %w", opts.name, err)
	}

	if opts.jsonOutput {
		data, err := jsoniter.ConfigFastest.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(data)); err != nil {
			return err
		}
	}

	for _, r := range results {
		if !r.HypothesisHeld {
			return fmt.Errorf("experiment %s: hypothesis violated", r.ExperimentName)
		}
	}
	return nil
}
