// cmd/simulation/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"libraindex/internal/config"
	"libraindex/internal/simulation"
	"libraindex/internal/telemetry"
)

type options struct {
	configPath  string
	steps       int
	seed        string
	rate        float64
	burst       int
	libraryName string
	logLevel    string
	logFormat   string
	jsonOutput  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "simulation",
		Short: "Run a seeded random workload against an in-memory catalog",
		Long: `Runs a sequence of random catalog events (adds, removals, searches,
stats checks) and prints a summary. The same seed replays the same run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulation(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flags.IntVarP(&opts.steps, "steps", "n", 0, "number of simulation steps")
	flags.StringVar(&opts.seed, "seed", "", `random seed, or "random" for a fresh one`)
	flags.Float64Var(&opts.rate, "rate", 0, "maximum steps per second (0 = unpaced)")
	flags.IntVar(&opts.burst, "burst", 0, "steps allowed in a burst when paced")
	flags.StringVar(&opts.libraryName, "name", "", "catalog name")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print the summary as JSON")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags overrides file and environment settings with flags the user set.
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Simulation.Steps = opts.steps
	}
	if flags.Changed("seed") {
		if opts.seed == "random" {
			cfg.Simulation.Seed = nil
		} else {
			v, err := strconv.ParseUint(opts.seed, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid --seed %q: %w", opts.seed, err)
			}
			cfg.Simulation.Seed = &v
		}
	}
	if flags.Changed("rate") {
		cfg.Simulation.Rate = opts.rate
	}
	if flags.Changed("burst") {
		cfg.Simulation.Burst = opts.burst
	}
	if flags.Changed("name") {
		cfg.Library.Name = opts.libraryName
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	return nil
}

func runSimulation(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, opts, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
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

	sim, err := simulation.New(simulation.Config{
		LibraryName: cfg.Library.Name,
		Seed:        cfg.Simulation.Seed,
		Rate:        cfg.Simulation.Rate,
		Burst:       cfg.Simulation.Burst,
	}, simulation.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("starting simulation",
		"run_id", sim.RunID().String(),
		"seed", sim.Seed(),
		"steps", cfg.Simulation.Steps,
	)
	if err := sim.Run(ctx, cfg.Simulation.Steps); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		data, err := jsoniter.ConfigFastest.MarshalIndent(sim.Summary(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	for _, entry := range sim.Journal() {
		fmt.Fprintln(out, entry)
	}
	return sim.WriteSummary(out)
}
