package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/log"
	"github.com/cuemby/orbitsim/pkg/metrics"
	"github.com/cuemby/orbitsim/pkg/report"
	"github.com/cuemby/orbitsim/pkg/simulation"
	"github.com/cuemby/orbitsim/pkg/trace"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "orbitsim",
	Short:   "Discrete-event simulator for a container-orchestration control plane",
	Long:    `orbitsim replays synthetic or trace-driven workloads against a simulated scheduler, cluster autoscaler, and vertical/horizontal autoscalers, and reports reproducible load and utilization metrics.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("orbitsim version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (defaults applied if omitted)")
	rootCmd.PersistentFlags().String("trace", "", "path to a JSON trace file (overrides config's trace field)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation to a fixed simulated-time horizon",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		tracePath, _ := cmd.Flags().GetString("trace")
		until, _ := cmd.Flags().GetFloat64("until")
		outPath, _ := cmd.Flags().GetString("out")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		snapshotInterval, _ := cmd.Flags().GetFloat64("snapshot-interval")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if tracePath == "" {
			tracePath = cfg.Trace
		}

		if metricsAddr != "" {
			go func() {
				http.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(metricsAddr, nil); err != nil && err != http.ErrServerClosed {
					log.Logger.Error().Err(err).Msg("metrics server exited")
				}
			}()
		}

		sim := simulation.New(cfg, simulation.Options{})

		if tracePath != "" {
			events, err := trace.Load(tracePath)
			if err != nil {
				return fmt.Errorf("loading trace: %w", err)
			}
			sim.LoadTrace(events)
			log.Logger.Info().Str("trace", tracePath).Int("events", len(events)).Msg("trace loaded")
		}

		writer := report.NewWriter()
		recordSnapshot(sim, writer)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		for sim.CurrentTime() < until {
			select {
			case <-sigCh:
				log.Logger.Warn().Msg("interrupted, saving partial metrics stream")
				return saveReport(writer, outPath)
			default:
			}
			next := sim.CurrentTime() + snapshotInterval
			if next > until {
				next = until
			}
			sim.StepUntilTime(next)
			recordSnapshot(sim, writer)
		}

		log.Logger.Info().Float64("sim_time", sim.CurrentTime()).Int("snapshots", len(writer.Snapshots())).Msg("run complete")
		return saveReport(writer, outPath)
	},
}

func recordSnapshot(sim *simulation.Simulation, w *report.Writer) {
	agg := sim.Aggregates()
	w.Append(report.FromAggregates(agg, sim.SchedulingCycleCount(), sim.NodeAllocationPoolRemaining()))
}

func saveReport(w *report.Writer, path string) error {
	if path == "" {
		return nil
	}
	if err := w.Save(path); err != nil {
		return fmt.Errorf("saving metrics stream: %w", err)
	}
	return nil
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config and/or trace file without running the simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		tracePath, _ := cmd.Flags().GetString("trace")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		fmt.Printf("config OK: %d node group(s), cloud pool %d\n", len(cfg.Nodes), cfg.CloudNodesCount)

		if tracePath == "" {
			tracePath = cfg.Trace
		}
		if tracePath != "" {
			events, err := trace.Load(tracePath)
			if err != nil {
				return fmt.Errorf("loading trace: %w", err)
			}
			fmt.Printf("trace OK: %d event(s)\n", len(events))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Float64("until", 3600, "simulated seconds to run before stopping")
	runCmd.Flags().String("out", "", "path to write the JSON metrics stream (skipped if empty)")
	runCmd.Flags().String("metrics-addr", "", "address to serve Prometheus /metrics on, e.g. :9090 (skipped if empty)")
	runCmd.Flags().Float64("snapshot-interval", 30, "simulated seconds between recorded metrics snapshots")
}
