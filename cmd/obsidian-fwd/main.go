package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/obsidian/fwdmodel"
	"github.com/signalsfoundry/obsidian/internal/config"
	"github.com/signalsfoundry/obsidian/internal/logging"
	"github.com/signalsfoundry/obsidian/internal/observability"
	"github.com/signalsfoundry/obsidian/kb"
	"github.com/signalsfoundry/obsidian/model"
	"github.com/spf13/cobra"
)

var version = "dev"

// Config carries the flags of one simulate run.
type Config struct {
	ConfigPath     string
	OutputPath     string
	MetricsAddress string
	LogLevel       string
	LogFormat      string
	// Repeat evaluates the forward models this many times against the same
	// cache, which is how a sampler drives them.
	Repeat int
}

// report is the JSON document written by simulate.
type report struct {
	RunID   string               `json:"run_id"`
	Sensors []string             `json:"sensors"`
	Results *model.GlobalResults `json:"results"`
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "obsidian-fwd",
		Short:         "Geophysical forward models over a layered stochastic world",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newSimulateCmd(out), newSensorsCmd(out), newVersionCmd(out))
	return root
}

func newSimulateCmd(out io.Writer) *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Build sensor caches for a world and evaluate every enabled forward model",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(logging.ConfigFromEnv(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}))
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			w := out
			if cfg.OutputPath != "" && cfg.OutputPath != "-" {
				f, err := os.Create(cfg.OutputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return run(ctx, cfg, log, w)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&cfg.ConfigPath, "config", "c", "configs/demo.yaml", "YAML run description")
	flags.StringVarP(&cfg.OutputPath, "output", "o", "-", "where to write the JSON results, - for stdout")
	flags.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables")
	flags.StringVar(&cfg.LogLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL, then info)")
	flags.StringVar(&cfg.LogFormat, "log-format", "", "text or json (default $LOG_FORMAT, then text)")
	flags.IntVar(&cfg.Repeat, "repeat", 1, "number of forward evaluations against one cache")
	return cmd
}

func newSensorsCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "sensors",
		Short: "List the available forward models",
		Run: func(cmd *cobra.Command, args []string) {
			for _, f := range model.Sensors {
				fmt.Fprintf(out, "%-14s %s\n", f.Key(), f)
			}
		},
	}
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(out, version)
		},
	}
}

// run loads the config, builds every sensor cache once and evaluates the
// forward models cfg.Repeat times, writing the last results to out.
func run(ctx context.Context, cfg Config, log logging.Logger, out io.Writer) error {
	ctx, runID := logging.EnsureRunID(ctx)

	tracing := observability.TracingConfigFromEnv()
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, tracing.FlushTimeout, log)

	file, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	spec := file.GlobalSpec()
	params := file.GlobalParams()

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewForwardCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	solver, err := observability.NewSolverCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if srv := serveMetrics(cfg.MetricsAddress, metrics, log); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	eval := &fwdmodel.Evaluator{
		Log:     log,
		Metrics: metrics,
		Solver:  solver,
		Store:   kb.NewQueryStore(),
	}

	cache, err := eval.GenerateCache(ctx, spec)
	if err != nil {
		return err
	}

	repeat := cfg.Repeat
	if repeat < 1 {
		repeat = 1
	}
	var results *model.GlobalResults
	for i := 0; i < repeat; i++ {
		if results, err = eval.Forward(ctx, spec, cache, params); err != nil {
			return err
		}
	}

	sensors := make([]string, 0, len(spec.Enabled()))
	for _, f := range spec.Enabled() {
		sensors = append(sensors, f.Key())
	}
	log.Info(ctx, "forward evaluation complete",
		logging.String("run_id", runID),
		logging.Any("sensors", sensors),
		logging.Int("evaluations", repeat))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report{RunID: runID, Sensors: sensors, Results: results})
}

func serveMetrics(addr string, collector *observability.ForwardCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
