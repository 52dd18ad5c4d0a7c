// Package commands implements the indexbag CLI subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/indexbag/pkg/config"
	"github.com/Sumatoshi-tech/indexbag/pkg/indexbag"
	"github.com/Sumatoshi-tech/indexbag/pkg/observability"
	"github.com/Sumatoshi-tech/indexbag/pkg/persist"
	"github.com/Sumatoshi-tech/indexbag/pkg/rapid"
	"github.com/Sumatoshi-tech/indexbag/pkg/version"
)

const (
	rapidCmdUse   = "rapid"
	rapidCmdShort = "Drive a bag with seeded random operations"
	rapidCmdLong  = `Run the randomized driver: a fixed startup sequence followed by weighted
random inserts, removes and lookups, each checked against the values the
driver inserted. Prints a summary report when done.`

	metricsPath              = "/metrics"
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second

	plotSamples = 100

	checkpointBasename = "rapid"
)

type rapidFlags struct {
	configPath    string
	format        string
	metricsAddr   string
	otlpEndpoint  string
	plotPath      string
	checkpointDir string
	seed          uint64
	ops           int
	base          int
	hibernateEach int
	sampleEvery   int
	trace         bool
	noColor       bool
}

// NewRapidCommand creates the rapid subcommand.
func NewRapidCommand() *cobra.Command {
	var flags rapidFlags

	cmd := &cobra.Command{
		Use:   rapidCmdUse,
		Short: rapidCmdShort,
		Long:  rapidCmdLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRapidConfig(cmd, flags)
			if err != nil {
				return err
			}

			format, err := rapid.ParseFormat(flags.format)
			if err != nil {
				return err
			}

			if flags.noColor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			}

			out := rapidOutput{
				report:      cmd.OutOrStdout(),
				log:         cmd.ErrOrStderr(),
				format:      format,
				plotPath:    flags.plotPath,
				sampleEvery: flags.sampleEvery,
			}

			return runRapid(cmd.Context(), cfg, out)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&flags.format, "format", "f", string(rapid.FormatTable), "report format: table, json or yaml")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&flags.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector address")
	cmd.Flags().Uint64Var(&flags.seed, "seed", config.DefaultSeed, "RNG seed")
	cmd.Flags().IntVarP(&flags.ops, "ops", "n", config.DefaultOps, "number of random actions")
	cmd.Flags().IntVar(&flags.base, "base", 0, "values inserted before the run")
	cmd.Flags().IntVar(&flags.hibernateEach, "hibernate-each", 0, "hibernate and boot the bag every N actions")
	cmd.Flags().StringVar(&flags.plotPath, "plot", "", "write an HTML occupancy chart to this file")
	cmd.Flags().StringVar(&flags.checkpointDir, "checkpoint", "", "resume from and save driver state in this directory")
	cmd.Flags().IntVar(&flags.sampleEvery, "sample-every", 0, "actions between chart samples (default: ops/100)")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "print one line per action to stderr")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored trace output")

	return cmd
}

// loadRapidConfig loads the config file and applies explicitly set flags on top.
func loadRapidConfig(cmd *cobra.Command, flags rapidFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	changed := cmd.Flags().Changed

	if changed("seed") {
		cfg.Rapid.Seed = flags.seed
	}

	if changed("ops") {
		cfg.Rapid.Ops = flags.ops
	}

	if changed("base") {
		cfg.Rapid.Base = flags.base
	}

	if changed("hibernate-each") {
		cfg.Rapid.HibernateEach = flags.hibernateEach
	}

	if changed("trace") {
		cfg.Rapid.Verbose = flags.trace
	}

	if changed("checkpoint") {
		cfg.Rapid.CheckpointDir = flags.checkpointDir
	}

	if changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = flags.metricsAddr
	}

	if changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint = flags.otlpEndpoint
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}

	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		cfg.Logging.Level = "error"
	}

	switch {
	case cfg.Rapid.Ops < 0:
		return nil, fmt.Errorf("%w: %d", config.ErrInvalidOps, cfg.Rapid.Ops)
	case cfg.Rapid.Base < 0:
		return nil, fmt.Errorf("%w: %d", config.ErrInvalidBase, cfg.Rapid.Base)
	}

	return cfg, nil
}

func observabilityConfig(cfg *config.Config, logOut io.Writer) (observability.Config, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return observability.Config{}, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = observability.ModeBench
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.Prometheus = cfg.Telemetry.MetricsAddr != ""
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.Format == config.FormatJSON
	obsCfg.LogOutput = logOut

	return obsCfg, nil
}

type rapidOutput struct {
	report      io.Writer
	log         io.Writer
	format      rapid.Format
	plotPath    string
	sampleEvery int
}

// samplingInterval spreads roughly a hundred chart samples over the run.
func (out rapidOutput) samplingInterval(cfg *config.Config) int {
	if out.sampleEvery > 0 {
		return out.sampleEvery
	}

	return max(1, (cfg.Rapid.Base+cfg.Rapid.Ops)/plotSamples)
}

func runRapid(ctx context.Context, cfg *config.Config, out rapidOutput) (err error) {
	obsCfg, err := observabilityConfig(cfg, out.log)
	if err != nil {
		return err
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		err = errors.Join(err, providers.Shutdown(context.WithoutCancel(ctx)))
	}()

	logger := providers.Logger

	if providers.MetricsHandler != nil {
		stop, serveErr := serveMetrics(cfg.Telemetry.MetricsAddr, providers.MetricsHandler, logger)
		if serveErr != nil {
			return serveErr
		}

		defer stop()
	}

	bagMetrics, err := observability.NewBagMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create bag metrics: %w", err)
	}

	opts := []rapid.Option{
		rapid.WithRecorder(bagMetrics),
		rapid.WithLogger(logger),
		rapid.WithTracer(providers.Tracer),
		rapid.WithHibernateEach(cfg.Rapid.HibernateEach),
	}

	if cfg.Rapid.Verbose {
		opts = append(opts, rapid.WithTrace(out.log))
	}

	if out.plotPath != "" {
		opts = append(opts, rapid.WithSampleEvery(out.samplingInterval(cfg)))
	}

	var store *persist.Store[rapid.Checkpoint]

	if cfg.Rapid.CheckpointDir != "" {
		codec, codecErr := persist.CodecByName(cfg.Rapid.CheckpointCodec)
		if codecErr != nil {
			return codecErr
		}

		store = persist.NewStore[rapid.Checkpoint](cfg.Rapid.CheckpointDir, checkpointBasename, codec)
	}

	driver, err := newDriver(ctx, cfg, store, opts, logger)
	if err != nil {
		return err
	}

	logger.DebugContext(ctx, "rapid run starting",
		"seed", cfg.Rapid.Seed,
		"base", cfg.Rapid.Base,
		"ops", cfg.Rapid.Ops,
	)

	report, err := driver.Run(ctx, cfg.Rapid.Ops)

	// Cancellation is only observed between actions, so an interrupted
	// driver is consistent and can be checkpointed.
	interrupted := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)

	if store != nil && (err == nil || interrupted) {
		saveErr := saveCheckpoint(store, driver)
		if saveErr != nil {
			return errors.Join(err, saveErr)
		}

		logger.InfoContext(context.WithoutCancel(ctx), "checkpoint saved", "path", store.Path(), "interrupted", interrupted)
	}

	if err != nil {
		return fmt.Errorf("rapid run: %w", err)
	}

	if out.plotPath != "" {
		err = writePlot(out.plotPath, driver.Samples())
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "occupancy chart written", "path", out.plotPath)
	}

	return report.Render(out.report, out.format)
}

// newDriver resumes from the checkpoint in store when there is one, and
// starts a fresh prefilled driver otherwise.
func newDriver(
	ctx context.Context,
	cfg *config.Config,
	store *persist.Store[rapid.Checkpoint],
	opts []rapid.Option,
	logger *slog.Logger,
) (*rapid.Driver, error) {
	if store != nil && store.Exists() {
		cp, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}

		driver, err := rapid.Resume(cp, opts...)
		if err != nil {
			return nil, fmt.Errorf("resume: %w", err)
		}

		logger.InfoContext(ctx, "resumed from checkpoint", "path", store.Path(), "enacted", cp.Enacted)

		return driver, nil
	}

	opts = append(opts,
		rapid.WithSeed(cfg.Rapid.Seed),
		rapid.WithWeights(rapid.Weights{
			Insert: cfg.Rapid.Weights.Insert,
			Remove: cfg.Rapid.Weights.Remove,
			Lookup: cfg.Rapid.Weights.Lookup,
		}),
		rapid.WithBagOptions(
			indexbag.WithPageSize(cfg.Bag.PageSize),
			indexbag.WithHibernationThreshold(cfg.Bag.HibernationThreshold),
		),
	)

	driver, err := rapid.New(opts...)
	if err != nil {
		return nil, err
	}

	err = driver.Prefill(ctx, cfg.Rapid.Base)
	if err != nil {
		return nil, fmt.Errorf("prefill: %w", err)
	}

	return driver, nil
}

func saveCheckpoint(store *persist.Store[rapid.Checkpoint], driver *rapid.Driver) error {
	cp, err := driver.Checkpoint()
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	err = store.Save(cp)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	return nil
}

func writePlot(path string, samples []rapid.Sample) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}

	defer func() {
		err = errors.Join(err, file.Close())
	}()

	return rapid.RenderOccupancyChart(file, samples)
}

// serveMetrics serves handler on addr until the returned stop func is called.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, handler)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		serveErr := server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", serveErr)
		}
	}()

	logger.Info("serving metrics", "addr", listener.Addr().String(), "path", metricsPath)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		shutdownErr := server.Shutdown(ctx)
		if shutdownErr != nil {
			logger.Warn("metrics server shutdown", "error", shutdownErr)
		}
	}, nil
}
