package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/paramreg/internal/archive"
	"github.com/danielpatrickdp/paramreg/internal/config"
	"github.com/danielpatrickdp/paramreg/internal/logging"
	"github.com/danielpatrickdp/paramreg/internal/metrics"
	"github.com/danielpatrickdp/paramreg/internal/registry"
)

// #region main
func main() {
	a := &app{}
	if err := a.execute(newRootCmd(a)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region app
// app carries what every subcommand needs once the root pre-run has
// resolved configuration.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	prom    *prometheus.Registry
	metrics *metrics.Collector

	dbPath      string
	logLevel    string
	development bool
	showMetrics bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "paramreg",
		Short:         "Parameter registry with provenance and validation against experiment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.dbPath, "db", "", "archive database path (overrides PARAMREG_DB)")
	f.StringVar(&a.logLevel, "log-level", "", "log level (overrides PARAMREG_LOG_LEVEL)")
	f.BoolVar(&a.development, "dev", false, "human-readable development logging")
	f.BoolVar(&a.showMetrics, "metrics", false, "print collected metrics to stderr on exit")

	root.AddCommand(
		newValidateCmd(a),
		newRecordCmd(a),
		newActivateCmd(a),
		newInspectCmd(a),
		newReplayCmd(a),
	)
	return root
}

// execute runs root and then flushes the logger and the metrics dump.
// Cobra skips post-run hooks when a command fails, and a failed run is
// the one whose metrics matter most.
func (a *app) execute(root *cobra.Command) error {
	err := root.Execute()
	if a.logger != nil {
		defer func() { _ = a.logger.Sync() }()
	}
	if a.showMetrics && a.prom != nil {
		if perr := printMetrics(root.ErrOrStderr(), a.prom); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func (a *app) init(cmd *cobra.Command) error {
	var cfg config.Config
	if err := config.ParseEnv(&cfg); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = a.dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("dev") {
		cfg.Development = a.development
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	a.logger = logger.With(zap.String("command", cmd.Name()))

	a.prom = prometheus.NewRegistry()
	a.metrics = metrics.New(a.prom)
	return nil
}

// newRegistry builds an empty registry wired to the configured tolerance,
// logger and metrics.
func (a *app) newRegistry() *registry.Registry {
	return registry.New(
		registry.WithTolerance(a.cfg.Tolerance()),
		registry.WithLogger(a.logger.Named("registry")),
		registry.WithObserver(a.metrics),
	)
}

func (a *app) openStore() (*archive.Store, error) {
	store, err := archive.NewStore(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", a.cfg.DBPath, err)
	}
	return store, nil
}

// #endregion app
