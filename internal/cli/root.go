package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mickamy/queryflow/internal/config"
	"github.com/mickamy/queryflow/internal/engine/athena"
	"github.com/mickamy/queryflow/internal/engine/postgres"
	"github.com/mickamy/queryflow/internal/flow"
)

const configEnv = "QUERYFLOW_CONFIG"

// app is the state shared by every command of one invocation.
type app struct {
	version string

	configPath  string
	logLevel    string
	metricsFile string

	logger   log.Logger
	registry *prometheus.Registry
	metrics  *flow.Metrics
}

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	rootCmd := newRootCmd(version)
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(version string) *cobra.Command {
	a := &app{version: version, logger: log.NewNopLogger()}

	rootCmd := &cobra.Command{
		Use:   "queryflow",
		Short: "Turn query execution plans into flow graphs",
		Long: `queryflow reads PostgreSQL and Athena EXPLAIN output, turns each plan into a graph of
operations with data flowing between them, and renders it as a Sankey diagram, a
terminal report or a diff between two plans.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.flushMetrics()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML or JSON configuration file; falls back to $"+configEnv)
	flags.StringVar(&a.logLevel, "log-level", "info", "Log level: debug, info, warn, error or none")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "Write parser metrics in Prometheus text format to this file")

	rootCmd.AddCommand(
		newRunCmd(a),
		newAnalyzeCmd(a),
		newParseCmd(a),
		newVisualizeCmd(a),
		newReportCmd(a),
		newDiffCmd(a),
		newVersionCmd(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	path := strings.TrimSpace(a.configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(configEnv))
	}
	if err := config.Apply(path); err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), a.logLevel)
	if err != nil {
		return err
	}
	a.logger = logger

	a.registry = prometheus.NewRegistry()
	a.metrics = flow.NewMetrics(a.registry)

	if path != "" {
		level.Debug(a.logger).Log("msg", "loaded config", "path", path)
	}
	return nil
}

func (a *app) flushMetrics() error {
	if a.metricsFile == "" || a.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
		return errors.Wrap(err, "write metrics file")
	}
	level.Debug(a.logger).Log("msg", "wrote metrics", "path", a.metricsFile)
	return nil
}

func newLogger(w io.Writer, name string) (log.Logger, error) {
	var allow level.Option
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		allow = level.AllowDebug()
	case "", "info":
		allow = level.AllowInfo()
	case "warn", "warning":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	case "none":
		allow = level.AllowNone()
	default:
		return nil, errors.Errorf("unknown log level %q", name)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, allow)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

func newEngine(name string) (flow.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case postgres.Name, "postgresql", "pg":
		return postgres.New(), nil
	case athena.Name, "trino", "presto":
		return athena.New(), nil
	default:
		return nil, errors.Errorf("unknown engine %q (expected %s or %s)", name, postgres.Name, athena.Name)
	}
}
