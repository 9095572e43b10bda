package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/render/tui"
	"github.com/mickamy/queryflow/internal/runner"
)

// explainFlags select the plan source and the statement to explain.
type explainFlags struct {
	conn    string
	sqlPath string
	inline  string
	analyze bool
	verbose bool
	timeout time.Duration
}

func (f *explainFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.conn, "conn", os.Getenv("DATABASE_URL"),
		"PostgreSQL DSN or athena://<workgroup>?region=..&database=..&output=s3://..; defaults to $DATABASE_URL")
	flags.StringVar(&f.sqlPath, "sql", "", "Path to the SQL file to EXPLAIN")
	flags.StringVar(&f.inline, "query", "", "Inline SQL string to EXPLAIN")
	flags.BoolVar(&f.analyze, "analyze", true, "Execute the query to collect runtime metrics")
	flags.BoolVar(&f.verbose, "explain-verbose", false, "Ask PostgreSQL for VERBOSE output")
	flags.DurationVar(&f.timeout, "timeout", 0, "Optional execution timeout, e.g. 45s")
}

// explain fetches the plan and reports which engine it belongs to.
func (f *explainFlags) explain(ctx context.Context, a *app) ([]byte, string, error) {
	conn := strings.TrimSpace(f.conn)
	if conn == "" {
		return nil, "", errors.New("--conn is required or set $DATABASE_URL")
	}
	statement, err := readSQL(f.sqlPath, f.inline)
	if err != nil {
		return nil, "", err
	}

	src, err := runner.Open(ctx, conn, runner.Options{
		Analyze: f.analyze,
		Verbose: f.verbose,
		Timeout: f.timeout,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, "", err
	}
	payload, err := src.Explain(ctx, statement)
	if err != nil {
		return nil, "", err
	}
	return payload, src.Engine(), nil
}

func newRunCmd(a *app) *cobra.Command {
	var (
		flags   explainFlags
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute EXPLAIN for a query and print the plan JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, engine, err := flags.explain(cmd.Context(), a)
			if err != nil {
				return err
			}
			level.Debug(a.logger).Log("msg", "writing plan", "engine", engine, "out", outPath)
			return withOutput(cmd, outPath, func(w io.Writer) error {
				_, err := w.Write(indentJSON(payload))
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Path to write the plan JSON (stdout if omitted)")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		flags    explainFlags
		parse    parseFlags
		render   tui.Options
		outPath  string
		noColors bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run EXPLAIN and print the terminal report in one step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, engineName, err := flags.explain(cmd.Context(), a)
			if err != nil {
				return err
			}
			engine, err := newEngine(engineName)
			if err != nil {
				return err
			}
			p, err := flow.New(engine, parse.options(cmd, a))
			if err != nil {
				return err
			}
			graph, err := p.ParseRaw(payload)
			if err != nil {
				return err
			}
			render.EnableColor = !noColors && outPath == ""
			return withOutput(cmd, outPath, func(w io.Writer) error {
				return tui.Render(w, graph, render)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&parse.compact, "compact", false, "Collapse operations that display identically into one node (default from config)")
	cmd.Flags().BoolVar(&parse.verbose, "verbose", false, "Keep helper operations such as hash builds and sorts (default from config)")
	cmd.Flags().IntVar(&parse.startID, "start-id", 0, "First node id, counting down (default from config)")
	registerTUIFlags(cmd, &render, &noColors)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (stdout if omitted)")
	return cmd
}
