package cli

import (
	"fmt"
	"os"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mickamy/queryflow/internal/config"
	"github.com/mickamy/queryflow/internal/render/sankey"
)

func newVisualizeCmd(a *app) *cobra.Command {
	var (
		flags    parseFlags
		metrics  []string
		together bool
		title    string
		outDir   string
	)
	cmd := &cobra.Command{
		Use:     "visualize [plan.json ...]",
		Aliases: []string{"sankey"},
		Short:   "Render the flow graph as Sankey diagrams",
		Long: `Visualize writes one HTML Sankey diagram per metric, named <title>-<metric>.html, or a
single page holding every metric with --together.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(flags.engine)
			if err != nil {
				return err
			}
			renderer, err := sankey.New(engine, sankey.Options{
				Title:    title,
				Metrics:  metrics,
				Together: together,
				Config:   config.Active().Render,
			})
			if err != nil {
				return err
			}
			graph, err := flags.parseWith(cmd, a, engine, args)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return errors.Wrap(err, "create output directory")
			}
			paths, err := renderer.WriteFiles(outDir, graph)
			if err != nil {
				return err
			}
			for _, path := range paths {
				level.Info(a.logger).Log("msg", "wrote diagram", "path", path)
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVarP(&metrics, "metrics", "m", nil, "Metrics to draw link widths from (default from config)")
	cmd.Flags().BoolVar(&together, "together", false, "Draw every metric on one page")
	cmd.Flags().StringVarP(&title, "title", "t", "queryflow", "Diagram title and file name prefix")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory the HTML files are written to")
	return cmd
}
