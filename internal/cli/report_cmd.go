package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mickamy/queryflow/internal/render/tui"
)

func registerTUIFlags(cmd *cobra.Command, opts *tui.Options, noColor *bool) {
	flags := cmd.Flags()
	flags.BoolVar(noColor, "no-color", false, "Disable ANSI colors")
	flags.IntVar(&opts.MaxDepth, "max-depth", 0, "Limit tree depth")
	flags.IntVar(&opts.BarWidth, "bar-width", 20, "Width of the share bar")
	flags.BoolVar(&opts.ShowMetadata, "metadata", false, "Print operation details below each flow")
}

func newReportCmd(a *app) *cobra.Command {
	var (
		flags   parseFlags
		opts    tui.Options
		noColor bool
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "report [plan.json ...]",
		Short: "Print a terminal report of the flow graph with insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, _, err := flags.parse(cmd, a, args)
			if err != nil {
				return err
			}
			opts.EnableColor = !noColor && outPath == ""
			return withOutput(cmd, outPath, func(w io.Writer) error {
				return tui.Render(w, graph, opts)
			})
		},
	}
	flags.register(cmd)
	registerTUIFlags(cmd, &opts, &noColor)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (stdout if omitted)")
	return cmd
}
