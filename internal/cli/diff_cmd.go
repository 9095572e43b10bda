package cli

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mickamy/queryflow/internal/diff"
)

func newDiffCmd(a *app) *cobra.Command {
	var (
		flags      parseFlags
		opts       diff.Options
		basePath   string
		targetPath string
		format     string
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "diff --base base.json --target target.json",
		Short: "Compare two plans and summarise what got slower or faster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if basePath == "" || targetPath == "" {
				return errors.New("--base and --target are required")
			}
			if format != "md" && format != "markdown" && format != "json" {
				return errors.Errorf("unsupported format %q (expected md or json)", format)
			}

			base, _, err := flags.parse(cmd, a, []string{basePath})
			if err != nil {
				return errors.Wrap(err, "load base")
			}
			target, _, err := flags.parse(cmd, a, []string{targetPath})
			if err != nil {
				return errors.Wrap(err, "load target")
			}

			report, err := diff.Compare(base, target, opts)
			if err != nil {
				return err
			}
			return withOutput(cmd, outPath, func(w io.Writer) error {
				if format == "json" {
					payload, err := report.JSON()
					if err != nil {
						return err
					}
					_, err = w.Write(append(payload, '\n'))
					return err
				}
				_, err := io.WriteString(w, report.Markdown())
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&basePath, "base", "", "Path to the baseline plan")
	cmd.Flags().StringVar(&targetPath, "target", "", "Path to the plan to compare against the baseline")
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Output format: md or json")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (stdout if omitted)")
	cmd.Flags().Float64Var(&opts.MinSelfDelta, "min-delta", 0, "Minimum self delta to report (default from config)")
	cmd.Flags().Float64Var(&opts.MinPercentChange, "min-percent", 0, "Minimum percent change to report (default from config)")
	cmd.Flags().IntVar(&opts.MaxItems, "limit", 0, "Maximum rows per section (default from config)")
	return cmd
}
