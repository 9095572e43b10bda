package cli

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newParseCmd(a *app) *cobra.Command {
	var (
		flags   parseFlags
		format  string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "parse [plan.json ...]",
		Short: "Turn plans into a flow graph and print it as JSON or CSV",
		Long: `Parse reads one or more EXPLAIN documents (stdin when none is given) and prints the
flow graph: one row per edge with its operation, label and metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return errors.Errorf("unsupported format %q (expected json or csv)", format)
			}
			graph, _, err := flags.parse(cmd, a, args)
			if err != nil {
				return err
			}
			return withOutput(cmd, outPath, func(w io.Writer) error {
				if format == "csv" {
					return graph.WriteCSV(w)
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return errors.Wrap(enc.Encode(graph), "encode graph")
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or csv")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (stdout if omitted)")
	return cmd
}
