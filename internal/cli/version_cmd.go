package cli

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show CLI version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, meta := resolveVersion(a.version)
			out := cmd.OutOrStdout()
			switch {
			case short:
				_, _ = fmt.Fprintln(out, v)
			case meta != "":
				_, _ = fmt.Fprintf(out, "queryflow %s (%s)\n", v, meta)
			default:
				_, _ = fmt.Fprintf(out, "queryflow %s\n", v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}

func resolveVersion(version string) (string, string) {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}

	var commit, buildTime string
	var dirty bool
	if info, ok := debug.ReadBuildInfo(); ok {
		if (v == "dev" || v == "(devel)") &&
			info.Main.Version != "" &&
			info.Main.Version != "(devel)" &&
			!strings.HasPrefix(info.Main.Version, "v0.0.0-") {
			v = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildTime = setting.Value
			case "vcs.modified":
				dirty = setting.Value == "true"
			}
		}
	}

	var details []string
	if commit != "" {
		short := commit
		if len(short) > 12 {
			short = short[:12]
		}
		if dirty {
			short += "*"
		}
		details = append(details, "commit "+short)
	} else if dirty {
		details = append(details, "modified workspace")
	}
	if buildTime != "" {
		details = append(details, "built "+buildTime)
	}

	return v, strings.Join(details, ", ")
}
