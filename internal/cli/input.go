package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mickamy/queryflow/internal/config"
	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/model"
)

// parseFlags are the flags of every command that turns plans into a graph.
type parseFlags struct {
	engine  string
	compact bool
	verbose bool
	startID int
}

func (f *parseFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.engine, "engine", "e", "postgres", "Plan format: postgres or athena")
	flags.BoolVar(&f.compact, "compact", false, "Collapse operations that display identically into one node (default from config)")
	flags.BoolVar(&f.verbose, "verbose", false, "Keep helper operations such as hash builds and sorts (default from config)")
	flags.IntVar(&f.startID, "start-id", 0, "First node id, counting down (default from config)")
}

// options merges the parser section of the active config with the flags set on cmd.
func (f *parseFlags) options(cmd *cobra.Command, a *app) flow.Options {
	cfg := config.Active().Parser
	opts := flow.Options{
		Compact: cfg.Compact,
		Verbose: cfg.Verbose,
		StartID: cfg.StartID,
		Logger:  a.logger,
		Metrics: a.metrics,
	}
	if cmd.Flags().Changed("compact") {
		opts.Compact = f.compact
	}
	if cmd.Flags().Changed("verbose") {
		opts.Verbose = f.verbose
	}
	if cmd.Flags().Changed("start-id") {
		opts.StartID = f.startID
	}
	return opts
}

// parse reads the plans at paths and parses them as one batch.
func (f *parseFlags) parse(cmd *cobra.Command, a *app, paths []string) (*model.Graph, flow.Engine, error) {
	engine, err := newEngine(f.engine)
	if err != nil {
		return nil, nil, err
	}
	graph, err := f.parseWith(cmd, a, engine, paths)
	if err != nil {
		return nil, nil, err
	}
	return graph, engine, nil
}

// parseWith is parse for callers that already built the engine.
func (f *parseFlags) parseWith(cmd *cobra.Command, a *app, engine flow.Engine, paths []string) (*model.Graph, error) {
	docs, err := readInputs(cmd, paths)
	if err != nil {
		return nil, err
	}
	p, err := flow.New(engine, f.options(cmd, a))
	if err != nil {
		return nil, err
	}
	graph, err := p.ParseRaw(docs...)
	if err != nil {
		return nil, err
	}
	level.Info(a.logger).Log("msg", "parsed plans", "engine", engine.Name(), "plans", len(docs),
		"queries", len(graph.Queries()), "flows", len(graph.Rows))
	return graph, nil
}

// readInputs loads every path; "-" or no path at all reads stdin.
func readInputs(cmd *cobra.Command, paths []string) ([][]byte, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	docs := make([][]byte, 0, len(paths))
	for _, path := range paths {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read plan %s", path)
		}
		docs = append(docs, data)
	}
	return docs, nil
}

// readSQL returns the statement from --sql or --query; exactly one must be set.
func readSQL(path, inline string) (string, error) {
	switch {
	case path != "" && inline != "":
		return "", errors.New("specify only one of --sql or --query")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrap(err, "read sql file")
		}
		return string(data), nil
	case inline != "":
		return inline, nil
	default:
		return "", errors.New("--sql or --query is required")
	}
}

// withOutput runs write against path, or the command's stdout when path is empty.
func withOutput(cmd *cobra.Command, path string, write func(io.Writer) error) (err error) {
	if path == "" {
		return write(cmd.OutOrStdout())
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close output")
		}
	}()
	return write(file)
}

// indentJSON pretty prints data when it is JSON and returns it unchanged otherwise.
func indentJSON(data []byte) []byte {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		out.Reset()
		out.Write(data)
	}
	if !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
		out.WriteByte('\n')
	}
	return out.Bytes()
}
