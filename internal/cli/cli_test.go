package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/queryflow/internal/config"
	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/model"
	"github.com/mickamy/queryflow/test"
)

func sample(t *testing.T, rel string) string {
	t.Helper()
	return filepath.Join(test.RootPath(t), "samples", rel)
}

// execute runs a fresh root command with args and returns what it printed to stdout.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	t.Setenv(configEnv, "")
	t.Cleanup(func() { config.Use(config.Default()) })

	cmd := newRootCmd("1.2.3")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.SetIn(stdin)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseJSON(t *testing.T) {
	out, err := execute(t, nil, "parse", sample(t, "postgres/people_join.json"))
	require.NoError(t, err)

	var graph model.Graph
	require.NoError(t, json.Unmarshal([]byte(out), &graph))
	assert.Equal(t, "postgres", graph.Engine)
	assert.Len(t, graph.Rows, 5)
}

func TestParseStdinCSV(t *testing.T) {
	data, err := os.ReadFile(sample(t, "postgres/people_join.json"))
	require.NoError(t, err)

	out, err := execute(t, bytes.NewReader(data), "parse", "--format", "csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "source,target,operation_type,label,"), "got %q", out)
	assert.Contains(t, out, "Seq Scan,People,")
}

func TestParseAthena(t *testing.T) {
	out, err := execute(t, nil, "parse", "--engine", "athena", sample(t, "athena/orders_by_status.json"))
	require.NoError(t, err)

	var graph model.Graph
	require.NoError(t, json.Unmarshal([]byte(out), &graph))
	assert.Equal(t, "athena", graph.Engine)
	assert.NotEmpty(t, graph.Rows)
}

func TestParseRejectsUnknownEngineAndFormat(t *testing.T) {
	_, err := execute(t, nil, "parse", "--engine", "oracle", sample(t, "postgres/people_join.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown engine")

	_, err = execute(t, nil, "parse", "--format", "xml", sample(t, "postgres/people_join.json"))
	require.Error(t, err)
}

func TestReport(t *testing.T) {
	out, err := execute(t, nil, "report", "--no-color", sample(t, "postgres/people_join.json"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Engine postgres | Queries 1 | Nodes 6 | Flows 5\n"), "got %q", out)
	assert.Contains(t, out, "Hot spot: People* ⋈ Crew (Hash Join)")
	assert.NotContains(t, out, "\033[")
}

func TestVisualize(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, nil, "visualize", "--title", "people", "--metrics", "actual_rows,plan_rows",
		"--out-dir", dir, sample(t, "postgres/people_join.json"))
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "people-actual_rows.html"),
		filepath.Join(dir, "people-plan_rows.html"),
	}
	assert.Equal(t, want, strings.Split(strings.TrimSpace(out), "\n"))
	for _, path := range want {
		assert.FileExists(t, path)
	}
}

func TestVisualizeUsesConfiguredMetrics(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "queryflow.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("render:\n  default_metrics: [actual_duration]\n"), 0o600))

	_, err := execute(t, nil, "--config", cfgPath, "visualize", "--title", "people", "--together",
		"--out-dir", dir, sample(t, "postgres/people_join.json"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "people-actual_duration.html"))
}

func TestVisualizeRejectsUnsupportedMetric(t *testing.T) {
	_, err := execute(t, nil, "visualize", "--metrics", "nodeCpuTime", "--out-dir", t.TempDir(),
		sample(t, "postgres/people_join.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, flow.ErrUnsupportedMetric), "got %v", err)
}

func TestVisualizeChecksMetricsBeforeReadingPlans(t *testing.T) {
	stdin := strings.NewReader(`[{"Plan": {"Node Type": "Limit"}}]`)
	_, err := execute(t, stdin, "visualize", "--metrics", "nodeCpuTime", "--out-dir", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, flow.ErrUnsupportedMetric), "got %v", err)
}

func TestDiff(t *testing.T) {
	args := []string{"diff", "--base", sample(t, "postgres/people_join.json"),
		"--target", sample(t, "postgres/people_join_indexed.json")}

	out, err := execute(t, nil, args...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# queryflow diff\n"))
	assert.Contains(t, out, "Hash Join · People* ⋈ Crew")

	out, err = execute(t, nil, append(args, "--format", "json")...)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "ms", decoded["unit"])

	_, err = execute(t, nil, "diff", "--base", sample(t, "postgres/people_join.json"))
	require.Error(t, err)
}

func TestMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queryflow.prom")
	_, err := execute(t, nil, "--metrics-file", path, "parse", sample(t, "postgres/people_join.json"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `queryflow_plans_parsed_total{engine="postgres"} 1`)
	assert.Contains(t, string(data), `queryflow_rows_emitted_total{engine="postgres"} 5`)
}

func TestRunValidatesInput(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, nil, "run", "--query", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--conn")

	_, err = execute(t, nil, "run", "--conn", "postgres://localhost/db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--sql or --query")

	_, err = execute(t, nil, "run", "--conn", "postgres://localhost/db", "--sql", "a.sql", "--query", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only one of")
}

func TestVersionShort(t *testing.T) {
	out, err := execute(t, nil, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestLogLevel(t *testing.T) {
	_, err := execute(t, nil, "--log-level", "loud", "version")
	require.Error(t, err)

	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn")
	require.NoError(t, err)
	_ = level.Info(logger).Log("msg", "hidden")
	assert.Empty(t, buf.String())
	_ = level.Warn(logger).Log("msg", "shown")
	assert.Contains(t, buf.String(), "level=warn")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestIndentJSON(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}\n", string(indentJSON([]byte(`{"a":1}`))))
	assert.Equal(t, "plain text\n", string(indentJSON([]byte("plain text"))))
}
