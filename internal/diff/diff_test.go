package diff_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/queryflow/internal/config"
	"github.com/mickamy/queryflow/internal/diff"
	"github.com/mickamy/queryflow/internal/engine/postgres"
	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/model"
	"github.com/mickamy/queryflow/test"
)

func signatures(entries []diff.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Signature)
	}
	return out
}

func TestCompareSamples(t *testing.T) {
	config.Use(config.Default())
	base := test.ParseSamples(t, postgres.New(), flow.Options{}, "postgres/people_join.json")
	target := test.ParseSamples(t, postgres.New(), flow.Options{}, "postgres/people_join_indexed.json")

	report, err := diff.Compare(base, target, diff.Options{})
	require.NoError(t, err)

	want := []string{"Hash Join · People* ⋈ Crew", "Seq Scan · People"}
	if d := cmp.Diff(want, signatures(report.Improvements)); d != "" {
		t.Errorf("improvements mismatch (-want +got):\n%s", d)
	}
	assert.Empty(t, report.Regressions)

	assert.Equal(t, "ms", report.Unit)
	assert.InDelta(t, 14.5, report.Summary.BaseSelf, 1e-9)
	assert.InDelta(t, 5.2, report.Summary.TargetSelf, 1e-9)
	assert.InDelta(t, -9.3, report.Summary.DeltaSelf, 1e-9)
	assert.Equal(t, 5, report.Summary.BaseFlows)
	assert.Equal(t, 4, report.Summary.TargetFlows)

	people := report.Improvements[1]
	assert.InDelta(t, -2.5, people.DeltaSelf, 1e-9)
	assert.InDelta(t, -100, people.PercentChange, 1e-9)

	require.NotEmpty(t, report.Insights)
	md := report.Markdown()
	assert.True(t, strings.HasPrefix(md, "# queryflow diff\n"))
	assert.Contains(t, md, "| Hash Join · People* ⋈ Crew | 7.00 | 0.00 | -7.00 | -100.0% |")
	assert.Contains(t, md, "### Regressions\n- None above threshold\n")
	assert.Contains(t, md, "✅ Hash Join · People* ⋈ Crew self -7.00 ms (-100.0%)")

	jsonOut, err := report.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(jsonOut, &decoded))
	assert.Equal(t, "ms", decoded["unit"])
}

func TestCompareRegressionAndSpill(t *testing.T) {
	config.Use(config.Default())
	row := func(self, temp float64) model.Row {
		return model.Row{Source: 0, Target: 1, OperationType: "Sort", Label: "SORT", QueryHash: "q",
			Metrics: model.Metrics{postgres.MetricActualDuration: self, "temp_written_blocks": temp}}
	}
	base := &model.Graph{Engine: postgres.Name, Rows: []model.Row{row(2, 0)}}
	target := &model.Graph{Engine: postgres.Name, Rows: []model.Row{row(20, 64)}}

	report, err := diff.Compare(base, target, diff.Options{})
	require.NoError(t, err)
	require.Len(t, report.Regressions, 1)
	assert.Equal(t, "Sort · SORT", report.Regressions[0].Signature)
	assert.InDelta(t, 900, report.Regressions[0].PercentChange, 1e-9)

	want := []string{
		"Sort · SORT self +18.00 ms (+900.0%), temp +512 KiB",
		"Sort · SORT began spilling to disk: 64 temp buffers (~512 KiB)",
	}
	got := make([]string, 0, len(report.Insights))
	for _, msg := range report.Insights {
		got = append(got, msg.Message)
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("insights mismatch (-want +got):\n%s", d)
	}
}

func TestCompareHonoursThresholds(t *testing.T) {
	config.Use(config.Default())
	row := func(self float64) model.Row {
		return model.Row{Source: 0, Target: 1, OperationType: "Seq Scan", Label: "T", QueryHash: "q",
			Metrics: model.Metrics{postgres.MetricActualDuration: self}}
	}
	base := &model.Graph{Engine: postgres.Name, Rows: []model.Row{row(10)}}
	target := &model.Graph{Engine: postgres.Name, Rows: []model.Row{row(13)}}

	report, err := diff.Compare(base, target, diff.Options{MinSelfDelta: 5})
	require.NoError(t, err)
	assert.Empty(t, report.Regressions)

	report, err = diff.Compare(base, target, diff.Options{MinSelfDelta: 1})
	require.NoError(t, err)
	assert.Len(t, report.Regressions, 1)
}

func TestCompareRejectsInvalidInput(t *testing.T) {
	graph := &model.Graph{Engine: postgres.Name, Rows: []model.Row{{}}}

	_, err := diff.Compare(nil, graph, diff.Options{})
	require.Error(t, err)
	_, err = diff.Compare(graph, &model.Graph{}, diff.Options{})
	require.Error(t, err)
	_, err = diff.Compare(graph, &model.Graph{Engine: "athena", Rows: []model.Row{{}}}, diff.Options{})
	require.Error(t, err)
}
