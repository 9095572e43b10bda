package insight_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/queryflow/internal/config"
	"github.com/mickamy/queryflow/internal/engine/postgres"
	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/insight"
	"github.com/mickamy/queryflow/internal/model"
	"github.com/mickamy/queryflow/test"
)

func texts(msgs []insight.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, string(msg.Severity)+": "+msg.Text)
	}
	return out
}

func TestBuildMessagesSampleJoin(t *testing.T) {
	config.Use(config.Default())
	graph := test.ParseSamples(t, postgres.New(), flow.Options{}, "postgres/people_join.json")

	msgs := insight.BuildMessages(graph)
	want := []string{
		"critical: Hot spot: People* ⋈ Crew (Hash Join) self 7.00 ms (58.3%)",
		"warning: Buffer churn: People (Seq Scan) touched 18,040 buffers (~141 MiB)",
	}
	if diff := cmp.Diff(want, texts(msgs)); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, msgs, 2)
	assert.Equal(t, 3, msgs[0].Node)
	assert.Equal(t, 0, msgs[1].Node)
	assert.Equal(t, graph.Rows[0].QueryHash, msgs[0].Query)
}

func TestBuildMessagesSampleHaving(t *testing.T) {
	config.Use(config.Default())
	graph := test.ParseSamples(t, postgres.New(), flow.Options{}, "postgres/genres_having.json")

	want := []string{
		"critical: Hot spot: Titles (Seq Scan) self 40.00 ms (49.4%), buffers 448 (~3.5 MiB)",
		"info: Seq Scan spilled to disk: Titles (Seq Scan) used 128 temp buffers (~1.0 MiB); consider increasing work_mem",
		"info: Redundant operation: Unique passes all 3 rows through unchanged",
	}
	if diff := cmp.Diff(want, texts(insight.BuildMessages(graph))); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryMessagesDriftAndEmptyFlow(t *testing.T) {
	config.Use(config.Default())
	graph := &model.Graph{Rows: []model.Row{
		{Source: 0, Target: 1, OperationType: "Seq Scan", Label: "Orders", QueryHash: "q",
			Metrics: model.Metrics{"actual_rows": 5000, "plan_rows": 10, postgres.MetricActualPlanRowsRatio: 500}},
		{Source: 1, Target: 2, OperationType: "Hash Join", Label: "Orders ⋈ Items", QueryHash: "q",
			Metrics: model.Metrics{"actual_rows": 0, "plan_rows": 20}},
		{Source: 3, Target: 4, OperationType: "Seq Scan", Label: "Other", QueryHash: "other",
			Metrics: model.Metrics{"actual_rows": 0}},
	}}

	want := []string{
		"critical: Estimate drift: Orders (Seq Scan) expected 10 got 5000 (x500.00); update statistics (ANALYZE) or review estimates",
		"warning: Empty flow: Orders ⋈ Items (Hash Join) produced no rows",
	}
	if diff := cmp.Diff(want, texts(insight.QueryMessages(graph, "q"))); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryMessagesSkipsRowsFeedingFilters(t *testing.T) {
	config.Use(config.Default())
	graph := &model.Graph{Rows: []model.Row{
		{Source: 0, Target: 1, OperationType: "Seq Scan", Label: "People", QueryHash: "q",
			Metrics: model.Metrics{"actual_rows": 3446261, "plan_rows": 5, postgres.MetricActualPlanRowsRatio: 689252.2}},
		{Source: 1, Target: 2, OperationType: "Where", Label: "People*", QueryHash: "q",
			Metrics: model.Metrics{"actual_rows": 3, "plan_rows": 5, postgres.MetricActualPlanRowsRatio: 5.0 / 3}},
	}}
	assert.Empty(t, insight.QueryMessages(graph, "q"))
}

func TestQueryMessagesHonoursMaxItems(t *testing.T) {
	cfg := config.Default()
	cfg.Insights.MaxItems = 1
	config.Use(cfg)
	t.Cleanup(func() { config.Use(config.Default()) })

	graph := test.ParseSamples(t, postgres.New(), flow.Options{}, "postgres/genres_having.json")
	msgs := insight.BuildMessages(graph)
	require.Len(t, msgs, 1)
	assert.Equal(t, insight.SeverityCritical, msgs[0].Severity)
}

func TestMeasure(t *testing.T) {
	tests := []struct {
		name string
		row  model.Row
		want insight.Figures
	}{
		{
			name: "postgres analyze",
			row: model.Row{Metrics: model.Metrics{
				postgres.MetricActualDuration: 2, postgres.MetricActualDurationPct: 10, postgres.MetricEstimatedCost: 9,
				"actual_rows": 4, "plan_rows": 2, postgres.MetricActualPlanRowsRatio: 2,
				"shared_hit_blocks": 3, "temp_written_blocks": 1,
			}},
			want: insight.Figures{
				Self: 2, SelfUnit: "ms", HasSelf: true, Share: 10, HasShare: true,
				Rows: 4, HasRows: true, PlanRows: 2, HasPlanRows: true, RowFactor: 2,
				Buffers: 4, TempBlocks: 1,
			},
		},
		{
			name: "postgres estimate",
			row:  model.Row{Metrics: model.Metrics{postgres.MetricEstimatedCost: 9, postgres.MetricEstimatedCostPct: 45, "plan_rows": 7}},
			want: insight.Figures{Self: 9, SelfUnit: "cost", HasSelf: true, Share: 45, HasShare: true, PlanRows: 7, HasPlanRows: true},
		},
		{
			name: "athena",
			row:  model.Row{Metrics: model.Metrics{"nodeCpuTime": 1.5, "nodeCpuFraction": 30, "nodeOutputRows": 12}},
			want: insight.Figures{Self: 1.5, SelfUnit: "s", HasSelf: true, Share: 30, HasShare: true, Rows: 12, HasRows: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, insight.Measure(tt.row))
		})
	}
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Unique", insight.NodeLabel(model.Row{OperationType: "Unique", Label: "Unique"}))
	assert.Equal(t, "Limit", insight.NodeLabel(model.Row{OperationType: "Limit"}))
	assert.Equal(t, "LIMIT 5 (Limit)", insight.NodeLabel(model.Row{OperationType: "Limit", Label: "LIMIT  5"}))

	long := model.Row{OperationType: "Hash Join", Label: "Aaaaaaaaaa ⋈ Bbbbbbbbbb ⋈ Cccccccccc ⋈ Dddddddddd ⋈ Eeeeeeeeee"}
	compact := insight.CompactLabel(long)
	assert.Len(t, []rune(compact), 60)
	assert.Equal(t, "...", compact[len(compact)-3:])
}

func TestHumanizeBuffers(t *testing.T) {
	assert.Equal(t, "0 B", insight.HumanizeBuffers(0))
	assert.Equal(t, "8.0 KiB", insight.HumanizeBuffers(1))
	assert.Equal(t, "141 MiB", insight.HumanizeBuffers(18040))
}
