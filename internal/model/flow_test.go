package model_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/queryflow/internal/model"
)

func sampleGraph() *model.Graph {
	return &model.Graph{
		Engine: "postgres",
		Rows: []model.Row{
			{Source: 0, Target: 1, OperationType: "Seq Scan", Label: "People", NodeHash: "h0", QueryHash: "q1",
				Metrics: model.Metrics{"actual_rows": 3, "total_cost": 1.5}},
			{Source: 1, Target: 3, OperationType: "Where", Label: "People*", LabelMetadata: "Filter condition: a, b",
				NodeHash: "h1", QueryHash: "q1", Redundant: true, Metrics: model.Metrics{"actual_rows": 3}},
			{Source: 2, Target: 3, OperationType: "Seq Scan", Label: "Crew", NodeHash: "h2", QueryHash: "q2"},
		},
	}
}

func TestGraphAccessors(t *testing.T) {
	g := sampleGraph()

	assert.Equal(t, []string{"q1", "q2"}, g.Queries())
	assert.Equal(t, []string{"actual_rows", "total_cost"}, g.MetricNames())
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, []int{3}, g.Terminals())
	assert.Equal(t, map[int]string{0: "People", 1: "People*", 2: "Crew"}, g.Labels())

	var empty *model.Graph
	assert.Nil(t, empty.Queries())
	assert.Equal(t, 0, empty.NodeCount())
}

func TestMetricsGet(t *testing.T) {
	v, ok := model.Metrics{"a": 1}.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = model.Metrics(nil).Get("a")
	assert.False(t, ok)
}

func TestLabelsFallBackToOperationType(t *testing.T) {
	g := &model.Graph{Rows: []model.Row{
		{Source: 0, Target: 1, OperationType: "Result"},
		{Source: 0, Target: 2, OperationType: "Result", Label: "ignored"},
	}}
	assert.Equal(t, map[int]string{0: "Result"}, g.Labels())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleGraph().WriteCSV(&buf))

	want := "source,target,operation_type,label,label_metadata,node_hash,query_hash,fragment_id,redundant,actual_rows,total_cost\n" +
		"0,1,Seq Scan,People,,h0,q1,,false,3,1.5\n" +
		"1,3,Where,People*,\"Filter condition: a, b\",h1,q1,,true,3,\n" +
		"2,3,Seq Scan,Crew,,h2,q2,,false,,\n"
	assert.Equal(t, want, buf.String())
}
