package parser_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/queryflow/internal/parser"
)

func TestDecodeKeepsNumbersExact(t *testing.T) {
	payload, err := parser.Decode(strings.NewReader(`{"Plan Rows": 3446261, "Total Cost": 120.50}`))
	require.NoError(t, err)

	node, err := parser.AsNode(payload)
	require.NoError(t, err)
	assert.Equal(t, "3446261", node.String("Plan Rows"))
	assert.Equal(t, "120.50", node.String("Total Cost"))

	v, ok := node.Float("Total Cost")
	require.True(t, ok)
	assert.InDelta(t, 120.5, v, 1e-9)
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := parser.DecodeBytes([]byte(`{"Plan": `))
	require.Error(t, err)
}

func TestFirstEntry(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{name: "envelope", doc: `[{"Plan": {"Node Type": "Limit"}}]`},
		{name: "bare object", doc: `{"Node Type": "Limit"}`},
		{name: "empty envelope", doc: `[]`, wantErr: true},
		{name: "scalar entry", doc: `[1]`, wantErr: true},
		{name: "string", doc: `"plan"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := parser.DecodeBytes([]byte(tt.doc))
			require.NoError(t, err)

			entry, err := parser.FirstEntry(payload)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, entry.Keys())
		})
	}
}

func TestNodeAccessors(t *testing.T) {
	payload, err := parser.DecodeBytes([]byte(`{
		"Node Type": "Sort",
		"Sort Key": ["a", "b"],
		"Output": "x, y ,,z",
		"Missing": null,
		"Rows": "12",
		"Plans": [{"Node Type": "Seq Scan"}, {"Node Type": "Index Scan"}]
	}`))
	require.NoError(t, err)
	node, err := parser.AsNode(payload)
	require.NoError(t, err)

	assert.True(t, node.Has("Node Type"))
	assert.False(t, node.Has("Missing"))
	assert.False(t, node.Has("Absent"))
	assert.Equal(t, "", node.String("Absent"))
	assert.Equal(t, "[a, b]", node.String("Sort Key"))
	assert.Equal(t, []string{"a", "b"}, node.Strings("Sort Key"))
	assert.Equal(t, []string{"x", "y", "z"}, node.Strings("Output"))

	rows, ok := node.Float("Rows")
	require.True(t, ok)
	assert.Equal(t, 12.0, rows)
	_, ok = node.Float("Node Type")
	assert.False(t, ok)

	children, err := node.Objects("Plans")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Index Scan", children[1].String("Node Type"))

	assert.Equal(t, []string{"Missing", "Node Type", "Output", "Plans", "Rows", "Sort Key"}, node.Keys())
}

func TestObjectsRejectsNonObjects(t *testing.T) {
	node := parser.Node{"Plans": []any{map[string]any{}, "oops"}}
	_, err := node.Objects("Plans")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Plans[1]")
}
