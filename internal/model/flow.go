package model

import (
	"math"
	"sort"
)

// NoTarget marks a row whose consumer is not known yet. Post-processing replaces it.
// Allocated ids may go negative, so the sentinel sits outside any reachable id.
const NoTarget = math.MinInt

// Metrics holds the numeric measurements attached to a row, keyed by normalized name.
type Metrics map[string]float64

// Get returns the metric value and whether it was reported.
func (m Metrics) Get(name string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[name]
	return v, ok
}

// Row is one edge of a flow graph: data flows from Source into Target.
type Row struct {
	Source        int      `json:"source"`
	Target        int      `json:"target"`
	OperationType string   `json:"operation_type"`
	Label         string   `json:"label"`
	LabelMetadata string   `json:"label_metadata"`
	NodeHash      string   `json:"node_hash"`
	QueryHash     string   `json:"query_hash"`
	FragmentID    string   `json:"fragment_id,omitempty"`
	FragmentRefs  []string `json:"fragment_refs,omitempty"`
	Redundant     bool     `json:"redundant"`
	Metrics       Metrics  `json:"metrics,omitempty"`
}

// Metric is a shorthand for Row.Metrics.Get.
func (r Row) Metric(name string) (float64, bool) {
	return r.Metrics.Get(name)
}

// Graph is the normalized result of parsing a batch of plans.
type Graph struct {
	Engine string `json:"engine"`
	Rows   []Row  `json:"rows"`
}

// Queries lists the distinct query hashes in order of first appearance.
func (g *Graph) Queries() []string {
	if g == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, row := range g.Rows {
		if _, ok := seen[row.QueryHash]; ok {
			continue
		}
		seen[row.QueryHash] = struct{}{}
		out = append(out, row.QueryHash)
	}
	return out
}

// MetricNames returns the sorted union of metric names present on any row.
func (g *Graph) MetricNames() []string {
	if g == nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, row := range g.Rows {
		for name := range row.Metrics {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NodeCount returns the number of distinct node ids (max id + 1 after normalization).
func (g *Graph) NodeCount() int {
	if g == nil || len(g.Rows) == 0 {
		return 0
	}
	maxID := 0
	for _, row := range g.Rows {
		if row.Source > maxID {
			maxID = row.Source
		}
		if row.Target > maxID {
			maxID = row.Target
		}
	}
	return maxID + 1
}

// Labels maps every source id to the label of the first row emitted from it, or to its
// operation type when that label is empty.
func (g *Graph) Labels() map[int]string {
	out := map[int]string{}
	if g == nil {
		return out
	}
	for _, row := range g.Rows {
		if _, ok := out[row.Source]; ok {
			continue
		}
		label := row.Label
		if label == "" {
			label = row.OperationType
		}
		out[row.Source] = label
	}
	return out
}

// Terminals returns the ids that appear only as targets, in ascending order.
func (g *Graph) Terminals() []int {
	if g == nil {
		return nil
	}
	sources := map[int]struct{}{}
	for _, row := range g.Rows {
		sources[row.Source] = struct{}{}
	}
	seen := map[int]struct{}{}
	var out []int
	for _, row := range g.Rows {
		if _, ok := sources[row.Target]; ok {
			continue
		}
		if _, ok := seen[row.Target]; ok {
			continue
		}
		seen[row.Target] = struct{}{}
		out = append(out, row.Target)
	}
	sort.Ints(out)
	return out
}
