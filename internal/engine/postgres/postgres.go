package postgres

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mickamy/queryflow/internal/analyzer"
	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/model"
	"github.com/mickamy/queryflow/internal/parser"
)

// Name identifies the engine.
const Name = "postgres"

const (
	kindField     = "Node Type"
	childrenField = "Plans"
	rootField     = "Plan"
	filterField   = "Filter"
)

// Fields reported by EXPLAIN and the metric names they are stored under.
var reportedMetrics = []struct {
	field string
	name  string
}{
	{"Actual Rows", "actual_rows"},
	{"Actual Total Time", "actual_total_time"},
	{"Actual Startup Time", "actual_startup_time"},
	{"Actual Loops", "actual_loops"},
	{"Plan Rows", "plan_rows"},
	{"Plan Width", "plan_width"},
	{"Total Cost", "total_cost"},
	{"Shared Hit Blocks", "shared_hit_blocks"},
	{"Shared Read Blocks", "shared_read_blocks"},
	{"Shared Dirtied Blocks", "shared_dirtied_blocks"},
	{"Shared Written Blocks", "shared_written_blocks"},
	{"Local Hit Blocks", "local_hit_blocks"},
	{"Local Read Blocks", "local_read_blocks"},
	{"Local Dirtied Blocks", "local_dirtied_blocks"},
	{"Local Written Blocks", "local_written_blocks"},
	{"Temp Read Blocks", "temp_read_blocks"},
	{"Temp Written Blocks", "temp_written_blocks"},
}

// Metrics computed by Enrich.
const (
	MetricEstimatedCost         = "estimated_cost"
	MetricEstimatedCostPct      = "estimated_cost_pct"
	MetricActualDuration        = "actual_duration"
	MetricActualDurationPct     = "actual_duration_pct"
	MetricActualStartupDuration = "actual_startup_duration"
	MetricActualPlanRowsRatio   = "actual_plan_rows_ratio"
)

var derivedMetrics = []string{
	MetricEstimatedCost,
	MetricEstimatedCostPct,
	MetricActualDuration,
	MetricActualDurationPct,
	MetricActualStartupDuration,
	MetricActualPlanRowsRatio,
}

// Operations hidden unless the parser runs verbose.
var helperKinds = map[string]struct{}{
	"Hash":             {},
	"Gather":           {},
	"Gather Merge":     {},
	"Sort":             {},
	"Incremental Sort": {},
	"WindowAgg":        {},
}

// Engine reads PostgreSQL EXPLAIN (FORMAT JSON) output.
type Engine struct {
	strategies map[string]flow.Strategy
}

var _ flow.Engine = (*Engine)(nil)

// New returns a PostgreSQL engine.
func New() *Engine {
	return &Engine{strategies: strategies()}
}

func (e *Engine) Name() string {
	return Name
}

// Decode parses one EXPLAIN JSON document.
func (e *Engine) Decode(data []byte) (any, error) {
	payload, err := parser.DecodeBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, Name)
	}
	return payload, nil
}

// Fragments returns the single plan tree of payload. Both the full `[{"Plan": ...}]`
// document and a bare plan node are accepted.
func (e *Engine) Fragments(payload any) ([]flow.Fragment, error) {
	entry, err := parser.FirstEntry(payload)
	if err != nil {
		return nil, errors.Wrap(err, Name)
	}
	if entry.Has(rootField) {
		root, err := parser.AsNode(entry.Value(rootField))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: explain json: invalid %q", Name, rootField)
		}
		return []flow.Fragment{{Root: root}}, nil
	}
	if entry.Has(kindField) {
		return []flow.Fragment{{Root: entry}}, nil
	}
	return nil, errors.Errorf("%s: explain json: neither %q nor %q present", Name, rootField, kindField)
}

func (e *Engine) Kind(node parser.Node) string {
	return node.String(kindField)
}

func (e *Engine) Children(node parser.Node) ([]parser.Node, error) {
	return node.Objects(childrenField)
}

func (e *Engine) HasFilter(node parser.Node) bool {
	return node.Has(filterField)
}

func (e *Engine) Helper(kind string) bool {
	_, ok := helperKinds[kind]
	return ok
}

func (e *Engine) Strategies() map[string]flow.Strategy {
	return e.strategies
}

func (e *Engine) Description(kind string) (string, bool) {
	d, ok := descriptions[kind]
	return d, ok
}

// Metrics returns the reported metrics of node under their normalized names.
func (e *Engine) Metrics(node parser.Node) model.Metrics {
	out := model.Metrics{}
	for _, m := range reportedMetrics {
		if v, ok := node.Float(m.field); ok {
			out[m.name] = v
		}
	}
	return out
}

func (e *Engine) SupportedMetrics() []string {
	out := make([]string, 0, len(reportedMetrics)+len(derivedMetrics))
	for _, m := range reportedMetrics {
		out = append(out, m.name)
	}
	return append(out, derivedMetrics...)
}

// Enrich derives self cost and time from the cumulative values PostgreSQL reports,
// their share of the query, the estimate drift and redundant filters.
func (e *Engine) Enrich(rows []model.Row) []model.Row {
	rows = analyzer.SelfMetric(rows, "total_cost", MetricEstimatedCost)
	rows = analyzer.SelfMetric(rows, "actual_total_time", MetricActualDuration)
	rows = analyzer.SelfMetric(rows, "actual_startup_time", MetricActualStartupDuration)
	rows = analyzer.Percent(rows, MetricEstimatedCost, "total_cost", MetricEstimatedCostPct)
	rows = analyzer.Percent(rows, MetricActualDuration, "actual_total_time", MetricActualDurationPct)
	rows = analyzer.Ratio(rows, "actual_rows", "plan_rows", MetricActualPlanRowsRatio)
	rows = analyzer.MarkRedundant(rows, "actual_rows", "Unique", "Where", "Having")
	return rows
}

// titleCase upper-cases the first letter of every run of letters and lower-cases the
// rest: "public.people_2024" becomes "Public.People_2024".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inWord := false
	for _, r := range s {
		switch {
		case isLetter(r) && !inWord:
			b.WriteString(strings.ToUpper(string(r)))
			inWord = true
		case isLetter(r):
			b.WriteString(strings.ToLower(string(r)))
		default:
			b.WriteRune(r)
			inWord = false
		}
	}
	return b.String()
}

func isLetter(r rune) bool {
	return strings.ToUpper(string(r)) != strings.ToLower(string(r))
}
