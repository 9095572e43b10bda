package insight

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mickamy/queryflow/internal/config"
	"github.com/mickamy/queryflow/internal/engine/athena"
	"github.com/mickamy/queryflow/internal/engine/postgres"
	"github.com/mickamy/queryflow/internal/model"
)

// Severity expresses the urgency of an insight message.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message represents an actionable observation about one flow of a graph.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
	Query    string   `json:"query"`
	Node     int      `json:"node"`
}

const blockSize = 8192

// BuildMessages derives human-readable insight messages for every query of g.
func BuildMessages(g *model.Graph) []Message {
	if g == nil {
		return nil
	}
	var out []Message
	for _, query := range g.Queries() {
		out = append(out, QueryMessages(g, query)...)
	}
	return out
}

// QueryMessages derives the messages of a single query.
func QueryMessages(g *model.Graph, query string) []Message {
	rows := QueryRows(g, query)
	if len(rows) == 0 {
		return nil
	}
	cfg := config.Active().Insights

	var out []Message
	if msg := hotspotMessage(rows, cfg); msg != nil {
		out = append(out, *msg)
	}
	out = append(out, driftMessages(rows, cfg)...)
	if msg := bufferMessage(rows, cfg); msg != nil {
		out = append(out, *msg)
	}
	out = append(out, spillMessages(rows, cfg)...)
	if msg := emptyFlowMessage(rows); msg != nil {
		out = append(out, *msg)
	}
	out = append(out, redundantMessages(rows)...)

	for i := range out {
		out[i].Query = query
	}
	if cfg.MaxItems > 0 && len(out) > cfg.MaxItems {
		out = out[:cfg.MaxItems]
	}
	return out
}

// QueryRows returns the rows of g that belong to query, in graph order.
func QueryRows(g *model.Graph, query string) []model.Row {
	var rows []model.Row
	for _, row := range g.Rows {
		if row.QueryHash == query {
			rows = append(rows, row)
		}
	}
	return rows
}

// Figures are the display values of a row, resolved for whichever engine produced it.
type Figures struct {
	Self     float64
	SelfUnit string
	HasSelf  bool

	// Share is the row's part of its query, 0-100.
	Share    float64
	HasShare bool

	Rows        float64
	HasRows     bool
	PlanRows    float64
	HasPlanRows bool
	RowFactor   float64

	Buffers    float64
	TempBlocks float64
}

var (
	selfMetrics = []struct{ name, unit string }{
		{postgres.MetricActualDuration, "ms"},
		{athena.MetricCPUTime, "s"},
		{postgres.MetricEstimatedCost, "cost"},
	}
	shareMetrics = []string{postgres.MetricActualDurationPct, athena.MetricCPUFraction, postgres.MetricEstimatedCostPct}
	rowMetrics   = []string{"actual_rows", athena.MetricOutputRows}
	bufferFields = []string{"shared_hit_blocks", "shared_read_blocks", "local_hit_blocks", "local_read_blocks"}
	tempFields   = []string{"temp_read_blocks", "temp_written_blocks"}
)

// Measure resolves the figures of row.
func Measure(row model.Row) Figures {
	var f Figures
	for _, m := range selfMetrics {
		if v, ok := row.Metric(m.name); ok {
			f.Self, f.SelfUnit, f.HasSelf = v, m.unit, true
			break
		}
	}
	for _, name := range shareMetrics {
		if v, ok := row.Metric(name); ok {
			f.Share, f.HasShare = v, true
			break
		}
	}
	for _, name := range rowMetrics {
		if v, ok := row.Metric(name); ok {
			f.Rows, f.HasRows = v, true
			break
		}
	}
	f.PlanRows, f.HasPlanRows = row.Metric("plan_rows")
	f.RowFactor, _ = row.Metric(postgres.MetricActualPlanRowsRatio)
	for _, name := range tempFields {
		v, _ := row.Metric(name)
		f.TempBlocks += v
	}
	f.Buffers = f.TempBlocks
	for _, name := range bufferFields {
		v, _ := row.Metric(name)
		f.Buffers += v
	}
	return f
}

func hotspotMessage(rows []model.Row, cfg config.InsightConfig) *Message {
	best := -1
	var bestFigures Figures
	for i, row := range rows {
		f := Measure(row)
		if !f.HasShare || f.Share <= 0 {
			continue
		}
		if best < 0 || f.Share > bestFigures.Share {
			best, bestFigures = i, f
		}
	}
	if best < 0 {
		return nil
	}
	hot := rows[best]
	text := fmt.Sprintf("Hot spot: %s self %s (%.1f%%)", CompactLabel(hot), FormatSelf(bestFigures), bestFigures.Share)
	if bestFigures.Buffers > 0 {
		text += fmt.Sprintf(", buffers %s (~%s)", humanize.Commaf(bestFigures.Buffers), HumanizeBuffers(bestFigures.Buffers))
	}
	if strings.Contains(hot.OperationType, "Seq Scan") && bestFigures.Buffers > cfg.BufferWarningBlocks {
		text += "; consider adding an index or tightening the filter"
	}

	severity := SeverityInfo
	switch {
	case bestFigures.Share >= cfg.HotspotCriticalPercent:
		severity = SeverityCritical
	case bestFigures.Share >= cfg.HotspotWarningPercent:
		severity = SeverityWarning
	}
	return &Message{Severity: severity, Text: text, Node: hot.Source}
}

func driftMessages(rows []model.Row, cfg config.InsightConfig) []Message {
	filterStages := filterInputs(rows)

	type candidate struct {
		row model.Row
		f   Figures
	}
	var candidates []candidate
	for _, row := range rows {
		if _, ok := filterStages[row.Source]; ok {
			continue
		}
		f := Measure(row)
		if f.RowFactor < cfg.RowEstimateWarningRatio || cfg.RowEstimateWarningRatio <= 0 {
			continue
		}
		candidates = append(candidates, candidate{row, f})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].f.RowFactor > candidates[j].f.RowFactor
	})

	const maxDrift = 2
	var msgs []Message
	for i, c := range candidates {
		if i >= maxDrift {
			break
		}
		text := fmt.Sprintf("Estimate drift: %s expected %.0f got %.0f (x%.2f); update statistics (ANALYZE) or review estimates",
			CompactLabel(c.row), c.f.PlanRows, c.f.Rows, c.f.RowFactor)
		severity := SeverityWarning
		if c.f.RowFactor >= cfg.RowEstimateCriticalRatio {
			severity = SeverityCritical
		}
		msgs = append(msgs, Message{Severity: severity, Text: text, Node: c.row.Source})
	}
	return msgs
}

// filterInputs returns the sources of rows feeding a Where or Having stage. Their row
// count is measured before the filter while the planner estimates it after.
func filterInputs(rows []model.Row) map[int]struct{} {
	stages := map[int]struct{}{}
	for _, row := range rows {
		if IsFilterStage(row) {
			stages[row.Source] = struct{}{}
		}
	}
	out := map[int]struct{}{}
	for _, row := range rows {
		if _, ok := stages[row.Target]; ok && !IsFilterStage(row) {
			out[row.Source] = struct{}{}
		}
	}
	return out
}

// IsFilterStage reports whether row is the synthetic filter split off an operation.
func IsFilterStage(row model.Row) bool {
	return row.OperationType == "Where" || row.OperationType == "Having"
}

func bufferMessage(rows []model.Row, cfg config.InsightConfig) *Message {
	best := -1
	var bestFigures Figures
	for i, row := range rows {
		// filter stages repeat the counters of the operation they filter
		if IsFilterStage(row) || isWrapper(row.OperationType) {
			continue
		}
		f := Measure(row)
		if f.Buffers <= 0 {
			continue
		}
		if best < 0 || f.Buffers > bestFigures.Buffers {
			best, bestFigures = i, f
		}
	}
	if best < 0 || bestFigures.Buffers < cfg.BufferWarningBlocks {
		return nil
	}
	severity := SeverityWarning
	if bestFigures.Buffers >= cfg.BufferCriticalBlocks {
		severity = SeverityCritical
	}
	text := fmt.Sprintf("Buffer churn: %s touched %s buffers (~%s)",
		CompactLabel(rows[best]), humanize.Commaf(bestFigures.Buffers), HumanizeBuffers(bestFigures.Buffers))
	return &Message{Severity: severity, Text: text, Node: rows[best].Source}
}

func isWrapper(kind string) bool {
	switch kind {
	case "Limit", "Sort", "Gather", "Gather Merge", "Incremental Sort", "Unique", "Materialize":
		return true
	default:
		return false
	}
}

func spillMessages(rows []model.Row, cfg config.InsightConfig) []Message {
	type candidate struct {
		row  model.Row
		temp float64
	}
	var candidates []candidate
	for _, row := range rows {
		if IsFilterStage(row) {
			continue
		}
		f := Measure(row)
		if f.TempBlocks <= 0 || f.TempBlocks < cfg.SpillTempBlocks {
			continue
		}
		candidates = append(candidates, candidate{row, f.TempBlocks})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].temp > candidates[j].temp
	})

	const maxSpills = 2
	var msgs []Message
	for i, c := range candidates {
		if i >= maxSpills {
			break
		}
		text := fmt.Sprintf("%s spilled to disk: %s used %s temp buffers (~%s)",
			c.row.OperationType, CompactLabel(c.row), humanize.Commaf(c.temp), HumanizeBuffers(c.temp))
		switch c.row.OperationType {
		case "Sort", "Incremental Sort":
			text += "; consider increasing work_mem or adding a supporting index"
		case "Hash", "Hash Join":
			text += "; consider increasing work_mem or rewriting the join"
		default:
			text += "; consider increasing work_mem"
		}
		severity := SeverityWarning
		if c.temp >= 20000 {
			severity = SeverityCritical
		} else if c.temp < 2000 {
			severity = SeverityInfo
		}
		msgs = append(msgs, Message{Severity: severity, Text: text, Node: c.row.Source})
	}
	return msgs
}

// emptyFlowMessage reports the first flow that carried no rows; everything it feeds
// works on nothing.
func emptyFlowMessage(rows []model.Row) *Message {
	for _, row := range rows {
		f := Measure(row)
		if !f.HasRows || f.Rows != 0 {
			continue
		}
		text := fmt.Sprintf("Empty flow: %s produced no rows", CompactLabel(row))
		return &Message{Severity: SeverityWarning, Text: text, Node: row.Source}
	}
	return nil
}

func redundantMessages(rows []model.Row) []Message {
	var msgs []Message
	for _, row := range rows {
		if !row.Redundant {
			continue
		}
		f := Measure(row)
		var text string
		switch row.OperationType {
		case "Where", "Having":
			text = fmt.Sprintf("Redundant filter: %s keeps all %s rows it receives", CompactLabel(row), humanize.Commaf(f.Rows))
		default:
			text = fmt.Sprintf("Redundant operation: %s passes all %s rows through unchanged", CompactLabel(row), humanize.Commaf(f.Rows))
		}
		msgs = append(msgs, Message{Severity: SeverityInfo, Text: text, Node: row.Source})
	}
	return msgs
}

// NodeLabel builds a descriptive label for a row.
func NodeLabel(row model.Row) string {
	label := NormalizeWhitespace(row.Label)
	switch {
	case label == "":
		return row.OperationType
	case label == row.OperationType:
		return label
	default:
		return fmt.Sprintf("%s (%s)", label, row.OperationType)
	}
}

// CompactLabel shortens long labels for inline summaries.
func CompactLabel(row model.Row) string {
	label := NodeLabel(row)
	if r := []rune(label); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return label
}

// FormatSelf renders the self measurement of f with its unit.
func FormatSelf(f Figures) string {
	if !f.HasSelf {
		return "-"
	}
	return fmt.Sprintf("%.2f %s", f.Self, f.SelfUnit)
}

// HumanizeBuffers converts a buffer count into a readable size using 8KiB blocks.
func HumanizeBuffers(blocks float64) string {
	if blocks <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(blocks) * blockSize)
}

// NormalizeWhitespace collapses whitespace for use in single line output.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
