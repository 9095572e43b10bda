package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/mickamy/queryflow/internal/config"
	"github.com/mickamy/queryflow/internal/insight"
	"github.com/mickamy/queryflow/internal/model"
)

// Options configures the diff sensitivity.
type Options struct {
	MinSelfDelta     float64
	MinPercentChange float64
	MaxItems         int
}

// Report summarises the delta between two flow graphs.
type Report struct {
	Unit         string           `json:"unit"`
	Summary      SummaryDiff      `json:"summary"`
	Regressions  []Entry          `json:"regressions"`
	Improvements []Entry          `json:"improvements"`
	Insights     []insightMessage `json:"insights"`
	Options      Options          `json:"-"`
}

// SummaryDiff covers graph-wide differences.
type SummaryDiff struct {
	BaseSelf      float64 `json:"base_self"`
	TargetSelf    float64 `json:"target_self"`
	DeltaSelf     float64 `json:"delta_self"`
	PercentChange float64 `json:"percent_change"`
	BaseFlows     int     `json:"base_flows"`
	TargetFlows   int     `json:"target_flows"`
}

// Entry captures the delta for the operations sharing a signature.
type Entry struct {
	Signature        string  `json:"signature"`
	BaseSelf         float64 `json:"base_self"`
	TargetSelf       float64 `json:"target_self"`
	DeltaSelf        float64 `json:"delta_self"`
	PercentChange    float64 `json:"percent_change"`
	BaseRows         float64 `json:"base_rows"`
	TargetRows       float64 `json:"target_rows"`
	BaseRowFactor    float64 `json:"base_row_factor"`
	TargetRowFactor  float64 `json:"target_row_factor"`
	BaseBuffers      float64 `json:"base_buffers"`
	TargetBuffers    float64 `json:"target_buffers"`
	DeltaBuffers     float64 `json:"delta_buffers"`
	BaseTempBlocks   float64 `json:"base_temp_blocks"`
	TargetTempBlocks float64 `json:"target_temp_blocks"`
	DeltaTempBlocks  float64 `json:"delta_temp_blocks"`
}

type insightMessage struct {
	Severity string `json:"severity"`
	Icon     string `json:"icon"`
	Message  string `json:"message"`
}

// Compare builds a diff report for two flow graphs of the same engine.
func Compare(base, target *model.Graph, opts Options) (*Report, error) {
	if base == nil || len(base.Rows) == 0 {
		return nil, errors.New("diff: base graph missing")
	}
	if target == nil || len(target.Rows) == 0 {
		return nil, errors.New("diff: target graph missing")
	}
	if base.Engine != target.Engine {
		return nil, errors.Errorf("diff: cannot compare %s with %s plans", base.Engine, target.Engine)
	}

	opts = applyDefaults(opts)

	baseAgg, baseUnit := aggregate(base)
	targetAgg, targetUnit := aggregate(target)
	if baseUnit != "" && targetUnit != "" && baseUnit != targetUnit {
		return nil, errors.Errorf("diff: base measured in %s, target in %s", baseUnit, targetUnit)
	}
	unit := baseUnit
	if unit == "" {
		unit = targetUnit
	}

	var regressions, improvements []Entry
	for _, sig := range unionKeys(baseAgg, targetAgg) {
		entry := buildEntry(sig, baseAgg[sig], targetAgg[sig])
		if passesRegression(entry, opts) {
			regressions = append(regressions, entry)
		} else if passesImprovement(entry, opts) {
			improvements = append(improvements, entry)
		}
	}

	sort.SliceStable(regressions, func(i, j int) bool {
		return regressions[i].DeltaSelf > regressions[j].DeltaSelf
	})
	sort.SliceStable(improvements, func(i, j int) bool {
		return improvements[i].DeltaSelf < improvements[j].DeltaSelf
	})

	if opts.MaxItems > 0 {
		if len(regressions) > opts.MaxItems {
			regressions = regressions[:opts.MaxItems]
		}
		if len(improvements) > opts.MaxItems {
			improvements = improvements[:opts.MaxItems]
		}
	}

	baseTotal, targetTotal := total(baseAgg), total(targetAgg)
	report := &Report{
		Unit: unit,
		Summary: SummaryDiff{
			BaseSelf:      baseTotal,
			TargetSelf:    targetTotal,
			DeltaSelf:     targetTotal - baseTotal,
			PercentChange: percentChange(baseTotal, targetTotal),
			BaseFlows:     len(base.Rows),
			TargetFlows:   len(target.Rows),
		},
		Regressions:  regressions,
		Improvements: improvements,
		Options:      opts,
	}
	report.Insights = synthesizeInsights(report)
	return report, nil
}

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# queryflow diff\n\n")
	b.WriteString("## Summary\n")
	_, _ = fmt.Fprintf(&b, "- Self %s: %.3f → %.3f (%+.3f, %+.1f%%)\n",
		r.Unit, r.Summary.BaseSelf, r.Summary.TargetSelf, r.Summary.DeltaSelf, r.Summary.PercentChange)
	_, _ = fmt.Fprintf(&b, "- Flows: %s → %s\n\n", humanize.Comma(int64(r.Summary.BaseFlows)), humanize.Comma(int64(r.Summary.TargetFlows)))

	b.WriteString("### Insights\n")
	if len(r.Insights) == 0 {
		b.WriteString("- No notable plan changes detected\n")
	} else {
		for _, msg := range r.Insights {
			_, _ = fmt.Fprintf(&b, "- %s %s\n", msg.Icon, msg.Message)
		}
	}

	b.WriteString("\n### Regressions\n")
	r.writeTable(&b, r.Regressions)
	b.WriteString("\n### Improvements\n")
	r.writeTable(&b, r.Improvements)
	return b.String()
}

func (r *Report) writeTable(b *strings.Builder, entries []Entry) {
	if len(entries) == 0 {
		b.WriteString("- None above threshold\n")
		return
	}
	_, _ = fmt.Fprintf(b, "| Operation | Base self (%[1]s) | Target self (%[1]s) | Δ self (%[1]s) | Δ %% | Rows (actual, x est) |\n", r.Unit)
	b.WriteString("|---|---:|---:|---:|---:|---|\n")
	for _, entry := range entries {
		_, _ = fmt.Fprintf(b, "| %s | %.2f | %.2f | %+.2f | %+.1f%% | %s |\n",
			entry.Signature,
			entry.BaseSelf,
			entry.TargetSelf,
			entry.DeltaSelf,
			entry.PercentChange,
			rowsSummary(entry))
	}
}

// JSON marshals the diff report into an indented JSON document.
func (r *Report) JSON() ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil report")
	}
	type alias Report
	return json.MarshalIndent((*alias)(r), "", "  ")
}

func rowsSummary(entry Entry) string {
	return fmt.Sprintf("%s → %s", formatRows(entry.BaseRows, entry.BaseRowFactor), formatRows(entry.TargetRows, entry.TargetRowFactor))
}

func formatRows(rows, factor float64) string {
	if rows == 0 && (factor == 0 || math.IsNaN(factor)) {
		return "0"
	}
	if math.IsInf(factor, 1) {
		return fmt.Sprintf("%.0f (∞)", rows)
	}
	return fmt.Sprintf("%.0f (x%.2f)", rows, factor)
}

func synthesizeInsights(r *Report) []insightMessage {
	const maxItems = 3
	cfg := config.Active()
	diffCfg := cfg.Diff

	var out []insightMessage
	for i, entry := range r.Regressions {
		if i >= maxItems {
			break
		}
		text := fmt.Sprintf("%s self +%.2f %s (+%.1f%%)", entry.Signature, entry.DeltaSelf, r.Unit, entry.PercentChange)
		if entry.DeltaTempBlocks > 0 {
			text += ", temp +" + humanizeBlocks(entry.DeltaTempBlocks)
		} else if entry.DeltaBuffers > 0 {
			text += ", buffers +" + humanizeBlocks(entry.DeltaBuffers)
		}
		icon, level := "🔥", "critical"
		if entry.DeltaSelf < diffCfg.CriticalDeltaMs {
			icon, level = "⚠️", "warning"
		}
		out = append(out, insightMessage{Severity: level, Icon: icon, Message: text})
	}

	for i, entry := range r.Improvements {
		if i >= maxItems {
			break
		}
		text := fmt.Sprintf("%s self %.2f %s (%.1f%%)", entry.Signature, entry.DeltaSelf, r.Unit, entry.PercentChange)
		if entry.DeltaTempBlocks < 0 {
			text += ", temp " + humanizeBlocks(entry.DeltaTempBlocks)
		} else if entry.DeltaBuffers < 0 {
			text += ", buffers " + humanizeBlocks(entry.DeltaBuffers)
		}
		out = append(out, insightMessage{Severity: "improvement", Icon: "✅", Message: text})
	}

	for _, entry := range r.Regressions {
		if entry.BaseTempBlocks == 0 && entry.TargetTempBlocks >= cfg.Insights.SpillTempBlocks && entry.TargetTempBlocks > 0 {
			text := fmt.Sprintf("%s began spilling to disk: %.0f temp buffers (~%s)",
				entry.Signature, entry.TargetTempBlocks, humanizeBlocks(entry.TargetTempBlocks))
			out = append(out, insightMessage{Severity: "warning", Icon: "⚠️", Message: text})
		}
	}
	return out
}

func humanizeBlocks(blocks float64) string {
	if blocks < 0 {
		return "-" + insight.HumanizeBuffers(-blocks)
	}
	return insight.HumanizeBuffers(blocks)
}

type aggregated struct {
	Self          float64
	ActualRows    float64
	EstimatedRows float64
	Buffers       float64
	TempBlocks    float64
}

// aggregate sums the figures of g per signature and reports the unit self is measured
// in.
func aggregate(g *model.Graph) (map[string]aggregated, string) {
	result := map[string]aggregated{}
	unit := ""
	for _, row := range g.Rows {
		f := insight.Measure(row)
		sig := signature(row)
		entry := result[sig]
		if f.HasSelf {
			entry.Self += f.Self
			if unit == "" {
				unit = f.SelfUnit
			}
		}
		entry.ActualRows += f.Rows
		entry.EstimatedRows += f.PlanRows
		// filter stages repeat the counters of the operation they filter
		if !insight.IsFilterStage(row) {
			entry.Buffers += f.Buffers
			entry.TempBlocks += f.TempBlocks
		}
		result[sig] = entry
	}
	return result, unit
}

func signature(row model.Row) string {
	label := insight.NormalizeWhitespace(row.Label)
	if label == "" || label == row.OperationType {
		return row.OperationType
	}
	return row.OperationType + " · " + label
}

func total(agg map[string]aggregated) float64 {
	var sum float64
	for _, entry := range agg {
		sum += entry.Self
	}
	return sum
}

func unionKeys(base, target map[string]aggregated) []string {
	seen := map[string]struct{}{}
	for k := range base {
		seen[k] = struct{}{}
	}
	for k := range target {
		seen[k] = struct{}{}
	}
	all := make([]string, 0, len(seen))
	for k := range seen {
		all = append(all, k)
	}
	sort.Strings(all)
	return all
}

func buildEntry(sig string, base, target aggregated) Entry {
	return Entry{
		Signature:        sig,
		BaseSelf:         base.Self,
		TargetSelf:       target.Self,
		DeltaSelf:        target.Self - base.Self,
		PercentChange:    percentChange(base.Self, target.Self),
		BaseRows:         base.ActualRows,
		TargetRows:       target.ActualRows,
		BaseRowFactor:    ratio(base.ActualRows, base.EstimatedRows),
		TargetRowFactor:  ratio(target.ActualRows, target.EstimatedRows),
		BaseBuffers:      base.Buffers,
		TargetBuffers:    target.Buffers,
		DeltaBuffers:     target.Buffers - base.Buffers,
		BaseTempBlocks:   base.TempBlocks,
		TargetTempBlocks: target.TempBlocks,
		DeltaTempBlocks:  target.TempBlocks - base.TempBlocks,
	}
}

func passesRegression(entry Entry, opts Options) bool {
	return entry.DeltaSelf >= opts.MinSelfDelta && entry.PercentChange >= opts.MinPercentChange
}

func passesImprovement(entry Entry, opts Options) bool {
	return entry.DeltaSelf <= -opts.MinSelfDelta && entry.PercentChange <= -opts.MinPercentChange
}

func ratio(actual, estimated float64) float64 {
	const eps = 1e-9
	if estimated <= eps {
		if actual <= eps {
			return 0
		}
		return math.Inf(1)
	}
	return actual / estimated
}

func percentChange(base, target float64) float64 {
	const eps = 1e-9
	if math.Abs(base) <= eps {
		if math.Abs(target) <= eps {
			return 0
		}
		if target > 0 {
			return 100
		}
		return -100
	}
	return (target - base) / base * 100
}

func applyDefaults(opts Options) Options {
	cfg := config.Active().Diff
	if opts.MinSelfDelta <= 0 {
		opts.MinSelfDelta = cfg.MinSelfDeltaMs
	}
	if opts.MinPercentChange <= 0 {
		opts.MinPercentChange = cfg.MinPercentChange
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = cfg.MaxItems
	}
	return opts
}
