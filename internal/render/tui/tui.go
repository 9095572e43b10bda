package tui

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/mickamy/queryflow/internal/analyzer"
	"github.com/mickamy/queryflow/internal/insight"
	"github.com/mickamy/queryflow/internal/model"
)

// Options controls how the TUI renderer behaves.
type Options struct {
	EnableColor bool
	MaxDepth    int
	BarWidth    int
	// ShowMetadata prints each operation's label metadata below it.
	ShowMetadata bool
}

// Render prints, for every query of g, its insights and an ASCII tree of flows from the
// final operation down to the scans, highlighting where the time goes.
func Render(w io.Writer, g *model.Graph, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if g == nil || len(g.Rows) == 0 {
		return errors.New("tui: empty graph")
	}
	if opts.BarWidth <= 0 {
		opts.BarWidth = 20
	}

	queries := g.Queries()
	_, _ = fmt.Fprintf(w, "Engine %s | Queries %d | Nodes %d | Flows %d\n\n", g.Engine, len(queries), g.NodeCount(), len(g.Rows))

	for i, query := range queries {
		rows := insight.QueryRows(g, query)
		_, _ = fmt.Fprintf(w, "Query %d (%s) | Flows %d\n", i+1, shortHash(query), len(rows))
		renderInsights(w, insight.QueryMessages(g, query))

		t := newTree(rows)
		for _, root := range t.roots() {
			_, _ = fmt.Fprintf(w, "%s\n", renderLine(rows[root], opts))
			t.printChildren(w, root, "", 1, opts)
		}
		_, _ = fmt.Fprintln(w)
	}
	return nil
}

type tree struct {
	rows  []model.Row
	index *analyzer.Index
	path  map[int]bool
}

func newTree(rows []model.Row) *tree {
	return &tree{rows: rows, index: analyzer.NewIndex(rows), path: map[int]bool{}}
}

// roots are the rows feeding a terminal node, i.e. a target no row starts from.
func (t *tree) roots() []int {
	sources := map[int]struct{}{}
	for _, row := range t.rows {
		sources[row.Source] = struct{}{}
	}
	var out []int
	for i, row := range t.rows {
		if _, ok := sources[row.Target]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// children skips rows already on the current path; a compacted graph may feed a node
// into itself.
func (t *tree) children(i int) []int {
	var out []int
	for _, child := range t.index.Children(t.rows[i]) {
		if child != i && !t.path[child] {
			out = append(out, child)
		}
	}
	return out
}

func (t *tree) printChildren(w io.Writer, parent int, prefix string, depth int, opts Options) {
	t.path[parent] = true
	defer delete(t.path, parent)

	children := t.children(parent)
	for i, child := range children {
		t.renderBranch(w, child, prefix, i == len(children)-1, depth, opts)
	}
}

func (t *tree) renderBranch(w io.Writer, i int, prefix string, isLast bool, depth int, opts Options) {
	connector := "|-- "
	childPrefix := prefix + "|   "
	if isLast {
		connector = "`-- "
		childPrefix = prefix + "    "
	}

	_, _ = fmt.Fprintf(w, "%s%s%s\n", prefix, connector, renderLine(t.rows[i], opts))
	if opts.ShowMetadata {
		for _, line := range metadataLines(t.rows[i]) {
			_, _ = fmt.Fprintf(w, "%s    %s\n", childPrefix, line)
		}
	}

	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		if n := t.countDescendants(i); n > 0 {
			_, _ = fmt.Fprintf(w, "%s`-- ... (%d more flows)\n", childPrefix, n)
		}
		return
	}
	t.printChildren(w, i, childPrefix, depth+1, opts)
}

func (t *tree) countDescendants(i int) int {
	t.path[i] = true
	defer delete(t.path, i)

	total := 0
	for _, child := range t.children(i) {
		total += 1 + t.countDescendants(child)
	}
	return total
}

func metadataLines(row model.Row) []string {
	var out []string
	for _, line := range strings.Split(row.LabelMetadata, "\n") {
		if line = insight.NormalizeWhitespace(line); line != "" && !strings.HasPrefix(line, "Description:") {
			out = append(out, line)
		}
	}
	return out
}

func renderLine(row model.Row, opts Options) string {
	f := insight.Measure(row)

	parts := []string{insight.NodeLabel(row)}
	if f.HasSelf {
		parts = append(parts, "self "+insight.FormatSelf(f))
	}
	if f.HasShare {
		bar := drawBar(f.Share/100, opts.BarWidth)
		if color := pickColor(f.Share / 100); opts.EnableColor && color != "" {
			bar = applyColor(bar, color)
		}
		parts = append(parts, fmt.Sprintf("%5.1f%%", f.Share), bar)
	}

	switch {
	case f.HasRows && f.HasPlanRows:
		rowInfo := fmt.Sprintf("rows %s/%s", humanize.Commaf(f.Rows), humanize.Commaf(f.PlanRows))
		if f.RowFactor > 0 && !math.IsInf(f.RowFactor, 0) {
			rowInfo += fmt.Sprintf(" (x%.2f)", f.RowFactor)
		}
		parts = append(parts, rowInfo)
	case f.HasRows:
		parts = append(parts, "rows "+humanize.Commaf(f.Rows))
	case f.HasPlanRows:
		parts = append(parts, "est rows "+humanize.Commaf(f.PlanRows))
	}

	if f.Buffers > 0 {
		parts = append(parts, fmt.Sprintf("buf %s (~%s)", humanize.Commaf(f.Buffers), insight.HumanizeBuffers(f.Buffers)))
	}

	line := strings.Join(parts, " | ")
	if row.Redundant {
		tag := "redundant"
		if opts.EnableColor {
			tag = applyColor(tag, "yellow")
		}
		line += " [" + tag + "]"
	}
	return line
}

func renderInsights(w io.Writer, messages []insight.Message) {
	if len(messages) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Insights:")
	for _, msg := range messages {
		_, _ = fmt.Fprintf(w, "  - %s %s\n", severityIcon(msg.Severity), msg.Text)
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func drawBar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	clamped := math.Min(1, math.Max(0, ratio))
	fill := int(math.Round(clamped * float64(width)))
	if clamped > 0 && fill == 0 {
		fill = 1
	}
	return strings.Repeat("#", fill) + strings.Repeat("-", width-fill)
}

func pickColor(ratio float64) string {
	switch {
	case ratio >= 0.40:
		return "red"
	case ratio >= 0.20:
		return "yellow"
	case ratio >= 0.10:
		return "cyan"
	default:
		return ""
	}
}

func applyColor(text, color string) string {
	code := ""
	switch color {
	case "red":
		code = "\033[31m"
	case "yellow":
		code = "\033[33m"
	case "cyan":
		code = "\033[36m"
	default:
		return text
	}
	return code + text + "\033[0m"
}

func severityIcon(sev insight.Severity) string {
	switch sev {
	case insight.SeverityCritical:
		return "🔥"
	case insight.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
