package sankey

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"

	"github.com/mickamy/queryflow/internal/config"
	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/model"
)

// Link classes.
const (
	ClassDefault   = "default"
	ClassEmpty     = "empty"
	ClassRedundant = "redundant"
)

const defaultTitle = "queryflow"

// Row count metrics that mark a flow as empty when zero.
var rowMetrics = []string{"actual_rows", "nodeOutputRows"}

// Options configures the renderer.
type Options struct {
	Title   string
	Metrics []string
	// Together draws every metric on one page instead of one page per metric.
	Together bool
	Config   config.RenderConfig
}

// Renderer draws flow graphs as Sankey diagrams.
type Renderer struct {
	opts Options
}

// New checks the requested metrics against engine. Without metrics the configured
// defaults the engine supports are used.
func New(engine flow.Engine, opts Options) (*Renderer, error) {
	if engine == nil {
		return nil, errors.New("sankey: nil engine")
	}
	if opts.Title == "" {
		opts.Title = defaultTitle
	}
	if len(opts.Metrics) == 0 {
		opts.Metrics = supported(engine, opts.Config.DefaultMetrics)
		if len(opts.Metrics) == 0 {
			all := engine.SupportedMetrics()
			if len(all) == 0 {
				return nil, errors.Errorf("sankey: %s reports no metrics", engine.Name())
			}
			opts.Metrics = all[:1]
		}
	}
	if err := flow.ValidateMetrics(engine, opts.Metrics); err != nil {
		return nil, errors.Wrap(err, "sankey")
	}
	return &Renderer{opts: opts}, nil
}

func supported(engine flow.Engine, metrics []string) []string {
	known := map[string]struct{}{}
	for _, name := range engine.SupportedMetrics() {
		known[name] = struct{}{}
	}
	var out []string
	for _, name := range metrics {
		if _, ok := known[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Metrics returns the metrics the renderer draws.
func (r *Renderer) Metrics() []string {
	return append([]string(nil), r.opts.Metrics...)
}

// FileName is the file a page of metrics is written to.
func FileName(title string, metrics []string) string {
	return title + "-" + strings.Join(metrics, ",") + ".html"
}

// WriteFiles renders g into dir and returns the written paths: one page per metric, or
// a single page holding every metric when Together is set.
func (r *Renderer) WriteFiles(dir string, g *model.Graph) ([]string, error) {
	if r.opts.Together {
		path := filepath.Join(dir, FileName(r.opts.Title, r.opts.Metrics))
		if err := writeFile(path, func(w io.Writer) error { return r.Render(w, g) }); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	paths := make([]string, 0, len(r.opts.Metrics))
	for _, metric := range r.opts.Metrics {
		path := filepath.Join(dir, FileName(r.opts.Title, []string{metric}))
		if err := writeFile(path, func(w io.Writer) error { return r.RenderMetric(w, g, metric) }); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, render func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "sankey: create output")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "sankey: close output")
		}
	}()
	return render(f)
}

// Render writes one page with a chart per metric.
func (r *Renderer) Render(w io.Writer, g *model.Graph) error {
	if err := checkGraph(g); err != nil {
		return err
	}
	page := components.NewPage().
		SetPageTitle(r.opts.Title).
		SetLayout(components.PageFlexLayout)
	palette := r.opts.Config.MetricPalette
	for i, metric := range r.opts.Metrics {
		color := r.opts.Config.LinkColors.Default
		if len(palette) > 0 {
			color = palette[i%len(palette)]
		}
		page.AddCharts(r.chart(g, metric, color))
	}
	return errors.Wrap(page.Render(w), "sankey: render page")
}

// RenderMetric writes a page holding the chart of a single metric.
func (r *Renderer) RenderMetric(w io.Writer, g *model.Graph, metric string) error {
	if err := checkGraph(g); err != nil {
		return err
	}
	chart := r.chart(g, metric, r.opts.Config.LinkColors.Default)
	return errors.Wrap(chart.Render(w), "sankey: render chart")
}

func checkGraph(g *model.Graph) error {
	if g == nil || len(g.Rows) == 0 {
		return errors.New("sankey: empty graph")
	}
	return nil
}

func (r *Renderer) chart(g *model.Graph, metric, linkColor string) *charts.Sankey {
	cfg := r.opts.Config
	nodes, links := Build(g, metric, cfg, linkColor)

	subtitle := metric
	if unit := cfg.Unit(metric); unit != "" {
		subtitle += " (" + unit + ")"
	}

	chart := charts.NewSankey()
	chart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: r.opts.Title,
			Width:     cfg.Width,
			Height:    cfg.Height,
		}),
		charts.WithTitleOpts(opts.Title{Title: r.opts.Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
	)
	chart.AddSeries(metric, nodes, nil,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: linkColor, Curveness: 0.5, Opacity: opts.Float(0.6)}),
		charts.WithSeriesOpts(func(s *charts.SingleSeries) {
			s.Links = links
			if cfg.NodeGap > 0 {
				s.NodeGap = opts.Int(cfg.NodeGap)
			}
		}),
	)
	return chart
}

// Link is a Sankey link carrying its own line style so links can be colored by class.
type Link struct {
	Source    string          `json:"source"`
	Target    string          `json:"target"`
	Value     float32         `json:"value"`
	Class     string          `json:"-"`
	LineStyle *opts.LineStyle `json:"lineStyle,omitempty"`
}

// EdgeClass classifies a row: redundant operations first, then flows that carried no
// rows.
func EdgeClass(row model.Row) string {
	if row.Redundant {
		return ClassRedundant
	}
	for _, name := range rowMetrics {
		if v, ok := row.Metric(name); ok && v == 0 {
			return ClassEmpty
		}
	}
	return ClassDefault
}

// Build converts g into Sankey nodes and links for metric. Links of the default class
// use linkColor. Link values are truncated to integers with a floor of one so every
// flow stays visible.
func Build(g *model.Graph, metric string, cfg config.RenderConfig, linkColor string) ([]opts.SankeyNode, []Link) {
	names := nodeNames(g)

	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	first := map[int]model.Row{}
	for _, row := range g.Rows {
		if _, ok := first[row.Source]; !ok {
			first[row.Source] = row
		}
	}

	nodes := make([]opts.SankeyNode, 0, len(ids))
	for _, id := range ids {
		node := opts.SankeyNode{Name: names[id]}
		color := cfg.LinkColors.Default
		if row, ok := first[id]; ok {
			if c := cfg.NodeColor(row.OperationType); c != "" {
				color = c
			}
			if v, ok := row.Metric(metric); ok {
				node.Value = formatValue(v, cfg.Unit(metric))
			}
		}
		if color != "" {
			node.ItemStyle = &opts.ItemStyle{Color: color}
		}
		nodes = append(nodes, node)
	}

	type edge struct{ source, target int }
	index := map[edge]int{}
	var links []Link
	for _, row := range g.Rows {
		if row.Source == row.Target {
			continue
		}
		value := linkValue(row, metric)
		key := edge{row.Source, row.Target}
		if i, ok := index[key]; ok {
			links[i].Value += value
			continue
		}
		class := EdgeClass(row)
		index[key] = len(links)
		links = append(links, Link{
			Source:    names[row.Source],
			Target:    names[row.Target],
			Value:     value,
			Class:     class,
			LineStyle: &opts.LineStyle{Color: classColor(cfg.LinkColors, class, linkColor)},
		})
	}
	return nodes, links
}

func linkValue(row model.Row, metric string) float32 {
	v, ok := row.Metric(metric)
	if !ok {
		return 1
	}
	v = math.Trunc(v)
	if v < 1 {
		return 1
	}
	return float32(v)
}

func classColor(colors config.LinkColors, class, fallback string) string {
	switch class {
	case ClassRedundant:
		if colors.Redundant != "" {
			return colors.Redundant
		}
	case ClassEmpty:
		if colors.Empty != "" {
			return colors.Empty
		}
	}
	return fallback
}

// nodeNames gives every node id a unique display name. Sources take the graph's label
// for them, terminals "output". Repeated names get the id appended, in row order.
func nodeNames(g *model.Graph) map[int]string {
	names := map[int]string{}
	used := map[string]struct{}{}
	assign := func(id int, base string) {
		if _, ok := names[id]; ok {
			return
		}
		name := base
		if _, taken := used[name]; taken {
			name = fmt.Sprintf("%s #%d", base, id)
		}
		used[name] = struct{}{}
		names[id] = name
	}

	labels := g.Labels()
	for _, row := range g.Rows {
		assign(row.Source, labels[row.Source])
	}
	for _, id := range g.Terminals() {
		assign(id, "output")
	}
	return names
}

func formatValue(v float64, unit string) string {
	out := humanize.Commaf(math.Round(v*100) / 100)
	if unit != "" {
		out += " " + unit
	}
	return out
}
