package flow

import (
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/mickamy/queryflow/internal/analyzer"
	"github.com/mickamy/queryflow/internal/model"
	"github.com/mickamy/queryflow/internal/parser"
)

// Options configures a Parser.
type Options struct {
	// Compact collapses operations that display identically into one node.
	Compact bool
	// Verbose keeps the engine's helper operations (hash builds, gathers, sorts).
	Verbose bool
	// StartID is the value ids count down from. Zero means DefaultStartID.
	StartID int
	Logger  log.Logger
	Metrics *Metrics
}

// Parser turns plans into flow graphs. All state of a parse lives in the call, so a
// Parser can be reused.
type Parser struct {
	engine Engine
	opts   Options
}

// New validates engine and returns a parser for it.
func New(engine Engine, opts Options) (*Parser, error) {
	if engine == nil {
		return nil, errors.New("flow: nil engine")
	}
	if err := checkDescriptions(engine); err != nil {
		return nil, err
	}
	if opts.StartID <= 0 {
		opts.StartID = DefaultStartID
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Parser{engine: engine, opts: opts}, nil
}

// Engine returns the engine the parser dispatches to.
func (p *Parser) Engine() Engine {
	return p.engine
}

// ParseRaw decodes each document with the engine and parses the batch.
func (p *Parser) ParseRaw(docs ...[]byte) (*model.Graph, error) {
	plans := make([]any, 0, len(docs))
	for i, doc := range docs {
		payload, err := p.engine.Decode(doc)
		if err != nil {
			p.opts.Metrics.fail(p.engine.Name(), "decode")
			return nil, errors.Wrapf(err, "plan %d", i)
		}
		plans = append(plans, payload)
	}
	return p.Parse(plans...)
}

// Parse walks every plan, links the parsed operations into one graph and runs
// post-processing over the whole batch. Either every plan parses or an error is
// returned.
func (p *Parser) Parse(plans ...any) (*model.Graph, error) {
	start := time.Now()
	name := p.engine.Name()

	w := &walker{
		engine:  p.engine,
		verbose: p.opts.Verbose,
		alloc:   NewAllocator(p.opts.StartID, p.opts.Compact),
	}

	var rows []model.Row
	for i, payload := range plans {
		queryHash, err := QueryHash(i, payload)
		if err != nil {
			p.opts.Metrics.fail(name, "decode")
			return nil, err
		}
		fragments, err := p.engine.Fragments(payload)
		if err != nil {
			p.opts.Metrics.fail(name, "fragments")
			return nil, errors.Wrapf(err, "plan %d", i)
		}

		before := len(rows)
		w.query = queryHash
		for _, fragment := range fragments {
			w.fragment = fragment.ID
			rows, err = w.walk(fragment.Root, model.NoTarget, rows)
			if err != nil {
				reason := "walk"
				if errors.Is(err, ErrMalformedNode) {
					reason = "malformed"
				}
				p.opts.Metrics.fail(name, reason)
				return nil, errors.Wrapf(err, "plan %d", i)
			}
		}
		level.Debug(p.opts.Logger).Log("msg", "walked plan", "engine", name, "plan", i,
			"query", queryHash, "fragments", len(fragments), "rows", len(rows)-before)
	}

	rows = analyzer.Stitch(rows)
	rows = analyzer.ResolveTargets(rows)
	rows = analyzer.Normalize(rows)
	rows = analyzer.RewriteLabels(rows)
	rows = p.engine.Enrich(rows)
	rows = analyzer.Describe(rows, p.engine.Description)

	elapsed := time.Since(start)
	p.opts.Metrics.observe(name, len(plans), len(rows), elapsed.Seconds())
	level.Debug(p.opts.Logger).Log("msg", "parsed batch", "engine", name, "plans", len(plans),
		"rows", len(rows), "distinct", w.alloc.Distinct(), "duration", elapsed)

	return &model.Graph{Engine: name, Rows: rows}, nil
}

// Walk parses the single tree rooted at root as if it fed into target. The rows are
// returned as emitted, without linking, normalization or enrichment.
func (p *Parser) Walk(root parser.Node, target int) ([]model.Row, error) {
	w := &walker{
		engine:  p.engine,
		verbose: p.opts.Verbose,
		alloc:   NewAllocator(p.opts.StartID, p.opts.Compact),
	}
	return w.walk(root, target, nil)
}

type walker struct {
	engine   Engine
	verbose  bool
	alloc    *Allocator
	query    string
	fragment string
}

// walk appends the rows of node's subtree to rows and returns the result. target is the
// id node feeds into.
func (w *walker) walk(node parser.Node, target int, rows []model.Row) ([]model.Row, error) {
	kind := w.engine.Kind(node)
	anchor := target

	if w.verbose || !w.engine.Helper(kind) {
		parsed, source, err := w.parseNode(kind, node, target)
		if err != nil {
			return nil, err
		}
		for i := range parsed {
			parsed[i].QueryHash = w.query
			parsed[i].FragmentID = w.fragment
		}
		rows = append(rows, parsed...)
		anchor = source
	}

	children, err := w.engine.Children(node)
	if err != nil {
		return nil, errors.Wrapf(err, "%s node children", kind)
	}
	for _, child := range children {
		rows, err = w.walk(child, anchor, rows)
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// parseNode runs the strategy for kind. It returns the produced rows in consumer to
// producer order and the id children should target.
func (w *walker) parseNode(kind string, node parser.Node, target int) ([]model.Row, int, error) {
	strategy, ok := w.engine.Strategies()[kind]
	if !ok {
		strategy = Base(kind)
	}

	if strategy.Filterable() && w.engine.HasFilter(node) {
		if err := w.require(kind, node, strategy.FilterNeeds); err != nil {
			return nil, 0, err
		}
		if err := w.require(kind, node, strategy.Needs); err != nil {
			return nil, 0, err
		}
		filter := w.finalize(kind, node, strategy.Filter(node), target)
		raw := w.finalize(kind, node, strategy.Parse(node), filter.Source)
		return []model.Row{filter, raw}, raw.Source, nil
	}

	if err := w.require(kind, node, strategy.Needs); err != nil {
		return nil, 0, err
	}
	row := w.finalize(kind, node, strategy.Parse(node), target)
	return []model.Row{row}, row.Source, nil
}

func (w *walker) require(kind string, node parser.Node, fields Fields) error {
	missing := fields.Missing(node)
	if len(missing) == 0 {
		return nil
	}
	return &MalformedNodeError{Engine: w.engine.Name(), Kind: kind, Missing: missing}
}

// finalize merges handler attributes with the defaults every row gets: hash, id and the
// metrics the engine reports for node.
func (w *walker) finalize(kind string, node parser.Node, attrs Attrs, target int) model.Row {
	opType := attrs.OperationType
	if opType == "" {
		opType = kind
	}
	hash := Hash(opType, attrs.Label, attrs.Metadata)

	metrics := w.engine.Metrics(node)
	if len(attrs.Metrics) > 0 {
		if metrics == nil {
			metrics = model.Metrics{}
		}
		for k, v := range attrs.Metrics {
			metrics[k] = v
		}
	}

	return model.Row{
		Source:        w.alloc.Allocate(hash),
		Target:        target,
		OperationType: opType,
		Label:         attrs.Label,
		LabelMetadata: attrs.Metadata,
		NodeHash:      hash,
		FragmentRefs:  attrs.FragmentRefs,
		Metrics:       metrics,
	}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
