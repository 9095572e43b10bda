package athena

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/model"
	"github.com/mickamy/queryflow/internal/parser"
)

// Name identifies the engine.
const Name = "athena"

const (
	nameField     = "name"
	childrenField = "children"
	detailsField  = "details"
	identField    = "identifier"
	statsField    = "distributedNodeStats"
	filteredMark  = "Filtered"
)

// Engine reads Athena (Presto/Trino) EXPLAIN ANALYZE (FORMAT JSON) output: an object
// mapping fragment ids to the root operator of each fragment.
type Engine struct {
	strategies map[string]flow.Strategy
}

var _ flow.Engine = (*Engine)(nil)

// New returns an Athena engine.
func New() *Engine {
	return &Engine{strategies: strategies()}
}

func (e *Engine) Name() string {
	return Name
}

// Decode parses the plan object. Athena returns the plan as the single cell of a result
// set, sometimes surrounded by other text; everything outside the outermost braces is
// dropped.
func (e *Engine) Decode(data []byte) (any, error) {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start < 0 || end < start {
		return nil, errors.Errorf("%s: no json object in plan output", Name)
	}
	payload, err := parser.DecodeBytes(data[start : end+1])
	if err != nil {
		return nil, errors.Wrap(err, Name)
	}
	return payload, nil
}

// Fragments returns the fragment roots in descending fragment id, so producers are
// walked before the fragments that read from them.
func (e *Engine) Fragments(payload any) ([]flow.Fragment, error) {
	doc, err := parser.AsNode(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: plan", Name)
	}
	if doc.Has(nameField) {
		return []flow.Fragment{{ID: "0", Root: doc}}, nil
	}

	ids := doc.Keys()
	sort.SliceStable(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a > b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] > ids[j]
		}
	})

	fragments := make([]flow.Fragment, 0, len(ids))
	for _, id := range ids {
		root, err := parser.AsNode(doc.Value(id))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: fragment %s", Name, id)
		}
		fragments = append(fragments, flow.Fragment{ID: id, Root: root})
	}
	if len(fragments) == 0 {
		return nil, errors.Errorf("%s: plan has no fragments", Name)
	}
	return fragments, nil
}

// Kind strips the operator arguments: "Aggregate(FINAL)[orderstatus]" is an Aggregate.
func (e *Engine) Kind(node parser.Node) string {
	name := node.String(nameField)
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

func (e *Engine) Children(node parser.Node) ([]parser.Node, error) {
	return node.Objects(childrenField)
}

func (e *Engine) HasFilter(node parser.Node) bool {
	return strings.Contains(node.String(detailsField), filteredMark)
}

// Helper reports false: every Athena operator is shown.
func (e *Engine) Helper(string) bool {
	return false
}

func (e *Engine) Strategies() map[string]flow.Strategy {
	return e.strategies
}

func (e *Engine) Description(kind string) (string, bool) {
	d, ok := descriptions[kind]
	return d, ok
}

func (e *Engine) Metrics(node parser.Node) model.Metrics {
	out := model.Metrics{}
	if !node.Has(statsField) {
		return out
	}
	stats, err := parser.AsNode(node.Value(statsField))
	if err != nil {
		return out
	}
	for _, m := range reportedMetrics {
		if !stats.Has(m.name) {
			continue
		}
		if v, err := m.parse(stats.String(m.name)); err == nil {
			out[m.name] = v
		}
	}
	return out
}

func (e *Engine) SupportedMetrics() []string {
	out := make([]string, 0, len(reportedMetrics))
	for _, m := range reportedMetrics {
		out = append(out, m.name)
	}
	return out
}

// Enrich has nothing to derive: Athena reports per operator values already.
func (e *Engine) Enrich(rows []model.Row) []model.Row {
	return rows
}
