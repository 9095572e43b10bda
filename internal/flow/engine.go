package flow

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/mickamy/queryflow/internal/model"
	"github.com/mickamy/queryflow/internal/parser"
)

var (
	// ErrMalformedNode is matched by every *MalformedNodeError.
	ErrMalformedNode = errors.New("malformed plan node")
	// ErrUnsupportedMetric is returned when a caller asks for a metric the engine
	// cannot produce.
	ErrUnsupportedMetric = errors.New("unsupported metric")
)

// Engine adapts one database's EXPLAIN output to the flow builder.
type Engine interface {
	// Name identifies the engine, e.g. "postgres".
	Name() string
	// Decode turns raw plan-source output into a decoded plan payload.
	Decode(data []byte) (any, error)
	// Fragments splits a decoded payload into independently rooted sub-plans, in the
	// order they must be walked.
	Fragments(payload any) ([]Fragment, error)
	// Kind returns the operation kind of node.
	Kind(node parser.Node) string
	// Children returns the nodes feeding node.
	Children(node parser.Node) ([]parser.Node, error)
	// HasFilter reports whether node carries an implicit filter predicate.
	HasFilter(node parser.Node) bool
	// Helper reports whether kind is hidden unless the parser runs verbose.
	Helper(kind string) bool
	// Strategies is the read-only dispatch table keyed by operation kind.
	Strategies() map[string]Strategy
	// Description returns the human readable explanation of kind.
	Description(kind string) (string, bool)
	// Metrics extracts the metrics node reports.
	Metrics(node parser.Node) model.Metrics
	// SupportedMetrics lists every metric name the engine can put on a row, derived
	// ones included.
	SupportedMetrics() []string
	// Enrich computes engine specific derived metrics on the normalized rows.
	Enrich(rows []model.Row) []model.Row
}

// Fragment is one independently rooted sub-plan.
type Fragment struct {
	ID   string
	Root parser.Node
}

// Attrs are the semantic attributes a handler derives from a node.
type Attrs struct {
	Label    string
	Metadata string
	// OperationType overrides the node's kind, e.g. "Where" for a synthetic filter.
	OperationType string
	// Metrics override the default metrics extracted by the engine.
	Metrics      model.Metrics
	FragmentRefs []string
}

// Handler derives display attributes from a node.
type Handler func(node parser.Node) Attrs

// Fields lists what a handler needs from a node: every field in All and at least one
// field in Any (when Any is non-empty).
type Fields struct {
	All []string
	Any []string
}

// Need is shorthand for Fields{All: fields}.
func Need(fields ...string) Fields {
	return Fields{All: fields}
}

// NeedAny is shorthand for Fields{Any: fields}.
func NeedAny(fields ...string) Fields {
	return Fields{Any: fields}
}

// Missing returns the fields node lacks. An unsatisfied Any set is reported as
// "a|b".
func (f Fields) Missing(node parser.Node) []string {
	var missing []string
	for _, field := range f.All {
		if !node.Has(field) {
			missing = append(missing, field)
		}
	}
	if len(f.Any) > 0 {
		found := false
		for _, field := range f.Any {
			if node.Has(field) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, strings.Join(f.Any, "|"))
		}
	}
	return missing
}

// Strategy parses one operation kind.
//
// A simple strategy only sets Parse. A filterable strategy also sets Filter: when the
// engine reports a filter on the node, the filter handler yields a second operation
// layered between the raw operation and its consumer.
type Strategy struct {
	Parse       Handler
	Needs       Fields
	Filter      Handler
	FilterNeeds Fields
}

// Simple builds a strategy with a single handler.
func Simple(h Handler, needs ...string) Strategy {
	return Strategy{Parse: h, Needs: Need(needs...)}
}

// Filterable reports whether the strategy can split off a filter stage.
func (s Strategy) Filterable() bool {
	return s.Filter != nil
}

// Base is the fallback strategy for kinds without a registered one: the kind itself is
// the label.
func Base(kind string) Strategy {
	return Strategy{Parse: func(parser.Node) Attrs {
		return Attrs{Label: kind}
	}}
}

// MalformedNodeError reports a node lacking fields its strategy requires.
type MalformedNodeError struct {
	Engine  string
	Kind    string
	Missing []string
}

func (e *MalformedNodeError) Error() string {
	return fmt.Sprintf("%s: malformed %q node: missing %s", e.Engine, e.Kind, strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrMalformedNode) hold.
func (e *MalformedNodeError) Is(target error) bool {
	return target == ErrMalformedNode
}

// ValidateMetrics rejects metric names the engine cannot produce.
func ValidateMetrics(engine Engine, metrics []string) error {
	supported := map[string]struct{}{}
	for _, name := range engine.SupportedMetrics() {
		supported[name] = struct{}{}
	}
	for _, name := range metrics {
		if _, ok := supported[name]; !ok {
			return errors.Wrapf(ErrUnsupportedMetric, "%s: %q (supported: %s)",
				engine.Name(), name, strings.Join(engine.SupportedMetrics(), ", "))
		}
	}
	return nil
}

func checkDescriptions(engine Engine) error {
	var missing []string
	for kind := range engine.Strategies() {
		if desc, ok := engine.Description(kind); !ok || strings.TrimSpace(desc) == "" {
			missing = append(missing, kind)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("%s: strategies without description: %s", engine.Name(), strings.Join(sortedCopy(missing), ", "))
	}
	return nil
}
