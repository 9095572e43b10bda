package postgres

import (
	"fmt"
	"strings"

	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/model"
	"github.com/mickamy/queryflow/internal/parser"
)

func strategies() map[string]flow.Strategy {
	scan := flow.Strategy{
		Parse:       parseScan,
		Filter:      whereOn("Relation Name"),
		FilterNeeds: flow.Need(filterField, "Relation Name"),
	}
	aggregate := flow.Strategy{
		Parse:       parseAggregate,
		Filter:      parseHaving,
		FilterNeeds: flow.Need(filterField),
	}

	return map[string]flow.Strategy{
		"Limit":            {Parse: parseLimit, Needs: flow.NeedAny("Actual Rows", "Plan Rows")},
		"Sort":             flow.Simple(parseSort, "Sort Key"),
		"Incremental Sort": flow.Simple(parseSort, "Sort Key"),
		"Append":           flow.Simple(fixed("UNION ALL")),
		"Merge Append":     flow.Simple(fixed("UNION ALL")),
		"Recursive Union":  flow.Simple(fixed("UNION")),
		"SetOp":            flow.Simple(parseSetOp, "Command"),
		"Hash Join":        flow.Simple(parseJoin, "Join Type"),
		"Merge Join":       flow.Simple(parseJoin, "Join Type"),
		"Nested Loop":      flow.Simple(parseJoin, "Join Type"),
		"Hash":             flow.Simple(fixed("HASH")),
		"Gather":           flow.Simple(parseGather),
		"Gather Merge":     flow.Simple(parseGather),
		"Unique":           flow.Simple(fixed("Unique")),
		"Result":           flow.Simple(fixed("Result")),
		"WindowAgg":        flow.Simple(fixed("WINDOW")),
		"Materialize":      flow.Simple(fixed("MATERIALIZE")),
		"Memoize":          flow.Simple(parseMemoize, "Cache Key"),

		"Seq Scan":          scan,
		"Index Scan":        scan,
		"Index Only Scan":   scan,
		"Bitmap Heap Scan":  scan,
		"Bitmap Index Scan": scan,

		"Subquery Scan": aliasScan("Alias"),
		"CTE Scan":      aliasScan("CTE Name"),
		"Function Scan": aliasScan("Function Name"),

		"Aggregate":      aggregate,
		"HashAggregate":  aggregate,
		"GroupAggregate": aggregate,
		"Group":          aggregate,
	}
}

func fixed(label string) flow.Handler {
	return func(parser.Node) flow.Attrs {
		return flow.Attrs{Label: label}
	}
}

func parseLimit(node parser.Node) flow.Attrs {
	rows := node.String("Actual Rows")
	if !node.Has("Actual Rows") {
		rows = node.String("Plan Rows")
	}
	return flow.Attrs{
		Label:    "LIMIT " + rows,
		Metadata: "LIMIT: " + rows,
	}
}

func parseSort(node parser.Node) flow.Attrs {
	return flow.Attrs{
		Label:    "SORT",
		Metadata: lines(node, "Sort Space Type", "Sort Space Used", "Sort Method", "Sort Key"),
	}
}

func parseSetOp(node parser.Node) flow.Attrs {
	return flow.Attrs{
		Label:    "SetOp",
		Metadata: lines(node, "Command", "Strategy"),
	}
}

func parseGather(node parser.Node) flow.Attrs {
	return flow.Attrs{
		Label:    "Gather",
		Metadata: lines(node, "Workers Launched"),
	}
}

func parseMemoize(node parser.Node) flow.Attrs {
	return flow.Attrs{
		Label:    "MEMOIZE",
		Metadata: lines(node, "Cache Key"),
	}
}

// parseJoin describes the join by its type and condition. Hash Cond, Merge Cond and
// friends win over Join Filter.
func parseJoin(node parser.Node) flow.Attrs {
	cond := ""
	for _, key := range node.Keys() {
		if strings.Contains(key, "Cond") && node.Has(key) {
			cond = key
			break
		}
	}
	if cond == "" && node.Has("Join Filter") {
		cond = "Join Filter"
	}

	attrs := flow.Attrs{Label: "JOIN"}
	if cond != "" {
		attrs.Metadata = fmt.Sprintf("%s Join with %s", node.String("Join Type"), node.String(cond))
	}
	return attrs
}

// parseScan labels a relation scan by the index it reads, else the table. Rows the
// scan discarded through its filter are added back: the raw scan produced them.
func parseScan(node parser.Node) flow.Attrs {
	name := node.String("Index Name")
	if name == "" {
		name = node.String("Relation Name")
	}
	return flow.Attrs{
		Label:   titleCase(name),
		Metrics: rowsBeforeFilter(node),
	}
}

func whereOn(field string) flow.Handler {
	return func(node parser.Node) flow.Attrs {
		return flow.Attrs{
			Label:         titleCase(node.String(field)) + "*",
			Metadata:      "Filter condition: " + node.String(filterField),
			OperationType: "Where",
		}
	}
}

func aliasScan(field string) flow.Strategy {
	return flow.Strategy{
		Parse: func(node parser.Node) flow.Attrs {
			return flow.Attrs{
				Label:   titleCase(node.String(field)),
				Metrics: rowsBeforeFilter(node),
			}
		},
		Needs:       flow.Need(field),
		Filter:      whereOn(field),
		FilterNeeds: flow.Need(filterField),
	}
}

func parseAggregate(node parser.Node) flow.Attrs {
	var meta []string
	if node.Has("Group Key") {
		meta = append(meta, "Group key: "+node.String("Group Key"))
	}
	if node.Has("Output") {
		meta = append(meta, "Output: "+node.String("Output"))
	}
	return flow.Attrs{
		Label:    "AGG",
		Metadata: strings.Join(meta, "\n"),
		Metrics:  rowsBeforeFilter(node),
	}
}

func parseHaving(node parser.Node) flow.Attrs {
	return flow.Attrs{
		Label:         "AGG*",
		Metadata:      "Filter condition: " + node.String(filterField),
		OperationType: "Having",
	}
}

func rowsBeforeFilter(node parser.Node) model.Metrics {
	actual, ok := node.Float("Actual Rows")
	if !ok {
		return nil
	}
	removed, _ := node.Float("Rows Removed by Filter")
	return model.Metrics{"actual_rows": actual + removed}
}

// lines renders the present fields as "Field: value" lines.
func lines(node parser.Node, fields ...string) string {
	var out []string
	for _, field := range fields {
		if node.Has(field) {
			out = append(out, field+": "+node.String(field))
		}
	}
	return strings.Join(out, "\n")
}
