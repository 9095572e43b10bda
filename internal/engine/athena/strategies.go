package athena

import (
	"regexp"
	"strings"

	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/parser"
)

var tableNamePattern = regexp.MustCompile(`tableName=([^,}\]\s]+)`)

var baseKinds = []string{
	"Output", "Limit", "LimitPartial", "TopN", "TopNPartial", "PartialSort", "Sort",
	"Distinct", "DistinctLimit", "DistinctLimitPartial", "Unnest", "Window",
	"LocalExchange", "LocalMerge", "Filter", "GroupId", "InnerJoin", "LeftJoin",
	"RightJoin", "CrossJoin", "SemiJoin", "Aggregate", "MarkDistinct", "EnforceSingleRow",
	"Union",
}

var scanKinds = []string{
	"TableScan", "ScanFilterProject", "ScanProject", "ScanFilter", "Values", "Project",
}

func strategies() map[string]flow.Strategy {
	out := make(map[string]flow.Strategy, len(baseKinds)+len(scanKinds)+2)
	for _, kind := range baseKinds {
		out[kind] = flow.Simple(parseBase(kind))
	}
	scan := flow.Strategy{
		Parse:       parseScan,
		Needs:       flow.Need(nameField, identField, detailsField),
		Filter:      parseWhere,
		FilterNeeds: flow.Need(nameField, identField, detailsField),
	}
	for _, kind := range scanKinds {
		out[kind] = scan
	}
	out["RemoteSource"] = flow.Simple(parseRemoteSource, identField)
	out["RemoteMerge"] = flow.Simple(parseRemoteSource, identField)
	return out
}

func parseBase(kind string) flow.Handler {
	return func(node parser.Node) flow.Attrs {
		return flow.Attrs{Label: kind, Metadata: metadata(node)}
	}
}

func parseScan(node parser.Node) flow.Attrs {
	return flow.Attrs{Label: scanLabel(node), Metadata: metadata(node)}
}

func parseWhere(node parser.Node) flow.Attrs {
	return flow.Attrs{
		Label:         scanLabel(node) + "*",
		Metadata:      metadata(node),
		OperationType: "Where",
	}
}

// parseRemoteSource records the fragments the operator reads, e.g. "[1, 2]".
func parseRemoteSource(node parser.Node) flow.Attrs {
	ident := node.String(identField)
	return flow.Attrs{
		Label:        "remote_source " + ident,
		FragmentRefs: fragmentRefs(ident),
	}
}

func fragmentRefs(ident string) []string {
	ident = strings.Trim(strings.TrimSpace(ident), "[]")
	var refs []string
	for _, part := range strings.Split(ident, ",") {
		if part = strings.TrimSpace(part); part != "" {
			refs = append(refs, part)
		}
	}
	return refs
}

// scanLabel is the operator name followed by the scanned table, when the identifier
// names one.
func scanLabel(node parser.Node) string {
	label := node.String(nameField)
	if m := tableNamePattern.FindStringSubmatch(node.String(identField)); m != nil {
		label += "-" + m[1]
	}
	return label
}

func metadata(node parser.Node) string {
	return "identifier: " + node.String(identField) + "\n details: " + node.String(detailsField)
}
