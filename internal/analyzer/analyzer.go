package analyzer

import (
	"math"
	"sort"
	"strings"

	"github.com/mickamy/queryflow/internal/model"
)

// labelConnectives maps the literal labels of set and join operations to the glyph used
// to join their inputs' labels.
var labelConnectives = map[string]string{
	"JOIN":      " ⋈ ",
	"UNION":     " U ",
	"UNION ALL": " U ",
}

// Index looks up the rows feeding a node within one query.
type Index struct {
	children map[edgeKey][]int
	sources  []int
}

type edgeKey struct {
	query string
	id    int
}

// NewIndex indexes rows by (query, target).
func NewIndex(rows []model.Row) *Index {
	idx := &Index{children: map[edgeKey][]int{}, sources: make([]int, len(rows))}
	for i, row := range rows {
		k := edgeKey{query: row.QueryHash, id: row.Target}
		idx.children[k] = append(idx.children[k], i)
		idx.sources[i] = row.Source
	}
	return idx
}

// Children returns the positions of the rows whose target is row's source, within the
// same query, in row order.
func (idx *Index) Children(row model.Row) []int {
	return idx.children[edgeKey{query: row.QueryHash, id: row.Source}]
}

// Inputs is Children with one position per distinct input source. Compaction can emit
// the same edge more than once; the first occurrence wins. Self-loops are dropped.
func (idx *Index) Inputs(row model.Row) []int {
	children := idx.Children(row)
	out := make([]int, 0, len(children))
	seen := map[int]struct{}{}
	for _, c := range children {
		source := idx.sources[c]
		if source == row.Source {
			continue
		}
		if _, ok := seen[source]; ok {
			continue
		}
		seen[source] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Stitch links fragment roots to the remote-source rows that read them. A root is a row
// of a fragment whose target is still unresolved.
func Stitch(rows []model.Row) []model.Row {
	type fragmentKey struct {
		query    string
		fragment string
	}
	consumers := map[fragmentKey]int{}
	for _, row := range rows {
		for _, ref := range row.FragmentRefs {
			k := fragmentKey{query: row.QueryHash, fragment: ref}
			if _, ok := consumers[k]; !ok {
				consumers[k] = row.Source
			}
		}
	}
	if len(consumers) == 0 {
		return rows
	}
	for i := range rows {
		if rows[i].Target != model.NoTarget || rows[i].FragmentID == "" {
			continue
		}
		if source, ok := consumers[fragmentKey{query: rows[i].QueryHash, fragment: rows[i].FragmentID}]; ok {
			rows[i].Target = source
		}
	}
	return rows
}

// ResolveTargets gives every row still targeting model.NoTarget its own terminal id,
// larger than any id in use.
func ResolveTargets(rows []model.Row) []model.Row {
	maxID := math.MinInt
	for _, row := range rows {
		maxID = max(maxID, row.Source)
		if row.Target != model.NoTarget {
			maxID = max(maxID, row.Target)
		}
	}
	for i := range rows {
		if rows[i].Target == model.NoTarget {
			maxID++
			rows[i].Target = maxID
		}
	}
	return rows
}

// Normalize shifts ids so the smallest becomes 0 and orders rows by source. Rows sharing
// a source keep their emission order.
func Normalize(rows []model.Row) []model.Row {
	if len(rows) == 0 {
		return rows
	}
	minID := math.MaxInt
	for _, row := range rows {
		minID = min(minID, row.Source, row.Target)
	}
	for i := range rows {
		rows[i].Source -= minID
		rows[i].Target -= minID
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Source < rows[j].Source
	})
	return rows
}

// RewriteLabels replaces bare JOIN/UNION labels with the labels of the operation's
// distinct inputs, resolved recursively, so nested joins read "A ⋈ B ⋈ C" whatever the
// row order. Every row leaving the same node gets the same label. An operation without
// inputs keeps its label.
func RewriteLabels(rows []model.Row) []model.Row {
	idx := NewIndex(rows)
	resolved := map[edgeKey]string{}
	visiting := map[edgeKey]bool{}

	var resolve func(i int) string
	resolve = func(i int) string {
		row := rows[i]
		glyph, ok := labelConnectives[row.Label]
		if !ok {
			return row.Label
		}
		k := edgeKey{query: row.QueryHash, id: row.Source}
		if label, ok := resolved[k]; ok {
			return label
		}
		if visiting[k] {
			return row.Label
		}
		visiting[k] = true
		defer delete(visiting, k)

		label := row.Label
		if inputs := idx.Inputs(row); len(inputs) > 0 {
			labels := make([]string, 0, len(inputs))
			for _, c := range inputs {
				labels = append(labels, resolve(c))
			}
			label = strings.Join(labels, glyph)
		}
		resolved[k] = label
		return label
	}

	labels := make([]string, len(rows))
	for i := range rows {
		labels[i] = resolve(i)
	}
	for i := range rows {
		rows[i].Label = labels[i]
	}
	return rows
}

// Describe prepends the description of each row's operation kind to its metadata.
func Describe(rows []model.Row, describe func(kind string) (string, bool)) []model.Row {
	for i := range rows {
		desc, ok := describe(rows[i].OperationType)
		if !ok || desc == "" {
			continue
		}
		text := "Description: " + desc
		if rows[i].LabelMetadata != "" {
			text += "\n" + rows[i].LabelMetadata
		}
		rows[i].LabelMetadata = text
	}
	return rows
}

// SelfMetric stores into self the part of cumulative not already accounted for by the
// row's inputs: the row's value minus the largest value among its children. Rows
// without the cumulative metric are skipped.
func SelfMetric(rows []model.Row, cumulative, self string) []model.Row {
	idx := NewIndex(rows)
	values := make([]float64, len(rows))
	present := make([]bool, len(rows))
	for i, row := range rows {
		values[i], present[i] = row.Metric(cumulative)
	}
	for i := range rows {
		if !present[i] {
			continue
		}
		childMax := math.Inf(-1)
		for _, c := range idx.Children(rows[i]) {
			if present[c] {
				childMax = max(childMax, values[c])
			}
		}
		v := values[i]
		if !math.IsInf(childMax, -1) {
			v -= childMax
		}
		if v < 0 {
			v = 0
		}
		setMetric(&rows[i], self, v)
	}
	return rows
}

// Percent stores self as a percentage of its query's total, where the total is the
// largest cumulative value reported in that query.
func Percent(rows []model.Row, self, cumulative, out string) []model.Row {
	totals := map[string]float64{}
	for _, row := range rows {
		if v, ok := row.Metric(cumulative); ok {
			totals[row.QueryHash] = max(totals[row.QueryHash], v)
		}
	}
	for i := range rows {
		v, ok := rows[i].Metric(self)
		if !ok {
			continue
		}
		total := totals[rows[i].QueryHash]
		if total <= 0 {
			setMetric(&rows[i], out, 0)
			continue
		}
		setMetric(&rows[i], out, v/total*100)
	}
	return rows
}

// Ratio stores max(a, b) / min(a, b). The ratio is 1 when both match and is left out
// when exactly one of them is zero.
func Ratio(rows []model.Row, a, b, out string) []model.Row {
	for i := range rows {
		va, okA := rows[i].Metric(a)
		vb, okB := rows[i].Metric(b)
		if !okA || !okB {
			continue
		}
		switch {
		case va == vb:
			setMetric(&rows[i], out, 1)
		case va == 0 || vb == 0:
		default:
			setMetric(&rows[i], out, max(va, vb)/min(va, vb))
		}
	}
	return rows
}

// MarkRedundant flags rows of the given kinds whose distinct inputs add up to exactly the
// rows they produce: the operation filtered or deduplicated nothing.
func MarkRedundant(rows []model.Row, metric string, kinds ...string) []model.Row {
	wanted := map[string]struct{}{}
	for _, kind := range kinds {
		wanted[kind] = struct{}{}
	}
	idx := NewIndex(rows)
	for i := range rows {
		if _, ok := wanted[rows[i].OperationType]; !ok {
			continue
		}
		own, ok := rows[i].Metric(metric)
		if !ok {
			continue
		}
		children := idx.Inputs(rows[i])
		if len(children) == 0 {
			continue
		}
		var sum float64
		for _, c := range children {
			v, _ := rows[c].Metric(metric)
			sum += v
		}
		rows[i].Redundant = sum == own
	}
	return rows
}

func setMetric(row *model.Row, name string, v float64) {
	if row.Metrics == nil {
		row.Metrics = model.Metrics{}
	}
	row.Metrics[name] = v
}
