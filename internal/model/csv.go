package model

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var csvHeader = []string{
	"source", "target", "operation_type", "label", "label_metadata",
	"node_hash", "query_hash", "fragment_id", "redundant",
}

// WriteCSV writes the graph as one CSV record per row. Metric columns follow the fixed
// columns in MetricNames order; metrics a row did not report are left empty.
func (g *Graph) WriteCSV(w io.Writer) error {
	if g == nil {
		return errors.New("csv: nil graph")
	}
	metrics := g.MetricNames()
	cw := csv.NewWriter(w)

	header := append(append([]string(nil), csvHeader...), metrics...)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "csv: write header")
	}

	for _, row := range g.Rows {
		record := []string{
			strconv.Itoa(row.Source),
			strconv.Itoa(row.Target),
			row.OperationType,
			row.Label,
			row.LabelMetadata,
			row.NodeHash,
			row.QueryHash,
			strings.TrimSpace(row.FragmentID),
			strconv.FormatBool(row.Redundant),
		}
		for _, name := range metrics {
			v, ok := row.Metric(name)
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "csv: write row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "csv: flush")
}
