package athena

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Metric names, as Athena reports them under distributedNodeStats.
const (
	MetricCPUTime        = "nodeCpuTime"
	MetricCPUFraction    = "nodeCpuFraction"
	MetricOutputRows     = "nodeOutputRows"
	MetricOutputDataSize = "nodeOutputDataSize"
)

var reportedMetrics = []struct {
	name  string
	parse func(string) (float64, error)
}{
	{MetricCPUTime, parseSeconds},
	{MetricCPUFraction, parsePercent},
	{MetricOutputRows, parseRows},
	{MetricOutputDataSize, parseDataSize},
}

// parseSeconds reads durations such as "31.98s", "120.00us" or "1.50d".
func parseSeconds(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		v, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "cpu time %q", s)
		}
		return v * 24 * 60 * 60, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "cpu time %q", s)
	}
	return d.Seconds(), nil
}

// parsePercent reads "0.78%" as 0.78.
func parsePercent(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "cpu fraction %q", s)
	}
	return v, nil
}

// parseRows reads "9202005 rows".
func parseRows(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "rows")), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "output rows %q", s)
	}
	return v, nil
}

// parseDataSize reads sizes such as "360.19MB" as bytes. Athena prints binary units
// with SI names, so "kB" is 1024 bytes.
func parseDataSize(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && strings.HasSuffix(s, "B") && strings.ContainsRune("kKMGTP", rune(s[len(s)-2])) {
		s = s[:len(s)-1] + "iB"
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "output data size %q", s)
	}
	return float64(v), nil
}
