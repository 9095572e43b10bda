package athena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeconds(t *testing.T) {
	tests := map[string]float64{
		"31.98s":   31.98,
		"120.00us": 0.00012,
		"2.50ms":   0.0025,
		"1.50m":    90,
		"2.00h":    7200,
		"1.50d":    129600,
		"3ns":      0.000000003,
	}
	for in, want := range tests {
		got, err := parseSeconds(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}

	_, err := parseSeconds("soon")
	require.Error(t, err)
}

func TestParseDataSize(t *testing.T) {
	tests := map[string]float64{
		"54B":    54,
		"1.5kB":  1536,
		"2MB":    2 * 1024 * 1024,
		"1GB":    1024 * 1024 * 1024,
		"0B":     0,
		"10 MiB": 10 * 1024 * 1024,
	}
	for in, want := range tests {
		got, err := parseDataSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseDataSize("lots")
	require.Error(t, err)
}

func TestParseRowsAndPercent(t *testing.T) {
	rows, err := parseRows("9202005 rows")
	require.NoError(t, err)
	assert.Equal(t, 9202005.0, rows)

	pct, err := parsePercent("93.10%")
	require.NoError(t, err)
	assert.InDelta(t, 93.1, pct, 1e-9)

	_, err = parseRows("many rows")
	require.Error(t, err)
}
