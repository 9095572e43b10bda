package config

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds parser defaults, rendering choices and tunable thresholds for insight
// scoring and diff reporting.
type Config struct {
	Parser   ParserConfig  `yaml:"parser"`
	Render   RenderConfig  `yaml:"render"`
	Insights InsightConfig `yaml:"insights"`
	Diff     DiffConfig    `yaml:"diff"`
}

// ParserConfig sets the flow builder defaults. Command line flags override them.
type ParserConfig struct {
	Compact bool `yaml:"compact"`
	Verbose bool `yaml:"verbose"`
	StartID int  `yaml:"start_id"`
}

// RenderConfig controls the Sankey output.
type RenderConfig struct {
	Height         string            `yaml:"height"`
	Width          string            `yaml:"width"`
	NodeGap        int               `yaml:"node_gap"`
	DefaultMetrics []string          `yaml:"default_metrics"`
	NodeColors     map[string]string `yaml:"node_colors"`
	LinkColors     LinkColors        `yaml:"link_colors"`
	// MetricPalette colors the links of each metric when several are drawn together.
	MetricPalette []string          `yaml:"metric_palette"`
	Units         map[string]string `yaml:"units"`
}

// LinkColors colors a link by its class.
type LinkColors struct {
	Default   string `yaml:"default"`
	Empty     string `yaml:"empty"`
	Redundant string `yaml:"redundant"`
}

// NodeColor returns the configured color for kind, or "" when there is none.
func (r RenderConfig) NodeColor(kind string) string {
	return r.NodeColors[kind]
}

// Unit returns the display unit of metric, or "" when unknown.
func (r RenderConfig) Unit(metric string) string {
	return r.Units[metric]
}

// InsightConfig defines thresholds for insight generation.
type InsightConfig struct {
	// Share of the query's self time (0-100) above which an operation is a hot spot.
	HotspotCriticalPercent float64 `yaml:"hotspot_critical_percent"`
	HotspotWarningPercent  float64 `yaml:"hotspot_warning_percent"`
	// Actual/planned row ratio above which the estimate is reported as off.
	RowEstimateWarningRatio  float64 `yaml:"row_estimate_warning_ratio"`
	RowEstimateCriticalRatio float64 `yaml:"row_estimate_critical_ratio"`
	SpillTempBlocks          float64 `yaml:"spill_temp_blocks"`
	BufferWarningBlocks      float64 `yaml:"buffer_warning_blocks"`
	BufferCriticalBlocks     float64 `yaml:"buffer_critical_blocks"`
	MaxItems                 int     `yaml:"max_items"`
}

// DiffConfig defines thresholds for diff summaries.
type DiffConfig struct {
	MinSelfDeltaMs   float64 `yaml:"min_self_delta_ms"`
	MinPercentChange float64 `yaml:"min_percent_change"`
	MaxItems         int     `yaml:"max_items"`
	CriticalDeltaMs  float64 `yaml:"critical_delta_ms"`
	WarningDeltaMs   float64 `yaml:"warning_delta_ms"`
}

var (
	mu     sync.RWMutex
	active = Default()
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Parser: ParserConfig{
			StartID: 10000,
		},
		Render: RenderConfig{
			Height:         "750px",
			Width:          "1400px",
			NodeGap:        24,
			DefaultMetrics: []string{"actual_rows", "plan_rows"},
			NodeColors: map[string]string{
				"Aggregate":     "purple",
				"HashAggregate": "purple",
				"Having":        "mediumpurple",
				"Hash Join":     "mediumseagreen",
				"Merge Join":    "mediumseagreen",
				"Nested Loop":   "mediumseagreen",
				"Append":        "olivedrab",
				"Seq Scan":      "blue",
				"Limit":         "khaki",
				"Where":         "deepskyblue",
			},
			LinkColors: LinkColors{
				Default:   "silver",
				Empty:     "red",
				Redundant: "coral",
			},
			MetricPalette: []string{"gainsboro", "darkgray", "dimgray", "slategray", "darkslategray"},
			Units: map[string]string{
				"actual_rows":             "Rows",
				"plan_rows":               "Rows",
				"actual_startup_duration": "ms",
				"actual_duration":         "ms",
				"actual_duration_pct":     "Percent",
				"estimated_cost":          "Units",
				"estimated_cost_pct":      "Percent",
				"nodeCpuTime":             "Seconds",
				"nodeCpuFraction":         "Percent",
				"nodeOutputRows":          "Rows",
				"nodeOutputDataSize":      "Bytes",
			},
		},
		Insights: InsightConfig{
			HotspotCriticalPercent:   40,
			HotspotWarningPercent:    20,
			RowEstimateWarningRatio:  10,
			RowEstimateCriticalRatio: 100,
			SpillTempBlocks:          1,
			BufferWarningBlocks:      5000,
			BufferCriticalBlocks:     50000,
			MaxItems:                 10,
		},
		Diff: DiffConfig{
			MinSelfDeltaMs:   2.0,
			MinPercentChange: 5.0,
			MaxItems:         8,
			CriticalDeltaMs:  10.0,
			WarningDeltaMs:   5.0,
		},
	}
}

// Active returns the currently applied configuration.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Use replaces the active configuration.
func Use(cfg Config) {
	mu.Lock()
	active = cfg
	mu.Unlock()
}

// Load reads a YAML (or JSON) file on top of the defaults. Maps replace the defaults
// key by key.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Apply loads configuration from the provided path. Empty path resets to default.
func Apply(path string) error {
	if path == "" {
		Use(Default())
		return nil
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	Use(cfg)
	return nil
}
