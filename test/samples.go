package test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mickamy/queryflow/internal/flow"
	"github.com/mickamy/queryflow/internal/model"
)

var (
	rootPath string
	once     sync.Once
)

// RootPath resolves the repository root (where go.mod resides).
func RootPath(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		for {
			if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
				rootPath = wd
				break
			}
			next := filepath.Dir(wd)
			if next == wd {
				t.Fatalf("go.mod not found from %s", wd)
			}
			wd = next
		}
	})
	return rootPath
}

// LoadSample reads a plan document relative to the samples directory.
func LoadSample(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(RootPath(t), "samples", rel))
	require.NoError(t, err, "read sample %s", rel)
	return data
}

// ParseSamples parses the given sample plans as one batch.
func ParseSamples(t *testing.T, engine flow.Engine, opts flow.Options, rels ...string) *model.Graph {
	t.Helper()
	p, err := flow.New(engine, opts)
	require.NoError(t, err)

	docs := make([][]byte, 0, len(rels))
	for _, rel := range rels {
		docs = append(docs, LoadSample(t, rel))
	}
	graph, err := p.ParseRaw(docs...)
	require.NoError(t, err, "parse samples %v", rels)
	return graph
}
