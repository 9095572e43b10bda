package runner_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/queryflow/internal/runner"
)

func TestPostgresStatement(t *testing.T) {
	tests := []struct {
		name string
		opts runner.Options
		want string
	}{
		{name: "analyze", opts: runner.Options{Analyze: true, Verbose: true}, want: "EXPLAIN (ANALYZE, COSTS, VERBOSE, BUFFERS, FORMAT JSON) SELECT 1"},
		{name: "estimate", opts: runner.Options{Verbose: true}, want: "EXPLAIN (COSTS, VERBOSE, FORMAT JSON) SELECT 1"},
		{name: "terse", opts: runner.Options{}, want: "EXPLAIN (COSTS, FORMAT JSON) SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runner.PostgresStatement("SELECT 1", tt.opts))
		})
	}
}

func TestAthenaStatement(t *testing.T) {
	assert.Equal(t, "EXPLAIN ANALYZE (FORMAT JSON) SELECT 1", runner.AthenaStatement("SELECT 1", runner.Options{Analyze: true}))
	assert.Equal(t, "EXPLAIN (FORMAT JSON) SELECT 1", runner.AthenaStatement("SELECT 1", runner.Options{}))
}

func TestParseAthenaDescriptor(t *testing.T) {
	cfg, err := runner.ParseAthenaDescriptor("athena://analytics?region=eu-west-1&database=tpch&catalog=awsdatacatalog&output=s3://bucket/results/&poll=2s")
	require.NoError(t, err)
	assert.Equal(t, runner.AthenaConfig{
		Workgroup:      "analytics",
		Region:         "eu-west-1",
		Database:       "tpch",
		Catalog:        "awsdatacatalog",
		OutputLocation: "s3://bucket/results/",
		PollInterval:   2 * time.Second,
	}, cfg)

	cfg, err = runner.ParseAthenaDescriptor("athena://?region=us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Workgroup)

	_, err = runner.ParseAthenaDescriptor("athena://wg?poll=often")
	require.Error(t, err)
	_, err = runner.ParseAthenaDescriptor("postgres://localhost/db")
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	_, err := runner.Open(context.Background(), "  ", runner.Options{})
	require.Error(t, err)

	src, err := runner.Open(context.Background(), "postgres://user@localhost:5432/app", runner.Options{})
	require.NoError(t, err)
	assert.Equal(t, "postgres", src.Engine())
}

func TestPostgresRejectsEmptyQuery(t *testing.T) {
	src, err := runner.NewPostgres("postgres://localhost/db", runner.Options{})
	require.NoError(t, err)

	_, err = src.Explain(context.Background(), "  ; ")
	require.Error(t, err)

	_, err = runner.NewPostgres("", runner.Options{})
	require.Error(t, err)
}

type fakeAthena struct {
	mu       sync.Mutex
	started  *athena.StartQueryExecutionInput
	states   []types.QueryExecutionState
	reason   string
	pages    [][]string
	polls    int
	pageRead int
}

func (f *fakeAthena) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = in
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("qid-1")}, nil
}

func (f *fakeAthena) GetQueryExecution(_ context.Context, in *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if aws.ToString(in.QueryExecutionId) != "qid-1" {
		return nil, errors.New("unknown query")
	}
	state := f.states[len(f.states)-1]
	if f.polls < len(f.states) {
		state = f.states[f.polls]
	}
	f.polls++
	return &athena.GetQueryExecutionOutput{QueryExecution: &types.QueryExecution{
		Status: &types.QueryExecutionStatus{State: state, StateChangeReason: aws.String(f.reason)},
	}}, nil
}

func (f *fakeAthena) GetQueryResults(_ context.Context, in *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := f.pageRead
	f.pageRead++

	var rows []types.Row
	for _, line := range f.pages[page] {
		rows = append(rows, types.Row{Data: []types.Datum{{VarCharValue: aws.String(line)}}})
	}
	out := &athena.GetQueryResultsOutput{ResultSet: &types.ResultSet{Rows: rows}}
	if page+1 < len(f.pages) {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func TestAthenaExplainPollsAndPaginates(t *testing.T) {
	client := &fakeAthena{
		states: []types.QueryExecutionState{
			types.QueryExecutionStateQueued,
			types.QueryExecutionStateRunning,
			types.QueryExecutionStateSucceeded,
		},
		pages: [][]string{{"Query Plan", "{"}, {`"0": {"name": "Output"}`, "}"}},
	}
	src := runner.NewAthenaWithClient(client, runner.AthenaConfig{
		Workgroup:      "analytics",
		Database:       "tpch",
		OutputLocation: "s3://bucket/out/",
		PollInterval:   time.Millisecond,
	}, runner.Options{Analyze: true})

	payload, err := src.Explain(context.Background(), "SELECT * FROM orders;")
	require.NoError(t, err)

	assert.Equal(t, "Query Plan\n{\n\"0\": {\"name\": \"Output\"}\n}", string(payload))
	assert.Equal(t, 3, client.polls)
	assert.Equal(t, 2, client.pageRead)
	assert.Equal(t, "EXPLAIN ANALYZE (FORMAT JSON) SELECT * FROM orders", aws.ToString(client.started.QueryString))
	assert.Equal(t, "analytics", aws.ToString(client.started.WorkGroup))
	assert.Equal(t, "tpch", aws.ToString(client.started.QueryExecutionContext.Database))
	assert.Nil(t, client.started.QueryExecutionContext.Catalog)
	assert.Equal(t, "s3://bucket/out/", aws.ToString(client.started.ResultConfiguration.OutputLocation))
	assert.Equal(t, "athena", src.Engine())
}

func TestAthenaExplainFailedQuery(t *testing.T) {
	client := &fakeAthena{
		states: []types.QueryExecutionState{types.QueryExecutionStateFailed},
		reason: "SYNTAX_ERROR: line 1:8",
	}
	src := runner.NewAthenaWithClient(client, runner.AthenaConfig{Workgroup: "primary", PollInterval: time.Millisecond}, runner.Options{})

	_, err := src.Explain(context.Background(), "SELEC 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, err.Error(), "SYNTAX_ERROR")
	assert.Equal(t, 0, client.pageRead)
}

func TestAthenaExplainTimeout(t *testing.T) {
	client := &fakeAthena{states: []types.QueryExecutionState{types.QueryExecutionStateRunning}}
	src := runner.NewAthenaWithClient(client, runner.AthenaConfig{PollInterval: time.Millisecond}, runner.Options{Timeout: 20 * time.Millisecond})

	_, err := src.Explain(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
