package runner

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

const (
	athenaScheme        = "athena"
	defaultPollInterval = 500 * time.Millisecond
)

// AthenaConfig locates the workgroup and catalog queries run in.
type AthenaConfig struct {
	Workgroup      string
	Region         string
	Database       string
	Catalog        string
	OutputLocation string
	PollInterval   time.Duration
}

// AthenaClient is the subset of the Athena API used to run EXPLAIN.
type AthenaClient interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

// Athena runs EXPLAIN through the Athena query API and waits for the result.
type Athena struct {
	client AthenaClient
	cfg    AthenaConfig
	opts   Options
}

// NewAthena builds a client from the default AWS credential chain.
func NewAthena(ctx context.Context, cfg AthenaConfig, opts Options) (*Athena, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "runner: load aws config")
	}
	return NewAthenaWithClient(athena.NewFromConfig(awsCfg), cfg, opts), nil
}

// NewAthenaWithClient wraps an existing client.
func NewAthenaWithClient(client AthenaClient, cfg AthenaConfig, opts Options) *Athena {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Athena{client: client, cfg: cfg, opts: opts}
}

func (a *Athena) Engine() string {
	return athenaScheme
}

// Explain starts EXPLAIN [ANALYZE] (FORMAT JSON), polls until the execution finishes and
// returns every result line joined by newlines.
func (a *Athena) Explain(ctx context.Context, sqlStatement string) ([]byte, error) {
	query, err := cleanQuery(sqlStatement)
	if err != nil {
		return nil, err
	}
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(AthenaStatement(query, a.opts)),
		WorkGroup:   aws.String(a.cfg.Workgroup),
	}
	if a.cfg.Database != "" || a.cfg.Catalog != "" {
		input.QueryExecutionContext = &types.QueryExecutionContext{}
		if a.cfg.Database != "" {
			input.QueryExecutionContext.Database = aws.String(a.cfg.Database)
		}
		if a.cfg.Catalog != "" {
			input.QueryExecutionContext.Catalog = aws.String(a.cfg.Catalog)
		}
	}
	if a.cfg.OutputLocation != "" {
		input.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(a.cfg.OutputLocation)}
	}

	started, err := a.client.StartQueryExecution(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "runner: start athena query")
	}
	id := aws.ToString(started.QueryExecutionId)
	logger := a.opts.logger()
	level.Debug(logger).Log("msg", "started athena query", "id", id, "workgroup", a.cfg.Workgroup)

	if err := a.wait(ctx, id); err != nil {
		return nil, err
	}

	var (
		lines []string
		token *string
	)
	for {
		out, err := a.client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(id),
			NextToken:        token,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "runner: athena results %s", id)
		}
		if out.ResultSet != nil {
			for _, row := range out.ResultSet.Rows {
				for _, datum := range row.Data {
					lines = append(lines, aws.ToString(datum.VarCharValue))
				}
			}
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		token = out.NextToken
	}

	payload := []byte(strings.Join(lines, "\n"))
	level.Info(logger).Log("msg", "fetched plan", "engine", athenaScheme, "analyze", a.opts.Analyze, "id", id, "bytes", len(payload))
	level.Debug(logger).Log("msg", "plan", "payload", string(payload))
	return payload, nil
}

func (a *Athena) wait(ctx context.Context, id string) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		out, err := a.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
		if err != nil {
			return errors.Wrapf(err, "runner: athena status %s", id)
		}
		if out.QueryExecution != nil && out.QueryExecution.Status != nil {
			status := out.QueryExecution.Status
			switch status.State {
			case types.QueryExecutionStateSucceeded:
				return nil
			case types.QueryExecutionStateFailed, types.QueryExecutionStateCancelled:
				return errors.Errorf("runner: athena query %s %s: %s",
					id, strings.ToLower(string(status.State)), aws.ToString(status.StateChangeReason))
			}
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "runner: athena query %s", id)
		case <-ticker.C:
		}
	}
}

// AthenaStatement prefixes query with the EXPLAIN options matching opts.
func AthenaStatement(query string, opts Options) string {
	if opts.Analyze {
		return "EXPLAIN ANALYZE (FORMAT JSON) " + query
	}
	return "EXPLAIN (FORMAT JSON) " + query
}
