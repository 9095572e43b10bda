package runner

import (
	"context"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Postgres runs EXPLAIN against a PostgreSQL server.
type Postgres struct {
	dsn  string
	opts Options
}

// NewPostgres returns a source for dsn. No connection is made until Explain.
func NewPostgres(dsn string, opts Options) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("runner: empty DSN")
	}
	return &Postgres{dsn: dsn, opts: opts}, nil
}

func (p *Postgres) Engine() string {
	return "postgres"
}

// Explain executes EXPLAIN (..., FORMAT JSON) for the provided SQL statement.
func (p *Postgres) Explain(ctx context.Context, sqlStatement string) ([]byte, error) {
	query, err := cleanQuery(sqlStatement)
	if err != nil {
		return nil, err
	}
	explainSQL := PostgresStatement(query, p.opts)

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		return nil, errors.Wrap(err, "runner: connect")
	}
	defer conn.Close(ctx)

	var payload []byte
	if err := conn.QueryRow(ctx, explainSQL).Scan(&payload); err != nil {
		return nil, errors.Wrap(err, "runner: query")
	}

	logger := p.opts.logger()
	level.Info(logger).Log("msg", "fetched plan", "engine", "postgres", "analyze", p.opts.Analyze, "bytes", len(payload))
	level.Debug(logger).Log("msg", "plan", "payload", string(payload))
	return payload, nil
}

// PostgresStatement prefixes query with the EXPLAIN options matching opts.
func PostgresStatement(query string, opts Options) string {
	options := []string{"COSTS"}
	if opts.Analyze {
		options = []string{"ANALYZE", "COSTS"}
	}
	if opts.Verbose {
		options = append(options, "VERBOSE")
	}
	if opts.Analyze {
		options = append(options, "BUFFERS")
	}
	options = append(options, "FORMAT JSON")
	return "EXPLAIN (" + strings.Join(options, ", ") + ") " + query
}
