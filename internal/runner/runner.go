package runner

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

// Options customises how EXPLAIN is executed.
type Options struct {
	// Analyze executes the query to collect runtime metrics. Without it only the
	// planner's estimates are returned.
	Analyze bool
	// Verbose asks PostgreSQL for output columns and schema-qualified names.
	Verbose bool
	Timeout time.Duration
	Logger  log.Logger
}

func (o Options) logger() log.Logger {
	if o.Logger == nil {
		return log.NewNopLogger()
	}
	return o.Logger
}

// Source fetches execution plans.
type Source interface {
	// Engine names the plan format the source returns.
	Engine() string
	// Explain returns the raw plan document for query.
	Explain(ctx context.Context, query string) ([]byte, error)
}

// Open returns the source for a connection descriptor: a PostgreSQL DSN
// (postgres://...) or athena://<workgroup>?region=..&database=..&catalog=..&output=s3://...
func Open(ctx context.Context, descriptor string, opts Options) (Source, error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return nil, errors.New("runner: empty connection descriptor")
	}
	if strings.HasPrefix(descriptor, athenaScheme+"://") {
		cfg, err := ParseAthenaDescriptor(descriptor)
		if err != nil {
			return nil, err
		}
		src, err := NewAthena(ctx, cfg, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := NewPostgres(descriptor, opts)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func cleanQuery(sqlStatement string) (string, error) {
	query := strings.TrimSpace(sqlStatement)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	if query == "" {
		return "", errors.New("runner: empty sql statement")
	}
	return query, nil
}

// ParseAthenaDescriptor reads an athena:// descriptor.
func ParseAthenaDescriptor(descriptor string) (AthenaConfig, error) {
	u, err := url.Parse(descriptor)
	if err != nil {
		return AthenaConfig{}, errors.Wrap(err, "runner: parse athena descriptor")
	}
	if u.Scheme != athenaScheme {
		return AthenaConfig{}, errors.Errorf("runner: unexpected scheme %q", u.Scheme)
	}
	q := u.Query()
	cfg := AthenaConfig{
		Workgroup:      u.Host,
		Region:         q.Get("region"),
		Database:       q.Get("database"),
		Catalog:        q.Get("catalog"),
		OutputLocation: q.Get("output"),
	}
	if cfg.Workgroup == "" {
		cfg.Workgroup = "primary"
	}
	if v := q.Get("poll"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return AthenaConfig{}, errors.Wrap(err, "runner: athena poll interval")
		}
		cfg.PollInterval = d
	}
	return cfg, nil
}
