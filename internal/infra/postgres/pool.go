package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// PoolOptions bound how long a request may wait on an unreachable database.
type PoolOptions struct {
	MaxConns       int
	ConnectTimeout time.Duration
	// StatementTimeout is enforced server side via statement_timeout.
	StatementTimeout time.Duration
}

// NewPool builds a lazily connecting pool: the process may start before the
// database is reachable and every operation fails within ConnectTimeout until it is.
func NewPool(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	if opts.StatementTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}
	cfg.LazyConnect = true
	return pgxpool.ConnectConfig(ctx, cfg)
}
