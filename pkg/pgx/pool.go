package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrNoConnString = errors.New("pgx: connection string is empty")

// PoolOptions tunes NewPool. Zero values keep pgxpool defaults.
type PoolOptions struct {
	Logger *zap.Logger
	// MaxConns caps the pool size.
	MaxConns int32
	// ConnectTimeout bounds the total time spent waiting for the first successful ping.
	ConnectTimeout time.Duration
}

// NewPool creates a *pgxpool.Pool from connString and pings it, retrying with
// exponential backoff until ConnectTimeout elapses or ctx is done.
func NewPool(ctx context.Context, connString string, opts PoolOptions) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, ErrNoConnString
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("pgx: parse config: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = opts.ConnectTimeout
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = 30 * time.Second
	}

	ping := func() error {
		return pool.Ping(ctx)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("database not reachable, retrying",
			zap.String("host", cfg.ConnConfig.Host),
			zap.Duration("retry_in", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping connection: %w", err)
	}

	logger.Info("connected to database",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database))
	return pool, nil
}
