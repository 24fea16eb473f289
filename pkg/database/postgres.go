// Package database holds connection constructors for the backing
// stores: client PostgreSQL datasources and the Redis result cache.
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/config"
)

// DB wraps a pgxpool connection pool to a client datasource.
type DB struct {
	*pgxpool.Pool
}

// PoolConfig tunes the datasource connection pool.
type PoolConfig struct {
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens a connection pool to a client datasource and verifies
// it with a ping. Connection failures come back as db_unavailable so
// the pipeline retries them.
func Connect(ctx context.Context, cc *config.ClientConfig, pc *PoolConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cc.ConnectionString())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfigMissing, "parse datasource config", err)
	}

	if pc == nil {
		pc = &PoolConfig{}
	}
	poolConfig.MaxConns = pc.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}
	poolConfig.MaxConnLifetime = pc.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}
	poolConfig.MaxConnIdleTime = pc.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDBUnavailable, "create connection pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(apperrors.KindDBUnavailable, "ping datasource", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
