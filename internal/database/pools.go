package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rickgao/mist-signaling/internal/config"
)

// Pools holds the storage connections enabled for a relay process.
// Either field may be nil.
type Pools struct {
	Postgres *pgxpool.Pool
	Mongo    *mongo.Client
}

// NewPools connects to each backend enabled in cfg.
func NewPools(ctx context.Context, cfg config.EvaluationConfig) (*Pools, error) {
	p := &Pools{}

	if cfg.Postgres.Enabled {
		pg, err := Connect(ctx, cfg.Postgres.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		p.Postgres = pg
	}

	if cfg.Mongo.Enabled {
		mc, err := ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			p.Close(ctx)
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		p.Mongo = mc
	}

	return p, nil
}

// Connect creates a single PostgreSQL connection pool.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Close releases every open connection.
func (p *Pools) Close(ctx context.Context) {
	if p.Postgres != nil {
		p.Postgres.Close()
	}
	if p.Mongo != nil {
		_ = p.Mongo.Disconnect(ctx)
	}
}

// Ping verifies the enabled connections are healthy.
func (p *Pools) Ping(ctx context.Context) error {
	if p.Postgres != nil {
		if err := p.Postgres.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
	}
	if p.Mongo != nil {
		if err := p.Mongo.Ping(ctx, nil); err != nil {
			return fmt.Errorf("ping mongo: %w", err)
		}
	}
	return nil
}
