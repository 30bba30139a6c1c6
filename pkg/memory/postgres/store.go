package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// Compile-time interface checks.
var (
	_ memory.VectorIndex = (*VectorStore)(nil)
	_ memory.GraphStore  = (*GraphDB)(nil)
)

// Store bundles the vector and graph gateways over a single PostgreSQL
// connection pool. Ingestion, retrieval, temporal, evolution and analytics
// components depend on the narrower [memory.VectorIndex]/[memory.GraphStore]
// interfaces rather than *Store directly, so alternative backends can be
// substituted in tests.
type Store struct {
	pool   *pgxpool.Pool
	vector *VectorStore
	graph  *GraphDB
}

// NewStore opens a connection pool to dsn, registers pgvector types on every
// connection, and runs [Migrate].
//
// embeddingDimensions must match the output dimension of the configured
// embedding provider (384 or 1024 per the two supported tiers).
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:   pool,
		vector: &VectorStore{pool: pool},
		graph:  &GraphDB{pool: pool},
	}, nil
}

// Vector returns the gateway satisfying [memory.VectorIndex].
func (s *Store) Vector() *VectorStore { return s.vector }

// Graph returns the gateway satisfying [memory.GraphStore].
func (s *Store) Graph() *GraphDB { return s.graph }

// Ping probes the connection pool with a short-lived context; used by C3's
// availability cache and the /health readiness checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
