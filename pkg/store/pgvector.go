package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/vecingest/internal/types"
)

type PgVectorConfig struct {
	ConnString string
}

// PgVector stores each collection as a table with a vector column.
type PgVector struct {
	config PgVectorConfig
	pool   *pgxpool.Pool
}

var _ types.VectorStore = (*PgVector)(nil)

func NewPgVector(ctx context.Context, config PgVectorConfig) (*PgVector, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &PgVector{
		config: config,
		pool:   pool,
	}, nil
}

func (vs *PgVector) CollectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := vs.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", pgx.Identifier{name}.Sanitize()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up table: %w", err)
	}
	return exists, nil
}

func (vs *PgVector) CreateCollection(ctx context.Context, spec types.CollectionSpec) error {
	if spec.VectorDim <= 0 {
		return ErrVectorConfigRequired
	}
	ops, err := pgvectorOps(spec.Distance)
	if err != nil {
		return err
	}

	table := pgx.Identifier{spec.Name}.Sanitize()
	index := pgx.Identifier{spec.Name + "_embedding_idx"}.Sanitize()

	// Enable pgvector extension
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload JSONB,
			shard_key TEXT
		)`, table, spec.VectorDim)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING hnsw (embedding %s)`,
		index, table, ops)
	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Upsert writes the whole batch in a single transaction.
func (vs *PgVector) Upsert(ctx context.Context, req types.UpsertRequest) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, payload, shard_key)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload,
			shard_key = EXCLUDED.shard_key`,
		pgx.Identifier{req.Collection}.Sanitize())

	for _, p := range req.Points {
		_, err := tx.Exec(ctx, stmt,
			p.ID,
			pgvector.NewVector(p.Vector),
			p.Payload,
			req.ShardKey,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (vs *PgVector) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

func pgvectorOps(d types.Distance) (string, error) {
	switch d {
	case types.DistanceCosine:
		return "vector_cosine_ops", nil
	case types.DistanceEuclid:
		return "vector_l2_ops", nil
	case types.DistanceDot:
		return "vector_ip_ops", nil
	case types.DistanceManhattan:
		return "vector_l1_ops", nil
	}
	return "", fmt.Errorf("%w: distance %q", ErrVectorConfigRequired, d)
}
