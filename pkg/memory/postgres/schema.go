// Package postgres provides the PostgreSQL + pgvector backed implementation
// of [memory.VectorIndex] and [memory.GraphStore].
//
// Both backends share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS. Graph traversal (Neighbors, FindPath) is
// expressed as recursive CTEs, and point-in-time temporal queries as plain
// valid_from/valid_to filters, rather than a separate graph engine, so the vector and graph halves of the substrate
// live in the same instance and can be joined in a single round trip when an
// operation needs both.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlEntities = `
CREATE TABLE IF NOT EXISTS entities (
    name         TEXT        PRIMARY KEY,
    display_name TEXT        NOT NULL,
    labels       TEXT[]      NOT NULL DEFAULT '{}',
    pagerank     DOUBLE PRECISION NOT NULL DEFAULT 0,
    community    INTEGER     NOT NULL DEFAULT -1,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_community ON entities (community);
`

const ddlRelationships = `
CREATE TABLE IF NOT EXISTS relationships (
    source_name TEXT        NOT NULL REFERENCES entities (name) ON DELETE CASCADE,
    target_name TEXT        NOT NULL REFERENCES entities (name) ON DELETE CASCADE,
    rel_type    TEXT        NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 1,
    provenance  TEXT        NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (source_name, target_name, rel_type),
    CHECK (source_name <> target_name)
);

CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships (source_name);
CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships (target_name);
CREATE INDEX IF NOT EXISTS idx_rel_type   ON relationships (rel_type);
`

const ddlEpisodes = `
CREATE TABLE IF NOT EXISTS episodes (
    id              TEXT        PRIMARY KEY,
    content_preview TEXT        NOT NULL,
    agent_id        TEXT        NOT NULL DEFAULT '',
    session_id      TEXT        NOT NULL DEFAULT '',
    source          TEXT        NOT NULL DEFAULT '',
    occurred_at     TIMESTAMPTZ NOT NULL,
    recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_episodes_occurred_at ON episodes (occurred_at);
CREATE INDEX IF NOT EXISTS idx_episodes_recorded_at ON episodes (recorded_at);

CREATE TABLE IF NOT EXISTS episode_mentions (
    episode_id  TEXT NOT NULL REFERENCES episodes (id) ON DELETE CASCADE,
    entity_name TEXT NOT NULL REFERENCES entities (name) ON DELETE CASCADE,
    PRIMARY KEY (episode_id, entity_name)
);
`

const ddlTemporalFacts = `
CREATE TABLE IF NOT EXISTS temporal_facts (
    id                  BIGSERIAL   PRIMARY KEY,
    subject             TEXT        NOT NULL REFERENCES entities (name) ON DELETE CASCADE,
    predicate           TEXT        NOT NULL,
    object              TEXT        NOT NULL REFERENCES entities (name) ON DELETE CASCADE,
    valid_from          TIMESTAMPTZ NOT NULL,
    valid_to            TIMESTAMPTZ,
    occurred_at         TIMESTAMPTZ NOT NULL,
    recorded_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    confidence          DOUBLE PRECISION NOT NULL DEFAULT 1,
    source_episode_id   TEXT        REFERENCES episodes (id) ON DELETE SET NULL,
    invalidation_reason TEXT        NOT NULL DEFAULT ''
);

-- Testable property 3 (temporal open-uniqueness): at most one open fact per
-- (subject, predicate). A partial unique index enforces it at the database
-- level in addition to the close-then-open transaction in CreateFact.
CREATE UNIQUE INDEX IF NOT EXISTS idx_temporal_open_unique
    ON temporal_facts (subject, predicate)
    WHERE valid_to IS NULL;

CREATE INDEX IF NOT EXISTS idx_temporal_valid_from  ON temporal_facts (valid_from);
CREATE INDEX IF NOT EXISTS idx_temporal_recorded_at ON temporal_facts (recorded_at);
CREATE INDEX IF NOT EXISTS idx_temporal_subject     ON temporal_facts (subject);
`

const ddlAccessForesightDiscovery = `
CREATE TABLE IF NOT EXISTS memory_access (
    memory_id      TEXT        PRIMARY KEY,
    access_count   INTEGER     NOT NULL DEFAULT 0,
    first_accessed TIMESTAMPTZ,
    last_accessed  TIMESTAMPTZ,
    decay_count    INTEGER     NOT NULL DEFAULT 0,
    last_decayed   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS foresight_signals (
    id         BIGSERIAL   PRIMARY KEY,
    entity     TEXT        NOT NULL REFERENCES entities (name) ON DELETE CASCADE,
    signal     TEXT        NOT NULL,
    activation TIMESTAMPTZ NOT NULL,
    expiry     TIMESTAMPTZ,
    weight     DOUBLE PRECISION NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_foresight_entity ON foresight_signals (entity);

CREATE TABLE IF NOT EXISTS discovery_candidates (
    id           BIGSERIAL   PRIMARY KEY,
    entity_a     TEXT        NOT NULL,
    entity_b     TEXT        NOT NULL,
    cand_type    TEXT        NOT NULL,
    bridge_score DOUBLE PRECISION NOT NULL,
    community_a  INTEGER     NOT NULL,
    community_b  INTEGER     NOT NULL,
    generated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// ddlMemoryPoints returns the Memory Point DDL with the embedding dimension
// baked into the vector column type (changing it after the first migration
// requires a manual schema update, same constraint pgvector always imposes).
func ddlMemoryPoints(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_points (
    id           TEXT        PRIMARY KEY,
    display      TEXT        NOT NULL,
    text         TEXT        NOT NULL,
    content_hash TEXT        NOT NULL,
    user_id      TEXT        NOT NULL,
    agent_id     TEXT        NOT NULL DEFAULT '',
    source       TEXT        NOT NULL DEFAULT '',
    session_id   TEXT        NOT NULL DEFAULT '',
    confidence   DOUBLE PRECISION NOT NULL DEFAULT 1,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    embedding    vector(%d),
    metadata     JSONB       NOT NULL DEFAULT '{}'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_points_user_hash
    ON memory_points (user_id, content_hash);

CREATE INDEX IF NOT EXISTS idx_points_user_agent ON memory_points (user_id, agent_id);
CREATE INDEX IF NOT EXISTS idx_points_created_at ON memory_points (created_at);

CREATE INDEX IF NOT EXISTS idx_points_embedding
    ON memory_points USING hnsw (embedding vector_cosine_ops);

CREATE INDEX IF NOT EXISTS idx_points_fts
    ON memory_points USING GIN (to_tsvector('english', text));
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables, indexes and extensions
// exist. It is idempotent and safe to call on every process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlMemoryPoints(embeddingDimensions),
		ddlEntities,
		ddlRelationships,
		ddlEpisodes,
		ddlTemporalFacts,
		ddlAccessForesightDiscovery,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
