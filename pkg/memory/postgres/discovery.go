package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// UpsertForesight implements [memory.GraphStore].
func (g *GraphDB) UpsertForesight(ctx context.Context, f memory.Foresight) error {
	if f.ID != 0 {
		const q = `UPDATE foresight_signals SET activation = $2, expiry = $3, weight = $4 WHERE id = $1`
		if _, err := g.pool.Exec(ctx, q, f.ID, f.Activation, f.Expiry, f.Weight); err != nil {
			return fmt.Errorf("graph store: upsert foresight: %w", err)
		}
		return nil
	}
	const q = `INSERT INTO foresight_signals (entity, signal, activation, expiry, weight) VALUES ($1, $2, $3, $4, $5)`
	if _, err := g.pool.Exec(ctx, q, f.Entity, f.Signal, f.Activation, f.Expiry, f.Weight); err != nil {
		return fmt.Errorf("graph store: upsert foresight: %w", err)
	}
	return nil
}

// ActiveForesights implements [memory.GraphStore], returning signals whose
// expiry is unset or still in the future relative to now.
func (g *GraphDB) ActiveForesights(ctx context.Context, now time.Time) ([]memory.Foresight, error) {
	const q = `
		SELECT id, entity, signal, activation, expiry, weight
		FROM foresight_signals
		WHERE expiry IS NULL OR expiry > $1
		ORDER BY weight DESC`
	rows, err := g.pool.Query(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("graph store: active foresights: %w", err)
	}
	fs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Foresight, error) {
		var f memory.Foresight
		err := row.Scan(&f.ID, &f.Entity, &f.Signal, &f.Activation, &f.Expiry, &f.Weight)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("graph store: active foresights: scan: %w", err)
	}
	if fs == nil {
		fs = []memory.Foresight{}
	}
	return fs, nil
}

// DecayForesights implements [memory.GraphStore], multiplicatively reducing
// every foresight signal's weight and pruning ones that decay to near zero.
func (g *GraphDB) DecayForesights(ctx context.Context, amount float64) (int, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("graph store: decay foresights: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE foresight_signals SET weight = weight * (1 - $1)`, amount); err != nil {
		return 0, fmt.Errorf("graph store: decay foresights: update: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM foresight_signals WHERE weight < 0.01`)
	if err != nil {
		return 0, fmt.Errorf("graph store: decay foresights: prune: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("graph store: decay foresights: commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ReplaceDiscoveryCandidates implements [memory.GraphStore], wholesale
// replacing the precomputed candidate set after each C8 generate_candidates
// pass.
func (g *GraphDB) ReplaceDiscoveryCandidates(ctx context.Context, cands []memory.DiscoveryCandidate) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graph store: replace discovery candidates: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM discovery_candidates`); err != nil {
		return fmt.Errorf("graph store: replace discovery candidates: clear: %w", err)
	}

	const q = `
		INSERT INTO discovery_candidates (entity_a, entity_b, cand_type, bridge_score, community_a, community_b, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	batch := &pgx.Batch{}
	generatedAt := timeNow()
	for _, c := range cands {
		if !c.GeneratedAt.IsZero() {
			generatedAt = c.GeneratedAt
		}
		batch.Queue(q, c.EntityA, c.EntityB, string(c.Type), c.BridgeScore, c.CommunityA, c.CommunityB, generatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("graph store: replace discovery candidates: insert: %w", err)
	}
	return tx.Commit(ctx)
}

// DiscoveryCandidates implements [memory.GraphStore].
func (g *GraphDB) DiscoveryCandidates(ctx context.Context, limit int) ([]memory.DiscoveryCandidate, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT id, entity_a, entity_b, cand_type, bridge_score, community_a, community_b, generated_at
		FROM discovery_candidates ORDER BY bridge_score DESC LIMIT $1`
	rows, err := g.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("graph store: discovery candidates: %w", err)
	}
	cands, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.DiscoveryCandidate, error) {
		var c memory.DiscoveryCandidate
		var candType string
		err := row.Scan(&c.ID, &c.EntityA, &c.EntityB, &candType, &c.BridgeScore, &c.CommunityA, &c.CommunityB, &c.GeneratedAt)
		c.Type = memory.DiscoveryCandidateType(candType)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("graph store: discovery candidates: scan: %w", err)
	}
	if cands == nil {
		cands = []memory.DiscoveryCandidate{}
	}
	return cands, nil
}

// GraphStats implements [memory.GraphStore] for GET /graph_stats.
func (g *GraphDB) GraphStats(ctx context.Context) (entities, relationships int, err error) {
	const q = `SELECT (SELECT count(*) FROM entities), (SELECT count(*) FROM relationships)`
	if err := g.pool.QueryRow(ctx, q).Scan(&entities, &relationships); err != nil {
		return 0, 0, fmt.Errorf("graph store: graph stats: %w", err)
	}
	return entities, relationships, nil
}
