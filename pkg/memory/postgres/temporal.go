package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// CreateEpisode implements [memory.GraphStore].
func (g *GraphDB) CreateEpisode(ctx context.Context, ep memory.Episode) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graph store: create episode: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	recordedAt := ep.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = timeNow()
	}
	const q = `
		INSERT INTO episodes (id, content_preview, agent_id, session_id, source, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, q, ep.ID, ep.ContentPreview, ep.AgentID, ep.SessionID, ep.Source, ep.OccurredAt, recordedAt); err != nil {
		return fmt.Errorf("graph store: create episode: %w", err)
	}

	if err := insertMentions(ctx, tx, ep.ID, ep.Mentions); err != nil {
		return fmt.Errorf("graph store: create episode: %w", err)
	}
	return tx.Commit(ctx)
}

// GetEpisodes implements [memory.GraphStore].
func (g *GraphDB) GetEpisodes(ctx context.Context, agentID string, window memory.TemporalWindow) ([]memory.Episode, error) {
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"TRUE"}
	if agentID != "" {
		conditions = append(conditions, "agent_id = "+next(agentID))
	}
	if window.Since != nil {
		conditions = append(conditions, "occurred_at >= "+next(*window.Since))
	}
	if window.Until != nil {
		conditions = append(conditions, "occurred_at <= "+next(*window.Until))
	}

	q := `SELECT id, content_preview, agent_id, session_id, source, occurred_at, recorded_at
		FROM episodes WHERE ` + join(conditions, " AND ") + ` ORDER BY occurred_at DESC`

	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: get episodes: %w", err)
	}
	eps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Episode, error) {
		var ep memory.Episode
		err := row.Scan(&ep.ID, &ep.ContentPreview, &ep.AgentID, &ep.SessionID, &ep.Source, &ep.OccurredAt, &ep.RecordedAt)
		return ep, err
	})
	if err != nil {
		return nil, fmt.Errorf("graph store: get episodes: scan: %w", err)
	}
	if eps == nil {
		eps = []memory.Episode{}
	}

	for i := range eps {
		mentions, err := g.mentionsFor(ctx, eps[i].ID)
		if err != nil {
			return nil, fmt.Errorf("graph store: get episodes: mentions: %w", err)
		}
		eps[i].Mentions = mentions
	}
	return eps, nil
}

func (g *GraphDB) mentionsFor(ctx context.Context, episodeID string) ([]string, error) {
	rows, err := g.pool.Query(ctx, `SELECT entity_name FROM episode_mentions WHERE episode_id = $1 ORDER BY entity_name`, episodeID)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// AddMentions implements [memory.GraphStore], attaching additional MENTIONS
// edges discovered by background entity extraction after an episode was
// recorded.
func (g *GraphDB) AddMentions(ctx context.Context, episodeID string, entities []string) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graph store: add mentions: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := insertMentions(ctx, tx, episodeID, entities); err != nil {
		return fmt.Errorf("graph store: add mentions: %w", err)
	}
	return tx.Commit(ctx)
}

func insertMentions(ctx context.Context, tx pgx.Tx, episodeID string, entities []string) error {
	if len(entities) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const q = `INSERT INTO episode_mentions (episode_id, entity_name) VALUES ($1, $2)
		ON CONFLICT (episode_id, entity_name) DO NOTHING`
	for _, name := range entities {
		batch.Queue(q, episodeID, name)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// CreateFact implements [memory.GraphStore]'s atomic close-then-open
// semantics: any currently open fact for (Subject, Predicate) is closed with
// ValidTo set to the new fact's ValidFrom before the new row is inserted, in
// a single transaction. The partial unique index on (subject, predicate)
// WHERE valid_to IS NULL guarantees this holds even under concurrent writers.
func (g *GraphDB) CreateFact(ctx context.Context, f memory.TemporalFact) (memory.TemporalFact, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return memory.TemporalFact{}, fmt.Errorf("graph store: create fact: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const closeQ = `
		UPDATE temporal_facts SET valid_to = $3
		WHERE subject = $1 AND predicate = $2 AND valid_to IS NULL`
	if _, err := tx.Exec(ctx, closeQ, f.Subject, f.Predicate, f.ValidFrom); err != nil {
		return memory.TemporalFact{}, fmt.Errorf("graph store: create fact: close prior: %w", err)
	}

	recordedAt := f.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = timeNow()
	}
	var sourceEpisodeID *string
	if f.SourceEpisodeID != "" {
		sourceEpisodeID = &f.SourceEpisodeID
	}

	const insertQ = `
		INSERT INTO temporal_facts
		    (subject, predicate, object, valid_from, valid_to, occurred_at, recorded_at, confidence, source_episode_id)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7, $8)
		RETURNING id, recorded_at`

	created := f
	created.RecordedAt = recordedAt
	created.ValidTo = nil
	err = tx.QueryRow(ctx, insertQ, f.Subject, f.Predicate, f.Object, f.ValidFrom, f.OccurredAt, recordedAt, f.Confidence, sourceEpisodeID).
		Scan(&created.ID, &created.RecordedAt)
	if err != nil {
		return memory.TemporalFact{}, fmt.Errorf("graph store: create fact: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return memory.TemporalFact{}, fmt.Errorf("graph store: create fact: commit: %w", err)
	}
	return created, nil
}

// InvalidateFact implements [memory.GraphStore], closing the open fact(s)
// matching (subject, predicate[, object]) without opening a replacement.
func (g *GraphDB) InvalidateFact(ctx context.Context, subject, predicate string, object *string, reason string) (int, error) {
	args := []any{subject, predicate, timeNow(), reason}
	q := `UPDATE temporal_facts SET valid_to = $3, invalidation_reason = $4
		WHERE subject = $1 AND predicate = $2 AND valid_to IS NULL`
	if object != nil {
		args = append(args, *object)
		q += fmt.Sprintf(" AND object = $%d", len(args))
	}
	tag, err := g.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("graph store: invalidate fact: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const factCols = `id, subject, predicate, object, valid_from, valid_to, occurred_at, recorded_at, confidence, COALESCE(source_episode_id, ''), invalidation_reason`

// FactsSince implements [memory.GraphStore], splitting results into facts
// recorded since the cutoff and facts invalidated since the cutoff.
func (g *GraphDB) FactsSince(ctx context.Context, since time.Time, entity string) (recorded, invalidated []memory.TemporalFact, err error) {
	recQ := `SELECT ` + factCols + ` FROM temporal_facts WHERE recorded_at >= $1`
	args := []any{since}
	if entity != "" {
		args = append(args, entity)
		recQ += " AND (subject = $2 OR object = $2)"
	}
	recQ += " ORDER BY recorded_at DESC"

	rows, err := g.pool.Query(ctx, recQ, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("graph store: facts since: recorded: %w", err)
	}
	recorded, err = collectFacts(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("graph store: facts since: recorded: %w", err)
	}

	invQ := `SELECT ` + factCols + ` FROM temporal_facts WHERE valid_to IS NOT NULL AND valid_to >= $1`
	invArgs := []any{since}
	if entity != "" {
		invArgs = append(invArgs, entity)
		invQ += " AND (subject = $2 OR object = $2)"
	}
	invQ += " ORDER BY valid_to DESC"

	rows, err = g.pool.Query(ctx, invQ, invArgs...)
	if err != nil {
		return nil, nil, fmt.Errorf("graph store: facts since: invalidated: %w", err)
	}
	invalidated, err = collectFacts(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("graph store: facts since: invalidated: %w", err)
	}
	return recorded, invalidated, nil
}

// WhatChanged implements [memory.GraphStore], splitting an entity's facts
// touched within window into the ones still active and the ones now closed.
func (g *GraphDB) WhatChanged(ctx context.Context, entity string, window memory.TemporalWindow) (active, historical []memory.TemporalFact, err error) {
	args := []any{entity}
	conditions := []string{"(subject = $1 OR object = $1)"}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if window.Since != nil {
		conditions = append(conditions, "occurred_at >= "+next(*window.Since))
	}
	if window.Until != nil {
		conditions = append(conditions, "occurred_at <= "+next(*window.Until))
	}

	activeQ := `SELECT ` + factCols + ` FROM temporal_facts WHERE valid_to IS NULL AND ` + join(conditions, " AND ") + ` ORDER BY occurred_at DESC`
	rows, err := g.pool.Query(ctx, activeQ, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("graph store: what changed: active: %w", err)
	}
	active, err = collectFacts(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("graph store: what changed: active: %w", err)
	}

	histQ := `SELECT ` + factCols + ` FROM temporal_facts WHERE valid_to IS NOT NULL AND ` + join(conditions, " AND ") + ` ORDER BY occurred_at DESC`
	rows, err = g.pool.Query(ctx, histQ, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("graph store: what changed: historical: %w", err)
	}
	historical, err = collectFacts(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("graph store: what changed: historical: %w", err)
	}
	return active, historical, nil
}

// FactsAtTime implements [memory.GraphStore], reconstructing which facts
// were open at a point-in-time using valid_from/valid_to (event-time
// validity), so `at_time` answers "what was true at t", not "what had the
// system ingested by t".
func (g *GraphDB) FactsAtTime(ctx context.Context, at time.Time, entity string) ([]memory.TemporalFact, error) {
	args := []any{at, at}
	q := `SELECT ` + factCols + ` FROM temporal_facts
		WHERE valid_from <= $1 AND (valid_to IS NULL OR valid_to > $2)`
	if entity != "" {
		args = append(args, entity)
		q += fmt.Sprintf(" AND (subject = $%d OR object = $%d)", len(args), len(args))
	}
	q += " ORDER BY occurred_at DESC"

	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: facts at time: %w", err)
	}
	return collectFacts(rows)
}

// TemporalStats implements [memory.GraphStore] for GET /graph_stats.
func (g *GraphDB) TemporalStats(ctx context.Context) (openFacts, closedFacts, episodes int, err error) {
	const q = `
		SELECT
		    (SELECT count(*) FROM temporal_facts WHERE valid_to IS NULL),
		    (SELECT count(*) FROM temporal_facts WHERE valid_to IS NOT NULL),
		    (SELECT count(*) FROM episodes)`
	if err := g.pool.QueryRow(ctx, q).Scan(&openFacts, &closedFacts, &episodes); err != nil {
		return 0, 0, 0, fmt.Errorf("graph store: temporal stats: %w", err)
	}
	return openFacts, closedFacts, episodes, nil
}

func collectFacts(rows pgx.Rows) ([]memory.TemporalFact, error) {
	facts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.TemporalFact, error) {
		var f memory.TemporalFact
		err := row.Scan(&f.ID, &f.Subject, &f.Predicate, &f.Object, &f.ValidFrom, &f.ValidTo,
			&f.OccurredAt, &f.RecordedAt, &f.Confidence, &f.SourceEpisodeID, &f.InvalidationReason)
		return f, err
	})
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = []memory.TemporalFact{}
	}
	return facts, nil
}
