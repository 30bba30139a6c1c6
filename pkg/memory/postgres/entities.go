package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// GraphDB implements [memory.GraphStore] over the entity/relationship
// property graph plus its satellite tables, using recursive CTEs for
// traversal rather than a dedicated graph engine.
type GraphDB struct {
	pool *pgxpool.Pool
}

// UpsertEntity implements [memory.GraphStore].
func (g *GraphDB) UpsertEntity(ctx context.Context, e memory.Entity) error {
	const q = `
		INSERT INTO entities (name, display_name, labels, pagerank, community)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
		    display_name = EXCLUDED.display_name,
		    labels       = entities.labels || (
		        SELECT array_agg(DISTINCT l) FROM unnest(EXCLUDED.labels) AS l
		        WHERE l <> ALL(entities.labels)
		    )`
	community := e.Community
	if community == 0 {
		community = -1
	}
	if _, err := g.pool.Exec(ctx, q, e.Name, e.DisplayName, e.Labels, e.PageRank, community); err != nil {
		return fmt.Errorf("graph store: upsert entity %q: %w", e.Name, err)
	}
	return nil
}

// GetEntity implements [memory.GraphStore]. Returns (nil, nil) when absent.
func (g *GraphDB) GetEntity(ctx context.Context, name string) (*memory.Entity, error) {
	const q = `SELECT name, display_name, labels, pagerank, community FROM entities WHERE name = $1`
	rows, err := g.pool.Query(ctx, q, name)
	if err != nil {
		return nil, fmt.Errorf("graph store: get entity: %w", err)
	}
	ents, err := collectEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("graph store: get entity: %w", err)
	}
	if len(ents) == 0 {
		return nil, nil
	}
	return &ents[0], nil
}

// FindEntities implements [memory.GraphStore].
func (g *GraphDB) FindEntities(ctx context.Context, filter memory.EntityFilter) ([]memory.Entity, error) {
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"TRUE"}
	if filter.NameContains != "" {
		conditions = append(conditions, "(name ILIKE '%'||"+next(filter.NameContains)+"||'%' OR display_name ILIKE '%'||"+next(filter.NameContains)+"||'%')")
	}
	if filter.Community != nil {
		conditions = append(conditions, "community = "+next(*filter.Community))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := `SELECT name, display_name, labels, pagerank, community FROM entities
		WHERE ` + join(conditions, " AND ") + `
		ORDER BY pagerank DESC, name
		LIMIT ` + limitArg

	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: find entities: %w", err)
	}
	return collectEntities(rows)
}

// DeleteEntity implements [memory.GraphStore]. Cascades to relationships,
// episode mentions, temporal facts and foresight signals via FK ON DELETE
// CASCADE.
func (g *GraphDB) DeleteEntity(ctx context.Context, name string) error {
	if _, err := g.pool.Exec(ctx, `DELETE FROM entities WHERE name = $1`, name); err != nil {
		return fmt.Errorf("graph store: delete entity: %w", err)
	}
	return nil
}

// DeleteOrphanEntities implements [memory.GraphStore], removing entities with
// no relationships, temporal facts, or episode mentions. Used by background
// normalization after relationship rewrites.
func (g *GraphDB) DeleteOrphanEntities(ctx context.Context) (int, error) {
	const q = `
		DELETE FROM entities e
		WHERE NOT EXISTS (SELECT 1 FROM relationships r WHERE r.source_name = e.name OR r.target_name = e.name)
		  AND NOT EXISTS (SELECT 1 FROM temporal_facts f WHERE f.subject = e.name OR f.object = e.name)
		  AND NOT EXISTS (SELECT 1 FROM episode_mentions m WHERE m.entity_name = e.name)`
	tag, err := g.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("graph store: delete orphan entities: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpsertRelationship implements [memory.GraphStore].
func (g *GraphDB) UpsertRelationship(ctx context.Context, r memory.Relationship) error {
	const q = `
		INSERT INTO relationships (source_name, target_name, rel_type, confidence, provenance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_name, target_name, rel_type) DO UPDATE SET
		    confidence = GREATEST(relationships.confidence, EXCLUDED.confidence),
		    provenance = EXCLUDED.provenance`
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = timeNow()
	}
	if _, err := g.pool.Exec(ctx, q, r.Source, r.Target, string(r.Type), r.Confidence, r.Provenance, createdAt); err != nil {
		return fmt.Errorf("graph store: upsert relationship %s-%s->%s: %w", r.Source, r.Type, r.Target, err)
	}
	return nil
}

// GetRelationships implements [memory.GraphStore].
func (g *GraphDB) GetRelationships(ctx context.Context, entity string, opts ...memory.RelQueryOpt) ([]memory.Relationship, error) {
	relTypes, dirIn, dirOut, limit := memory.ApplyRelQueryOpts(opts)

	args := []any{entity}
	dirConds := []string{}
	if dirOut {
		dirConds = append(dirConds, "source_name = $1")
	}
	if dirIn {
		dirConds = append(dirConds, "target_name = $1")
	}

	conditions := []string{"(" + join(dirConds, " OR ") + ")"}
	if len(relTypes) > 0 {
		args = append(args, relTypes)
		conditions = append(conditions, fmt.Sprintf("rel_type = ANY($%d::text[])", len(args)))
	}

	q := `SELECT source_name, target_name, rel_type, confidence, provenance, created_at
		FROM relationships WHERE ` + join(conditions, " AND ") + ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: get relationships: %w", err)
	}
	return collectRelationships(rows)
}

// DeleteRelationship implements [memory.GraphStore].
func (g *GraphDB) DeleteRelationship(ctx context.Context, source, target string, relType memory.RelationType) error {
	const q = `DELETE FROM relationships WHERE source_name = $1 AND target_name = $2 AND rel_type = $3`
	if _, err := g.pool.Exec(ctx, q, source, target, string(relType)); err != nil {
		return fmt.Errorf("graph store: delete relationship: %w", err)
	}
	return nil
}

// AllRelationshipTypes implements [memory.GraphStore].
func (g *GraphDB) AllRelationshipTypes(ctx context.Context) ([]string, error) {
	rows, err := g.pool.Query(ctx, `SELECT DISTINCT rel_type FROM relationships ORDER BY rel_type`)
	if err != nil {
		return nil, fmt.Errorf("graph store: all relationship types: %w", err)
	}
	types, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("graph store: all relationship types: %w", err)
	}
	if types == nil {
		types = []string{}
	}
	return types, nil
}

// RewriteRelationshipType implements [memory.GraphStore], used by background
// normalization to fold a non-vocabulary edge type into its controlled
// vocabulary replacement.
func (g *GraphDB) RewriteRelationshipType(ctx context.Context, from string, to memory.RelationType) (int, error) {
	if from == string(to) {
		return 0, nil
	}
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("graph store: rewrite relationship type: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Merge rows that would collide on the (source, target, to) primary key,
	// keeping the higher confidence, then rewrite the rest in place.
	const mergeQ = `
		DELETE FROM relationships r1
		USING relationships r2
		WHERE r1.rel_type = $1 AND r2.rel_type = $2
		  AND r1.source_name = r2.source_name AND r1.target_name = r2.target_name
		  AND r1.confidence <= r2.confidence`
	if _, err := tx.Exec(ctx, mergeQ, from, string(to)); err != nil {
		return 0, fmt.Errorf("graph store: rewrite relationship type: merge: %w", err)
	}

	const rewriteQ = `UPDATE relationships SET rel_type = $2 WHERE rel_type = $1`
	tag, err := tx.Exec(ctx, rewriteQ, from, string(to))
	if err != nil {
		return 0, fmt.Errorf("graph store: rewrite relationship type: update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("graph store: rewrite relationship type: commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// AllRelationshipsForProjection implements [memory.GraphStore], returning the
// full edge set for C8's PageRank and Louvain projections.
func (g *GraphDB) AllRelationshipsForProjection(ctx context.Context) ([]memory.Relationship, error) {
	rows, err := g.pool.Query(ctx, `SELECT source_name, target_name, rel_type, confidence, provenance, created_at FROM relationships`)
	if err != nil {
		return nil, fmt.Errorf("graph store: all relationships for projection: %w", err)
	}
	return collectRelationships(rows)
}

// WriteScores implements [memory.GraphStore], persisting PageRank and
// community assignments computed by C8.
func (g *GraphDB) WriteScores(ctx context.Context, scores map[string]struct {
	PageRank  float64
	Community int
}) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graph store: write scores: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const q = `UPDATE entities SET pagerank = $2, community = $3 WHERE name = $1`
	batch := &pgx.Batch{}
	for name, s := range scores {
		batch.Queue(q, name, s.PageRank, s.Community)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("graph store: write scores: batch: %w", err)
	}
	return tx.Commit(ctx)
}

// Neighbors implements [memory.GraphStore] via a recursive CTE that expands
// outward up to depth hops, tracking visited names to prevent cycles.
func (g *GraphDB) Neighbors(ctx context.Context, entity string, depth int, opts ...memory.TraversalOpt) ([]memory.Entity, error) {
	relTypes, maxNodes := memory.ApplyTraversalOpts(opts)
	if depth <= 0 {
		depth = 1
	}
	if maxNodes <= 0 {
		maxNodes = 200
	}

	typeFilter := "TRUE"
	args := []any{entity, depth}
	if len(relTypes) > 0 {
		args = append(args, relTypes)
		typeFilter = fmt.Sprintf("r.rel_type = ANY($%d::text[])", len(args))
	}
	args = append(args, maxNodes)

	q := fmt.Sprintf(`
		WITH RECURSIVE reach(name, hop, visited) AS (
		    SELECT $1::text, 0, ARRAY[$1::text]
		    UNION ALL
		    SELECT CASE WHEN r.source_name = reach.name THEN r.target_name ELSE r.source_name END,
		           reach.hop + 1,
		           reach.visited || (CASE WHEN r.source_name = reach.name THEN r.target_name ELSE r.source_name END)
		    FROM relationships r
		    JOIN reach ON (r.source_name = reach.name OR r.target_name = reach.name)
		    WHERE reach.hop < $2
		      AND %s
		      AND NOT (CASE WHEN r.source_name = reach.name THEN r.target_name ELSE r.source_name END = ANY(reach.visited))
		)
		SELECT DISTINCT e.name, e.display_name, e.labels, e.pagerank, e.community
		FROM reach
		JOIN entities e ON e.name = reach.name
		WHERE reach.hop > 0
		LIMIT $%d`, typeFilter, len(args))

	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: neighbors: %w", err)
	}
	return collectEntities(rows)
}

// FindPath implements [memory.GraphStore] via a recursive CTE that tracks the
// full path array and returns the shortest one reaching `to`, along with the
// relationships connecting each hop.
func (g *GraphDB) FindPath(ctx context.Context, from, to string, maxDepth int) ([]memory.Entity, []memory.Relationship, error) {
	if maxDepth <= 0 {
		maxDepth = 6
	}

	const q = `
		WITH RECURSIVE search(name, path, rel_path, depth) AS (
		    SELECT $1::text, ARRAY[$1::text], ARRAY[]::text[], 0
		    UNION ALL
		    SELECT CASE WHEN r.source_name = search.name THEN r.target_name ELSE r.source_name END,
		           search.path || (CASE WHEN r.source_name = search.name THEN r.target_name ELSE r.source_name END),
		           search.rel_path || (r.source_name || '|' || r.target_name || '|' || r.rel_type),
		           search.depth + 1
		    FROM relationships r
		    JOIN search ON (r.source_name = search.name OR r.target_name = search.name)
		    WHERE search.depth < $3
		      AND NOT (CASE WHEN r.source_name = search.name THEN r.target_name ELSE r.source_name END = ANY(search.path))
		)
		SELECT path, rel_path FROM search WHERE name = $2 ORDER BY depth LIMIT 1`

	var path []string
	var relPath []string
	err := g.pool.QueryRow(ctx, q, from, to, maxDepth).Scan(&path, &relPath)
	if err != nil {
		if isNoRows(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("graph store: find path: %w", err)
	}

	entities, err := fetchEntitiesOrdered(ctx, g.pool, path)
	if err != nil {
		return nil, nil, fmt.Errorf("graph store: find path: entities: %w", err)
	}

	rels := make([]memory.Relationship, 0, len(relPath))
	for _, encoded := range relPath {
		parts := splitN3(encoded)
		if parts == nil {
			continue
		}
		rel, err := g.getRelationship(ctx, parts[0], parts[1], memory.RelationType(parts[2]))
		if err != nil {
			return nil, nil, fmt.Errorf("graph store: find path: relationship: %w", err)
		}
		if rel != nil {
			rels = append(rels, *rel)
		}
	}
	return entities, rels, nil
}

func (g *GraphDB) getRelationship(ctx context.Context, source, target string, relType memory.RelationType) (*memory.Relationship, error) {
	const q = `SELECT source_name, target_name, rel_type, confidence, provenance, created_at
		FROM relationships WHERE source_name = $1 AND target_name = $2 AND rel_type = $3`
	rows, err := g.pool.Query(ctx, q, source, target, string(relType))
	if err != nil {
		return nil, err
	}
	rels, err := collectRelationships(rows)
	if err != nil {
		return nil, err
	}
	if len(rels) == 0 {
		return nil, nil
	}
	return &rels[0], nil
}

// splitN3 splits a "a|b|c" encoded triple produced by FindPath's rel_path.
func splitN3(s string) [3]string {
	var out [3]string
	idx := 0
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			if idx >= 2 {
				return out
			}
			out[idx] = s[start:i]
			idx++
			start = i + 1
		}
	}
	out[idx] = s[start:]
	return out
}

// fetchEntitiesOrdered resolves names to Entities preserving the input order,
// used to rebuild FindPath's result path.
func fetchEntitiesOrdered(ctx context.Context, pool *pgxpool.Pool, names []string) ([]memory.Entity, error) {
	if len(names) == 0 {
		return []memory.Entity{}, nil
	}
	rows, err := pool.Query(ctx, `SELECT name, display_name, labels, pagerank, community FROM entities WHERE name = ANY($1::text[])`, names)
	if err != nil {
		return nil, err
	}
	byName := map[string]memory.Entity{}
	ents, err := collectEntities(rows)
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		byName[e.Name] = e
	}
	ordered := make([]memory.Entity, 0, len(names))
	for _, n := range names {
		if e, ok := byName[n]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

func collectEntities(rows pgx.Rows) ([]memory.Entity, error) {
	ents, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Entity, error) {
		var e memory.Entity
		if err := row.Scan(&e.Name, &e.DisplayName, &e.Labels, &e.PageRank, &e.Community); err != nil {
			return memory.Entity{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if ents == nil {
		ents = []memory.Entity{}
	}
	return ents, nil
}

func collectRelationships(rows pgx.Rows) ([]memory.Relationship, error) {
	rels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Relationship, error) {
		var r memory.Relationship
		var relType string
		if err := row.Scan(&r.Source, &r.Target, &relType, &r.Confidence, &r.Provenance, &r.CreatedAt); err != nil {
			return memory.Relationship{}, err
		}
		r.Type = memory.RelationType(relType)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if rels == nil {
		rels = []memory.Relationship{}
	}
	return rels, nil
}
