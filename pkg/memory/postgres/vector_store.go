package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// VectorStore implements [memory.VectorIndex] over the memory_points table.
type VectorStore struct {
	pool *pgxpool.Pool
}

// UpsertPoint implements [memory.VectorIndex].
func (v *VectorStore) UpsertPoint(ctx context.Context, pt memory.Point) error {
	return v.UpsertPoints(ctx, []memory.Point{pt})
}

// UpsertPoints implements [memory.VectorIndex]. Points are inserted in
// chunks of 100, each chunk in its own transaction, matching add_batch's
// "upsert in chunks of 100" requirement.
func (v *VectorStore) UpsertPoints(ctx context.Context, pts []memory.Point) error {
	const chunkSize = 100
	for start := 0; start < len(pts); start += chunkSize {
		end := start + chunkSize
		if end > len(pts) {
			end = len(pts)
		}
		if err := v.upsertChunk(ctx, pts[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (v *VectorStore) upsertChunk(ctx context.Context, pts []memory.Point) error {
	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("vector store: begin upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const q = `
		INSERT INTO memory_points
		    (id, display, text, content_hash, user_id, agent_id, source, session_id, confidence, created_at, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
		    display    = EXCLUDED.display,
		    text       = EXCLUDED.text,
		    embedding  = EXCLUDED.embedding,
		    metadata   = EXCLUDED.metadata`

	for _, pt := range pts {
		metaJSON, err := json.Marshal(pt.Metadata)
		if err != nil {
			return fmt.Errorf("vector store: marshal metadata: %w", err)
		}
		createdAt := pt.CreatedAt
		if createdAt.IsZero() {
			createdAt = timeNow()
		}
		if _, err := tx.Exec(ctx, q,
			pt.ID, pt.Display, pt.Text, pt.ContentHash, pt.UserID, pt.AgentID,
			pt.Source, pt.SessionID, pt.Confidence, createdAt,
			pgvector.NewVector(pt.Embedding), metaJSON,
		); err != nil {
			return fmt.Errorf("vector store: upsert point %q: %w", pt.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetPoint implements [memory.VectorIndex].
func (v *VectorStore) GetPoint(ctx context.Context, id string) (*memory.Point, error) {
	const q = selectPointCols + `
		FROM memory_points WHERE id = $1`

	rows, err := v.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("vector store: get point: %w", err)
	}
	pts, err := collectPoints(rows)
	if err != nil {
		return nil, fmt.Errorf("vector store: get point: %w", err)
	}
	if len(pts) == 0 {
		return nil, nil
	}
	return &pts[0], nil
}

// DeletePoint implements [memory.VectorIndex].
func (v *VectorStore) DeletePoint(ctx context.Context, id string) error {
	if _, err := v.pool.Exec(ctx, `DELETE FROM memory_points WHERE id = $1`, id); err != nil {
		return fmt.Errorf("vector store: delete point: %w", err)
	}
	return nil
}

// ContentHash implements [memory.VectorIndex].
func (v *VectorStore) ContentHash(ctx context.Context, userID, hash string) (string, bool, error) {
	const q = `SELECT id FROM memory_points WHERE user_id = $1 AND content_hash = $2`
	var id string
	err := v.pool.QueryRow(ctx, q, userID, hash).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("vector store: content hash: %w", err)
	}
	return id, true, nil
}

// ContentHashes implements [memory.VectorIndex], batch-checking many hashes
// for add_batch's "batch hash check" step.
func (v *VectorStore) ContentHashes(ctx context.Context, userID string, hashes []string) (map[string]string, error) {
	result := make(map[string]string, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}
	const q = `SELECT id, content_hash FROM memory_points WHERE user_id = $1 AND content_hash = ANY($2::text[])`
	rows, err := v.pool.Query(ctx, q, userID, hashes)
	if err != nil {
		return nil, fmt.Errorf("vector store: content hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("vector store: content hashes: scan: %w", err)
		}
		result[hash] = id
	}
	return result, rows.Err()
}

// Search implements [memory.VectorIndex]. Results are ordered by descending
// Score (Score = 1 - cosine distance).
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int, filter memory.PointFilter) ([]memory.PointResult, error) {
	queryVec := pgvector.NewVector(embedding)

	args := []any{queryVec}
	next := func(val any) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"embedding IS NOT NULL"}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = "+next(filter.UserID))
	}
	if len(filter.Domains) > 0 {
		conditions = append(conditions, "(metadata->>'domain' IS NULL OR metadata->>'domain' = ANY("+next(filter.Domains)+"::text[]))")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := selectPointCols + `,
		       embedding <=> $1 AS distance
		FROM   memory_points
		WHERE  ` + join(conditions, " AND ") + `
		ORDER  BY distance
		LIMIT  ` + limitArg

	rows, err := v.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.PointResult, error) {
		pt, distance, err := scanPoint(row, true)
		if err != nil {
			return memory.PointResult{}, err
		}
		return memory.PointResult{Point: pt, Score: 1 - distance}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("vector store: search: scan: %w", err)
	}
	if results == nil {
		results = []memory.PointResult{}
	}
	return results, nil
}

// ListPoints implements [memory.VectorIndex].
func (v *VectorStore) ListPoints(ctx context.Context, userID, agentID string, limit int) ([]memory.Point, error) {
	args := []any{userID}
	q := selectPointCols + ` FROM memory_points WHERE user_id = $1`
	if agentID != "" {
		args = append(args, agentID)
		q += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := v.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector store: list points: %w", err)
	}
	return collectPoints(rows)
}

const selectPointCols = `
		SELECT id, display, text, content_hash, user_id, agent_id, source, session_id, confidence, created_at, embedding, metadata`

func collectPoints(rows pgx.Rows) ([]memory.Point, error) {
	pts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Point, error) {
		pt, _, err := scanPoint(row, false)
		return pt, err
	})
	if err != nil {
		return nil, err
	}
	if pts == nil {
		pts = []memory.Point{}
	}
	return pts, nil
}

// scanPoint scans the fixed selectPointCols projection, optionally followed
// by a trailing distance column.
func scanPoint(row pgx.CollectableRow, withDistance bool) (memory.Point, float64, error) {
	var (
		pt       memory.Point
		vec      pgvector.Vector
		metaJSON []byte
		distance float64
	)
	scanTargets := []any{
		&pt.ID, &pt.Display, &pt.Text, &pt.ContentHash, &pt.UserID, &pt.AgentID,
		&pt.Source, &pt.SessionID, &pt.Confidence, &pt.CreatedAt, &vec, &metaJSON,
	}
	if withDistance {
		scanTargets = append(scanTargets, &distance)
	}
	if err := row.Scan(scanTargets...); err != nil {
		return memory.Point{}, 0, err
	}
	pt.Embedding = vec.Slice()
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &pt.Metadata); err != nil {
			return memory.Point{}, 0, fmt.Errorf("unmarshal point metadata: %w", err)
		}
	}
	if pt.Metadata == nil {
		pt.Metadata = map[string]any{}
	}
	return pt, distance, nil
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
