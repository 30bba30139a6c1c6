package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// RecordAccess implements [memory.GraphStore], bumping the access counter and
// timestamps used by C7 to weight retrieval confidence.
func (g *GraphDB) RecordAccess(ctx context.Context, memoryID string) error {
	const q = `
		INSERT INTO memory_access (memory_id, access_count, first_accessed, last_accessed)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (memory_id) DO UPDATE SET
		    access_count  = memory_access.access_count + 1,
		    last_accessed = EXCLUDED.last_accessed`
	if _, err := g.pool.Exec(ctx, q, memoryID, timeNow()); err != nil {
		return fmt.Errorf("graph store: record access: %w", err)
	}
	return nil
}

// GetAccess implements [memory.GraphStore]. Memory IDs with no recorded
// access are simply absent from the returned map.
func (g *GraphDB) GetAccess(ctx context.Context, memoryIDs []string) (map[string]memory.Access, error) {
	result := make(map[string]memory.Access, len(memoryIDs))
	if len(memoryIDs) == 0 {
		return result, nil
	}
	const q = `
		SELECT memory_id, access_count, first_accessed, last_accessed, decay_count, last_decayed
		FROM memory_access WHERE memory_id = ANY($1::text[])`
	rows, err := g.pool.Query(ctx, q, memoryIDs)
	if err != nil {
		return nil, fmt.Errorf("graph store: get access: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a memory.Access
		var firstAccessed, lastAccessed, lastDecayed *time.Time
		if err := rows.Scan(&a.MemoryID, &a.AccessCount, &firstAccessed, &lastAccessed, &a.DecayCount, &lastDecayed); err != nil {
			return nil, fmt.Errorf("graph store: get access: scan: %w", err)
		}
		if firstAccessed != nil {
			a.FirstAccessed = *firstAccessed
		}
		if lastAccessed != nil {
			a.LastAccessed = *lastAccessed
		}
		if lastDecayed != nil {
			a.LastDecayed = *lastDecayed
		}
		result[a.MemoryID] = a
	}
	return result, rows.Err()
}

// RecordDecay implements [memory.GraphStore].
func (g *GraphDB) RecordDecay(ctx context.Context, memoryID string) error {
	const q = `
		INSERT INTO memory_access (memory_id, decay_count, last_decayed)
		VALUES ($1, 1, $2)
		ON CONFLICT (memory_id) DO UPDATE SET
		    decay_count  = memory_access.decay_count + 1,
		    last_decayed = EXCLUDED.last_decayed`
	if _, err := g.pool.Exec(ctx, q, memoryID, timeNow()); err != nil {
		return fmt.Errorf("graph store: record decay: %w", err)
	}
	return nil
}

// RecordEvolution implements [memory.GraphStore], transferring access
// telemetry from a superseded memory point to the one that replaced it so
// consolidation history is not lost across evolve/consolidate passes.
func (g *GraphDB) RecordEvolution(ctx context.Context, oldID, newID string) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graph store: record evolution: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const mergeQ = `
		INSERT INTO memory_access (memory_id, access_count, first_accessed, last_accessed, decay_count, last_decayed)
		SELECT $2, access_count, first_accessed, last_accessed, decay_count, last_decayed
		FROM memory_access WHERE memory_id = $1
		ON CONFLICT (memory_id) DO UPDATE SET
		    access_count = memory_access.access_count + EXCLUDED.access_count,
		    decay_count  = memory_access.decay_count + EXCLUDED.decay_count,
		    first_accessed = LEAST(memory_access.first_accessed, EXCLUDED.first_accessed),
		    last_accessed  = GREATEST(memory_access.last_accessed, EXCLUDED.last_accessed)`
	if _, err := tx.Exec(ctx, mergeQ, oldID, newID); err != nil {
		return fmt.Errorf("graph store: record evolution: merge: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM memory_access WHERE memory_id = $1`, oldID); err != nil {
		return fmt.Errorf("graph store: record evolution: cleanup: %w", err)
	}
	return tx.Commit(ctx)
}
