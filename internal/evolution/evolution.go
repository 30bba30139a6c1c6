// Package evolution implements C7: merge-or-add evolution, access
// reinforcement, decay, consolidation, and cross-cutting retraction.
package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aletheia-mem/aletheia/internal/retrieval"
	"github.com/aletheia-mem/aletheia/internal/vocabulary"
	"github.com/aletheia-mem/aletheia/pkg/memory"
	"github.com/aletheia-mem/aletheia/pkg/provider/embeddings"
	"github.com/aletheia-mem/aletheia/pkg/provider/llm"
)

// Named thresholds, surfaced per spec.md §9 and SPEC_FULL.md §11.
const (
	// EvolutionThreshold (τ_e) is check_evolution's merge-candidate cutoff.
	EvolutionThreshold = 0.80

	// DefaultConsolidationThreshold is consolidate's default duplicate cutoff.
	DefaultConsolidationThreshold = 0.90

	// RetractionThreshold is retract's score cutoff for a match to qualify.
	RetractionThreshold = 0.75

	// DefaultDecayAmount is decay's default decay_amount. [Engine.Decay]
	// accepts the amount, but each decay bumps MemoryAccess.DecayCount by one
	// whatever its value.
	DefaultDecayAmount = 1.0

	// consolidateFetchLimit bounds how many of the user's memories consolidate
	// scans per call, per spec.md §4.7 ("first 50 fetched memories").
	consolidateFetchLimit = 50

	retractionLogFileName = "retraction_log.jsonl"
)

// Engine implements C7 over a vector index, graph store, embedding provider
// and optional merge LLM.
type Engine struct {
	Vector   memory.VectorIndex
	Graph    memory.GraphStore
	Embedder embeddings.Provider
	LLM      llm.Provider // nil => skip LLM merge, evolved text falls back to concatenation

	// DataDir is where the retraction audit log is appended. Defaults to the
	// current working directory when empty.
	DataDir string

	logMu sync.Mutex
}

// EvolutionResult is returned by [Engine.CheckEvolution].
type EvolutionResult struct {
	Evolved    bool
	OldID      string
	NewID      string
	NewText    string
	Similarity float64
}

// CheckEvolution implements check_evolution(text): if the closest existing
// memory scores above EvolutionThreshold, the two are merged by the LLM (or
// concatenated without one) into a new point, the old point is deleted, and
// an EVOLVED_INTO lineage edge is recorded asynchronously.
func (e *Engine) CheckEvolution(ctx context.Context, userID, text string) (EvolutionResult, error) {
	vec, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: embed: %w", err)
	}
	neighbors, err := e.Vector.Search(ctx, vec, 1, memory.PointFilter{UserID: userID})
	if err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: search: %w", err)
	}
	if len(neighbors) == 0 || neighbors[0].Score <= EvolutionThreshold {
		return EvolutionResult{}, nil
	}

	old := neighbors[0].Point
	merged := e.merge(ctx, old.Text, text)

	newVec, err := e.Embedder.Embed(ctx, merged)
	if err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: embed merged: %w", err)
	}

	newPoint := old
	newPoint.ID = newEvolvedID(old.ID)
	newPoint.Text = merged
	newPoint.Display = truncateRunes(merged, 500)
	newPoint.Embedding = newVec
	newPoint.CreatedAt = time.Now().UTC()
	newPoint.Metadata = cloneMetadata(old.Metadata)
	newPoint.Metadata["evolved_from"] = old.ID
	newPoint.Metadata["evolution_timestamp"] = newPoint.CreatedAt.Format(time.RFC3339)

	if err := e.Vector.UpsertPoint(ctx, newPoint); err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: upsert evolved point: %w", err)
	}
	if err := e.Vector.DeletePoint(ctx, old.ID); err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: delete old point: %w", err)
	}

	if e.Graph != nil {
		go func() {
			_ = e.Graph.RecordEvolution(context.Background(), old.ID, newPoint.ID)
		}()
	}

	return EvolutionResult{
		Evolved: true, OldID: old.ID, NewID: newPoint.ID,
		NewText: merged, Similarity: neighbors[0].Score,
	}, nil
}

// merge asks the LLM to combine old and new text into a 1-2 sentence
// evolved memory; without an LLM it falls back to a plain concatenation.
func (e *Engine) merge(ctx context.Context, oldText, newText string) string {
	if e.LLM == nil {
		return oldText + " " + newText
	}
	resp, err := e.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "Merge these two related memories into a single concise 1-2 sentence memory " +
			"that preserves all facts from both, favoring the newer one where they conflict. " +
			"Reply with only the merged sentence(s).",
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Old: %s\nNew: %s", oldText, newText),
		}},
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return oldText + " " + newText
	}
	return strings.TrimSpace(resp.Content)
}

// MergeMemories implements the explicit merge(source_id, target_id) surface:
// combines two named points the same way CheckEvolution merges a new memory
// into its closest neighbor, then deletes both originals in favor of the
// merged point.
func (e *Engine) MergeMemories(ctx context.Context, sourceID, targetID string) (EvolutionResult, error) {
	source, err := e.Vector.GetPoint(ctx, sourceID)
	if err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: get source point: %w", err)
	}
	target, err := e.Vector.GetPoint(ctx, targetID)
	if err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: get target point: %w", err)
	}
	if source == nil || target == nil {
		return EvolutionResult{}, fmt.Errorf("evolution: merge: source or target point not found")
	}

	merged := e.merge(ctx, source.Text, target.Text)
	newVec, err := e.Embedder.Embed(ctx, merged)
	if err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: embed merged: %w", err)
	}

	newPoint := *target
	newPoint.ID = newEvolvedID(target.ID)
	newPoint.Text = merged
	newPoint.Display = truncateRunes(merged, 500)
	newPoint.Embedding = newVec
	newPoint.CreatedAt = time.Now().UTC()
	newPoint.Metadata = cloneMetadata(target.Metadata)
	newPoint.Metadata["evolved_from"] = sourceID
	newPoint.Metadata["merged_from"] = []string{sourceID, targetID}
	newPoint.Metadata["evolution_timestamp"] = newPoint.CreatedAt.Format(time.RFC3339)

	if err := e.Vector.UpsertPoint(ctx, newPoint); err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: upsert merged point: %w", err)
	}
	if err := e.Vector.DeletePoint(ctx, source.ID); err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: delete source point: %w", err)
	}
	if err := e.Vector.DeletePoint(ctx, target.ID); err != nil {
		return EvolutionResult{}, fmt.Errorf("evolution: delete target point: %w", err)
	}

	if e.Graph != nil {
		go func() {
			_ = e.Graph.RecordEvolution(context.Background(), target.ID, newPoint.ID)
		}()
	}

	return EvolutionResult{Evolved: true, OldID: target.ID, NewID: newPoint.ID, NewText: merged}, nil
}

// Reinforce implements reinforce(memory_id): bump the access counter.
func (e *Engine) Reinforce(ctx context.Context, memoryID string) error {
	if err := e.Graph.RecordAccess(ctx, memoryID); err != nil {
		return fmt.Errorf("evolution: reinforce: %w", err)
	}
	return nil
}

// DecayResult is returned by [Engine.Decay].
type DecayResult struct {
	Candidates []string
	DryRun     bool
}

// Decay implements decay(days_inactive, decay_amount, dry_run): lists every
// memory for userID, subtracts the set of ids with any access record at
// all, and bumps DecayCount on the remainder unless dryRun.
//
// daysInactive and decayAmount are accepted for interface compatibility with
// spec.md's named parameters but neither changes the result: "recently
// accessed" means any memory with an access record, with no date cutoff,
// and each decay bumps DecayCount by one whatever decayAmount is (the decay
// store is a counter, not an amount-weighted accumulator).
func (e *Engine) Decay(ctx context.Context, userID string, daysInactive int, decayAmount float64, dryRun bool) (DecayResult, error) {
	points, err := e.Vector.ListPoints(ctx, userID, "", 0)
	if err != nil {
		return DecayResult{}, fmt.Errorf("evolution: list points: %w", err)
	}
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	accessed, err := e.Graph.GetAccess(ctx, ids)
	if err != nil {
		return DecayResult{}, fmt.Errorf("evolution: get access: %w", err)
	}

	var candidates []string
	for _, id := range ids {
		if _, ok := accessed[id]; ok {
			continue
		}
		candidates = append(candidates, id)
	}

	if !dryRun {
		for _, id := range candidates {
			if err := e.Graph.RecordDecay(ctx, id); err != nil {
				return DecayResult{}, fmt.Errorf("evolution: record decay %s: %w", id, err)
			}
		}
	}
	return DecayResult{Candidates: candidates, DryRun: dryRun}, nil
}

// ConsolidationCandidate pairs a source memory with a near-duplicate found
// among the first consolidateFetchLimit memories scanned.
type ConsolidationCandidate struct {
	Source     string
	Duplicate  string
	Similarity float64
}

// ConsolidateResult is returned by [Engine.Consolidate].
type ConsolidateResult struct {
	Candidates []ConsolidationCandidate
	Deleted    int
	DryRun     bool
}

// Consolidate implements consolidate(threshold, limit, dry_run): for each of
// the first consolidateFetchLimit memories, search neighbors; any neighbor
// scoring >= threshold is a duplicate candidate. Non-dry-run calls delete the
// duplicate (not the source).
func (e *Engine) Consolidate(ctx context.Context, userID string, threshold float64, limit int, dryRun bool) (ConsolidateResult, error) {
	if threshold <= 0 {
		threshold = DefaultConsolidationThreshold
	}
	if limit <= 0 || limit > consolidateFetchLimit {
		limit = consolidateFetchLimit
	}

	points, err := e.Vector.ListPoints(ctx, userID, "", limit)
	if err != nil {
		return ConsolidateResult{}, fmt.Errorf("evolution: list points: %w", err)
	}

	seen := map[string]bool{}
	var result ConsolidateResult
	result.DryRun = dryRun

	for _, pt := range points {
		if seen[pt.ID] {
			continue
		}
		neighbors, err := e.Vector.Search(ctx, pt.Embedding, 5, memory.PointFilter{UserID: userID})
		if err != nil {
			continue
		}
		for _, n := range neighbors {
			if n.Point.ID == pt.ID || seen[n.Point.ID] {
				continue
			}
			if n.Score >= threshold {
				result.Candidates = append(result.Candidates, ConsolidationCandidate{
					Source: pt.ID, Duplicate: n.Point.ID, Similarity: n.Score,
				})
				seen[n.Point.ID] = true
			}
		}
	}

	if !dryRun {
		for _, c := range result.Candidates {
			if err := e.Vector.DeletePoint(ctx, c.Duplicate); err != nil {
				return result, fmt.Errorf("evolution: delete duplicate %s: %w", c.Duplicate, err)
			}
			result.Deleted++
		}
	}
	return result, nil
}

// RetractionEntry is one JSON-lines row appended to the audit log by
// [Engine.Retract], per spec.md §6.
type RetractionEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	Query          string    `json:"query"`
	Reason         string    `json:"reason"`
	UserID         string    `json:"user_id"`
	Cascade        bool      `json:"cascade"`
	RetractedIDs   []string  `json:"retracted_ids"`
	RetractedTexts []string  `json:"retracted_texts"`
	GraphRemoved   []string  `json:"neo4j_removed"`
}

// RetractResult is returned by [Engine.Retract].
type RetractResult struct {
	Retracted    []string
	GraphRemoved []string
	DryRun       bool
}

// maxRetractCandidates bounds how many of the corpus's closest points
// retract() inspects per query, per spec.md §4.7's search-then-filter shape.
const maxRetractCandidates = 20

// graphRemovedLogLimit truncates the logged neo4j_removed list, per
// spec.md §6.
const graphRemovedLogLimit = 20

// Retract implements retract(query, cascade, dry_run, reason): searches the
// corpus, keeps matches scoring above RetractionThreshold, optionally
// cascades into connected graph edges per extracted entity, deletes the
// matching vector points, and appends an audit entry.
func (e *Engine) Retract(ctx context.Context, userID, query string, cascade, dryRun bool, reason string) (RetractResult, error) {
	vec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return RetractResult{}, fmt.Errorf("evolution: embed: %w", err)
	}
	neighbors, err := e.Vector.Search(ctx, vec, maxRetractCandidates, memory.PointFilter{UserID: userID})
	if err != nil {
		return RetractResult{}, fmt.Errorf("evolution: search: %w", err)
	}

	var result RetractResult
	result.DryRun = dryRun
	var texts []string

	for _, n := range neighbors {
		if n.Score <= RetractionThreshold {
			continue
		}
		result.Retracted = append(result.Retracted, n.Point.ID)
		texts = append(texts, n.Point.Text)

		if cascade && e.Graph != nil {
			for _, ent := range retrieval.ExtractEntities(n.Point.Text) {
				norm := vocabulary.NormalizeEntityName(ent)
				if !vocabulary.IsValidEntity(norm) {
					continue
				}
				rels, err := e.Graph.GetRelationships(ctx, norm, memory.WithIncoming(), memory.WithOutgoing())
				if err != nil {
					continue
				}
				for _, r := range rels {
					if !dryRun {
						_ = e.Graph.DeleteRelationship(ctx, r.Source, r.Target, r.Type)
					}
					result.GraphRemoved = append(result.GraphRemoved, fmt.Sprintf("%s-%s->%s", r.Source, r.Type, r.Target))
				}
			}
		}
	}

	if !dryRun {
		for _, id := range result.Retracted {
			if err := e.Vector.DeletePoint(ctx, id); err != nil {
				return result, fmt.Errorf("evolution: delete point %s: %w", id, err)
			}
		}
	}

	loggedGraphRemoved := result.GraphRemoved
	if len(loggedGraphRemoved) > graphRemovedLogLimit {
		loggedGraphRemoved = loggedGraphRemoved[:graphRemovedLogLimit]
	}
	entry := RetractionEntry{
		Timestamp: time.Now().UTC(), Query: query, Reason: reason, UserID: userID,
		Cascade: cascade, RetractedIDs: result.Retracted, RetractedTexts: texts,
		GraphRemoved: loggedGraphRemoved,
	}
	if err := e.appendRetractionLog(entry); err != nil {
		return result, fmt.Errorf("evolution: append retraction log: %w", err)
	}

	return result, nil
}

func (e *Engine) appendRetractionLog(entry RetractionEntry) error {
	e.logMu.Lock()
	defer e.logMu.Unlock()

	dir := e.DataDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, retractionLogFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func newEvolvedID(string) string {
	return uuid.NewString()
}
