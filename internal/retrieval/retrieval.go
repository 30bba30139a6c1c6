// Package retrieval implements C5: the four retrieval surfaces (search,
// graph_enhanced_search, search_enhanced, graph_search) plus the recency and
// confidence reweighting pipeline shared by all of them.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aletheia-mem/aletheia/internal/vocabulary"
	"github.com/aletheia-mem/aletheia/pkg/memory"
	"github.com/aletheia-mem/aletheia/pkg/provider/embeddings"
	"github.com/aletheia-mem/aletheia/pkg/provider/llm"
)

// Named constants for the recency/confidence/merge weights, per spec.md §9's
// instruction to surface these as named constants.
const (
	// RecencyBoostWeight (b) scales the recency boost for results created
	// within the last 24 hours.
	RecencyBoostWeight = 0.15
	recencyWindow      = 24 * time.Hour

	// MaxDecayPenalty caps the confidence penalty applied when a result has
	// been decayed but never accessed.
	MaxDecayPenalty = 0.10
	decayPenaltyPer = 0.02

	// MaxAccessBoost caps the confidence boost applied to frequently
	// accessed results.
	MaxAccessBoost  = 0.05
	accessBoostPer  = 0.01
	accessBoostMin  = 3 // boost applies when accesses > 2

	// DefaultGraphWeight (g) is graph_enhanced_search's default blend
	// between vector and graph-expanded result sets. Resolves spec.md §9's
	// open question in favour of the 0.3 variant.
	DefaultGraphWeight = 0.3

	defaultGraphDepth        = 2
	maxNeighborsPerEntity    = 10
	maxAugmentNeighbors      = 5
	maxAlternatePhrasings    = 2
	maxParallelSearches      = 4
	minRewriteQueryLen       = 10
	maxRewriteQueryLen       = 500
)

// Options narrows a retrieval call. UserID is always required.
type Options struct {
	UserID  string
	AgentID string
	Limit   int
	Domains []string // whitelist; empty means no domain filtering
}

// Result is a scored retrieval hit. Source distinguishes how the hit was
// found ("vector" or "graph") for graph_search's pass-through filter; it is
// unrelated to Point.Source (ingestion provenance).
type Result struct {
	Point memory.Point
	Score float64
	Source string
}

// Engine implements C5 over a vector index, graph store, and embedding
// provider. LLM is optional: search_enhanced's query-rewrite step is skipped
// (degrading gracefully per spec.md §7) when it is nil.
type Engine struct {
	Vector   memory.VectorIndex
	Graph    memory.GraphStore
	Embedder embeddings.Provider
	LLM      llm.Provider
}

// Search implements the basic search surface: vector search followed by the
// recency/confidence reweighting pipeline and optional domain filter.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	limit := normalizeLimit(opts.Limit)

	vec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	hits, err := e.Vector.Search(ctx, vec, limit, memory.PointFilter{
		UserID: opts.UserID, Domains: opts.Domains,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search: %w", err)
	}

	results := e.reweight(ctx, hits)
	results = filterByAgent(results, opts.AgentID)

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// reweight applies the recency boost and confidence weighting (spec.md
// §4.5 steps 1-2) to a batch of vector hits, then clamps the final score to
// [0,1] — the documented resolution of spec.md §9's open question, so
// graph_enhanced_search's own weighted blend composes predictably.
func (e *Engine) reweight(ctx context.Context, hits []memory.PointResult) []Result {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Point.ID
	}
	var access map[string]memory.Access
	if e.Graph != nil && len(ids) > 0 {
		if m, err := e.Graph.GetAccess(ctx, ids); err == nil {
			access = m
		}
	}

	now := time.Now()
	out := make([]Result, len(hits))
	for i, h := range hits {
		score := h.Score

		if age := now.Sub(h.Point.CreatedAt); age >= 0 && age <= recencyWindow {
			score += RecencyBoostWeight * (1 - age.Hours()/recencyWindow.Hours())
		}

		if a, ok := access[h.Point.ID]; ok {
			switch {
			case a.DecayCount > 0 && a.AccessCount == 0:
				penalty := float64(a.DecayCount) * decayPenaltyPer
				if penalty > MaxDecayPenalty {
					penalty = MaxDecayPenalty
				}
				score -= penalty
			case a.AccessCount > accessBoostMin-1:
				boost := float64(a.AccessCount) * accessBoostPer
				if boost > MaxAccessBoost {
					boost = MaxAccessBoost
				}
				score += boost
			}
		}

		out[i] = Result{Point: h.Point, Score: clamp01(score), Source: "vector"}
	}
	return out
}

// GraphEnhancedSearch extracts entities from the query, traverses the graph
// from each matching entity, re-searches with the query augmented by
// neighbor names, and merges the two result sets with weight g (default
// [DefaultGraphWeight]).
func (e *Engine) GraphEnhancedSearch(ctx context.Context, query string, opts Options, g float64) ([]Result, error) {
	if g <= 0 {
		g = DefaultGraphWeight
	}
	limit := normalizeLimit(opts.Limit)

	vectorResults, err := e.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	entities := ExtractEntities(query)
	var neighborNames []string
	for _, ent := range entities {
		if e.Graph == nil {
			break
		}
		canonical := vocabulary.NormalizeEntityName(ent)
		neighbors, err := e.Graph.Neighbors(ctx, canonical, defaultGraphDepth, memory.TraverseMaxNodes(maxNeighborsPerEntity))
		if err != nil {
			continue // graph-degraded: fall back to pure vector results
		}
		for _, n := range neighbors {
			neighborNames = append(neighborNames, n.DisplayName)
			if len(neighborNames) >= maxAugmentNeighbors {
				break
			}
		}
		if len(neighborNames) >= maxAugmentNeighbors {
			break
		}
	}

	if len(neighborNames) == 0 {
		return vectorResults, nil
	}

	augmented := query + " " + strings.Join(neighborNames, " ")
	vec, err := e.Embedder.Embed(ctx, augmented)
	if err != nil {
		return vectorResults, nil // degrade: augmentation failed, return plain results
	}
	graphHits, err := e.Vector.Search(ctx, vec, limit, memory.PointFilter{UserID: opts.UserID, Domains: opts.Domains})
	if err != nil {
		return vectorResults, nil
	}
	graphResults := e.reweight(ctx, graphHits)
	for i := range graphResults {
		graphResults[i].Source = "graph"
	}
	graphResults = filterByAgent(graphResults, opts.AgentID)

	merged := mergeWeighted(vectorResults, graphResults, 1-g, g)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// mergeWeighted combines two result sets by id, scaling each set's score by
// its weight and summing contributions from both sets for ids present in
// both.
func mergeWeighted(a, b []Result, wa, wb float64) []Result {
	byID := make(map[string]*Result, len(a)+len(b))
	var order []string
	for _, r := range a {
		r.Score *= wa
		byID[r.Point.ID] = &r
		order = append(order, r.Point.ID)
	}
	for _, r := range b {
		if existing, ok := byID[r.Point.ID]; ok {
			existing.Score += r.Score * wb
			continue
		}
		r.Score *= wb
		byID[r.Point.ID] = &r
		order = append(order, r.Point.ID)
	}
	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// SearchEnhanced extracts entities, alias-resolves them against graph
// canonicals, asks the LLM for up to [maxAlternatePhrasings] alternate
// phrasings (skipped when query length is out of [minRewriteQueryLen,
// maxRewriteQueryLen] or no LLM is configured), runs up to
// [maxParallelSearches] vector searches in parallel, and merges by id sorted
// by raw score.
func (e *Engine) SearchEnhanced(ctx context.Context, query string, opts Options) ([]Result, error) {
	entities := ExtractEntities(query)
	if e.Graph != nil {
		for i, ent := range entities {
			existing, err := e.Graph.FindEntities(ctx, memory.EntityFilter{NameContains: ent, Limit: 20})
			if err != nil || len(existing) == 0 {
				continue
			}
			names := make([]string, len(existing))
			for j, en := range existing {
				names[j] = en.DisplayName
			}
			entities[i] = vocabulary.ResolveEntity(ent, names)
		}
	}

	queries := []string{query}
	if e.LLM != nil && len(query) >= minRewriteQueryLen && len(query) <= maxRewriteQueryLen {
		if variants, err := e.rewriteQuery(ctx, query); err == nil {
			queries = append(queries, variants...)
		}
		// LLM failure here degrades gracefully: only the original query runs.
	}
	if len(queries) > maxParallelSearches {
		queries = queries[:maxParallelSearches]
	}

	limit := normalizeLimit(opts.Limit)
	allResults := make([][]memory.PointResult, len(queries))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		eg.Go(func() error {
			vec, err := e.Embedder.Embed(egCtx, q)
			if err != nil {
				return nil // degrade: skip this variant
			}
			hits, err := e.Vector.Search(egCtx, vec, limit, memory.PointFilter{UserID: opts.UserID, Domains: opts.Domains})
			if err != nil {
				return nil
			}
			allResults[i] = hits
			return nil
		})
	}
	_ = eg.Wait() // individual variant failures degrade silently; never aborts the whole call

	byID := make(map[string]Result)
	var order []string
	for _, hits := range allResults {
		for _, h := range hits {
			if _, ok := byID[h.Point.ID]; ok {
				continue
			}
			byID[h.Point.ID] = Result{Point: h.Point, Score: h.Score, Source: "vector"}
			order = append(order, h.Point.ID)
		}
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	out = filterByAgent(out, opts.AgentID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// rewriteQuery asks the LLM for up to maxAlternatePhrasings alternate
// phrasings of query, one per line.
func (e *Engine) rewriteQuery(ctx context.Context, query string) ([]string, error) {
	resp, err := e.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf("Rewrite the user's search query as up to %d alternate phrasings that preserve its meaning. Reply with one phrasing per line, nothing else.", maxAlternatePhrasings),
		Messages:     []llm.Message{{Role: "user", Content: query}},
		Temperature:  0.3,
		MaxTokens:    200,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: rewrite query: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(resp.Content), "\n")
	var out []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, l)
		if len(out) >= maxAlternatePhrasings {
			break
		}
	}
	return out, nil
}

// GraphSearch is a pass-through filter on results whose Source == "graph",
// applied on top of a prior GraphEnhancedSearch call's results.
func GraphSearch(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Source == "graph" {
			out = append(out, r)
		}
	}
	return out
}

func filterByAgent(results []Result, agentID string) []Result {
	if agentID == "" {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if r.Point.AgentID == "" || r.Point.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
