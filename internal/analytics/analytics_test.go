package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/aletheia-mem/aletheia/internal/analytics"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// fakeGraph is a minimal in-memory memory.GraphStore exercising only the
// methods analytics.Engine calls.
type fakeGraph struct {
	relationships []memory.Relationship
	entities      map[string][]string // adjacency by name, for Neighbors/FindPath
	written       []map[string]struct {
		PageRank  float64
		Community int
	}
	candidates []memory.DiscoveryCandidate
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{entities: map[string][]string{}}
}

func (g *fakeGraph) addEdge(a, b string) {
	g.relationships = append(g.relationships, memory.Relationship{Source: a, Target: b, Type: "RELATES_TO"})
	g.entities[a] = append(g.entities[a], b)
	g.entities[b] = append(g.entities[b], a)
}

func (g *fakeGraph) UpsertEntity(context.Context, memory.Entity) error { return nil }
func (g *fakeGraph) GetEntity(context.Context, string) (*memory.Entity, error) { return nil, nil }
func (g *fakeGraph) FindEntities(context.Context, memory.EntityFilter) ([]memory.Entity, error) {
	return nil, nil
}
func (g *fakeGraph) DeleteEntity(context.Context, string) error        { return nil }
func (g *fakeGraph) DeleteOrphanEntities(context.Context) (int, error) { return 0, nil }
func (g *fakeGraph) UpsertRelationship(context.Context, memory.Relationship) error { return nil }
func (g *fakeGraph) GetRelationships(context.Context, string, ...memory.RelQueryOpt) ([]memory.Relationship, error) {
	return nil, nil
}
func (g *fakeGraph) DeleteRelationship(context.Context, string, string, memory.RelationType) error {
	return nil
}
func (g *fakeGraph) AllRelationshipTypes(context.Context) ([]string, error) { return nil, nil }
func (g *fakeGraph) RewriteRelationshipType(context.Context, string, memory.RelationType) (int, error) {
	return 0, nil
}
func (g *fakeGraph) AllRelationshipsForProjection(context.Context) ([]memory.Relationship, error) {
	return g.relationships, nil
}
func (g *fakeGraph) WriteScores(_ context.Context, scores map[string]struct {
	PageRank  float64
	Community int
}) error {
	g.written = append(g.written, scores)
	return nil
}
func (g *fakeGraph) Neighbors(_ context.Context, entity string, depth int, _ ...memory.TraversalOpt) ([]memory.Entity, error) {
	seen := map[string]bool{entity: true}
	frontier := []string{entity}
	var out []memory.Entity
	for d := 0; d < depth; d++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range g.entities[cur] {
				if seen[nb] {
					continue
				}
				seen[nb] = true
				out = append(out, memory.Entity{Name: nb})
				next = append(next, nb)
			}
		}
		frontier = next
	}
	return out, nil
}
func (g *fakeGraph) FindPath(_ context.Context, from, to string, maxDepth int) ([]memory.Entity, []memory.Relationship, error) {
	if from == to {
		return []memory.Entity{{Name: from}}, nil, nil
	}
	visited := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 && len(visited) <= maxDepth+1 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range g.entities[cur] {
			if _, ok := visited[nb]; ok {
				continue
			}
			visited[nb] = cur
			if nb == to {
				var names []string
				n := nb
				for n != "" {
					names = append([]string{n}, names...)
					n = visited[n]
				}
				names = append([]string{from}, names...)
				nodes := make([]memory.Entity, len(names))
				for i, name := range names {
					nodes[i] = memory.Entity{Name: name}
				}
				return nodes, nil, nil
			}
			queue = append(queue, nb)
		}
	}
	return nil, nil, nil
}
func (g *fakeGraph) CreateEpisode(context.Context, memory.Episode) error { return nil }
func (g *fakeGraph) GetEpisodes(context.Context, string, memory.TemporalWindow) ([]memory.Episode, error) {
	return nil, nil
}
func (g *fakeGraph) AddMentions(context.Context, string, []string) error { return nil }
func (g *fakeGraph) CreateFact(_ context.Context, f memory.TemporalFact) (memory.TemporalFact, error) {
	return f, nil
}
func (g *fakeGraph) InvalidateFact(context.Context, string, string, *string, string) (int, error) {
	return 0, nil
}
func (g *fakeGraph) FactsSince(context.Context, time.Time, string) ([]memory.TemporalFact, []memory.TemporalFact, error) {
	return nil, nil, nil
}
func (g *fakeGraph) WhatChanged(context.Context, string, memory.TemporalWindow) ([]memory.TemporalFact, []memory.TemporalFact, error) {
	return nil, nil, nil
}
func (g *fakeGraph) FactsAtTime(context.Context, time.Time, string) ([]memory.TemporalFact, error) {
	return nil, nil
}
func (g *fakeGraph) TemporalStats(context.Context) (int, int, int, error) { return 0, 0, 0, nil }
func (g *fakeGraph) RecordAccess(context.Context, string) error          { return nil }
func (g *fakeGraph) GetAccess(context.Context, []string) (map[string]memory.Access, error) {
	return nil, nil
}
func (g *fakeGraph) RecordDecay(context.Context, string) error             { return nil }
func (g *fakeGraph) RecordEvolution(context.Context, string, string) error { return nil }
func (g *fakeGraph) UpsertForesight(context.Context, memory.Foresight) error { return nil }
func (g *fakeGraph) ActiveForesights(context.Context, time.Time) ([]memory.Foresight, error) {
	return nil, nil
}
func (g *fakeGraph) DecayForesights(context.Context, float64) (int, error) { return 0, nil }
func (g *fakeGraph) ReplaceDiscoveryCandidates(_ context.Context, cands []memory.DiscoveryCandidate) error {
	g.candidates = cands
	return nil
}
func (g *fakeGraph) DiscoveryCandidates(context.Context, int) ([]memory.DiscoveryCandidate, error) {
	return g.candidates, nil
}
func (g *fakeGraph) GraphStats(context.Context) (int, int, error) { return 0, 0, nil }

// buildBridgedGraph builds two dense triangles (communities) joined by a
// single bridging edge, the canonical fixture for community/bridge tests.
func buildBridgedGraph() *fakeGraph {
	g := newFakeGraph()
	g.addEdge("a1", "a2")
	g.addEdge("a2", "a3")
	g.addEdge("a3", "a1")
	g.addEdge("b1", "b2")
	g.addEdge("b2", "b3")
	g.addEdge("b3", "b1")
	g.addEdge("a1", "b1") // the only cross-community edge
	return g
}

func TestAnalyze_ProducesPageRankAndCommunities(t *testing.T) {
	t.Parallel()
	g := buildBridgedGraph()
	e := &analytics.Engine{Graph: g}
	result, err := e.Analyze(context.Background(), true)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.PageRank) != 6 {
		t.Errorf("PageRank has %d entries, want 6", len(result.PageRank))
	}
	if len(result.Community) != 6 {
		t.Errorf("Community has %d entries, want 6", len(result.Community))
	}
	if len(g.written) == 0 {
		t.Error("expected WriteScores to be called when storeScores is true")
	}
}

func TestGenerateCandidates_FindsCrossCommunityBridge(t *testing.T) {
	t.Parallel()
	g := buildBridgedGraph()
	e := &analytics.Engine{Graph: g}
	cands, err := e.GenerateCandidates(context.Background())
	if err != nil {
		t.Fatalf("GenerateCandidates: %v", err)
	}
	foundBridge := false
	for _, c := range cands {
		if c.Type == memory.CrossCommunityBridge {
			foundBridge = true
		}
	}
	if !foundBridge {
		t.Error("expected at least one cross_community_bridge candidate")
	}
	if len(g.candidates) != len(cands) {
		t.Error("expected candidates to be persisted via ReplaceDiscoveryCandidates")
	}
}

func TestDiscover_FiltersToPositiveRelevance(t *testing.T) {
	t.Parallel()
	g := buildBridgedGraph()
	e := &analytics.Engine{Graph: g}
	results, err := e.Discover(context.Background(), "a1", 0.6, 10)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	for _, r := range results {
		if r.Relevance <= 0 {
			t.Errorf("result %q has non-positive relevance %v", r.Entity, r.Relevance)
		}
		if r.Serendipity <= 0.1 {
			t.Errorf("result %q has serendipity %v, want > 0.1", r.Entity, r.Serendipity)
		}
	}
}

func TestExplorePaths_WithTargetReturnsShortestPath(t *testing.T) {
	t.Parallel()
	g := buildBridgedGraph()
	e := &analytics.Engine{Graph: g}
	paths, err := e.ExplorePaths(context.Background(), "a1", "b1", 3, 5)
	if err != nil {
		t.Fatalf("ExplorePaths: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("expected at least one path")
	}
	if paths[0].Steps[0].Entity != "a1" {
		t.Errorf("path should start at source, got %q", paths[0].Steps[0].Entity)
	}
}
