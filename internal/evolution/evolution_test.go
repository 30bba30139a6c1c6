package evolution_test

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aletheia-mem/aletheia/internal/evolution"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

type fakeVector struct {
	mu     sync.Mutex
	points map[string]memory.Point
}

func newFakeVector() *fakeVector { return &fakeVector{points: map[string]memory.Point{}} }

func (f *fakeVector) UpsertPoint(_ context.Context, pt memory.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[pt.ID] = pt
	return nil
}
func (f *fakeVector) UpsertPoints(ctx context.Context, pts []memory.Point) error {
	for _, pt := range pts {
		_ = f.UpsertPoint(ctx, pt)
	}
	return nil
}
func (f *fakeVector) GetPoint(_ context.Context, id string) (*memory.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pt, ok := f.points[id]; ok {
		return &pt, nil
	}
	return nil, nil
}
func (f *fakeVector) DeletePoint(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.points, id)
	return nil
}
func (f *fakeVector) ContentHash(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeVector) ContentHashes(context.Context, string, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

// Search scores every point of the filter's user by the point's own
// Embedding[0], ignoring the query embedding: tests tag a point's desired
// score via its own Embedding[0]. Points with no embedding are skipped.
func (f *fakeVector) Search(_ context.Context, embedding []float32, topK int, filter memory.PointFilter) ([]memory.PointResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []memory.PointResult
	for _, pt := range f.points {
		if pt.UserID != filter.UserID {
			continue
		}
		if len(pt.Embedding) == 0 {
			continue
		}
		out = append(out, memory.PointResult{Point: pt, Score: float64(pt.Embedding[0])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
func (f *fakeVector) ListPoints(_ context.Context, userID, agentID string, limit int) ([]memory.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []memory.Point
	for _, pt := range f.points {
		if pt.UserID == userID {
			out = append(out, pt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeEmbedder struct{ score float32 }

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{f.score, 0}, nil
}
func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{f.score, 0}
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int  { return 2 }
func (f *fakeEmbedder) ModelID() string { return "fake-embed" }

// fakeGraph records only the method calls evolution.Engine exercises.
type fakeGraph struct {
	mu             sync.Mutex
	access         map[string]memory.Access
	evolutions     [][2]string
	relationships  []memory.Relationship
	deletedRels    int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{access: map[string]memory.Access{}}
}
func (g *fakeGraph) UpsertEntity(context.Context, memory.Entity) error { return nil }
func (g *fakeGraph) GetEntity(context.Context, string) (*memory.Entity, error) { return nil, nil }
func (g *fakeGraph) FindEntities(context.Context, memory.EntityFilter) ([]memory.Entity, error) {
	return nil, nil
}
func (g *fakeGraph) DeleteEntity(context.Context, string) error        { return nil }
func (g *fakeGraph) DeleteOrphanEntities(context.Context) (int, error) { return 0, nil }
func (g *fakeGraph) UpsertRelationship(context.Context, memory.Relationship) error { return nil }
func (g *fakeGraph) GetRelationships(_ context.Context, entity string, _ ...memory.RelQueryOpt) ([]memory.Relationship, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []memory.Relationship
	for _, r := range g.relationships {
		if r.Source == entity || r.Target == entity {
			out = append(out, r)
		}
	}
	return out, nil
}
func (g *fakeGraph) DeleteRelationship(_ context.Context, source, target string, relType memory.RelationType) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletedRels++
	return nil
}
func (g *fakeGraph) AllRelationshipTypes(context.Context) ([]string, error) { return nil, nil }
func (g *fakeGraph) RewriteRelationshipType(context.Context, string, memory.RelationType) (int, error) {
	return 0, nil
}
func (g *fakeGraph) AllRelationshipsForProjection(context.Context) ([]memory.Relationship, error) {
	return nil, nil
}
func (g *fakeGraph) WriteScores(context.Context, map[string]struct {
	PageRank  float64
	Community int
}) error {
	return nil
}
func (g *fakeGraph) Neighbors(context.Context, string, int, ...memory.TraversalOpt) ([]memory.Entity, error) {
	return nil, nil
}
func (g *fakeGraph) FindPath(context.Context, string, string, int) ([]memory.Entity, []memory.Relationship, error) {
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
func (g *fakeGraph) GetAccess(_ context.Context, ids []string) (map[string]memory.Access, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := map[string]memory.Access{}
	for _, id := range ids {
		if a, ok := g.access[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}
func (g *fakeGraph) RecordDecay(_ context.Context, memoryID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	a := g.access[memoryID]
	a.MemoryID = memoryID
	a.DecayCount++
	g.access[memoryID] = a
	return nil
}
func (g *fakeGraph) RecordEvolution(_ context.Context, oldID, newID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evolutions = append(g.evolutions, [2]string{oldID, newID})
	return nil
}
func (g *fakeGraph) UpsertForesight(context.Context, memory.Foresight) error { return nil }
func (g *fakeGraph) ActiveForesights(context.Context, time.Time) ([]memory.Foresight, error) {
	return nil, nil
}
func (g *fakeGraph) DecayForesights(context.Context, float64) (int, error) { return 0, nil }
func (g *fakeGraph) ReplaceDiscoveryCandidates(context.Context, []memory.DiscoveryCandidate) error {
	return nil
}
func (g *fakeGraph) DiscoveryCandidates(context.Context, int) ([]memory.DiscoveryCandidate, error) {
	return nil, nil
}
func (g *fakeGraph) GraphStats(context.Context) (int, int, error) { return 0, 0, nil }

func TestCheckEvolution_MergesAboveThreshold(t *testing.T) {
	t.Parallel()
	vec := newFakeVector()
	_ = vec.UpsertPoint(context.Background(), memory.Point{
		ID: "p1", UserID: "u1", Text: "Ada works at Acme.", Embedding: []float32{0.9, 0},
	})
	emb := &fakeEmbedder{score: 0.9}
	e := &evolution.Engine{Vector: vec, Graph: newFakeGraph(), Embedder: emb, DataDir: t.TempDir()}

	res, err := e.CheckEvolution(context.Background(), "u1", "Ada now works at Globex.")
	if err != nil {
		t.Fatalf("CheckEvolution: %v", err)
	}
	if !res.Evolved {
		t.Fatal("expected evolution above threshold")
	}
	if res.OldID != "p1" {
		t.Errorf("OldID = %q, want p1", res.OldID)
	}
	if _, err := vec.GetPoint(context.Background(), "p1"); err != nil {
		t.Fatalf("GetPoint: %v", err)
	}
	if pt, _ := vec.GetPoint(context.Background(), "p1"); pt != nil {
		t.Error("expected old point to be deleted")
	}
}

func TestCheckEvolution_NoMergeBelowThreshold(t *testing.T) {
	t.Parallel()
	vec := newFakeVector()
	_ = vec.UpsertPoint(context.Background(), memory.Point{
		ID: "p1", UserID: "u1", Text: "unrelated text", Embedding: []float32{0.5, 0},
	})
	e := &evolution.Engine{Vector: vec, Graph: newFakeGraph(), Embedder: &fakeEmbedder{score: 0.5}, DataDir: t.TempDir()}

	res, err := e.CheckEvolution(context.Background(), "u1", "something else entirely")
	if err != nil {
		t.Fatalf("CheckEvolution: %v", err)
	}
	if res.Evolved {
		t.Error("did not expect evolution below threshold")
	}
}

func TestConsolidate_FindsDuplicatesAboveThreshold(t *testing.T) {
	t.Parallel()
	vec := newFakeVector()
	_ = vec.UpsertPoint(context.Background(), memory.Point{ID: "a", UserID: "u1", Embedding: []float32{0.95, 0}})
	_ = vec.UpsertPoint(context.Background(), memory.Point{ID: "b", UserID: "u1", Embedding: []float32{0.95, 0}})
	e := &evolution.Engine{Vector: vec, Graph: newFakeGraph(), DataDir: t.TempDir()}

	result, err := e.Consolidate(context.Background(), "u1", 0, 0, true)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(result.Candidates) == 0 {
		t.Error("expected at least one consolidation candidate")
	}
	if result.Deleted != 0 {
		t.Error("dry run should not delete anything")
	}
}

func TestRetract_DeletesAboveThresholdAndLogs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	vec := newFakeVector()
	_ = vec.UpsertPoint(context.Background(), memory.Point{ID: "p1", UserID: "u1", Text: "bad memory", Embedding: []float32{0.9, 0}})
	e := &evolution.Engine{Vector: vec, Graph: newFakeGraph(), Embedder: &fakeEmbedder{score: 0.9}, DataDir: dir}

	result, err := e.Retract(context.Background(), "u1", "bad memory", false, false, "test retraction")
	if err != nil {
		t.Fatalf("Retract: %v", err)
	}
	if len(result.Retracted) != 1 || result.Retracted[0] != "p1" {
		t.Fatalf("Retracted = %v, want [p1]", result.Retracted)
	}
	if pt, _ := vec.GetPoint(context.Background(), "p1"); pt != nil {
		t.Error("expected retracted point to be deleted")
	}
	if _, err := os.Stat(dir + "/retraction_log.jsonl"); err != nil {
		t.Errorf("expected retraction log to exist: %v", err)
	}
}

func TestDecay_SkipsRecentlyAccessed(t *testing.T) {
	t.Parallel()
	vec := newFakeVector()
	_ = vec.UpsertPoint(context.Background(), memory.Point{ID: "fresh", UserID: "u1", Embedding: []float32{0, 0}})
	_ = vec.UpsertPoint(context.Background(), memory.Point{ID: "stale", UserID: "u1", Embedding: []float32{0, 0}})
	g := newFakeGraph()
	g.access["fresh"] = memory.Access{MemoryID: "fresh", LastAccessed: time.Now()}
	e := &evolution.Engine{Vector: vec, Graph: g, DataDir: t.TempDir()}

	result, err := e.Decay(context.Background(), "u1", 30, evolution.DefaultDecayAmount, true)
	if err != nil {
		t.Fatalf("Decay: %v", err)
	}
	found := false
	for _, id := range result.Candidates {
		if id == "fresh" {
			t.Error("fresh memory should not be a decay candidate")
		}
		if id == "stale" {
			found = true
		}
	}
	if !found {
		t.Error("expected stale memory to be a decay candidate")
	}
}
