package temporal_test

import (
	"context"
	"testing"
	"time"

	"github.com/aletheia-mem/aletheia/internal/temporal"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// fakeGraph implements the slice of memory.GraphStore temporal.Engine uses;
// unused methods return zero values.
type fakeGraph struct {
	entities  map[string]memory.Entity
	episodes  []memory.Episode
	facts     []memory.TemporalFact
	nextFact  int64
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{entities: map[string]memory.Entity{}}
}

func (g *fakeGraph) UpsertEntity(_ context.Context, e memory.Entity) error {
	g.entities[e.Name] = e
	return nil
}
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

func (g *fakeGraph) CreateEpisode(_ context.Context, ep memory.Episode) error {
	g.episodes = append(g.episodes, ep)
	return nil
}
func (g *fakeGraph) GetEpisodes(_ context.Context, agentID string, _ memory.TemporalWindow) ([]memory.Episode, error) {
	var out []memory.Episode
	for _, ep := range g.episodes {
		if agentID == "" || ep.AgentID == agentID {
			out = append(out, ep)
		}
	}
	return out, nil
}
func (g *fakeGraph) AddMentions(context.Context, string, []string) error { return nil }

func (g *fakeGraph) CreateFact(_ context.Context, f memory.TemporalFact) (memory.TemporalFact, error) {
	for i := range g.facts {
		if g.facts[i].Subject == f.Subject && g.facts[i].Predicate == f.Predicate && g.facts[i].ValidTo == nil {
			closed := f.ValidFrom
			g.facts[i].ValidTo = &closed
		}
	}
	g.nextFact++
	f.ID = g.nextFact
	f.RecordedAt = time.Now().UTC()
	f.ValidTo = nil
	g.facts = append(g.facts, f)
	return f, nil
}
func (g *fakeGraph) InvalidateFact(_ context.Context, subject, predicate string, object *string, reason string) (int, error) {
	n := 0
	for i := range g.facts {
		if g.facts[i].Subject == subject && g.facts[i].Predicate == predicate && g.facts[i].ValidTo == nil {
			if object != nil && g.facts[i].Object != *object {
				continue
			}
			now := time.Now().UTC()
			g.facts[i].ValidTo = &now
			g.facts[i].InvalidationReason = reason
			n++
		}
	}
	return n, nil
}
func (g *fakeGraph) FactsSince(context.Context, time.Time, string) ([]memory.TemporalFact, []memory.TemporalFact, error) {
	return g.facts, nil, nil
}
func (g *fakeGraph) WhatChanged(_ context.Context, entity string, _ memory.TemporalWindow) ([]memory.TemporalFact, []memory.TemporalFact, error) {
	var active, historical []memory.TemporalFact
	for _, f := range g.facts {
		if f.Subject != entity && f.Object != entity {
			continue
		}
		if f.ValidTo == nil {
			active = append(active, f)
		} else {
			historical = append(historical, f)
		}
	}
	return active, historical, nil
}
func (g *fakeGraph) FactsAtTime(context.Context, time.Time, string) ([]memory.TemporalFact, error) {
	return g.facts, nil
}
func (g *fakeGraph) TemporalStats(context.Context) (int, int, int, error) {
	open, closed := 0, 0
	for _, f := range g.facts {
		if f.ValidTo == nil {
			open++
		} else {
			closed++
		}
	}
	return open, closed, len(g.episodes), nil
}

func (g *fakeGraph) RecordAccess(context.Context, string) error { return nil }
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
func (g *fakeGraph) ReplaceDiscoveryCandidates(context.Context, []memory.DiscoveryCandidate) error {
	return nil
}
func (g *fakeGraph) DiscoveryCandidates(context.Context, int) ([]memory.DiscoveryCandidate, error) {
	return nil, nil
}
func (g *fakeGraph) GraphStats(context.Context) (int, int, error) { return 0, 0, nil }

func TestCreateEpisode_ExtractsMentions(t *testing.T) {
	t.Parallel()
	g := newFakeGraph()
	e := &temporal.Engine{Graph: g}
	ep, err := e.CreateEpisode(context.Background(), temporal.CreateEpisodeRequest{
		Content: `The user visited "New York City" to meet Ada.`,
		AgentID: "agent-1",
	})
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}
	if ep.ID == "" || len(ep.ID) < 4 {
		t.Errorf("unexpected episode ID %q", ep.ID)
	}
	if len(ep.Mentions) == 0 {
		t.Error("expected at least one extracted mention")
	}
}

func TestCreateFact_ClosesPriorOpenFact(t *testing.T) {
	t.Parallel()
	g := newFakeGraph()
	e := &temporal.Engine{Graph: g}
	ctx := context.Background()

	_, err := e.CreateFact(ctx, temporal.CreateFactRequest{Subject: "Ada", Predicate: "works at", Object: "Acme"})
	if err != nil {
		t.Fatalf("CreateFact: %v", err)
	}
	_, err = e.CreateFact(ctx, temporal.CreateFactRequest{Subject: "Ada", Predicate: "works at", Object: "Globex"})
	if err != nil {
		t.Fatalf("CreateFact: %v", err)
	}

	if len(g.facts) != 2 {
		t.Fatalf("facts = %d, want 2", len(g.facts))
	}
	if g.facts[0].ValidTo == nil {
		t.Error("expected first fact to be closed once a second one opens")
	}
	if g.facts[1].ValidTo != nil {
		t.Error("expected second fact to remain open")
	}
}

func TestInvalidate_ClosesMatchingFact(t *testing.T) {
	t.Parallel()
	g := newFakeGraph()
	e := &temporal.Engine{Graph: g}
	ctx := context.Background()
	if _, err := e.CreateFact(ctx, temporal.CreateFactRequest{Subject: "Ada", Predicate: "lives in", Object: "Paris"}); err != nil {
		t.Fatalf("CreateFact: %v", err)
	}
	n, err := e.Invalidate(ctx, "Ada", "lives in", nil, "moved away")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if n != 1 {
		t.Errorf("invalidated %d facts, want 1", n)
	}
}
