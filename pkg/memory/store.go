// Package memory defines the storage-gateway interfaces shared by the
// ingestion, retrieval, temporal, evolution and analytics components.
//
// The substrate is split across two backends:
//
//   - [VectorIndex]: dense-vector similarity search over [Point] records
//     (Memory Points). Backed in production by Postgres + pgvector.
//   - [GraphStore]: the entity/relationship property graph, bi-temporal
//     facts, episodes, access telemetry, foresight signals and discovery
//     candidates. Backed in production by the same Postgres instance using
//     recursive CTEs for traversal.
//
// Both backends are deliberately kept separate (no shared transaction):
// §5 of the design accepts eventual reconciliation between vector and graph
// writes via background normalization rather than two-phase commit.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// PointFilter narrows a vector search to a subset of points. UserID and
// non-empty Domains are applied as AND conditions; the Postgres Search does
// not apply AgentID, and callers filter results by agent afterwards.
type PointFilter struct {
	UserID  string // required
	AgentID string // not applied by the Postgres Search; see internal/retrieval's filterByAgent
	Domains []string
}

// PointResult pairs a retrieved point with its similarity score (1 - cosine
// distance; higher is better) assigned by the vector backend.
type PointResult struct {
	Point Point
	Score float64
}

// VectorIndex is the L2-equivalent layer: a dense-vector store for Memory
// Points.
type VectorIndex interface {
	// UpsertPoint inserts pt, replacing any existing point with the same ID.
	UpsertPoint(ctx context.Context, pt Point) error

	// UpsertPoints inserts a batch of points, replacing any with the same ID,
	// used by add_batch's chunked upsert. The Postgres implementation issues
	// one statement per point, in one transaction per chunk of 100.
	UpsertPoints(ctx context.Context, pts []Point) error

	// GetPoint retrieves a point by ID. Returns (nil, nil) when absent.
	GetPoint(ctx context.Context, id string) (*Point, error)

	// DeletePoint removes a point. Deleting an absent point is not an error.
	DeletePoint(ctx context.Context, id string) error

	// ContentHash looks up an existing point by (UserID, ContentHash).
	// Returns ("", false, nil) when no match exists.
	ContentHash(ctx context.Context, userID, hash string) (id string, found bool, err error)

	// ContentHashes batch-checks many hashes at once for add_batch.
	ContentHashes(ctx context.Context, userID string, hashes []string) (map[string]string, error)

	// Search finds the topK points closest to embedding, ordered by
	// descending Score.
	Search(ctx context.Context, embedding []float32, topK int, filter PointFilter) ([]PointResult, error)

	// ListPoints returns up to limit points for (userID, agentID) ordered by
	// CreatedAt descending, used by GET /memories and by decay/consolidate
	// fetch passes.
	ListPoints(ctx context.Context, userID, agentID string, limit int) ([]Point, error)
}

// EntityFilter narrows FindEntities queries.
type EntityFilter struct {
	NameContains string
	Community    *int
	Limit        int
}

// relQueryOptions accumulates options for [GraphStore.GetRelationships].
type relQueryOptions struct {
	relTypes     []string
	directionIn  bool
	directionOut bool
	limit        int
}

// RelQueryOpt is a functional option for [GraphStore.GetRelationships].
type RelQueryOpt func(*relQueryOptions)

// WithRelTypes restricts results to the given relationship types.
func WithRelTypes(relTypes ...string) RelQueryOpt {
	return func(o *relQueryOptions) { o.relTypes = append(o.relTypes, relTypes...) }
}

// WithIncoming includes inbound edges (entity is the target).
func WithIncoming() RelQueryOpt { return func(o *relQueryOptions) { o.directionIn = true } }

// WithOutgoing includes outbound edges (entity is the source). Default.
func WithOutgoing() RelQueryOpt { return func(o *relQueryOptions) { o.directionOut = true } }

// WithRelLimit caps the number of relationships returned.
func WithRelLimit(n int) RelQueryOpt { return func(o *relQueryOptions) { o.limit = n } }

// ApplyRelQueryOpts resolves a slice of [RelQueryOpt] for storage backends.
func ApplyRelQueryOpts(opts []RelQueryOpt) (relTypes []string, dirIn, dirOut bool, limit int) {
	o := &relQueryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if !o.directionIn && !o.directionOut {
		o.directionOut = true
	}
	return o.relTypes, o.directionIn, o.directionOut, o.limit
}

// traversalOptions accumulates options for [GraphStore.Neighbors].
type traversalOptions struct {
	relTypes []string
	maxNodes int
}

// TraversalOpt is a functional option for [GraphStore.Neighbors].
type TraversalOpt func(*traversalOptions)

// TraverseRelTypes restricts traversal to the given edge types.
func TraverseRelTypes(relTypes ...string) TraversalOpt {
	return func(o *traversalOptions) { o.relTypes = append(o.relTypes, relTypes...) }
}

// TraverseMaxNodes caps the number of entities returned by a traversal.
func TraverseMaxNodes(n int) TraversalOpt { return func(o *traversalOptions) { o.maxNodes = n } }

// ApplyTraversalOpts resolves a slice of [TraversalOpt] for storage backends.
func ApplyTraversalOpts(opts []TraversalOpt) (relTypes []string, maxNodes int) {
	o := &traversalOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o.relTypes, o.maxNodes
}

// TemporalWindow bounds a temporal query by recorded-time or event-time.
type TemporalWindow struct {
	Since *time.Time
	Until *time.Time
}

// GraphStore is the L3-equivalent layer: the entity/relationship property
// graph plus the bi-temporal fact store, episode log, access telemetry,
// foresight signals and discovery candidates that ride on top of it.
type GraphStore interface {
	// --- C1/C3/C8 entity & relationship CRUD ---

	UpsertEntity(ctx context.Context, e Entity) error
	GetEntity(ctx context.Context, name string) (*Entity, error)
	FindEntities(ctx context.Context, filter EntityFilter) ([]Entity, error)
	DeleteEntity(ctx context.Context, name string) error
	DeleteOrphanEntities(ctx context.Context) (int, error)

	UpsertRelationship(ctx context.Context, r Relationship) error
	GetRelationships(ctx context.Context, entity string, opts ...RelQueryOpt) ([]Relationship, error)
	DeleteRelationship(ctx context.Context, source, target string, relType RelationType) error
	AllRelationshipTypes(ctx context.Context) ([]string, error)
	RewriteRelationshipType(ctx context.Context, from string, to RelationType) (int, error)
	AllRelationshipsForProjection(ctx context.Context) ([]Relationship, error)
	WriteScores(ctx context.Context, scores map[string]struct {
		PageRank  float64
		Community int
	}) error

	Neighbors(ctx context.Context, entity string, depth int, opts ...TraversalOpt) ([]Entity, error)
	FindPath(ctx context.Context, from, to string, maxDepth int) ([]Entity, []Relationship, error)

	// --- C6 temporal engine ---

	CreateEpisode(ctx context.Context, ep Episode) error
	GetEpisodes(ctx context.Context, agentID string, window TemporalWindow) ([]Episode, error)
	AddMentions(ctx context.Context, episodeID string, entities []string) error

	CreateFact(ctx context.Context, f TemporalFact) (TemporalFact, error)
	InvalidateFact(ctx context.Context, subject, predicate string, object *string, reason string) (int, error)
	FactsSince(ctx context.Context, since time.Time, entity string) (recorded, invalidated []TemporalFact, err error)
	WhatChanged(ctx context.Context, entity string, window TemporalWindow) (active, historical []TemporalFact, err error)
	FactsAtTime(ctx context.Context, at time.Time, entity string) ([]TemporalFact, error)
	TemporalStats(ctx context.Context) (openFacts, closedFacts, episodes int, err error)

	// --- C7 evolution & consolidation ---

	RecordAccess(ctx context.Context, memoryID string) error
	GetAccess(ctx context.Context, memoryIDs []string) (map[string]Access, error)
	RecordDecay(ctx context.Context, memoryID string) error
	RecordEvolution(ctx context.Context, oldID, newID string) error

	// --- C8 analytics & discovery ---

	UpsertForesight(ctx context.Context, f Foresight) error
	ActiveForesights(ctx context.Context, now time.Time) ([]Foresight, error)
	DecayForesights(ctx context.Context, amount float64) (int, error)

	ReplaceDiscoveryCandidates(ctx context.Context, cands []DiscoveryCandidate) error
	DiscoveryCandidates(ctx context.Context, limit int) ([]DiscoveryCandidate, error)

	// GraphStats returns coarse counts for GET /graph_stats.
	GraphStats(ctx context.Context) (entities, relationships int, err error)
}
