// Package memory defines the durable substrate shared by the sidecar and the
// attention daemon: memory points, the entity/relationship property graph,
// bi-temporal facts, episodes, and the bookkeeping nodes (access telemetry,
// foresight signals, discovery candidates) that retrieval and analytics read
// back.
package memory

import "time"

// Point is a single durable assertion produced by ingestion. Points are never
// mutated in place: evolution deletes the old point and inserts a new one
// carrying `evolved_from` in Metadata.
type Point struct {
	ID string

	// Display is truncated to 500 runes for list views; Text is the full body
	// that was embedded.
	Display string
	Text    string

	// ContentHash is hex(sha256(strings.ToLower(strings.TrimSpace(Text)))) and
	// is unique per UserID.
	ContentHash string

	UserID  string
	AgentID string // empty means shared across the user's agents

	Source     string
	SessionID  string
	Confidence float64

	CreatedAt time.Time

	Embedding []float32

	Metadata map[string]any
}

// Entity is a named node in the property graph. Name is the normalized
// identity key; DisplayName preserves the surface form seen at first upsert.
type Entity struct {
	Name        string
	DisplayName string
	Labels      []string
	PageRank    float64 // 0 when not yet scored
	Community   int     // -1 when not yet assigned
}

// RelationType is a member of the fixed controlled vocabulary. Non-vocabulary
// values are rewritten to RelatesTo (or a closer match) on insert and by
// background normalization.
type RelationType string

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	Source     string
	Target     string
	Type       RelationType
	Confidence float64
	Provenance string
	CreatedAt  time.Time
}

// TemporalFact is a bi-temporal directed edge TEMPORAL_FACT{predicate}
// between two entities. At most one fact with ValidTo == nil may exist per
// (Subject, Predicate); creating a new one closes the prior automatically.
type TemporalFact struct {
	ID        int64
	Subject   string
	Predicate string
	Object    string

	ValidFrom time.Time
	ValidTo   *time.Time

	OccurredAt time.Time
	RecordedAt time.Time

	Confidence        float64
	SourceEpisodeID   string
	InvalidationReason string
}

// IsOpen reports whether the fact is currently valid (ValidTo is unset).
func (f TemporalFact) IsOpen() bool { return f.ValidTo == nil }

// Episode is a recorded interaction turn, linked via MENTIONS edges to the
// entities extracted from its content.
type Episode struct {
	ID             string // ep_<hex12>
	ContentPreview string
	AgentID        string
	SessionID      string
	Source         string
	OccurredAt     time.Time
	RecordedAt     time.Time
	Mentions       []string
}

// Access is per-memory telemetry keyed by memory id, used by evolution and
// consolidation to weight retrieval confidence.
type Access struct {
	MemoryID      string
	AccessCount   int
	FirstAccessed time.Time
	LastAccessed  time.Time
	DecayCount    int
	LastDecayed   time.Time
}

// Foresight is a weighted anticipatory note attached to an entity via
// HAS_FORESIGHT.
type Foresight struct {
	ID         int64
	Entity     string
	Signal     string
	Activation time.Time
	Expiry     *time.Time
	Weight     float64
}

// DiscoveryCandidateType enumerates the two kinds of precomputed discovery
// candidate.
type DiscoveryCandidateType string

const (
	CrossCommunityBridge DiscoveryCandidateType = "cross_community_bridge"
	HighBetweennessHub   DiscoveryCandidateType = "high_betweenness_hub"
)

// DiscoveryCandidate is a precomputed node surfaced for serendipitous
// retrieval, produced by C8's generate_candidates pass.
type DiscoveryCandidate struct {
	ID          int64
	EntityA     string
	EntityB     string
	Type        DiscoveryCandidateType
	BridgeScore float64
	CommunityA  int
	CommunityB  int
	GeneratedAt time.Time
}

// ContextBlock is staged context surfaced alongside an attention signal.
type ContextBlock struct {
	Title     string
	Content   string
	Source    string
	ExpiresAt *time.Time
}

// Signal is a runtime-only attention signal produced by a P1 collector and
// consumed by the P2 scorer. It is never persisted as-is (RelevantNous and
// ContextBlocks are transient).
type Signal struct {
	Source        string
	Summary       string
	Urgency       float64 // 0..1
	RelevantNous  []string
	ContextBlocks []ContextBlock
}
