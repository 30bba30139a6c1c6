// Package ingestion implements C4: dedup, embedding, fact extraction and
// batch direct-write.
package ingestion

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aletheia-mem/aletheia/internal/retrieval"
	"github.com/aletheia-mem/aletheia/internal/vocabulary"
	"github.com/aletheia-mem/aletheia/pkg/memory"
	"github.com/aletheia-mem/aletheia/pkg/provider/embeddings"
	"github.com/aletheia-mem/aletheia/pkg/provider/llm"
)

// Named dedup thresholds, surfaced per spec.md §9.
const (
	// SemanticDedupThreshold (τ_a) is add()'s top-3-neighbor dedup cutoff.
	SemanticDedupThreshold = 0.85

	// DirectDedupThreshold (τ_dd) is add_direct()'s top-1-neighbor cutoff.
	DirectDedupThreshold = 0.90

	// batchUpsertChunkSize mirrors [memory.VectorIndex.UpsertPoints]'s own
	// chunking. AddBatch does not use it: it embeds every new text in a
	// single EmbedBatch call.
	batchUpsertChunkSize = 100
)

var ErrEmptyText = errors.New("ingestion: text must not be empty")

// Engine implements C4 over a vector index, graph store, embedding
// provider, and optional fact-extraction LLM. LLM is nil in T3 (embed-only)
// mode: Add then stores raw text without extraction, per spec.md §4.4 step 3.
type Engine struct {
	Vector   memory.VectorIndex
	Graph    memory.GraphStore
	Embedder embeddings.Provider
	LLM      llm.Provider // nil => T3 embed-only mode

	// LinkGenerationEnabled gates the generate_links post-commit task.
	LinkGenerationEnabled bool

	// Tasks, if set, receives post-commit fire-and-forget work instead of
	// it being launched in a new goroutine directly — lets callers bound
	// concurrency with a shared worker pool. May be nil.
	Tasks *Pool
}

// AddRequest is the input to [Engine.Add] and [Engine.AddDirect]. Source,
// SessionID and Confidence are only consumed by AddDirect's pre-extracted
// path (add_direct); Add ignores them.
type AddRequest struct {
	Text     string
	UserID   string
	AgentID  string
	Metadata map[string]any

	Source     string
	SessionID  string
	Confidence float64 // 0 means default to 1
}

// AddResult is returned by [Engine.Add] and [Engine.AddDirect].
type AddResult struct {
	Deduplicated bool
	ExistingID   string
	Score        float64

	ID           string
	GraphDegraded bool
}

// Add implements spec.md §4.4's semantic-dedup ingestion path.
func (e *Engine) Add(ctx context.Context, req AddRequest) (AddResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return AddResult{}, ErrEmptyText
	}

	vec, err := e.Embedder.Embed(ctx, req.Text)
	if err != nil {
		return AddResult{}, fmt.Errorf("ingestion: embed: %w", err)
	}

	neighbors, err := e.Vector.Search(ctx, vec, 3, memory.PointFilter{UserID: req.UserID})
	if err != nil {
		// Dedup-check failures are the caller's responsibility to retry;
		// per spec.md §7 the add proceeds rather than fails. The search error
		// is dropped without being logged.
		neighbors = nil
	}
	if len(neighbors) > 0 && neighbors[0].Score > SemanticDedupThreshold {
		return AddResult{Deduplicated: true, ExistingID: neighbors[0].Point.ID, Score: neighbors[0].Score}, nil
	}

	if e.LLM == nil {
		pt := newPoint(req.Text, req.UserID, req.AgentID, req.Metadata, vec)
		if err := e.Vector.UpsertPoint(ctx, pt); err != nil {
			return AddResult{}, fmt.Errorf("ingestion: upsert point: %w", err)
		}
		return AddResult{ID: pt.ID}, nil
	}

	facts, err := e.extractFacts(ctx, req.Text)
	if err != nil {
		facts = nil // LLM failure degrades to storing the raw point only
	}

	pt := newPoint(req.Text, req.UserID, req.AgentID, req.Metadata, vec)
	if err := e.Vector.UpsertPoint(ctx, pt); err != nil {
		return AddResult{}, fmt.Errorf("ingestion: upsert point: %w", err)
	}

	graphDegraded := false
	if e.Graph != nil {
		if err := e.writeFacts(ctx, facts, req.UserID); err != nil {
			if isTransientGraphErr(err) {
				graphDegraded = true
			} else {
				return AddResult{}, fmt.Errorf("ingestion: write facts: %w", err)
			}
		}
	}

	e.launchPostCommit(req, pt.ID)

	return AddResult{ID: pt.ID, GraphDegraded: graphDegraded}, nil
}

// ExtractedFact is the LLM-extraction output shape used to project
// relationships into the graph after an Add.
type ExtractedFact struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// extractFacts asks the LLM for subject/predicate/object triples found in
// text. Returns a nil slice and an error when the LLM call or the JSON parse
// fails; Add treats either as "no facts" and stores the raw point.
func (e *Engine) extractFacts(ctx context.Context, text string) ([]ExtractedFact, error) {
	resp, err := e.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "Extract factual subject-predicate-object triples from the user's text. " +
			"Reply with a JSON array of objects {\"subject\":...,\"predicate\":...,\"object\":...}. " +
			"If there are no clear facts, reply with an empty array.",
		Messages:    []llm.Message{{Role: "user", Content: text}},
		Temperature: 0,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: extract facts: %w", err)
	}
	var facts []ExtractedFact
	if err := json.Unmarshal([]byte(extractJSONArray(resp.Content)), &facts); err != nil {
		return nil, fmt.Errorf("ingestion: parse extracted facts: %w", err)
	}
	return facts, nil
}

// extractJSONArray trims any leading/trailing prose around a JSON array the
// model may have added despite instructions.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < 0 || end < start {
		return "[]"
	}
	return s[start : end+1]
}

// writeFacts upserts the entities and relationships implied by facts.
func (e *Engine) writeFacts(ctx context.Context, facts []ExtractedFact, provenance string) error {
	for _, f := range facts {
		subj := vocabulary.NormalizeEntityName(f.Subject)
		obj := vocabulary.NormalizeEntityName(f.Object)
		if !vocabulary.IsValidEntity(subj) || !vocabulary.IsValidEntity(obj) || subj == obj {
			continue
		}
		if err := e.Graph.UpsertEntity(ctx, memory.Entity{Name: subj, DisplayName: f.Subject, Community: -1}); err != nil {
			return err
		}
		if err := e.Graph.UpsertEntity(ctx, memory.Entity{Name: obj, DisplayName: f.Object, Community: -1}); err != nil {
			return err
		}
		relType := vocabulary.NormalizeType(f.Predicate)
		if err := e.Graph.UpsertRelationship(ctx, memory.Relationship{
			Source: subj, Target: obj, Type: memory.RelationType(relType),
			Confidence: 1, Provenance: provenance, CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// launchPostCommit submits generate_links (if enabled), record_episode (if
// AgentID set) and normalize_relationships as fire-and-forget post-commit
// tasks, strictly after the commit but unordered among each other.
func (e *Engine) launchPostCommit(req AddRequest, pointID string) {
	submit := func(name string, fn func(ctx context.Context) error) {
		if e.Tasks != nil {
			e.Tasks.Submit(name, fn)
			return
		}
		go func() { _ = fn(context.Background()) }()
	}

	if e.LinkGenerationEnabled && e.Graph != nil {
		submit("generate_links", func(ctx context.Context) error {
			return e.generateLinks(ctx, req.Text, pointID)
		})
	}
	if req.AgentID != "" && e.Graph != nil {
		submit("record_episode", func(ctx context.Context) error {
			return e.recordEpisode(ctx, req)
		})
	}
	if e.Graph != nil {
		submit("normalize_relationships", func(ctx context.Context) error {
			_, err := NormalizeRelationships(ctx, e.Graph)
			return err
		})
	}
}

// generateLinks extracts entities from text and upserts a RELATES_TO edge
// between each pair found, a lightweight co-occurrence signal for later
// analytics passes.
func (e *Engine) generateLinks(ctx context.Context, text, pointID string) error {
	entities := retrieval.ExtractEntities(text)
	for i := 0; i < len(entities); i++ {
		a := vocabulary.NormalizeEntityName(entities[i])
		if !vocabulary.IsValidEntity(a) {
			continue
		}
		if err := e.Graph.UpsertEntity(ctx, memory.Entity{Name: a, DisplayName: entities[i], Community: -1}); err != nil {
			return err
		}
		for j := i + 1; j < len(entities); j++ {
			b := vocabulary.NormalizeEntityName(entities[j])
			if !vocabulary.IsValidEntity(b) || a == b {
				continue
			}
			if err := e.Graph.UpsertEntity(ctx, memory.Entity{Name: b, DisplayName: entities[j], Community: -1}); err != nil {
				return err
			}
			if err := e.Graph.UpsertRelationship(ctx, memory.Relationship{
				Source: a, Target: b, Type: memory.RelationType(vocabulary.RelatesTo), Confidence: 0.5,
				Provenance: "generate_links:" + pointID, CreatedAt: time.Now(),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordEpisode creates an Episode node and MENTIONS edges for the first 20
// extracted entities, mirroring C6's create_episode.
func (e *Engine) recordEpisode(ctx context.Context, req AddRequest) error {
	entities := retrieval.ExtractEntities(req.Text)
	if len(entities) > 20 {
		entities = entities[:20]
	}
	names := make([]string, len(entities))
	for i, ent := range entities {
		names[i] = vocabulary.NormalizeEntityName(ent)
	}

	preview := req.Text
	if len(preview) > 500 {
		preview = preview[:500]
	}
	now := time.Now()
	ep := memory.Episode{
		ID:             newEpisodeID(),
		ContentPreview: preview,
		AgentID:        req.AgentID,
		Source:         "ingestion",
		OccurredAt:     now,
		RecordedAt:     now,
		Mentions:       names,
	}
	if err := e.Graph.CreateEpisode(ctx, ep); err != nil {
		return err
	}
	return e.Graph.AddMentions(ctx, ep.ID, names)
}

// AddDirect implements spec.md §4.4's add_direct: pre-extracted facts take
// the content-hash fast path instead of a top-3 semantic search.
func (e *Engine) AddDirect(ctx context.Context, req AddRequest) (AddResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return AddResult{}, ErrEmptyText
	}

	hash := ContentHash(req.Text)
	if id, found, err := e.Vector.ContentHash(ctx, req.UserID, hash); err == nil && found {
		return AddResult{Deduplicated: true, ExistingID: id}, nil
	}

	vec, err := e.Embedder.Embed(ctx, req.Text)
	if err != nil {
		return AddResult{}, fmt.Errorf("ingestion: embed: %w", err)
	}

	neighbors, err := e.Vector.Search(ctx, vec, 1, memory.PointFilter{UserID: req.UserID})
	if err == nil && len(neighbors) > 0 && neighbors[0].Score >= DirectDedupThreshold {
		return AddResult{Deduplicated: true, ExistingID: neighbors[0].Point.ID, Score: neighbors[0].Score}, nil
	}

	pt := newPoint(req.Text, req.UserID, req.AgentID, req.Metadata, vec)
	pt.ContentHash = hash
	pt.Source = req.Source
	pt.SessionID = req.SessionID
	if req.Confidence > 0 {
		pt.Confidence = req.Confidence
	}
	if err := e.Vector.UpsertPoint(ctx, pt); err != nil {
		return AddResult{}, fmt.Errorf("ingestion: upsert point: %w", err)
	}
	return AddResult{ID: pt.ID}, nil
}

// BatchResult summarizes an [Engine.AddBatch] call.
type BatchResult struct {
	Added   int
	Skipped int
	Errors  []string
}

// AddBatch implements add_batch's vectorized path: batch hash check, batch
// embed, per-item semantic dedup, chunked upsert.
func (e *Engine) AddBatch(ctx context.Context, texts []string, userID, agentID string) (BatchResult, error) {
	var result BatchResult
	if len(texts) == 0 {
		return result, nil
	}

	hashes := make([]string, len(texts))
	for i, t := range texts {
		hashes[i] = ContentHash(t)
	}
	existing, err := e.Vector.ContentHashes(ctx, userID, hashes)
	if err != nil {
		existing = map[string]string{}
	}

	var toEmbed []string
	var toEmbedIdx []int
	seenInBatch := make(map[string]bool, len(hashes))
	for i, h := range hashes {
		if _, dup := existing[h]; dup {
			result.Skipped++
			continue
		}
		if seenInBatch[h] {
			result.Skipped++
			continue
		}
		seenInBatch[h] = true
		toEmbed = append(toEmbed, texts[i])
		toEmbedIdx = append(toEmbedIdx, i)
	}
	if len(toEmbed) == 0 {
		return result, nil
	}

	vectors, err := e.Embedder.EmbedBatch(ctx, toEmbed)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("embed batch: %v", err))
		return result, nil
	}

	var points []memory.Point
	for i, idx := range toEmbedIdx {
		neighbors, err := e.Vector.Search(ctx, vectors[i], 1, memory.PointFilter{UserID: userID})
		if err == nil && len(neighbors) > 0 && neighbors[0].Score > SemanticDedupThreshold {
			result.Skipped++
			continue
		}
		pt := newPoint(texts[idx], userID, agentID, nil, vectors[i])
		pt.ContentHash = hashes[idx]
		points = append(points, pt)
	}

	if len(points) > 0 {
		if err := e.Vector.UpsertPoints(ctx, points); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("upsert points: %v", err))
			return result, nil
		}
	}
	result.Added = len(points)
	return result, nil
}

// ImportFact is a structured triple accepted by Import.
type ImportFact struct {
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
	Domain     string
	Agent      string
}

// ImportResult summarizes an [Engine.Import] call.
type ImportResult struct {
	Imported int
	Errors   []string
}

// Import joins each structured triple into a sentence and routes it through
// Add, per spec.md §4.4.
func (e *Engine) Import(ctx context.Context, userID string, facts []ImportFact) (ImportResult, error) {
	var result ImportResult
	for _, f := range facts {
		sentence := fmt.Sprintf("%s %s %s.", f.Subject, strings.ReplaceAll(strings.ToLower(string(vocabulary.NormalizeType(f.Predicate))), "_", " "), f.Object)
		meta := map[string]any{}
		if f.Domain != "" {
			meta["domain"] = f.Domain
		}
		if _, err := e.Add(ctx, AddRequest{Text: sentence, UserID: userID, AgentID: f.Agent, Metadata: meta}); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Imported++
	}
	return result, nil
}

// newPoint constructs a Memory Point with a fresh UUID, content hash, and
// display text truncated to 500 runes.
func newPoint(text, userID, agentID string, metadata map[string]any, embedding []float32) memory.Point {
	display := text
	if r := []rune(display); len(r) > 500 {
		display = string(r[:500])
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return memory.Point{
		ID:          uuid.NewString(),
		Display:     display,
		Text:        text,
		ContentHash: ContentHash(text),
		UserID:      userID,
		AgentID:     agentID,
		Confidence:  1,
		CreatedAt:   time.Now().UTC(),
		Embedding:   embedding,
		Metadata:    metadata,
	}
}

// ContentHash computes hex(sha256(lower(trim(text)))), the unique key used
// alongside UserID by add_direct's dedup fast path.
func ContentHash(text string) string {
	norm := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

func newEpisodeID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return "ep_" + hex.EncodeToString(b[:])
}

// isTransientGraphErr classifies the graph-unreachable errors spec.md §4.4
// names explicitly (neo4j|connection|ServiceUnavailable) as degradable
// rather than terminal failures.
func isTransientGraphErr(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"neo4j", "connection", "serviceunavailable", "postgres", "pool"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// NormalizeRelationships scans every distinct relationship type currently
// stored and rewrites any that fall outside the controlled vocabulary to
// their normalized form, per spec.md §4.1's background normalization pass.
// Returns the total number of edges rewritten.
func NormalizeRelationships(ctx context.Context, graph memory.GraphStore) (int, error) {
	types, err := graph.AllRelationshipTypes(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingestion: list relationship types: %w", err)
	}
	total := 0
	for _, t := range types {
		if vocabulary.InVocabulary(vocabulary.RelationType(t)) {
			continue
		}
		normalized := vocabulary.NormalizeType(t)
		if string(normalized) == t {
			continue
		}
		n, err := graph.RewriteRelationshipType(ctx, t, memory.RelationType(normalized))
		if err != nil {
			return total, fmt.Errorf("ingestion: rewrite relationship type %q: %w", t, err)
		}
		total += n
	}
	return total, nil
}

// Pool is a bounded worker pool for fire-and-forget post-commit tasks
// (generate_links, record_episode, normalize_relationships). A failing task
// logs and drops — no caller ever observes the failure, per spec.md §9.
type Pool struct {
	sem  chan struct{}
	errg errgroup.Group
}

// NewPool returns a [Pool] that runs at most concurrency tasks at once.
func NewPool(concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Pool{sem: make(chan struct{}, concurrency)}
}

// Submit runs fn in the pool, logging (via the returned error being
// swallowed) rather than propagating failures to any caller.
func (p *Pool) Submit(name string, fn func(ctx context.Context) error) {
	p.sem <- struct{}{}
	p.errg.Go(func() error {
		defer func() { <-p.sem }()
		if err := fn(context.Background()); err != nil {
			logPostCommitFailure(name, err)
		}
		return nil
	})
}

// Wait blocks until all submitted tasks complete. Intended for tests and
// graceful shutdown, not the request path.
func (p *Pool) Wait() { _ = p.errg.Wait() }

func logPostCommitFailure(task string, err error) {
	slog.Warn("post-commit task failed", "task", task, "error", err)
}
