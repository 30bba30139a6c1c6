// Package temporal implements C6: episode recording and bi-temporal fact
// management on top of a [memory.GraphStore].
package temporal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aletheia-mem/aletheia/internal/retrieval"
	"github.com/aletheia-mem/aletheia/internal/vocabulary"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// Engine implements C6 over a graph store.
type Engine struct {
	Graph memory.GraphStore
}

// CreateEpisodeRequest is the input to [Engine.CreateEpisode].
type CreateEpisodeRequest struct {
	Content    string
	AgentID    string
	SessionID  string
	Source     string
	OccurredAt time.Time
}

// CreateEpisode records an interaction turn and links it via MENTIONS edges
// to every entity extracted from Content, per spec.md §4.6.
func (e *Engine) CreateEpisode(ctx context.Context, req CreateEpisodeRequest) (memory.Episode, error) {
	if strings.TrimSpace(req.Content) == "" {
		return memory.Episode{}, fmt.Errorf("temporal: content must not be empty")
	}

	occurred := req.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	extracted := retrieval.ExtractEntities(req.Content)
	mentions := make([]string, 0, len(extracted))
	for _, ent := range extracted {
		norm := vocabulary.NormalizeEntityName(ent)
		if vocabulary.IsValidEntity(norm) {
			mentions = append(mentions, norm)
			_ = e.Graph.UpsertEntity(ctx, memory.Entity{Name: norm, DisplayName: ent, Community: -1})
		}
	}

	preview := req.Content
	if r := []rune(preview); len(r) > 500 {
		preview = string(r[:500])
	}

	ep := memory.Episode{
		ID:             newEpisodeID(),
		ContentPreview: preview,
		AgentID:        req.AgentID,
		SessionID:      req.SessionID,
		Source:         req.Source,
		OccurredAt:     occurred,
		RecordedAt:     time.Now().UTC(),
		Mentions:       mentions,
	}
	if err := e.Graph.CreateEpisode(ctx, ep); err != nil {
		return memory.Episode{}, fmt.Errorf("temporal: create episode: %w", err)
	}
	return ep, nil
}

// GetEpisodes returns episodes for agentID within window.
func (e *Engine) GetEpisodes(ctx context.Context, agentID string, window memory.TemporalWindow) ([]memory.Episode, error) {
	return e.Graph.GetEpisodes(ctx, agentID, window)
}

// CreateFactRequest is the input to [Engine.CreateFact].
type CreateFactRequest struct {
	Subject    string
	Predicate  string
	Object     string
	OccurredAt time.Time
	Confidence float64
	EpisodeID  string
}

// CreateFact normalizes subject/predicate/object and delegates to the
// graph's close-then-open transaction, per spec.md §4.6.
func (e *Engine) CreateFact(ctx context.Context, req CreateFactRequest) (memory.TemporalFact, error) {
	subj := vocabulary.NormalizeEntityName(req.Subject)
	obj := vocabulary.NormalizeEntityName(req.Object)
	if subj == "" || obj == "" {
		return memory.TemporalFact{}, fmt.Errorf("temporal: subject and object must not be empty")
	}
	pred := string(vocabulary.NormalizeType(req.Predicate))

	occurred := req.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	confidence := req.Confidence
	if confidence == 0 {
		confidence = 1
	}

	_ = e.Graph.UpsertEntity(ctx, memory.Entity{Name: subj, DisplayName: req.Subject, Community: -1})
	_ = e.Graph.UpsertEntity(ctx, memory.Entity{Name: obj, DisplayName: req.Object, Community: -1})

	fact, err := e.Graph.CreateFact(ctx, memory.TemporalFact{
		Subject: subj, Predicate: pred, Object: obj,
		ValidFrom: occurred, OccurredAt: occurred,
		Confidence: confidence, SourceEpisodeID: req.EpisodeID,
	})
	if err != nil {
		return memory.TemporalFact{}, fmt.Errorf("temporal: create fact: %w", err)
	}
	return fact, nil
}

// Invalidate closes the open fact matching (subject, predicate[, object])
// with reason recorded on the closed row.
func (e *Engine) Invalidate(ctx context.Context, subject, predicate string, object *string, reason string) (int, error) {
	subj := vocabulary.NormalizeEntityName(subject)
	pred := string(vocabulary.NormalizeType(predicate))
	var obj *string
	if object != nil {
		n := vocabulary.NormalizeEntityName(*object)
		obj = &n
	}
	n, err := e.Graph.InvalidateFact(ctx, subj, pred, obj, reason)
	if err != nil {
		return 0, fmt.Errorf("temporal: invalidate: %w", err)
	}
	return n, nil
}

// QuerySince returns facts recorded or invalidated since the cutoff for an
// optional entity filter.
func (e *Engine) QuerySince(ctx context.Context, since time.Time, entity string) (recorded, invalidated []memory.TemporalFact, err error) {
	var norm string
	if entity != "" {
		norm = vocabulary.NormalizeEntityName(entity)
	}
	return e.Graph.FactsSince(ctx, since, norm)
}

// WhatChanged returns the active and historical facts touching entity within
// window.
func (e *Engine) WhatChanged(ctx context.Context, entity string, window memory.TemporalWindow) (active, historical []memory.TemporalFact, err error) {
	return e.Graph.WhatChanged(ctx, vocabulary.NormalizeEntityName(entity), window)
}

// AtTime reconstructs the facts open as of at for entity.
func (e *Engine) AtTime(ctx context.Context, at time.Time, entity string) ([]memory.TemporalFact, error) {
	var norm string
	if entity != "" {
		norm = vocabulary.NormalizeEntityName(entity)
	}
	return e.Graph.FactsAtTime(ctx, at, norm)
}

// Stats returns the open/closed fact and episode counts for GET /graph_stats.
func (e *Engine) Stats(ctx context.Context) (openFacts, closedFacts, episodes int, err error) {
	return e.Graph.TemporalStats(ctx)
}

func newEpisodeID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return "ep_" + hex.EncodeToString(b[:])
}
