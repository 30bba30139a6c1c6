package httpapi

import (
	"time"

	"github.com/aletheia-mem/aletheia/internal/retrieval"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// pointDTO is the wire representation of a [memory.Point]. Embedding is
// deliberately omitted — it is never useful to an HTTP caller and would
// bloat every response.
func pointDTO(p memory.Point) map[string]any {
	return map[string]any{
		"id":           p.ID,
		"display":      p.Display,
		"text":         p.Text,
		"user_id":      p.UserID,
		"agent_id":     p.AgentID,
		"source":       p.Source,
		"session_id":   p.SessionID,
		"confidence":   p.Confidence,
		"created_at":   p.CreatedAt.Format(time.RFC3339),
		"metadata":     p.Metadata,
		"content_hash": p.ContentHash,
	}
}

func resultDTO(r retrieval.Result) map[string]any {
	dto := pointDTO(r.Point)
	dto["score"] = r.Score
	// match_source is retrieval's vector/graph provenance tag; it is kept
	// separate from "source" (the point's own ingestion source) so neither
	// overwrites the other.
	dto["match_source"] = r.Source
	return dto
}

func resultsDTO(results []retrieval.Result) []map[string]any {
	out := make([]map[string]any, len(results))
	for i, r := range results {
		out[i] = resultDTO(r)
	}
	return out
}

func entityDTO(e memory.Entity) map[string]any {
	return map[string]any{
		"name":         e.Name,
		"display_name": e.DisplayName,
		"labels":       e.Labels,
		"pagerank":     e.PageRank,
		"community":    e.Community,
	}
}

func entitiesDTO(entities []memory.Entity) []map[string]any {
	out := make([]map[string]any, len(entities))
	for i, e := range entities {
		out[i] = entityDTO(e)
	}
	return out
}

func episodeDTO(ep memory.Episode) map[string]any {
	return map[string]any{
		"id":              ep.ID,
		"content_preview": ep.ContentPreview,
		"agent_id":        ep.AgentID,
		"session_id":      ep.SessionID,
		"source":          ep.Source,
		"occurred_at":     ep.OccurredAt.Format(time.RFC3339),
		"recorded_at":     ep.RecordedAt.Format(time.RFC3339),
		"mentions":        ep.Mentions,
	}
}

func episodesDTO(eps []memory.Episode) []map[string]any {
	out := make([]map[string]any, len(eps))
	for i, ep := range eps {
		out[i] = episodeDTO(ep)
	}
	return out
}

func factDTO(f memory.TemporalFact) map[string]any {
	dto := map[string]any{
		"id":                  f.ID,
		"subject":             f.Subject,
		"predicate":           f.Predicate,
		"object":              f.Object,
		"valid_from":          f.ValidFrom.Format(time.RFC3339),
		"occurred_at":         f.OccurredAt.Format(time.RFC3339),
		"recorded_at":         f.RecordedAt.Format(time.RFC3339),
		"confidence":          f.Confidence,
		"source_episode_id":   f.SourceEpisodeID,
		"invalidation_reason": f.InvalidationReason,
	}
	if f.ValidTo != nil {
		dto["valid_to"] = f.ValidTo.Format(time.RFC3339)
	}
	return dto
}

func factsDTO(facts []memory.TemporalFact) []map[string]any {
	out := make([]map[string]any, len(facts))
	for i, f := range facts {
		out[i] = factDTO(f)
	}
	return out
}

func foresightDTO(f memory.Foresight) map[string]any {
	dto := map[string]any{
		"id":         f.ID,
		"entity":     f.Entity,
		"signal":     f.Signal,
		"activation": f.Activation.Format(time.RFC3339),
		"weight":     f.Weight,
	}
	if f.Expiry != nil {
		dto["expiry"] = f.Expiry.Format(time.RFC3339)
	}
	return dto
}

func foresightsDTO(fs []memory.Foresight) []map[string]any {
	out := make([]map[string]any, len(fs))
	for i, f := range fs {
		out[i] = foresightDTO(f)
	}
	return out
}

func candidateDTO(c memory.DiscoveryCandidate) map[string]any {
	return map[string]any{
		"id":           c.ID,
		"entity_a":     c.EntityA,
		"entity_b":     c.EntityB,
		"type":         string(c.Type),
		"bridge_score": c.BridgeScore,
		"community_a":  c.CommunityA,
		"community_b":  c.CommunityB,
		"generated_at": c.GeneratedAt.Format(time.RFC3339),
	}
}

func candidatesDTO(cs []memory.DiscoveryCandidate) []map[string]any {
	out := make([]map[string]any, len(cs))
	for i, c := range cs {
		out[i] = candidateDTO(c)
	}
	return out
}
