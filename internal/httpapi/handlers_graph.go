package httpapi

import (
	"net/http"

	"github.com/aletheia-mem/aletheia/internal/ingestion"
)

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	entities, relationships, err := s.Graph.GraphStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"entities": entities, "relationships": relationships})
}

func (s *Server) handleGraphAnalyze(w http.ResponseWriter, r *http.Request) {
	res, err := s.Analytics.Analyze(r.Context(), true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dedup := make([]map[string]any, len(res.DedupCandidates))
	for i, d := range res.DedupCandidates {
		dedup[i] = map[string]any{"entity_a": d.EntityA, "entity_b": d.EntityB, "jaccard": d.Jaccard}
	}
	writeOK(w, map[string]any{
		"pagerank": res.PageRank, "community": res.Community, "dedup_candidates": dedup,
	})
}

func (s *Server) handleGraphExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("mode")
	if mode == "" {
		mode = "all"
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := parseInt(v); err == nil {
			limit = n
		}
	}
	var community *int
	if v := q.Get("community"); v != "" {
		if n, err := parseInt(v); err == nil {
			community = &n
		}
	}
	entities, err := s.Analytics.Export(r.Context(), mode, limit, community)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"entities": entitiesDTO(entities)})
}

func (s *Server) handleNormalizeRelationships(w http.ResponseWriter, r *http.Request) {
	n, err := ingestion.NormalizeRelationships(r.Context(), s.Graph)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"rewritten": n})
}
