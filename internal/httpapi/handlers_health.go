package httpapi

import "net/http"

// handleHealth implements GET /health per spec.md §6: {ok, version,
// llm{tier,provider,model,extraction_enabled}, checks{qdrant,embedder,neo4j}}.
// The check names are the external contract's — both "qdrant" and "neo4j"
// back onto the same pgvector-backed Postgres store in this implementation.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"qdrant":   "unavailable",
		"embedder": "unavailable",
		"neo4j":    "unavailable",
	}
	if s.VectorAvailability != nil && s.VectorAvailability.Available(r.Context()) {
		checks["qdrant"] = "ok"
	}
	if s.GraphAvailability != nil && s.GraphAvailability.Available(r.Context()) {
		checks["neo4j"] = "ok"
	}
	if s.Embedder != nil {
		checks["embedder"] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"version": s.Version,
		"llm": map[string]any{
			"tier":               string(s.Detection.Tier),
			"provider":           s.Detection.Provider,
			"model":              s.Detection.Model,
			"extraction_enabled": s.Detection.ExtractionEnabled(),
		},
		"checks": checks,
	})
}
