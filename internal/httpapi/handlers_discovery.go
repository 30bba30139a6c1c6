package httpapi

import (
	"net/http"
	"time"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

type discoverBody struct {
	Topic         string  `json:"topic"`
	NoveltyWeight float64 `json:"novelty_weight"`
	MaxResults    int     `json:"max_results"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var body discoverBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	results, err := s.Analytics.Discover(r.Context(), body.Topic, body.NoveltyWeight, body.MaxResults)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := make([]map[string]any, len(results))
	for i, res := range results {
		dtos[i] = map[string]any{
			"entity": res.Entity, "relevance": res.Relevance, "novelty": res.Novelty,
			"serendipity": res.Serendipity, "community": res.Community, "neighbors": res.Neighbors,
		}
	}
	writeOK(w, map[string]any{"results": dtos})
}

type explorePathsBody struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	MaxDepth int    `json:"max_depth"`
	MaxPaths int    `json:"max_paths"`
}

func (s *Server) handleExplorePaths(w http.ResponseWriter, r *http.Request) {
	var body explorePathsBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	paths, err := s.Analytics.ExplorePaths(r.Context(), body.Source, body.Target, body.MaxDepth, body.MaxPaths)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := make([]map[string]any, len(paths))
	for i, p := range paths {
		steps := make([]map[string]any, len(p.Steps))
		for j, st := range p.Steps {
			steps[j] = map[string]any{"entity": st.Entity, "relationship": st.Relationship}
		}
		dtos[i] = map[string]any{
			"steps": steps, "detour": p.Detour, "communities_traversed": p.CommunitiesTraversed,
		}
	}
	writeOK(w, map[string]any{"paths": dtos})
}

func (s *Server) handleGenerateCandidates(w http.ResponseWriter, r *http.Request) {
	cands, err := s.Analytics.GenerateCandidates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"candidates": candidatesDTO(cands)})
}

func (s *Server) handleDiscoveryCandidates(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parseInt(v); err == nil && n > 0 {
			limit = n
		}
	}
	cands, err := s.Graph.DiscoveryCandidates(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"candidates": candidatesDTO(cands)})
}

func (s *Server) handleDiscoveryStats(w http.ResponseWriter, r *http.Request) {
	cands, err := s.Graph.DiscoveryCandidates(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entities, relationships, err := s.Graph.GraphStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{
		"candidates": len(cands), "entities": entities, "relationships": relationships,
	})
}

type foresightAddBody struct {
	Entity string  `json:"entity"`
	Signal string  `json:"signal"`
	Weight float64 `json:"weight"`
	Expiry string  `json:"expiry"`
}

func (s *Server) handleForesightAdd(w http.ResponseWriter, r *http.Request) {
	var body foresightAddBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	f := memory.Foresight{
		Entity: body.Entity, Signal: body.Signal, Weight: body.Weight, Activation: time.Now().UTC(),
	}
	f.Expiry = parseTimeField(body.Expiry)
	if err := s.Graph.UpsertForesight(r.Context(), f); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleForesightActive(w http.ResponseWriter, r *http.Request) {
	fs, err := s.Graph.ActiveForesights(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"foresights": foresightsDTO(fs)})
}

type foresightDecayBody struct {
	Amount float64 `json:"amount"`
}

func (s *Server) handleForesightDecay(w http.ResponseWriter, r *http.Request) {
	var body foresightDecayBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.Amount == 0 {
		body.Amount = 0.1
	}
	n, err := s.Graph.DecayForesights(r.Context(), body.Amount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"decayed": n})
}
