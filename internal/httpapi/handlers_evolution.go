package httpapi

import (
	"net/http"

	"github.com/aletheia-mem/aletheia/internal/evolution"
)

type evolutionCheckBody struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func (s *Server) handleEvolutionCheck(w http.ResponseWriter, r *http.Request) {
	var body evolutionCheckBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := s.Evolution.CheckEvolution(r.Context(), body.UserID, body.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"result": map[string]any{
		"evolved": res.Evolved, "old_id": res.OldID, "new_id": res.NewID,
		"new_text": res.NewText, "similarity": res.Similarity,
	}})
}

type reinforceBody struct {
	MemoryID string `json:"memory_id"`
}

func (s *Server) handleEvolutionReinforce(w http.ResponseWriter, r *http.Request) {
	var body reinforceBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.Evolution.Reinforce(r.Context(), body.MemoryID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, nil)
}

type decayBody struct {
	UserID       string  `json:"user_id"`
	DaysInactive int     `json:"days_inactive"`
	DecayAmount  float64 `json:"decay_amount"`
	DryRun       bool    `json:"dry_run"`
}

func (s *Server) handleEvolutionDecay(w http.ResponseWriter, r *http.Request) {
	var body decayBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.DecayAmount == 0 {
		body.DecayAmount = evolution.DefaultDecayAmount
	}
	res, err := s.Evolution.Decay(r.Context(), body.UserID, body.DaysInactive, body.DecayAmount, body.DryRun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"candidates": res.Candidates, "dry_run": res.DryRun})
}

func (s *Server) handleEvolutionStats(w http.ResponseWriter, r *http.Request) {
	entities, relationships, err := s.Graph.GraphStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{
		"entities":               entities,
		"relationships":          relationships,
		"evolution_threshold":    evolution.EvolutionThreshold,
		"consolidation_threshold": evolution.DefaultConsolidationThreshold,
		"retraction_threshold":   evolution.RetractionThreshold,
	})
}
