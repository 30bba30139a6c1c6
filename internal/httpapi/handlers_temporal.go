package httpapi

import (
	"net/http"
	"time"

	"github.com/aletheia-mem/aletheia/internal/temporal"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

func parseTimeField(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

type createEpisodeBody struct {
	Content    string `json:"content"`
	AgentID    string `json:"agent_id"`
	SessionID  string `json:"session_id"`
	Source     string `json:"source"`
	OccurredAt string `json:"occurred_at"`
}

func (s *Server) handleCreateEpisode(w http.ResponseWriter, r *http.Request) {
	var body createEpisodeBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req := temporal.CreateEpisodeRequest{
		Content: body.Content, AgentID: body.AgentID, SessionID: body.SessionID, Source: body.Source,
	}
	if t := parseTimeField(body.OccurredAt); t != nil {
		req.OccurredAt = *t
	}
	ep, err := s.Temporal.CreateEpisode(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"episode": episodeDTO(ep)})
}

func (s *Server) handleGetEpisodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window := memory.TemporalWindow{Since: parseTimeField(q.Get("since")), Until: parseTimeField(q.Get("until"))}
	eps, err := s.Temporal.GetEpisodes(r.Context(), q.Get("agent_id"), window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"episodes": episodesDTO(eps)})
}

type createFactBody struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	OccurredAt string  `json:"occurred_at"`
	Confidence float64 `json:"confidence"`
	EpisodeID  string  `json:"episode_id"`
}

func (s *Server) handleCreateFact(w http.ResponseWriter, r *http.Request) {
	var body createFactBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.Subject == "" || body.Predicate == "" || body.Object == "" {
		writeError(w, http.StatusBadRequest, "subject, predicate and object are required")
		return
	}
	req := temporal.CreateFactRequest{
		Subject: body.Subject, Predicate: body.Predicate, Object: body.Object,
		Confidence: body.Confidence, EpisodeID: body.EpisodeID,
	}
	if t := parseTimeField(body.OccurredAt); t != nil {
		req.OccurredAt = *t
	}
	fact, err := s.Temporal.CreateFact(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"fact": factDTO(fact)})
}

type invalidateFactBody struct {
	Subject   string  `json:"subject"`
	Predicate string  `json:"predicate"`
	Object    *string `json:"object"`
	Reason    string  `json:"reason"`
}

func (s *Server) handleInvalidateFact(w http.ResponseWriter, r *http.Request) {
	var body invalidateFactBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	n, err := s.Temporal.Invalidate(r.Context(), body.Subject, body.Predicate, body.Object, body.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"invalidated": n})
}

type sinceBody struct {
	Since  string `json:"since"`
	Entity string `json:"entity"`
}

func (s *Server) handleTemporalSince(w http.ResponseWriter, r *http.Request) {
	var body sinceBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	since := parseTimeField(body.Since)
	if since == nil {
		writeError(w, http.StatusBadRequest, "since is required and must be RFC3339")
		return
	}
	recorded, invalidated, err := s.Temporal.QuerySince(r.Context(), *since, body.Entity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"recorded": factsDTO(recorded), "invalidated": factsDTO(invalidated)})
}

type whatChangedBody struct {
	Entity string `json:"entity"`
	Since  string `json:"since"`
	Until  string `json:"until"`
}

func (s *Server) handleWhatChanged(w http.ResponseWriter, r *http.Request) {
	var body whatChangedBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	window := memory.TemporalWindow{Since: parseTimeField(body.Since), Until: parseTimeField(body.Until)}
	active, historical, err := s.Temporal.WhatChanged(r.Context(), body.Entity, window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"active": factsDTO(active), "historical": factsDTO(historical)})
}

type atTimeBody struct {
	At     string `json:"at"`
	Entity string `json:"entity"`
}

func (s *Server) handleAtTime(w http.ResponseWriter, r *http.Request) {
	var body atTimeBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	at := parseTimeField(body.At)
	if at == nil {
		writeError(w, http.StatusBadRequest, "at is required and must be RFC3339")
		return
	}
	facts, err := s.Temporal.AtTime(r.Context(), *at, body.Entity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"facts": factsDTO(facts)})
}

func (s *Server) handleTemporalStats(w http.ResponseWriter, r *http.Request) {
	open, closed, episodes, err := s.Temporal.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"open_facts": open, "closed_facts": closed, "episodes": episodes})
}
