package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aletheia-mem/aletheia/internal/ingestion"
	"github.com/aletheia-mem/aletheia/internal/retrieval"
)

type addBody struct {
	Text     string         `json:"text"`
	UserID   string         `json:"user_id"`
	AgentID  string         `json:"agent_id"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var body addBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := s.Ingestion.Add(r.Context(), ingestion.AddRequest{
		Text: body.Text, UserID: body.UserID, AgentID: body.AgentID, Metadata: body.Metadata,
	})
	if errors.Is(err, ingestion.ErrEmptyText) {
		writeError(w, http.StatusBadRequest, "empty")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"result": addResultDTO(res)})
}

type addDirectBody struct {
	Text       string         `json:"text"`
	UserID     string         `json:"user_id"`
	AgentID    string         `json:"agent_id"`
	Source     string         `json:"source"`
	SessionID  string         `json:"session_id"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}

func (s *Server) handleAddDirect(w http.ResponseWriter, r *http.Request) {
	var body addDirectBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := s.Ingestion.AddDirect(r.Context(), ingestion.AddRequest{
		Text: body.Text, UserID: body.UserID, AgentID: body.AgentID, Metadata: body.Metadata,
		Source: body.Source, SessionID: body.SessionID, Confidence: body.Confidence,
	})
	if errors.Is(err, ingestion.ErrEmptyText) {
		writeError(w, http.StatusBadRequest, "empty")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"result": addResultDTO(res)})
}

func addResultDTO(res ingestion.AddResult) map[string]any {
	return map[string]any{
		"deduplicated":   res.Deduplicated,
		"existing_id":    res.ExistingID,
		"score":          res.Score,
		"id":             res.ID,
		"graph_degraded": res.GraphDegraded,
	}
}

type addBatchBody struct {
	Texts   []string `json:"texts"`
	UserID  string   `json:"user_id"`
	AgentID string   `json:"agent_id"`
}

func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	var body addBatchBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := s.Ingestion.AddBatch(r.Context(), body.Texts, body.UserID, body.AgentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"added": res.Added, "skipped": res.Skipped, "errors": res.Errors})
}

type importBody struct {
	UserID string                   `json:"user_id"`
	Facts  []ingestion.ImportFact   `json:"facts"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var body importBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := s.Ingestion.Import(r.Context(), body.UserID, body.Facts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"imported": res.Imported, "errors": res.Errors})
}

type searchBody struct {
	Query   string   `json:"query"`
	UserID  string   `json:"user_id"`
	AgentID string   `json:"agent_id"`
	Limit   int      `json:"limit"`
	Domains []string `json:"domains"`
	Weight  float64  `json:"graph_weight"`
}

func (b searchBody) opts() retrieval.Options {
	return retrieval.Options{UserID: b.UserID, AgentID: b.AgentID, Limit: b.Limit, Domains: b.Domains}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	results, err := s.Retrieval.Search(r.Context(), body.Query, body.opts())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"results": resultsDTO(results)})
}

func (s *Server) handleSearchEnhanced(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	results, err := s.Retrieval.SearchEnhanced(r.Context(), body.Query, body.opts())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"results": resultsDTO(results)})
}

func (s *Server) handleGraphEnhancedSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	results, err := s.Retrieval.GraphEnhancedSearch(r.Context(), body.Query, body.opts(), body.Weight)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"results": resultsDTO(results)})
}

func (s *Server) handleGraphSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	all, err := s.Retrieval.GraphEnhancedSearch(r.Context(), body.Query, body.opts(), body.Weight)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"results": resultsDTO(retrieval.GraphSearch(all))})
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := parseInt(v); err == nil && n > 0 {
			limit = n
		}
	}
	points, err := s.Vector.ListPoints(r.Context(), userID, q.Get("agent_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := make([]map[string]any, len(points))
	for i, p := range points {
		dtos[i] = pointDTO(p)
	}
	writeOK(w, map[string]any{"memories": dtos})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Vector.DeletePoint(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, nil)
}

type retractBody struct {
	UserID  string `json:"user_id"`
	Query   string `json:"query"`
	Cascade bool   `json:"cascade"`
	DryRun  bool   `json:"dry_run"`
	Reason  string `json:"reason"`
}

func (s *Server) handleRetract(w http.ResponseWriter, r *http.Request) {
	var body retractBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := s.Evolution.Retract(r.Context(), body.UserID, body.Query, body.Cascade, body.DryRun, body.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"retracted": res.Retracted, "neo4j_cascade": res.GraphRemoved})
}

type consolidateBody struct {
	UserID    string  `json:"user_id"`
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
	DryRun    bool    `json:"dry_run"`
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var body consolidateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := s.Evolution.Consolidate(r.Context(), body.UserID, body.Threshold, body.Limit, body.DryRun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	candidates := make([]map[string]any, len(res.Candidates))
	for i, c := range res.Candidates {
		candidates[i] = map[string]any{"source": c.Source, "duplicate": c.Duplicate, "similarity": c.Similarity}
	}
	writeOK(w, map[string]any{"candidates": candidates, "deleted": res.Deleted, "dry_run": res.DryRun})
}

type mergeBody struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var body mergeBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := s.Evolution.MergeMemories(r.Context(), body.SourceID, body.TargetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"result": map[string]any{
		"new_id": res.NewID, "new_text": res.NewText,
	}})
}

func (s *Server) handleFactStats(w http.ResponseWriter, r *http.Request) {
	open, closed, episodes, err := s.Temporal.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"open_facts": open, "closed_facts": closed, "episodes": episodes})
}
