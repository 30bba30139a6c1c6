// Package httpapi implements C9: the sidecar's HTTP surface. A single
// [Server] wires the C4-C8 engines behind the chi router and route table of
// spec.md §6, with bearer-token auth on every route except /health.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aletheia-mem/aletheia/internal/analytics"
	"github.com/aletheia-mem/aletheia/internal/backend"
	"github.com/aletheia-mem/aletheia/internal/evolution"
	"github.com/aletheia-mem/aletheia/internal/gateway"
	healthpkg "github.com/aletheia-mem/aletheia/internal/health"
	"github.com/aletheia-mem/aletheia/internal/ingestion"
	"github.com/aletheia-mem/aletheia/internal/observe"
	"github.com/aletheia-mem/aletheia/internal/retrieval"
	"github.com/aletheia-mem/aletheia/internal/temporal"
	"github.com/aletheia-mem/aletheia/pkg/memory"
	"github.com/aletheia-mem/aletheia/pkg/provider/embeddings"
)

// Server is the process-wide handle described in SPEC_FULL.md §3.2/§8:
// constructed once at startup and read-only thereafter, Detection included
// (nothing calls backend.Refresh to swap it).
type Server struct {
	Vector    memory.VectorIndex
	Graph     memory.GraphStore
	Ingestion *ingestion.Engine
	Retrieval *retrieval.Engine
	Temporal  *temporal.Engine
	Evolution *evolution.Engine
	Analytics *analytics.Engine

	// Token is the bearer token required on every route except /health. Empty
	// disables auth.
	Token string

	// Detection is C2's current backend selection, reported by /health.
	Detection backend.Detection

	// Version is the build version string reported by /health.
	Version string

	Health *healthpkg.Handler

	// VectorAvailability and GraphAvailability back /health's "qdrant" and
	// "neo4j" checks — named for spec.md §6's external contract even though
	// both backends are pgvector/Postgres in this implementation.
	VectorAvailability *gateway.Cache
	GraphAvailability   *gateway.Cache
	Embedder            embeddings.Provider

	// Metrics backs the observability middleware. Defaults to
	// [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// Router builds the chi router for the sidecar, with auth middleware
// applied to every route except /health.
func (s *Server) Router() http.Handler {
	m := s.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(m))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	mux := http.NewServeMux()
	if s.Health != nil {
		s.Health.Register(mux)
	}
	r.Mount("/internal", http.StripPrefix("/internal", mux))

	r.Group(func(pr chi.Router) {
		pr.Use(s.authMiddleware)

		pr.Post("/add", s.handleAdd)
		pr.Post("/add_direct", s.handleAddDirect)
		pr.Post("/add_batch", s.handleAddBatch)
		pr.Post("/import", s.handleImport)
		pr.Post("/search", s.handleSearch)
		pr.Post("/search_enhanced", s.handleSearchEnhanced)
		pr.Post("/graph_search", s.handleGraphSearch)
		pr.Post("/graph_enhanced_search", s.handleGraphEnhancedSearch)
		pr.Get("/memories", s.handleListMemories)
		pr.Delete("/memories/{id}", s.handleDeleteMemory)
		pr.Post("/retract", s.handleRetract)
		pr.Post("/consolidate", s.handleConsolidate)
		pr.Post("/merge", s.handleMerge)
		pr.Get("/fact_stats", s.handleFactStats)

		pr.Post("/temporal/episodes", s.handleCreateEpisode)
		pr.Get("/temporal/episodes", s.handleGetEpisodes)
		pr.Post("/temporal/facts", s.handleCreateFact)
		pr.Post("/temporal/facts/invalidate", s.handleInvalidateFact)
		pr.Post("/temporal/since", s.handleTemporalSince)
		pr.Post("/temporal/what_changed", s.handleWhatChanged)
		pr.Post("/temporal/at_time", s.handleAtTime)
		pr.Get("/temporal/stats", s.handleTemporalStats)

		pr.Post("/evolution/check", s.handleEvolutionCheck)
		pr.Post("/evolution/reinforce", s.handleEvolutionReinforce)
		pr.Post("/evolution/decay", s.handleEvolutionDecay)
		pr.Get("/evolution/stats", s.handleEvolutionStats)

		pr.Post("/discovery/discover", s.handleDiscover)
		pr.Post("/discovery/explore_paths", s.handleExplorePaths)
		pr.Post("/discovery/generate_candidates", s.handleGenerateCandidates)
		pr.Get("/discovery/candidates", s.handleDiscoveryCandidates)
		pr.Get("/discovery/stats", s.handleDiscoveryStats)

		pr.Post("/foresight/add", s.handleForesightAdd)
		pr.Get("/foresight/active", s.handleForesightActive)
		pr.Post("/foresight/decay", s.handleForesightDecay)

		pr.Get("/graph_stats", s.handleGraphStats)
		pr.Post("/graph/analyze", s.handleGraphAnalyze)
		pr.Get("/graph/export", s.handleGraphExport)
		pr.Post("/normalize_relationships", s.handleNormalizeRelationships)
	})

	return r
}

// authMiddleware enforces the bearer token configured on Server.Token. When
// Token is empty, auth is disabled (every request accepted) per spec.md §9.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" || got != s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
