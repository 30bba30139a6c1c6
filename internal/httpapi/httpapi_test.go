package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aletheia-mem/aletheia/internal/httpapi"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// fakeGraph embeds a nil memory.GraphStore so it satisfies the interface
// while only GraphStats is actually exercised by these tests.
type fakeGraph struct {
	memory.GraphStore
	entities, relationships int
}

func (f *fakeGraph) GraphStats(ctx context.Context) (int, int, error) {
	return f.entities, f.relationships, nil
}

func TestRouter_HealthRequiresNoAuth(t *testing.T) {
	t.Parallel()
	s := &httpapi.Server{Token: "secret", Version: "test"}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 (no auth required)", resp.StatusCode)
	}
}

func TestRouter_ProtectedRouteRejectsMissingToken(t *testing.T) {
	t.Parallel()
	s := &httpapi.Server{Token: "secret", Graph: &fakeGraph{}}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/graph_stats")
	if err != nil {
		t.Fatalf("GET /graph_stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a bearer token", resp.StatusCode)
	}
}

func TestRouter_ProtectedRouteAcceptsValidToken(t *testing.T) {
	t.Parallel()
	s := &httpapi.Server{Token: "secret", Graph: &fakeGraph{entities: 3, relationships: 5}}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/graph_stats", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /graph_stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 with a valid bearer token", resp.StatusCode)
	}
}

func TestRouter_EmptyTokenDisablesAuth(t *testing.T) {
	t.Parallel()
	s := &httpapi.Server{Graph: &fakeGraph{}}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/graph_stats")
	if err != nil {
		t.Fatalf("GET /graph_stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 when no token is configured", resp.StatusCode)
	}
}
