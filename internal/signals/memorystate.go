package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// MemoryStateCollector polls the sidecar's /health, /foresight/active, and
// /discovery/candidates endpoints, per spec.md §4.10.
type MemoryStateCollector struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (m *MemoryStateCollector) Name() string { return "memory_state" }

func (m *MemoryStateCollector) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return &http.Client{Timeout: 8 * time.Second}
}

func (m *MemoryStateCollector) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if m.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.Token)
	}
	resp, err := m.client().Do(req)
	if err != nil {
		return fmt.Errorf("signals: memory_state: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signals: memory_state: GET %s: status %d", path, resp.StatusCode)
	}
	return json.Unmarshal(body, v)
}

func (m *MemoryStateCollector) Collect(ctx context.Context, cfg config.SignalEntry) ([]memory.Signal, error) {
	var out []memory.Signal

	var health struct {
		OK     bool `json:"ok"`
		Checks map[string]string `json:"checks"`
	}
	if err := m.get(ctx, "/health", &health); err != nil {
		return nil, err
	}
	for name, status := range health.Checks {
		if status != "ok" {
			out = append(out, memory.Signal{
				Source:  "memory_state",
				Summary: fmt.Sprintf("memory sidecar check %s is %s", name, status),
				Urgency: 0.8,
			})
		}
	}

	var foresight struct {
		Foresights []struct {
			Entity string  `json:"entity"`
			Signal string  `json:"signal"`
			Weight float64 `json:"weight"`
		} `json:"foresights"`
	}
	if err := m.get(ctx, "/foresight/active", &foresight); err != nil {
		return nil, err
	}
	for _, f := range foresight.Foresights {
		urgency := minF(0.3+0.1*f.Weight, 0.9)
		out = append(out, memory.Signal{
			Source:  "memory_state",
			Summary: fmt.Sprintf("foresight: %s — %s", f.Entity, f.Signal),
			Urgency: urgency,
		})
	}

	var discovery struct {
		Candidates []struct {
			EntityA string `json:"entity_a"`
			EntityB string `json:"entity_b"`
			Type    string `json:"type"`
		} `json:"candidates"`
	}
	if err := m.get(ctx, "/discovery/candidates", &discovery); err != nil {
		return nil, err
	}
	expiry := time.Now().Add(12 * time.Hour)
	for _, c := range discovery.Candidates {
		if c.Type != "cross_community_bridge" {
			continue
		}
		out = append(out, memory.Signal{
			Source:  "memory_state",
			Summary: fmt.Sprintf("bridge candidate: %s ↔ %s", c.EntityA, c.EntityB),
			Urgency: 0.3,
			ContextBlocks: []memory.ContextBlock{{
				Title:     "Cross-community bridge",
				Content:   fmt.Sprintf("%s and %s span separate communities", c.EntityA, c.EntityB),
				Source:    "discovery",
				ExpiresAt: &expiry,
			}},
		})
	}

	return out, nil
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
