package prosoche

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/internal/resilience"
)

// legacyAgentAliases maps retired agent ids to their current successor, per
// spec.md §6's "agent-id legacy mapping syn→main".
var legacyAgentAliases = map[string]string{
	"syn": "main",
}

// wakeRequest is the outbound gateway wake payload.
type wakeRequest struct {
	AgentID    string `json:"agentId"`
	Message    string `json:"message"`
	SessionKey string `json:"sessionKey"`
}

// GatewayClient sends wake RPCs to the agent gateway, paced by a token
// bucket so a burst of simultaneous wakes from the scorer can never exceed
// the gateway's tolerable outbound rate, and guarded by a circuit breaker so
// a gateway that's down doesn't eat a wake-POST timeout on every single
// tick.
type GatewayClient struct {
	URL   string
	Token string

	Client  *http.Client
	Limiter *rate.Limiter
	Breaker *resilience.CircuitBreaker
}

// NewGatewayClient builds a client paced at maxPerSecond outbound requests
// (burst of 1), backed by a circuit breaker named after the gateway URL.
func NewGatewayClient(cfg config.GatewayConfig, maxPerSecond float64) *GatewayClient {
	return &GatewayClient{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(maxPerSecond), 1),
		Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "gateway:" + cfg.URL}),
	}
}

// Wake sends a wake RPC for agentID with message, per spec.md §6's
// `POST {gateway.url}/api/sessions/send`. Repeated failures trip the
// breaker, after which Wake fails fast with [resilience.ErrCircuitOpen]
// instead of dispatching further requests until the gateway has had time to
// recover.
func (c *GatewayClient) Wake(ctx context.Context, agentID, message string) error {
	if alias, ok := legacyAgentAliases[agentID]; ok {
		agentID = alias
	}

	if err := c.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("prosoche: gateway rate limiter: %w", err)
	}

	body, err := json.Marshal(wakeRequest{AgentID: agentID, Message: message, SessionKey: "prosoche"})
	if err != nil {
		return fmt.Errorf("prosoche: marshal wake request: %w", err)
	}

	return c.Breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/api/sessions/send", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("prosoche: build wake request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}

		resp, err := c.Client.Do(req)
		if err != nil {
			return fmt.Errorf("prosoche: wake request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("prosoche: wake request: status %d", resp.StatusCode)
		}
		return nil
	})
}
