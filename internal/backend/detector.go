// Package backend implements C2: the tiered LLM backend detector.
//
// On startup the detector probes, in order: an OAuth credentials file (T1a),
// an API key environment variable (T1b), a reachable local model server
// (T2), falling back to embedding-only mode (T3) when none are available.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/aletheia-mem/aletheia/pkg/provider/llm"
	"github.com/aletheia-mem/aletheia/pkg/provider/llm/anyllm"
)

// Tier identifies which detection tier produced the selected backend.
type Tier string

const (
	TierOAuth      Tier = "oauth"       // T1a
	TierAPIKey     Tier = "api_key"     // T1b
	TierLocal      Tier = "local"       // T2
	TierEmbedOnly  Tier = "embed_only"  // T3
)

// oauthBeta is the beta header required by Anthropic's OAuth-bearer
// authentication mode.
const oauthBeta = "oauth-2025-04-20"

// preferredLocalModels is the ordered list of model names T2 prefers, before
// falling back to any model whose reported size is >= minLocalModelBytes.
var preferredLocalModels = []string{"llama3.1:70b", "llama3.1:8b", "qwen2.5:32b", "mistral:7b"}

const minLocalModelBytes = int64(1.5 * 1024 * 1024 * 1024)

// Detection is the result of [Detect]: the selected tier, provider name,
// model, and (outside T3) a ready-to-use [llm.Provider] instance.
type Detection struct {
	Tier     Tier
	Provider string
	Model    string
	LLM      llm.Provider // nil in T3
	Token    string       // OAuth bearer token, only set in T1a
}

// ExtractionEnabled reports whether this detection can drive fact
// extraction (anything above T3).
func (d Detection) ExtractionEnabled() bool { return d.Tier != TierEmbedOnly }

// OAuthCredentials is the shape of the credentials file read for T1a.
type OAuthCredentials struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Options configures [Detect].
type Options struct {
	// OAuthCredentialsPath points at a JSON file holding an OAuthCredentials
	// value. Typically ${ALETHEIA_HOME}/oauth_credentials.json.
	OAuthCredentialsPath string

	// APIKeyEnvVar is the environment variable checked for T1b (e.g.
	// "ANTHROPIC_API_KEY").
	APIKeyEnvVar string
	APIKeyModel  string
	APIKeyProvider string

	// LocalBaseURL is the local model server's address (e.g. Ollama at
	// "http://localhost:11434"), checked for T2.
	LocalBaseURL string

	// HTTPClient is used for the T2 reachability probe. Defaults to a 3s
	// timeout client when nil.
	HTTPClient *http.Client
}

// Detect runs the four-tier probe described in spec.md §4.2 and returns the
// first tier that succeeds.
func Detect(ctx context.Context, opts Options) (Detection, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 3 * time.Second}
	}

	if d, ok := tryOAuth(opts); ok {
		return d, nil
	}
	if d, ok := tryAPIKey(opts); ok {
		return d, nil
	}
	if d, ok := tryLocal(ctx, opts); ok {
		return d, nil
	}
	return Detection{Tier: TierEmbedOnly}, nil
}

// tryOAuth attempts T1a: read an OAuth credentials file and construct an
// Anthropic client configured with the oauth-2025-04-20 beta header.
func tryOAuth(opts Options) (Detection, bool) {
	if opts.OAuthCredentialsPath == "" {
		return Detection{}, false
	}
	creds, err := readOAuthCredentials(opts.OAuthCredentialsPath)
	if err != nil || creds.AccessToken == "" {
		return Detection{}, false
	}
	if !creds.ExpiresAt.IsZero() && time.Now().After(creds.ExpiresAt) {
		return Detection{}, false
	}

	// The oauth-2025-04-20 beta header is attached via the shared
	// oauthTransport RoundTripper rather than a per-request option, since
	// any-llm-go's Anthropic provider does not expose a header-injection
	// option directly.
	model := "claude-opus-4-5"
	provider, err := anyllm.NewAnthropic(model,
		anyllmlib.WithAPIKey(creds.AccessToken),
		anyllmlib.WithHTTPClient(&http.Client{
			Timeout:   30 * time.Second,
			Transport: &oauthTransport{beta: oauthBeta},
		}),
	)
	if err != nil {
		return Detection{}, false
	}

	return Detection{
		Tier:     TierOAuth,
		Provider: "anthropic",
		Model:    model,
		LLM:      provider,
		Token:    creds.AccessToken,
	}, true
}

func readOAuthCredentials(path string) (OAuthCredentials, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return OAuthCredentials{}, fmt.Errorf("backend: read oauth credentials: %w", err)
	}
	var creds OAuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return OAuthCredentials{}, fmt.Errorf("backend: decode oauth credentials: %w", err)
	}
	return creds, nil
}

// tryAPIKey attempts T1b: a plain API key read from the configured
// environment variable.
func tryAPIKey(opts Options) (Detection, bool) {
	if opts.APIKeyEnvVar == "" {
		return Detection{}, false
	}
	key := os.Getenv(opts.APIKeyEnvVar)
	if key == "" {
		return Detection{}, false
	}
	providerName := opts.APIKeyProvider
	if providerName == "" {
		providerName = "anthropic"
	}
	model := opts.APIKeyModel
	if model == "" {
		model = "claude-opus-4-5"
	}

	provider, err := anyllm.New(providerName, model, anyllmlib.WithAPIKey(key))
	if err != nil {
		return Detection{}, false
	}

	return Detection{
		Tier:     TierAPIKey,
		Provider: providerName,
		Model:    model,
		LLM:      provider,
	}, true
}

// localModelInfo is the shape of one entry of Ollama's GET /api/tags
// response used for the T2 reachability + model-size probe.
type localModelInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type localTagsResponse struct {
	Models []localModelInfo `json:"models"`
}

// tryLocal attempts T2: probe the local model server and pick the first
// preferred model present, else any model whose reported size clears
// minLocalModelBytes.
func tryLocal(ctx context.Context, opts Options) (Detection, bool) {
	if opts.LocalBaseURL == "" {
		return Detection{}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.LocalBaseURL+"/api/tags", nil)
	if err != nil {
		return Detection{}, false
	}
	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return Detection{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Detection{}, false
	}

	var tags localTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return Detection{}, false
	}
	if len(tags.Models) == 0 {
		return Detection{}, false
	}

	model := selectLocalModel(tags.Models)
	if model == "" {
		return Detection{}, false
	}

	provider, err := anyllm.NewOllama(model, anyllmlib.WithBaseURL(opts.LocalBaseURL))
	if err != nil {
		return Detection{}, false
	}

	return Detection{
		Tier:     TierLocal,
		Provider: "ollama",
		Model:    model,
		LLM:      provider,
	}, true
}

// selectLocalModel picks the first preferred model present, else any model
// >= minLocalModelBytes.
func selectLocalModel(models []localModelInfo) string {
	byName := make(map[string]localModelInfo, len(models))
	for _, m := range models {
		byName[m.Name] = m
	}
	for _, preferred := range preferredLocalModels {
		if _, ok := byName[preferred]; ok {
			return preferred
		}
	}
	if idx := slices.IndexFunc(models, func(m localModelInfo) bool {
		return m.Size >= minLocalModelBytes
	}); idx >= 0 {
		return models[idx].Name
	}
	return ""
}

// oauthTransport injects the Anthropic OAuth beta header into every
// outbound request before delegating to the default transport.
type oauthTransport struct {
	beta string
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("anthropic-beta", t.beta)
	return http.DefaultTransport.RoundTrip(req)
}

// Refresh re-reads the OAuth credentials file and, if the token changed,
// rebuilds the client. Returns the same Detection if unchanged or refresh is
// not applicable (non-OAuth tiers).
func Refresh(current Detection, opts Options) (Detection, bool) {
	if current.Tier != TierOAuth || opts.OAuthCredentialsPath == "" {
		return current, false
	}
	d, ok := tryOAuth(opts)
	if !ok || d.Token == current.Token {
		return current, false
	}
	return d, true
}
