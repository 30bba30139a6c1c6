// Package config provides the configuration schema, loader, and backend
// registry shared by the memory sidecar and the attention daemon.
package config

// Config is the root configuration structure, unmarshaled from a single YAML
// file shared (in separate sections) by both binaries.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Backend BackendConfig `yaml:"backend"`

	NousRoot   string                 `yaml:"nous_root"`
	Nous       map[string]NousConfig  `yaml:"nous"`
	Signals    map[string]SignalEntry `yaml:"signals"`
	Gateway    GatewayConfig          `yaml:"gateway"`
	Budget     BudgetConfig           `yaml:"budget"`
	QuietHours QuietHoursConfig       `yaml:"quiet_hours"`
	Rhythm     RhythmConfig           `yaml:"rhythm"`
	DataDir    string                 `yaml:"data_dir"`
}

// ServerConfig holds network, logging and auth settings for the sidecar's
// HTTP surface (C9).
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// Token is the bearer token required on every route except /health. Empty
	// disables auth (every request is accepted), matching spec.md's "require
	// Authorization: Bearer <token> when a token is configured".
	Token string `yaml:"token"`
}

// LogLevel is a validated slog level name.
type LogLevel string

// Recognised log levels.
const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is empty or one of the four recognised slog levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// StorageConfig configures the Postgres + pgvector substrate shared by
// [pkg/memory/postgres.Store].
type StorageConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the combined
	// vector + graph store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions must match the configured embedding tier (384 or
	// 1024 per spec.md's two supported embedding models).
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// BackendConfig declares the LLM and embeddings backends used by C2's tiered
// detector and by ingestion/evolution/retrieval's LLM-assisted steps.
type BackendConfig struct {
	// LLM names a text-generation backend built through the [Registry] when
	// C2's detector selects no tier of its own; its BaseURL is also the local
	// model server address C2's T2 probe checks. The detector's tier choice
	// does not depend on Name.
	LLM ProviderEntry `yaml:"llm"`

	// Embeddings selects the embedding backend.
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by LLM and
// embeddings backends. The Name field is used to look up the constructor in
// the [Registry].
type ProviderEntry struct {
	// Name selects the registered backend implementation (e.g., "anthropic-oauth",
	// "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the backend's API. Typically
	// supplied via an env-expanded ${VAR} token rather than written in plain
	// text.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default API endpoint (used by C2's T2
	// local-model-server tier).
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the backend.
	Model string `yaml:"model"`

	// Options holds backend-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// NousConfig holds the per-agent ("nous") weight profile the scorer (P2)
// applies to each signal source's urgency contribution.
type NousConfig struct {
	// Weights maps signal source name to a multiplier applied to that
	// source's urgency before composite scoring.
	Weights map[string]float64 `yaml:"weights"`
}

// SignalEntry configures a single P1 collector.
type SignalEntry struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`

	// Options holds collector-specific settings (calendar feed URL, task
	// list path, health data source, etc.) not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// GatewayConfig addresses the RPC gateway P5 wakes agents through.
type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// BudgetConfig bounds P3's wake rate limiting.
type BudgetConfig struct {
	MaxWakesPerNousPerHour   int `yaml:"max_wakes_per_nous_per_hour"`
	MaxWakesTotalPerHour     int `yaml:"max_wakes_total_per_hour"`
	CooldownAfterWakeSeconds int `yaml:"cooldown_after_wake_seconds"`
}

// QuietHoursConfig suppresses wakes during a daily window, possibly wrapping
// past midnight (e.g. start="22:00", end="07:00").
type QuietHoursConfig struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

// RhythmConfig holds the cron expressions for P5's scheduled rhythm checks.
type RhythmConfig struct {
	MorningPrep   string `yaml:"morning_prep"`
	MiddayCheck   string `yaml:"midday_check"`
	EveningReview string `yaml:"evening_review"`
}
