package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists known backend names per backend kind. Used by
// [Validate] to warn about unrecognised names; unrecognised names are not
// rejected since any-llm-go providers are added independently of this list.
var ValidBackendNames = map[string][]string{
	"llm":        {"anthropic-oauth", "anthropic", "openai", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"embeddings": {"openai", "voyage", "ollama"},
}

// Load reads the YAML configuration file at path, expands ${VAR} environment
// references, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expanding ${VAR} tokens
// against the process environment before parsing, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read yaml: %w", err)
	}
	expanded := os.Expand(string(raw), lookupEnv)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookupEnv leaves ${VAR} untouched when VAR is unset, rather than
// substituting an empty string, so a missing secret fails loudly at
// validation/connection time instead of silently becoming "".
func lookupEnv(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return "${" + key + "}"
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateBackendName("llm", cfg.Backend.LLM.Name)
	validateBackendName("embeddings", cfg.Backend.Embeddings.Name)

	if cfg.Backend.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("backend.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 1024")
		cfg.Storage.EmbeddingDimensions = 1024
	}

	if cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required"))
	}

	if cfg.Budget.MaxWakesPerNousPerHour < 0 {
		errs = append(errs, fmt.Errorf("budget.max_wakes_per_nous_per_hour %d must be >= 0", cfg.Budget.MaxWakesPerNousPerHour))
	}
	if cfg.Budget.MaxWakesTotalPerHour < 0 {
		errs = append(errs, fmt.Errorf("budget.max_wakes_total_per_hour %d must be >= 0", cfg.Budget.MaxWakesTotalPerHour))
	}
	if cfg.Budget.CooldownAfterWakeSeconds < 0 {
		errs = append(errs, fmt.Errorf("budget.cooldown_after_wake_seconds %d must be >= 0", cfg.Budget.CooldownAfterWakeSeconds))
	}

	for id, nous := range cfg.Nous {
		for source, weight := range nous.Weights {
			if weight < 0 {
				errs = append(errs, fmt.Errorf("nous[%s].weights[%s] %.2f must be >= 0", id, source, weight))
			}
		}
	}

	for name, sig := range cfg.Signals {
		if sig.Enabled && sig.IntervalSeconds <= 0 {
			errs = append(errs, fmt.Errorf("signals[%s].interval_seconds must be > 0 when enabled", name))
		}
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning if name is non-empty and not found in
// the [ValidBackendNames] list for the given kind.
func validateBackendName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidBackendNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unrecognised backend name — may be a typo or third-party any-llm-go provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
