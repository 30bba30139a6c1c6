// Command memsidecar is the main entry point for the Aletheia memory sidecar
// (C1-C9): the HTTP service backing ingestion, retrieval, temporal facts,
// memory evolution, and graph analytics over a single Postgres/pgvector
// store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aletheia-mem/aletheia/internal/analytics"
	"github.com/aletheia-mem/aletheia/internal/backend"
	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/internal/evolution"
	"github.com/aletheia-mem/aletheia/internal/gateway"
	healthpkg "github.com/aletheia-mem/aletheia/internal/health"
	"github.com/aletheia-mem/aletheia/internal/httpapi"
	"github.com/aletheia-mem/aletheia/internal/ingestion"
	"github.com/aletheia-mem/aletheia/internal/observe"
	"github.com/aletheia-mem/aletheia/internal/retrieval"
	"github.com/aletheia-mem/aletheia/internal/temporal"
	"github.com/aletheia-mem/aletheia/pkg/memory/postgres"
	"github.com/aletheia-mem/aletheia/pkg/provider/embeddings"
	"github.com/aletheia-mem/aletheia/pkg/provider/embeddings/ollama"
	"github.com/aletheia-mem/aletheia/pkg/provider/embeddings/openai"
	"github.com/aletheia-mem/aletheia/pkg/provider/llm"
	"github.com/aletheia-mem/aletheia/pkg/provider/llm/anyllm"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "memsidecar: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "memsidecar: %v\n", err)
		}
		return 1
	}

	logger, levelVar := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	watcher, err := config.NewWatcher(*configPath, func(_, newCfg *config.Config) {
		levelVar.Set(slogLevel(newCfg.Server.LogLevel))
		slog.Info("config reloaded", "log_level", newCfg.Server.LogLevel)
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	slog.Info("memsidecar starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	shutdownOTel, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "aletheia-memsidecar",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise observability providers", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(ctx)
	}()
	metrics := observe.DefaultMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	detection, err := backend.Detect(ctx, backend.Options{
		OAuthCredentialsPath: os.Getenv("ALETHEIA_OAUTH_CREDENTIALS"),
		APIKeyEnvVar:         "ANTHROPIC_API_KEY",
		LocalBaseURL:         cfg.Backend.LLM.BaseURL,
	})
	if err != nil {
		slog.Error("backend detection failed", "err", err)
		return 1
	}

	llmProvider := detection.LLM
	if llmProvider == nil && cfg.Backend.LLM.Name != "" {
		if p, err := reg.CreateLLM(cfg.Backend.LLM); err == nil {
			llmProvider = p
		} else if !errors.Is(err, config.ErrBackendNotRegistered) {
			slog.Error("failed to build configured llm backend", "err", err)
			return 1
		}
	}

	embedder, err := buildEmbedder(cfg, reg)
	if err != nil {
		slog.Error("failed to build embeddings backend", "err", err)
		return 1
	}

	slog.Info("backend detected",
		"tier", detection.Tier,
		"provider", detection.Provider,
		"model", detection.Model,
		"extraction_enabled", detection.ExtractionEnabled(),
	)

	store, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN, cfg.Storage.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to open postgres store", "err", err)
		return 1
	}
	defer store.Close()

	vector := store.Vector()
	graph := store.Graph()

	ingestionEngine := &ingestion.Engine{
		Vector:                vector,
		Graph:                 graph,
		Embedder:              embedder,
		LLM:                   llmProvider,
		LinkGenerationEnabled: detection.ExtractionEnabled(),
		Tasks:                 ingestion.NewPool(4),
	}
	retrievalEngine := &retrieval.Engine{Vector: vector, Graph: graph, Embedder: embedder, LLM: llmProvider}
	temporalEngine := &temporal.Engine{Graph: graph}
	evolutionEngine := &evolution.Engine{Vector: vector, Graph: graph, Embedder: embedder, LLM: llmProvider, DataDir: cfg.DataDir}
	analyticsEngine := &analytics.Engine{Graph: graph}

	healthHandler := healthpkg.New(
		healthpkg.Checker{Name: "postgres", Check: store.Ping},
	)

	srv := &httpapi.Server{
		Vector:             vector,
		Graph:              graph,
		Ingestion:          ingestionEngine,
		Retrieval:          retrievalEngine,
		Temporal:           temporalEngine,
		Evolution:          evolutionEngine,
		Analytics:          analyticsEngine,
		Token:              cfg.Server.Token,
		Detection:          detection,
		Version:            version,
		Health:             healthHandler,
		VectorAvailability: gateway.New(store.Ping),
		GraphAvailability:  gateway.New(store.Ping),
		Embedder:           embedder,
		Metrics:            metrics,
	}

	mux := http.NewServeMux()
	mux.Handle("/", srv.Router())
	mux.Handle("/internal/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		if err != nil {
			slog.Error("http server error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the any-llm-go-backed LLM factories the
// sidecar ships with into reg, keyed by the names operators use in
// config.yaml's backend.llm.name field. Embeddings backends (ollama, openai)
// are constructed directly in buildEmbedder since they need the embedding
// dimension from storage config, not just the provider entry.
func registerBuiltinProviders(reg *config.Registry) {
	for _, name := range []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"} {
		providerName := name
		reg.RegisterLLM(providerName, func(e config.ProviderEntry) (llm.Provider, error) {
			opts := anyllmOptions(e)
			return anyllm.New(providerName, e.Model, opts...)
		})
	}
}

// anyllmOptions translates a [config.ProviderEntry] into any-llm-go options.
func anyllmOptions(e config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if e.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
	}
	if e.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
	}
	return opts
}

// buildEmbedder constructs the embeddings backend named by
// cfg.Backend.Embeddings.Name. Supported names: "ollama", "openai".
func buildEmbedder(cfg *config.Config, reg *config.Registry) (embeddings.Provider, error) {
	entry := cfg.Backend.Embeddings
	switch entry.Name {
	case "ollama", "":
		return ollama.New(entry.BaseURL, entry.Model, ollama.WithDimensions(cfg.Storage.EmbeddingDimensions))
	case "openai":
		return openai.New(entry.APIKey, entry.Model)
	default:
		if p, err := reg.CreateEmbeddings(entry); err == nil {
			return p, nil
		}
		return nil, fmt.Errorf("memsidecar: unknown embeddings backend %q", entry.Name)
	}
}

// newLogger builds a logger whose level can be adjusted live: the returned
// *slog.LevelVar is wired into config.Watcher's onChange callback so an
// operator can change server.log_level in config.yaml without restarting
// the process.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})), levelVar
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
