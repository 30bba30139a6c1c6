// Command prosoche is the attention daemon (P1-P5): it collects signals
// from calendars, task lists, service health, the memory sidecar, data
// pipelines, and fixed daily rhythms, scores each configured agent, renders
// PROSOCHE.md, and wakes agents through the gateway within a budget.
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
	"path/filepath"
	"syscall"
	"time"

	"github.com/aletheia-mem/aletheia/internal/bus"
	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/internal/prosoche"
	"github.com/aletheia-mem/aletheia/internal/signals"
	"github.com/aletheia-mem/aletheia/internal/wakebudget"
)

func main() { os.Exit(run()) }

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "prosoche: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "prosoche: %v\n", err)
		}
		return 1
	}

	logger, levelVar := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("prosoche starting", "config", *configPath, "agents", len(cfg.Nous))

	watcher, err := config.NewWatcher(*configPath, func(_, newCfg *config.Config) {
		levelVar.Set(slogLevel(newCfg.Server.LogLevel))
		slog.Info("config reloaded", "log_level", newCfg.Server.LogLevel)
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	embedded, err := bus.StartEmbedded("prosoche")
	if err != nil {
		slog.Error("failed to start signal bus", "err", err)
		return 1
	}
	defer embedded.Stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("failed to create data dir", "dir", cfg.DataDir, "err", err)
		return 1
	}

	activityStore, err := signals.OpenActivityStore(filepath.Join(cfg.DataDir, "activity.db"))
	if err != nil {
		slog.Error("failed to open activity store", "err", err)
		return 1
	}
	defer activityStore.Close()

	budget, err := wakebudget.Open(
		filepath.Join(cfg.DataDir, "wakebudget.db"),
		cfg.Budget.MaxWakesPerNousPerHour,
		cfg.Budget.MaxWakesTotalPerHour,
		cfg.Budget.CooldownAfterWakeSeconds,
	)
	if err != nil {
		slog.Error("failed to open wake budget store", "err", err)
		return 1
	}
	defer budget.Close()

	agents := make([]string, 0, len(cfg.Nous))
	for name := range cfg.Nous {
		agents = append(agents, name)
	}

	engine := &signals.Engine{
		Collectors: []signals.Collector{
			&signals.CalendarCollector{},
			&signals.TasksCollector{},
			&signals.HealthCollector{},
			&signals.MemoryStateCollector{
				BaseURL: cfg.Gateway.URL,
				Token:   cfg.Server.Token,
				Client:  &http.Client{Timeout: 10 * time.Second},
			},
			&signals.PipelineCollector{Source: "hex"},
			&signals.PipelineCollector{Source: "redshift"},
		},
		Config:   cfg.Signals,
		AlwaysOn: []signals.Collector{
			&signals.RhythmCollector{Schedule: cfg.Rhythm},
			&signals.PredictionCollector{Store: activityStore, Agents: agents},
		},
		Publish: embedded.Bus().PublishSignals,
	}

	gatewayClient := prosoche.NewGatewayClient(cfg.Gateway, 1)

	daemon := &prosoche.Daemon{
		Signals:    engine,
		Budget:     budget,
		Activity:   activityStore,
		Gateway:    gatewayClient,
		Nous:       cfg.Nous,
		QuietHours: cfg.QuietHours,
		NousRoot:   cfg.NousRoot,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping…")
		daemon.Stop()
	}()

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon stopped with error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
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
