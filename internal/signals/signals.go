// Package signals implements P1: the attention daemon's collector fan-out.
// Each [Collector] is independent, interval-gated, and allowed to fail
// locally — a collector error is logged and treated as an empty result so
// one broken integration never blocks the others.
package signals

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// Collector produces zero or more signals for one tick. Implementations
// must respect ctx cancellation and never panic; Engine.Tick treats a
// returned error as "no signals this round."
type Collector interface {
	Name() string
	Collect(ctx context.Context, cfg config.SignalEntry) ([]memory.Signal, error)
}

// Engine runs the configured set of collectors on an interval gate.
// [Engine.Tick] publishes the merged result to the bus;
// [Engine.TickByCollector] does not.
type Engine struct {
	Collectors []Collector
	Config     map[string]config.SignalEntry

	// Always runs every tick regardless of interval gating (rhythm and
	// prediction collectors per spec.md §4.14 step 2).
	AlwaysOn []Collector

	// Publish, if set, receives the merged signal batch of every
	// [Engine.Tick] call; TickByCollector never calls it. Typically
	// [bus.Bus.PublishSignals].
	Publish func([]memory.Signal) error

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// TickByCollector runs every collector whose interval has elapsed (plus
// every AlwaysOn collector unconditionally) and returns each one's result
// keyed by collector name, so a caller can maintain a persistent per-source
// bundle across ticks instead of only seeing the collectors that happened
// to run this round.
func (e *Engine) TickByCollector(ctx context.Context, now time.Time) map[string][]memory.Signal {
	e.mu.Lock()
	if e.lastRun == nil {
		e.lastRun = make(map[string]time.Time)
	}
	due := make([]Collector, 0, len(e.Collectors))
	for _, c := range e.Collectors {
		entry := e.Config[c.Name()]
		if !entry.Enabled {
			continue
		}
		interval := time.Duration(entry.IntervalSeconds) * time.Second
		if interval <= 0 {
			interval = time.Minute
		}
		if now.Sub(e.lastRun[c.Name()]) < interval {
			continue
		}
		e.lastRun[c.Name()] = now
		due = append(due, c)
	}
	e.mu.Unlock()

	due = append(due, e.AlwaysOn...)

	type item struct {
		name string
		sigs []memory.Signal
	}
	results := make([]item, len(due))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range due {
		i, c := i, c
		g.Go(func() error {
			sigs, err := c.Collect(gctx, e.Config[c.Name()])
			if err != nil {
				slog.Warn("signal collector failed", "collector", c.Name(), "err", err)
				return nil
			}
			results[i] = item{name: c.Name(), sigs: sigs}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string][]memory.Signal, len(results))
	for _, r := range results {
		if r.name == "" {
			continue
		}
		out[r.name] = r.sigs
	}
	return out
}

// Tick is TickByCollector flattened into a single merged batch, published
// to the bus when Publish is set. Kept for callers that don't need
// per-collector bundle bookkeeping.
func (e *Engine) Tick(ctx context.Context, now time.Time) []memory.Signal {
	byCollector := e.TickByCollector(ctx, now)

	var merged []memory.Signal
	for _, c := range e.Collectors {
		merged = append(merged, byCollector[c.Name()]...)
	}
	for _, c := range e.AlwaysOn {
		merged = append(merged, byCollector[c.Name()]...)
	}

	if e.Publish != nil && len(merged) > 0 {
		if err := e.Publish(merged); err != nil {
			slog.Warn("signal publish failed", "err", err)
		}
	}

	return merged
}
