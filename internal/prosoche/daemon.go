// Package prosoche implements P5: the attention daemon's main loop —
// quiet-hours gating, collector ticking, per-agent scoring, PROSOCHE.md
// rendering, and budgeted gateway wakes, per spec.md §4.14.
package prosoche

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/internal/scorer"
	"github.com/aletheia-mem/aletheia/internal/signals"
	"github.com/aletheia-mem/aletheia/internal/wakebudget"
	"github.com/aletheia-mem/aletheia/internal/writer"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

const (
	tickInterval       = 60 * time.Second
	quietSleepInterval = 5 * time.Second
	quietSleepTotal    = 15 * time.Minute
)

// Daemon ticks every 60s, merging each collector's latest result into a
// persistent per-source bundle (a collector's prior signals stay "active"
// until it next runs), scores every configured agent against that bundle,
// and wakes agents whose score clears both the scorer's and the budget's
// thresholds.
type Daemon struct {
	Signals  *signals.Engine
	Budget   *wakebudget.Budget
	Activity *signals.ActivityStore
	Gateway  *GatewayClient

	Nous       map[string]config.NousConfig
	QuietHours config.QuietHoursConfig
	NousRoot   string

	// Now returns the current time; defaults to time.Now. Overridable for
	// tests.
	Now func() time.Time

	mu     sync.Mutex
	bundle map[string][]memory.Signal

	running atomic.Bool
}

func (d *Daemon) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run blocks, ticking until ctx is cancelled or Stop is called.
func (d *Daemon) Run(ctx context.Context) error {
	d.running.Store(true)
	for d.running.Load() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		now := d.now()
		quiet, err := InQuietHours(d.QuietHours, now)
		if err != nil {
			slog.Warn("prosoche: quiet hours check failed, treating as not quiet", "err", err)
		}
		if quiet {
			if !d.sleep(ctx, quietSleepTotal) {
				return ctx.Err()
			}
			continue
		}

		d.tick(ctx, now)

		if !d.sleep(ctx, tickInterval) {
			return ctx.Err()
		}
	}
	return nil
}

// Stop asks Run to return after its current sleep interval; the
// interruptible sleep surfaces it within quietSleepInterval.
func (d *Daemon) Stop() { d.running.Store(false) }

// sleep blocks for total, checking ctx and the running flag every
// quietSleepInterval so a shutdown signal interrupts a long quiet-hours
// sleep quickly. Returns false if interrupted.
func (d *Daemon) sleep(ctx context.Context, total time.Duration) bool {
	var elapsed time.Duration
	for elapsed < total {
		if !d.running.Load() {
			return false
		}
		step := quietSleepInterval
		if remaining := total - elapsed; remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(step):
		}
		elapsed += step
	}
	return d.running.Load() && ctx.Err() == nil
}

// tick runs due collectors, folds their results into the persistent
// bundle, and scores + wakes every configured agent.
func (d *Daemon) tick(ctx context.Context, now time.Time) {
	byCollector := d.Signals.TickByCollector(ctx, now)

	d.mu.Lock()
	if d.bundle == nil {
		d.bundle = make(map[string][]memory.Signal)
	}
	for name, sigs := range byCollector {
		d.bundle[name] = sigs
	}
	var all []memory.Signal
	for _, sigs := range d.bundle {
		all = append(all, sigs...)
	}
	d.mu.Unlock()

	for agentID, profile := range d.Nous {
		score := scorer.Score(agentID, all, profile, now)

		if len(score.Signals) > 0 || len(score.ContextBlocks) > 0 {
			path := filepath.Join(d.NousRoot, agentID, "PROSOCHE.md")
			if err := writer.Write(path, score, now); err != nil {
				slog.Error("prosoche: write PROSOCHE.md failed", "agent", agentID, "err", err)
			}
		}

		if score.ShouldWake {
			d.maybeWake(ctx, agentID, score, now)
		}
	}
}

// maybeWake wakes agentID if the budget allows it: not a recent duplicate,
// and within the per-agent/global/cooldown limits.
func (d *Daemon) maybeWake(ctx context.Context, agentID string, score scorer.Score, now time.Time) {
	fingerprint := wakebudget.Fingerprint(score.Signals)

	dup, err := d.Budget.IsDuplicate(agentID, fingerprint, now)
	if err != nil {
		slog.Error("prosoche: duplicate check failed", "agent", agentID, "err", err)
		return
	}
	if dup {
		return
	}

	can, err := d.Budget.CanWake(agentID, now)
	if err != nil {
		slog.Error("prosoche: budget check failed", "agent", agentID, "err", err)
		return
	}
	if !can {
		return
	}

	if err := d.Gateway.Wake(ctx, agentID, wakeMessage(score)); err != nil {
		slog.Error("prosoche: gateway wake failed", "agent", agentID, "err", err)
		return
	}

	if err := d.Budget.RecordWake(agentID, fingerprint, now); err != nil {
		slog.Error("prosoche: record wake failed", "agent", agentID, "err", err)
	}
	if d.Activity != nil {
		if err := d.Activity.RecordActivity(agentID, now); err != nil {
			slog.Warn("prosoche: record activity failed", "agent", agentID, "err", err)
		}
	}
}

// wakeMessage summarises the highest-weighted signal driving the wake.
func wakeMessage(score scorer.Score) string {
	if len(score.Signals) == 0 {
		return "attention requested"
	}
	return score.Signals[0].Summary
}
