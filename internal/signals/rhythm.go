package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// rhythmWindow is how close "now" must be to a scheduled fire time for the
// window to be considered active.
const rhythmWindow = 10 * time.Minute

// rhythmPreset names the three fixed daily windows spec.md §4.10 names.
type rhythmPreset struct {
	name    string
	summary string
}

var rhythmPresets = map[string]rhythmPreset{
	"morning_prep":   {name: "morning_prep", summary: "morning prep window"},
	"midday_check":   {name: "midday_check", summary: "midday check window"},
	"evening_review": {name: "evening_review", summary: "evening review window"},
}

// RhythmCollector emits a small preset signal when "now" falls within
// rhythmWindow of one of three cron-scheduled fixed-time windows
// (morning/midday/evening), per spec.md §4.10. It is registered as an
// AlwaysOn collector (run every tick, not interval-gated).
type RhythmCollector struct {
	Schedule config.RhythmConfig
	Now      func() time.Time
}

func (r *RhythmCollector) Name() string { return "rhythm" }

func (r *RhythmCollector) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *RhythmCollector) Collect(ctx context.Context, _ config.SignalEntry) ([]memory.Signal, error) {
	now := r.now()
	exprs := map[string]string{
		"morning_prep":   r.Schedule.MorningPrep,
		"midday_check":   r.Schedule.MiddayCheck,
		"evening_review": r.Schedule.EveningReview,
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	var out []memory.Signal
	for key, expr := range exprs {
		if expr == "" {
			continue
		}
		sched, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("signals: rhythm: parse %s schedule %q: %w", key, expr, err)
		}
		if withinRhythmWindow(sched, now) {
			preset := rhythmPresets[key]
			out = append(out, memory.Signal{
				Source:  "rhythm",
				Summary: preset.summary,
				Urgency: 0.4,
			})
		}
	}
	return out, nil
}

// withinRhythmWindow reports whether a fire time of the schedule lies within
// rhythmWindow of now, on either side. It checks the first fire after
// now-rhythmWindow, since cron.Schedule only exposes Next.
func withinRhythmWindow(sched cron.Schedule, now time.Time) bool {
	prevFire := now.Add(-rhythmWindow)
	next := sched.Next(prevFire)
	return !next.After(now.Add(rhythmWindow)) && !next.Before(now.Add(-rhythmWindow))
}
