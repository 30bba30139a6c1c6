package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// calendarEvent is one entry of the external gcal tool's JSON output.
type calendarEvent struct {
	Summary   string    `json:"summary"`
	StartTime time.Time `json:"start_time"`
}

// CalendarCollector invokes an external "gcal" tool per configured calendar
// id for a one-day look-ahead, scoring proximity-based urgency per
// spec.md §4.10.
type CalendarCollector struct {
	// Tool overrides the external binary name, for tests. Defaults to "gcal".
	Tool string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (c *CalendarCollector) Name() string { return "calendar" }

func (c *CalendarCollector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CalendarCollector) tool() string {
	if c.Tool != "" {
		return c.Tool
	}
	return "gcal"
}

func (c *CalendarCollector) Collect(ctx context.Context, cfg config.SignalEntry) ([]memory.Signal, error) {
	calendarIDs := optStringSlice(cfg.Options, "calendar_ids")
	urgentMinutes := optFloat(cfg.Options, "urgent_minutes", 15)
	lookAheadMinutes := optFloat(cfg.Options, "look_ahead_minutes", 120)
	urgentThreshold := optFloat(cfg.Options, "urgent_threshold", 0.7)

	now := c.now()
	var out []memory.Signal
	for _, id := range calendarIDs {
		raw, err := runTool(ctx, 10*time.Second, c.tool(), "list", "--calendar", id, "--days", "1")
		if err != nil {
			return nil, err
		}
		var events []calendarEvent
		if err := json.Unmarshal([]byte(raw), &events); err != nil {
			return nil, fmt.Errorf("signals: calendar: decode %s output: %w", c.tool(), err)
		}
		for _, ev := range events {
			minutesUntil := ev.StartTime.Sub(now).Minutes()
			if minutesUntil < -5 || minutesUntil > lookAheadMinutes {
				continue
			}
			urgency := calendarUrgency(minutesUntil, urgentMinutes, lookAheadMinutes, urgentThreshold)
			out = append(out, memory.Signal{
				Source:  "calendar",
				Summary: fmt.Sprintf("%s (in %.0fm)", ev.Summary, minutesUntil),
				Urgency: urgency,
			})
		}
	}
	return out, nil
}

// calendarUrgency ramps linearly: a steep ramp once inside urgentMinutes of
// start, a gentler ramp across the rest of the look-ahead window.
func calendarUrgency(minutesUntil, urgentMinutes, lookAheadMinutes, urgentThreshold float64) float64 {
	if minutesUntil <= urgentMinutes {
		frac := 1 - minutesUntil/urgentMinutes
		return clamp01(urgentThreshold + (1-urgentThreshold)*frac)
	}
	frac := 1 - (minutesUntil-urgentMinutes)/(lookAheadMinutes-urgentMinutes)
	return clamp01(urgentThreshold * frac)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
