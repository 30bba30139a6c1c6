package prosoche

import (
	"fmt"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
)

// InQuietHours reports whether now falls within the configured quiet-hours
// window, handling timezone and midnight wraparound (start > end), per
// spec.md §4.14.
func InQuietHours(cfg config.QuietHoursConfig, now time.Time) (bool, error) {
	if cfg.Start == "" || cfg.End == "" {
		return false, nil
	}

	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return false, fmt.Errorf("prosoche: load quiet_hours timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	local := now.In(loc)

	start, err := parseClock(cfg.Start)
	if err != nil {
		return false, fmt.Errorf("prosoche: parse quiet_hours.start: %w", err)
	}
	end, err := parseClock(cfg.End)
	if err != nil {
		return false, fmt.Errorf("prosoche: parse quiet_hours.end: %w", err)
	}

	cur := local.Hour()*60 + local.Minute()
	if start <= end {
		return cur >= start && cur < end, nil
	}
	// Wraps past midnight, e.g. 22:00 -> 07:00.
	return cur >= start || cur < end, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
