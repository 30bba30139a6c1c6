package signals_test

import (
	"context"
	"testing"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/internal/signals"
)

func TestRhythmCollector_EmitsPresetInsideWindow(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 7, 31, 9, 2, 0, 0, time.UTC)
	c := &signals.RhythmCollector{
		Schedule: config.RhythmConfig{MorningPrep: "0 9 * * *"},
		Now:      func() time.Time { return fixed },
	}

	sigs, err := c.Collect(context.Background(), config.SignalEntry{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Source != "rhythm" {
		t.Fatalf("got %+v, want one rhythm signal", sigs)
	}
}

func TestRhythmCollector_SilentOutsideWindow(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	c := &signals.RhythmCollector{
		Schedule: config.RhythmConfig{MorningPrep: "0 9 * * *"},
		Now:      func() time.Time { return fixed },
	}

	sigs, err := c.Collect(context.Background(), config.SignalEntry{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(sigs) != 0 {
		t.Errorf("got %d signals outside any rhythm window, want 0", len(sigs))
	}
}

func TestRhythmCollector_BlankScheduleIsIgnored(t *testing.T) {
	t.Parallel()
	c := &signals.RhythmCollector{Now: func() time.Time { return time.Now() }}
	sigs, err := c.Collect(context.Background(), config.SignalEntry{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(sigs) != 0 {
		t.Errorf("got %d signals with no schedules configured, want 0", len(sigs))
	}
}
