package signals_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/internal/signals"
)

func TestPredictionCollector_SilentWithoutConfidentModel(t *testing.T) {
	t.Parallel()
	store, err := signals.OpenActivityStore(filepath.Join(t.TempDir(), "activity.db"))
	if err != nil {
		t.Fatalf("OpenActivityStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	c := &signals.PredictionCollector{Store: store, Agents: []string{"main"}, Now: func() time.Time { return now }}

	sigs, err := c.Collect(context.Background(), config.SignalEntry{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(sigs) != 0 {
		t.Errorf("got %d signals with no observation history, want 0", len(sigs))
	}
}

func TestPredictionCollector_EmitsNearConfidentPeakHour(t *testing.T) {
	t.Parallel()
	store, err := signals.OpenActivityStore(filepath.Join(t.TempDir(), "activity.db"))
	if err != nil {
		t.Fatalf("OpenActivityStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < signals.MinObservations; i++ {
		if err := store.RecordActivity("main", base.AddDate(0, 0, i*7)); err != nil {
			t.Fatalf("RecordActivity: %v", err)
		}
	}

	now := time.Date(2026, 7, 1, 9, 5, 0, 0, time.UTC)
	c := &signals.PredictionCollector{Store: store, Agents: []string{"main"}, Now: func() time.Time { return now }}

	sigs, err := c.Collect(context.Background(), config.SignalEntry{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1 near the predicted peak hour", len(sigs))
	}
	if sigs[0].RelevantNous[0] != "main" {
		t.Errorf("RelevantNous = %v, want [main]", sigs[0].RelevantNous)
	}
}
