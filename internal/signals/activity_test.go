package signals_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aletheia-mem/aletheia/internal/signals"
)

func openTestStore(t *testing.T) *signals.ActivityStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity.db")
	s, err := signals.OpenActivityStore(path)
	if err != nil {
		t.Fatalf("OpenActivityStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestActivityStore_PeakHourUnconfidentBeforeMinObservations(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	now := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)

	for i := 0; i < signals.MinObservations-1; i++ {
		day := now.AddDate(0, 0, i)
		if err := s.RecordActivity("main", day); err != nil {
			t.Fatalf("RecordActivity: %v", err)
		}
	}

	_, confident, err := s.PeakHour("main", now)
	if err != nil {
		t.Fatalf("PeakHour: %v", err)
	}
	if confident {
		t.Error("PeakHour confident before MinObservations days recorded")
	}
}

func TestActivityStore_PeakHourConfidentAfterMinObservations(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < signals.MinObservations; i++ {
		day := base.AddDate(0, 0, i)
		// Same weekday as day 0 for the peak hour, spread across other
		// hours on other days so hour 9 stands out.
		if day.Weekday() == base.Weekday() {
			if err := s.RecordActivity("main", time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, time.UTC)); err != nil {
				t.Fatalf("RecordActivity: %v", err)
			}
		} else {
			if err := s.RecordActivity("main", time.Date(day.Year(), day.Month(), day.Day(), 3, 0, 0, 0, time.UTC)); err != nil {
				t.Fatalf("RecordActivity: %v", err)
			}
		}
	}

	hour, confident, err := s.PeakHour("main", base)
	if err != nil {
		t.Fatalf("PeakHour: %v", err)
	}
	if !confident {
		t.Fatal("expected PeakHour to be confident after MinObservations days")
	}
	if hour != 9 {
		t.Errorf("PeakHour = %d, want 9", hour)
	}
}

func TestActivityStore_RecordActivityCountsEachCalendarDayOnce(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	day := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	if err := s.RecordActivity("main", day); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if err := s.RecordActivity("main", day.Add(2*time.Hour)); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}

	// Two observations on the same calendar day should count as one day of
	// history towards MinObservations, not two.
	for i := 1; i < signals.MinObservations; i++ {
		if err := s.RecordActivity("main", day.AddDate(0, 0, i)); err != nil {
			t.Fatalf("RecordActivity: %v", err)
		}
	}
	_, confident, err := s.PeakHour("main", day)
	if err != nil {
		t.Fatalf("PeakHour: %v", err)
	}
	if !confident {
		t.Error("expected confident once MinObservations distinct calendar days recorded")
	}
}
