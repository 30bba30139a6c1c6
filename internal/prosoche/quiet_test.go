package prosoche_test

import (
	"testing"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/internal/prosoche"
)

func TestInQuietHours_SimpleWindow(t *testing.T) {
	t.Parallel()
	cfg := config.QuietHoursConfig{Start: "22:00", End: "07:00", Timezone: "UTC"}

	inside := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)
	quiet, err := prosoche.InQuietHours(cfg, inside)
	if err != nil {
		t.Fatalf("InQuietHours: %v", err)
	}
	if !quiet {
		t.Error("expected quiet at 23:00 within a 22:00-07:00 window")
	}

	outside := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	quiet, err = prosoche.InQuietHours(cfg, outside)
	if err != nil {
		t.Fatalf("InQuietHours: %v", err)
	}
	if quiet {
		t.Error("expected not quiet at noon")
	}
}

func TestInQuietHours_WrapsPastMidnight(t *testing.T) {
	t.Parallel()
	cfg := config.QuietHoursConfig{Start: "22:00", End: "07:00", Timezone: "UTC"}

	afterMidnight := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	quiet, err := prosoche.InQuietHours(cfg, afterMidnight)
	if err != nil {
		t.Fatalf("InQuietHours: %v", err)
	}
	if !quiet {
		t.Error("expected quiet at 03:00 within a wraparound 22:00-07:00 window")
	}
}

func TestInQuietHours_EmptyConfigMeansNeverQuiet(t *testing.T) {
	t.Parallel()
	quiet, err := prosoche.InQuietHours(config.QuietHoursConfig{}, time.Now())
	if err != nil {
		t.Fatalf("InQuietHours: %v", err)
	}
	if quiet {
		t.Error("expected never quiet with no configured window")
	}
}
