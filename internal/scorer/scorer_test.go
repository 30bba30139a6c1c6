package scorer_test

import (
	"testing"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/internal/scorer"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

func TestScore_FiltersToRelevantAgent(t *testing.T) {
	t.Parallel()
	now := time.Now()
	signals := []memory.Signal{
		{Source: "calendar", Summary: "for main", Urgency: 0.9, RelevantNous: []string{"main"}},
		{Source: "calendar", Summary: "for other", Urgency: 0.9, RelevantNous: []string{"other"}},
		{Source: "tasks", Summary: "unrestricted", Urgency: 0.5},
	}

	score := scorer.Score("main", signals, config.NousConfig{}, now)
	if len(score.Signals) != 2 {
		t.Fatalf("got %d relevant signals, want 2 (own + unrestricted)", len(score.Signals))
	}
	for _, sig := range score.Signals {
		if sig.Summary == "for other" {
			t.Errorf("signal scoped to another agent leaked into main's score")
		}
	}
}

func TestScore_CompositeIsWeightedTopAndAverage(t *testing.T) {
	t.Parallel()
	now := time.Now()
	signals := []memory.Signal{
		{Source: "calendar", Summary: "high", Urgency: 1.0},
		{Source: "calendar", Summary: "low", Urgency: 0.2},
	}
	profile := config.NousConfig{Weights: map[string]float64{"calendar": 1.0}}

	score := scorer.Score("main", signals, profile, now)
	wantTop := 1.0
	wantAvg := (1.0 + 0.2) / 2
	wantComposite := 0.7*wantTop + 0.3*wantAvg

	if score.TopScore != wantTop {
		t.Errorf("TopScore = %v, want %v", score.TopScore, wantTop)
	}
	if score.Average != wantAvg {
		t.Errorf("Average = %v, want %v", score.Average, wantAvg)
	}
	if diff := score.Composite - wantComposite; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Composite = %v, want %v", score.Composite, wantComposite)
	}
}

func TestScore_UnweightedSourceUsesDefaultWeight(t *testing.T) {
	t.Parallel()
	signals := []memory.Signal{{Source: "unknown_source", Summary: "x", Urgency: 1.0}}
	score := scorer.Score("main", signals, config.NousConfig{}, time.Now())
	if score.TopScore <= 0 || score.TopScore >= 1.0 {
		t.Errorf("TopScore = %v, want a small default-weighted value in (0, 1)", score.TopScore)
	}
}

func TestScore_ShouldWakeRequiresRawUrgencyThreshold(t *testing.T) {
	t.Parallel()
	profile := config.NousConfig{Weights: map[string]float64{"calendar": 0.1}}

	below := []memory.Signal{{Source: "calendar", Summary: "x", Urgency: 0.79}}
	if scorer.Score("main", below, profile, time.Now()).ShouldWake {
		t.Error("ShouldWake = true for urgency below threshold")
	}

	atThreshold := []memory.Signal{{Source: "calendar", Summary: "x", Urgency: 0.8}}
	if !scorer.Score("main", atThreshold, profile, time.Now()).ShouldWake {
		t.Error("ShouldWake = false for urgency at threshold, want true regardless of weighting")
	}
}

func TestScore_DropsExpiredContextBlocks(t *testing.T) {
	t.Parallel()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	signals := []memory.Signal{
		{
			Source: "memory_state", Summary: "x", Urgency: 0.5,
			ContextBlocks: []memory.ContextBlock{
				{Title: "expired", ExpiresAt: &past},
				{Title: "live", ExpiresAt: &future},
				{Title: "no-expiry"},
			},
		},
	}

	score := scorer.Score("main", signals, config.NousConfig{}, now)
	if len(score.ContextBlocks) != 2 {
		t.Fatalf("got %d context blocks, want 2 (expired one dropped)", len(score.ContextBlocks))
	}
	for _, b := range score.ContextBlocks {
		if b.Title == "expired" {
			t.Error("expired context block was not dropped")
		}
	}
}

func TestScore_EmptyInputIsZeroValue(t *testing.T) {
	t.Parallel()
	score := scorer.Score("main", nil, config.NousConfig{}, time.Now())
	if score.ShouldWake || score.Composite != 0 || len(score.Signals) != 0 {
		t.Errorf("score of empty signal set should be zero value, got %+v", score)
	}
}
