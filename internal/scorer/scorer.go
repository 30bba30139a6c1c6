// Package scorer implements P2: per-agent composite scoring over a tick's
// signal bundle, per spec.md §4.11.
package scorer

import (
	"sort"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// defaultWeight is applied to a signal whose source has no configured
// weight for the agent.
const defaultWeight = 0.1

// topN is how many of the highest-weighted signals are checked for the
// should_wake raw-urgency threshold.
const topN = 5

// wakeUrgencyThreshold is the raw urgency (pre-weighting) that, if met by
// any of the top-N weighted signals, sets ShouldWake.
const wakeUrgencyThreshold = 0.8

// Score is the result of scoring one agent's relevant signal bundle.
type Score struct {
	AgentID       string
	TopScore      float64
	Average       float64
	Composite     float64
	ShouldWake    bool
	ContextBlocks []memory.ContextBlock
	Signals       []memory.Signal // relevant signals, sorted by weighted urgency descending
}

type weighted struct {
	signal memory.Signal
	weight float64
}

// Score computes an agent's composite score from signals whose
// RelevantNous is empty or contains agentID.
func Score(agentID string, signals []memory.Signal, profile config.NousConfig, now time.Time) Score {
	var relevant []weighted
	for _, sig := range signals {
		if !isRelevant(sig, agentID) {
			continue
		}
		w := profile.Weights[sig.Source]
		if w == 0 {
			w = defaultWeight
		}
		relevant = append(relevant, weighted{signal: sig, weight: sig.Urgency * w})
	}

	sort.Slice(relevant, func(i, j int) bool { return relevant[i].weight > relevant[j].weight })

	result := Score{AgentID: agentID}
	if len(relevant) == 0 {
		return result
	}

	sum := 0.0
	for _, r := range relevant {
		sum += r.weight
	}
	result.TopScore = relevant[0].weight
	result.Average = sum / float64(len(relevant))
	result.Composite = 0.7*result.TopScore + 0.3*result.Average

	limit := topN
	if limit > len(relevant) {
		limit = len(relevant)
	}
	for i := 0; i < limit; i++ {
		if relevant[i].signal.Urgency >= wakeUrgencyThreshold {
			result.ShouldWake = true
			break
		}
	}

	result.Signals = make([]memory.Signal, len(relevant))
	for i, r := range relevant {
		result.Signals[i] = r.signal
	}

	for _, sig := range relevant {
		for _, block := range sig.signal.ContextBlocks {
			if block.ExpiresAt != nil && block.ExpiresAt.Before(now) {
				continue
			}
			result.ContextBlocks = append(result.ContextBlocks, block)
		}
	}

	return result
}

func isRelevant(sig memory.Signal, agentID string) bool {
	if len(sig.RelevantNous) == 0 {
		return true
	}
	for _, n := range sig.RelevantNous {
		if n == agentID {
			return true
		}
	}
	return false
}
