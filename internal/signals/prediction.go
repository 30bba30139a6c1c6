package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// peakProximity is how close "now" must be to a predicted peak hour for a
// readiness signal to fire, per spec.md §4.10.
const peakProximity = 15 * time.Minute

// PredictionCollector emits a readiness signal within 15 minutes of an
// agent's predicted peak activity hour, once the model has at least
// [MinObservations] days of history for that agent. It is registered as an
// AlwaysOn collector.
type PredictionCollector struct {
	Store   *ActivityStore
	Agents  []string
	Now     func() time.Time
}

func (p *PredictionCollector) Name() string { return "prediction" }

func (p *PredictionCollector) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *PredictionCollector) Collect(ctx context.Context, _ config.SignalEntry) ([]memory.Signal, error) {
	if p.Store == nil {
		return nil, nil
	}
	now := p.now()
	var out []memory.Signal
	for _, agent := range p.Agents {
		hour, confident, err := p.Store.PeakHour(agent, now)
		if err != nil {
			return nil, fmt.Errorf("signals: prediction: %w", err)
		}
		if !confident {
			continue
		}
		peakToday := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
		if absDuration(now.Sub(peakToday)) > peakProximity {
			continue
		}
		out = append(out, memory.Signal{
			Source:       "prediction",
			Summary:      fmt.Sprintf("%s is typically active around now", agent),
			Urgency:      0.3,
			RelevantNous: []string{agent},
		})
	}
	return out, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
