package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// pipelineRunStatus is one entry of a Hex/Redshift poller's JSON output.
type pipelineRunStatus struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	AgeMinutes    float64 `json:"age_minutes"`
	QuerySeconds  float64 `json:"query_seconds"`
}

// PipelineCollector is a domain-specific poller for Hex/Redshift pipeline
// health: failed runs, stale runs, and long-running queries, per
// spec.md §4.10. Source distinguishes "hex" from "redshift" deployments of
// the same poller shape.
type PipelineCollector struct {
	Source string // "hex" or "redshift"
	Tool   string
}

func (p *PipelineCollector) Name() string { return p.Source }

func (p *PipelineCollector) Collect(ctx context.Context, cfg config.SignalEntry) ([]memory.Signal, error) {
	staleMinutes := optFloat(cfg.Options, "stale_minutes", 180)
	longQuerySeconds := optFloat(cfg.Options, "long_query_seconds", 300)

	tool := p.Tool
	if tool == "" {
		tool = p.Source + "-status"
	}

	raw, err := runTool(ctx, 15*time.Second, tool, "--json")
	if err != nil {
		return nil, err
	}
	var runs []pipelineRunStatus
	if err := json.Unmarshal([]byte(raw), &runs); err != nil {
		return nil, fmt.Errorf("signals: %s: decode %s output: %w", p.Source, tool, err)
	}

	var out []memory.Signal
	for _, r := range runs {
		switch {
		case r.Status == "failed":
			out = append(out, memory.Signal{
				Source:  p.Source,
				Summary: fmt.Sprintf("%s run %q failed", p.Source, r.Name),
				Urgency: 0.85,
			})
		case r.AgeMinutes >= staleMinutes:
			out = append(out, memory.Signal{
				Source:  p.Source,
				Summary: fmt.Sprintf("%s run %q is stale (%.0fm)", p.Source, r.Name, r.AgeMinutes),
				Urgency: 0.5,
			})
		case r.QuerySeconds >= longQuerySeconds:
			out = append(out, memory.Signal{
				Source:  p.Source,
				Summary: fmt.Sprintf("%s query %q running %.0fs", p.Source, r.Name, r.QuerySeconds),
				Urgency: 0.4,
			})
		}
	}
	return out, nil
}
