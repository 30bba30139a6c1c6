package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// taskEntry is one entry of the external task tool's JSON output.
type taskEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Project  string `json:"project"`
	Priority string `json:"priority"`
}

// taskFilterDefaults maps the three filters spec.md §4.10 names to a
// default urgency when the config doesn't override it.
var taskFilterDefaults = map[string]float64{
	"status:pending +OVERDUE":  0.9,
	"status:pending due:today": 0.6,
	"priority:H":                0.4,
}

const highPriorityCap = 10

// TasksCollector invokes an external task tool with three fixed filters and
// routes each task to an agent via an explicit project→agent map, falling
// back to a configured default agent.
type TasksCollector struct {
	Tool string
}

func (t *TasksCollector) Name() string { return "tasks" }

func (t *TasksCollector) tool() string {
	if t.Tool != "" {
		return t.Tool
	}
	return "task"
}

func (t *TasksCollector) Collect(ctx context.Context, cfg config.SignalEntry) ([]memory.Signal, error) {
	projectAgents := optStringMap(cfg.Options, "project_agents")
	defaultAgent := optString(cfg.Options, "default_agent", "")

	var out []memory.Signal
	filters := []string{"status:pending +OVERDUE", "status:pending due:today", "priority:H"}
	for _, filter := range filters {
		urgency := optFloat(cfg.Options, "urgency_"+filter, taskFilterDefaults[filter])
		raw, err := runTool(ctx, 10*time.Second, t.tool(), "list", "--filter", filter)
		if err != nil {
			return nil, err
		}
		var tasks []taskEntry
		if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
			return nil, fmt.Errorf("signals: tasks: decode %s output: %w", t.tool(), err)
		}
		if filter == "priority:H" && len(tasks) > highPriorityCap {
			tasks = tasks[:highPriorityCap]
		}
		for _, tk := range tasks {
			agent := defaultAgent
			if a, ok := projectAgents[tk.Project]; ok {
				agent = a
			}
			var relevant []string
			if agent != "" {
				relevant = []string{agent}
			}
			out = append(out, memory.Signal{
				Source:       "tasks",
				Summary:      fmt.Sprintf("[%s] %s", tk.Priority, tk.Title),
				Urgency:      urgency,
				RelevantNous: relevant,
			})
		}
	}
	return out, nil
}
