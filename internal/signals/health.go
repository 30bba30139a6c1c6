package signals

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/aletheia-mem/aletheia/internal/config"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// HealthCollector checks a list of process-manager-supervised services, a
// list of containers, and disk usage by mount point, per spec.md §4.10.
type HealthCollector struct {
	// ProcessManagerTool overrides the external status command. Defaults
	// to "pm2" (jlist output).
	ProcessManagerTool string
	// ContainerRuntimeTool overrides the external inspect command.
	// Defaults to "docker".
	ContainerRuntimeTool string
}

func (h *HealthCollector) Name() string { return "health" }

func (h *HealthCollector) Collect(ctx context.Context, cfg config.SignalEntry) ([]memory.Signal, error) {
	var out []memory.Signal

	services := optStringSlice(cfg.Options, "services")
	out = append(out, h.checkServices(ctx, services)...)

	containers := optStringSlice(cfg.Options, "containers")
	out = append(out, h.checkContainers(ctx, containers)...)

	mounts := optStringSlice(cfg.Options, "disk_mounts")
	warnPct := optFloat(cfg.Options, "disk_warn_percent", 80)
	critPct := optFloat(cfg.Options, "disk_critical_percent", 90)
	out = append(out, h.checkDisk(mounts, warnPct, critPct)...)

	return out, nil
}

func (h *HealthCollector) pmTool() string {
	if h.ProcessManagerTool != "" {
		return h.ProcessManagerTool
	}
	return "pm2"
}

func (h *HealthCollector) containerTool() string {
	if h.ContainerRuntimeTool != "" {
		return h.ContainerRuntimeTool
	}
	return "docker"
}

func (h *HealthCollector) checkServices(ctx context.Context, services []string) []memory.Signal {
	var out []memory.Signal
	for _, svc := range services {
		if _, err := runTool(ctx, 5*time.Second, h.pmTool(), "describe", svc); err != nil {
			out = append(out, memory.Signal{
				Source:  "health",
				Summary: fmt.Sprintf("service %s is unhealthy", svc),
				Urgency: 0.85,
			})
		}
	}
	return out
}

func (h *HealthCollector) checkContainers(ctx context.Context, containers []string) []memory.Signal {
	var out []memory.Signal
	for _, name := range containers {
		if _, err := runTool(ctx, 5*time.Second, h.containerTool(), "inspect", name); err != nil {
			out = append(out, memory.Signal{
				Source:  "health",
				Summary: fmt.Sprintf("container %s is unreachable", name),
				Urgency: 0.85,
			})
		}
	}
	return out
}

func (h *HealthCollector) checkDisk(mounts []string, warnPct, critPct float64) []memory.Signal {
	var out []memory.Signal
	for _, mount := range mounts {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(mount, &stat); err != nil {
			continue
		}
		total := float64(stat.Blocks) * float64(stat.Bsize)
		free := float64(stat.Bfree) * float64(stat.Bsize)
		if total == 0 {
			continue
		}
		usedPct := (1 - free/total) * 100
		switch {
		case usedPct >= critPct:
			out = append(out, memory.Signal{
				Source:  "health",
				Summary: fmt.Sprintf("disk %s at %.0f%% used (critical)", mount, usedPct),
				Urgency: 0.9,
			})
		case usedPct >= warnPct:
			out = append(out, memory.Signal{
				Source:  "health",
				Summary: fmt.Sprintf("disk %s at %.0f%% used", mount, usedPct),
				Urgency: 0.5,
			})
		}
	}
	return out
}
