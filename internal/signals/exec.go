package signals

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// runTool invokes an external CLI tool (name plus args) with a bounded
// timeout and returns its captured stdout. Collectors use this for the
// gcal/task-tool integrations named in spec.md §4.10 — a missing or
// misbehaving external tool is a collector-local failure, never fatal.
func runTool(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("signals: run %s: %w: %s", name, err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// optString reads a string option, returning def when absent or not a string.
func optString(opts map[string]any, key, def string) string {
	if opts == nil {
		return def
	}
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return def
}

// optFloat reads a numeric option (YAML decodes numbers as float64).
func optFloat(opts map[string]any, key string, def float64) float64 {
	if opts == nil {
		return def
	}
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// optStringSlice reads a []string option, tolerating YAML's []any decoding.
func optStringSlice(opts map[string]any, key string) []string {
	if opts == nil {
		return nil
	}
	raw, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// optStringMap reads a map[string]string option, tolerating YAML's
// map[string]any decoding.
func optStringMap(opts map[string]any, key string) map[string]string {
	if opts == nil {
		return nil
	}
	raw, ok := opts[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
