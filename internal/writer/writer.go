// Package writer implements P4: atomic rendering of PROSOCHE.md, per
// spec.md §4.13.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aletheia-mem/aletheia/internal/scorer"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

const (
	urgentThreshold    = 0.8
	attentionThreshold = 0.5
)

// domainChecksHeader marks the start of the static tail section preserved
// verbatim from the existing file.
const domainChecksHeader = "## Domain Checks"

// Render composes the three PROSOCHE.md sections joined by double newlines:
// an Attention list, a Staged Context list, and the preserved Domain Checks
// tail read from existingContent (empty string if the file doesn't exist
// yet). now anchors any "expires in" countdown so that rendering the same
// score twice at the same instant is byte-identical.
func Render(score scorer.Score, existingContent string, now time.Time) string {
	sections := []string{
		renderAttention(score.Signals),
		renderStagedContext(score.ContextBlocks, now),
		extractDomainChecks(existingContent),
	}

	var nonEmpty []string
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func renderAttention(signals []memory.Signal) string {
	var b strings.Builder
	b.WriteString("## Attention\n")
	for _, sig := range signals {
		prefix := "[INFO]"
		switch {
		case sig.Urgency >= urgentThreshold:
			prefix = "[URGENT]"
		case sig.Urgency >= attentionThreshold:
			prefix = "[ATTENTION]"
		}
		fmt.Fprintf(&b, "- %s %s\n", prefix, sig.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStagedContext(blocks []memory.ContextBlock, now time.Time) string {
	var b strings.Builder
	b.WriteString("## Staged Context\n")
	for _, blk := range blocks {
		fmt.Fprintf(&b, "- **%s** (source: %s", blk.Title, blk.Source)
		if blk.ExpiresAt != nil {
			remaining := blk.ExpiresAt.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			fmt.Fprintf(&b, ", expires in %s", remaining.Round(time.Minute))
		}
		b.WriteString(")\n")
		fmt.Fprintf(&b, "  %s\n", blk.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// extractDomainChecks returns the static "## Domain Checks" section
// (including its header) from existingContent verbatim, or empty if absent.
func extractDomainChecks(existingContent string) string {
	idx := strings.Index(existingContent, domainChecksHeader)
	if idx < 0 {
		return ""
	}
	return strings.TrimRight(existingContent[idx:], "\n")
}

// Write renders score against the current contents of path and atomically
// replaces path with the result: write-to-temp, then rename. A no-op if the
// rendered content is unchanged.
func Write(path string, score scorer.Score, now time.Time) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("writer: read existing %s: %w", path, err)
	}

	rendered := Render(score, string(existing), now)
	if rendered == string(existing) {
		return nil
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".prosoche-*.tmp")
	if err != nil {
		return fmt.Errorf("writer: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.WriteString(rendered); err != nil {
		tmp.Close()
		return fmt.Errorf("writer: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("writer: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writer: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("writer: rename into place: %w", err)
	}
	return nil
}
