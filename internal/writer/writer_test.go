package writer_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aletheia-mem/aletheia/internal/scorer"
	"github.com/aletheia-mem/aletheia/internal/writer"
	"github.com/aletheia-mem/aletheia/pkg/memory"
)

func TestRender_SectionsAndUrgencyPrefixes(t *testing.T) {
	t.Parallel()
	score := scorer.Score{
		Signals: []memory.Signal{
			{Summary: "urgent thing", Urgency: 0.9},
			{Summary: "attention thing", Urgency: 0.6},
			{Summary: "info thing", Urgency: 0.1},
		},
	}

	out := writer.Render(score, "", time.Now())
	for _, want := range []string{"[URGENT] urgent thing", "[ATTENTION] attention thing", "[INFO] info thing"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_PreservesDomainChecksTail(t *testing.T) {
	t.Parallel()
	existing := "## Attention\n- [INFO] stale\n\n## Domain Checks\n- manual item\n"
	score := scorer.Score{Signals: []memory.Signal{{Summary: "fresh", Urgency: 0.2}}}

	out := writer.Render(score, existing, time.Now())
	if !strings.Contains(out, "## Domain Checks") || !strings.Contains(out, "- manual item") {
		t.Errorf("Domain Checks tail was not preserved:\n%s", out)
	}
	if strings.Contains(out, "stale") {
		t.Error("stale Attention content from the prior render leaked into the new one")
	}
}

func TestRender_StagedContextShowsExpiry(t *testing.T) {
	t.Parallel()
	now := time.Now()
	expires := now.Add(2 * time.Hour)
	score := scorer.Score{
		ContextBlocks: []memory.ContextBlock{
			{Title: "Bridge candidate", Source: "discovery", Content: "body", ExpiresAt: &expires},
		},
	}
	out := writer.Render(score, "", now)
	if !strings.Contains(out, "Bridge candidate") || !strings.Contains(out, "expires in") {
		t.Errorf("staged context block missing title or expiry:\n%s", out)
	}
}

func TestRender_IsDeterministicForAFixedNow(t *testing.T) {
	t.Parallel()
	now := time.Now()
	expires := now.Add(90 * time.Minute)
	score := scorer.Score{
		ContextBlocks: []memory.ContextBlock{
			{Title: "Bridge candidate", Source: "discovery", Content: "body", ExpiresAt: &expires},
		},
	}

	first := writer.Render(score, "", now)
	time.Sleep(10 * time.Millisecond)
	second := writer.Render(score, "", now)

	if first != second {
		t.Errorf("Render with the same now produced different output:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestWrite_NoOpWhenUnchanged(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "PROSOCHE.md")
	score := scorer.Score{Signals: []memory.Signal{{Summary: "x", Urgency: 0.5}}}
	now := time.Now()

	if err := writer.Write(path, score, now); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	info1, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := writer.Write(path, score, now); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	info2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info1.ModTime() != info2.ModTime() {
		t.Error("Write rewrote the file despite identical rendered content")
	}
}

func TestWrite_NoOpWhenUnchangedWithExpiringContextBlock(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "PROSOCHE.md")
	now := time.Now()
	expires := now.Add(45 * time.Minute)
	score := scorer.Score{
		ContextBlocks: []memory.ContextBlock{
			{Title: "Bridge candidate", Source: "discovery", Content: "body", ExpiresAt: &expires},
		},
	}

	if err := writer.Write(path, score, now); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	info1, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := writer.Write(path, score, now); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	info2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info1.ModTime() != info2.ModTime() {
		t.Error("Write rewrote the file despite an unchanged score and now, for a block with ExpiresAt set")
	}
}

func TestWrite_AtomicReplaceLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "PROSOCHE.md")
	score := scorer.Score{Signals: []memory.Signal{{Summary: "x", Urgency: 0.9}}}

	if err := writer.Write(path, score, time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries after Write, want 1 (no leftover temp file)", len(entries))
	}
}
