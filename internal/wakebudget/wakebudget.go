// Package wakebudget implements P3: three sliding-window wake limits
// (per-agent rate, global rate, per-agent cooldown) plus fingerprint-based
// duplicate suppression, per spec.md §4.12. State is persisted to SQLite so
// the budget survives a daemon restart.
package wakebudget

import (
	"crypto/md5" //nolint:gosec // fingerprinting only, not a security boundary
	"database/sql"
	_ "embed"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

//go:embed schema_wakebudget.sql
var schema string

// duplicateWindow is how long a fingerprint suppresses a repeat wake for
// the same agent.
const duplicateWindow = 8 * time.Hour

const slidingWindow = time.Hour

// Budget enforces spec.md §4.12's three sliding windows. Safe for
// concurrent use, though spec.md notes the daemon loop is its single writer
// in practice.
type Budget struct {
	db *sql.DB

	MaxPerAgentPerHour int
	MaxTotalPerHour    int
	CooldownSeconds    int
}

// Open opens (creating if absent) the SQLite-backed budget store at path.
func Open(path string, maxPerAgent, maxTotal, cooldownSeconds int) (*Budget, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("wakebudget: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("wakebudget: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("wakebudget: execute schema: %w", err)
	}
	return &Budget{db: db, MaxPerAgentPerHour: maxPerAgent, MaxTotalPerHour: maxTotal, CooldownSeconds: cooldownSeconds}, nil
}

// Close closes the underlying database handle.
func (b *Budget) Close() error { return b.db.Close() }

// Fingerprint computes the MD5 of the sorted, newline-joined signal
// summaries, per spec.md §4.12.
func Fingerprint(signals []memory.Signal) string {
	summaries := make([]string, len(signals))
	for i, s := range signals {
		summaries[i] = s.Summary
	}
	sort.Strings(summaries)
	sum := md5.Sum([]byte(strings.Join(summaries, "\n"))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// CanWake reports whether agentID may be woken right now: the per-agent
// hourly count, the global hourly count, and the per-agent cooldown must
// all hold.
func (b *Budget) CanWake(agentID string, now time.Time) (bool, error) {
	windowStart := now.Add(-slidingWindow).Unix()

	var perAgent int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM wakes WHERE agent_id = ? AND ts >= ?`, agentID, windowStart).Scan(&perAgent); err != nil {
		return false, fmt.Errorf("wakebudget: count per-agent wakes: %w", err)
	}
	if perAgent >= b.MaxPerAgentPerHour {
		return false, nil
	}

	var total int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM wakes WHERE ts >= ?`, windowStart).Scan(&total); err != nil {
		return false, fmt.Errorf("wakebudget: count total wakes: %w", err)
	}
	if total >= b.MaxTotalPerHour {
		return false, nil
	}

	var lastTS sql.NullInt64
	if err := b.db.QueryRow(`SELECT MAX(ts) FROM wakes WHERE agent_id = ?`, agentID).Scan(&lastTS); err != nil {
		return false, fmt.Errorf("wakebudget: last wake: %w", err)
	}
	if lastTS.Valid {
		elapsed := now.Unix() - lastTS.Int64
		if elapsed < int64(b.CooldownSeconds) {
			return false, nil
		}
	}

	return true, nil
}

// IsDuplicate reports whether fingerprint has already triggered a delivered
// wake for agentID within the last 8 hours.
func (b *Budget) IsDuplicate(agentID, fingerprint string, now time.Time) (bool, error) {
	windowStart := now.Add(-duplicateWindow).Unix()
	var count int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM wake_fingerprints WHERE agent_id = ? AND fingerprint = ? AND ts >= ?`,
		agentID, fingerprint, windowStart).Scan(&count); err != nil {
		return false, fmt.Errorf("wakebudget: check duplicate: %w", err)
	}
	return count > 0, nil
}

// RecordWake appends agentID's wake to all three sliding windows and stores
// the fingerprint for duplicate suppression.
func (b *Budget) RecordWake(agentID, fingerprint string, now time.Time) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("wakebudget: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO wakes (agent_id, ts) VALUES (?, ?)`, agentID, now.Unix()); err != nil {
		return fmt.Errorf("wakebudget: insert wake: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO wake_fingerprints (agent_id, fingerprint, ts) VALUES (?, ?, ?)`, agentID, fingerprint, now.Unix()); err != nil {
		return fmt.Errorf("wakebudget: insert fingerprint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("wakebudget: commit: %w", err)
	}
	return nil
}

// Prune deletes wake rows older than the 1h sliding window and fingerprint
// rows older than the 8h duplicate window, keeping the SQLite file from
// growing unbounded.
func (b *Budget) Prune(now time.Time) error {
	cutoff := now.Add(-duplicateWindow).Unix()
	if _, err := b.db.Exec(`DELETE FROM wakes WHERE ts < ?`, now.Add(-slidingWindow).Unix()); err != nil {
		return fmt.Errorf("wakebudget: prune wakes: %w", err)
	}
	if _, err := b.db.Exec(`DELETE FROM wake_fingerprints WHERE ts < ?`, cutoff); err != nil {
		return fmt.Errorf("wakebudget: prune fingerprints: %w", err)
	}
	return nil
}
