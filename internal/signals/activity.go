package signals

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema_activity.sql
var schemaActivity string

// MinObservations is the number of days of history required before the
// prediction model trusts a per-(day-of-week,hour) bucket, per spec.md §4.10.
const MinObservations = 21

// ActivityStore persists the per-agent (day-of-week, hour) observation
// counts the prediction collector learns from. Backed by SQLite — Prosoche
// is a separate lightweight process from the sidecar, so its local state
// deliberately isn't Postgres.
type ActivityStore struct {
	db *sql.DB
}

// OpenActivityStore opens (creating if absent) the SQLite activity database
// at path.
func OpenActivityStore(path string) (*ActivityStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("signals: open activity store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("signals: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("signals: set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schemaActivity); err != nil {
		db.Close()
		return nil, fmt.Errorf("signals: execute schema: %w", err)
	}
	return &ActivityStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *ActivityStore) Close() error { return s.db.Close() }

func bucketOf(t time.Time) int {
	return int(t.Weekday())*24 + t.Hour()
}

// RecordActivity feeds one observation of agent activity at time t into the
// model, incrementing that (day-of-week, hour) bucket and the agent's total
// observed days (at most once per calendar day).
func (s *ActivityStore) RecordActivity(agentID string, t time.Time) error {
	bucket := bucketOf(t)
	if _, err := s.db.Exec(`
		INSERT INTO activity_observations (nous_id, dow_hour, count) VALUES (?, ?, 1)
		ON CONFLICT(nous_id, dow_hour) DO UPDATE SET count = count + 1
	`, agentID, bucket); err != nil {
		return fmt.Errorf("signals: record observation: %w", err)
	}

	var lastUpdate time.Time
	err := s.db.QueryRow(`SELECT updated_at FROM activity_totals WHERE nous_id = ?`, agentID).Scan(&lastUpdate)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(`INSERT INTO activity_totals (nous_id, total_days, updated_at) VALUES (?, 1, ?)`, agentID, t)
	case err != nil:
		return fmt.Errorf("signals: read activity totals: %w", err)
	case !sameDay(lastUpdate, t):
		_, err = s.db.Exec(`UPDATE activity_totals SET total_days = total_days + 1, updated_at = ? WHERE nous_id = ?`, t, agentID)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("signals: update activity totals: %w", err)
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// PeakHour reports the hour-of-day (in t's day-of-week) with the highest
// observation count for agentID, and whether the model has enough history
// (>= [MinObservations] days) to trust the prediction.
func (s *ActivityStore) PeakHour(agentID string, t time.Time) (hour int, confident bool, err error) {
	var totalDays int
	if scanErr := s.db.QueryRow(`SELECT total_days FROM activity_totals WHERE nous_id = ?`, agentID).Scan(&totalDays); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("signals: read total days: %w", scanErr)
	}
	if totalDays < MinObservations {
		return 0, false, nil
	}

	dow := int(t.Weekday())
	rows, qerr := s.db.Query(`SELECT dow_hour, count FROM activity_observations WHERE nous_id = ? AND dow_hour >= ? AND dow_hour < ?`,
		agentID, dow*24, dow*24+24)
	if qerr != nil {
		return 0, false, fmt.Errorf("signals: query observations: %w", qerr)
	}
	defer rows.Close()

	best, bestCount := -1, -1
	for rows.Next() {
		var bucket, count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return 0, false, err
		}
		if count > bestCount {
			best, bestCount = bucket%24, count
		}
	}
	if best < 0 {
		return 0, false, nil
	}
	return best, true, nil
}
