package postgres

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// isNoRows reports whether err is (or wraps) pgx.ErrNoRows, the sentinel
// pgx returns from QueryRow when zero rows match.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// timeNow is a seam over time.Now so tests can stub creation timestamps
// without depending on wall-clock ordering.
var timeNow = time.Now
