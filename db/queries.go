package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/eight-presence/internal/model"
)

// RecentLevels returns up to limit recorded heating levels for a side, newest
// first. Rows without a level are skipped.
func RecentLevels(db *sql.DB, side model.Side, limit int) ([]int, error) {
	rows, err := db.Query(`SELECT heating_level FROM snapshots WHERE side = ? AND heating_level IS NOT NULL ORDER BY id DESC LIMIT ?`, string(side), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s levels: %w", side, err)
	}
	defer rows.Close()

	var levels []int
	for rows.Next() {
		var level int
		if err := rows.Scan(&level); err != nil {
			return nil, fmt.Errorf("failed to scan level: %w", err)
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

// GetTransitions returns up to limit presence transitions, newest first. An
// empty side returns both sides.
func GetTransitions(db *sql.DB, side model.Side, limit int) ([]model.Transition, error) {
	query := `SELECT id, side, from_state, to_state, heating_level, observed_low, at FROM presence_transitions`
	args := []any{}
	if side != "" {
		query += ` WHERE side = ?`
		args = append(args, string(side))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []model.Transition
	for rows.Next() {
		var tr model.Transition
		var at string
		if err := rows.Scan(&tr.ID, &tr.Side, &tr.From, &tr.To, &tr.HeatingLevel, &tr.ObservedLow, &at); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.At, err = time.Parse(timeLayout, at)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transition time %q: %w", at, err)
		}
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}

func CountSnapshots(db *sql.DB, side model.Side) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM snapshots WHERE side = ?`, string(side)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s snapshots: %w", side, err)
	}
	return n, nil
}
