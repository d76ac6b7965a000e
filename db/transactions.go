package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/eight-presence/internal/model"
)

const timeLayout = time.RFC3339Nano

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// RecordSnapshot stores one row per requested side of a polled snapshot.
// Missing telemetry fields are stored as NULL.
func RecordSnapshot(db *sql.DB, sessionID string, snap model.Snapshot, sides ...model.Side) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}

	for _, side := range sides {
		t := snap.Side(side)
		var presenceEnd any
		if t.PresenceEnd != nil {
			presenceEnd = t.PresenceEnd.UTC().Format(timeLayout)
		}

		_, err = tx.Exec(`INSERT INTO snapshots (session_id, fetched_at, side, heating_level, target_heating_level, now_heating, heating_duration, presence_end) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, snap.FetchedAt.UTC().Format(timeLayout), string(side),
			nullInt(t.HeatingLevel), nullInt(t.TargetHeatingLevel), nullBool(t.NowHeating), nullInt(t.HeatingDuration), presenceEnd)
		if err != nil {
			RollbackTransaction(tx)
			return fmt.Errorf("insert %s snapshot: %w", side, err)
		}
	}

	return CommitTransaction(tx)
}

func RecordTransition(db *sql.DB, tr model.Transition) (int64, error) {
	res, err := db.Exec(`INSERT INTO presence_transitions (side, from_state, to_state, heating_level, observed_low, at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(tr.Side), tr.From, tr.To, tr.HeatingLevel, tr.ObservedLow, tr.At.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert %s transition: %w", tr.Side, err)
	}
	return res.LastInsertId()
}

// PruneSnapshots keeps the newest keep rows of every side and returns how
// many rows were removed.
func PruneSnapshots(db *sql.DB, keep int) (int64, error) {
	res, err := db.Exec(`DELETE FROM snapshots WHERE id IN (
		SELECT id FROM (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY side ORDER BY id DESC) AS rn FROM snapshots
		) WHERE rn > ?
	)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
