package db

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/eight-presence/internal/model"
)

// ShowTransitionsCLI prints transitions for one side, or for both when side
// is empty.
func ShowTransitionsCLI(w io.Writer, dbPath, side string, limit int) error {
	var s model.Side
	if side != "" {
		parsed, err := model.ParseSide(side)
		if err != nil {
			return err
		}
		s = parsed
	}
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	transitions, err := GetTransitions(conn, s, limit)
	if err != nil {
		return err
	}
	for _, tr := range transitions {
		fmt.Fprintf(w, "%s\t%-5s\t%s -> %s\tlevel=%d\tlow=%d\n",
			tr.At.Local().Format("2006-01-02 15:04:05"), tr.Side, tr.From, tr.To, tr.HeatingLevel, tr.ObservedLow)
	}
	return nil
}

func ShowLevelsCLI(w io.Writer, dbPath, side string, limit int) error {
	s, err := model.ParseSide(side)
	if err != nil {
		return err
	}
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	levels, err := RecentLevels(conn, s, limit)
	if err != nil {
		return err
	}
	total, err := CountSnapshots(conn, s)
	if err != nil {
		return err
	}

	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = strconv.Itoa(l)
	}
	fmt.Fprintf(w, "%s (%d recorded, newest first): %s\n", s, total, strings.Join(parts, " "))
	return nil
}

func PruneSnapshotsCLI(w io.Writer, dbPath string, keep int) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	removed, err := PruneSnapshots(conn, keep)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Removed %d snapshot rows, kept up to %d per side\n", removed, keep)
	return nil
}
