package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/thatsimonsguy/eight-presence/internal/model"
)

// SideState is the last known presence of one side.
type SideState struct {
	Side         model.Side `json:"side"`
	State        string     `json:"state"`
	ObservedLow  int        `json:"observed_low"`
	HeatingLevel *int       `json:"heating_level"`
}

// PresenceState is what the daemon leaves on disk after every successful poll.
type PresenceState struct {
	SessionID string      `json:"session_id"`
	UpdatedAt time.Time   `json:"updated_at"`
	Sides     []SideState `json:"sides"`
}

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the file back for tools outside the daemon, such as the debug
// CLI. The daemon itself only writes it.
func (s *Store) Load() (*PresenceState, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var state PresenceState
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return &state, nil
}

// Print writes one line per side.
func (st *PresenceState) Print(w io.Writer) {
	fmt.Fprintf(w, "session %s, updated %s\n", st.SessionID, st.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	for _, side := range st.Sides {
		level := "-"
		if side.HeatingLevel != nil {
			level = strconv.Itoa(*side.HeatingLevel)
		}
		fmt.Fprintf(w, "%-5s\t%-7s\tlevel=%s\tlow=%d\n", side.Side, side.State, level, side.ObservedLow)
	}
}

// Save replaces the file atomically so readers never see a partial write.
func (s *Store) Save(state *PresenceState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, s.path)
}
