package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/eight-presence/internal/model"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "presence.json")
	s := New(path)

	state := &PresenceState{
		SessionID: "abc",
		UpdatedAt: time.Date(2024, 2, 1, 23, 0, 0, 0, time.UTC),
		Sides: []SideState{
			{Side: model.SideLeft, State: "present", ObservedLow: -12, HeatingLevel: model.Int(40)},
			{Side: model.SideRight, State: "absent"},
		},
	}
	require.NoError(t, s.Save(state))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, state, loaded)

	state.Sides[1].State = "present"
	require.NoError(t, s.Save(state))
	loaded, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "present", loaded.Sides[1].State)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := New(filepath.Join(dir, "missing.json")).Load()
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = New(bad).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestPrint(t *testing.T) {
	state := &PresenceState{
		SessionID: "abc",
		UpdatedAt: time.Date(2024, 2, 1, 23, 0, 0, 0, time.UTC),
		Sides: []SideState{
			{Side: model.SideLeft, State: "present", ObservedLow: -12, HeatingLevel: model.Int(40)},
			{Side: model.SideRight, State: "absent"},
		},
	}

	var out bytes.Buffer
	state.Print(&out)

	assert.Contains(t, out.String(), "session abc")
	assert.Contains(t, out.String(), "left \tpresent\tlevel=40\tlow=-12\n")
	assert.Contains(t, out.String(), "right\tabsent \tlevel=-\tlow=0\n")
}
