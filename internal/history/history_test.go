package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/eight-presence/internal/model"
)

func snapWithLevel(level int) model.Snapshot {
	return model.Snapshot{
		Left:      model.SideTelemetry{HeatingLevel: model.Int(level)},
		FetchedAt: time.Unix(int64(level), 0),
	}
}

func TestEmptyHistory(t *testing.T) {
	h := New()

	assert.Equal(t, 0, h.Len())
	for i := -1; i <= Capacity; i++ {
		_, ok := h.At(i)
		assert.False(t, ok, "index %d should be absent", i)
	}
	assert.Empty(t, h.Snapshots())
}

func TestPushBelowCapacity(t *testing.T) {
	h := New()
	h.Push(snapWithLevel(1))
	h.Push(snapWithLevel(2))
	h.Push(snapWithLevel(3))

	require.Equal(t, 3, h.Len())

	for i, want := range []int{3, 2, 1} {
		snap, ok := h.At(i)
		require.True(t, ok)
		assert.Equal(t, want, *snap.Left.HeatingLevel)
	}

	_, ok := h.At(3)
	assert.False(t, ok)
}

func TestPushEvictsOldest(t *testing.T) {
	h := New()
	for level := 1; level <= 25; level++ {
		h.Push(snapWithLevel(level))

		snap, ok := h.At(0)
		require.True(t, ok)
		assert.Equal(t, level, *snap.Left.HeatingLevel, "At(0) must be the latest push")
		assert.LessOrEqual(t, h.Len(), Capacity)
	}

	assert.Equal(t, Capacity, h.Len())

	tenth, ok := h.At(9)
	require.True(t, ok)
	assert.Equal(t, 16, *tenth.Left.HeatingLevel)

	for _, i := range []int{10, 11, 100} {
		_, ok := h.At(i)
		assert.False(t, ok, "index %d should be absent", i)
	}
}

func TestSnapshotsNewestFirst(t *testing.T) {
	h := New()
	for level := 1; level <= 12; level++ {
		h.Push(snapWithLevel(level))
	}

	snaps := h.Snapshots()
	require.Len(t, snaps, Capacity)

	var levels []int
	for _, s := range snaps {
		levels = append(levels, *s.Left.HeatingLevel)
	}
	assert.Equal(t, []int{12, 11, 10, 9, 8, 7, 6, 5, 4, 3}, levels)
}
