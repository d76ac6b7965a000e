// Package history holds the last few device snapshots, newest first.
package history

import "github.com/thatsimonsguy/eight-presence/internal/model"

// Capacity is the number of polling cycles retained.
const Capacity = 10

// History is a fixed-capacity ring of snapshots. Index 0 is the most recent.
// Not safe for concurrent use.
type History struct {
	buf   [Capacity]model.Snapshot
	head  int // position of the most recent entry
	count int
}

func New() *History {
	return &History{}
}

// Push inserts snap at the front, evicting the oldest entry once full.
func (h *History) Push(snap model.Snapshot) {
	h.head = (h.head - 1 + Capacity) % Capacity
	h.buf[h.head] = snap
	if h.count < Capacity {
		h.count++
	}
}

// At returns the snapshot i cycles back. ok is false when the history is not
// that deep yet or i is outside [0, Capacity).
func (h *History) At(i int) (model.Snapshot, bool) {
	if i < 0 || i >= h.count {
		return model.Snapshot{}, false
	}
	return h.buf[(h.head+i)%Capacity], true
}

func (h *History) Len() int {
	return h.count
}

// Snapshots returns a copy of the retained snapshots, newest first.
func (h *History) Snapshots() []model.Snapshot {
	out := make([]model.Snapshot, 0, h.count)
	for i := 0; i < h.count; i++ {
		snap, _ := h.At(i)
		out = append(out, snap)
	}
	return out
}
