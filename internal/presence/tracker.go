package presence

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/eight-presence/internal/history"
	"github.com/thatsimonsguy/eight-presence/internal/model"
)

// Change records a presence flip on one side.
type Change struct {
	Side         model.Side
	From         State
	To           State
	HeatingLevel int
	ObservedLow  int
	At           time.Time
}

// Tracker owns the telemetry history of one device and a classifier for every
// assigned side. All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	pod     bool
	history *history.History
	sides   map[model.Side]*Classifier
	order   []model.Side
}

func NewTracker(pod bool, th Thresholds, sides ...model.Side) *Tracker {
	t := &Tracker{
		pod:     pod,
		history: history.New(),
		sides:   make(map[model.Side]*Classifier, len(sides)),
	}
	for _, side := range sides {
		if _, dup := t.sides[side]; dup {
			continue
		}
		t.sides[side] = NewClassifier(side, pod, th)
		t.order = append(t.order, side)
	}
	return t
}

func (t *Tracker) PushSnapshot(snap model.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history.Push(snap)
}

// EvaluatePresence re-evaluates a side against the latest snapshot. The
// returned Change is only meaningful when changed is true.
func (t *Tracker) EvaluatePresence(side model.Side) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.sides[side]
	if !ok {
		return Change{}, false
	}
	current, ok := t.history.At(0)
	if !ok {
		return Change{}, false
	}

	telemetry := current.Side(side)
	prev, next := c.Evaluate(telemetry, func(n int) int { return t.pastLevel(side, n) })

	ev := log.Debug().
		Str("side", string(side)).
		Bool("pod", t.pod).
		Int("observed_low", next.ObservedLow).
		Str("presence", next.State.String())
	if telemetry.HeatingLevel != nil {
		ev = ev.Int("heating_level", *telemetry.HeatingLevel)
	}
	if telemetry.TargetHeatingLevel != nil {
		ev = ev.Int("target_heating_level", *telemetry.TargetHeatingLevel)
	}
	ev.Msg("Presence evaluated")

	if prev.State == next.State {
		return Change{}, false
	}
	return Change{
		Side:         side,
		From:         prev.State,
		To:           next.State,
		HeatingLevel: *telemetry.HeatingLevel,
		ObservedLow:  next.ObservedLow,
		At:           current.FetchedAt,
	}, true
}

func (t *Tracker) IsPresent(side model.Side) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.sides[side]
	return ok && c.State().State == Present
}

func (t *Tracker) ObservedLow(side model.Side) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.sides[side]; ok {
		return c.State().ObservedLow
	}
	return 0
}

// PastLevel returns the side's heating level n cycles back, or 0 when that
// snapshot or its field is missing.
func (t *Tracker) PastLevel(side model.Side, n int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pastLevel(side, n)
}

func (t *Tracker) pastLevel(side model.Side, n int) int {
	snap, ok := t.history.At(n)
	if !ok {
		return 0
	}
	level := snap.Side(side).HeatingLevel
	if level == nil {
		return 0
	}
	return *level
}

// PastLevels returns the full window for a side, newest first.
func (t *Tracker) PastLevels(side model.Side) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	levels := make([]int, history.Capacity)
	for n := range levels {
		levels[n] = t.pastLevel(side, n)
	}
	return levels
}

func (t *Tracker) Stats(side model.Side) (Stats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ComputeStats(func(n int) int { return t.pastLevel(side, n) })
}

func (t *Tracker) Latest() (model.Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.At(0)
}

func (t *Tracker) Depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.Len()
}

func (t *Tracker) Sides() []model.Side {
	return append([]model.Side(nil), t.order...)
}

func (t *Tracker) HasSide(side model.Side) bool {
	_, ok := t.sides[side]
	return ok
}

func (t *Tracker) Pod() bool {
	return t.pod
}
