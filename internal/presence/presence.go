// Package presence infers whether someone is in each side of the bed from the
// heating-level dynamics the device reports. The vendor's own presence signal
// lags by up to half an hour, so occupancy is read from body heat instead: a
// plateau well above the resting level, or a steady rise toward one.
package presence

import "github.com/thatsimonsguy/eight-presence/internal/model"

type State int

const (
	Absent State = iota
	Present
)

func (s State) String() string {
	if s == Present {
		return "present"
	}
	return "absent"
}

// Thresholds are empirically tuned heating levels. Levels are compared against
// the working level, which is the raw level on heat-only covers and the level
// re-based on the lowest reading seen on cooling-capable ones.
type Thresholds struct {
	// Above this an empty side becomes occupied without needing a rising edge.
	OccupiedLevel int `json:"occupied_level" yaml:"occupied_level"`
	// Above this (up to OccupiedLevel) a rising edge marks the side occupied.
	RisingLevel int `json:"rising_level" yaml:"rising_level"`
	// At or below this an occupied side is always vacated.
	VacantLevel int `json:"vacant_level" yaml:"vacant_level"`
	// Below these a falling edge vacates an occupied side.
	PodFallingCeiling int `json:"pod_falling_ceiling" yaml:"pod_falling_ceiling"`
	FallingCeiling    int `json:"falling_ceiling" yaml:"falling_ceiling"`
	// Minimum excess over the target that reads as body heat while the cover
	// is actively driving toward that target.
	ExcessOverTarget int `json:"excess_over_target" yaml:"excess_over_target"`
	// Minimum per-cycle increase for a rising edge.
	EdgeDelta int `json:"edge_delta" yaml:"edge_delta"`
}

var DefaultThresholds = Thresholds{
	OccupiedLevel:     50,
	RisingLevel:       25,
	VacantLevel:       15,
	PodFallingCeiling: 35,
	FallingCeiling:    50,
	ExcessOverTarget:  8,
	EdgeDelta:         2,
}

// PresenceState is the per-side memory carried between evaluations.
type PresenceState struct {
	State State
	// Lowest heating level seen so far. Starts at 0 and only ever decreases.
	ObservedLow int
}

// Inputs is everything one evaluation looks at for a side.
type Inputs struct {
	HeatingLevel       *int
	TargetHeatingLevel *int
	// Whether the device reports the side as actively heating or cooling.
	Active *bool
	// Past returns the heating level n cycles back, 0 being the latest snapshot.
	Past func(n int) int
	// Pod marks a cooling-capable cover whose resting level is below 0.
	Pod bool
}

// InputsFor builds Inputs from a side's current telemetry.
func InputsFor(t model.SideTelemetry, past func(int) int, pod bool) Inputs {
	return Inputs{
		HeatingLevel:       t.HeatingLevel,
		TargetHeatingLevel: t.TargetHeatingLevel,
		Active:             t.NowHeating,
		Past:               past,
		Pod:                pod,
	}
}

func (in Inputs) past(n int) int {
	if in.Past == nil || n < 0 || n > 9 {
		return 0
	}
	return in.Past(n)
}

// Evaluate runs one presence decision. Without a current heating level and
// target it returns prev untouched.
func Evaluate(prev PresenceState, in Inputs, th Thresholds) PresenceState {
	if in.HeatingLevel == nil || in.TargetHeatingLevel == nil {
		return prev
	}
	level, target := *in.HeatingLevel, *in.TargetHeatingLevel

	next := prev
	if level < next.ObservedLow {
		next.ObservedLow = level
	}

	active := in.Active != nil && *in.Active
	nowHeating := active && target > 0
	nowCooling := active && target < 0

	working := level
	fallingCeiling := th.FallingCeiling
	if in.Pod {
		working = level - next.ObservedLow
		fallingCeiling = th.PodFallingCeiling
	}

	switch prev.State {
	case Absent:
		if working > th.OccupiedLevel {
			if plateauOccupied(in.Pod, level, working, target, nowHeating, nowCooling, th) {
				next.State = Present
			}
		} else if working > th.RisingLevel && risingEdge(in, th) {
			if !nowHeating || working-target >= th.ExcessOverTarget {
				next.State = Present
			}
		}
	case Present:
		if working <= th.VacantLevel {
			next.State = Absent
		} else if working < fallingCeiling && fallingEdge(in) {
			next.State = Absent
		}
	}

	return next
}

func plateauOccupied(pod bool, level, working, target int, nowHeating, nowCooling bool, th Thresholds) bool {
	if !pod {
		return !nowHeating || working-target >= th.ExcessOverTarget
	}
	switch {
	case !nowHeating && !nowCooling:
		return true
	case nowHeating:
		return working-target >= th.ExcessOverTarget
	default:
		// Cooling compares the raw level, not the working level. Kept as
		// observed on the device; do not re-base.
		return level+target >= th.ExcessOverTarget
	}
}

func risingEdge(in Inputs, th Thresholds) bool {
	for n := 0; n < 3; n++ {
		if in.past(n)-in.past(n+1) < th.EdgeDelta {
			return false
		}
	}
	return true
}

func fallingEdge(in Inputs) bool {
	for n := 0; n < 3; n++ {
		if in.past(n)-in.past(n+1) >= 0 {
			return false
		}
	}
	return true
}

// Classifier holds the presence state of a single side.
type Classifier struct {
	side       model.Side
	pod        bool
	thresholds Thresholds
	state      PresenceState
}

func NewClassifier(side model.Side, pod bool, th Thresholds) *Classifier {
	return &Classifier{side: side, pod: pod, thresholds: th}
}

// Evaluate advances the classifier with the side's current telemetry and
// returns the state before and after.
func (c *Classifier) Evaluate(current model.SideTelemetry, past func(int) int) (prev, next PresenceState) {
	prev = c.state
	c.state = Evaluate(prev, InputsFor(current, past, c.pod), c.thresholds)
	return prev, c.state
}

func (c *Classifier) State() PresenceState {
	return c.state
}

func (c *Classifier) Side() model.Side {
	return c.side
}
