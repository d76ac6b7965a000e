package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ParseSide accepts "left" or "right".
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideLeft, SideRight:
		return Side(s), nil
	default:
		return "", fmt.Errorf("invalid side %q (valid: left, right)", s)
	}
}

// SideTelemetry is one side's slice of a device snapshot. Any field may be
// missing from the vendor payload.
type SideTelemetry struct {
	HeatingLevel       *int       `json:"heating_level,omitempty"`
	TargetHeatingLevel *int       `json:"target_heating_level,omitempty"`
	NowHeating         *bool      `json:"now_heating,omitempty"`
	HeatingDuration    *int       `json:"heating_duration,omitempty"`
	PresenceEnd        *time.Time `json:"presence_end,omitempty"`
}

// Snapshot is a single polling cycle's device state.
type Snapshot struct {
	Left      SideTelemetry
	Right     SideTelemetry
	FetchedAt time.Time
}

func (s Snapshot) Side(side Side) SideTelemetry {
	if side == SideRight {
		return s.Right
	}
	return s.Left
}

// deviceData mirrors the side-prefixed keys of the vendor device payload.
type deviceData struct {
	LeftHeatingLevel        *int       `json:"leftHeatingLevel"`
	LeftTargetHeatingLevel  *int       `json:"leftTargetHeatingLevel"`
	LeftNowHeating          *bool      `json:"leftNowHeating"`
	LeftHeatingDuration     *int       `json:"leftHeatingDuration"`
	LeftPresenceEnd         *epochTime `json:"leftPresenceEnd"`
	RightHeatingLevel       *int       `json:"rightHeatingLevel"`
	RightTargetHeatingLevel *int       `json:"rightTargetHeatingLevel"`
	RightNowHeating         *bool      `json:"rightNowHeating"`
	RightHeatingDuration    *int       `json:"rightHeatingDuration"`
	RightPresenceEnd        *epochTime `json:"rightPresenceEnd"`
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var d deviceData
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	s.Left = SideTelemetry{
		HeatingLevel:       d.LeftHeatingLevel,
		TargetHeatingLevel: d.LeftTargetHeatingLevel,
		NowHeating:         d.LeftNowHeating,
		HeatingDuration:    d.LeftHeatingDuration,
		PresenceEnd:        d.LeftPresenceEnd.time(),
	}
	s.Right = SideTelemetry{
		HeatingLevel:       d.RightHeatingLevel,
		TargetHeatingLevel: d.RightTargetHeatingLevel,
		NowHeating:         d.RightNowHeating,
		HeatingDuration:    d.RightHeatingDuration,
		PresenceEnd:        d.RightPresenceEnd.time(),
	}
	return nil
}

// epochTime decodes a unix timestamp sent either as a number or a string.
type epochTime time.Time

func (e *epochTime) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var secs int64
	switch v := raw.(type) {
	case float64:
		secs = int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse epoch %q: %w", v, err)
		}
		secs = n
	default:
		return fmt.Errorf("unexpected epoch value %s", string(b))
	}
	*e = epochTime(time.Unix(secs, 0).UTC())
	return nil
}

func (e *epochTime) time() *time.Time {
	if e == nil {
		return nil
	}
	t := time.Time(*e)
	return &t
}

// HeatingValues is the flattened current heating view for one side.
type HeatingValues struct {
	Level     *int       `json:"level"`
	Target    *int       `json:"target"`
	Active    *bool      `json:"active"`
	Remaining *int       `json:"remaining"`
	LastSeen  *time.Time `json:"last_seen"`
}

func (t SideTelemetry) HeatingValues() HeatingValues {
	return HeatingValues{
		Level:     t.HeatingLevel,
		Target:    t.TargetHeatingLevel,
		Active:    t.NowHeating,
		Remaining: t.HeatingDuration,
		LastSeen:  t.PresenceEnd,
	}
}

type Device struct {
	ID  string `json:"id"`
	Pod bool   `json:"pod"`
}

// User is the account assigned to one side of the bed.
type User struct {
	ID   string `json:"id"`
	Side Side   `json:"side"`
}

// Transition is a recorded presence flip.
type Transition struct {
	ID           int64     `json:"id"`
	Side         Side      `json:"side"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	HeatingLevel int       `json:"heating_level"`
	ObservedLow  int       `json:"observed_low"`
	At           time.Time `json:"at"`
}

// Int and Bool build optional telemetry fields.
func Int(v int) *int { return &v }
func Bool(v bool) *bool { return &v }
