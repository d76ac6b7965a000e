// Package mqtt publishes presence changes to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/thatsimonsguy/eight-presence/internal/model"
)

const DefaultTopicPrefix = "bed/eight"

// Publisher publishes presence events.
type Publisher interface {
	Publish(event PresenceEvent) error
	Close() error
}

// PresenceEvent is a side's new presence state.
type PresenceEvent struct {
	Timestamp    time.Time
	Side         model.Side
	State        string
	HeatingLevel int
	ObservedLow  int
}

// Topic returns the per-side presence topic, e.g. bed/eight/left/presence.
func Topic(prefix string, side model.Side) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + string(side) + "/presence"
}

type Payload struct {
	Presence PresencePayload `json:"presence"`
}

type PresencePayload struct {
	Timestamp    string `json:"timestamp"`
	Side         string `json:"side"`
	State        string `json:"state"`
	HeatingLevel int    `json:"heating_level"`
	ObservedLow  int    `json:"observed_low"`
}

// FormatPayload creates the JSON payload for a presence event.
func FormatPayload(event PresenceEvent) ([]byte, error) {
	return json.Marshal(Payload{
		Presence: PresencePayload{
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
			Side:         string(event.Side),
			State:        event.State,
			HeatingLevel: event.HeatingLevel,
			ObservedLow:  event.ObservedLow,
		},
	})
}
