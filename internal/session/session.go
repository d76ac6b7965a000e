// Package session runs the polling cycle: fetch the device state, feed the
// presence tracker, then record, publish and report what changed.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/eight-presence/db"
	"github.com/thatsimonsguy/eight-presence/internal/datadog"
	"github.com/thatsimonsguy/eight-presence/internal/model"
	"github.com/thatsimonsguy/eight-presence/internal/mqtt"
	"github.com/thatsimonsguy/eight-presence/internal/notifications"
	"github.com/thatsimonsguy/eight-presence/internal/presence"
	"github.com/thatsimonsguy/eight-presence/internal/store"
)

// Fetcher polls the device state.
type Fetcher interface {
	FetchDeviceData(ctx context.Context) (model.Snapshot, error)
}

// Notifier interface for sending notifications
type Notifier interface {
	Send(title, message string) error
}

type realNotifier struct{}

func (r *realNotifier) Send(title, message string) error {
	return notifications.Send(title, message)
}

// Deps are the session's collaborators. DB, Publisher and Store are optional.
type Deps struct {
	Fetcher   Fetcher
	Tracker   *presence.Tracker
	DB        *sql.DB
	Publisher mqtt.Publisher
	Notifier  Notifier
	Store     *store.Store
}

type Config struct {
	PollInterval      time.Duration
	OutageThreshold   int
	SnapshotRetention int
}

// Status is the health of the polling loop.
type Status struct {
	SessionID           string    `json:"session_id"`
	Cycles              int       `json:"cycles"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Outage              bool      `json:"outage"`
	LastSuccess         time.Time `json:"last_success"`
	LastError           string    `json:"last_error,omitempty"`
}

type Session struct {
	id   string
	deps Deps
	cfg  Config

	// cycleMu serializes cycles.
	cycleMu sync.Mutex

	mu          sync.RWMutex
	cycles      int
	failures    int
	outage      bool
	lastSuccess time.Time
	lastErr     error

	done chan struct{}
}

func New(deps Deps, cfg Config) *Session {
	if deps.Notifier == nil {
		deps.Notifier = &realNotifier{}
	}
	if cfg.OutageThreshold <= 0 {
		cfg.OutageThreshold = 5
	}
	return &Session{
		id:   uuid.NewString(),
		deps: deps,
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Tracker() *presence.Tracker {
	return s.deps.Tracker
}

// Start polls immediately and then every PollInterval until ctx ends.
func (s *Session) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		log.Info().
			Str("session_id", s.id).
			Dur("interval", s.cfg.PollInterval).
			Msg("Starting presence polling")

		for {
			if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Polling cycle failed")
			}

			select {
			case <-ctx.Done():
				log.Info().Str("session_id", s.id).Msg("Presence polling stopped")
				return
			case <-time.After(s.cfg.PollInterval):
			}
		}
	}()
}

// Done is closed once the polling loop started by Start has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// RunCycle performs one poll. A failed fetch leaves the presence state
// untouched; persistence and publishing failures are logged and do not fail
// the cycle.
func (s *Session) RunCycle(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	snap, err := s.deps.Fetcher.FetchDeviceData(ctx)
	if err != nil {
		s.recordFailure(err)
		return fmt.Errorf("fetch device data: %w", err)
	}
	s.recordSuccess(snap.FetchedAt)

	tracker := s.deps.Tracker
	tracker.PushSnapshot(snap)

	var changes []presence.Change
	for _, side := range tracker.Sides() {
		if change, ok := tracker.EvaluatePresence(side); ok {
			changes = append(changes, change)
		}
	}

	s.persistSnapshot(snap)
	for _, change := range changes {
		s.handleChange(change)
	}
	s.emitGauges(snap)
	s.saveState(snap)

	return nil
}

func (s *Session) persistSnapshot(snap model.Snapshot) {
	if s.deps.DB == nil {
		return
	}
	if err := db.RecordSnapshot(s.deps.DB, s.id, snap, s.deps.Tracker.Sides()...); err != nil {
		log.Error().Err(err).Msg("Failed to record snapshot")
		return
	}
	if s.cfg.SnapshotRetention > 0 {
		removed, err := db.PruneSnapshots(s.deps.DB, s.cfg.SnapshotRetention)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune snapshots")
		} else if removed > 0 {
			log.Debug().Int64("removed", removed).Msg("Pruned old snapshots")
		}
	}
}

func (s *Session) handleChange(change presence.Change) {
	log.Info().
		Str("side", string(change.Side)).
		Str("from", change.From.String()).
		Str("to", change.To.String()).
		Int("heating_level", change.HeatingLevel).
		Int("observed_low", change.ObservedLow).
		Msg("Presence changed")

	datadog.Count("presence.transition", 1, datadog.SideTag(change.Side), "to:"+change.To.String())

	if s.deps.DB != nil {
		_, err := db.RecordTransition(s.deps.DB, model.Transition{
			Side:         change.Side,
			From:         change.From.String(),
			To:           change.To.String(),
			HeatingLevel: change.HeatingLevel,
			ObservedLow:  change.ObservedLow,
			At:           change.At,
		})
		if err != nil {
			log.Error().Err(err).Str("side", string(change.Side)).Msg("Failed to record presence transition")
		}
	}

	if s.deps.Publisher != nil {
		err := s.deps.Publisher.Publish(mqtt.PresenceEvent{
			Timestamp:    change.At,
			Side:         change.Side,
			State:        change.To.String(),
			HeatingLevel: change.HeatingLevel,
			ObservedLow:  change.ObservedLow,
		})
		if err != nil {
			log.Warn().Err(err).Str("side", string(change.Side)).Msg("Failed to publish presence change")
		}
	}
}

func (s *Session) emitGauges(snap model.Snapshot) {
	tracker := s.deps.Tracker
	for _, side := range tracker.Sides() {
		tag := datadog.SideTag(side)
		t := snap.Side(side)
		if t.HeatingLevel != nil {
			datadog.Gauge("heating_level", float64(*t.HeatingLevel), tag)
		}
		if t.TargetHeatingLevel != nil {
			datadog.Gauge("target_heating_level", float64(*t.TargetHeatingLevel), tag)
		}
		datadog.Gauge("observed_low", float64(tracker.ObservedLow(side)), tag)

		present := 0.0
		if tracker.IsPresent(side) {
			present = 1
		}
		datadog.Gauge("presence", present, tag)

		if stats, ok := tracker.Stats(side); ok {
			log.Debug().
				Str("side", string(side)).
				Float64("mean_5", stats.Mean5).
				Float64("mean_10", stats.Mean10).
				Float64("stddev_5", stats.StdDev5).
				Float64("stddev_10", stats.StdDev10).
				Msg("Heating stats")
		}
	}
}

func (s *Session) saveState(snap model.Snapshot) {
	if s.deps.Store == nil {
		return
	}
	tracker := s.deps.Tracker
	state := &store.PresenceState{SessionID: s.id, UpdatedAt: snap.FetchedAt}
	for _, side := range tracker.Sides() {
		current := presence.Absent
		if tracker.IsPresent(side) {
			current = presence.Present
		}
		state.Sides = append(state.Sides, store.SideState{
			Side:         side,
			State:        current.String(),
			ObservedLow:  tracker.ObservedLow(side),
			HeatingLevel: snap.Side(side).HeatingLevel,
		})
	}
	if err := s.deps.Store.Save(state); err != nil {
		log.Error().Err(err).Str("path", s.deps.Store.Path()).Msg("Failed to save presence state")
	}
}

func (s *Session) recordFailure(err error) {
	datadog.Count("poll.failure", 1)

	s.mu.Lock()
	s.cycles++
	s.failures++
	s.lastErr = err
	failures := s.failures
	startOutage := !s.outage && failures >= s.cfg.OutageThreshold
	if startOutage {
		s.outage = true
	}
	s.mu.Unlock()

	log.Warn().Err(err).Int("consecutive_failures", failures).Msg("Failed to fetch device data")

	if startOutage {
		log.Error().Int("consecutive_failures", failures).Msg("Device telemetry unavailable")
		s.notify("Bed telemetry unavailable",
			fmt.Sprintf("%d consecutive polls failed, presence is frozen. Last error: %v", failures, err))
	}
}

func (s *Session) recordSuccess(at time.Time) {
	s.mu.Lock()
	s.cycles++
	failures := s.failures
	recovered := s.outage
	s.failures = 0
	s.outage = false
	s.lastErr = nil
	s.lastSuccess = at
	s.mu.Unlock()

	if recovered {
		log.Info().Int("failed_polls", failures).Msg("Device telemetry restored")
		s.notify("Bed telemetry restored",
			fmt.Sprintf("Polling recovered after %d failed polls.", failures))
	}
}

func (s *Session) notify(title, message string) {
	err := s.deps.Notifier.Send(title, message)
	switch {
	case errors.Is(err, notifications.ErrNotInitialized):
		log.Debug().Str("title", title).Msg("Notifications disabled, alert not sent")
	case err != nil:
		log.Warn().Err(err).Str("title", title).Msg("Failed to send notification")
	}
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		SessionID:           s.id,
		Cycles:              s.cycles,
		ConsecutiveFailures: s.failures,
		Outage:              s.outage,
		LastSuccess:         s.lastSuccess,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
