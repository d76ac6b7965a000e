package startup

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/eight-presence/internal/model"
	"github.com/thatsimonsguy/eight-presence/internal/presence"
)

// Discoverer is the part of the vendor client needed before polling starts.
type Discoverer interface {
	Login(ctx context.Context) error
	FetchDevices(ctx context.Context) (model.Device, error)
	AssignUsers(ctx context.Context, partner bool) ([]model.User, error)
}

var errNoSides = errors.New("no users assigned to the device")

// Bootstrap logs in, discovers the device and returns a tracker over the
// sides that have an assigned user.
func Bootstrap(ctx context.Context, d Discoverer, partner bool, th presence.Thresholds) (*presence.Tracker, model.Device, error) {
	if err := d.Login(ctx); err != nil {
		return nil, model.Device{}, fmt.Errorf("login: %w", err)
	}

	device, err := d.FetchDevices(ctx)
	if err != nil {
		return nil, model.Device{}, fmt.Errorf("discover device: %w", err)
	}
	log.Info().Str("device_id", device.ID).Bool("pod", device.Pod).Msg("Discovered device")

	users, err := d.AssignUsers(ctx, partner)
	if err != nil {
		return nil, device, fmt.Errorf("assign users: %w", err)
	}

	var sides []model.Side
	for _, u := range users {
		if u.ID == "" {
			log.Warn().Str("side", string(u.Side)).Msg("Side has no assigned user, not tracking it")
			continue
		}
		log.Info().Str("side", string(u.Side)).Str("user_id", u.ID).Msg("Tracking side")
		sides = append(sides, u.Side)
	}
	if len(sides) == 0 {
		return nil, device, errNoSides
	}

	return presence.NewTracker(device.Pod, th, sides...), device, nil
}
