package eight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/eight-presence/internal/model"
)

var errNoDevice = errors.New("no device discovered")

type userResponse struct {
	User struct {
		UserID   string   `json:"userId"`
		Devices  []string `json:"devices"`
		Features []string `json:"features"`
	} `json:"user"`
}

// FetchDevices discovers the account's bed. Only the first device is used.
// A cover advertising the "cooling" feature is a pod.
func (c *Client) FetchDevices(ctx context.Context) (model.Device, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &resp); err != nil {
		return model.Device{}, fmt.Errorf("fetch devices: %w", err)
	}
	if len(resp.User.Devices) == 0 {
		return model.Device{}, fmt.Errorf("fetch devices: %w", errNoDevice)
	}

	device := model.Device{
		ID:  resp.User.Devices[0],
		Pod: slices.Contains(resp.User.Features, "cooling"),
	}

	c.mu.Lock()
	c.device = device
	c.mu.Unlock()

	log.Info().
		Str("device_id", device.ID).
		Bool("pod", device.Pod).
		Int("devices", len(resp.User.Devices)).
		Msg("Discovered device")
	return device, nil
}

func (c *Client) Device() model.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

type assignmentResponse struct {
	Result struct {
		OwnerID     string `json:"ownerId"`
		LeftUserID  string `json:"leftUserId"`
		RightUserID string `json:"rightUserId"`
	} `json:"result"`
}

// AssignUsers resolves who sleeps on which side. The left user is always
// tracked; the right one only when partner is set.
func (c *Client) AssignUsers(ctx context.Context, partner bool) ([]model.User, error) {
	deviceID, err := c.deviceID()
	if err != nil {
		return nil, fmt.Errorf("assign users: %w", err)
	}

	var resp assignmentResponse
	path := "/devices/" + url.PathEscape(deviceID) + "?filter=ownerId,leftUserId,rightUserId"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("assign users: %w", err)
	}

	users := []model.User{{ID: resp.Result.LeftUserID, Side: model.SideLeft}}
	if partner {
		users = append(users, model.User{ID: resp.Result.RightUserID, Side: model.SideRight})
	}

	for _, u := range users {
		log.Info().Str("user_id", u.ID).Str("side", string(u.Side)).Msg("Assigned user to side")
	}
	return users, nil
}

type deviceDataResponse struct {
	Result model.Snapshot `json:"result"`
}

// FetchDeviceData polls the device's current state.
func (c *Client) FetchDeviceData(ctx context.Context) (model.Snapshot, error) {
	deviceID, err := c.deviceID()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("fetch device data: %w", err)
	}

	var resp deviceDataResponse
	path := "/devices/" + url.PathEscape(deviceID) + "?offlineView=true"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return model.Snapshot{}, fmt.Errorf("fetch device data: %w", err)
	}

	snap := resp.Result
	snap.FetchedAt = c.now()
	return snap, nil
}

// ClampLevel bounds a requested level to what the cover accepts: 10..100 for
// heat-only covers and -100..100 for pods.
func ClampLevel(level int, pod bool) int {
	lo := 10
	if pod {
		lo = -100
	}
	return max(lo, min(level, 100))
}

type setHeatingResponse struct {
	Device model.Snapshot `json:"device"`
}

// SetHeatingLevel sets a side's target level for duration seconds and
// returns the device state the vendor echoes back.
func (c *Client) SetHeatingLevel(ctx context.Context, side model.Side, level, duration int) (model.Snapshot, error) {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	if device.ID == "" {
		return model.Snapshot{}, fmt.Errorf("set heating level: %w", errNoDevice)
	}

	clamped := ClampLevel(level, device.Pod)
	if clamped != level {
		log.Warn().
			Str("side", string(side)).
			Int("requested", level).
			Int("clamped", clamped).
			Msg("Heating level out of range, clamping")
	}

	form := url.Values{}
	form.Set(string(side)+"TargetHeatingLevel", strconv.Itoa(clamped))
	form.Set(string(side)+"HeatingDuration", strconv.Itoa(duration))

	var resp setHeatingResponse
	if err := c.do(ctx, http.MethodPut, "/devices/"+url.PathEscape(device.ID), form, &resp); err != nil {
		return model.Snapshot{}, fmt.Errorf("set heating level: %w", err)
	}

	log.Info().
		Str("side", string(side)).
		Int("level", clamped).
		Int("duration", duration).
		Msg("Heating level set")

	snap := resp.Device
	snap.FetchedAt = c.now()
	return snap, nil
}

func (c *Client) deviceID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device.ID == "" {
		return "", errNoDevice
	}
	return c.device.ID, nil
}
