package notifications

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/eight-presence/internal/env"
)

var ErrNotInitialized = errors.New("notifications not initialized")

var (
	client      *http.Client
	baseURL     string
	topic       string
	initialized bool
)

// Init configures the ntfy client from env.Cfg. Without a topic every Send
// returns ErrNotInitialized.
func Init() {
	initialized = false
	if env.Cfg.NtfyTopic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return
	}

	client = &http.Client{
		Timeout: 10 * time.Second,
	}
	baseURL = strings.TrimRight(env.Cfg.NtfyURL, "/")
	topic = env.Cfg.NtfyTopic
	initialized = true

	log.Info().
		Str("server", baseURL).
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
}

// Send publishes a message to the configured ntfy topic. ntfy's JSON
// publishing endpoint is the server root, with the topic in the body.
func Send(title, message string) error {
	if !initialized {
		return ErrNotInitialized
	}

	payload := map[string]interface{}{
		"topic":   topic,
		"title":   title,
		"message": message,
		"tags":    []string{"bed"},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}
