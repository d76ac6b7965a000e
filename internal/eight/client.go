// Package eight talks to the mattress cover vendor's private REST API: it
// logs in, discovers the bed and who sleeps on which side, polls device
// telemetry and sets target heating levels.
package eight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/eight-presence/internal/model"
)

// DefaultRefreshMargin is how long before expiry a session token is renewed.
const DefaultRefreshMargin = 5 * time.Minute

type Config struct {
	BaseURL       string
	Email         string
	Password      string
	Timeout       time.Duration
	RefreshMargin time.Duration
}

type Client struct {
	baseURL       string
	email         string
	password      string
	refreshMargin time.Duration
	httpClient    *http.Client
	now           func() time.Time

	mu      sync.Mutex
	userID  string
	token   string
	expires time.Time
	device  model.Device
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RefreshMargin == 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		email:         cfg.Email,
		password:      cfg.Password,
		refreshMargin: cfg.RefreshMargin,
		httpClient:    newHTTPClient(cfg.Timeout),
		now:           time.Now,
	}
}

type loginResponse struct {
	Session struct {
		UserID         string `json:"userId"`
		Token          string `json:"token"`
		ExpirationDate string `json:"expirationDate"`
	} `json:"session"`
}

// Login exchanges the account credentials for a session token.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

// login requires c.mu.
func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("email", c.email)
	form.Set("password", c.password)

	var resp loginResponse
	if err := c.send(ctx, http.MethodPost, "/login", form, "", &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Session.Token == "" {
		return fmt.Errorf("login: empty session token: %w", ErrNotAuthenticated)
	}

	expires, err := iso8601.ParseString(resp.Session.ExpirationDate)
	if err != nil {
		return fmt.Errorf("login: parse expiration %q: %w", resp.Session.ExpirationDate, err)
	}

	c.userID = resp.Session.UserID
	c.token = resp.Session.Token
	c.expires = expires

	log.Info().
		Str("user_id", c.userID).
		Time("expires", c.expires).
		Msg("Logged in to vendor API")
	return nil
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// TokenExpiry returns when the current session token lapses.
func (c *Client) TokenExpiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expires
}

// sessionToken returns a token valid for at least the refresh margin,
// logging in first when needed.
func (c *Client) sessionToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || !c.now().Add(c.refreshMargin).Before(c.expires) {
		log.Debug().Time("expires", c.expires).Msg("Session token missing or expiring, refreshing")
		if err := c.login(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

// do sends an authenticated request. A rejected token gets one fresh login
// and one replay.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	token, err := c.sessionToken(ctx)
	if err != nil {
		return err
	}

	err = c.send(ctx, method, path, form, token, out)
	if !errors.Is(err, ErrNotAuthenticated) {
		return err
	}

	log.Warn().Str("path", path).Msg("Session token rejected, logging in again")
	c.mu.Lock()
	err = c.login(ctx)
	token = c.token
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, form, token, out)
}

func (c *Client) send(ctx context.Context, method, path string, form url.Values, token string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set("Session-Token", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Method: method, URL: path, Body: err.Error(), err: ErrRequest}
	}
	defer drainAndClose(resp.Body)

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("Vendor API response")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &RequestError{Method: method, URL: path, StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body), err: ErrNotAuthenticated}
	case resp.StatusCode != http.StatusOK:
		return &RequestError{Method: method, URL: path, StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body), err: ErrRequest}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return &RequestError{Method: method, URL: path, StatusCode: resp.StatusCode, Body: "non-JSON response: " + readErrorBody(resp.Body), err: ErrRequest}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

func drainAndClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 4096))
	rc.Close()
}
