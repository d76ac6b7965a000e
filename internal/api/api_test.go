package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/eight-presence/db"
	"github.com/thatsimonsguy/eight-presence/internal/config"
	"github.com/thatsimonsguy/eight-presence/internal/eight"
	"github.com/thatsimonsguy/eight-presence/internal/model"
	"github.com/thatsimonsguy/eight-presence/internal/presence"
	"github.com/thatsimonsguy/eight-presence/internal/session"
)

var start = time.Date(2024, 2, 1, 22, 0, 0, 0, time.UTC)

// steppingFetcher returns left levels 11, 12, ... and a steady 60 on the right.
type steppingFetcher struct {
	n int
}

func (f *steppingFetcher) FetchDeviceData(ctx context.Context) (model.Snapshot, error) {
	f.n++
	return model.Snapshot{
		Left: model.SideTelemetry{
			HeatingLevel:       model.Int(10 + f.n),
			TargetHeatingLevel: model.Int(0),
			NowHeating:         model.Bool(false),
		},
		Right: model.SideTelemetry{
			HeatingLevel:       model.Int(60),
			TargetHeatingLevel: model.Int(0),
			NowHeating:         model.Bool(false),
			PresenceEnd:        &start,
		},
		FetchedAt: start.Add(time.Duration(f.n) * time.Minute),
	}, nil
}

type silentNotifier struct{}

func (silentNotifier) Send(title, message string) error { return nil }

type mockHeater struct {
	side     model.Side
	level    int
	duration int
	err      error
}

func (m *mockHeater) SetHeatingLevel(ctx context.Context, side model.Side, level, duration int) (model.Snapshot, error) {
	if m.err != nil {
		return model.Snapshot{}, m.err
	}
	m.side, m.level, m.duration = side, level, duration
	t := model.SideTelemetry{TargetHeatingLevel: model.Int(level), HeatingDuration: model.Int(duration)}
	snap := model.Snapshot{FetchedAt: start}
	if side == model.SideRight {
		snap.Right = t
	} else {
		snap.Left = t
	}
	return snap, nil
}

func setupTestServer(t *testing.T, cycles int) (*Server, *sql.DB, *mockHeater) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	sess := session.New(session.Deps{
		Fetcher:  &steppingFetcher{},
		Tracker:  presence.NewTracker(false, presence.DefaultThresholds, model.SideLeft, model.SideRight),
		DB:       database,
		Notifier: silentNotifier{},
	}, session.Config{PollInterval: time.Minute, SnapshotRetention: 100})

	for i := 0; i < cycles; i++ {
		require.NoError(t, sess.RunCycle(context.Background()))
	}

	cfg := &config.Config{Location: time.UTC}
	heater := &mockHeater{}
	return NewServer(database, sess, heater, cfg), database, heater
}

func serve(server *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestGetPresence(t *testing.T) {
	server, _, _ := setupTestServer(t, 3)

	w := serve(server, http.MethodGet, "/api/presence", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var response []SideSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response, 2)

	assert.Equal(t, model.SideLeft, response[0].Side)
	assert.False(t, response[0].Present)
	assert.Equal(t, "absent", response[0].State)
	assert.Equal(t, model.Int(13), response[0].HeatingLevel)

	assert.Equal(t, model.SideRight, response[1].Side)
	assert.True(t, response[1].Present)
	assert.Equal(t, "present", response[1].State)
	require.NotNil(t, response[1].FetchedAt)
	assert.True(t, start.Add(3*time.Minute).Equal(*response[1].FetchedAt))
}

func TestGetPresenceBeforeFirstPoll(t *testing.T) {
	server, _, _ := setupTestServer(t, 0)

	w := serve(server, http.MethodGet, "/api/presence", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response []SideSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response, 2)
	assert.Nil(t, response[0].HeatingLevel)
	assert.Nil(t, response[0].FetchedAt)
}

func TestGetSide(t *testing.T) {
	server, _, _ := setupTestServer(t, 10)

	w := serve(server, http.MethodGet, "/api/sides/left", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var detail SideDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, model.SideLeft, detail.Side)
	assert.Equal(t, []int{20, 19, 18, 17, 16, 15, 14, 13, 12, 11}, detail.PastLevels)
	assert.Equal(t, model.Int(20), detail.Heating.Level)
	assert.Equal(t, model.Bool(false), detail.Heating.Active)

	require.NotNil(t, detail.Stats)
	assert.InDelta(t, 18.0, detail.Stats.Mean5, 1e-9)
	assert.InDelta(t, 15.5, detail.Stats.Mean10, 1e-9)
}

func TestGetSideWithoutFullHistory(t *testing.T) {
	server, _, _ := setupTestServer(t, 4)

	w := serve(server, http.MethodGet, "/api/sides/right", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var detail SideDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Nil(t, detail.Stats)
	assert.Equal(t, []int{60, 60, 60, 60, 0, 0, 0, 0, 0, 0}, detail.PastLevels)
	require.NotNil(t, detail.Heating.LastSeen)
	assert.True(t, start.Equal(*detail.Heating.LastSeen))
}

func TestSetHeatingLevel(t *testing.T) {
	server, _, heater := setupTestServer(t, 1)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"valid warm", `{"level": 40, "duration": 3600}`, http.StatusOK},
		{"valid cool", `{"level": -60}`, http.StatusOK},
		{"missing level", `{"duration": 60}`, http.StatusBadRequest},
		{"level too high", `{"level": 101}`, http.StatusBadRequest},
		{"level too low", `{"level": -101}`, http.StatusBadRequest},
		{"negative duration", `{"level": 20, "duration": -1}`, http.StatusBadRequest},
		{"invalid json", `not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, http.MethodPut, "/api/sides/right/heating-level", []byte(tt.body))
			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var values model.HeatingValues
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &values))
				assert.Equal(t, model.SideRight, heater.side)
				assert.Equal(t, model.Int(heater.level), values.Target)
			}
		})
	}

	assert.Equal(t, -60, heater.level)
	assert.Equal(t, 0, heater.duration)
}

func TestSetHeatingLevelUpstreamErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"rejected session", fmt.Errorf("put: %w", eight.ErrNotAuthenticated), http.StatusUnauthorized},
		{"vendor failure", &eight.RequestError{Method: http.MethodPut, URL: "/devices/dev-1", StatusCode: 500}, http.StatusBadGateway},
		{"network failure", errors.New("connection refused"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _, heater := setupTestServer(t, 1)
			heater.err = tt.err

			w := serve(server, http.MethodPut, "/api/sides/left/heating-level", []byte(`{"level": 30}`))
			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.NotEmpty(t, response.Error)
		})
	}
}

func TestGetStatus(t *testing.T) {
	server, _, _ := setupTestServer(t, 2)

	w := serve(server, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.NotEmpty(t, status.SessionID)
	assert.Equal(t, 2, status.Cycles)
	assert.Equal(t, 2, status.HistoryDepth)
	assert.False(t, status.Pod)
	assert.Equal(t, []model.Side{model.SideLeft, model.SideRight}, status.Sides)
	assert.True(t, start.Add(2*time.Minute).Equal(status.LastSuccess))
}

func TestGetTransitions(t *testing.T) {
	server, database, _ := setupTestServer(t, 2)

	_, err := db.RecordTransition(database, model.Transition{
		Side: model.SideLeft, From: "absent", To: "present", HeatingLevel: 40, At: start.Add(time.Hour),
	})
	require.NoError(t, err)

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCount  int
	}{
		{"all sides", "", http.StatusOK, 2},
		{"right only", "?side=right", http.StatusOK, 1},
		{"limited", "?limit=1", http.StatusOK, 1},
		{"bad side", "?side=middle", http.StatusBadRequest, 0},
		{"bad limit", "?limit=0", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, http.MethodGet, "/api/transitions"+tt.query, nil)
			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var transitions []model.Transition
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transitions))
				assert.Len(t, transitions, tt.expectedCount)
			}
		})
	}
}

func TestUnknownSides(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	sess := session.New(session.Deps{
		Fetcher:  &steppingFetcher{},
		Tracker:  presence.NewTracker(false, presence.DefaultThresholds, model.SideLeft),
		Notifier: silentNotifier{},
	}, session.Config{PollInterval: time.Minute})
	server := NewServer(database, sess, nil, nil)

	w := serve(server, http.MethodGet, "/api/sides/middle", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(server, http.MethodGet, "/api/sides/right", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(server, http.MethodPut, "/api/sides/left/heating-level", []byte(`{"level": 30}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	server, _, _ := setupTestServer(t, 1)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"POST to presence", http.MethodPost, "/api/presence"},
		{"DELETE to status", http.MethodDelete, "/api/status"},
		{"POST to transitions", http.MethodPost, "/api/transitions"},
		{"PUT to side", http.MethodPut, "/api/sides/left"},
		{"GET to heating level", http.MethodGet, "/api/sides/left/heating-level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, tt.method, tt.path, nil)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestInvalidPaths(t *testing.T) {
	server, _, _ := setupTestServer(t, 1)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"side missing", "/api/sides/", http.StatusNotFound},
		{"unknown side operation", "/api/sides/left/unknown", http.StatusNotFound},
		{"too many path segments", "/api/sides/left/heating-level/extra", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, http.MethodPut, tt.path, nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestPreflight(t *testing.T) {
	server, _, _ := setupTestServer(t, 0)

	w := serve(server, http.MethodOptions, "/api/sides/left/heating-level", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}
