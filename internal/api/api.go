package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/eight-presence/db"
	"github.com/thatsimonsguy/eight-presence/internal/config"
	"github.com/thatsimonsguy/eight-presence/internal/eight"
	"github.com/thatsimonsguy/eight-presence/internal/model"
	"github.com/thatsimonsguy/eight-presence/internal/presence"
	"github.com/thatsimonsguy/eight-presence/internal/session"
)

// HeatingSetter changes a side's target heating level on the device.
type HeatingSetter interface {
	SetHeatingLevel(ctx context.Context, side model.Side, level, duration int) (model.Snapshot, error)
}

type Server struct {
	db      *sql.DB
	session *session.Session
	heater  HeatingSetter
	config  *config.Config
}

type SideSummary struct {
	Side               model.Side `json:"side"`
	Present            bool       `json:"present"`
	State              string     `json:"state"`
	ObservedLow        int        `json:"observed_low"`
	HeatingLevel       *int       `json:"heating_level"`
	TargetHeatingLevel *int       `json:"target_heating_level"`
	FetchedAt          *time.Time `json:"fetched_at"`
}

type SideDetail struct {
	SideSummary
	Heating    model.HeatingValues `json:"heating"`
	PastLevels []int               `json:"past_levels"`
	Stats      *presence.Stats     `json:"stats"`
}

type HeatingLevelRequest struct {
	Level    *int `json:"level"`
	Duration int  `json:"duration"`
}

type StatusResponse struct {
	session.Status
	Pod          bool         `json:"pod"`
	Sides        []model.Side `json:"sides"`
	HistoryDepth int          `json:"history_depth"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(database *sql.DB, sess *session.Session, heater HeatingSetter, cfg *config.Config) *Server {
	return &Server{
		db:      database,
		session: sess,
		heater:  heater,
		config:  cfg,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/presence", s.handlePresence)
	mux.HandleFunc("/api/transitions", s.handleTransitions)
	mux.HandleFunc("/api/sides/", s.handleSideOperations)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// Start serves the API until ctx ends.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	tracker := s.session.Tracker()
	status := s.session.Status()
	status.LastSuccess = s.localTime(status.LastSuccess)
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Status:       status,
		Pod:          tracker.Pod(),
		Sides:        tracker.Sides(),
		HistoryDepth: tracker.Depth(),
	})
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	tracker := s.session.Tracker()
	response := []SideSummary{}
	for _, side := range tracker.Sides() {
		response = append(response, s.summary(side))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Transition log not configured")
		return
	}

	var side model.Side
	if raw := r.URL.Query().Get("side"); raw != "" {
		parsed, err := model.ParseSide(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		side = parsed
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit. Must be between 1 and 1000")
			return
		}
		limit = n
	}

	transitions, err := db.GetTransitions(s.db, side, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get transitions")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range transitions {
		transitions[i].At = s.localTime(transitions[i].At)
	}
	if transitions == nil {
		transitions = []model.Transition{}
	}
	s.writeJSON(w, http.StatusOK, transitions)
}

func (s *Server) handleSideOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sides/")
	parts := strings.Split(path, "/")

	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Side required")
		return
	}

	side, err := model.ParseSide(parts[0])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.session.Tracker().HasSide(side) {
		s.writeError(w, http.StatusNotFound, "Side not tracked")
		return
	}

	switch {
	case len(parts) == 1:
		// /api/sides/{side}
		if r.Method == http.MethodGet {
			s.getSide(w, side)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case len(parts) == 2 && parts[1] == "heating-level":
		// /api/sides/{side}/heating-level
		if r.Method == http.MethodPut {
			s.setHeatingLevel(w, r, side)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	default:
		s.writeError(w, http.StatusNotFound, "Invalid path")
	}
}

func (s *Server) getSide(w http.ResponseWriter, side model.Side) {
	tracker := s.session.Tracker()
	detail := SideDetail{
		SideSummary: s.summary(side),
		PastLevels:  tracker.PastLevels(side),
	}
	if latest, ok := tracker.Latest(); ok {
		detail.Heating = latest.Side(side).HeatingValues()
		if detail.Heating.LastSeen != nil {
			t := s.localTime(*detail.Heating.LastSeen)
			detail.Heating.LastSeen = &t
		}
	}
	if stats, ok := tracker.Stats(side); ok {
		detail.Stats = &stats
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) setHeatingLevel(w http.ResponseWriter, r *http.Request, side model.Side) {
	if s.heater == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Heating control not configured")
		return
	}

	var req HeatingLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Level == nil || *req.Level < -100 || *req.Level > 100 {
		s.writeError(w, http.StatusBadRequest, "Invalid level. Must be between -100 and 100")
		return
	}
	if req.Duration < 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid duration. Must not be negative")
		return
	}

	snap, err := s.heater.SetHeatingLevel(r.Context(), side, *req.Level, req.Duration)
	if err != nil {
		log.Error().Err(err).Str("side", string(side)).Int("level", *req.Level).Msg("Failed to set heating level")
		status := http.StatusBadGateway
		if errors.Is(err, eight.ErrNotAuthenticated) {
			status = http.StatusUnauthorized
		}
		s.writeError(w, status, err.Error())
		return
	}

	log.Info().Str("side", string(side)).Int("level", *req.Level).Int("duration", req.Duration).Msg("Heating level updated via API")
	s.writeJSON(w, http.StatusOK, snap.Side(side).HeatingValues())
}

func (s *Server) summary(side model.Side) SideSummary {
	tracker := s.session.Tracker()
	present := tracker.IsPresent(side)
	summary := SideSummary{
		Side:        side,
		Present:     present,
		State:       presence.Absent.String(),
		ObservedLow: tracker.ObservedLow(side),
	}
	if present {
		summary.State = presence.Present.String()
	}
	if latest, ok := tracker.Latest(); ok {
		t := latest.Side(side)
		summary.HeatingLevel = t.HeatingLevel
		summary.TargetHeatingLevel = t.TargetHeatingLevel
		fetched := s.localTime(latest.FetchedAt)
		summary.FetchedAt = &fetched
	}
	return summary
}

func (s *Server) localTime(t time.Time) time.Time {
	if s.config == nil || s.config.Location == nil || t.IsZero() {
		return t
	}
	return t.In(s.config.Location)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
