// Package api implements reelforge's HTTP + WebSocket surface: the API
// Surface of spec §4.5, served over a stdlib mux in the teacher's
// webui.Server style (bearer auth, CORS for local dev, JSON helpers).
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/content"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
	"github.com/reelforge/scheduler/pkg/reelforge/recurring"
)

// Config holds HTTP server settings, sourced from config.Config.
type Config struct {
	Address   string
	AuthToken string
}

func (c Config) effective() Config {
	if c.Address == "" {
		c.Address = "0.0.0.0:8000"
	}
	return c
}

// Server is reelforge's HTTP API, wrapping the ContentScheduler,
// RecurringScheduler, and CalendarManager behind the endpoints spec
// §4.5 names, plus the supplemented endpoints from SPEC_FULL.md §C.
type Server struct {
	cfg       Config
	content   *content.Scheduler
	recurring *recurring.Scheduler
	calendar  *calendar.Manager
	bus       *job.Bus
	logger    *slog.Logger
	hub       *wsHub
	server    *http.Server
}

// New constructs a Server. Call Start to begin listening.
func New(cfg Config, contentSched *content.Scheduler, recurringSched *recurring.Scheduler, cal *calendar.Manager, bus *job.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg.effective(),
		content:   contentSched,
		recurring: recurringSched,
		calendar:  cal,
		bus:       bus,
		logger:    logger.With("component", "api"),
		hub:       newWSHub(bus, logger),
	}
}

// Start begins serving the API in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)

	mux.HandleFunc("/api/jobs/schedule", s.auth(s.handleScheduleJob))
	mux.HandleFunc("/api/jobs/schedule/batch", s.auth(s.handleScheduleBatch))
	mux.HandleFunc("/api/jobs", s.auth(s.handleListJobs))
	mux.HandleFunc("/api/jobs/", s.auth(s.handleJobByID))

	mux.HandleFunc("/api/recurring/create", s.auth(s.handleCreateRecurring))
	mux.HandleFunc("/api/recurring", s.auth(s.handleListRecurring))
	mux.HandleFunc("/api/recurring/", s.auth(s.handleRecurringByID))

	mux.HandleFunc("/api/calendar/slots", s.auth(s.handleCalendarSlots))
	mux.HandleFunc("/api/calendar/day/", s.auth(s.handleCalendarDay))
	mux.HandleFunc("/api/calendar/week/", s.auth(s.handleCalendarWeek))
	mux.HandleFunc("/api/calendar/suggestions", s.auth(s.handleCalendarSuggestions))
	mux.HandleFunc("/api/calendar/conflicts", s.auth(s.handleCalendarConflicts))
	mux.HandleFunc("/api/calendar/blackouts", s.auth(s.handleCalendarBlackouts))

	mux.HandleFunc("/api/statistics", s.auth(s.handleStatistics))

	mux.HandleFunc("/ws", s.auth(s.hub.serveWS))

	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // disabled: WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("api server starting", "address", s.cfg.Address)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
	s.hub.closeAll()
	s.logger.Info("api server stopped")
}

// auth validates the bearer token when one is configured, matching the
// teacher's authMiddleware (constant-time comparison, no-op when no
// token is configured).
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next(w, r)
			return
		}
		token := extractToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
			return
		}
		next(w, r)
	}
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── JSON helpers ──

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
