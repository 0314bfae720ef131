// SPDX-License-Identifier: MIT

// Package api exposes the HTTP control surface: probes, metrics, radio
// status/skip/stop and the audio endpoint serving a session's current file.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aethradio/aether/internal/health"
	xlog "github.com/aethradio/aether/internal/log"
	"github.com/aethradio/aether/internal/radio"
)

// Server wires the orchestrator and health manager into an HTTP handler.
type Server struct {
	radio  *radio.Orchestrator
	health *health.Manager
}

// NewServer builds the API server.
func NewServer(orch *radio.Orchestrator, hm *health.Manager) *Server {
	return &Server{radio: orch, health: hm}
}

// Router constructs the chi router with the canonical middleware stack.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(requestLogger)
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/radio", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/skip", s.handleSkip)
		r.Post("/stop", s.handleStop)
	})
	r.Get("/audio/{trackID}", s.handleAudio)

	return r
}

// handleStatus returns the snapshot of one chat (?chat_id=) or all sessions.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("chat_id"); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid chat_id")
			return
		}
		snap, ok := s.radio.StatusFor(chatID)
		if !ok {
			writeError(w, http.StatusNotFound, "no session for chat")
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.radio.Status()})
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if !s.radio.Skip(chatID) {
		writeError(w, http.StatusNotFound, "no session for chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipping"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	// Stop is idempotent; a missing session is still a success.
	s.radio.Stop(chatID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleAudio streams the local file of the track a session currently owns.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	path, ok := s.radio.AudioPath(trackID)
	if !ok {
		writeError(w, http.StatusNotFound, "track not available")
		return
	}
	w.Header().Set("Content-Type", "audio/mp4")
	http.ServeFile(w, r, path)
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("chat_id")
	if raw == "" {
		var body struct {
			ChatID int64 `json:"chat_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChatID == 0 {
			writeError(w, http.StatusBadRequest, "chat_id required")
			return 0, false
		}
		return body.ChatID, true
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat_id")
		return 0, false
	}
	return chatID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := xlog.WithComponent("api")
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger emits one structured line per request, after completion.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger := xlog.WithComponent("api")
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
