package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/evwatch/evwatch/hub"
	"github.com/evwatch/evwatch/render"
	"github.com/evwatch/evwatch/storage"
	"github.com/evwatch/evwatch/types"
)

// Engine is the slice of the reconciliation loop the HTTP surface needs.
type Engine interface {
	Cards() []render.Card
	Status() types.ConnStatus
	Stats() (passes, skipped int64, active int)
	Dismiss(eventID string)
}

// Server exposes the rendered state over REST and websocket.
type Server struct {
	engine Engine
	hub    *hub.Hub
	store  *storage.Store
	srv    *http.Server
}

func New(addr string, engine Engine, h *hub.Hub, store *storage.Store) *Server {
	s := &Server{engine: engine, hub: h, store: store}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.hub.ServeWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Post("/events/{eventID}/dismiss", s.handleDismiss)
		r.Get("/status", s.handleStatus)
		r.Get("/alerts", s.handleAlerts)
	})

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("🌐 HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "evwatch",
	})
}

// handleEvents returns the current cards in display order.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	cards := s.engine.Cards()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": s.engine.Status(),
		"count":  len(cards),
		"cards":  cards,
	})
}

// handleDismiss hides an event for the rest of its occurrence.
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "event id is required")
		return
	}

	s.engine.Dismiss(eventID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dismissed": eventID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	passes, skipped, active := s.engine.Stats()
	connections, messages := s.hub.Stats()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      s.engine.Status(),
		"passes":      passes,
		"skipped":     skipped,
		"active":      active,
		"connections": connections,
		"messages":    messages,
	})
}

// handleAlerts returns the most recent fired alerts from the ledger.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := s.store.RecentAlerts(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load alerts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(records),
		"alerts": records,
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
		"code":    status,
	})
}
