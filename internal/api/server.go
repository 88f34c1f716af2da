package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/focuspact/focuspact/internal/bridge"
	"github.com/focuspact/focuspact/internal/events"
	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/monitor"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Monitor is the part of the poll loop the API reads from and nudges.
type Monitor interface {
	Latest() *monitor.Snapshot
	Trigger()
}

// Deps are the components served by the API.
type Deps struct {
	Usage    *usage.Service
	Limits   *limits.Store
	Monitor  Monitor
	Source   events.Source
	Recorder bridge.Recorder
}

// Server is the JSON HTTP API server.
type Server struct {
	server   *http.Server
	router   *mux.Router
	deps     Deps
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates an API server listening on addr.
func NewServer(addr string, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	usageHandler := NewUsageHandler(s.deps.Usage, s.logger)
	v1.HandleFunc("/usage", usageHandler.List).Methods("GET")
	v1.HandleFunc("/usage/{app}/projection", usageHandler.Projection).Methods("GET")

	limitsHandler := NewLimitsHandler(s.deps.Limits, s.deps.Monitor, s.logger)
	v1.HandleFunc("/limits", limitsHandler.List).Methods("GET")
	v1.HandleFunc("/limits/{app}", limitsHandler.Get).Methods("GET")
	v1.HandleFunc("/limits/{app}/{type}", limitsHandler.Set).Methods("PUT")
	v1.HandleFunc("/limits/{app}/{type}", limitsHandler.Remove).Methods("DELETE")

	statusHandler := NewStatusHandler(s.deps.Monitor, s.logger)
	v1.HandleFunc("/status", statusHandler.Get).Methods("GET")

	eventsHandler := NewEventsHandler(s.deps.Source, s.deps.Recorder, s.deps.Monitor, s.logger)
	v1.HandleFunc("/events", eventsHandler.Ingest).Methods("POST")
	v1.HandleFunc("/permission", eventsHandler.GetPermission).Methods("GET")
	v1.HandleFunc("/permission", eventsHandler.SetPermission).Methods("POST")
	v1.HandleFunc("/permission/recheck", eventsHandler.Recheck).Methods("POST")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "No such endpoint")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not supported here")
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts serving in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
