// Package server exposes the sensors over a small read-only HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"binancewallet/pkg/sensor"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns a local-only server config.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// SensorView is the JSON representation of a sensor.
type SensorView struct {
	UniqueID   string            `json:"unique_id"`
	Name       string            `json:"name"`
	Icon       string            `json:"icon"`
	State      *float64          `json:"state"`
	Unit       string            `json:"unit_of_measurement"`
	Attributes sensor.Attributes `json:"attributes"`
}

// Server is the read-only HTTP server.
type Server struct {
	router  *mux.Router
	server  *http.Server
	sensors map[string]*sensor.Sensor
	order   []string
	logger  zerolog.Logger
}

// New creates a server for the given sensors. gatherer may be nil to disable /metrics.
func New(config Config, sensors []*sensor.Sensor, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		sensors: make(map[string]*sensor.Sensor, len(sensors)),
		logger:  logger,
	}
	for _, sn := range sensors {
		s.sensors[sn.UniqueID()] = sn
		s.order = append(s.order, sn.UniqueID())
	}

	s.setupRoutes(gatherer)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sensors", s.listSensors).Methods(http.MethodGet)
	api.HandleFunc("/sensors/{id}", s.getSensor).Methods(http.MethodGet)

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting status server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down status server")
	return s.server.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sensors": len(s.sensors),
	})
}

func (s *Server) listSensors(w http.ResponseWriter, _ *http.Request) {
	views := make([]SensorView, 0, len(s.order))
	for _, id := range s.order {
		views = append(views, View(s.sensors[id]))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) getSensor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sn, ok := s.sensors[id]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "sensor not found", "id": id})
		return
	}
	s.writeJSON(w, http.StatusOK, View(sn))
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

// View renders a sensor. State is null until the first successful update.
func View(sn *sensor.Sensor) SensorView {
	view := SensorView{
		UniqueID:   sn.UniqueID(),
		Name:       sn.Name(),
		Icon:       sn.Icon(),
		Unit:       sn.UnitOfMeasurement(),
		Attributes: sn.Attributes(),
	}
	if total, ok := sn.State(); ok {
		view.State = &total
	}
	return view
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request served")
	})
}
