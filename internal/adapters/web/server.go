package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecucondorSA/autorenta-sub030/internal/adapters/web/handlers"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// Dependencies are the read-only views the HTTP surface exposes
type Dependencies struct {
	Prices     handlers.PriceReader
	Monitor    handlers.StatusSource
	Mode       string
	Profiles   []models.BrowserProfileConfig
	StaleAfter time.Duration
	Checks     map[string]handlers.Check
}

// Server represents the HTTP server
type Server struct {
	port   int
	deps   Dependencies
	logger *slog.Logger
	server *http.Server
}

// NewServer creates a new HTTP server
func NewServer(port int, deps Dependencies, logger *slog.Logger) *Server {
	s := &Server{
		port:   port,
		deps:   deps,
		logger: logger,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	pricesHandler := handlers.NewPricesHandler(s.deps.Prices, s.logger)
	healthHandler := handlers.NewHealthHandler(s.deps.Checks, s.logger)
	statusHandler := handlers.NewStatusHandler(s.deps.Monitor, s.deps.Mode, s.logger)
	profilesHandler := handlers.NewProfilesHandler(s.deps.Profiles, s.deps.StaleAfter, s.logger)

	mux.HandleFunc("GET /prices/{fiat}/{side}", pricesHandler.Latest)
	mux.HandleFunc("GET /markets", pricesHandler.Markets)
	mux.HandleFunc("GET /health", healthHandler.Handle)
	mux.HandleFunc("GET /status", statusHandler.Handle)
	mux.HandleFunc("GET /profiles", profilesHandler.Handle)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
