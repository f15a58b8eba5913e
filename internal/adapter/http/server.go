package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/helpq/helpq/internal/logger"
	"github.com/helpq/helpq/internal/usecase"
)

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Port         string
	JWTSecret    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the HTTP front of the queue service.
type Server struct {
	server *http.Server
	log    logger.Logger
}

// NewServer wires handlers, middleware and routes.
func NewServer(
	config ServerConfig,
	queue *usecase.QueueService,
	estimator *usecase.Estimator,
	presence *usecase.PresenceService,
	stats *usecase.StatsService,
	log logger.Logger,
) *Server {
	auth := NewAuthMiddleware(config.JWTSecret)
	router := mux.NewRouter()

	NewTicketHandler(queue).RegisterRoutes(router, auth)
	NewQueueHandler(queue, estimator, presence, stats).RegisterRoutes(router, auth)

	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware)
	router.Use(recoveryMiddleware(log))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	return &Server{
		server: &http.Server{
			Addr:         ":" + config.Port,
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		log: log,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info("http server starting", logger.Fields{"addr": s.server.Addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down", nil)
	return s.server.Shutdown(ctx)
}
