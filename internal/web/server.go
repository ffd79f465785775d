package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/listing_alert_bot/internal/domain"
	"go.uber.org/zap"
)

// Server exposes health, the alert journal, metrics and the live alert stream.
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	alerts  domain.AlertRepository
	hub     *AlertHub
	metrics http.Handler
	logger  *zap.Logger
	started time.Time
}

func NewServer(
	port int,
	alerts domain.AlertRepository,
	hub *AlertHub,
	metrics http.Handler,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		alerts:  alerts,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)

	// Journal
	s.router.HandleFunc("GET /api/alerts", s.handleListAlerts)

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
	if s.hub != nil {
		s.router.HandleFunc("GET /ws/alerts", s.hub.ServeWS)
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.server.Shutdown(ctx)
}
