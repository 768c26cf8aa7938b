package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service is the quiz gateway: the connection manager plus its HTTP surface.
type Service struct {
	connectionManager *ConnectionManager
	handler           *Handler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates the connection manager and routes. The message handler is
// attached with Attach once the orchestrator exists, since the orchestrator in
// turn needs the manager as its hub.
func NewService(config Config) *Service {
	return &Service{
		connectionManager: NewConnectionManager(config.ConnectionConfig, nil),
	}
}

// Hub exposes the connection manager to the orchestrator and the session broadcaster.
func (s *Service) Hub() *ConnectionManager {
	return s.connectionManager
}

// Attach wires the frame handler and the read side used by the REST routes.
func (s *Service) Attach(messages MessageHandler, sessions SessionView, sets SetCatalog, checks map[string]HealthCheck) {
	s.connectionManager.SetHandler(messages)
	s.handler = NewHandler(s.connectionManager, sessions, sets, checks)
}

// Start processes broadcasts until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting quiz gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("quiz gateway service stopped")
}

// Routes returns the HTTP handler of the gateway. Attach must have been called.
func (s *Service) Routes() http.Handler {
	return s.handler.Routes()
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
