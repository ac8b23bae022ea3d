package gateway

import (
	"context"
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"
)

// Service is the match gateway: WebSocket connections, the chat transport the engine
// renders through, and the JSON API
type Service struct {
	connectionManager *ConnectionManager
	transport         *Transport
	wsHandler         *WebSocketHandler
	apiHandler        *APIHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig `yaml:"connection"`
	AllowedOrigins   []string         `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates the connection manager and transport. Call Attach with the engine
// before serving.
func NewService(config Config) *Service {
	if len(config.AllowedOrigins) > 0 || config.ConnectionConfig.CheckOrigin == nil {
		config.ConnectionConfig.CheckOrigin = checkOrigin(config.AllowedOrigins)
	}
	cm := NewConnectionManager(config.ConnectionConfig)
	transport := NewTransport(cm)
	cm.onConnect = transport.Replay

	return &Service{
		connectionManager: cm,
		transport:         transport,
		wsHandler:         NewWebSocketHandler(cm),
	}
}

// Transport is the match.Transport to build the engine with
func (s *Service) Transport() *Transport {
	return s.transport
}

// Directory resolves connected participants
func (s *Service) Directory() Directory {
	return s.connectionManager
}

// Attach wires the engine and optional history into command and API handling
func (s *Service) Attach(engine Engine, history HistoryReader) {
	commands := NewCommands(engine, s.connectionManager, s.connectionManager)
	s.connectionManager.commands = commands
	s.apiHandler = NewAPIHandler(commands, engine, s.connectionManager, history)
}

// Start runs the connection manager until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting match gateway service")
	s.connectionManager.Start(ctx)
}

// RegisterRoutes registers the WebSocket and API routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	if s.apiHandler != nil {
		s.apiHandler.RegisterRoutes(mux)
	}
	log.Info().Msg("match gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// checkOrigin accepts every origin when allowed is empty or contains "*".
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
