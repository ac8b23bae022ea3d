package gateway

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/models"
)

// WebSocketHandler handles WebSocket upgrade requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// participantFromRequest reads ?participant_id=&name=&bot=. In production the identity
// would come from an authenticated session.
func participantFromRequest(r *http.Request) (models.Participant, bool) {
	q := r.URL.Query()
	p := models.Participant{
		ID:   q.Get("participant_id"),
		Name: q.Get("name"),
	}
	if p.ID == "" {
		return p, false
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	p.Bot, _ = strconv.ParseBool(q.Get("bot"))
	return p, true
}

// HandleConnection handles GET /ws
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantFromRequest(r)
	if !ok {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	// On failure the upgrader has already replied to the client.
	if err := h.connectionManager.UpgradeConnection(w, r, participant); err != nil {
		log.Error().
			Err(err).
			Str("participant_id", participant.ID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
