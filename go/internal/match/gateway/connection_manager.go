package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/models"
)

// ConnectionManager manages WebSocket connections keyed by participant
type ConnectionManager struct {
	participants map[string]map[*Connection]bool
	mu           sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage

	// Set before Start; called from each connection's read pump.
	commands  CommandHandler
	onConnect func(c *Connection)
}

// CommandHandler receives decoded client commands.
type CommandHandler interface {
	HandleCommand(ctx context.Context, from *Connection, cmd ClientCommand)
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID          string
	Participant models.Participant
	Conn        *websocket.Conn
	Send        chan []byte
	Manager     *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`

	CheckOrigin func(r *http.Request) bool `yaml:"-"`
}

// BroadcastMessage is one event routed to connections. With no target it goes to everyone.
type BroadcastMessage struct {
	Event         *ServerEvent
	ParticipantID string // Optional: only this participant's connections
	ConnectionID  string // Optional: only this connection
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		participants: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket for participant
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, participant models.Participant) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Participant: participant,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump(r.Context())

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participant.ID).
		Msg("WebSocket connection established")

	if cm.onConnect != nil {
		cm.onConnect(connection)
	}
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pid := conn.Participant.ID
	if cm.participants[pid] == nil {
		cm.participants[pid] = make(map[*Connection]bool)
	}
	cm.participants[pid][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("participant_id", pid).
		Int("participant_connections", len(cm.participants[pid])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pid := conn.Participant.ID
	if connections, exists := cm.participants[pid]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.participants, pid)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("participant_id", pid).
				Msg("connection unregistered")
		}
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.participants {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// Broadcast queues an event for every connection
func (cm *ConnectionManager) Broadcast(event *ServerEvent) {
	cm.enqueue(BroadcastMessage{Event: event})
}

// SendToParticipant queues an event for every connection of one participant
func (cm *ConnectionManager) SendToParticipant(participantID string, event *ServerEvent) {
	cm.enqueue(BroadcastMessage{Event: event, ParticipantID: participantID})
}

// SendToConnection queues an event for a single connection
func (cm *ConnectionManager) SendToConnection(c *Connection, event *ServerEvent) {
	cm.enqueue(BroadcastMessage{Event: event, ParticipantID: c.Participant.ID, ConnectionID: c.ID})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("event_type", string(message.Event.Type)).
			Str("participant_id", message.ParticipantID).
			Msg("broadcast channel full, dropping message")
	}
}

// Connected reports whether participantID has at least one open connection
func (cm *ConnectionManager) Connected(participantID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.participants[participantID]) > 0
}

// Lookup returns the participant behind participantID if connected
func (cm *ConnectionManager) Lookup(participantID string) (models.Participant, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for conn := range cm.participants[participantID] {
		return conn.Participant, true
	}
	return models.Participant{}, false
}

// Participants lists connected participants ordered by id
func (cm *ConnectionManager) Participants() []models.Participant {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]models.Participant, 0, len(cm.participants))
	for _, connections := range cm.participants {
		for conn := range connections {
			out = append(out, conn.Participant)
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so a concurrent unregister cannot close a Send
	// channel mid-loop. Slow connections are dropped after the lock is released.
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	for pid, connections := range cm.participants {
		if message.ParticipantID != "" && pid != message.ParticipantID {
			continue
		}
		for conn := range connections {
			if message.ConnectionID != "" && conn.ID != message.ConnectionID {
				continue
			}
			select {
			case conn.Send <- eventData:
				delivered++
			default:
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("participant_id", conn.Participant.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// ConnectionStats summarizes the open connections
type ConnectionStats struct {
	TotalConnections      int `json:"total_connections"`
	ConnectedParticipants int `json:"connected_participants"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	for _, connections := range cm.participants {
		total += len(connections)
	}
	return ConnectionStats{
		TotalConnections:      total,
		ConnectedParticipants: len(cm.participants),
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	// The upgrade request's context ends with the handler; commands need their own.
	ctx = context.WithoutCancel(ctx)

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(ctx, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes a client command and hands it to the command handler
func (c *Connection) handleClientMessage(ctx context.Context, message []byte) {
	var cmd ClientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("ignoring malformed client message")
		c.Manager.replyError(c, "", fmt.Errorf("malformed command: %w", err))
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("participant_id", c.Participant.ID).
		Str("command", cmd.Type).
		Msg("received client command")

	if c.Manager.commands == nil {
		return
	}
	c.Manager.commands.HandleCommand(ctx, c, cmd)
}

func (cm *ConnectionManager) replyError(c *Connection, command string, err error) {
	ev, mErr := NewServerEvent(EventTypeCommandError, CommandErrorPayload{Command: command, Error: err.Error()})
	if mErr != nil {
		log.Error().Err(mErr).Msg("failed to build command error")
		return
	}
	cm.SendToConnection(c, ev)
}
