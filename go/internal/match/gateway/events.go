package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/match/outcome"
	"github.com/mcdev12/duel/go/internal/models"
)

// ServerEvent is the envelope for everything pushed to a client
type ServerEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of server event
type EventType string

const (
	EventTypeMessageCreated    EventType = "message.created"
	EventTypeMessageEdited     EventType = "message.edited"
	EventTypeMessageDeleted    EventType = "message.deleted"
	EventTypeMessageChoices    EventType = "message.choices"
	EventTypeChallengeRejected EventType = "challenge.rejected"
	EventTypeCommandError      EventType = "command.error"
)

// Scope tells the client whether a message is its own prompt or the shared board
type Scope string

const (
	ScopePrivate   Scope = "private"
	ScopeBroadcast Scope = "broadcast"
)

// MessagePayload is sent for message.created and message.edited
type MessagePayload struct {
	Handle  models.Handle `json:"handle"`
	Scope   Scope         `json:"scope"`
	Content match.Content `json:"content"`
	Text    string        `json:"text"`
}

// DeletedPayload is sent for message.deleted
type DeletedPayload struct {
	Handle models.Handle `json:"handle"`
}

// ChoiceOption is one selectable response on a prompt
type ChoiceOption struct {
	Choice models.Move `json:"choice"`
	Glyph  string      `json:"glyph"`
}

// ChoicesPayload is sent for message.choices
type ChoicesPayload struct {
	Handle  models.Handle  `json:"handle"`
	Choices []ChoiceOption `json:"choices"`
}

// RejectedPayload is sent for challenge.rejected
type RejectedPayload struct {
	Heading string        `json:"heading"`
	Detail  string        `json:"detail"`
	Content match.Content `json:"content"`
	Text    string        `json:"text"`
}

// CommandErrorPayload is sent for command.error
type CommandErrorPayload struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

// ClientCommand is what a client sends over the socket
type ClientCommand struct {
	Type       string `json:"type"`
	Handle     string `json:"handle,omitempty"`
	Choice     string `json:"choice,omitempty"`
	OpponentID string `json:"opponent_id,omitempty"`
	TimeLimit  int    `json:"time_limit,omitempty"`
}

const (
	CommandRespond   = "respond"
	CommandChallenge = "challenge"
)

// NewServerEvent marshals payload into a fresh event
func NewServerEvent(eventType EventType, payload interface{}) (*ServerEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &ServerEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

func choiceOptions(choices []models.Move) []ChoiceOption {
	opts := make([]ChoiceOption, len(choices))
	for i, c := range choices {
		opts[i] = ChoiceOption{Choice: c, Glyph: outcome.Glyph(c)}
	}
	return opts
}

func messagePayload(h models.Handle, scope Scope, c match.Content) MessagePayload {
	return MessagePayload{Handle: h, Scope: scope, Content: c, Text: c.String()}
}

func rejectedPayload(ce *match.ChallengeError) RejectedPayload {
	c := match.RenderRejection(ce)
	return RejectedPayload{Heading: ce.Heading, Detail: ce.Detail, Content: c, Text: c.String()}
}
