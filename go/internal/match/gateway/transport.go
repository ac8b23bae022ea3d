package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/models"
)

var (
	ErrUnknownHandle = errors.New("unknown message handle")
	ErrNotConnected  = errors.New("participant is not connected")
)

// deliverer is the part of ConnectionManager the transport pushes through.
type deliverer interface {
	Broadcast(event *ServerEvent)
	SendToParticipant(participantID string, event *ServerEvent)
	SendToConnection(c *Connection, event *ServerEvent)
	Connected(participantID string) bool
}

type message struct {
	handle    models.Handle
	recipient string // empty for the broadcast board
	content   match.Content
	choices   []models.Move
}

func (m *message) scope() Scope {
	if m.recipient == "" {
		return ScopeBroadcast
	}
	return ScopePrivate
}

// Transport implements match.Transport over WebSocket connections. It keeps every live
// message so a client that connects late can be brought up to date.
type Transport struct {
	out deliverer

	mu       sync.Mutex
	messages map[models.Handle]*message
	order    []models.Handle
}

var _ match.Transport = (*Transport)(nil)

func NewTransport(out deliverer) *Transport {
	return &Transport{
		out:      out,
		messages: make(map[models.Handle]*message),
	}
}

func (t *Transport) SendPrivateMessage(_ context.Context, to models.Participant, content match.Content) (models.Handle, error) {
	if !t.out.Connected(to.ID) {
		return "", fmt.Errorf("send to %s: %w", to.ID, ErrNotConnected)
	}
	m := &message{handle: newHandle(), recipient: to.ID, content: content}
	return m.handle, t.create(m)
}

func (t *Transport) SendBroadcastMessage(_ context.Context, content match.Content) (models.Handle, error) {
	m := &message{handle: newHandle(), content: content}
	return m.handle, t.create(m)
}

func (t *Transport) create(m *message) error {
	ev, err := NewServerEvent(EventTypeMessageCreated, messagePayload(m.handle, m.scope(), m.content))
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages[m.handle] = m
	t.order = append(t.order, m.handle)
	t.deliver(m, ev)
	return nil
}

func (t *Transport) EditMessage(_ context.Context, handle models.Handle, content match.Content) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.messages[handle]
	if !ok {
		return fmt.Errorf("edit %s: %w", handle, ErrUnknownHandle)
	}
	ev, err := NewServerEvent(EventTypeMessageEdited, messagePayload(handle, m.scope(), content))
	if err != nil {
		return err
	}
	m.content = content
	t.deliver(m, ev)
	return nil
}

func (t *Transport) DeleteMessage(_ context.Context, handle models.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.messages[handle]
	if !ok {
		return fmt.Errorf("delete %s: %w", handle, ErrUnknownHandle)
	}
	ev, err := NewServerEvent(EventTypeMessageDeleted, DeletedPayload{Handle: handle})
	if err != nil {
		return err
	}
	delete(t.messages, handle)
	t.deliver(m, ev)
	return nil
}

func (t *Transport) AttachChoices(_ context.Context, handle models.Handle, choices []models.Move) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.messages[handle]
	if !ok {
		return fmt.Errorf("attach choices to %s: %w", handle, ErrUnknownHandle)
	}
	ev, err := NewServerEvent(EventTypeMessageChoices, ChoicesPayload{Handle: handle, Choices: choiceOptions(choices)})
	if err != nil {
		return err
	}
	m.choices = append([]models.Move(nil), choices...)
	t.deliver(m, ev)
	return nil
}

// deliver must be called with mu held so events leave in the order the store changed.
func (t *Transport) deliver(m *message, ev *ServerEvent) {
	if m.recipient == "" {
		t.out.Broadcast(ev)
		return
	}
	t.out.SendToParticipant(m.recipient, ev)
}

// Replay sends c every live message it can see, oldest first.
func (t *Transport) Replay(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := t.order[:0]
	sent := 0
	for _, h := range t.order {
		m, ok := t.messages[h]
		if !ok {
			continue
		}
		live = append(live, h)
		if m.recipient != "" && m.recipient != c.Participant.ID {
			continue
		}

		if ev, err := NewServerEvent(EventTypeMessageCreated, messagePayload(h, m.scope(), m.content)); err == nil {
			t.out.SendToConnection(c, ev)
			sent++
		}
		if len(m.choices) > 0 {
			if ev, err := NewServerEvent(EventTypeMessageChoices, ChoicesPayload{Handle: h, Choices: choiceOptions(m.choices)}); err == nil {
				t.out.SendToConnection(c, ev)
			}
		}
	}
	t.order = live

	if sent > 0 {
		log.Debug().
			Str("connection_id", c.ID).
			Int("messages", sent).
			Msg("replayed live messages")
	}
}

// Len returns the number of live messages.
func (t *Transport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func newHandle() models.Handle {
	return models.Handle(uuid.New().String())
}
