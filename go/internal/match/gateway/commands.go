package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/models"
)

// Engine is what the gateway needs from the match engine
type Engine interface {
	Challenge(ctx context.Context, host, opponent models.Participant, timeLimit int) (match.Snapshot, error)
	HandleResponse(ctx context.Context, ev match.ResponseSubmitted) error
	Sessions() []match.Snapshot
	Lookup(id models.SessionID) (match.Snapshot, bool)
}

// Directory resolves participant ids to connected participants
type Directory interface {
	Lookup(participantID string) (models.Participant, bool)
}

var ErrUnknownOpponent = errors.New("opponent is not connected")

type replier interface {
	SendToConnection(c *Connection, event *ServerEvent)
}

// Commands turns client commands into engine calls
type Commands struct {
	engine    Engine
	directory Directory
	replies   replier
}

func NewCommands(engine Engine, directory Directory, replies replier) *Commands {
	return &Commands{engine: engine, directory: directory, replies: replies}
}

// Challenge starts a match between host and the participant behind opponentID.
func (c *Commands) Challenge(ctx context.Context, host models.Participant, opponentID string, timeLimit int) (match.Snapshot, error) {
	opponent, ok := c.directory.Lookup(opponentID)
	if !ok {
		return match.Snapshot{}, &match.ChallengeError{
			Err:     ErrUnknownOpponent,
			Heading: "Sorry, I could not find that player",
			Detail:  "You can only battle players who are online",
		}
	}
	return c.engine.Challenge(ctx, host, opponent, timeLimit)
}

func (c *Commands) HandleCommand(ctx context.Context, from *Connection, cmd ClientCommand) {
	var err error
	switch cmd.Type {
	case CommandRespond:
		err = c.respond(ctx, from, cmd)
	case CommandChallenge:
		err = c.challenge(ctx, from, cmd)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}
	if err == nil {
		return
	}

	log.Debug().
		Err(err).
		Str("participant_id", from.Participant.ID).
		Str("command", cmd.Type).
		Msg("command failed")

	var ce *match.ChallengeError
	if errors.As(err, &ce) {
		c.reply(from, EventTypeChallengeRejected, rejectedPayload(ce))
		return
	}
	c.reply(from, EventTypeCommandError, CommandErrorPayload{Command: cmd.Type, Error: err.Error()})
}

func (c *Commands) respond(ctx context.Context, from *Connection, cmd ClientCommand) error {
	choice, err := models.ParseChoice(cmd.Choice)
	if err != nil {
		return err
	}
	return c.engine.HandleResponse(ctx, match.ResponseSubmitted{
		Handle:        models.Handle(cmd.Handle),
		ParticipantID: from.Participant.ID,
		Choice:        choice,
	})
}

func (c *Commands) challenge(ctx context.Context, from *Connection, cmd ClientCommand) error {
	snap, err := c.Challenge(ctx, from.Participant, cmd.OpponentID, cmd.TimeLimit)
	if err != nil {
		return err
	}
	log.Info().
		Int64("session_id", int64(snap.ID)).
		Str("host_id", snap.Host.ID).
		Str("opponent_id", snap.Opponent.ID).
		Msg("challenge accepted over websocket")
	return nil
}

func (c *Commands) reply(to *Connection, eventType EventType, payload interface{}) {
	ev, err := NewServerEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to build reply")
		return
	}
	c.replies.SendToConnection(to, ev)
}
