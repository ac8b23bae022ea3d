package match

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/models"
)

// Sink receives session lifecycle notifications. Calls for one session are serialized by
// its arbiter; SessionFinalized is delivered exactly once per session.
type Sink interface {
	SessionStarted(ctx context.Context, snap Snapshot) error
	ResponseRecorded(ctx context.Context, snap Snapshot, side models.Side) error
	SideTimedOut(ctx context.Context, snap Snapshot, side models.Side) error
	SessionFinalized(ctx context.Context, out Outcome) error
}

// NopSink ignores every notification. Embed it to implement only part of Sink.
type NopSink struct{}

func (NopSink) SessionStarted(context.Context, Snapshot) error                { return nil }
func (NopSink) ResponseRecorded(context.Context, Snapshot, models.Side) error { return nil }
func (NopSink) SideTimedOut(context.Context, Snapshot, models.Side) error     { return nil }
func (NopSink) SessionFinalized(context.Context, Outcome) error               { return nil }

// Sinks fans notifications out to every member. Failures are logged, never returned.
type Sinks []Sink

func (ss Sinks) SessionStarted(ctx context.Context, snap Snapshot) error {
	for _, s := range ss {
		if err := s.SessionStarted(ctx, snap); err != nil {
			log.Error().Err(err).Int64("session_id", int64(snap.ID)).Msg("sink failed on session started")
		}
	}
	return nil
}

func (ss Sinks) ResponseRecorded(ctx context.Context, snap Snapshot, side models.Side) error {
	for _, s := range ss {
		if err := s.ResponseRecorded(ctx, snap, side); err != nil {
			log.Error().Err(err).Int64("session_id", int64(snap.ID)).Str("side", side.String()).Msg("sink failed on response recorded")
		}
	}
	return nil
}

func (ss Sinks) SideTimedOut(ctx context.Context, snap Snapshot, side models.Side) error {
	for _, s := range ss {
		if err := s.SideTimedOut(ctx, snap, side); err != nil {
			log.Error().Err(err).Int64("session_id", int64(snap.ID)).Str("side", side.String()).Msg("sink failed on side timed out")
		}
	}
	return nil
}

func (ss Sinks) SessionFinalized(ctx context.Context, out Outcome) error {
	for _, s := range ss {
		if err := s.SessionFinalized(ctx, out); err != nil {
			log.Error().Err(err).Int64("session_id", int64(out.SessionID)).Msg("sink failed on session finalized")
		}
	}
	return nil
}
