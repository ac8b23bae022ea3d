package events

import (
	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/models"
)

func participant(p models.Participant) ParticipantPayload {
	return ParticipantPayload{ID: p.ID, Name: p.Name}
}

// MatchStarted builds the payload for a freshly started session.
func MatchStarted(snap match.Snapshot) MatchStartedPayload {
	return MatchStartedPayload{
		SessionID:   int64(snap.ID),
		Host:        participant(snap.Host),
		Opponent:    participant(snap.Opponent),
		DurationSec: snap.Duration,
		StartedAt:   snap.CreatedAt,
	}
}

// ResponseRecorded reports that side answered, without the move.
func ResponseRecorded(snap match.Snapshot, side models.Side) ResponseRecordedPayload {
	remaining := snap.HostRemaining
	p := snap.Host
	if side == models.SideOpponent {
		remaining = snap.OpponentRemaining
		p = snap.Opponent
	}
	return ResponseRecordedPayload{
		SessionID:     int64(snap.ID),
		Side:          side.String(),
		ParticipantID: p.ID,
		State:         string(snap.State),
		RemainingSec:  remaining,
	}
}

func SideTimedOut(snap match.Snapshot, side models.Side) SideTimedOutPayload {
	p := snap.Host
	if side == models.SideOpponent {
		p = snap.Opponent
	}
	return SideTimedOutPayload{
		SessionID:     int64(snap.ID),
		Side:          side.String(),
		ParticipantID: p.ID,
	}
}

func MatchFinalized(out match.Outcome) MatchFinalizedPayload {
	payload := MatchFinalizedPayload{
		SessionID:    int64(out.SessionID),
		Host:         participant(out.Host),
		Opponent:     participant(out.Opponent),
		HostMove:     string(out.HostMove),
		OpponentMove: string(out.OpponentMove),
		Result:       string(out.Result),
		DurationSec:  out.Duration,
		StartedAt:    out.StartedAt,
		FinishedAt:   out.FinishedAt,
	}
	if w, ok := out.Winner(); ok {
		payload.WinnerID = w.ID
	}
	return payload
}
