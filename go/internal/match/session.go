package match

import (
	"time"

	"github.com/mcdev12/duel/go/internal/models"
)

// State is derived from the response fields; only Finalized is stored.
type State string

const (
	StateAwaitingBoth State = "AWAITING_BOTH"
	StateOneReceived  State = "ONE_RECEIVED"
	StateFinalized    State = "FINALIZED"
)

// Session is one match between a host and an opponent.
// All mutation happens through the owning Arbiter.
type Session struct {
	ID        models.SessionID
	Host      models.Participant
	Opponent  models.Participant
	Duration  int
	CreatedAt time.Time

	remaining [2]int
	responses [2]models.Move
	finalized bool
}

func newSession(id models.SessionID, host, opponent models.Participant, duration int, now time.Time) *Session {
	return &Session{
		ID:        id,
		Host:      host,
		Opponent:  opponent,
		Duration:  duration,
		CreatedAt: now,
		remaining: [2]int{duration, duration},
	}
}

// Participant returns the participant playing side.
func (s *Session) Participant(side models.Side) models.Participant {
	if side == models.SideHost {
		return s.Host
	}
	return s.Opponent
}

// SideOf maps a participant id onto a side. ok is false for anyone else.
func (s *Session) SideOf(participantID string) (side models.Side, ok bool) {
	switch participantID {
	case s.Host.ID:
		return models.SideHost, true
	case s.Opponent.ID:
		return models.SideOpponent, true
	default:
		return 0, false
	}
}

// Involves reports whether the participant is host or opponent.
func (s *Session) Involves(participantID string) bool {
	_, ok := s.SideOf(participantID)
	return ok
}

func (s *Session) Remaining(side models.Side) int       { return s.remaining[side] }
func (s *Session) Response(side models.Side) models.Move { return s.responses[side] }
func (s *Session) Finalized() bool                       { return s.finalized }

// State reports the current state machine position.
func (s *Session) State() State {
	switch {
	case s.finalized:
		return StateFinalized
	case s.responses[models.SideHost].IsSet() || s.responses[models.SideOpponent].IsSet():
		return StateOneReceived
	default:
		return StateAwaitingBoth
	}
}

func (s *Session) resolved() bool {
	return s.responses[models.SideHost].IsSet() && s.responses[models.SideOpponent].IsSet()
}

// submit records move for side, overwriting any earlier response, and reports whether
// both responses are now known.
func (s *Session) submit(side models.Side, move models.Move) bool {
	if s.finalized {
		return false
	}
	s.responses[side] = move
	return s.resolved()
}

type tickResult struct {
	remaining int
	timedOut  bool
	complete  bool
}

// tick decrements side's countdown. Reaching zero without a response synthesizes a
// TimeoutForfeit for that side only.
func (s *Session) tick(side models.Side) tickResult {
	if s.finalized {
		return tickResult{}
	}
	if s.remaining[side] > 0 {
		s.remaining[side]--
	}
	res := tickResult{remaining: s.remaining[side]}
	if res.remaining == 0 && !s.responses[side].IsSet() {
		s.responses[side] = models.MoveTimeoutForfeit
		res.timedOut = true
	}
	res.complete = s.resolved()
	return res
}

// markFinalized is the check-and-set guarding finalize. Only the first call returns true.
func (s *Session) markFinalized() bool {
	if s.finalized {
		return false
	}
	s.finalized = true
	return true
}

// Snapshot is a read-only copy of a session for rendering and APIs.
type Snapshot struct {
	ID                models.SessionID   `json:"id"`
	Host              models.Participant `json:"host"`
	Opponent          models.Participant `json:"opponent"`
	Duration          int                `json:"duration_sec"`
	State             State              `json:"state"`
	HostRemaining     int                `json:"host_remaining_sec"`
	OpponentRemaining int                `json:"opponent_remaining_sec"`
	HostResponded     bool               `json:"host_responded"`
	OpponentResponded bool               `json:"opponent_responded"`
	CreatedAt         time.Time          `json:"created_at"`
}

// Snapshot copies the session. Responses are reported as present/absent only so a live
// snapshot never leaks a move to the other side.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:                s.ID,
		Host:              s.Host,
		Opponent:          s.Opponent,
		Duration:          s.Duration,
		State:             s.State(),
		HostRemaining:     s.remaining[models.SideHost],
		OpponentRemaining: s.remaining[models.SideOpponent],
		HostResponded:     s.responses[models.SideHost].IsSet(),
		OpponentResponded: s.responses[models.SideOpponent].IsSet(),
		CreatedAt:         s.CreatedAt,
	}
}

// Outcome is the delivered result of a finalized session.
type Outcome struct {
	SessionID         models.SessionID   `json:"session_id"`
	Host              models.Participant `json:"host"`
	Opponent          models.Participant `json:"opponent"`
	HostMove          models.Move        `json:"host_move"`
	OpponentMove      models.Move        `json:"opponent_move"`
	Result            models.Result      `json:"result"`
	Duration          int                `json:"duration_sec"`
	HostRemaining     int                `json:"host_remaining_sec"`
	OpponentRemaining int                `json:"opponent_remaining_sec"`
	StartedAt         time.Time          `json:"started_at"`
	FinishedAt        time.Time          `json:"finished_at"`
}

// Winner returns the winning participant; ok is false on a tie.
func (o Outcome) Winner() (p models.Participant, ok bool) {
	switch o.Result {
	case models.ResultHost:
		return o.Host, true
	case models.ResultOpponent:
		return o.Opponent, true
	default:
		return models.Participant{}, false
	}
}
