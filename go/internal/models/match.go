package models

import "fmt"

// SessionID identifies a match session. Ids increase monotonically and are never reused.
type SessionID int64

// Handle is an opaque reference to a message rendered by the transport.
type Handle string

// Participant is a chat identity as supplied by the transport boundary.
// Sessions compare participants by ID only.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Bot  bool   `json:"bot,omitempty"`
}

// Mention returns how the participant is addressed in rendered messages.
func (p Participant) Mention() string {
	return "@" + p.Name
}

// Side is the role a participant plays within a session.
type Side uint8

const (
	SideHost Side = iota
	SideOpponent
)

// Sides lists both sides in host-first order.
var Sides = [2]Side{SideHost, SideOpponent}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideHost {
		return SideOpponent
	}
	return SideHost
}

func (s Side) String() string {
	switch s {
	case SideHost:
		return "host"
	case SideOpponent:
		return "opponent"
	default:
		panic(fmt.Sprintf("models: invalid side %d", uint8(s)))
	}
}

// Move is a response value. The zero value means no response yet.
type Move string

const (
	MoveNone           Move = ""
	MoveRock           Move = "rock"
	MovePaper          Move = "paper"
	MoveScissors       Move = "scissors"
	MoveForfeit        Move = "forfeit"
	MoveTimeoutForfeit Move = "timeout_forfeit"
)

// Choices are the moves a participant can submit. TimeoutForfeit is only ever synthesized.
var Choices = []Move{MoveRock, MoveScissors, MovePaper, MoveForfeit}

// ParseChoice converts a submitted choice into a Move.
func ParseChoice(s string) (Move, error) {
	switch Move(s) {
	case MoveRock, MovePaper, MoveScissors, MoveForfeit:
		return Move(s), nil
	default:
		return MoveNone, fmt.Errorf("unknown choice %q", s)
	}
}

// IsSet reports whether a response has been recorded.
func (m Move) IsSet() bool {
	return m != MoveNone
}

// IsForfeit reports whether the move is a voluntary or timeout forfeit.
func (m Move) IsForfeit() bool {
	return m == MoveForfeit || m == MoveTimeoutForfeit
}

// Result is the outcome of a finalized session.
type Result string

const (
	ResultHost     Result = "HOST"
	ResultOpponent Result = "OPPONENT"
	ResultTie      Result = "TIE"
)
