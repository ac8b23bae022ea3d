package match

import (
	"errors"
	"fmt"
)

var (
	ErrDurationTooShort = errors.New("time limit too short")
	ErrDurationTooLong  = errors.New("time limit too long")
	ErrSelfChallenge    = errors.New("cannot challenge yourself")
	ErrBotOpponent      = errors.New("cannot challenge a bot")
	ErrHostBusy         = errors.New("challenger is already in a match")
	ErrOpponentBusy     = errors.New("opponent is already in a match")

	ErrSessionNotFound = errors.New("session not found")
	ErrNotParticipant  = errors.New("participant is not part of this session")
	ErrInvalidMove     = errors.New("move cannot be submitted")
	ErrEngineClosed    = errors.New("engine is shut down")
)

// ChallengeError is a validation failure reported to the requester. No session exists
// when one is returned.
type ChallengeError struct {
	Err     error
	Heading string
	Detail  string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Heading, e.Detail)
}

func (e *ChallengeError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a challenge validation failure.
func IsValidation(err error) bool {
	var ce *ChallengeError
	return errors.As(err, &ce)
}
