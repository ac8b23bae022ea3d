package events

import (
	"encoding/json"
	"time"
)

// Event payload types shared by the bus, the gateway and the history ledger

// Event types, also the last token of the bus subject
const (
	TypeMatchStarted     = "MatchStarted"
	TypeResponseRecorded = "ResponseRecorded"
	TypeSideTimedOut     = "SideTimedOut"
	TypeMatchFinalized   = "MatchFinalized"
)

// Envelope wraps every published payload
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	SessionID int64           `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ParticipantPayload identifies one side of a match
type ParticipantPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MatchStartedPayload is the payload for a MatchStarted event
type MatchStartedPayload struct {
	SessionID   int64              `json:"session_id"`
	Host        ParticipantPayload `json:"host"`
	Opponent    ParticipantPayload `json:"opponent"`
	DurationSec int                `json:"duration_sec"`
	StartedAt   time.Time          `json:"started_at"`
}

// ResponseRecordedPayload is the payload for a ResponseRecorded event. The move itself is
// never published before the match is finalized.
type ResponseRecordedPayload struct {
	SessionID     int64  `json:"session_id"`
	Side          string `json:"side"`
	ParticipantID string `json:"participant_id"`
	State         string `json:"state"`
	RemainingSec  int    `json:"remaining_sec"`
}

// SideTimedOutPayload is the payload for a SideTimedOut event
type SideTimedOutPayload struct {
	SessionID     int64  `json:"session_id"`
	Side          string `json:"side"`
	ParticipantID string `json:"participant_id"`
}

// MatchFinalizedPayload is the payload for a MatchFinalized event
type MatchFinalizedPayload struct {
	SessionID    int64              `json:"session_id"`
	Host         ParticipantPayload `json:"host"`
	Opponent     ParticipantPayload `json:"opponent"`
	HostMove     string             `json:"host_move"`
	OpponentMove string             `json:"opponent_move"`
	Result       string             `json:"result"`
	WinnerID     string             `json:"winner_id,omitempty"`
	DurationSec  int                `json:"duration_sec"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
}
