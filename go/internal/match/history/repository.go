package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	InsertMatchResult(ctx context.Context, arg MatchResultRow) (bool, error)
	ListRecentMatchResults(ctx context.Context, limit int32) ([]MatchResultRow, error)
	ListMatchResultsByParticipant(ctx context.Context, participantID string, limit int32) ([]MatchResultRow, error)
}

// MatchResult is one finalized match as stored in the ledger.
type MatchResult struct {
	InstanceID   string             `json:"instance_id"`
	SessionID    models.SessionID   `json:"session_id"`
	Host         models.Participant `json:"host"`
	Opponent     models.Participant `json:"opponent"`
	HostMove     models.Move        `json:"host_move"`
	OpponentMove models.Move        `json:"opponent_move"`
	Result       models.Result      `json:"result"`
	DurationSec  int                `json:"duration_sec"`
	Details      *Details           `json:"details,omitempty"`
	FinishedAt   time.Time          `json:"finished_at"`
}

// Details holds the columns nobody filters on.
type Details struct {
	HostRemainingSec     int       `json:"host_remaining_sec"`
	OpponentRemainingSec int       `json:"opponent_remaining_sec"`
	StartedAt            time.Time `json:"started_at"`
}

// FromOutcome converts a finalized session into a ledger entry for instanceID.
func FromOutcome(instanceID string, out match.Outcome) MatchResult {
	return MatchResult{
		InstanceID:   instanceID,
		SessionID:    out.SessionID,
		Host:         out.Host,
		Opponent:     out.Opponent,
		HostMove:     out.HostMove,
		OpponentMove: out.OpponentMove,
		Result:       out.Result,
		DurationSec:  out.Duration,
		Details: &Details{
			HostRemainingSec:     out.HostRemaining,
			OpponentRemainingSec: out.OpponentRemaining,
			StartedAt:            out.StartedAt,
		},
		FinishedAt: out.FinishedAt,
	}
}

// Repository implements match history data access operations
type Repository struct {
	queries Querier
}

// NewRepository creates a new history repository
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

// Record stores a result. Recording the same (instance, session) pair twice keeps the
// first row; the second call reports false.
func (r *Repository) Record(ctx context.Context, res MatchResult) (bool, error) {
	params, err := r.matchResultToParams(res)
	if err != nil {
		return false, err
	}

	inserted, err := r.queries.InsertMatchResult(ctx, params)
	if err != nil {
		return false, fmt.Errorf("failed to record match result: %w", err)
	}
	return inserted, nil
}

// ListRecent returns the latest results, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]MatchResult, error) {
	rows, err := r.queries.ListRecentMatchResults(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent match results: %w", err)
	}
	return r.rowsToModels(rows)
}

// ListByParticipant returns results where participantID was host or opponent, newest first.
func (r *Repository) ListByParticipant(ctx context.Context, participantID string, limit int) ([]MatchResult, error) {
	rows, err := r.queries.ListMatchResultsByParticipant(ctx, participantID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list match results for participant: %w", err)
	}
	return r.rowsToModels(rows)
}

func clampLimit(limit int) int32 {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return int32(limit)
	}
}

func (r *Repository) matchResultToParams(res MatchResult) (MatchResultRow, error) {
	details := pqtype.NullRawMessage{}
	if res.Details != nil {
		raw, err := json.Marshal(res.Details)
		if err != nil {
			return MatchResultRow{}, fmt.Errorf("marshal details: %w", err)
		}
		details = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	return MatchResultRow{
		InstanceID:   res.InstanceID,
		SessionID:    int64(res.SessionID),
		HostID:       res.Host.ID,
		HostName:     res.Host.Name,
		OpponentID:   res.Opponent.ID,
		OpponentName: res.Opponent.Name,
		HostMove:     string(res.HostMove),
		OpponentMove: string(res.OpponentMove),
		Result:       string(res.Result),
		DurationSec:  int32(res.DurationSec),
		Details:      details,
		FinishedAt:   res.FinishedAt.UTC().UnixMilli(),
	}, nil
}

func (r *Repository) rowsToModels(rows []MatchResultRow) ([]MatchResult, error) {
	results := make([]MatchResult, len(rows))
	for i, row := range rows {
		res, err := r.rowToModel(row)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}

func (r *Repository) rowToModel(row MatchResultRow) (MatchResult, error) {
	res := MatchResult{
		InstanceID:   row.InstanceID,
		SessionID:    models.SessionID(row.SessionID),
		Host:         models.Participant{ID: row.HostID, Name: row.HostName},
		Opponent:     models.Participant{ID: row.OpponentID, Name: row.OpponentName},
		HostMove:     models.Move(row.HostMove),
		OpponentMove: models.Move(row.OpponentMove),
		Result:       models.Result(row.Result),
		DurationSec:  int(row.DurationSec),
		FinishedAt:   time.UnixMilli(row.FinishedAt).UTC(),
	}
	if row.Details.Valid {
		var d Details
		if err := json.Unmarshal(row.Details.RawMessage, &d); err != nil {
			return MatchResult{}, fmt.Errorf("unmarshal details for session %d: %w", row.SessionID, err)
		}
		res.Details = &d
	}
	return res, nil
}
