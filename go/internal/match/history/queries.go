package history

import (
	"context"
	"database/sql"

	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries runs the ledger statements against one dialect.
type Queries struct {
	db      DBTX
	dialect Dialect
}

func NewQueries(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

// MatchResultRow mirrors one match_results row.
type MatchResultRow struct {
	InstanceID   string
	SessionID    int64
	HostID       string
	HostName     string
	OpponentID   string
	OpponentName string
	HostMove     string
	OpponentMove string
	Result       string
	DurationSec  int32
	Details      pqtype.NullRawMessage
	FinishedAt   int64
}

const matchResultColumns = `instance_id, session_id, host_id, host_name, opponent_id, opponent_name,
    host_move, opponent_move, result, duration_sec, details, finished_at`

const insertMatchResult = `INSERT INTO match_results (` + matchResultColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (instance_id, session_id) DO NOTHING`

// InsertMatchResult reports whether a row was written; false means the result was
// already recorded.
func (q *Queries) InsertMatchResult(ctx context.Context, arg MatchResultRow) (bool, error) {
	res, err := q.db.ExecContext(ctx, q.dialect.bind(insertMatchResult),
		arg.InstanceID,
		arg.SessionID,
		arg.HostID,
		arg.HostName,
		arg.OpponentID,
		arg.OpponentName,
		arg.HostMove,
		arg.OpponentMove,
		arg.Result,
		arg.DurationSec,
		arg.Details,
		arg.FinishedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const listRecentMatchResults = `SELECT ` + matchResultColumns + `
FROM match_results
ORDER BY finished_at DESC, session_id DESC
LIMIT $1`

func (q *Queries) ListRecentMatchResults(ctx context.Context, limit int32) ([]MatchResultRow, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.bind(listRecentMatchResults), limit)
	if err != nil {
		return nil, err
	}
	return scanMatchResults(rows)
}

const listMatchResultsByParticipant = `SELECT ` + matchResultColumns + `
FROM match_results
WHERE host_id = $1 OR opponent_id = $1
ORDER BY finished_at DESC, session_id DESC
LIMIT $2`

func (q *Queries) ListMatchResultsByParticipant(ctx context.Context, participantID string, limit int32) ([]MatchResultRow, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.bind(listMatchResultsByParticipant), participantID, limit)
	if err != nil {
		return nil, err
	}
	return scanMatchResults(rows)
}

const countMatchResults = `SELECT COUNT(*) FROM match_results`

func (q *Queries) CountMatchResults(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countMatchResults).Scan(&n)
	return n, err
}

func scanMatchResults(rows *sql.Rows) ([]MatchResultRow, error) {
	defer rows.Close()
	var items []MatchResultRow
	for rows.Next() {
		var i MatchResultRow
		if err := rows.Scan(
			&i.InstanceID,
			&i.SessionID,
			&i.HostID,
			&i.HostName,
			&i.OpponentID,
			&i.OpponentName,
			&i.HostMove,
			&i.OpponentMove,
			&i.Result,
			&i.DurationSec,
			&i.Details,
			&i.FinishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
