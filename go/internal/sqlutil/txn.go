package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Run executes fn inside a transaction. bind adapts the *sql.Tx to whatever fn works on,
// typically a Queries value's WithTx. If fn returns an error the tx rolls back, else it
// commits.
func Run[T any](ctx context.Context, db *sql.DB, bind func(*sql.Tx) T, fn func(T) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Tx is the identity binding for callers that want the raw transaction.
func Tx(tx *sql.Tx) *sql.Tx { return tx }
