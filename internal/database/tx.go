package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/roomdesk/reservation-backend/internal/models"
)

// Postgres SQLSTATE codes that mean "retry the whole transaction"
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// WithinTx runs fn inside a READ COMMITTED transaction. The transaction is
// committed only when fn returns nil; any error rolls back every write made
// through tx.
func (db *PostgresDB) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return ClassifyError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return ClassifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return ClassifyError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// LockKey takes a transaction scoped advisory lock on key. The lock is released
// on commit or rollback.
func LockKey(ctx context.Context, tx sqlx.ExecerContext, key string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	return nil
}

// ClassifyError leaves domain errors untouched and turns everything else into an
// infrastructure error. Serialization failures and deadlocks get their own code
// so callers know a retry of the whole operation is safe.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var be *models.BookingError
	if errors.As(err, &be) {
		return err
	}

	if IsRetryable(err) {
		return models.NewInfrastructureError(models.CodeTransactionConflict, err)
	}
	return models.NewInfrastructureError(models.CodeStorageUnavailable, err)
}

// IsRetryable reports whether err is a Postgres serialization failure or deadlock
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}
