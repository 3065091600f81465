package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrRaceLost reports that a concurrent writer touched the same records
	// and this transaction was aborted. The whole unit of work may be retried.
	ErrRaceLost = errors.New("concurrent write conflict")
)

// Execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type Execer interface {
	sqlx.ExtContext
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrRaceLost, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01": // deadlock_detected
			return fmt.Errorf("%w: %v", ErrRaceLost, err)
		}
	}
	return err
}
