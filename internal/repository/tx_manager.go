package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type TxRepositories struct {
	Tours    TourRepository
	Rules    WeekdayRuleRepository
	Bookings BookingRepository
	Outbox   OutboxRepository
}

// TxManager runs fn inside one transaction. The transaction commits only if
// fn returns nil; a failed commit is reported as the error.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

type PostgresTxManager struct {
	db *sqlx.DB
}

func NewPostgresTxManager(db *sqlx.DB) *PostgresTxManager {
	return &PostgresTxManager{db: db}
}

func (m *PostgresTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError(err)
	}

	repos := TxRepositories{
		Tours:    NewTourPostgresRepository(tx),
		Rules:    NewWeekdayRulePostgresRepository(tx),
		Bookings: NewBookingPostgresRepository(tx),
		Outbox:   NewOutboxPostgresRepository(tx),
	}

	if err := fn(ctx, repos); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			return rollbackErr
		}
		return err
	}

	return mapError(tx.Commit())
}
