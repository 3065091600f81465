package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"service-tourbooking/internal/domain"
)

// OutboxRepository records booking events for the notification sender in
// the same transaction as the change that caused them.
type OutboxRepository interface {
	Insert(ctx context.Context, event domain.BookingEvent) error
}

type OutboxPostgresRepository struct {
	execer Execer
}

func NewOutboxPostgresRepository(execer Execer) *OutboxPostgresRepository {
	return &OutboxPostgresRepository{execer: execer}
}

// outboxRow ids are UUIDv7, so unpublished events of one booking sort in
// the order they were written.
type outboxRow struct {
	ID        uuid.UUID `db:"id"`
	BookingID uuid.UUID `db:"booking_id"`
	EventType string    `db:"event_type"`
	Payload   []byte    `db:"payload"`
}

func newOutboxRow(event domain.BookingEvent) (outboxRow, error) {
	if event.BookingID == uuid.Nil {
		return outboxRow{}, fmt.Errorf("outbox event %s has no booking id", event.EventType)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return outboxRow{}, err
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return outboxRow{}, err
	}
	return outboxRow{ID: id, BookingID: event.BookingID, EventType: event.EventType, Payload: payload}, nil
}

const insertOutboxEvent = `
INSERT INTO tourbooking.outbox_events (id, booking_id, event_type, payload)
VALUES (:id, :booking_id, :event_type, :payload)
`

func (r *OutboxPostgresRepository) Insert(ctx context.Context, event domain.BookingEvent) error {
	row, err := newOutboxRow(event)
	if err != nil {
		return err
	}
	_, err = sqlx.NamedExecContext(ctx, r.execer, insertOutboxEvent, row)
	return mapError(err)
}
