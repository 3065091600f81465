package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"service-tourbooking/internal/domain"
)

type BookingRepository interface {
	// LockSlot serializes writers of one slot key until the transaction ends.
	LockSlot(ctx context.Context, key domain.SlotKey) error
	// SumBookedSlots totals slots of pending and confirmed bookings on key.
	SumBookedSlots(ctx context.Context, key domain.SlotKey) (int, error)
	Insert(ctx context.Context, booking domain.Booking) error
	Get(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	// GetForUpdate reads a booking and holds it against concurrent
	// status changes for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus, at time.Time) error
}

type BookingPostgresRepository struct {
	execer Execer
}

func NewBookingPostgresRepository(execer Execer) *BookingPostgresRepository {
	return &BookingPostgresRepository{execer: execer}
}

func (r *BookingPostgresRepository) LockSlot(ctx context.Context, key domain.SlotKey) error {
	_, err := r.execer.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String())
	return mapError(err)
}

func (r *BookingPostgresRepository) SumBookedSlots(ctx context.Context, key domain.SlotKey) (int, error) {
	const query = `
SELECT COALESCE(SUM(slots), 0)
FROM tourbooking.bookings
WHERE tour_id = $1
  AND date = $2::date
  AND start_time = $3
  AND status <> 'cancelled'
`

	var booked int
	if err := sqlx.GetContext(ctx, r.execer, &booked, query, key.TourID, key.Date.Format(domain.DateLayout), key.StartTime); err != nil {
		return 0, mapError(err)
	}
	return booked, nil
}

func (r *BookingPostgresRepository) Insert(ctx context.Context, booking domain.Booking) error {
	const query = `
INSERT INTO tourbooking.bookings (
	id,
	tour_id,
	date,
	start_time,
	slots,
	status,
	total_cents,
	customer_name,
	customer_email,
	customer_phone,
	created_at,
	updated_at
) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $11)
`

	_, err := r.execer.ExecContext(
		ctx,
		query,
		booking.ID,
		booking.TourID,
		booking.Date.Format(domain.DateLayout),
		booking.StartTime,
		booking.Slots,
		string(booking.Status),
		booking.TotalCents,
		booking.Name,
		booking.Email,
		booking.Phone,
		booking.CreatedAt,
	)
	return mapError(err)
}

const selectBooking = `
SELECT id, tour_id, date, start_time, slots, status, total_cents,
       customer_name, customer_email, customer_phone, created_at, updated_at
FROM tourbooking.bookings
WHERE id = $1
`

func (r *BookingPostgresRepository) Get(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	var booking domain.Booking
	if err := sqlx.GetContext(ctx, r.execer, &booking, selectBooking, id); err != nil {
		return domain.Booking{}, mapError(err)
	}
	return booking, nil
}

func (r *BookingPostgresRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	var booking domain.Booking
	if err := sqlx.GetContext(ctx, r.execer, &booking, selectBooking+"FOR UPDATE\n", id); err != nil {
		return domain.Booking{}, mapError(err)
	}
	return booking, nil
}

func (r *BookingPostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus, at time.Time) error {
	const query = `
UPDATE tourbooking.bookings
SET status = $2, updated_at = $3
WHERE id = $1
`

	result, err := r.execer.ExecContext(ctx, query, id, string(status), at)
	if err != nil {
		return mapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
