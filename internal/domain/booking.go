package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Holds reports whether a booking in this status counts against capacity.
func (s BookingStatus) Holds() bool {
	return s == BookingPending || s == BookingConfirmed
}

type Customer struct {
	Name  string `db:"customer_name" json:"name"`
	Email string `db:"customer_email" json:"email"`
	Phone string `db:"customer_phone" json:"phone,omitempty"`
}

type Booking struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	TourID     uuid.UUID     `db:"tour_id" json:"tour_id"`
	Date       time.Time     `db:"date" json:"date"`
	StartTime  string        `db:"start_time" json:"start_time"`
	Slots      int           `db:"slots" json:"slots"`
	Status     BookingStatus `db:"status" json:"status"`
	TotalCents int64         `db:"total_cents" json:"total_cents"`
	Customer
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (b Booking) SlotKey() SlotKey {
	return SlotKey{TourID: b.TourID, Date: b.Date, StartTime: b.StartTime}
}
