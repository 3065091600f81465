package domain

import "github.com/google/uuid"

const (
	EventBookingCreated   = "BookingCreated"
	EventBookingConfirmed = "BookingConfirmed"
	EventBookingCancelled = "BookingCancelled"
)

type BookingEvent struct {
	EventType string
	BookingID uuid.UUID
	Payload   BookingEventPayload
}

// BookingEventPayload is what the notification sender receives.
type BookingEventPayload struct {
	BookingID     string `json:"booking_id"`
	TourID        string `json:"tour_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time,omitempty"`
	Slots         int    `json:"slots"`
	Status        string `json:"status"`
	TotalCents    int64  `json:"total_cents"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

func NewBookingEvent(eventType string, booking Booking) BookingEvent {
	return BookingEvent{
		EventType: eventType,
		BookingID: booking.ID,
		Payload: BookingEventPayload{
			BookingID:     booking.ID.String(),
			TourID:        booking.TourID.String(),
			Date:          booking.Date.Format(DateLayout),
			StartTime:     booking.StartTime,
			Slots:         booking.Slots,
			Status:        string(booking.Status),
			TotalCents:    booking.TotalCents,
			CustomerName:  booking.Name,
			CustomerEmail: booking.Email,
		},
	}
}
