package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Occurrence is a concrete departure derived from a WeekdayRule. It is never
// persisted and its capacity is not reduced by bookings.
type Occurrence struct {
	TourID    uuid.UUID
	Date      time.Time
	StartTime string
	Capacity  int
}

// SlotKey is the unit capacity is tracked on. StartTime is empty for dates
// the tour has no rule for.
type SlotKey struct {
	TourID    uuid.UUID
	Date      time.Time
	StartTime string
}

func (k SlotKey) String() string {
	return k.TourID.String() + "/" + k.Date.Format(DateLayout) + "/" + k.StartTime
}

type AvailabilityOutcome string

const (
	// OutcomeScheduled means a weekday rule matched and bookings were netted.
	OutcomeScheduled AvailabilityOutcome = "scheduled"
	// OutcomeUnscheduled means no rule matched; the tour's base slots are
	// reported without consulting bookings.
	OutcomeUnscheduled AvailabilityOutcome = "unscheduled"
)

type Availability struct {
	TourID    uuid.UUID
	Date      time.Time
	StartTime string
	Capacity  int
	Booked    int
	Remaining int
	Outcome   AvailabilityOutcome
}

// TruncateToDate returns midnight of t's calendar day in loc.
func TruncateToDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
