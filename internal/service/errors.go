package service

import (
	"errors"
	"fmt"

	"service-tourbooking/internal/repository"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNotScheduled     = errors.New("tour not scheduled on date")
	ErrConflict         = errors.New("conflict")
	ErrRaceLost         = errors.New("race lost")
	ErrStorage          = errors.New("storage error")

	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)
)

// Reason turns an error returned by BookingService into a message that can
// be shown to a customer. Internal causes are never included.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "The booking request is incomplete or malformed"
	case errors.Is(err, ErrBookingNotFound):
		return "This booking could not be found"
	case errors.Is(err, ErrNotFound):
		return "This tour could not be found"
	case errors.Is(err, ErrCapacityExceeded):
		return "Not enough available slots"
	case errors.Is(err, ErrNotScheduled):
		return "This tour does not run on the selected date"
	case errors.Is(err, ErrConflict):
		return "The booking can no longer be changed"
	case errors.Is(err, ErrRaceLost):
		return "Another change to this tour date happened at the same moment, please try again"
	default:
		return "Availability could not be checked right now, please try again later"
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// classify maps repository and context failures onto the service taxonomy.
// Errors already classified pass through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrNotScheduled),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrRaceLost),
		errors.Is(err, ErrStorage):
		return err
	case errors.Is(err, repository.ErrRaceLost):
		return fmt.Errorf("%w: %w", ErrRaceLost, err)
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
}
