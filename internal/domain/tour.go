package domain

import "github.com/google/uuid"

// Tour is owned by tour management. The booking core only reads it.
type Tour struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Slots     int       `db:"slots"`
	RateCents int64     `db:"rate_cents"`
}
