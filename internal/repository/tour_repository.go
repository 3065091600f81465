package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"service-tourbooking/internal/domain"
)

type TourRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Tour, error)
}

type TourPostgresRepository struct {
	execer Execer
}

func NewTourPostgresRepository(execer Execer) *TourPostgresRepository {
	return &TourPostgresRepository{execer: execer}
}

func (r *TourPostgresRepository) Get(ctx context.Context, id uuid.UUID) (domain.Tour, error) {
	const query = `
SELECT id, name, slots, rate_cents
FROM tourbooking.tours
WHERE id = $1
`

	var tour domain.Tour
	if err := sqlx.GetContext(ctx, r.execer, &tour, query, id); err != nil {
		return domain.Tour{}, mapError(err)
	}
	return tour, nil
}
