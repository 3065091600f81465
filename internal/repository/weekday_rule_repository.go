package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"service-tourbooking/internal/domain"
)

type WeekdayRuleRepository interface {
	ListByTour(ctx context.Context, tourID uuid.UUID) ([]domain.WeekdayRule, error)
	ReplaceForTour(ctx context.Context, tourID uuid.UUID, rules []domain.WeekdayRule) error
}

type WeekdayRulePostgresRepository struct {
	execer Execer
}

func NewWeekdayRulePostgresRepository(execer Execer) *WeekdayRulePostgresRepository {
	return &WeekdayRulePostgresRepository{execer: execer}
}

func (r *WeekdayRulePostgresRepository) ListByTour(ctx context.Context, tourID uuid.UUID) ([]domain.WeekdayRule, error) {
	const query = `
SELECT tour_id, weekday, start_time, capacity
FROM tourbooking.weekday_rules
WHERE tour_id = $1
ORDER BY weekday ASC, start_time ASC
`

	var rules []domain.WeekdayRule
	if err := sqlx.SelectContext(ctx, r.execer, &rules, query, tourID); err != nil {
		return nil, mapError(err)
	}
	return rules, nil
}

func (r *WeekdayRulePostgresRepository) ReplaceForTour(ctx context.Context, tourID uuid.UUID, rules []domain.WeekdayRule) error {
	if _, err := r.execer.ExecContext(ctx, `DELETE FROM tourbooking.weekday_rules WHERE tour_id = $1`, tourID); err != nil {
		return mapError(err)
	}

	const insert = `
INSERT INTO tourbooking.weekday_rules (tour_id, weekday, start_time, capacity)
VALUES ($1, $2, $3, $4)
`
	for _, rule := range rules {
		if _, err := r.execer.ExecContext(ctx, insert, tourID, int(rule.Weekday), rule.StartTime, rule.Capacity); err != nil {
			return mapError(err)
		}
	}
	return nil
}
