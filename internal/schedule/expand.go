// Package schedule turns recurring weekday rules into dated occurrences.
package schedule

import (
	"iter"
	"slices"
	"strings"
	"time"

	"service-tourbooking/internal/domain"
)

// Expand yields the occurrences of tour's rules for every day in
// [from, from+horizonDays], ordered by date then start time. The sequence is
// lazy and can be ranged over any number of times. Rules for other tours are
// ignored.
func Expand(tour domain.Tour, rules []domain.WeekdayRule, from time.Time, horizonDays int) iter.Seq[domain.Occurrence] {
	byWeekday := groupByWeekday(tour, rules)
	start := domain.TruncateToDate(from, from.Location())

	return func(yield func(domain.Occurrence) bool) {
		if len(byWeekday) == 0 {
			return
		}
		for offset := 0; offset <= horizonDays; offset++ {
			date := start.AddDate(0, 0, offset)
			for _, rule := range byWeekday[domain.WeekdayOf(date)] {
				occurrence := domain.Occurrence{
					TourID:    tour.ID,
					Date:      date,
					StartTime: rule.StartTime,
					Capacity:  rule.EffectiveCapacity(tour),
				}
				if !yield(occurrence) {
					return
				}
			}
		}
	}
}

// MatchRule finds the rule of tour that produces an occurrence on date at
// startTime.
func MatchRule(tour domain.Tour, rules []domain.WeekdayRule, date time.Time, startTime string) (domain.WeekdayRule, bool) {
	weekday := domain.WeekdayOf(date)
	for _, rule := range rules {
		if rule.TourID == tour.ID && rule.Weekday == weekday && rule.StartTime == startTime {
			return rule, true
		}
	}
	return domain.WeekdayRule{}, false
}

// RulesOn returns tour's rules that apply on date's weekday, ordered by start time.
func RulesOn(tour domain.Tour, rules []domain.WeekdayRule, date time.Time) []domain.WeekdayRule {
	return groupByWeekday(tour, rules)[domain.WeekdayOf(date)]
}

func groupByWeekday(tour domain.Tour, rules []domain.WeekdayRule) map[domain.Weekday][]domain.WeekdayRule {
	grouped := make(map[domain.Weekday][]domain.WeekdayRule)
	for _, rule := range rules {
		if rule.TourID != tour.ID || !rule.Weekday.Valid() {
			continue
		}
		grouped[rule.Weekday] = append(grouped[rule.Weekday], rule)
	}
	for weekday := range grouped {
		slices.SortStableFunc(grouped[weekday], func(a, b domain.WeekdayRule) int {
			return strings.Compare(a.StartTime, b.StartTime)
		})
	}
	return grouped
}
