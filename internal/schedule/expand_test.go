package schedule

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"service-tourbooking/internal/domain"
)

// 2026-10-12 is a Monday.
var monday = time.Date(2026, 10, 12, 15, 30, 0, 0, time.UTC)

func testTour() domain.Tour {
	return domain.Tour{ID: uuid.New(), Name: "Harbour walk", Slots: 10, RateCents: 2500}
}

func rule(tour domain.Tour, weekday domain.Weekday, start string) domain.WeekdayRule {
	return domain.WeekdayRule{TourID: tour.ID, Weekday: weekday, StartTime: start}
}

func TestExpandMatchesWeekdaysAcrossHorizon(t *testing.T) {
	tour := testTour()
	rules := []domain.WeekdayRule{
		rule(tour, domain.Monday, "09:00"),
		rule(tour, domain.Thursday, "14:00"),
	}

	occurrences := slices.Collect(Expand(tour, rules, monday, 27))

	// 28 days starting on a Monday contain exactly four of each weekday.
	if len(occurrences) != 8 {
		t.Fatalf("expected 8 occurrences, got %d", len(occurrences))
	}
	for _, occurrence := range occurrences {
		weekday := domain.WeekdayOf(occurrence.Date)
		switch {
		case weekday == domain.Monday && occurrence.StartTime == "09:00":
		case weekday == domain.Thursday && occurrence.StartTime == "14:00":
		default:
			t.Fatalf("unexpected occurrence %s %s on %s", occurrence.Date.Format(domain.DateLayout), occurrence.StartTime, weekday)
		}
		if occurrence.Capacity != tour.Slots {
			t.Fatalf("expected capacity %d, got %d", tour.Slots, occurrence.Capacity)
		}
		if occurrence.Date.Hour() != 0 || occurrence.Date.Minute() != 0 {
			t.Fatalf("occurrence date not truncated: %v", occurrence.Date)
		}
	}
}

func TestExpandCountOverYear(t *testing.T) {
	tour := testTour()
	rules := []domain.WeekdayRule{
		rule(tour, domain.Tuesday, "10:00"),
		rule(tour, domain.Saturday, "08:30"),
		rule(tour, domain.Saturday, "16:00"),
	}

	horizon := 364
	count := 0
	for range Expand(tour, rules, monday, horizon) {
		count++
	}
	// 365 days from a Monday hold 52 full weeks plus one extra Monday.
	if want := 52 * len(rules); count != want {
		t.Fatalf("expected %d occurrences, got %d", want, count)
	}
}

func TestExpandOrdersByDateThenStartTime(t *testing.T) {
	tour := testTour()
	rules := []domain.WeekdayRule{
		rule(tour, domain.Wednesday, "18:00"),
		rule(tour, domain.Tuesday, "15:00"),
		rule(tour, domain.Tuesday, "07:45"),
	}

	occurrences := slices.Collect(Expand(tour, rules, monday, 13))

	sorted := slices.IsSortedFunc(occurrences, func(a, b domain.Occurrence) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if a.StartTime < b.StartTime {
			return -1
		}
		if a.StartTime > b.StartTime {
			return 1
		}
		return 0
	})
	if !sorted {
		t.Fatalf("occurrences out of order: %+v", occurrences)
	}
	if occurrences[0].StartTime != "07:45" || occurrences[1].StartTime != "15:00" {
		t.Fatalf("unexpected first Tuesday order: %s, %s", occurrences[0].StartTime, occurrences[1].StartTime)
	}
}

func TestExpandZeroHorizon(t *testing.T) {
	tour := testTour()

	tests := []struct {
		name  string
		rules []domain.WeekdayRule
		want  int
	}{
		{name: "rule matches today", rules: []domain.WeekdayRule{rule(tour, domain.Monday, "09:00")}, want: 1},
		{name: "rule on another day", rules: []domain.WeekdayRule{rule(tour, domain.Tuesday, "09:00")}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(Expand(tour, tt.rules, monday, 0))
			if len(got) != tt.want {
				t.Fatalf("expected %d occurrences, got %d", tt.want, len(got))
			}
		})
	}
}

func TestExpandWithoutRulesIsEmpty(t *testing.T) {
	tour := testTour()
	other := testTour()

	got := slices.Collect(Expand(tour, []domain.WeekdayRule{rule(other, domain.Monday, "09:00")}, monday, 30))
	if len(got) != 0 {
		t.Fatalf("expected no occurrences, got %d", len(got))
	}
}

func TestExpandIsRestartable(t *testing.T) {
	tour := testTour()
	seq := Expand(tour, []domain.WeekdayRule{rule(tour, domain.Friday, "11:00")}, monday, 20)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) {
		t.Fatalf("second pass differs from the first")
	}
}

func TestExpandRuleCapacityOverride(t *testing.T) {
	tour := testTour()
	capacity := 4
	r := rule(tour, domain.Monday, "09:00")
	r.Capacity = &capacity

	got := slices.Collect(Expand(tour, []domain.WeekdayRule{r}, monday, 0))
	if len(got) != 1 || got[0].Capacity != 4 {
		t.Fatalf("expected one occurrence with capacity 4, got %+v", got)
	}
}

func TestMatchRule(t *testing.T) {
	tour := testTour()
	rules := []domain.WeekdayRule{rule(tour, domain.Monday, "09:00")}

	if _, ok := MatchRule(tour, rules, monday, "09:00"); !ok {
		t.Fatalf("expected Monday 09:00 to match")
	}
	if _, ok := MatchRule(tour, rules, monday, "10:00"); ok {
		t.Fatalf("expected Monday 10:00 not to match")
	}
	if _, ok := MatchRule(tour, rules, monday.AddDate(0, 0, 1), "09:00"); ok {
		t.Fatalf("expected Tuesday not to match")
	}
}
