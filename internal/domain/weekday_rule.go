package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Weekday numbers days ISO style: Monday is 1, Sunday is 7.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func WeekdayOf(t time.Time) Weekday {
	weekday := t.Weekday()
	if weekday == time.Sunday {
		return Sunday
	}
	return Weekday(weekday)
}

func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

func ParseWeekday(value string) (Weekday, error) {
	value = strings.TrimSpace(value)
	for i := Monday; i <= Sunday; i++ {
		name := weekdayNames[i]
		if strings.EqualFold(value, name) || strings.EqualFold(value, name[:3]) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", value)
}

func (w Weekday) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", int(w))
	}
	return []byte(w.String()), nil
}

func (w *Weekday) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// WeekdayRule is one recurring departure of a tour. Capacity, when set,
// replaces the tour's base slots for occurrences generated by this rule.
type WeekdayRule struct {
	TourID    uuid.UUID `db:"tour_id"`
	Weekday   Weekday   `db:"weekday"`
	StartTime string    `db:"start_time"`
	Capacity  *int      `db:"capacity"`
}

// EffectiveCapacity resolves the capacity of occurrences produced by the rule.
func (r WeekdayRule) EffectiveCapacity(tour Tour) int {
	if r.Capacity != nil {
		return *r.Capacity
	}
	return tour.Slots
}

// ParseStartTime validates an HH:mm clock time and returns it normalized.
func ParseStartTime(value string) (string, error) {
	parsed, err := time.Parse(TimeLayout, strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("invalid start time %q", value)
	}
	return parsed.Format(TimeLayout), nil
}
