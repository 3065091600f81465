package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"service-tourbooking/internal/domain"
	"service-tourbooking/internal/repository"
	"service-tourbooking/internal/schedule"
)

// RuleLoadFunc reads a tour's weekday rules from the store.
type RuleLoadFunc func(ctx context.Context) ([]domain.WeekdayRule, error)

// RuleCache sits in front of weekday rule reads on the availability path.
// Admission always reads rules from the store inside its transaction.
type RuleCache interface {
	Rules(ctx context.Context, tourID uuid.UUID, load RuleLoadFunc) ([]domain.WeekdayRule, error)
	Invalidate(ctx context.Context, tourID uuid.UUID) error
}

type passthroughRuleCache struct{}

func (passthroughRuleCache) Rules(ctx context.Context, _ uuid.UUID, load RuleLoadFunc) ([]domain.WeekdayRule, error) {
	return load(ctx)
}

func (passthroughRuleCache) Invalidate(context.Context, uuid.UUID) error { return nil }

type Options struct {
	// Location decides which calendar day "today" and booking dates fall on.
	Location           *time.Location
	MaxHorizonDays     int
	MaxSlotsPerBooking int
	// RequireSchedule rejects bookings on dates no weekday rule covers.
	RequireSchedule bool
	RuleCache       RuleCache
	Clock           func() time.Time
}

type BookingService struct {
	txManager repository.TxManager
	rules     RuleCache
	logger    *slog.Logger
	clock     func() time.Time
	location  *time.Location

	maxHorizonDays     int
	maxSlotsPerBooking int
	requireSchedule    bool
}

func NewBookingService(txManager repository.TxManager, opts Options, logger *slog.Logger) *BookingService {
	s := &BookingService{
		txManager:          txManager,
		rules:              opts.RuleCache,
		logger:             logger,
		clock:              opts.Clock,
		location:           opts.Location,
		maxHorizonDays:     opts.MaxHorizonDays,
		maxSlotsPerBooking: opts.MaxSlotsPerBooking,
		requireSchedule:    opts.RequireSchedule,
	}
	if s.rules == nil {
		s.rules = passthroughRuleCache{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.maxHorizonDays <= 0 {
		s.maxHorizonDays = 366
	}
	if s.maxSlotsPerBooking <= 0 {
		s.maxSlotsPerBooking = 50
	}
	return s
}

// Location is the zone booking dates are interpreted in.
func (s *BookingService) Location() *time.Location {
	return s.location
}

func (s *BookingService) today() time.Time {
	return domain.TruncateToDate(s.clock(), s.location)
}

// ExpandSchedule lists the tour's occurrences from today through today plus
// horizonDays. An empty result means the tour has no recurring schedule.
func (s *BookingService) ExpandSchedule(ctx context.Context, tourID uuid.UUID, horizonDays int) ([]domain.Occurrence, error) {
	if horizonDays < 0 || horizonDays > s.maxHorizonDays {
		return nil, invalid("horizon must be between 0 and %d days", s.maxHorizonDays)
	}

	var occurrences []domain.Occurrence
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		tour, err := repos.Tours.Get(ctx, tourID)
		if err != nil {
			return err
		}
		rules, err := s.cachedRules(ctx, repos, tourID)
		if err != nil {
			return err
		}
		occurrences = slices.Collect(schedule.Expand(tour, rules, s.today(), horizonDays))
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "expand schedule", err, slog.String("tour_id", tourID.String()))
	}
	return occurrences, nil
}

// Remaining reports how many slots can still be booked for the tour at date
// and startTime. When no weekday rule covers the slot the tour's base slots
// are reported and bookings are not consulted; the outcome says which case
// applied. startTime may be empty when the tour runs once on that weekday.
func (s *BookingService) Remaining(ctx context.Context, tourID uuid.UUID, date time.Time, startTime string) (domain.Availability, error) {
	date = s.normalizeDate(date)
	startTime, err := normalizeStartTime(startTime)
	if err != nil {
		return domain.Availability{}, err
	}

	var availability domain.Availability
	err = s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		tour, err := repos.Tours.Get(ctx, tourID)
		if err != nil {
			return err
		}
		rules, err := s.cachedRules(ctx, repos, tourID)
		if err != nil {
			return err
		}

		rule, scheduled, err := resolveRule(tour, rules, date, startTime)
		if err != nil {
			return err
		}
		if !scheduled {
			availability = domain.Availability{
				TourID:    tourID,
				Date:      date,
				StartTime: startTime,
				Capacity:  tour.Slots,
				Remaining: tour.Slots,
				Outcome:   domain.OutcomeUnscheduled,
			}
			return nil
		}

		key := domain.SlotKey{TourID: tourID, Date: date, StartTime: rule.StartTime}
		booked, err := repos.Bookings.SumBookedSlots(ctx, key)
		if err != nil {
			return err
		}
		capacity := rule.EffectiveCapacity(tour)
		availability = domain.Availability{
			TourID:    tourID,
			Date:      date,
			StartTime: rule.StartTime,
			Capacity:  capacity,
			Booked:    booked,
			Remaining: max(0, capacity-booked),
			Outcome:   domain.OutcomeScheduled,
		}
		return nil
	})
	if err != nil {
		return domain.Availability{}, s.fail(ctx, "remaining slots", err,
			slog.String("tour_id", tourID.String()),
			slog.String("date", date.Format(domain.DateLayout)),
			slog.String("start_time", startTime),
		)
	}
	return availability, nil
}

type Pricing struct {
	// UnitCents overrides the tour rate per slot when set.
	UnitCents *int64
}

type BookingRequest struct {
	TourID    uuid.UUID
	Date      time.Time
	StartTime string
	Slots     int
	Customer  domain.Customer
	Pricing   Pricing
}

// CreateBooking admits a booking if the slot still has room. The capacity
// check and the insert run in one transaction with the slot key locked, so
// concurrent admissions for the same slot are linearized and never admit
// more than the effective capacity. The booking is created as pending.
func (s *BookingService) CreateBooking(ctx context.Context, req BookingRequest) (domain.Booking, error) {
	req, err := s.validateBookingRequest(req)
	if err != nil {
		return domain.Booking{}, err
	}

	var booking domain.Booking
	err = s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		tour, err := repos.Tours.Get(ctx, req.TourID)
		if err != nil {
			return err
		}
		rules, err := repos.Rules.ListByTour(ctx, req.TourID)
		if err != nil {
			return err
		}

		rule, scheduled, err := resolveRule(tour, rules, req.Date, req.StartTime)
		if err != nil {
			return err
		}
		capacity := tour.Slots
		if scheduled {
			req.StartTime = rule.StartTime
			capacity = rule.EffectiveCapacity(tour)
		} else if s.requireSchedule {
			return ErrNotScheduled
		} else if req.StartTime != "" {
			if on := schedule.RulesOn(tour, rules, req.Date); len(on) > 0 {
				return invalid("tour has no departure at %s on %s", req.StartTime, domain.WeekdayOf(req.Date))
			}
			// Off-schedule dates share one budget per date.
			req.StartTime = ""
		}

		key := domain.SlotKey{TourID: req.TourID, Date: req.Date, StartTime: req.StartTime}
		if err := repos.Bookings.LockSlot(ctx, key); err != nil {
			return err
		}
		booked, err := repos.Bookings.SumBookedSlots(ctx, key)
		if err != nil {
			return err
		}
		if booked+req.Slots > capacity {
			s.logger.InfoContext(ctx, "booking rejected",
				slog.String("tour_id", req.TourID.String()),
				slog.String("slot", key.String()),
				slog.Int("requested", req.Slots),
				slog.Int("booked", booked),
				slog.Int("capacity", capacity),
			)
			return ErrCapacityExceeded
		}

		unit := tour.RateCents
		if req.Pricing.UnitCents != nil {
			unit = *req.Pricing.UnitCents
		}
		now := s.clock()
		booking = domain.Booking{
			ID:         uuid.New(),
			TourID:     req.TourID,
			Date:       req.Date,
			StartTime:  req.StartTime,
			Slots:      req.Slots,
			Status:     domain.BookingPending,
			TotalCents: unit * int64(req.Slots),
			Customer:   req.Customer,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := repos.Bookings.Insert(ctx, booking); err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, domain.NewBookingEvent(domain.EventBookingCreated, booking))
	})
	if err != nil {
		return domain.Booking{}, s.fail(ctx, "create booking", err,
			slog.String("tour_id", req.TourID.String()),
			slog.String("date", req.Date.Format(domain.DateLayout)),
			slog.String("start_time", req.StartTime),
		)
	}

	s.logger.InfoContext(ctx, "booking created",
		slog.String("booking_id", booking.ID.String()),
		slog.String("slot", booking.SlotKey().String()),
		slog.Int("slots", booking.Slots),
	)
	return booking, nil
}

// CancelBooking releases the booking's slots. Cancelling a cancelled booking
// succeeds without changing anything.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return s.transition(ctx, bookingID, domain.BookingCancelled, domain.EventBookingCancelled)
}

// ConfirmBooking moves a pending booking to confirmed. Cancelled bookings
// cannot be confirmed.
func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return s.transition(ctx, bookingID, domain.BookingConfirmed, domain.EventBookingConfirmed)
}

func (s *BookingService) transition(ctx context.Context, bookingID uuid.UUID, to domain.BookingStatus, eventType string) (domain.Booking, error) {
	var booking domain.Booking
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		booking, err = repos.Bookings.GetForUpdate(ctx, bookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if booking.Status == to {
			return nil
		}
		if booking.Status == domain.BookingCancelled {
			return ErrConflict
		}

		booking.Status = to
		booking.UpdatedAt = s.clock()
		if err := repos.Bookings.UpdateStatus(ctx, bookingID, to, booking.UpdatedAt); err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, domain.NewBookingEvent(eventType, booking))
	})
	if err != nil {
		return domain.Booking{}, s.fail(ctx, "update booking status", err,
			slog.String("booking_id", bookingID.String()),
			slog.String("status", string(to)),
		)
	}
	return s.localize(booking), nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	var booking domain.Booking
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		booking, err = repos.Bookings.Get(ctx, bookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		return err
	})
	if err != nil {
		return domain.Booking{}, s.fail(ctx, "get booking", err, slog.String("booking_id", bookingID.String()))
	}
	return s.localize(booking), nil
}

// ReplaceWeekdayRules swaps the tour's whole rule set. Existing bookings are
// left untouched.
func (s *BookingService) ReplaceWeekdayRules(ctx context.Context, tourID uuid.UUID, rules []domain.WeekdayRule) ([]domain.WeekdayRule, error) {
	normalized, err := normalizeRules(tourID, rules)
	if err != nil {
		return nil, err
	}

	s.invalidateRules(ctx, tourID)
	err = s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		if _, err := repos.Tours.Get(ctx, tourID); err != nil {
			return err
		}
		return repos.Rules.ReplaceForTour(ctx, tourID, normalized)
	})
	if err != nil {
		return nil, s.fail(ctx, "replace weekday rules", err, slog.String("tour_id", tourID.String()))
	}
	s.invalidateRules(ctx, tourID)
	return normalized, nil
}

// invalidateRules drops the cached rules of tourID. A reader can still
// re-store rules it loaded before the commit if its Set lands after the
// second delete; such entries live at most until the cache TTL.
func (s *BookingService) invalidateRules(ctx context.Context, tourID uuid.UUID) {
	if err := s.rules.Invalidate(ctx, tourID); err != nil {
		s.logger.WarnContext(ctx, "rule cache invalidation failed",
			slog.String("tour_id", tourID.String()),
			slog.Any("error", err),
		)
	}
}

func (s *BookingService) cachedRules(ctx context.Context, repos repository.TxRepositories, tourID uuid.UUID) ([]domain.WeekdayRule, error) {
	return s.rules.Rules(ctx, tourID, func(ctx context.Context) ([]domain.WeekdayRule, error) {
		return repos.Rules.ListByTour(ctx, tourID)
	})
}

// fail classifies err and logs the internal cause of storage failures.
func (s *BookingService) fail(ctx context.Context, op string, err error, attrs ...slog.Attr) error {
	err = classify(err)
	if errors.Is(err, ErrStorage) || errors.Is(err, ErrRaceLost) {
		args := make([]any, 0, len(attrs)+2)
		args = append(args, slog.String("op", op), slog.Any("error", err))
		for _, attr := range attrs {
			args = append(args, attr)
		}
		level := slog.LevelError
		if errors.Is(err, ErrRaceLost) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "booking core failure", args...)
	}
	return err
}

func (s *BookingService) validateBookingRequest(req BookingRequest) (BookingRequest, error) {
	if req.TourID == uuid.Nil {
		return req, invalid("tour id is required")
	}
	if req.Slots < 1 {
		return req, invalid("at least one slot must be requested")
	}
	if req.Slots > s.maxSlotsPerBooking {
		return req, invalid("at most %d slots can be booked at once", s.maxSlotsPerBooking)
	}
	if req.Date.IsZero() {
		return req, invalid("date is required")
	}
	req.Date = s.normalizeDate(req.Date)
	if req.Date.Before(s.today()) {
		return req, invalid("date %s is in the past", req.Date.Format(domain.DateLayout))
	}

	startTime, err := normalizeStartTime(req.StartTime)
	if err != nil {
		return req, err
	}
	req.StartTime = startTime

	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	if req.Customer.Name == "" || req.Customer.Email == "" {
		return req, invalid("customer name and email are required")
	}
	if req.Pricing.UnitCents != nil && *req.Pricing.UnitCents < 0 {
		return req, invalid("unit price cannot be negative")
	}
	return req, nil
}

// normalizeDate keeps the calendar day of t and anchors it at midnight in
// the service location.
func (s *BookingService) normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.location)
}

func (s *BookingService) localize(booking domain.Booking) domain.Booking {
	booking.Date = s.normalizeDate(booking.Date)
	return booking
}

func normalizeStartTime(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	startTime, err := domain.ParseStartTime(value)
	if err != nil {
		return "", invalid("%v", err)
	}
	return startTime, nil
}

// resolveRule finds the rule covering date and startTime. With no start
// time, a weekday that has exactly one departure resolves to it, and a
// weekday with several is ambiguous.
func resolveRule(tour domain.Tour, rules []domain.WeekdayRule, date time.Time, startTime string) (domain.WeekdayRule, bool, error) {
	if startTime != "" {
		rule, ok := schedule.MatchRule(tour, rules, date, startTime)
		return rule, ok, nil
	}

	on := schedule.RulesOn(tour, rules, date)
	switch len(on) {
	case 0:
		return domain.WeekdayRule{}, false, nil
	case 1:
		return on[0], true, nil
	default:
		return domain.WeekdayRule{}, false, invalid("start time required: tour runs %d times on %s", len(on), domain.WeekdayOf(date))
	}
}

func normalizeRules(tourID uuid.UUID, rules []domain.WeekdayRule) ([]domain.WeekdayRule, error) {
	seen := make(map[string]struct{}, len(rules))
	normalized := make([]domain.WeekdayRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Weekday.Valid() {
			return nil, invalid("weekday %d is out of range", int(rule.Weekday))
		}
		startTime, err := domain.ParseStartTime(rule.StartTime)
		if err != nil {
			return nil, invalid("%v", err)
		}
		if rule.Capacity != nil && *rule.Capacity < 0 {
			return nil, invalid("capacity cannot be negative")
		}

		key := rule.Weekday.String() + " " + startTime
		if _, ok := seen[key]; ok {
			return nil, invalid("duplicate rule for %s", key)
		}
		seen[key] = struct{}{}

		normalized = append(normalized, domain.WeekdayRule{
			TourID:    tourID,
			Weekday:   rule.Weekday,
			StartTime: startTime,
			Capacity:  rule.Capacity,
		})
	}
	slices.SortFunc(normalized, func(a, b domain.WeekdayRule) int {
		if a.Weekday != b.Weekday {
			return int(a.Weekday) - int(b.Weekday)
		}
		return strings.Compare(a.StartTime, b.StartTime)
	})
	return normalized, nil
}
