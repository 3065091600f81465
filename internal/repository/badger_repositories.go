package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"service-tourbooking/internal/domain"
)

const (
	tourPrefix    = "tour/"
	rulePrefix    = "rule/"
	bookingPrefix = "booking/"
	slotPrefix    = "slot/"
	outboxPrefix  = "outbox/"
)

func tourKey(id uuid.UUID) []byte {
	return []byte(tourPrefix + id.String())
}

func ruleTourPrefix(tourID uuid.UUID) []byte {
	return []byte(rulePrefix + tourID.String() + "/")
}

func ruleKey(rule domain.WeekdayRule) []byte {
	return []byte(fmt.Sprintf("%s%s/%d/%s", rulePrefix, rule.TourID, int(rule.Weekday), rule.StartTime))
}

func bookingKey(id uuid.UUID) []byte {
	return []byte(bookingPrefix + id.String())
}

func slotCounterKey(key domain.SlotKey) []byte {
	return []byte(slotPrefix + key.String())
}

type TourBadgerRepository struct {
	txn *badger.Txn
}

func (r *TourBadgerRepository) Get(_ context.Context, id uuid.UUID) (domain.Tour, error) {
	var tour domain.Tour
	if err := getJSON(r.txn, tourKey(id), &tour); err != nil {
		return domain.Tour{}, err
	}
	return tour, nil
}

type WeekdayRuleBadgerRepository struct {
	txn *badger.Txn
}

func (r *WeekdayRuleBadgerRepository) ListByTour(_ context.Context, tourID uuid.UUID) ([]domain.WeekdayRule, error) {
	var rules []domain.WeekdayRule
	err := scanPrefix(r.txn, ruleTourPrefix(tourID), func(val []byte) error {
		var rule domain.WeekdayRule
		if err := json.Unmarshal(val, &rule); err != nil {
			return err
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *WeekdayRuleBadgerRepository) ReplaceForTour(_ context.Context, tourID uuid.UUID, rules []domain.WeekdayRule) error {
	var stale [][]byte
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = ruleTourPrefix(tourID)
	it := r.txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		stale = append(stale, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range stale {
		if err := r.txn.Delete(key); err != nil {
			return mapError(err)
		}
	}
	for _, rule := range rules {
		rule.TourID = tourID
		if err := putJSON(r.txn, ruleKey(rule), rule); err != nil {
			return err
		}
	}
	return nil
}

type BookingBadgerRepository struct {
	txn *badger.Txn
}

// LockSlot is a no-op: admissions read and write the slot counter, so two
// transactions admitting on the same key conflict at commit.
func (r *BookingBadgerRepository) LockSlot(context.Context, domain.SlotKey) error {
	return nil
}

func (r *BookingBadgerRepository) SumBookedSlots(_ context.Context, key domain.SlotKey) (int, error) {
	return r.readCounter(key)
}

func (r *BookingBadgerRepository) Insert(_ context.Context, booking domain.Booking) error {
	if _, err := r.txn.Get(bookingKey(booking.ID)); err == nil {
		return fmt.Errorf("booking %s already exists", booking.ID)
	} else if err != badger.ErrKeyNotFound {
		return mapError(err)
	}

	if err := putJSON(r.txn, bookingKey(booking.ID), booking); err != nil {
		return err
	}
	if booking.Status.Holds() {
		return r.addToCounter(booking.SlotKey(), booking.Slots)
	}
	return nil
}

func (r *BookingBadgerRepository) Get(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	var booking domain.Booking
	if err := getJSON(r.txn, bookingKey(id), &booking); err != nil {
		return domain.Booking{}, err
	}
	return booking, nil
}

// GetForUpdate records the read in the transaction, so a concurrent status
// change makes one of the commits fail.
func (r *BookingBadgerRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return r.Get(ctx, id)
}

func (r *BookingBadgerRepository) UpdateStatus(_ context.Context, id uuid.UUID, status domain.BookingStatus, at time.Time) error {
	var booking domain.Booking
	if err := getJSON(r.txn, bookingKey(id), &booking); err != nil {
		return err
	}

	held, holds := booking.Status.Holds(), status.Holds()
	booking.Status = status
	booking.UpdatedAt = at
	if err := putJSON(r.txn, bookingKey(id), booking); err != nil {
		return err
	}

	switch {
	case held && !holds:
		return r.addToCounter(booking.SlotKey(), -booking.Slots)
	case !held && holds:
		return r.addToCounter(booking.SlotKey(), booking.Slots)
	}
	return nil
}

func (r *BookingBadgerRepository) readCounter(key domain.SlotKey) (int, error) {
	var booked int
	err := getJSON(r.txn, slotCounterKey(key), &booked)
	if err != nil && !isNotFound(err) {
		return 0, err
	}
	return booked, nil
}

func (r *BookingBadgerRepository) addToCounter(key domain.SlotKey, delta int) error {
	booked, err := r.readCounter(key)
	if err != nil {
		return err
	}
	booked += delta
	if booked < 0 {
		booked = 0
	}
	return putJSON(r.txn, slotCounterKey(key), booked)
}

type OutboxBadgerRepository struct {
	txn *badger.Txn
}

func (r *OutboxBadgerRepository) Insert(_ context.Context, event domain.BookingEvent) error {
	row, err := newOutboxRow(event)
	if err != nil {
		return err
	}
	return putJSON(r.txn, []byte(outboxPrefix+row.ID.String()), event)
}
