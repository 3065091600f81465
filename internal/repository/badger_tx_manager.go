package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"service-tourbooking/internal/domain"
)

// BadgerTxManager keeps the same data in an embedded Badger database. Badger
// transactions are optimistic: a commit that raced another writer on any key
// it read fails with ErrRaceLost.
type BadgerTxManager struct {
	db *badger.DB
}

func NewBadgerTxManager(db *badger.DB) *BadgerTxManager {
	return &BadgerTxManager{db: db}
}

// OpenBadger opens the database at dir, or an in-memory one when dir is empty.
func OpenBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	return badger.Open(opts)
}

func (m *BadgerTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	txn := m.db.NewTransaction(true)
	defer txn.Discard()

	repos := TxRepositories{
		Tours:    &TourBadgerRepository{txn: txn},
		Rules:    &WeekdayRuleBadgerRepository{txn: txn},
		Bookings: &BookingBadgerRepository{txn: txn},
		Outbox:   &OutboxBadgerRepository{txn: txn},
	}

	if err := fn(ctx, repos); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(txn.Commit())
}

// SaveTour stores a tour record. Tours are owned by tour management; this is
// how they are loaded into an embedded store.
func (m *BadgerTxManager) SaveTour(tour domain.Tour) error {
	return m.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, tourKey(tour.ID), tour)
	})
}

// OutboxEvents lists recorded events in insertion order.
func (m *BadgerTxManager) OutboxEvents() ([]domain.BookingEvent, error) {
	var events []domain.BookingEvent
	err := m.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(outboxPrefix), func(val []byte) error {
			var event domain.BookingEvent
			if err := json.Unmarshal(val, &event); err != nil {
				return err
			}
			events = append(events, event)
			return nil
		})
	})
	return events, err
}

func putJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return mapError(txn.Set(key, data))
}

func getJSON(txn *badger.Txn, key []byte, dest any) error {
	item, err := txn.Get(key)
	if err != nil {
		return mapError(err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
}

func scanPrefix(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
