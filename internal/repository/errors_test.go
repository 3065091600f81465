package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError(t *testing.T) {
	generic := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", sql.ErrNoRows), want: ErrNotFound},
		{name: "badger missing key", err: badger.ErrKeyNotFound, want: ErrNotFound},
		{name: "badger conflict", err: badger.ErrConflict, want: ErrRaceLost},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: ErrRaceLost},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: ErrRaceLost},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: nil},
		{name: "other", err: generic, want: generic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if tt.want == nil {
				if errors.Is(got, ErrNotFound) || errors.Is(got, ErrRaceLost) {
					t.Fatalf("expected error to pass through, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if mapError(nil) != nil {
		t.Fatalf("expected nil for nil")
	}
}
