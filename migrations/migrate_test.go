package migrations

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestEmbeddedMigrationsCreateCoreTables(t *testing.T) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("no embedded migrations")
	}

	var all strings.Builder
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		all.Write(data)
	}
	for _, table := range []string{"tourbooking.tours", "tourbooking.weekday_rules", "tourbooking.bookings", "tourbooking.outbox_events"} {
		if !strings.Contains(all.String(), table) {
			t.Errorf("migrations do not create %s", table)
		}
	}
}

func TestIsIgnorableMigrationError(t *testing.T) {
	if !isIgnorableMigrationError(&pgconn.PgError{Code: "42P07"}) {
		t.Errorf("duplicate_table should be ignorable")
	}
	if isIgnorableMigrationError(&pgconn.PgError{Code: "23505"}) {
		t.Errorf("unique_violation should not be ignorable")
	}
	if isIgnorableMigrationError(errors.New("boom")) {
		t.Errorf("non-postgres errors should not be ignorable")
	}
}
