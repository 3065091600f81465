package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"service-tourbooking/internal/domain"
	"service-tourbooking/internal/repository"
	"service-tourbooking/internal/service"
)

// now is Monday 2026-10-12; bookings below target Monday 2026-10-19.
var now = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

const nextMonday = "2026-10-19"

// flakyTxManager loses the race for the first `losses` transactions.
type flakyTxManager struct {
	repository.TxManager
	losses int
}

func (m *flakyTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.TxRepositories) error) error {
	if m.losses > 0 {
		m.losses--
		return fmt.Errorf("commit: %w", repository.ErrRaceLost)
	}
	return m.TxManager.WithTx(ctx, fn)
}

type testServer struct {
	engine *gin.Engine
	tour   domain.Tour
	tx     *flakyTxManager
}

func newTestServer(t *testing.T, slots, retries int) testServer {
	t.Helper()
	db, err := repository.OpenBadger("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := repository.NewBadgerTxManager(db)

	tour := domain.Tour{ID: uuid.New(), Name: "Harbour cruise", Slots: slots, RateCents: 2000}
	if err := store.SaveTour(tour); err != nil {
		t.Fatalf("save tour: %v", err)
	}

	tx := &flakyTxManager{TxManager: store}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewBookingService(tx, service.Options{Clock: func() time.Time { return now }}, logger)
	if _, err := svc.ReplaceWeekdayRules(context.Background(), tour.ID, []domain.WeekdayRule{
		{Weekday: domain.Monday, StartTime: "09:00"},
	}); err != nil {
		t.Fatalf("replace rules: %v", err)
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	validate := validator.New(validator.WithRequiredStructEnabled())
	NewTourHandler(svc, validate).Register(engine)
	NewBookingHandler(svc, validate, retries).Register(engine)

	return testServer{engine: engine, tour: tour, tx: tx}
}

func (s testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, decoded
}

func (s testServer) bookingBody(slots int) map[string]any {
	return map[string]any{
		"tour_id":    s.tour.ID.String(),
		"date":       nextMonday,
		"start_time": "09:00",
		"slots":      slots,
		"customer":   map[string]any{"name": "Ada Lovelace", "email": "ada@example.com"},
	}
}

func TestCreateBookingAdmitsAndRejects(t *testing.T) {
	s := newTestServer(t, 5, 0)

	code, body := s.do(t, http.MethodPost, "/bookings", s.bookingBody(3))
	if code != http.StatusCreated {
		t.Fatalf("first booking: got %d %v", code, body)
	}
	if body["success"] != true || body["booking_id"] == nil {
		t.Fatalf("first booking body: %v", body)
	}

	code, body = s.do(t, http.MethodPost, "/bookings", s.bookingBody(3))
	if code != http.StatusConflict {
		t.Fatalf("over capacity: got %d %v", code, body)
	}
	if body["success"] != false || body["reason"] != "Not enough available slots" {
		t.Fatalf("over capacity body: %v", body)
	}

	code, body = s.do(t, http.MethodGet, "/tours/"+s.tour.ID.String()+"/availability?date="+nextMonday+"&start_time=09:00", nil)
	if code != http.StatusOK {
		t.Fatalf("availability: got %d %v", code, body)
	}
	if body["remaining"] != float64(2) || body["outcome"] != "scheduled" {
		t.Fatalf("availability body: %v", body)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	s := newTestServer(t, 5, 0)

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"zero slots", func(b map[string]any) { b["slots"] = 0 }},
		{"bad date", func(b map[string]any) { b["date"] = "19/10/2026" }},
		{"bad start time", func(b map[string]any) { b["start_time"] = "9am" }},
		{"bad tour id", func(b map[string]any) { b["tour_id"] = "not-a-uuid" }},
		{"missing email", func(b map[string]any) { b["customer"] = map[string]any{"name": "Ada"} }},
		{"negative price", func(b map[string]any) { b["unit_price_cents"] = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := s.bookingBody(1)
			tc.mutate(req)
			code, body := s.do(t, http.MethodPost, "/bookings", req)
			if code != http.StatusBadRequest {
				t.Fatalf("got %d %v", code, body)
			}
			if body["success"] != false {
				t.Fatalf("body: %v", body)
			}
		})
	}
}

func TestCreateBookingUnknownTour(t *testing.T) {
	s := newTestServer(t, 5, 0)
	req := s.bookingBody(1)
	req["tour_id"] = uuid.NewString()

	code, body := s.do(t, http.MethodPost, "/bookings", req)
	if code != http.StatusNotFound {
		t.Fatalf("got %d %v", code, body)
	}
}

func TestCreateBookingRetriesLostRace(t *testing.T) {
	s := newTestServer(t, 5, 2)

	s.tx.losses = 2
	code, body := s.do(t, http.MethodPost, "/bookings", s.bookingBody(1))
	if code != http.StatusCreated {
		t.Fatalf("within retry budget: got %d %v", code, body)
	}

	s.tx.losses = 3
	code, body = s.do(t, http.MethodPost, "/bookings", s.bookingBody(1))
	if code != http.StatusConflict {
		t.Fatalf("retries exhausted: got %d %v", code, body)
	}
	if s.tx.losses != 0 {
		t.Fatalf("expected every attempt to be used, %d left", s.tx.losses)
	}
}

func TestBookingLifecycle(t *testing.T) {
	s := newTestServer(t, 5, 0)

	_, created := s.do(t, http.MethodPost, "/bookings", s.bookingBody(2))
	id, _ := created["booking_id"].(string)
	if id == "" {
		t.Fatalf("missing booking id: %v", created)
	}

	code, body := s.do(t, http.MethodGet, "/bookings/"+id, nil)
	if code != http.StatusOK || body["status"] != "pending" || body["date"] != nextMonday {
		t.Fatalf("get: %d %v", code, body)
	}

	code, body = s.do(t, http.MethodPost, "/bookings/"+id+"/confirm", nil)
	if code != http.StatusOK {
		t.Fatalf("confirm: %d %v", code, body)
	}

	for i := range 2 {
		code, body = s.do(t, http.MethodPost, "/bookings/"+id+"/cancel", nil)
		if code != http.StatusOK {
			t.Fatalf("cancel #%d: %d %v", i+1, code, body)
		}
	}

	code, body = s.do(t, http.MethodPost, "/bookings/"+id+"/confirm", nil)
	if code != http.StatusConflict {
		t.Fatalf("confirm cancelled: %d %v", code, body)
	}

	code, _ = s.do(t, http.MethodGet, "/bookings/"+uuid.NewString(), nil)
	if code != http.StatusNotFound {
		t.Fatalf("unknown booking: %d", code)
	}
	code, _ = s.do(t, http.MethodGet, "/bookings/nope", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("malformed booking id: %d", code)
	}
}

func TestScheduleAndRules(t *testing.T) {
	s := newTestServer(t, 10, 0)
	base := "/tours/" + s.tour.ID.String()

	code, body := s.do(t, http.MethodGet, base+"/schedule?horizon=27", nil)
	if code != http.StatusOK {
		t.Fatalf("schedule: %d %v", code, body)
	}
	if occurrences, _ := body["occurrences"].([]any); len(occurrences) != 4 {
		t.Fatalf("expected 4 mondays in 28 days, got %v", body["occurrences"])
	}

	code, body = s.do(t, http.MethodPut, "/admin"+base+"/rules", map[string]any{
		"rules": []map[string]any{
			{"weekday": "tue", "start_time": "10:00", "capacity": 4},
			{"weekday": "Tuesday", "start_time": "14:00"},
		},
	})
	if code != http.StatusOK {
		t.Fatalf("replace rules: %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, base+"/schedule?horizon=7", nil)
	if code != http.StatusOK {
		t.Fatalf("schedule after replace: %d %v", code, body)
	}
	occurrences, _ := body["occurrences"].([]any)
	if len(occurrences) != 2 {
		t.Fatalf("expected two tuesday departures, got %v", occurrences)
	}
	first, _ := occurrences[0].(map[string]any)
	if first["start_time"] != "10:00" || first["capacity"] != float64(4) || first["weekday"] != "Tuesday" {
		t.Fatalf("first occurrence: %v", first)
	}

	code, _ = s.do(t, http.MethodGet, base+"/schedule?horizon=-1", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("negative horizon: %d", code)
	}
	code, _ = s.do(t, http.MethodPut, "/admin"+base+"/rules", map[string]any{
		"rules": []map[string]any{{"weekday": "Funday", "start_time": "10:00"}},
	})
	if code != http.StatusBadRequest {
		t.Fatalf("bad weekday: %d", code)
	}
}

func TestAvailabilityUnscheduledDate(t *testing.T) {
	s := newTestServer(t, 7, 0)

	code, body := s.do(t, http.MethodGet, "/tours/"+s.tour.ID.String()+"/availability?date=2026-10-21", nil)
	if code != http.StatusOK {
		t.Fatalf("got %d %v", code, body)
	}
	if body["remaining"] != float64(7) || body["outcome"] != "unscheduled" {
		t.Fatalf("body: %v", body)
	}

	code, _ = s.do(t, http.MethodGet, "/tours/"+s.tour.ID.String()+"/availability", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("missing date: %d", code)
	}
}

func TestCancelAndConfirmRetryLostRace(t *testing.T) {
	s := newTestServer(t, 5, 2)

	_, created := s.do(t, http.MethodPost, "/bookings", s.bookingBody(1))
	id, _ := created["booking_id"].(string)
	if id == "" {
		t.Fatalf("missing booking id: %v", created)
	}

	s.tx.losses = 2
	code, body := s.do(t, http.MethodPost, "/bookings/"+id+"/confirm", nil)
	if code != http.StatusOK {
		t.Fatalf("confirm within retry budget: %d %v", code, body)
	}

	s.tx.losses = 2
	code, body = s.do(t, http.MethodPost, "/bookings/"+id+"/cancel", nil)
	if code != http.StatusOK {
		t.Fatalf("cancel within retry budget: %d %v", code, body)
	}
	booking, _ := body["booking"].(map[string]any)
	if booking["status"] != "cancelled" {
		t.Fatalf("expected cancelled booking, got %v", body)
	}

	s.tx.losses = 3
	code, _ = s.do(t, http.MethodPost, "/bookings/"+id+"/cancel", nil)
	if code != http.StatusConflict {
		t.Fatalf("retries exhausted: %d", code)
	}
}
