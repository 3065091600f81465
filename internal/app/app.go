package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	transport "service-tourbooking/internal/http"
	"service-tourbooking/internal/http/handlers"
	"service-tourbooking/internal/repository"
	"service-tourbooking/internal/service"
)

type Config struct {
	Location           *time.Location
	MaxHorizonDays     int
	MaxSlotsPerBooking int
	RequireSchedule    bool
	AdmissionRetries   int
	RequestTimeout     time.Duration
}

type App struct {
	handler        http.Handler
	bookingService *service.BookingService
}

// New wires the booking core onto the given store. ruleCache may be nil.
func New(txManager repository.TxManager, ruleCache service.RuleCache, cfg Config, logger *slog.Logger) *App {
	bookingService := service.NewBookingService(txManager, service.Options{
		Location:           cfg.Location,
		MaxHorizonDays:     cfg.MaxHorizonDays,
		MaxSlotsPerBooking: cfg.MaxSlotsPerBooking,
		RequireSchedule:    cfg.RequireSchedule,
		RuleCache:          ruleCache,
	}, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())
	tourHandler := handlers.NewTourHandler(bookingService, validate)
	bookingHandler := handlers.NewBookingHandler(bookingService, validate, cfg.AdmissionRetries)
	router := transport.NewRouter(tourHandler, bookingHandler, logger, cfg.RequestTimeout)

	return &App{handler: router.Handler(), bookingService: bookingService}
}

func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) BookingService() *service.BookingService {
	return a.bookingService
}
