package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"service-tourbooking/internal/domain"
	"service-tourbooking/internal/service"
)

type BookingHandler struct {
	service  *service.BookingService
	validate *validator.Validate
	// retries is how many extra attempts follow a lost race.
	retries int
}

func NewBookingHandler(svc *service.BookingService, validate *validator.Validate, retries int) *BookingHandler {
	return &BookingHandler{service: svc, validate: validate, retries: max(0, retries)}
}

func (h *BookingHandler) Register(router gin.IRouter) {
	router.POST("/bookings", h.handleCreate)
	router.GET("/bookings/:id", h.handleGet)
	router.POST("/bookings/:id/cancel", h.handleCancel)
	router.POST("/bookings/:id/confirm", h.handleConfirm)
}

type customerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=40"`
}

type createBookingRequest struct {
	TourID         string          `json:"tour_id" validate:"required,uuid"`
	Date           string          `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      string          `json:"start_time" validate:"omitempty,datetime=15:04"`
	Slots          int             `json:"slots" validate:"required,min=1"`
	Customer       customerRequest `json:"customer" validate:"required"`
	UnitPriceCents *int64          `json:"unit_price_cents" validate:"omitempty,min=0"`
}

type bookingResponse struct {
	ID         uuid.UUID       `json:"id"`
	TourID     uuid.UUID       `json:"tour_id"`
	Date       string          `json:"date"`
	StartTime  string          `json:"start_time"`
	Slots      int             `json:"slots"`
	Status     string          `json:"status"`
	TotalCents int64           `json:"total_cents"`
	Customer   domain.Customer `json:"customer"`
	CreatedAt  time.Time       `json:"created_at"`
}

func toBookingResponse(booking domain.Booking) bookingResponse {
	return bookingResponse{
		ID:         booking.ID,
		TourID:     booking.TourID,
		Date:       booking.Date.Format(domain.DateLayout),
		StartTime:  booking.StartTime,
		Slots:      booking.Slots,
		Status:     string(booking.Status),
		TotalCents: booking.TotalCents,
		Customer:   booking.Customer,
		CreatedAt:  booking.CreatedAt,
	}
}

func (h *BookingHandler) handleCreate(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	tourID, err := uuid.Parse(req.TourID)
	if err != nil {
		writeBadRequest(c, "tour_id must be a UUID")
		return
	}
	date, err := time.ParseInLocation(domain.DateLayout, req.Date, h.service.Location())
	if err != nil {
		writeBadRequest(c, "date must be YYYY-MM-DD")
		return
	}

	admission := service.BookingRequest{
		TourID:    tourID,
		Date:      date,
		StartTime: req.StartTime,
		Slots:     req.Slots,
		Customer: domain.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Pricing: service.Pricing{UnitCents: req.UnitPriceCents},
	}
	ctx := c.Request.Context()
	booking, err := retryLostRace(ctx, h.retries, func() (domain.Booking, error) {
		return h.service.CreateBooking(ctx, admission)
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"booking_id": booking.ID,
		"booking":    toBookingResponse(booking),
	})
}

// retryLostRace re-runs op while it loses races with concurrent writers,
// at most retries extra times. Each attempt is a whole transaction, so
// capacity and booking status are always re-read.
func retryLostRace(ctx context.Context, retries int, op func() (domain.Booking, error)) (domain.Booking, error) {
	booking, err := op()
	for attempt := 0; attempt < retries && errors.Is(err, service.ErrRaceLost); attempt++ {
		if ctx.Err() != nil {
			break
		}
		booking, err = op()
	}
	return booking, err
}

func (h *BookingHandler) handleGet(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}
	booking, err := h.service.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(booking))
}

func (h *BookingHandler) handleCancel(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	booking, err := retryLostRace(ctx, h.retries, func() (domain.Booking, error) {
		return h.service.CancelBooking(ctx, bookingID)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": toBookingResponse(booking)})
}

func (h *BookingHandler) handleConfirm(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	booking, err := retryLostRace(ctx, h.retries, func() (domain.Booking, error) {
		return h.service.ConfirmBooking(ctx, bookingID)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": toBookingResponse(booking)})
}

func parseBookingID(c *gin.Context) (uuid.UUID, bool) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBadRequest(c, "booking id must be a UUID")
		return uuid.Nil, false
	}
	return bookingID, true
}
