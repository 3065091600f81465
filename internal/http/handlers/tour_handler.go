package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"service-tourbooking/internal/domain"
	"service-tourbooking/internal/service"
)

const defaultHorizonDays = 365

type TourHandler struct {
	service  *service.BookingService
	validate *validator.Validate
}

func NewTourHandler(svc *service.BookingService, validate *validator.Validate) *TourHandler {
	return &TourHandler{service: svc, validate: validate}
}

func (h *TourHandler) Register(router gin.IRouter) {
	router.GET("/tours/:id/schedule", h.handleSchedule)
	router.GET("/tours/:id/availability", h.handleAvailability)
	router.PUT("/admin/tours/:id/rules", h.handleReplaceRules)
}

type occurrenceResponse struct {
	Date      string `json:"date"`
	Weekday   string `json:"weekday"`
	StartTime string `json:"start_time"`
	Capacity  int    `json:"capacity"`
}

func (h *TourHandler) handleSchedule(c *gin.Context) {
	tourID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBadRequest(c, "tour id must be a UUID")
		return
	}

	horizon := defaultHorizonDays
	if raw := c.Query("horizon"); raw != "" {
		horizon, err = strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(c, "horizon must be a whole number of days")
			return
		}
	}

	occurrences, err := h.service.ExpandSchedule(c.Request.Context(), tourID, horizon)
	if err != nil {
		writeError(c, err)
		return
	}

	body := make([]occurrenceResponse, 0, len(occurrences))
	for _, occurrence := range occurrences {
		body = append(body, occurrenceResponse{
			Date:      occurrence.Date.Format(domain.DateLayout),
			Weekday:   domain.WeekdayOf(occurrence.Date).String(),
			StartTime: occurrence.StartTime,
			Capacity:  occurrence.Capacity,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"tour_id":      tourID,
		"horizon_days": horizon,
		"scheduled":    len(body) > 0,
		"occurrences":  body,
	})
}

type availabilityQuery struct {
	Date      string `form:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `form:"start_time" validate:"omitempty,datetime=15:04"`
}

func (h *TourHandler) handleAvailability(c *gin.Context) {
	tourID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBadRequest(c, "tour id must be a UUID")
		return
	}

	var query availabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	if err := h.validate.Struct(query); err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	date, err := time.ParseInLocation(domain.DateLayout, query.Date, h.service.Location())
	if err != nil {
		writeBadRequest(c, "date must be YYYY-MM-DD")
		return
	}

	availability, err := h.service.Remaining(c.Request.Context(), tourID, date, query.StartTime)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tour_id":    availability.TourID,
		"date":       availability.Date.Format(domain.DateLayout),
		"start_time": availability.StartTime,
		"capacity":   availability.Capacity,
		"booked":     availability.Booked,
		"remaining":  availability.Remaining,
		"outcome":    availability.Outcome,
	})
}

type ruleRequest struct {
	Weekday   string `json:"weekday" validate:"required"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	Capacity  *int   `json:"capacity" validate:"omitempty,min=0"`
}

type replaceRulesRequest struct {
	Rules []ruleRequest `json:"rules" validate:"omitempty,dive"`
}

type ruleResponse struct {
	Weekday   domain.Weekday `json:"weekday"`
	StartTime string         `json:"start_time"`
	Capacity  *int           `json:"capacity"`
}

func (h *TourHandler) handleReplaceRules(c *gin.Context) {
	tourID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBadRequest(c, "tour id must be a UUID")
		return
	}

	var req replaceRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	rules := make([]domain.WeekdayRule, 0, len(req.Rules))
	for _, rule := range req.Rules {
		weekday, err := domain.ParseWeekday(rule.Weekday)
		if err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		rules = append(rules, domain.WeekdayRule{Weekday: weekday, StartTime: rule.StartTime, Capacity: rule.Capacity})
	}

	saved, err := h.service.ReplaceWeekdayRules(c.Request.Context(), tourID, rules)
	if err != nil {
		writeError(c, err)
		return
	}

	body := make([]ruleResponse, 0, len(saved))
	for _, rule := range saved {
		body = append(body, ruleResponse{Weekday: rule.Weekday, StartTime: rule.StartTime, Capacity: rule.Capacity})
	}
	c.JSON(http.StatusOK, gin.H{"tour_id": tourID, "rules": body})
}
