package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/smartfuturesg/telehealth-platform/internal/authz"
	"github.com/smartfuturesg/telehealth-platform/internal/availability"
	"github.com/smartfuturesg/telehealth-platform/internal/http/middleware"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

// AvailabilityHandler manages a practitioner's weekly schedule, date
// exceptions, and telehealth settings.
type AvailabilityHandler struct {
	availability *availability.Store
	staff        *staff.Store
	logger       *logging.Logger
	now          func() time.Time
}

// NewAvailabilityHandler creates an availability handler.
func NewAvailabilityHandler(avail *availability.Store, staffStore *staff.Store, logger *logging.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{
		availability: avail,
		staff:        staffStore,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WeeklySlotPayload is one granted increment, in the practitioner's local week
// on write and in UTC coordinates on read.
type WeeklySlotPayload struct {
	Weekday int `json:"weekday"` // 0 = Sunday
	Index   int `json:"index"`
}

// ReplaceScheduleRequest is the full weekly schedule in local coordinates.
type ReplaceScheduleRequest struct {
	Slots []WeeklySlotPayload `json:"slots"`
}

// ReplaceSchedule swaps the authenticated practitioner's entire weekly
// schedule. Slots arrive in the practitioner's configured timezone and are
// normalized to UTC before storage.
// PUT /availability
func (h *AvailabilityHandler) ReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePractitioner(w, r)
	if !ok {
		return
	}

	var req ReplaceScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	settings, err := h.staff.GetSettings(r.Context(), actor.ID)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		h.logger.Error("practitioner has invalid timezone", "user_id", actor.ID, "timezone", settings.Timezone)
		http.Error(w, "practitioner timezone invalid", http.StatusUnprocessableEntity)
		return
	}

	local := make([]availability.WeeklySlot, 0, len(req.Slots))
	for _, s := range req.Slots {
		if s.Weekday < 0 || s.Weekday > 6 || s.Index < 1 || s.Index > timeslot.Count {
			http.Error(w, "slot out of range", http.StatusBadRequest)
			return
		}
		local = append(local, availability.WeeklySlot{
			UserID:  actor.ID,
			Weekday: time.Weekday(s.Weekday),
			Index:   s.Index,
		})
	}

	normalized := availability.NormalizeWeekly(local, loc, h.now())
	if err := h.availability.ReplaceWeekly(r.Context(), actor.ID, normalized); err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSchedule returns the stored schedule in UTC coordinates.
// GET /availability
func (h *AvailabilityHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePractitioner(w, r)
	if !ok {
		return
	}

	slots, err := h.availability.ListWeekly(r.Context(), actor.ID)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}

	out := make([]WeeklySlotPayload, 0, len(slots))
	for _, s := range slots {
		out = append(out, WeeklySlotPayload{Weekday: int(s.Weekday), Index: s.Index})
	}
	respondJSON(w, http.StatusOK, map[string]any{"slots": out})
}

// ExceptionRequest is a one-off availability override in UTC coordinates.
type ExceptionRequest struct {
	Date  string `json:"date"` // YYYY-MM-DD, UTC
	Index int    `json:"index"`
	Busy  bool   `json:"busy"`
}

// ExceptionResponse echoes a stored exception.
type ExceptionResponse struct {
	ID    string `json:"id"`
	Date  string `json:"date"`
	Index int    `json:"index"`
	Busy  bool   `json:"busy"`
}

// AddException records a date exception for the authenticated practitioner.
// POST /availability/exceptions
func (h *AvailabilityHandler) AddException(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePractitioner(w, r)
	if !ok {
		return
	}

	var req ExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	if req.Index < 1 || req.Index > timeslot.Count {
		http.Error(w, "index out of range", http.StatusBadRequest)
		return
	}

	e := &availability.Exception{
		UserID: actor.ID,
		Date:   date,
		Index:  req.Index,
		Busy:   req.Busy,
	}
	if err := h.availability.AddException(r.Context(), e); err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, ExceptionResponse{
		ID:    e.ID.String(),
		Date:  e.Date.Format("2006-01-02"),
		Index: e.Index,
		Busy:  e.Busy,
	})
}

// DeleteException removes one of the practitioner's date exceptions.
// DELETE /availability/exceptions/{exceptionID}
func (h *AvailabilityHandler) DeleteException(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePractitioner(w, r)
	if !ok {
		return
	}

	exceptionID, err := uuid.Parse(chi.URLParam(r, "exceptionID"))
	if err != nil {
		http.Error(w, "invalid exceptionID", http.StatusBadRequest)
		return
	}

	if err := h.availability.DeleteException(r.Context(), actor.ID, exceptionID); err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SettingsPayload is the practitioner's telehealth configuration.
type SettingsPayload struct {
	AutoConfirm bool   `json:"auto_confirm"`
	Timezone    string `json:"timezone"`
}

// GetSettings returns the practitioner's telehealth settings.
// GET /settings
func (h *AvailabilityHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePractitioner(w, r)
	if !ok {
		return
	}

	settings, err := h.staff.GetSettings(r.Context(), actor.ID)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, SettingsPayload{
		AutoConfirm: settings.AutoConfirm,
		Timezone:    settings.Timezone,
	})
}

// UpdateSettings creates or updates the practitioner's telehealth settings.
// PUT /settings
func (h *AvailabilityHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePractitioner(w, r)
	if !ok {
		return
	}

	var req SettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}

	if err := h.staff.UpsertSettings(r.Context(), &staff.Settings{
		UserID:      actor.ID,
		AutoConfirm: req.AutoConfirm,
		Timezone:    req.Timezone,
	}); err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AvailabilityHandler) requirePractitioner(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return authz.Actor{}, false
	}
	if actor.Role != authz.RolePractitioner && actor.Role != authz.RoleAdmin {
		http.Error(w, "practitioner role required", http.StatusForbidden)
		return authz.Actor{}, false
	}
	return actor, true
}
