package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/smartfuturesg/telehealth-platform/internal/authz"
	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/internal/http/middleware"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

// BookingsHandler exposes the booking lifecycle over HTTP.
type BookingsHandler struct {
	lifecycle *bookings.Lifecycle
	store     *bookings.Store
	logger    *logging.Logger
}

// NewBookingsHandler creates a bookings handler.
func NewBookingsHandler(lifecycle *bookings.Lifecycle, store *bookings.Store, logger *logging.Logger) *BookingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingsHandler{
		lifecycle: lifecycle,
		store:     store,
		logger:    logger,
	}
}

// BookingResponse represents a booking in API responses.
type BookingResponse struct {
	ID               string `json:"id"`
	ClientUserID     string `json:"client_user_id"`
	StaffUserID      string `json:"staff_user_id"`
	Profession       string `json:"profession"`
	TargetDate       string `json:"target_date"`
	StartIndex       int    `json:"start_index"`
	EndIndex         int    `json:"end_index"`
	StartsAt         string `json:"starts_at"`
	EndsAt           string `json:"ends_at"`
	DurationMinutes  int    `json:"duration_minutes"`
	Status           string `json:"status"`
	ClientTimezone   string `json:"client_timezone"`
	ConsultRateCents int32  `json:"consult_rate_cents"`
	Charged          bool   `json:"charged"`
	CreatedAt        string `json:"created_at"`
}

// HistoryEntryResponse is one audited status the booking held.
type HistoryEntryResponse struct {
	Status       string `json:"status"`
	ReporterID   string `json:"reporter_id,omitempty"`
	ReporterRole string `json:"reporter_role"`
	CreatedAt    string `json:"created_at"`
}

// BookingDetailResponse is a booking with its full status history.
type BookingDetailResponse struct {
	BookingResponse
	History []HistoryEntryResponse `json:"history"`
}

func toBookingResponse(b *bookings.Booking) BookingResponse {
	return BookingResponse{
		ID:               b.ID.String(),
		ClientUserID:     b.ClientUserID.String(),
		StaffUserID:      b.StaffUserID.String(),
		Profession:       string(b.Profession),
		TargetDate:       b.TargetDate.Format("2006-01-02"),
		StartIndex:       b.StartIndex,
		EndIndex:         b.EndIndex,
		StartsAt:         b.StartAt().Format(time.RFC3339),
		EndsAt:           b.EndAt().Format(time.RFC3339),
		DurationMinutes:  b.DurationMinutes,
		Status:           string(b.Status),
		ClientTimezone:   b.ClientTimezone,
		ConsultRateCents: b.ConsultRateCents,
		Charged:          b.Charged,
		CreatedAt:        b.CreatedAt.Format(time.RFC3339),
	}
}

// CreateBookingRequest is the booking submission in client-local coordinates.
type CreateBookingRequest struct {
	StaffUserID     string `json:"staff_user_id"`
	Profession      string `json:"profession"`
	Year            int    `json:"year"`
	Month           int    `json:"month"`
	Day             int    `json:"day"`
	StartIndex      int    `json:"start_index"`
	DurationMinutes int    `json:"duration_minutes"`
	Timezone        string `json:"timezone"`
	PaymentMethodID string `json:"payment_method_id"`
}

// Create books an appointment for the authenticated client.
// POST /bookings
func (h *BookingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if actor.Role != authz.RoleClient {
		http.Error(w, "only clients can book appointments", http.StatusForbidden)
		return
	}

	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	staffID, err := uuid.Parse(req.StaffUserID)
	if err != nil {
		http.Error(w, "invalid staff_user_id", http.StatusBadRequest)
		return
	}

	b, err := h.lifecycle.Create(r.Context(), bookings.CreateRequest{
		ClientUserID:    actor.ID,
		StaffUserID:     staffID,
		Profession:      staff.Profession(req.Profession),
		Year:            req.Year,
		Month:           time.Month(req.Month),
		Day:             req.Day,
		StartIndex:      req.StartIndex,
		DurationMinutes: req.DurationMinutes,
		ClientTimezone:  req.Timezone,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, toBookingResponse(b))
}

// List returns the authenticated user's bookings from the given day onward.
// GET /bookings?from=2024-06-10
func (h *BookingsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	from := timeslot.AbsSlot(0)
	if raw := r.URL.Query().Get("from"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return
		}
		from = timeslot.AbsAt(day)
	}

	list, err := h.store.ListForUser(r.Context(), actor.ID, from)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}

	out := make([]BookingResponse, 0, len(list))
	for i := range list {
		out = append(out, toBookingResponse(&list[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

// Get returns one booking with its status history.
// GET /bookings/{bookingID}
func (h *BookingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, b, ok := h.loadAuthorized(w, r, authz.ActionView)
	if !ok {
		return
	}

	history, err := h.store.History(r.Context(), b.ID)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}

	detail := BookingDetailResponse{
		BookingResponse: toBookingResponse(b),
		History:         make([]HistoryEntryResponse, 0, len(history)),
	}
	for _, entry := range history {
		resp := HistoryEntryResponse{
			Status:       string(entry.Status),
			ReporterRole: string(entry.ReporterRole),
			CreatedAt:    entry.CreatedAt.Format(time.RFC3339),
		}
		if entry.ReporterID != uuid.Nil {
			resp.ReporterID = entry.ReporterID.String()
		}
		detail.History = append(detail.History, resp)
	}
	respondJSON(w, http.StatusOK, detail)
}

// Accept confirms a pending booking.
// POST /bookings/{bookingID}/accept
func (h *BookingsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, b, ok := h.loadAuthorized(w, r, authz.ActionAccept)
	if !ok {
		return
	}

	updated, err := h.lifecycle.Accept(r.Context(), b.ID, actor.Reporter())
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(updated))
}

// CancelBookingRequest carries the optional cancellation reason.
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// Cancel cancels a pending or accepted booking.
// POST /bookings/{bookingID}/cancel
func (h *BookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, b, ok := h.loadAuthorized(w, r, authz.ActionCancel)
	if !ok {
		return
	}

	var req CancelBookingRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	updated, err := h.lifecycle.Cancel(r.Context(), b.ID, actor.Reporter(), req.Reason)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(updated))
}

// Start moves an accepted booking into the call.
// POST /bookings/{bookingID}/start
func (h *BookingsHandler) Start(w http.ResponseWriter, r *http.Request) {
	actor, b, ok := h.loadAuthorized(w, r, authz.ActionStart)
	if !ok {
		return
	}

	updated, err := h.lifecycle.Start(r.Context(), b.ID, actor.Reporter())
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(updated))
}

// Complete ends the call.
// POST /bookings/{bookingID}/complete
func (h *BookingsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, b, ok := h.loadAuthorized(w, r, authz.ActionComplete)
	if !ok {
		return
	}

	if err := h.lifecycle.Complete(r.Context(), b.ID, actor.Reporter()); err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	updated, err := h.store.Get(r.Context(), b.ID)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(updated))
}

// loadAuthorized parses the booking id, loads the booking, and checks the
// actor's capability. On failure it writes the response and returns ok=false.
func (h *BookingsHandler) loadAuthorized(w http.ResponseWriter, r *http.Request, action authz.Action) (authz.Actor, *bookings.Booking, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return authz.Actor{}, nil, false
	}

	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		http.Error(w, "invalid bookingID", http.StatusBadRequest)
		return authz.Actor{}, nil, false
	}

	b, err := h.store.Get(r.Context(), bookingID)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return authz.Actor{}, nil, false
	}

	if !actor.Can(action, b) {
		http.Error(w, "not authorized for this booking", http.StatusForbidden)
		return authz.Actor{}, nil, false
	}
	return actor, b, true
}
