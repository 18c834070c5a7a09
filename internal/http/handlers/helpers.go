package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/smartfuturesg/telehealth-platform/internal/availability"
	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeBookingError maps domain errors to HTTP statuses. Slot conflicts get
// their own status so clients know to re-run the search rather than fix input.
func writeBookingError(w http.ResponseWriter, logger *logging.Logger, err error) {
	switch {
	case errors.Is(err, bookings.ErrNotFound):
		http.Error(w, "booking not found", http.StatusNotFound)
	case errors.Is(err, bookings.ErrSlotConflict):
		http.Error(w, "slot no longer available", http.StatusConflict)
	case errors.Is(err, bookings.ErrUnauthorized):
		http.Error(w, "not authorized for this booking", http.StatusForbidden)
	case errors.Is(err, bookings.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, staff.ErrSettingsNotFound):
		http.Error(w, "practitioner has no telehealth settings", http.StatusNotFound)
	case errors.Is(err, availability.ErrExceptionNotFound):
		http.Error(w, "exception not found", http.StatusNotFound)
	case bookings.IsStateError(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		if logger == nil {
			logger = logging.Default()
		}
		logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
