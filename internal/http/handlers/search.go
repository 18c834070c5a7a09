package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/smartfuturesg/telehealth-platform/internal/search"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

// SearchHandler exposes the availability search.
type SearchHandler struct {
	engine *search.Engine
	logger *logging.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(engine *search.Engine, logger *logging.Logger) *SearchHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SearchHandler{engine: engine, logger: logger}
}

// SearchRequest asks for bookable slots on one client-local day.
type SearchRequest struct {
	Year             int    `json:"year"`
	Month            int    `json:"month"`
	Day              int    `json:"day"`
	Timezone         string `json:"timezone"`
	DurationMinutes  int    `json:"duration_minutes"`
	Profession       string `json:"profession"`
	GenderPreference string `json:"gender_preference,omitempty"`
	State            string `json:"state,omitempty"`
}

// PractitionerResponse is one bookable practitioner at a slot.
type PractitionerResponse struct {
	UserID           string `json:"user_id"`
	ConsultRateCents int32  `json:"consult_rate_cents"`
}

// SlotResponse is one bookable start time.
type SlotResponse struct {
	StartIndex    int                    `json:"start_index"`
	StartsAtLocal string                 `json:"starts_at_local"`
	Practitioners []PractitionerResponse `json:"practitioners"`
}

// Search returns every bookable slot for the requested day.
// POST /search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	engineReq := search.Request{
		Year:            req.Year,
		Month:           time.Month(req.Month),
		Day:             req.Day,
		Timezone:        req.Timezone,
		DurationMinutes: req.DurationMinutes,
		Profession:      staff.Profession(req.Profession),
	}
	if req.GenderPreference != "" {
		sex := staff.Sex(req.GenderPreference)
		if !sex.Valid() {
			http.Error(w, "invalid gender_preference", http.StatusBadRequest)
			return
		}
		engineReq.GenderPreference = &sex
	}
	if req.State != "" {
		engineReq.State = &req.State
	}

	slots, err := h.engine.Search(r.Context(), engineReq)
	if err != nil {
		if errors.Is(err, search.ErrInvalidRequest) || errors.Is(err, staff.ErrStateRequired) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("search failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		resp := SlotResponse{
			StartIndex:    s.StartIndex,
			StartsAtLocal: s.StartLocal.Format(time.RFC3339),
			Practitioners: make([]PractitionerResponse, 0, len(s.Practitioners)),
		}
		for _, p := range s.Practitioners {
			resp.Practitioners = append(resp.Practitioners, PractitionerResponse{
				UserID:           p.UserID.String(),
				ConsultRateCents: p.ConsultRateCents,
			})
		}
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, map[string]any{"slots": out})
}
