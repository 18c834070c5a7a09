package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartfuturesg/telehealth-platform/internal/availability"
	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/internal/observability/metrics"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

var searchTracer = otel.Tracer("telehealth/search")

// ErrInvalidRequest marks search input the caller can correct and resubmit.
var ErrInvalidRequest = errors.New("invalid search request")

// StaffDirectory provides the filtered practitioner pool.
type StaffDirectory interface {
	Candidates(ctx context.Context, f staff.CandidateFilter) ([]staff.Profile, error)
}

// AvailabilityReader provides weekly grants and date exceptions.
type AvailabilityReader interface {
	ListWeekdaySlots(ctx context.Context, userIDs []uuid.UUID, weekday time.Weekday, startIdx, endIdx int) ([]availability.WeeklySlot, error)
	ListExceptions(ctx context.Context, userIDs []uuid.UUID, date time.Time, startIdx, endIdx int) ([]availability.Exception, error)
}

// BookingsReader provides occupied ranges for conflict subtraction.
type BookingsReader interface {
	ListBusyIntervals(ctx context.Context, staffIDs []uuid.UUID, window timeslot.Range) ([]bookings.BusyInterval, error)
}

// Policy holds the search time constants.
type Policy struct {
	LeadTime       time.Duration
	StartEndBuffer int
}

// Engine computes bookable slots: candidate practitioners free for a
// contiguous block, with buffer and lead-time constraints applied.
type Engine struct {
	staff        StaffDirectory
	availability AvailabilityReader
	bookings     BookingsReader
	policy       Policy
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
	now          func() time.Time
}

// NewEngine creates a search engine.
func NewEngine(staffDir StaffDirectory, avail AvailabilityReader, book BookingsReader, policy Policy, m *metrics.BookingMetrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		staff:        staffDir,
		availability: avail,
		bookings:     book,
		policy:       policy,
		metrics:      m,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Request is a client's availability query in their local coordinates.
type Request struct {
	Year             int
	Month            time.Month
	Day              int
	Timezone         string
	DurationMinutes  int
	Profession       staff.Profession
	GenderPreference *staff.Sex
	State            *string
}

// Practitioner is one bookable practitioner for a slot, with the display rate.
type Practitioner struct {
	UserID           uuid.UUID
	ConsultRateCents int32
}

// Slot is one candidate start with the practitioners free for it. Empty
// practitioner lists are dropped; a day with no availability yields an empty
// result, and offering alternate days is the caller's decision.
type Slot struct {
	StartIndex    int       // client-local increment
	StartLocal    time.Time // in the client's zone
	Practitioners []Practitioner
}

// Search runs the full availability algorithm for one client-local day.
func (e *Engine) Search(ctx context.Context, req Request) ([]Slot, error) {
	ctx, span := searchTracer.Start(ctx, "search.run", trace.WithAttributes(
		attribute.String("profession", string(req.Profession)),
		attribute.Int("duration_minutes", req.DurationMinutes),
	))
	defer span.End()

	started := e.now()

	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	if !req.Profession.Valid() {
		return nil, fmt.Errorf("%w: unknown profession %q", ErrInvalidRequest, req.Profession)
	}
	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timezone %q", ErrInvalidRequest, req.Timezone)
	}

	// Localize the window: the requested local day, clamped to lead time and
	// rounded up to the candidate alignment.
	dayStart := time.Date(req.Year, req.Month, req.Day, 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	windowStart := dayStart
	if earliest := timeslot.CeilToAlignment(e.now().Add(e.policy.LeadTime)); earliest.After(windowStart) {
		windowStart = earliest
	}
	if !windowStart.Before(dayEnd) {
		return nil, nil // day already out of reach
	}

	pool, err := e.staff.Candidates(ctx, staff.CandidateFilter{
		Profession: req.Profession,
		Sex:        req.GenderPreference,
		State:      req.State,
	})
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		e.metrics.ObserveSearch(e.now().Sub(started).Seconds(), true)
		return nil, nil
	}
	ids := make([]uuid.UUID, len(pool))
	for i, p := range pool {
		ids[i] = p.UserID
	}

	nslots := timeslot.SlotsIn(time.Duration(req.DurationMinutes) * time.Minute)
	buffer := e.policy.StartEndBuffer
	step := time.Duration(timeslot.AlignStep) * timeslot.Width

	// The union of every buffered candidate range, used to fetch availability
	// and conflicts once for the whole day. Candidate starts run up to the last
	// aligned increment of the day, so a long appointment near midnight spills
	// the window into the next day.
	outer := timeslot.RangeFrom(windowStart, nslots).Buffered(buffer)
	lastStart := dayEnd.Add(-step)
	outer.End = timeslot.RangeFrom(lastStart, nslots).Buffered(buffer).End

	cov, err := e.loadCoverage(ctx, ids, outer)
	if err != nil {
		return nil, err
	}
	busy, err := e.bookings.ListBusyIntervals(ctx, ids, outer)
	if err != nil {
		return nil, err
	}

	var slots []Slot
	for start := timeslot.CeilToAlignment(windowStart); start.Before(dayEnd); start = start.Add(step) {
		occupied := timeslot.RangeFrom(start, nslots)
		buffered := occupied.Buffered(buffer)

		var free []Practitioner
		for _, p := range pool {
			if !cov.covers(p.UserID, buffered) {
				continue
			}
			if overlapsBusy(busy, p.UserID, buffered) {
				continue
			}
			free = append(free, Practitioner{
				UserID:           p.UserID,
				ConsultRateCents: bookings.ConsultRateCents(p.HourlyRateCents, req.DurationMinutes),
			})
		}
		if len(free) > 0 {
			localStart := start.In(loc)
			slots = append(slots, Slot{
				StartIndex:    timeslot.IndexAt(localStart),
				StartLocal:    localStart,
				Practitioners: free,
			})
		}
	}

	e.metrics.ObserveSearch(e.now().Sub(started).Seconds(), len(slots) == 0)
	return slots, nil
}

func overlapsBusy(busy []bookings.BusyInterval, id uuid.UUID, r timeslot.Range) bool {
	for _, iv := range busy {
		if iv.StaffUserID == id && iv.Range.Overlaps(r) {
			return true
		}
	}
	return false
}
