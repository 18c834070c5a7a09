package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/internal/observability/metrics"
	"github.com/smartfuturesg/telehealth-platform/internal/queue"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

// BookingScanner lists bookings due for background work. Each scan takes an
// explicit cutoff so a tick near UTC midnight needs no special casing.
type BookingScanner interface {
	ListUpcomingUnnotified(ctx context.Context, window timeslot.Range) ([]bookings.Booking, error)
	ListChargeable(ctx context.Context, before timeslot.AbsSlot) ([]bookings.Booking, error)
	ListAcceptedUnpaymentNotified(ctx context.Context, before timeslot.AbsSlot) ([]bookings.Booking, error)
	ListNeedingCareTeamGrant(ctx context.Context, window timeslot.Range, now time.Time) ([]bookings.Booking, error)
	ListOverdueInProgress(ctx context.Context, endedBefore timeslot.AbsSlot) ([]bookings.Booking, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]bookings.Booking, error)
	ListPastReviewWindow(ctx context.Context, endedBefore timeslot.AbsSlot) ([]bookings.Booking, error)
}

// GrantPurger drops expired care-team grants.
type GrantPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Publisher enqueues one-shot tasks for the telehealth worker.
type Publisher interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

// Policy carries the horizons the scheduler scans with.
type Policy struct {
	ReminderHorizon     time.Duration
	ChargeHorizon       time.Duration
	CareTeamGrantLead   time.Duration
	PendingAbandonAfter time.Duration
	OverdueCallGrace    time.Duration
	ReviewWindow        time.Duration
}

// Scheduler turns horizon scans into queued tasks. Enqueueing is at-least-once:
// the worker re-checks booking state, so a duplicate task is harmless.
type Scheduler struct {
	store   BookingScanner
	grants  GrantPurger
	pub     Publisher
	policy  Policy
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func New(store BookingScanner, grants GrantPurger, pub Publisher, policy Policy, m *metrics.BookingMetrics, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:   store,
		grants:  grants,
		pub:     pub,
		policy:  policy,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Run ticks ProcessDue at the given interval until ctx is canceled. A failed
// tick is logged and retried on the next interval.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ProcessDue(ctx); err != nil {
				s.logger.Error("scheduler: tick failed", "error", err)
			}
		}
	}
}

// ProcessDue runs every scan once and enqueues a task per due booking. It
// returns the number of tasks enqueued; a scan failure aborts the tick so the
// next one retries from scratch.
func (s *Scheduler) ProcessDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	total := 0

	scans := []struct {
		kind queue.Kind
		list func(context.Context) ([]bookings.Booking, error)
	}{
		{queue.KindRemind, func(ctx context.Context) ([]bookings.Booking, error) {
			window := timeslot.Range{Start: timeslot.AbsAt(now), End: timeslot.AbsAt(now.Add(s.policy.ReminderHorizon))}
			return s.store.ListUpcomingUnnotified(ctx, window)
		}},
		{queue.KindPaymentNotice, func(ctx context.Context) ([]bookings.Booking, error) {
			// The notice leads the charge by one more horizon.
			return s.store.ListAcceptedUnpaymentNotified(ctx, timeslot.AbsAt(now.Add(2*s.policy.ChargeHorizon)))
		}},
		{queue.KindCharge, func(ctx context.Context) ([]bookings.Booking, error) {
			return s.store.ListChargeable(ctx, timeslot.AbsAt(now.Add(s.policy.ChargeHorizon)))
		}},
		{queue.KindCareTeamGrant, func(ctx context.Context) ([]bookings.Booking, error) {
			window := timeslot.Range{Start: timeslot.AbsAt(now), End: timeslot.AbsAt(now.Add(s.policy.CareTeamGrantLead))}
			return s.store.ListNeedingCareTeamGrant(ctx, window, now)
		}},
		{queue.KindCompleteOverdue, func(ctx context.Context) ([]bookings.Booking, error) {
			return s.store.ListOverdueInProgress(ctx, timeslot.AbsAt(now.Add(-s.policy.OverdueCallGrace)))
		}},
		{queue.KindAbandon, func(ctx context.Context) ([]bookings.Booking, error) {
			return s.store.ListStalePending(ctx, now.Add(-s.policy.PendingAbandonAfter))
		}},
		{queue.KindArchiveTranscript, func(ctx context.Context) ([]bookings.Booking, error) {
			return s.store.ListPastReviewWindow(ctx, timeslot.AbsAt(now.Add(-s.policy.ReviewWindow)))
		}},
	}

	for _, scan := range scans {
		due, err := scan.list(ctx)
		if err != nil {
			return total, fmt.Errorf("scheduler: %s scan: %w", scan.kind, err)
		}
		for _, b := range due {
			if err := s.pub.Enqueue(ctx, queue.Task{Kind: scan.kind, BookingID: b.ID}); err != nil {
				return total, fmt.Errorf("scheduler: enqueue %s for booking %s: %w", scan.kind, b.ID, err)
			}
			s.metrics.ObserveTask(string(scan.kind), "enqueued")
			total++
		}
		if len(due) > 0 {
			s.logger.Info("scheduler: tasks enqueued", "kind", string(scan.kind), "count", len(due))
		}
	}

	if purged, err := s.grants.PurgeExpired(ctx); err != nil {
		s.logger.Error("scheduler: purge expired grants", "error", err)
	} else if purged > 0 {
		s.logger.Info("scheduler: expired care-team grants purged", "count", purged)
	}

	return total, nil
}
