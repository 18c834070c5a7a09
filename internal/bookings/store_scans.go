package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
)

// Horizon scans for the background scheduler. Every scan takes an explicit
// window so a scan spanning UTC midnight needs no special casing: the
// comparisons run on absolute increments.

// ListUpcomingUnnotified returns accepted bookings starting inside the window
// whose reminder has not been sent.
func (s *Store) ListUpcomingUnnotified(ctx context.Context, window timeslot.Range) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'accepted' AND notified = FALSE
		  AND start_slot_utc >= $1 AND start_slot_utc < $2
		ORDER BY start_slot_utc ASC`, int64(window.Start), int64(window.End))
	if err != nil {
		return nil, fmt.Errorf("bookings: list upcoming unnotified: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListChargeable returns accepted, uncharged bookings starting before the
// given slot (the charge horizon).
func (s *Store) ListChargeable(ctx context.Context, before timeslot.AbsSlot) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'accepted' AND charged = FALSE AND start_slot_utc < $1
		ORDER BY start_slot_utc ASC`, int64(before))
	if err != nil {
		return nil, fmt.Errorf("bookings: list chargeable: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListOverdueInProgress returns in-progress bookings whose scheduled end
// passed before the given slot. These calls were never explicitly ended.
func (s *Store) ListOverdueInProgress(ctx context.Context, endedBefore timeslot.AbsSlot) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'in_progress' AND end_slot_utc < $1
		ORDER BY end_slot_utc ASC`, int64(endedBefore))
	if err != nil {
		return nil, fmt.Errorf("bookings: list overdue in progress: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListStalePending returns pending bookings created before the cutoff. They
// are candidates for abandonment.
func (s *Store) ListStalePending(ctx context.Context, createdBefore time.Time) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC`, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("bookings: list stale pending: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListPastReviewWindow returns terminal bookings that still own live room
// resources and whose scheduled end passed before the given slot. Their
// transcripts are due for archival.
func (s *Store) ListPastReviewWindow(ctx context.Context, endedBefore timeslot.AbsSlot) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings b
		WHERE b.status IN ('completed', 'canceled')
		  AND b.end_slot_utc < $1
		  AND EXISTS (SELECT 1 FROM booking_rooms r WHERE r.booking_id = b.id)
		ORDER BY b.end_slot_utc ASC`, int64(endedBefore))
	if err != nil {
		return nil, fmt.Errorf("bookings: list past review window: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListNeedingCareTeamGrant returns accepted bookings starting inside the
// window that have no active care-team grant yet.
func (s *Store) ListNeedingCareTeamGrant(ctx context.Context, window timeslot.Range, now time.Time) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings b
		WHERE b.status = 'accepted'
		  AND b.start_slot_utc >= $1 AND b.start_slot_utc < $2
		  AND NOT EXISTS (
			SELECT 1 FROM care_team_grants g
			WHERE g.booking_id = b.id AND g.expires_at > $3
		  )
		ORDER BY b.start_slot_utc ASC`, int64(window.Start), int64(window.End), now)
	if err != nil {
		return nil, fmt.Errorf("bookings: list needing care team grant: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListAcceptedUnpaymentNotified returns accepted bookings inside the charge
// warning window whose payment notice has not gone out.
func (s *Store) ListAcceptedUnpaymentNotified(ctx context.Context, before timeslot.AbsSlot) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'accepted' AND payment_notified = FALSE AND start_slot_utc < $1
		ORDER BY start_slot_utc ASC`, int64(before))
	if err != nil {
		return nil, fmt.Errorf("bookings: list payment unnotified: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}
