package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists bookings, their status history, and room identifiers.
type Store struct {
	db DB
}

// NewStore creates a bookings store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const bookingColumns = `id, client_user_id, staff_user_id, profession,
	target_date, target_date_utc, start_idx, end_idx, start_idx_utc, end_idx_utc,
	start_slot_utc, end_slot_utc, duration_minutes, status,
	client_timezone, staff_timezone, consult_rate_cents, charged,
	payment_method_id, payment_transaction_id, notified, payment_notified, created_at, updated_at`

// CreateWithRecheck inserts a booking after re-verifying, inside the same
// transaction, that no non-canceled booking overlaps the buffered range for
// either party. The overlapping rows are locked FOR UPDATE so two concurrent
// creates cannot both pass the check. Returns ErrSlotConflict if the slot was
// taken between search and commit.
func (s *Store) CreateWithRecheck(ctx context.Context, b *Booking, buffered timeslot.Range, reporter Reporter) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var taken int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT id FROM bookings
			WHERE (staff_user_id = $1 OR client_user_id = $2)
			  AND status <> 'canceled'
			  AND start_slot_utc < $4 AND end_slot_utc > $3
			FOR UPDATE
		) overlapping`,
		b.StaffUserID, b.ClientUserID, int64(buffered.Start), int64(buffered.End),
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("bookings: recheck overlap: %w", err)
	}
	if taken > 0 {
		return ErrSlotConflict
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		b.ID, b.ClientUserID, b.StaffUserID, string(b.Profession),
		b.TargetDate, b.TargetDateUTC, b.StartIndex, b.EndIndex, b.StartIndexUTC, b.EndIndexUTC,
		int64(b.StartSlotUTC), int64(b.EndSlotUTC), b.DurationMinutes, string(b.Status),
		b.ClientTimezone, b.StaffTimezone, b.ConsultRateCents, b.Charged,
		b.PaymentMethodID, b.PaymentTransactionID, b.Notified, b.PaymentNotified, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("bookings: insert: %w", err)
	}

	if err := insertHistory(ctx, tx, b.ID, b.Status, reporter); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("bookings: commit create: %w", err)
	}
	return nil
}

// Get loads a booking by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

// ListForUser returns bookings where the user is either party, starting at or
// after the given absolute slot.
func (s *Store) ListForUser(ctx context.Context, userID uuid.UUID, from timeslot.AbsSlot) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE (client_user_id = $1 OR staff_user_id = $1) AND end_slot_utc > $2
		ORDER BY start_slot_utc ASC`, userID, int64(from))
	if err != nil {
		return nil, fmt.Errorf("bookings: list for user: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// BusyInterval is one non-canceled booking's occupied range for a practitioner.
type BusyInterval struct {
	StaffUserID uuid.UUID
	Range       timeslot.Range
}

// ListBusyIntervals returns the occupied UTC ranges of the given
// practitioners' non-canceled bookings overlapping the window. Comparison is
// on absolute UTC increments only.
func (s *Store) ListBusyIntervals(ctx context.Context, staffIDs []uuid.UUID, window timeslot.Range) ([]BusyInterval, error) {
	if len(staffIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT staff_user_id, start_slot_utc, end_slot_utc FROM bookings
		WHERE staff_user_id = ANY($1)
		  AND status <> 'canceled'
		  AND start_slot_utc < $3 AND end_slot_utc > $2`,
		staffIDs, int64(window.Start), int64(window.End))
	if err != nil {
		return nil, fmt.Errorf("bookings: list busy intervals: %w", err)
	}
	defer rows.Close()

	var result []BusyInterval
	for rows.Next() {
		var iv BusyInterval
		var startSlot, endSlot int64
		if err := rows.Scan(&iv.StaffUserID, &startSlot, &endSlot); err != nil {
			return nil, fmt.Errorf("bookings: scan busy interval: %w", err)
		}
		iv.Range = timeslot.Range{Start: timeslot.AbsSlot(startSlot), End: timeslot.AbsSlot(endSlot)}
		result = append(result, iv)
	}
	return result, rows.Err()
}

// UpdateStatus transitions a booking and appends the status-history entry in
// one transaction. Every expected source status must be able to reach the
// target per the lifecycle graph; the update is then guarded on those sources,
// and a booking found in any other status yields a StateError.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, reporter Reporter) (*Booking, error) {
	fromStrs := make([]string, len(from))
	for i, st := range from {
		if !CanTransition(st, to) {
			return nil, &StateError{From: st, To: to}
		}
		fromStrs[i] = string(st)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE bookings SET status = $1, updated_at = $2
		WHERE id = $3 AND status = ANY($4)
		RETURNING `+bookingColumns, string(to), time.Now().UTC(), id, fromStrs)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.stateErrorFor(ctx, id, to)
		}
		return nil, fmt.Errorf("bookings: transition update: %w", err)
	}

	if err := insertHistory(ctx, tx, id, to, reporter); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit transition: %w", err)
	}
	return b, nil
}

// stateErrorFor distinguishes a missing booking from an illegal transition.
func (s *Store) stateErrorFor(ctx context.Context, id uuid.UUID, to Status) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return &StateError{From: current.Status, To: to}
}

// History returns the append-only status log, oldest first.
func (s *Store) History(ctx context.Context, bookingID uuid.UUID) ([]StatusHistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, booking_id, status, reporter_id, reporter_role, created_at
		FROM booking_status_history
		WHERE booking_id = $1
		ORDER BY created_at ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("bookings: history: %w", err)
	}
	defer rows.Close()

	var entries []StatusHistoryEntry
	for rows.Next() {
		var e StatusHistoryEntry
		var status, role string
		var reporterID *uuid.UUID
		if err := rows.Scan(&e.ID, &e.BookingID, &status, &reporterID, &role, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("bookings: scan history: %w", err)
		}
		e.Status = Status(status)
		e.ReporterRole = ReporterRole(role)
		if reporterID != nil {
			e.ReporterID = *reporterID
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetCharged marks a booking charged with the provider transaction reference.
// Guarded on charged = false so a retried task cannot double-record.
func (s *Store) SetCharged(ctx context.Context, id uuid.UUID, transactionID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings SET charged = TRUE, payment_transaction_id = $1, updated_at = $2
		WHERE id = $3 AND charged = FALSE`, transactionID, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("bookings: set charged: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetNotified flips the reminder idempotency flag. Returns false if it was
// already set, letting a re-delivered task skip the duplicate send.
func (s *Store) SetNotified(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings SET notified = TRUE, updated_at = $1
		WHERE id = $2 AND notified = FALSE`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("bookings: set notified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetPaymentNotified flips the charge-notice idempotency flag.
func (s *Store) SetPaymentNotified(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings SET payment_notified = TRUE, updated_at = $1
		WHERE id = $2 AND payment_notified = FALSE`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("bookings: set payment notified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a booking and its history. Only abandonment of a pending
// booking may do this; every other path transitions status instead.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM booking_status_history WHERE booking_id = $1`, id); err != nil {
		return fmt.Errorf("bookings: delete history: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("bookings: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bookings: delete: no pending booking with id %s", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("bookings: commit delete: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID, status Status, reporter Reporter) error {
	var reporterID *uuid.UUID
	if reporter.ID != uuid.Nil {
		reporterID = &reporter.ID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_status_history (id, booking_id, status, reporter_id, reporter_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), bookingID, string(status), reporterID, string(reporter.Role), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("bookings: insert history: %w", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var profession, status string
	var startSlot, endSlot int64
	err := row.Scan(
		&b.ID, &b.ClientUserID, &b.StaffUserID, &profession,
		&b.TargetDate, &b.TargetDateUTC, &b.StartIndex, &b.EndIndex, &b.StartIndexUTC, &b.EndIndexUTC,
		&startSlot, &endSlot, &b.DurationMinutes, &status,
		&b.ClientTimezone, &b.StaffTimezone, &b.ConsultRateCents, &b.Charged,
		&b.PaymentMethodID, &b.PaymentTransactionID, &b.Notified, &b.PaymentNotified, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Profession = staff.Profession(profession)
	b.Status = Status(status)
	b.StartSlotUTC = timeslot.AbsSlot(startSlot)
	b.EndSlotUTC = timeslot.AbsSlot(endSlot)
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}
