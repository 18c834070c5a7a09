package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
)

// ErrExceptionNotFound is returned when a date exception does not exist or
// belongs to another practitioner.
var ErrExceptionNotFound = errors.New("availability exception not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists recurring weekly availability and date exceptions.
type Store struct {
	db DB
}

// NewStore creates an availability store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ReplaceWeekly swaps a practitioner's entire weekly schedule in one
// transaction. Practitioners resubmit the full week, so partial updates are
// never needed.
func (s *Store) ReplaceWeekly(ctx context.Context, userID uuid.UUID, slots []WeeklySlot) error {
	for _, slot := range slots {
		if slot.Index < 1 || slot.Index > timeslot.Count {
			return fmt.Errorf("availability: index %d out of range", slot.Index)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("availability: begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM availabilities WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("availability: clear weekly: %w", err)
	}
	for _, slot := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO availabilities (user_id, day_of_week, time_increment_idx)
			VALUES ($1, $2, $3)`,
			userID, int(slot.Weekday), slot.Index)
		if err != nil {
			return fmt.Errorf("availability: insert weekly slot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("availability: commit replace: %w", err)
	}
	return nil
}

// ListWeekly returns a practitioner's full weekly schedule.
func (s *Store) ListWeekly(ctx context.Context, userID uuid.UUID) ([]WeeklySlot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, day_of_week, time_increment_idx
		FROM availabilities
		WHERE user_id = $1
		ORDER BY day_of_week, time_increment_idx`, userID)
	if err != nil {
		return nil, fmt.Errorf("availability: list weekly: %w", err)
	}
	defer rows.Close()
	return scanWeekly(rows)
}

// ListWeekdaySlots returns weekly grants for a set of practitioners limited
// to one weekday and an inclusive index span. This is the search engine's
// coverage query.
func (s *Store) ListWeekdaySlots(ctx context.Context, userIDs []uuid.UUID, weekday time.Weekday, startIdx, endIdx int) ([]WeeklySlot, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT user_id, day_of_week, time_increment_idx
		FROM availabilities
		WHERE user_id = ANY($1) AND day_of_week = $2 AND time_increment_idx BETWEEN $3 AND $4`,
		userIDs, int(weekday), startIdx, endIdx)
	if err != nil {
		return nil, fmt.Errorf("availability: list weekday slots: %w", err)
	}
	defer rows.Close()
	return scanWeekly(rows)
}

// ListExceptions returns date-specific overrides for a set of practitioners
// on one UTC day within an inclusive index span.
func (s *Store) ListExceptions(ctx context.Context, userIDs []uuid.UUID, date time.Time, startIdx, endIdx int) ([]Exception, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, exception_date, time_increment_idx, is_busy
		FROM availability_exceptions
		WHERE user_id = ANY($1) AND exception_date = $2 AND time_increment_idx BETWEEN $3 AND $4`,
		userIDs, date, startIdx, endIdx)
	if err != nil {
		return nil, fmt.Errorf("availability: list exceptions: %w", err)
	}
	defer rows.Close()

	var result []Exception
	for rows.Next() {
		var e Exception
		if err := rows.Scan(&e.ID, &e.UserID, &e.Date, &e.Index, &e.Busy); err != nil {
			return nil, fmt.Errorf("availability: scan exception: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// AddException records a one-off availability override.
func (s *Store) AddException(ctx context.Context, e *Exception) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Index < 1 || e.Index > timeslot.Count {
		return fmt.Errorf("availability: index %d out of range", e.Index)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO availability_exceptions (id, user_id, exception_date, time_increment_idx, is_busy)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserID, e.Date, e.Index, e.Busy)
	if err != nil {
		return fmt.Errorf("availability: add exception: %w", err)
	}
	return nil
}

// DeleteException removes an override.
func (s *Store) DeleteException(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM availability_exceptions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("availability: delete exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

func scanWeekly(rows pgx.Rows) ([]WeeklySlot, error) {
	var result []WeeklySlot
	for rows.Next() {
		var slot WeeklySlot
		var weekday int
		if err := rows.Scan(&slot.UserID, &weekday, &slot.Index); err != nil {
			return nil, fmt.Errorf("availability: scan weekly slot: %w", err)
		}
		slot.Weekday = time.Weekday(weekday)
		result = append(result, slot)
	}
	return result, rows.Err()
}
