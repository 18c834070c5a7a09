package careteam

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Grant is a temporary care-team membership letting a practitioner read a
// client's records around an appointment. Grants expire on their own; reads
// filter on expires_at rather than relying on cleanup.
type Grant struct {
	ID           uuid.UUID
	StaffUserID  uuid.UUID
	ClientUserID uuid.UUID
	BookingID    uuid.UUID
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Store persists temporary care-team grants.
type Store struct {
	db DB
}

// NewStore creates a care-team store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// GrantTemporary records an auto-expiring grant for a booking. Re-granting
// for the same booking extends the expiry instead of duplicating rows.
func (s *Store) GrantTemporary(ctx context.Context, staffID, clientID, bookingID uuid.UUID, expiresAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO care_team_grants (id, staff_user_id, client_user_id, booking_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (booking_id) DO UPDATE SET expires_at = $5`,
		uuid.New(), staffID, clientID, bookingID, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("careteam: grant: %w", err)
	}
	return nil
}

// HasActiveGrant reports whether the practitioner currently holds a live
// grant for the client.
func (s *Store) HasActiveGrant(ctx context.Context, staffID, clientID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM care_team_grants
			WHERE staff_user_id = $1 AND client_user_id = $2 AND expires_at > $3
		)`, staffID, clientID, time.Now().UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("careteam: check grant: %w", err)
	}
	return exists, nil
}

// PurgeExpired removes grants past their expiry. Run opportunistically by the
// scheduler; correctness never depends on it.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM care_team_grants WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("careteam: purge expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
