package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrContactNotFound is returned when a user has no contact row.
var ErrContactNotFound = errors.New("notify: contact not found")

// Contact is where booking notifications for a user go.
type Contact struct {
	UserID   uuid.UUID
	Email    string
	FullName string
}

// ContactDirectory resolves a user id to a deliverable address.
type ContactDirectory interface {
	GetContact(ctx context.Context, userID uuid.UUID) (*Contact, error)
}

// DB is the minimal database surface the contact store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ContactStore reads contact details from the users table.
type ContactStore struct {
	db DB
}

func NewContactStore(db DB) *ContactStore {
	return &ContactStore{db: db}
}

func (s *ContactStore) GetContact(ctx context.Context, userID uuid.UUID) (*Contact, error) {
	var c Contact
	err := s.db.QueryRow(ctx, `
		SELECT id, email, full_name FROM users WHERE id = $1`, userID).
		Scan(&c.UserID, &c.Email, &c.FullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("notify: get contact: %w", err)
	}
	return &c, nil
}
