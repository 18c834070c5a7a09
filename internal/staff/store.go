package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSettingsNotFound is returned when a practitioner has no telehealth settings row.
var ErrSettingsNotFound = errors.New("staff: telehealth settings not found")

// ErrStateRequired is returned when a regulated profession is queried without
// a client state to match licensure against.
var ErrStateRequired = errors.New("staff: client state required for regulated profession")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads practitioner profiles and telehealth settings.
type Store struct {
	db DB
}

// NewStore creates a staff store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// CandidateFilter narrows the practitioner pool before availability is consulted.
type CandidateFilter struct {
	Profession Profession
	Sex        *Sex    // client gender preference, nil = no preference
	State      *string // client location; required match for regulated professions
}

// Candidates returns practitioner profiles matching the filter. Gender and
// licensure are applied in SQL so excluded practitioners never surface.
func (s *Store) Candidates(ctx context.Context, f CandidateFilter) ([]Profile, error) {
	query := `
		SELECT user_id, profession, biological_sex, hourly_rate_cents, licensed_states
		FROM practitioner_profiles
		WHERE profession = $1 AND telehealth_enabled`
	args := []any{string(f.Profession)}

	if f.Sex != nil {
		args = append(args, string(*f.Sex))
		query += fmt.Sprintf(" AND biological_sex = $%d", len(args))
	}
	if f.Profession.Regulated() {
		if f.State == nil {
			return nil, fmt.Errorf("%w: %s", ErrStateRequired, f.Profession)
		}
		args = append(args, *f.State)
		query += fmt.Sprintf(" AND licensed_states @> ARRAY[$%d]::text[]", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("staff: list candidates: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		var profession, sex string
		if err := rows.Scan(&p.UserID, &profession, &sex, &p.HourlyRateCents, &p.LicensedStates); err != nil {
			return nil, fmt.Errorf("staff: scan candidate: %w", err)
		}
		p.Profession = Profession(profession)
		p.Sex = Sex(sex)
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetProfile returns a single practitioner profile.
func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, profession, biological_sex, hourly_rate_cents, licensed_states
		FROM practitioner_profiles
		WHERE user_id = $1`, userID)

	var p Profile
	var profession, sex string
	if err := row.Scan(&p.UserID, &profession, &sex, &p.HourlyRateCents, &p.LicensedStates); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("staff: profile %s: %w", userID, ErrSettingsNotFound)
		}
		return nil, fmt.Errorf("staff: get profile: %w", err)
	}
	p.Profession = Profession(profession)
	p.Sex = Sex(sex)
	return &p, nil
}

// GetSettings returns a practitioner's telehealth settings.
func (s *Store) GetSettings(ctx context.Context, userID uuid.UUID) (*Settings, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, auto_confirm, timezone
		FROM staff_telehealth_settings
		WHERE user_id = $1`, userID)

	var st Settings
	if err := row.Scan(&st.UserID, &st.AutoConfirm, &st.Timezone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("staff: get settings: %w", err)
	}
	return &st, nil
}

// UpsertSettings creates or updates a practitioner's telehealth settings.
func (s *Store) UpsertSettings(ctx context.Context, st *Settings) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO staff_telehealth_settings (user_id, auto_confirm, timezone)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET auto_confirm = $2, timezone = $3`,
		st.UserID, st.AutoConfirm, st.Timezone)
	if err != nil {
		return fmt.Errorf("staff: upsert settings: %w", err)
	}
	return nil
}
