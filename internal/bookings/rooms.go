package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRoomsNotFound is returned when a booking has no live room resources.
var ErrRoomsNotFound = errors.New("booking rooms not found")

// SaveRooms records the external conversation/video identifiers for a booking.
func (s *Store) SaveRooms(ctx context.Context, r *Rooms) error {
	r.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_rooms (booking_id, conversation_id, video_room_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (booking_id) DO UPDATE SET conversation_id = $2, video_room_id = $3`,
		r.BookingID, r.ConversationID, r.VideoRoomID, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("bookings: save rooms: %w", err)
	}
	return nil
}

// GetRooms loads the live room identifiers for a booking.
func (s *Store) GetRooms(ctx context.Context, bookingID uuid.UUID) (*Rooms, error) {
	row := s.db.QueryRow(ctx, `
		SELECT booking_id, conversation_id, video_room_id, created_at
		FROM booking_rooms WHERE booking_id = $1`, bookingID)

	var r Rooms
	if err := row.Scan(&r.BookingID, &r.ConversationID, &r.VideoRoomID, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomsNotFound
		}
		return nil, fmt.Errorf("bookings: get rooms: %w", err)
	}
	return &r, nil
}

// DeleteRooms removes the room row once the external resources are torn down.
func (s *Store) DeleteRooms(ctx context.Context, bookingID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM booking_rooms WHERE booking_id = $1`, bookingID)
	if err != nil {
		return fmt.Errorf("bookings: delete rooms: %w", err)
	}
	return nil
}
