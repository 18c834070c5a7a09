package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
)

func TestActorCan(t *testing.T) {
	staffID, clientID := uuid.New(), uuid.New()
	b := &bookings.Booking{ID: uuid.New(), StaffUserID: staffID, ClientUserID: clientID}

	staff := Actor{ID: staffID, Role: RolePractitioner}
	client := Actor{ID: clientID, Role: RoleClient}
	otherStaff := Actor{ID: uuid.New(), Role: RolePractitioner}
	otherClient := Actor{ID: uuid.New(), Role: RoleClient}
	admin := Actor{ID: uuid.New(), Role: RoleAdmin}

	tests := []struct {
		name   string
		actor  Actor
		action Action
		want   bool
	}{
		{"staff accepts own booking", staff, ActionAccept, true},
		{"client cannot accept", client, ActionAccept, false},
		{"other staff cannot accept", otherStaff, ActionAccept, false},
		{"staff starts own booking", staff, ActionStart, true},
		{"staff completes own booking", staff, ActionComplete, true},
		{"client cancels own booking", client, ActionCancel, true},
		{"staff cancels own booking", staff, ActionCancel, true},
		{"stranger cannot cancel", otherClient, ActionCancel, false},
		{"client views own booking", client, ActionView, true},
		{"stranger cannot view", otherClient, ActionView, false},
		{"admin can do anything", admin, ActionComplete, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actor.Can(tt.action, b))
		})
	}

	assert.False(t, staff.Can(ActionView, nil))
	assert.False(t, staff.Can(Action("booking.unknown"), b))
}

func TestActorReporter(t *testing.T) {
	staff := Actor{ID: uuid.New(), Role: RolePractitioner}
	r := staff.Reporter()
	assert.Equal(t, bookings.RolePractitioner, r.Role)
	assert.Equal(t, staff.ID, r.ID)

	client := Actor{ID: uuid.New(), Role: RoleClient}
	assert.Equal(t, bookings.RoleClient, client.Reporter().Role)
}
