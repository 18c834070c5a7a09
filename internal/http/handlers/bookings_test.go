package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfuturesg/telehealth-platform/internal/authz"
	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/internal/http/middleware"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

var bookingCols = []string{
	"id", "client_user_id", "staff_user_id", "profession",
	"target_date", "target_date_utc", "start_idx", "end_idx", "start_idx_utc", "end_idx_utc",
	"start_slot_utc", "end_slot_utc", "duration_minutes", "status",
	"client_timezone", "staff_timezone", "consult_rate_cents", "charged",
	"payment_method_id", "payment_transaction_id", "notified", "payment_notified", "created_at", "updated_at",
}

func sampleBooking(status bookings.Status) *bookings.Booking {
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	return &bookings.Booking{
		ID:               uuid.New(),
		ClientUserID:     uuid.New(),
		StaffUserID:      uuid.New(),
		Profession:       staff.ProfessionTherapist,
		TargetDate:       day,
		TargetDateUTC:    day,
		StartIndex:       121,
		EndIndex:         127,
		StartIndexUTC:    121,
		EndIndexUTC:      127,
		StartSlotUTC:     5910000,
		EndSlotUTC:       5910006,
		DurationMinutes:  30,
		Status:           status,
		ClientTimezone:   "UTC",
		StaffTimezone:    "UTC",
		ConsultRateCents: 5000,
		CreatedAt:        day,
		UpdatedAt:        day,
	}
}

func bookingRow(b *bookings.Booking) *pgxmock.Rows {
	return pgxmock.NewRows(bookingCols).AddRow(
		b.ID, b.ClientUserID, b.StaffUserID, string(b.Profession),
		b.TargetDate, b.TargetDateUTC, b.StartIndex, b.EndIndex, b.StartIndexUTC, b.EndIndexUTC,
		int64(b.StartSlotUTC), int64(b.EndSlotUTC), b.DurationMinutes, string(b.Status),
		b.ClientTimezone, b.StaffTimezone, b.ConsultRateCents, b.Charged,
		b.PaymentMethodID, b.PaymentTransactionID, b.Notified, b.PaymentNotified, b.CreatedAt, b.UpdatedAt,
	)
}

func newBookingsFixture(t *testing.T) (*BookingsHandler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewBookingsHandler(nil, bookings.NewStore(mock), logging.New("error")), mock
}

func requestAs(r *http.Request, actor authz.Actor) *http.Request {
	return r.WithContext(middleware.WithActor(r.Context(), actor))
}

func withBookingID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("bookingID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateBookingUnauthenticated(t *testing.T) {
	h, _ := newBookingsFixture(t)

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader("{}")))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingRequiresClientRole(t *testing.T) {
	h, _ := newBookingsFixture(t)

	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader("{}")),
		authz.Actor{ID: uuid.New(), Role: authz.RolePractitioner})
	h.Create(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBookingRejectsBadStaffID(t *testing.T) {
	h, _ := newBookingsFixture(t)

	body := `{"staff_user_id":"not-a-uuid","profession":"therapist"}`
	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body)),
		authz.Actor{ID: uuid.New(), Role: authz.RoleClient})
	h.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBookingReturnsHistory(t *testing.T) {
	h, mock := newBookingsFixture(t)
	b := sampleBooking(bookings.StatusAccepted)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs(b.ID).
		WillReturnRows(bookingRow(b))
	mock.ExpectQuery("FROM booking_status_history").
		WithArgs(b.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "booking_id", "status", "reporter_id", "reporter_role", "created_at"}).
			AddRow(uuid.New(), b.ID, "pending", &b.ClientUserID, "client", b.CreatedAt).
			AddRow(uuid.New(), b.ID, "accepted", (*uuid.UUID)(nil), "system", b.CreatedAt.Add(time.Minute)))

	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodGet, "/bookings/"+b.ID.String(), nil),
		authz.Actor{ID: b.ClientUserID, Role: authz.RoleClient})
	h.Get(rec, withBookingID(req, b.ID.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	var detail BookingDetailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	assert.Equal(t, b.ID.String(), detail.ID)
	assert.Equal(t, "accepted", detail.Status)
	require.Len(t, detail.History, 2)
	assert.Equal(t, b.ClientUserID.String(), detail.History[0].ReporterID)
	assert.Empty(t, detail.History[1].ReporterID)
	assert.Equal(t, "system", detail.History[1].ReporterRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookingForbiddenForUnrelatedClient(t *testing.T) {
	h, mock := newBookingsFixture(t)
	b := sampleBooking(bookings.StatusPending)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs(b.ID).
		WillReturnRows(bookingRow(b))

	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodGet, "/bookings/"+b.ID.String(), nil),
		authz.Actor{ID: uuid.New(), Role: authz.RoleClient})
	h.Get(rec, withBookingID(req, b.ID.String()))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookingNotFound(t *testing.T) {
	h, mock := newBookingsFixture(t)
	id := uuid.New()

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodGet, "/bookings/"+id.String(), nil),
		authz.Actor{ID: uuid.New(), Role: authz.RoleClient})
	h.Get(rec, withBookingID(req, id.String()))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookingInvalidID(t *testing.T) {
	h, _ := newBookingsFixture(t)

	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodGet, "/bookings/nope", nil),
		authz.Actor{ID: uuid.New(), Role: authz.RoleClient})
	h.Get(rec, withBookingID(req, "nope"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBookingsParsesFromDate(t *testing.T) {
	h, mock := newBookingsFixture(t)
	b := sampleBooking(bookings.StatusAccepted)
	from := timeslot.AbsAt(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))

	mock.ExpectQuery("OR staff_user_id").
		WithArgs(b.ClientUserID, int64(from)).
		WillReturnRows(bookingRow(b))

	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodGet, "/bookings?from=2026-03-09", nil),
		authz.Actor{ID: b.ClientUserID, Role: authz.RoleClient})
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Bookings []BookingResponse `json:"bookings"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Bookings, 1)
	assert.Equal(t, b.ID.String(), resp.Bookings[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBookingsRejectsBadFromDate(t *testing.T) {
	h, _ := newBookingsFixture(t)

	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodGet, "/bookings?from=soon", nil),
		authz.Actor{ID: uuid.New(), Role: authz.RoleClient})
	h.List(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptForbiddenForClient(t *testing.T) {
	h, mock := newBookingsFixture(t)
	b := sampleBooking(bookings.StatusPending)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs(b.ID).
		WillReturnRows(bookingRow(b))

	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodPost, "/bookings/"+b.ID.String()+"/accept", nil),
		authz.Actor{ID: b.ClientUserID, Role: authz.RoleClient})
	h.Accept(rec, withBookingID(req, b.ID.String()))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartForbiddenForOtherPractitioner(t *testing.T) {
	h, mock := newBookingsFixture(t)
	b := sampleBooking(bookings.StatusAccepted)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs(b.ID).
		WillReturnRows(bookingRow(b))

	rec := httptest.NewRecorder()
	req := requestAs(httptest.NewRequest(http.MethodPost, "/bookings/"+b.ID.String()+"/start", nil),
		authz.Actor{ID: uuid.New(), Role: authz.RolePractitioner})
	h.Start(rec, withBookingID(req, b.ID.String()))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
