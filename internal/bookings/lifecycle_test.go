package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfuturesg/telehealth-platform/internal/locks"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
)

type fakeStaffDir struct {
	settings *staff.Settings
	profile  *staff.Profile
}

func (f *fakeStaffDir) GetSettings(ctx context.Context, userID uuid.UUID) (*staff.Settings, error) {
	return f.settings, nil
}

func (f *fakeStaffDir) GetProfile(ctx context.Context, userID uuid.UUID) (*staff.Profile, error) {
	return f.profile, nil
}

type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (f *fakeLocker) Acquire(ctx context.Context, staffID uuid.UUID, r timeslot.Range) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func() { f.released++ }, nil
}

type fakePayments struct {
	outcome  *ChargeOutcome
	chargErr error
	charges  int
	refunds  []string
	voids    []string
}

func (f *fakePayments) Charge(ctx context.Context, b *Booking) (*ChargeOutcome, error) {
	f.charges++
	return f.outcome, f.chargErr
}

func (f *fakePayments) Refund(ctx context.Context, transactionID string, amountCents int32) error {
	f.refunds = append(f.refunds, transactionID)
	return nil
}

func (f *fakePayments) Void(ctx context.Context, transactionID string) error {
	f.voids = append(f.voids, transactionID)
	return nil
}

type fakeRooms struct {
	createRoomErr error
	calls         []string
}

func (f *fakeRooms) CreateConversation(ctx context.Context, b *Booking) (string, error) {
	f.calls = append(f.calls, "create_conversation")
	return "CH123", nil
}

func (f *fakeRooms) CreateRoom(ctx context.Context, b *Booking) (string, error) {
	if f.createRoomErr != nil {
		return "", f.createRoomErr
	}
	f.calls = append(f.calls, "create_room")
	return "RM123", nil
}

func (f *fakeRooms) CloseRoom(ctx context.Context, roomID string) error {
	f.calls = append(f.calls, "close_room:"+roomID)
	return nil
}

func (f *fakeRooms) DeleteConversation(ctx context.Context, conversationID string) error {
	f.calls = append(f.calls, "delete_conversation:"+conversationID)
	return nil
}

type fakeArchiver struct {
	err   error
	calls []string
}

func (f *fakeArchiver) Archive(ctx context.Context, b *Booking, conversationID string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, "archive:"+conversationID)
	return nil
}

type fakeNotifier struct {
	accepted  int
	canceled  []string
	reminders int
	charges   int
	receipts  int
}

func (f *fakeNotifier) BookingAccepted(ctx context.Context, b *Booking) error {
	f.accepted++
	return nil
}

func (f *fakeNotifier) BookingCanceled(ctx context.Context, b *Booking, reason string) error {
	f.canceled = append(f.canceled, reason)
	return nil
}

func (f *fakeNotifier) AppointmentReminder(ctx context.Context, b *Booking) error {
	f.reminders++
	return nil
}

func (f *fakeNotifier) UpcomingCharge(ctx context.Context, b *Booking) error {
	f.charges++
	return nil
}

func (f *fakeNotifier) PaymentReceipt(ctx context.Context, b *Booking) error {
	f.receipts++
	return nil
}

type fakeCareTeam struct {
	grants []uuid.UUID
	expiry time.Time
}

func (f *fakeCareTeam) GrantTemporary(ctx context.Context, staffID, clientID, bookingID uuid.UUID, expiresAt time.Time) error {
	f.grants = append(f.grants, bookingID)
	f.expiry = expiresAt
	return nil
}

type lifecycleFixture struct {
	lifecycle *Lifecycle
	mock      pgxmock.PgxPoolIface
	staff     *fakeStaffDir
	locker    *fakeLocker
	payments  *fakePayments
	rooms     *fakeRooms
	archiver  *fakeArchiver
	notifier  *fakeNotifier
	careTeam  *fakeCareTeam
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	f := &lifecycleFixture{
		mock: mock,
		staff: &fakeStaffDir{
			settings: &staff.Settings{AutoConfirm: true, Timezone: "America/New_York"},
			profile:  &staff.Profile{Profession: "therapist", HourlyRateCents: 10000},
		},
		locker:   &fakeLocker{},
		payments: &fakePayments{outcome: &ChargeOutcome{Approved: true, TransactionID: "txn-1"}},
		rooms:    &fakeRooms{},
		archiver: &fakeArchiver{},
		notifier: &fakeNotifier{},
		careTeam: &fakeCareTeam{},
	}
	f.lifecycle = NewLifecycle(LifecycleDeps{
		Store:    NewStore(mock),
		Staff:    f.staff,
		Locker:   f.locker,
		Payments: f.payments,
		Rooms:    f.rooms,
		Archiver: f.archiver,
		Notifier: f.notifier,
		CareTeam: f.careTeam,
		Policy: Policy{
			LeadTime:       2 * time.Hour,
			StartEndBuffer: 1,
			ReviewWindow:   72 * time.Hour,
		},
	})
	f.lifecycle.now = func() time.Time {
		return time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	}
	return f
}

func validCreateRequest() CreateRequest {
	return CreateRequest{
		ClientUserID:    uuid.New(),
		StaffUserID:     uuid.New(),
		Profession:      "therapist",
		Year:            2026,
		Month:           time.March,
		Day:             10,
		StartIndex:      121, // 10:00 local
		DurationMinutes: 30,
		ClientTimezone:  "UTC",
		PaymentMethodID: "pm-1",
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	for name, mutate := range map[string]func(*CreateRequest){
		"zero duration":     func(r *CreateRequest) { r.DurationMinutes = 0 },
		"start index low":   func(r *CreateRequest) { r.StartIndex = 0 },
		"start index high":  func(r *CreateRequest) { r.StartIndex = timeslot.Count + 1 },
		"bad timezone":      func(r *CreateRequest) { r.ClientTimezone = "Mars/Olympus" },
		"inside lead time":  func(r *CreateRequest) { r.Day = 9; r.StartIndex = 13 }, // 01:00, now is 00:00
		"wrong profession":  func(r *CreateRequest) { r.Profession = "dietitian" },
	} {
		t.Run(name, func(t *testing.T) {
			req := validCreateRequest()
			mutate(&req)
			_, err := f.lifecycle.Create(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestCreateAutoConfirmAccepted(t *testing.T) {
	f := newLifecycleFixture(t)
	req := validCreateRequest()

	start := timeslot.LocalStart(req.Year, req.Month, req.Day, req.StartIndex, time.UTC)
	occupied := timeslot.RangeFrom(start, 6)
	buffered := occupied.Buffered(1)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT COUNT").
		WithArgs(req.StaffUserID, req.ClientUserID, int64(buffered.Start), int64(buffered.End)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	f.mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), req.ClientUserID, req.StaffUserID, "therapist",
			pgxmock.AnyArg(), pgxmock.AnyArg(), req.StartIndex, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			int64(occupied.Start), int64(occupied.End), 30, "accepted",
			"UTC", "America/New_York", int32(5000), false,
			"pm-1", "", false, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec("INSERT INTO booking_status_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "accepted", pgxmock.AnyArg(), "client", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()
	f.mock.ExpectExec("INSERT INTO booking_rooms").
		WithArgs(pgxmock.AnyArg(), "CH123", "RM123", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	b, err := f.lifecycle.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusAccepted, b.Status)
	assert.Equal(t, int32(5000), b.ConsultRateCents) // $100/hr prorated to 30 min
	assert.Equal(t, "America/New_York", b.StaffTimezone)
	assert.Equal(t, timeslot.AbsSlot(6), b.EndSlotUTC-b.StartSlotUTC)
	assert.Equal(t, []string{"create_conversation", "create_room"}, f.rooms.calls)
	assert.Equal(t, 1, f.notifier.accepted)
	assert.Equal(t, 1, f.locker.acquired)
	assert.Equal(t, 1, f.locker.released)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateAutoConfirmRoomFailureCleansUpConversation(t *testing.T) {
	f := newLifecycleFixture(t)
	f.rooms.createRoomErr = errors.New("twilio down")

	// No expectations: provisioning fails before the insert is attempted.
	_, err := f.lifecycle.Create(context.Background(), validCreateRequest())
	require.Error(t, err)

	assert.Contains(t, f.rooms.calls, "delete_conversation:CH123")
	assert.Equal(t, 0, f.notifier.accepted)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreatePendingSkipsProvisioning(t *testing.T) {
	f := newLifecycleFixture(t)
	f.staff.settings = &staff.Settings{AutoConfirm: false, Timezone: "America/New_York"}
	req := validCreateRequest()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT COUNT").
		WithArgs(req.StaffUserID, req.ClientUserID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	f.mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), req.ClientUserID, req.StaffUserID, "therapist",
			pgxmock.AnyArg(), pgxmock.AnyArg(), req.StartIndex, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), 30, "pending",
			"UTC", "America/New_York", int32(5000), false,
			"pm-1", "", false, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec("INSERT INTO booking_status_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "pending", pgxmock.AnyArg(), "client", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	b, err := f.lifecycle.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, b.Status)
	assert.Empty(t, f.rooms.calls)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateSlotLockedReportsConflict(t *testing.T) {
	f := newLifecycleFixture(t)
	f.locker.err = locks.ErrSlotLocked

	_, err := f.lifecycle.Create(context.Background(), validCreateRequest())
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestAcceptProvisionsThenTransitions(t *testing.T) {
	f := newLifecycleFixture(t)
	pending := testBooking(StatusPending)
	accepted := testBooking(StatusAccepted)
	accepted.ID = pending.ID

	f.mock.ExpectQuery("SELECT").WithArgs(pending.ID).WillReturnRows(bookingRows(pending))
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("UPDATE bookings").
		WithArgs("accepted", pgxmock.AnyArg(), pending.ID, []string{"pending"}).
		WillReturnRows(bookingRows(accepted))
	f.mock.ExpectExec("INSERT INTO booking_status_history").
		WithArgs(pgxmock.AnyArg(), pending.ID, "accepted", pgxmock.AnyArg(), "practitioner", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()
	f.mock.ExpectExec("INSERT INTO booking_rooms").
		WithArgs(pending.ID, "CH123", "RM123", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	actor := Reporter{ID: pending.StaffUserID, Role: RolePractitioner}
	b, err := f.lifecycle.Accept(context.Background(), pending.ID, actor)
	require.NoError(t, err)

	assert.Equal(t, StatusAccepted, b.Status)
	assert.Equal(t, []string{"create_conversation", "create_room"}, f.rooms.calls)
	assert.Equal(t, 1, f.notifier.accepted)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAcceptRoomFailureCleansUpConversation(t *testing.T) {
	f := newLifecycleFixture(t)
	f.rooms.createRoomErr = errors.New("twilio down")
	pending := testBooking(StatusPending)

	f.mock.ExpectQuery("SELECT").WithArgs(pending.ID).WillReturnRows(bookingRows(pending))

	_, err := f.lifecycle.Accept(context.Background(), pending.ID, Reporter{ID: pending.StaffUserID, Role: RolePractitioner})
	require.Error(t, err)

	// The conversation created before the failed room must be torn down, and
	// the booking must still be pending (no transition was attempted).
	assert.Contains(t, f.rooms.calls, "delete_conversation:CH123")
	assert.Equal(t, 0, f.notifier.accepted)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAcceptNonPendingIsStateError(t *testing.T) {
	f := newLifecycleFixture(t)
	inProgress := testBooking(StatusInProgress)

	f.mock.ExpectQuery("SELECT").WithArgs(inProgress.ID).WillReturnRows(bookingRows(inProgress))

	_, err := f.lifecycle.Accept(context.Background(), inProgress.ID, SystemReporter)
	assert.True(t, IsStateError(err))
	assert.Empty(t, f.rooms.calls)
}

func TestChargeDeclinedCancelsBooking(t *testing.T) {
	f := newLifecycleFixture(t)
	f.payments.outcome = &ChargeOutcome{Approved: false, DeclineReason: "insufficient funds"}

	accepted := testBooking(StatusAccepted)
	canceled := testBooking(StatusCanceled)
	canceled.ID = accepted.ID

	f.mock.ExpectQuery("SELECT").WithArgs(accepted.ID).WillReturnRows(bookingRows(accepted))
	// Cancel transition
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("UPDATE bookings").
		WithArgs("canceled", pgxmock.AnyArg(), accepted.ID, []string{"pending", "accepted"}).
		WillReturnRows(bookingRows(canceled))
	f.mock.ExpectExec("INSERT INTO booking_status_history").
		WithArgs(pgxmock.AnyArg(), accepted.ID, "canceled", pgxmock.AnyArg(), "system", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()
	// Immediate transcript capture finds no rooms
	f.mock.ExpectQuery("SELECT booking_id").WithArgs(accepted.ID).WillReturnError(pgx.ErrNoRows)

	err := f.lifecycle.Charge(context.Background(), accepted.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.payments.charges)
	assert.Equal(t, []string{"payment declined"}, f.notifier.canceled)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestChargeApprovedRecordsTransaction(t *testing.T) {
	f := newLifecycleFixture(t)
	accepted := testBooking(StatusAccepted)

	f.mock.ExpectQuery("SELECT").WithArgs(accepted.ID).WillReturnRows(bookingRows(accepted))
	f.mock.ExpectExec("UPDATE bookings SET charged").
		WithArgs("txn-1", pgxmock.AnyArg(), accepted.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := f.lifecycle.Charge(context.Background(), accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.receipts)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestChargeSkipsAlreadyCharged(t *testing.T) {
	f := newLifecycleFixture(t)
	accepted := testBooking(StatusAccepted)
	accepted.Charged = true

	f.mock.ExpectQuery("SELECT").WithArgs(accepted.ID).WillReturnRows(bookingRows(accepted))

	require.NoError(t, f.lifecycle.Charge(context.Background(), accepted.ID))
	assert.Equal(t, 0, f.payments.charges)
}

func TestChargeSkipsCanceledBooking(t *testing.T) {
	f := newLifecycleFixture(t)
	canceled := testBooking(StatusCanceled)

	f.mock.ExpectQuery("SELECT").WithArgs(canceled.ID).WillReturnRows(bookingRows(canceled))

	require.NoError(t, f.lifecycle.Charge(context.Background(), canceled.ID))
	assert.Equal(t, 0, f.payments.charges)
	assert.Equal(t, 0, f.notifier.receipts)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRemindOnlyOnce(t *testing.T) {
	f := newLifecycleFixture(t)
	accepted := testBooking(StatusAccepted)
	accepted.Notified = true

	f.mock.ExpectQuery("SELECT").WithArgs(accepted.ID).WillReturnRows(bookingRows(accepted))

	require.NoError(t, f.lifecycle.Remind(context.Background(), accepted.ID))
	assert.Equal(t, 0, f.notifier.reminders)
}

func TestAbandonSkipsNonPending(t *testing.T) {
	f := newLifecycleFixture(t)
	accepted := testBooking(StatusAccepted)

	f.mock.ExpectQuery("SELECT").WithArgs(accepted.ID).WillReturnRows(bookingRows(accepted))

	require.NoError(t, f.lifecycle.Abandon(context.Background(), accepted.ID))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAbandonMissingBookingIsNoop(t *testing.T) {
	f := newLifecycleFixture(t)

	id := uuid.New()
	f.mock.ExpectQuery("SELECT").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	require.NoError(t, f.lifecycle.Abandon(context.Background(), id))
}

func TestCompleteOverdueSkipsFinishedCall(t *testing.T) {
	f := newLifecycleFixture(t)
	completed := testBooking(StatusCompleted)

	f.mock.ExpectQuery("SELECT").WithArgs(completed.ID).WillReturnRows(bookingRows(completed))

	require.NoError(t, f.lifecycle.CompleteOverdue(context.Background(), completed.ID))
}

func TestCompleteTwiceIsNoOp(t *testing.T) {
	f := newLifecycleFixture(t)
	inProgress := testBooking(StatusInProgress)
	completed := testBooking(StatusCompleted)
	completed.ID = inProgress.ID
	actor := Reporter{ID: inProgress.StaffUserID, Role: RolePractitioner}

	f.mock.ExpectQuery("SELECT").WithArgs(inProgress.ID).WillReturnRows(bookingRows(inProgress))
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("UPDATE bookings").
		WithArgs("completed", pgxmock.AnyArg(), inProgress.ID, []string{"in_progress"}).
		WillReturnRows(bookingRows(completed))
	f.mock.ExpectExec("INSERT INTO booking_status_history").
		WithArgs(pgxmock.AnyArg(), inProgress.ID, "completed", pgxmock.AnyArg(), "practitioner", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()
	f.mock.ExpectQuery("SELECT booking_id").WithArgs(inProgress.ID).WillReturnError(pgx.ErrNoRows)

	require.NoError(t, f.lifecycle.Complete(context.Background(), inProgress.ID, actor))

	// A retried completion loads the booking, sees it is already completed,
	// and touches nothing else.
	f.mock.ExpectQuery("SELECT").WithArgs(completed.ID).WillReturnRows(bookingRows(completed))

	require.NoError(t, f.lifecycle.Complete(context.Background(), completed.ID, actor))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGrantCareTeamAccessExpiryCoversReviewWindow(t *testing.T) {
	f := newLifecycleFixture(t)
	accepted := testBooking(StatusAccepted)

	f.mock.ExpectQuery("SELECT").WithArgs(accepted.ID).WillReturnRows(bookingRows(accepted))

	require.NoError(t, f.lifecycle.GrantCareTeamAccess(context.Background(), accepted.ID))
	require.Len(t, f.careTeam.grants, 1)
	assert.Equal(t, accepted.EndAt().Add(72*time.Hour), f.careTeam.expiry)
}

func TestArchiveTranscriptArchivesBeforeDeleting(t *testing.T) {
	f := newLifecycleFixture(t)
	completed := testBooking(StatusCompleted)

	roomRows := pgxmock.NewRows([]string{"booking_id", "conversation_id", "video_room_id", "created_at"}).
		AddRow(completed.ID, "CH9", "RM9", time.Now().UTC())
	f.mock.ExpectQuery("SELECT booking_id").WithArgs(completed.ID).WillReturnRows(roomRows)
	f.mock.ExpectQuery("SELECT").WithArgs(completed.ID).WillReturnRows(bookingRows(completed))
	f.mock.ExpectExec("DELETE FROM booking_rooms").WithArgs(completed.ID).WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, f.lifecycle.ArchiveTranscript(context.Background(), completed.ID))

	assert.Equal(t, []string{"archive:CH9"}, f.archiver.calls)
	assert.Equal(t, []string{"delete_conversation:CH9", "close_room:RM9"}, f.rooms.calls)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestArchiveFailureKeepsConversation(t *testing.T) {
	f := newLifecycleFixture(t)
	f.archiver.err = errors.New("s3 unavailable")
	completed := testBooking(StatusCompleted)

	roomRows := pgxmock.NewRows([]string{"booking_id", "conversation_id", "video_room_id", "created_at"}).
		AddRow(completed.ID, "CH9", "RM9", time.Now().UTC())
	f.mock.ExpectQuery("SELECT booking_id").WithArgs(completed.ID).WillReturnRows(roomRows)
	f.mock.ExpectQuery("SELECT").WithArgs(completed.ID).WillReturnRows(bookingRows(completed))

	err := f.lifecycle.ArchiveTranscript(context.Background(), completed.ID)
	require.Error(t, err)
	assert.Empty(t, f.rooms.calls)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelChargedBookingIssuesRefund(t *testing.T) {
	f := newLifecycleFixture(t)
	canceled := testBooking(StatusCanceled)
	canceled.Charged = true
	canceled.PaymentTransactionID = "txn-7"

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("UPDATE bookings").
		WithArgs("canceled", pgxmock.AnyArg(), canceled.ID, []string{"pending", "accepted"}).
		WillReturnRows(bookingRows(canceled))
	f.mock.ExpectExec("INSERT INTO booking_status_history").
		WithArgs(pgxmock.AnyArg(), canceled.ID, "canceled", pgxmock.AnyArg(), "client", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()
	f.mock.ExpectQuery("SELECT booking_id").WithArgs(canceled.ID).WillReturnError(pgx.ErrNoRows)

	actor := Reporter{ID: canceled.ClientUserID, Role: RoleClient}
	_, err := f.lifecycle.Cancel(context.Background(), canceled.ID, actor, "client request")
	require.NoError(t, err)

	assert.Equal(t, []string{"txn-7"}, f.payments.refunds)
	assert.Equal(t, []string{"client request"}, f.notifier.canceled)
	require.NoError(t, f.mock.ExpectationsWereMet())
}
