package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/smartfuturesg/telehealth-platform/internal/locks"
	"github.com/smartfuturesg/telehealth-platform/internal/observability/metrics"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

var lifecycleTracer = otel.Tracer("telehealth/bookings")

// ChargeOutcome is the result of a payment capture attempt. A declined charge
// is a normal outcome, not an error.
type ChargeOutcome struct {
	Approved      bool
	TransactionID string
	DeclineReason string
}

// PaymentProvider abstracts the payment collaborator.
type PaymentProvider interface {
	Charge(ctx context.Context, b *Booking) (*ChargeOutcome, error)
	Refund(ctx context.Context, transactionID string, amountCents int32) error
	Void(ctx context.Context, transactionID string) error
}

// RoomProvider abstracts the video/chat collaborator.
type RoomProvider interface {
	CreateConversation(ctx context.Context, b *Booking) (string, error)
	CreateRoom(ctx context.Context, b *Booking) (string, error)
	CloseRoom(ctx context.Context, roomID string) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

// TranscriptArchiver persists a conversation transcript to durable storage.
// Archive must not return nil until the archive write is confirmed.
type TranscriptArchiver interface {
	Archive(ctx context.Context, b *Booking, conversationID string) error
}

// Notifier delivers booking notifications to both parties. Delivery failures
// are logged, never fatal to a transition.
type Notifier interface {
	BookingAccepted(ctx context.Context, b *Booking) error
	BookingCanceled(ctx context.Context, b *Booking, reason string) error
	AppointmentReminder(ctx context.Context, b *Booking) error
	UpcomingCharge(ctx context.Context, b *Booking) error
	PaymentReceipt(ctx context.Context, b *Booking) error
}

// StaffDirectory provides practitioner settings and profile lookups.
type StaffDirectory interface {
	GetSettings(ctx context.Context, userID uuid.UUID) (*staff.Settings, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*staff.Profile, error)
}

// CareTeamGranter records temporary record-access grants.
type CareTeamGranter interface {
	GrantTemporary(ctx context.Context, staffID, clientID, bookingID uuid.UUID, expiresAt time.Time) error
}

// Policy holds the booking time constants.
type Policy struct {
	LeadTime       time.Duration
	StartEndBuffer int
	ReviewWindow   time.Duration
}

// Lifecycle drives every booking state transition. All status changes go
// through it so the status-history side effect is visible at the call site.
type Lifecycle struct {
	store    *Store
	staff    StaffDirectory
	locker   locks.SlotLocker
	payments PaymentProvider
	rooms    RoomProvider
	archiver TranscriptArchiver
	notifier Notifier
	careTeam CareTeamGranter
	policy   Policy
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// LifecycleDeps bundles the collaborators for NewLifecycle.
type LifecycleDeps struct {
	Store    *Store
	Staff    StaffDirectory
	Locker   locks.SlotLocker
	Payments PaymentProvider
	Rooms    RoomProvider
	Archiver TranscriptArchiver
	Notifier Notifier
	CareTeam CareTeamGranter
	Policy   Policy
	Metrics  *metrics.BookingMetrics
	Logger   *logging.Logger
}

// NewLifecycle creates the booking lifecycle controller.
func NewLifecycle(deps LifecycleDeps) *Lifecycle {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Lifecycle{
		store:    deps.Store,
		staff:    deps.Staff,
		locker:   deps.Locker,
		payments: deps.Payments,
		rooms:    deps.Rooms,
		archiver: deps.Archiver,
		notifier: deps.Notifier,
		careTeam: deps.CareTeam,
		policy:   deps.Policy,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest carries a booking creation in the client's local coordinates.
type CreateRequest struct {
	ClientUserID    uuid.UUID
	StaffUserID     uuid.UUID
	Profession      staff.Profession
	Year            int
	Month           time.Month
	Day             int
	StartIndex      int
	DurationMinutes int
	ClientTimezone  string
	PaymentMethodID string
}

// Create inserts a booking, re-verifying under a slot lock that the range is
// still free. The initial status follows the practitioner's auto-confirm
// setting; an auto-confirmed booking gets its conversation and video room
// provisioned before the insert, the same fail-closed order Accept uses.
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	ctx, span := lifecycleTracer.Start(ctx, "booking.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("staff.user_id", req.StaffUserID.String()),
		attribute.String("profession", string(req.Profession)),
	)

	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	if req.StartIndex < 1 || req.StartIndex > timeslot.Count {
		return nil, fmt.Errorf("%w: start index %d out of range", ErrInvalidRequest, req.StartIndex)
	}
	loc, err := time.LoadLocation(req.ClientTimezone)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timezone %q", ErrInvalidRequest, req.ClientTimezone)
	}

	start := timeslot.LocalStart(req.Year, req.Month, req.Day, req.StartIndex, loc)
	if start.Before(l.now().Add(l.policy.LeadTime)) {
		return nil, fmt.Errorf("%w: start violates %s lead time", ErrInvalidRequest, l.policy.LeadTime)
	}

	nslots := timeslot.SlotsIn(time.Duration(req.DurationMinutes) * time.Minute)
	occupied := timeslot.RangeFrom(start, nslots)
	buffered := occupied.Buffered(l.policy.StartEndBuffer)

	settings, err := l.staff.GetSettings(ctx, req.StaffUserID)
	if err != nil {
		return nil, fmt.Errorf("bookings: load staff settings: %w", err)
	}
	profile, err := l.staff.GetProfile(ctx, req.StaffUserID)
	if err != nil {
		return nil, fmt.Errorf("bookings: load staff profile: %w", err)
	}
	if profile.Profession != req.Profession {
		return nil, fmt.Errorf("%w: practitioner does not offer %s", ErrInvalidRequest, req.Profession)
	}

	status := StatusPending
	if settings.AutoConfirm {
		status = StatusAccepted
	}

	localEnd := start.Add(time.Duration(nslots)*timeslot.Width - timeslot.Width)
	b := &Booking{
		ClientUserID:     req.ClientUserID,
		StaffUserID:      req.StaffUserID,
		Profession:       req.Profession,
		TargetDate:       time.Date(req.Year, req.Month, req.Day, 0, 0, 0, 0, time.UTC),
		TargetDateUTC:    occupied.Start.UTCDate(),
		StartIndex:       req.StartIndex,
		EndIndex:         timeslot.IndexAt(localEnd.In(loc)),
		StartIndexUTC:    occupied.Start.DayIndex(),
		EndIndexUTC:      occupied.EndIndex(),
		StartSlotUTC:     occupied.Start,
		EndSlotUTC:       occupied.End,
		DurationMinutes:  req.DurationMinutes,
		Status:           status,
		ClientTimezone:   req.ClientTimezone,
		StaffTimezone:    settings.Timezone,
		ConsultRateCents: ConsultRateCents(profile.HourlyRateCents, req.DurationMinutes),
		PaymentMethodID:  req.PaymentMethodID,
	}

	release, err := l.locker.Acquire(ctx, req.StaffUserID, buffered)
	if err != nil {
		if errors.Is(err, locks.ErrSlotLocked) {
			l.metrics.ObserveConflict()
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	defer release()

	var conversationID, videoRoomID string
	if status == StatusAccepted {
		b.ID = uuid.New()
		conversationID, err = l.rooms.CreateConversation(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("bookings: provision conversation: %w", err)
		}
		videoRoomID, err = l.rooms.CreateRoom(ctx, b)
		if err != nil {
			l.cleanupConversation(ctx, conversationID)
			return nil, fmt.Errorf("bookings: provision video room: %w", err)
		}
	}

	reporter := Reporter{ID: req.ClientUserID, Role: RoleClient}
	if err := l.store.CreateWithRecheck(ctx, b, buffered, reporter); err != nil {
		l.cleanupConversation(ctx, conversationID)
		l.cleanupRoom(ctx, videoRoomID)
		if errors.Is(err, ErrSlotConflict) {
			l.metrics.ObserveConflict()
		}
		return nil, err
	}

	if status == StatusAccepted {
		if err := l.store.SaveRooms(ctx, &Rooms{
			BookingID:      b.ID,
			ConversationID: conversationID,
			VideoRoomID:    videoRoomID,
		}); err != nil {
			return nil, err
		}
		l.notifyBestEffort(ctx, "accepted", func() error { return l.notifier.BookingAccepted(ctx, b) })
	}

	l.metrics.ObserveTransition(string(status), string(RoleClient))
	l.logger.Info("booking created",
		"booking_id", b.ID,
		"staff_user_id", b.StaffUserID,
		"status", b.Status,
		"start", b.StartAt().Format(time.RFC3339),
	)
	return b, nil
}

// Accept confirms a pending booking: provisions the chat conversation and
// video room, then commits the transition. Provisioning happens first so a
// failed external call leaves the booking untouched in pending.
func (l *Lifecycle) Accept(ctx context.Context, bookingID uuid.UUID, actor Reporter) (*Booking, error) {
	ctx, span := lifecycleTracer.Start(ctx, "booking.accept")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))

	current, err := l.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusPending {
		return nil, &StateError{From: current.Status, To: StatusAccepted}
	}

	conversationID, err := l.rooms.CreateConversation(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("bookings: provision conversation: %w", err)
	}
	videoRoomID, err := l.rooms.CreateRoom(ctx, current)
	if err != nil {
		l.cleanupConversation(ctx, conversationID)
		return nil, fmt.Errorf("bookings: provision video room: %w", err)
	}

	b, err := l.store.UpdateStatus(ctx, bookingID, []Status{StatusPending}, StatusAccepted, actor)
	if err != nil {
		l.cleanupConversation(ctx, conversationID)
		l.cleanupRoom(ctx, videoRoomID)
		return nil, err
	}

	if err := l.store.SaveRooms(ctx, &Rooms{
		BookingID:      bookingID,
		ConversationID: conversationID,
		VideoRoomID:    videoRoomID,
	}); err != nil {
		return nil, err
	}

	l.metrics.ObserveTransition(string(StatusAccepted), string(actor.Role))
	l.notifyBestEffort(ctx, "accepted", func() error { return l.notifier.BookingAccepted(ctx, b) })
	return b, nil
}

// Cancel transitions a pending or accepted booking to canceled. A charged
// booking gets a refund intent; live room resources are archived immediately
// since the call never meaningfully ran.
func (l *Lifecycle) Cancel(ctx context.Context, bookingID uuid.UUID, actor Reporter, reason string) (*Booking, error) {
	ctx, span := lifecycleTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))

	b, err := l.store.UpdateStatus(ctx, bookingID, []Status{StatusPending, StatusAccepted}, StatusCanceled, actor)
	if err != nil {
		return nil, err
	}
	l.metrics.ObserveTransition(string(StatusCanceled), string(actor.Role))
	l.logger.Info("booking canceled", "booking_id", bookingID, "reason", reason, "reporter_role", actor.Role)

	if b.Charged && b.PaymentTransactionID != "" {
		if err := l.payments.Refund(ctx, b.PaymentTransactionID, b.ConsultRateCents); err != nil {
			l.logger.Error("refund intent failed", "booking_id", bookingID, "error", err)
		}
	}

	if err := l.ArchiveTranscript(ctx, bookingID); err != nil {
		l.logger.Error("immediate transcript capture failed", "booking_id", bookingID, "error", err)
	}

	l.notifyBestEffort(ctx, "canceled", func() error { return l.notifier.BookingCanceled(ctx, b, reason) })
	return b, nil
}

// Start moves an accepted booking into the call.
func (l *Lifecycle) Start(ctx context.Context, bookingID uuid.UUID, actor Reporter) (*Booking, error) {
	b, err := l.store.UpdateStatus(ctx, bookingID, []Status{StatusAccepted}, StatusInProgress, actor)
	if err != nil {
		return nil, err
	}
	l.metrics.ObserveTransition(string(StatusInProgress), string(actor.Role))
	return b, nil
}

// Complete ends the call and closes the video room. Completing an
// already-completed booking is a no-op.
func (l *Lifecycle) Complete(ctx context.Context, bookingID uuid.UUID, actor Reporter) error {
	current, err := l.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if current.Status == StatusCompleted {
		return nil
	}

	if _, err := l.store.UpdateStatus(ctx, bookingID, []Status{StatusInProgress}, StatusCompleted, actor); err != nil {
		return err
	}
	l.metrics.ObserveTransition(string(StatusCompleted), string(actor.Role))

	rooms, err := l.store.GetRooms(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrRoomsNotFound) {
			return nil
		}
		return err
	}
	if rooms.VideoRoomID != "" {
		if err := l.rooms.CloseRoom(ctx, rooms.VideoRoomID); err != nil {
			l.logger.Error("close video room failed", "booking_id", bookingID, "error", err)
		}
	}
	return nil
}

// CompleteOverdue closes an in-progress call whose scheduled end has passed
// without an explicit completion. Skips silently when the booking has moved on.
func (l *Lifecycle) CompleteOverdue(ctx context.Context, bookingID uuid.UUID) error {
	current, err := l.store.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if current.Status != StatusInProgress {
		return nil
	}
	l.logger.Info("completing overdue call", "booking_id", bookingID)
	return l.Complete(ctx, bookingID, SystemReporter)
}

// Abandon deletes a stale pending booking along with its history. Pending
// bookings own no external resources, so deletion is safe; any other status
// is left alone.
func (l *Lifecycle) Abandon(ctx context.Context, bookingID uuid.UUID) error {
	current, err := l.store.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if current.Status != StatusPending {
		l.logger.Info("abandon skipped, booking no longer pending",
			"booking_id", bookingID, "status", current.Status)
		return nil
	}
	if err := l.store.Delete(ctx, bookingID); err != nil {
		return err
	}
	l.logger.Info("stale pending booking abandoned", "booking_id", bookingID)
	return nil
}

// Charge captures payment ahead of the appointment. Safe to retry: the
// charged flag short-circuits re-execution, and a declined charge cancels the
// booking rather than leaving it ambiguous.
func (l *Lifecycle) Charge(ctx context.Context, bookingID uuid.UUID) error {
	ctx, span := lifecycleTracer.Start(ctx, "booking.charge")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))

	b, err := l.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != StatusAccepted {
		l.logger.Info("charge skipped, booking not accepted", "booking_id", bookingID, "status", b.Status)
		return nil
	}
	if b.Charged {
		return nil
	}

	outcome, err := l.payments.Charge(ctx, b)
	if err != nil {
		return fmt.Errorf("bookings: charge: %w", err)
	}
	if !outcome.Approved {
		l.logger.Warn("charge declined, canceling booking",
			"booking_id", bookingID, "reason", outcome.DeclineReason)
		_, err := l.Cancel(ctx, bookingID, SystemReporter, "payment declined")
		return err
	}

	if _, err := l.store.SetCharged(ctx, bookingID, outcome.TransactionID); err != nil {
		return err
	}
	b.Charged = true
	b.PaymentTransactionID = outcome.TransactionID
	l.notifyBestEffort(ctx, "receipt", func() error { return l.notifier.PaymentReceipt(ctx, b) })
	return nil
}

// Remind sends the appointment reminder to both parties once.
func (l *Lifecycle) Remind(ctx context.Context, bookingID uuid.UUID) error {
	b, err := l.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != StatusAccepted || b.Notified {
		return nil
	}
	if err := l.notifier.AppointmentReminder(ctx, b); err != nil {
		return fmt.Errorf("bookings: send reminder: %w", err)
	}
	if _, err := l.store.SetNotified(ctx, bookingID); err != nil {
		return err
	}
	return nil
}

// NotifyUpcomingCharge warns the client their card is about to be charged.
func (l *Lifecycle) NotifyUpcomingCharge(ctx context.Context, bookingID uuid.UUID) error {
	b, err := l.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != StatusAccepted || b.PaymentNotified {
		return nil
	}
	if err := l.notifier.UpcomingCharge(ctx, b); err != nil {
		return fmt.Errorf("bookings: send charge notice: %w", err)
	}
	if _, err := l.store.SetPaymentNotified(ctx, bookingID); err != nil {
		return err
	}
	return nil
}

// GrantCareTeamAccess gives the practitioner temporary access to the client's
// records shortly before the call. The grant outlives the call by the review
// window, then expires on its own.
func (l *Lifecycle) GrantCareTeamAccess(ctx context.Context, bookingID uuid.UUID) error {
	b, err := l.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != StatusAccepted {
		return nil
	}
	expiresAt := b.EndAt().Add(l.policy.ReviewWindow)
	return l.careTeam.GrantTemporary(ctx, b.StaffUserID, b.ClientUserID, bookingID, expiresAt)
}

// ArchiveTranscript persists the conversation transcript and only then tears
// down the live resources. Re-running after the rooms row is gone is a no-op.
func (l *Lifecycle) ArchiveTranscript(ctx context.Context, bookingID uuid.UUID) error {
	ctx, span := lifecycleTracer.Start(ctx, "booking.archive_transcript")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))

	rooms, err := l.store.GetRooms(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrRoomsNotFound) {
			return nil
		}
		return err
	}
	b, err := l.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}

	if rooms.ConversationID != "" {
		// The archive write must be confirmed before the live conversation is
		// deleted; reversing the order would lose the transcript.
		if err := l.archiver.Archive(ctx, b, rooms.ConversationID); err != nil {
			return fmt.Errorf("bookings: archive transcript: %w", err)
		}
		if err := l.rooms.DeleteConversation(ctx, rooms.ConversationID); err != nil {
			return fmt.Errorf("bookings: delete conversation: %w", err)
		}
	}
	if rooms.VideoRoomID != "" {
		if err := l.rooms.CloseRoom(ctx, rooms.VideoRoomID); err != nil {
			l.logger.Error("close video room failed", "booking_id", bookingID, "error", err)
		}
	}
	return l.store.DeleteRooms(ctx, bookingID)
}

func (l *Lifecycle) notifyBestEffort(ctx context.Context, kind string, send func() error) {
	if l.notifier == nil {
		return
	}
	if err := send(); err != nil {
		l.logger.Error("notification failed", "kind", kind, "error", err)
	}
}

func (l *Lifecycle) cleanupConversation(ctx context.Context, conversationID string) {
	if conversationID == "" {
		return
	}
	if err := l.rooms.DeleteConversation(ctx, conversationID); err != nil {
		l.logger.Error("cleanup conversation failed", "conversation_id", conversationID, "error", err)
	}
}

func (l *Lifecycle) cleanupRoom(ctx context.Context, roomID string) {
	if roomID == "" {
		return
	}
	if err := l.rooms.CloseRoom(ctx, roomID); err != nil {
		l.logger.Error("cleanup video room failed", "room_id", roomID, "error", err)
	}
}
