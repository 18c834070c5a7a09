package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

const appointmentTimeFormat = "Monday, January 2 2006 at 3:04 PM MST"

// Service delivers booking notifications by email to both parties.
type Service struct {
	email    EmailSender
	contacts ContactDirectory
	logger   *logging.Logger
}

func NewService(email EmailSender, contacts ContactDirectory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, contacts: contacts, logger: logger}
}

var _ bookings.Notifier = (*Service)(nil)

// BookingAccepted tells both parties the appointment is confirmed.
func (s *Service) BookingAccepted(ctx context.Context, b *bookings.Booking) error {
	when := b.StartAt().Format(appointmentTimeFormat)
	subject := "Your telehealth appointment is confirmed"
	body := fmt.Sprintf("Your appointment on %s is confirmed. You can join the call from your appointments page.", when)
	return s.sendBoth(ctx, b, subject, body)
}

// BookingCanceled tells both parties the appointment is off.
func (s *Service) BookingCanceled(ctx context.Context, b *bookings.Booking, reason string) error {
	when := b.StartAt().Format(appointmentTimeFormat)
	subject := "Your telehealth appointment was canceled"
	body := fmt.Sprintf("Your appointment on %s has been canceled.", when)
	if reason != "" {
		body += " Reason: " + reason + "."
	}
	if b.Charged {
		body += " Any captured payment will be refunded."
	}
	return s.sendBoth(ctx, b, subject, body)
}

// AppointmentReminder nudges both parties shortly before the call.
func (s *Service) AppointmentReminder(ctx context.Context, b *bookings.Booking) error {
	when := b.StartAt().Format(appointmentTimeFormat)
	subject := "Upcoming telehealth appointment"
	body := fmt.Sprintf("Reminder: your appointment starts on %s.", when)
	return s.sendBoth(ctx, b, subject, body)
}

// UpcomingCharge warns the client ahead of the automatic capture.
func (s *Service) UpcomingCharge(ctx context.Context, b *bookings.Booking) error {
	when := b.StartAt().Format(appointmentTimeFormat)
	subject := "Upcoming charge for your telehealth appointment"
	body := fmt.Sprintf("Your payment method will be charged %s for your appointment on %s.",
		dollars(b.ConsultRateCents), when)
	return s.sendTo(ctx, b.ClientUserID, subject, body)
}

// PaymentReceipt confirms a captured consult fee to the client.
func (s *Service) PaymentReceipt(ctx context.Context, b *bookings.Booking) error {
	when := b.StartAt().Format(appointmentTimeFormat)
	subject := "Payment receipt for your telehealth appointment"
	body := fmt.Sprintf("We charged %s for your appointment on %s. Thank you.",
		dollars(b.ConsultRateCents), when)
	return s.sendTo(ctx, b.ClientUserID, subject, body)
}

// sendBoth emails client and practitioner. One failed delivery does not stop
// the other; the first error is returned.
func (s *Service) sendBoth(ctx context.Context, b *bookings.Booking, subject, body string) error {
	var firstErr error
	for _, userID := range []uuid.UUID{b.ClientUserID, b.StaffUserID} {
		if err := s.sendTo(ctx, userID, subject, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) sendTo(ctx context.Context, userID uuid.UUID, subject, body string) error {
	contact, err := s.contacts.GetContact(ctx, userID)
	if err != nil {
		return err
	}
	msg := EmailMessage{
		To:      contact.Email,
		ToName:  contact.FullName,
		Subject: subject,
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return err
	}
	s.logger.Debug("booking notification sent", "user_id", userID, "subject", subject)
	return nil
}

func dollars(cents int32) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
