package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	bookingRepo "washly/database/repository/booking"
	"washly/models"
	"washly/services/events"
	"washly/services/tasks"

	"go.uber.org/zap"
)

// dedupe runs fn once per key. A failed fn releases the key so the provider's
// redelivery is processed again.
func (s *DefaultBookingService) dedupe(ctx context.Context, key string, fn func() error) error {
	first, err := s.deduper.FirstSeen(ctx, key)
	if err != nil {
		return err
	}
	if !first {
		s.logger.Debug("Duplicate callback ignored", zap.String("key", key))
		return nil
	}
	if err := fn(); err != nil {
		if ferr := s.deduper.Forget(ctx, key); ferr != nil {
			s.logger.Warn("Failed to release dedupe key", zap.String("key", key), zap.Error(ferr))
		}
		return err
	}
	return nil
}

// HandlePaymentEvent applies a gateway outcome to the booking owning the intent.
// A success is authoritative and confirms a failed booking too.
func (s *DefaultBookingService) HandlePaymentEvent(ctx context.Context, ev models.PaymentEvent) error {
	if ev.Type == models.PaymentEventIgnored || ev.IntentID == "" {
		return nil
	}
	key := "payment:" + ev.EventID
	if ev.EventID == "" {
		key = "payment:" + ev.IntentID + ":" + string(ev.Type)
	}
	return s.dedupe(ctx, key, func() error {
		b, err := s.repo.GetBookingByPaymentIntent(ctx, ev.IntentID)
		if errors.Is(err, bookingRepo.ErrNotFound) {
			s.logger.Warn("Payment event for unknown intent", zap.String("intentID", ev.IntentID), zap.String("eventID", ev.EventID))
			return nil
		}
		if err != nil {
			return err
		}
		switch ev.Type {
		case models.PaymentEventSucceeded:
			return s.paymentSucceeded(ctx, b.ID)
		case models.PaymentEventFailed:
			return s.paymentFailed(ctx, b.ID, ev.Reason)
		}
		return invalid("type", "unknown payment event type %q", ev.Type)
	})
}

func (s *DefaultBookingService) paymentSucceeded(ctx context.Context, id string) error {
	confirmed, late := false, false
	updated, err := s.repo.UpdateBooking(ctx, id, func(b *models.Booking) error {
		confirmed, late = false, false
		if b.Payment.Paid {
			return nil
		}
		now := s.clock()
		b.Payment.Paid = true
		b.Payment.PaidAt = &now
		b.Payment.LastError = ""
		b.UpdatedAt = now
		switch b.Status {
		case models.StatusPendingPayment, models.StatusPaymentFailed:
			confirmed = true
			return transition(b, models.StatusConfirmed, now, "payment succeeded")
		default:
			late = true
		}
		return nil
	})
	if err != nil {
		return s.storeErr(id, err)
	}
	if late {
		s.logger.Warn("Payment succeeded for a booking that is no longer awaiting payment",
			zap.String("bookingID", id),
			zap.String("status", string(updated.Status)))
		return nil
	}
	if !confirmed {
		return nil
	}

	s.logger.Info("Booking confirmed", zap.String("bookingID", id))
	s.publish(ctx, events.BookingConfirmed, updated)
	// Both run as tasks; a failure leaves the booking confirmed and unsynced.
	s.enqueueOrRecord(ctx, tasks.TypeCreateCalendarEvent, id)
	s.enqueueOrRecord(ctx, tasks.TypeSendConfirmation, id)
	return nil
}

func (s *DefaultBookingService) paymentFailed(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "payment failed"
	}
	failed := false
	updated, err := s.repo.UpdateBooking(ctx, id, func(b *models.Booking) error {
		failed = false
		if b.Payment.Paid {
			return nil
		}
		now := s.clock()
		b.Payment.LastError = reason
		b.UpdatedAt = now
		if b.Status == models.StatusPendingPayment {
			failed = true
			return transition(b, models.StatusPaymentFailed, now, reason)
		}
		return nil
	})
	if err != nil {
		return s.storeErr(id, err)
	}
	if failed {
		s.logger.Info("Booking payment failed", zap.String("bookingID", id), zap.String("reason", reason))
		s.publish(ctx, events.BookingFailed, updated)
	}
	return nil
}

// HandleDeliveryReport records an SMS status callback. A failed delivery clears
// the sent flag so the message is picked up by a retry.
func (s *DefaultBookingService) HandleDeliveryReport(ctx context.Context, r models.DeliveryReport) error {
	if r.BookingID == "" {
		return invalid("bookingId", "is required")
	}
	if r.DeliveryID == "" || r.Status == "" {
		return invalid("MessageSid", "delivery id and status are required")
	}
	return s.dedupe(ctx, "sms:"+r.DeliveryID+":"+r.Status, func() error {
		_, err := s.repo.UpdateBooking(ctx, r.BookingID, func(b *models.Booking) error {
			b.Notifications.LastDeliveryID = r.DeliveryID
			b.Notifications.LastDeliveryStatus = r.Status
			b.UpdatedAt = s.clock()
			if r.Status == "failed" || r.Status == "undelivered" {
				markSent(b, r.Kind, false)
				b.Notifications.LastError = "delivery " + r.Status
				if r.ErrorCode != "" {
					b.Notifications.LastError += " (code " + r.ErrorCode + ")"
				}
			}
			return nil
		})
		if err != nil {
			return s.storeErr(r.BookingID, err)
		}
		return nil
	})
}

const (
	replyHelp     = "Reply CANCEL to cancel your upcoming booking."
	replyNotFound = "We could not find an upcoming booking for this number."
)

// HandleInboundSMS acts on a customer's text and returns the reply to send.
// CANCEL cancels the nearest upcoming live booking of the sender's phone.
func (s *DefaultBookingService) HandleInboundSMS(ctx context.Context, m models.InboundMessage) (string, error) {
	if strings.ToUpper(strings.TrimSpace(m.Body)) != "CANCEL" {
		return replyHelp, nil
	}

	reply := replyNotFound
	run := func() error {
		b, err := s.nextBookingFor(ctx, m.From)
		if err != nil || b == nil {
			return err
		}
		cancelled, err := s.CancelBooking(ctx, b.ID, "cancelled by SMS")
		if err != nil {
			return err
		}
		reply = "Your booking on " + cancelled.Start.In(s.settings.Location).Format("Mon Jan 2 at 3:04 PM") + " has been cancelled."
		return nil
	}
	if m.MessageID == "" {
		return reply, run()
	}
	err := s.dedupe(ctx, "sms-in:"+m.MessageID, run)
	return reply, err
}

func (s *DefaultBookingService) nextBookingFor(ctx context.Context, phone string) (*models.Booking, error) {
	now := s.clock()
	horizon := s.settings.HorizonDays
	if horizon <= 0 {
		horizon = 365
	}
	upcoming, err := s.repo.ListBookingsByStatus(ctx,
		[]models.BookingStatus{models.StatusPendingPayment, models.StatusPaymentFailed, models.StatusConfirmed, models.StatusReminderSent},
		now, now.AddDate(0, 0, horizon+1))
	if err != nil {
		return nil, err
	}
	for i := range upcoming {
		b := upcoming[i]
		if b.Customer.Phone == phone && b.Start.After(now) {
			return &b, nil
		}
	}
	return nil, nil
}

// HandleCalendarCallback reconciles an external change to a booking's event.
// Removing the event only marks the booking unsynced.
func (s *DefaultBookingService) HandleCalendarCallback(ctx context.Context, cb models.CalendarCallback) error {
	if cb.BookingID == "" {
		return invalid("bookingId", "is required")
	}
	var apply func(b *models.Booking, now time.Time)
	switch cb.Status {
	case "confirmed":
		apply = func(b *models.Booking, _ time.Time) {
			if cb.ExternalEventID != "" {
				b.Calendar.ExternalEventID = cb.ExternalEventID
			}
			b.Calendar.Synced = true
			b.Calendar.LastError = ""
		}
	case "cancelled":
		apply = func(b *models.Booking, _ time.Time) {
			b.Calendar.Synced = false
			b.Calendar.LastError = "event removed from calendar"
		}
	default:
		return invalid("status", "must be confirmed or cancelled, got %q", cb.Status)
	}

	_, err := s.repo.UpdateBooking(ctx, cb.BookingID, func(b *models.Booking) error {
		now := s.clock()
		apply(b, now)
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return s.storeErr(cb.BookingID, err)
	}
	s.logger.Info("Calendar callback applied", zap.String("bookingID", cb.BookingID), zap.String("status", cb.Status))
	return nil
}
