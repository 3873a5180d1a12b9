package booking

import (
	"context"
	"fmt"

	"washly/models"
	"washly/services/calendar"
	"washly/services/events"
	"washly/services/notification"
	"washly/services/payment"
	"washly/services/tasks"

	"go.uber.org/zap"
)

// The methods below are the task handlers. Each reloads the booking, returns
// nil when the work no longer applies, and records collaborator failures on the
// sub-record before returning a CollaboratorError for the task runner to retry.

func (s *DefaultBookingService) CreatePaymentIntent(ctx context.Context, id string) error {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return s.storeErr(id, err)
	}
	if b.Payment.IntentID != "" || b.Payment.Paid {
		return nil
	}
	if b.Status != models.StatusPendingPayment && b.Status != models.StatusPaymentFailed {
		s.logger.Debug("Skipping payment intent", zap.String("bookingID", id), zap.String("status", string(b.Status)))
		return nil
	}

	callCtx, cancel := s.collaboratorCtx(ctx)
	intent, callErr := s.payments.CreateIntent(callCtx, payment.IntentRequest{
		AmountCents:    b.Payment.DepositCents,
		Currency:       b.Payment.Currency,
		Description:    fmt.Sprintf("Booking %s (%s)", b.ID, b.ServiceID),
		ReceiptEmail:   b.Customer.Email,
		Metadata:       map[string]string{"bookingId": b.ID, "option": string(b.Payment.Option)},
		IdempotencyKey: b.ID,
	})
	cancel()

	_, err = s.repo.UpdateBooking(ctx, id, func(cur *models.Booking) error {
		cur.Payment.Attempts++
		cur.UpdatedAt = s.clock()
		if callErr != nil {
			cur.Payment.LastError = callErr.Error()
			return nil
		}
		cur.Payment.IntentID = intent.IntentID
		cur.Payment.ClientSecret = intent.ClientSecret
		cur.Payment.LastError = ""
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record payment intent for %s: %w", id, err)
	}
	if callErr != nil {
		s.logger.Warn("Payment intent creation failed", zap.String("bookingID", id), zap.Error(callErr))
		return &CollaboratorError{Collaborator: "payment", BookingID: id, Err: callErr}
	}
	s.logger.Info("Payment intent attached", zap.String("bookingID", id), zap.String("intentID", intent.IntentID))
	return nil
}

func (s *DefaultBookingService) CreateCalendarEvent(ctx context.Context, id string) error {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return s.storeErr(id, err)
	}
	if b.Calendar.Synced || (b.Status != models.StatusConfirmed && b.Status != models.StatusReminderSent) {
		return nil
	}

	svcName := s.serviceName(b.ServiceID)
	callCtx, cancel := s.collaboratorCtx(ctx)
	eventID, callErr := s.calendar.CreateEvent(callCtx, calendar.Event{
		BookingID:   b.ID,
		Summary:     fmt.Sprintf("%s - %s", svcName, b.Customer.Name),
		Description: fmt.Sprintf("Phone: %s\nNotes: %s\nBooking: %s", b.Customer.Phone, b.Notes, b.ID),
		Location:    b.Address,
		Start:       b.Start,
		End:         b.End,
	})
	cancel()

	cancelledMeanwhile := false
	_, err = s.repo.UpdateBooking(ctx, id, func(cur *models.Booking) error {
		cur.UpdatedAt = s.clock()
		if callErr != nil {
			cur.Calendar.Synced = false
			cur.Calendar.LastError = callErr.Error()
			return nil
		}
		cur.Calendar.ExternalEventID = eventID
		cur.Calendar.Synced = true
		cur.Calendar.LastError = ""
		cancelledMeanwhile = cur.Status == models.StatusCancelled
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record calendar event for %s: %w", id, err)
	}
	if callErr != nil {
		s.logger.Warn("Calendar event creation failed", zap.String("bookingID", id), zap.Error(callErr))
		return &CollaboratorError{Collaborator: "calendar", BookingID: id, Err: callErr}
	}
	if cancelledMeanwhile {
		// The cancel task may have run before the event existed.
		return s.enqueue(ctx, tasks.TypeCancelCalendarEvent, id)
	}
	return nil
}

func (s *DefaultBookingService) CancelCalendarEvent(ctx context.Context, id string) error {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return s.storeErr(id, err)
	}
	if b.Calendar.ExternalEventID == "" || !b.Calendar.Synced {
		return nil
	}

	callCtx, cancel := s.collaboratorCtx(ctx)
	callErr := s.calendar.CancelEvent(callCtx, b.Calendar.ExternalEventID)
	cancel()

	_, err = s.repo.UpdateBooking(ctx, id, func(cur *models.Booking) error {
		cur.UpdatedAt = s.clock()
		if callErr != nil {
			cur.Calendar.LastError = callErr.Error()
			return nil
		}
		cur.Calendar.Synced = false
		cur.Calendar.LastError = ""
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record calendar cancellation for %s: %w", id, err)
	}
	if callErr != nil {
		s.logger.Warn("Calendar event cancellation failed", zap.String("bookingID", id), zap.Error(callErr))
		return &CollaboratorError{Collaborator: "calendar", BookingID: id, Err: callErr}
	}
	return nil
}

func (s *DefaultBookingService) SendConfirmation(ctx context.Context, id string) error {
	return s.sendNotification(ctx, id, models.NotificationConfirmation)
}

func (s *DefaultBookingService) SendReminder(ctx context.Context, id string) error {
	return s.sendNotification(ctx, id, models.NotificationReminder)
}

func (s *DefaultBookingService) SendCancellation(ctx context.Context, id string) error {
	return s.sendNotification(ctx, id, models.NotificationCancellation)
}

// notificationDue reports whether kind still has to be sent for b.
func notificationDue(b *models.Booking, kind models.NotificationKind) bool {
	switch kind {
	case models.NotificationConfirmation:
		return !b.Notifications.ConfirmationSent &&
			(b.Status == models.StatusConfirmed || b.Status == models.StatusReminderSent)
	case models.NotificationReminder:
		// A reminder_sent booking is due again after a failed delivery report.
		return !b.Notifications.ReminderSent &&
			(b.Status == models.StatusConfirmed || b.Status == models.StatusReminderSent)
	case models.NotificationCancellation:
		return !b.Notifications.CancellationSent && b.Status == models.StatusCancelled
	}
	return false
}

func markSent(b *models.Booking, kind models.NotificationKind, sent bool) {
	switch kind {
	case models.NotificationConfirmation:
		b.Notifications.ConfirmationSent = sent
	case models.NotificationReminder:
		b.Notifications.ReminderSent = sent
	case models.NotificationCancellation:
		b.Notifications.CancellationSent = sent
	}
}

func (s *DefaultBookingService) sendNotification(ctx context.Context, id string, kind models.NotificationKind) error {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return s.storeErr(id, err)
	}
	if !notificationDue(b, kind) {
		return nil
	}
	body, err := notification.Render(kind, *b, s.serviceName(b.ServiceID), s.settings.Location)
	if err != nil {
		return err
	}

	callCtx, cancel := s.collaboratorCtx(ctx)
	deliveryID, callErr := s.sms.Send(callCtx, notification.Message{
		BookingID: b.ID,
		Kind:      kind,
		To:        b.Customer.Phone,
		Body:      body,
	})
	cancel()

	reminded := false
	updated, err := s.repo.UpdateBooking(ctx, id, func(cur *models.Booking) error {
		now := s.clock()
		reminded = false
		cur.UpdatedAt = now
		if callErr != nil {
			markSent(cur, kind, false)
			cur.Notifications.LastError = callErr.Error()
			return nil
		}
		markSent(cur, kind, true)
		cur.Notifications.LastDeliveryID = deliveryID
		cur.Notifications.LastDeliveryStatus = "queued"
		cur.Notifications.LastError = ""
		if kind == models.NotificationReminder && cur.Status == models.StatusConfirmed {
			if err := transition(cur, models.StatusReminderSent, now, "reminder sent"); err != nil {
				return err
			}
			reminded = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record %s notification for %s: %w", kind, id, err)
	}
	if callErr != nil {
		s.logger.Warn("SMS send failed", zap.String("bookingID", id), zap.String("kind", string(kind)), zap.Error(callErr))
		return &CollaboratorError{Collaborator: "sms", BookingID: id, Err: callErr}
	}
	if reminded {
		s.publish(ctx, events.BookingReminded, updated)
	}
	return nil
}

func (s *DefaultBookingService) serviceName(id string) string {
	if svc, ok := s.catalog.Service(id); ok {
		return svc.Name
	}
	return id
}
