package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"washly/models"
	"washly/services/events"
	"washly/services/tasks"

	"go.uber.org/zap"
)

// SendDueReminders enqueues a reminder for every confirmed booking starting
// within the reminder window, and for reminded bookings whose reminder was
// reported undelivered. It returns how many were enqueued.
func (s *DefaultBookingService) SendDueReminders(ctx context.Context) (int, error) {
	now := s.clock()
	until := now.Add(s.settings.ReminderWindow)
	due, err := s.repo.ListBookingsByStatus(ctx,
		[]models.BookingStatus{models.StatusConfirmed, models.StatusReminderSent}, now, until)
	if err != nil {
		return 0, fmt.Errorf("failed to list bookings due a reminder: %w", err)
	}

	var errs []error
	sent := 0
	for _, b := range due {
		if b.Notifications.ReminderSent || b.Start.Before(now) || b.Start.After(until) {
			continue
		}
		if err := s.enqueue(ctx, tasks.TypeSendReminder, b.ID); err != nil {
			s.recordEnqueueError(ctx, tasks.TypeSendReminder, b.ID, err)
			errs = append(errs, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		s.logger.Info("Reminders enqueued", zap.Int("count", sent))
	}
	return sent, errors.Join(errs...)
}

// CompletePastBookings moves confirmed bookings whose service window has ended
// to completed.
func (s *DefaultBookingService) CompletePastBookings(ctx context.Context) (int, error) {
	now := s.clock()
	past, err := s.repo.ListBookingsByStatus(ctx,
		[]models.BookingStatus{models.StatusConfirmed, models.StatusReminderSent},
		time.Time{}, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list past bookings: %w", err)
	}

	var errs []error
	done := 0
	for _, b := range past {
		if b.End.After(now) {
			continue
		}
		updated, err := s.changeStatus(ctx, b.ID, models.StatusCompleted, "service window ended", nil)
		var terr *TransitionError
		if errors.As(err, &terr) {
			// Cancelled or marked by an operator since the listing.
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.publish(ctx, events.BookingCompleted, updated)
		done++
	}
	return done, errors.Join(errs...)
}
