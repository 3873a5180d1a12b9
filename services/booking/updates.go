package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingRepo "washly/database/repository/booking"
	"washly/models"
	"washly/services/events"
	"washly/services/tasks"

	"go.uber.org/zap"
)

// changeStatus applies a guarded transition plus optional extra edits.
func (s *DefaultBookingService) changeStatus(ctx context.Context, id string, to models.BookingStatus, reason string, extra func(b *models.Booking, at time.Time)) (*models.Booking, error) {
	updated, err := s.repo.UpdateBooking(ctx, id, func(b *models.Booking) error {
		now := s.clock()
		if err := transition(b, to, now, reason); err != nil {
			return err
		}
		if extra != nil {
			extra(b, now)
		}
		return nil
	})
	if err != nil {
		return nil, s.storeErr(id, err)
	}
	s.logger.Info("Booking status changed",
		zap.String("bookingID", id),
		zap.String("status", string(to)),
		zap.String("reason", reason))
	return updated, nil
}

// CancelBooking frees the booking's range immediately. Calendar and SMS
// follow-ups run as tasks.
func (s *DefaultBookingService) CancelBooking(ctx context.Context, id, reason string) (*models.Booking, error) {
	if reason == "" {
		reason = "cancelled by customer"
	}
	b, err := s.changeStatus(ctx, id, models.StatusCancelled, reason, func(b *models.Booking, at time.Time) {
		b.CancelReason = reason
		b.CancelledAt = &at
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingCancelled, b)
	if b.Calendar.ExternalEventID != "" {
		s.enqueueOrRecord(ctx, tasks.TypeCancelCalendarEvent, id)
	}
	s.enqueueOrRecord(ctx, tasks.TypeSendCancellation, id)
	return b, nil
}

// RescheduleBooking moves a booking to a new start through the conflict guard.
// The end is recomputed from the catalog.
func (s *DefaultBookingService) RescheduleBooking(ctx context.Context, id, rawStart string) (*models.Booking, error) {
	start, err := parseStart(rawStart)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(id, err)
	}
	if !reschedulable(current.Status) {
		return nil, &TransitionError{BookingID: id, From: current.Status, Op: "rescheduled"}
	}
	sel, err := s.resolve(current.ServiceID, current.AddOnIDs)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(sel.DurationMinutes) * time.Minute
	if err := s.checkOffered(start, duration); err != nil {
		return nil, err
	}
	end := start.Add(duration)

	updated, err := s.repo.RescheduleIfNoOverlap(ctx, id, start, end, func(b *models.Booking) error {
		if !reschedulable(b.Status) {
			return &TransitionError{BookingID: id, From: b.Status, Op: "rescheduled"}
		}
		now := s.clock()
		b.History = append(b.History, models.StatusChange{
			From:   b.Status,
			To:     b.Status,
			At:     now,
			Reason: fmt.Sprintf("rescheduled from %s", current.Start.Format(time.RFC3339)),
		})
		b.Calendar.Synced = false
		b.Notifications.ReminderSent = false
		b.UpdatedAt = now
		return nil
	})
	switch {
	case errors.Is(err, bookingRepo.ErrOverlap):
		return nil, &ConflictError{Start: start, End: end}
	case errors.Is(err, bookingRepo.ErrImmutableRange):
		return nil, &TransitionError{BookingID: id, From: current.Status, Op: "rescheduled"}
	case err != nil:
		return nil, s.storeErr(id, err)
	}

	s.logger.Info("Booking rescheduled", zap.String("bookingID", id), zap.Time("start", start), zap.Time("end", end))
	s.publish(ctx, events.BookingRescheduled, updated)
	if updated.Status == models.StatusConfirmed {
		s.enqueueOrRecord(ctx, tasks.TypeCreateCalendarEvent, id)
	}
	return updated, nil
}

// MarkNoShow is the operator action for a customer who never turned up.
func (s *DefaultBookingService) MarkNoShow(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.changeStatus(ctx, id, models.StatusNoShow, "marked no-show by operator", nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingNoShow, b)
	return b, nil
}

func (s *DefaultBookingService) MarkCompleted(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.changeStatus(ctx, id, models.StatusCompleted, "marked completed by operator", nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingCompleted, b)
	return b, nil
}

// pendingWork lists the task types whose sub-record is still unsatisfied.
func pendingWork(b *models.Booking) []string {
	var out []string
	switch b.Status {
	case models.StatusPendingPayment, models.StatusPaymentFailed:
		if b.Payment.IntentID == "" {
			out = append(out, tasks.TypeCreatePaymentIntent)
		}
	case models.StatusConfirmed, models.StatusReminderSent:
		if !b.Calendar.Synced {
			out = append(out, tasks.TypeCreateCalendarEvent)
		}
		if !b.Notifications.ConfirmationSent {
			out = append(out, tasks.TypeSendConfirmation)
		}
		if b.Status == models.StatusReminderSent && !b.Notifications.ReminderSent {
			out = append(out, tasks.TypeSendReminder)
		}
	case models.StatusCancelled:
		if b.Calendar.Synced && b.Calendar.ExternalEventID != "" {
			out = append(out, tasks.TypeCancelCalendarEvent)
		}
		if !b.Notifications.CancellationSent {
			out = append(out, tasks.TypeSendCancellation)
		}
	}
	return out
}

// RetrySideEffects re-enqueues every outstanding collaborator task of a booking.
func (s *DefaultBookingService) RetrySideEffects(ctx context.Context, id string) ([]string, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(id, err)
	}
	work := pendingWork(b)
	enqueued := make([]string, 0, len(work))
	for _, typ := range work {
		if err := s.enqueue(ctx, typ, id); err != nil {
			return enqueued, fmt.Errorf("retry %s for %s: %w", typ, id, err)
		}
		enqueued = append(enqueued, typ)
	}
	return enqueued, nil
}
