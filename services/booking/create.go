package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bookingRepo "washly/database/repository/booking"
	"washly/models"
	"washly/services/events"
	"washly/services/tasks"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func parseStart(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, invalid("start", "must be an RFC3339 timestamp, got %q", raw)
	}
	return t.UTC(), nil
}

// CreateBooking validates the request, reserves the range through the conflict
// guard and hands payment to the task queue. Collaborator failures after the
// commit never fail the request.
func (s *DefaultBookingService) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.BookingConfirmation, error) {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.Address = strings.TrimSpace(req.Address)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	sel, err := s.resolve(req.ServiceID, req.AddOnIDs)
	if err != nil {
		return nil, err
	}
	start, err := parseStart(req.Start)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(sel.DurationMinutes) * time.Minute
	if err := s.checkOffered(start, duration); err != nil {
		return nil, err
	}
	quote, err := s.settings.Pricing.Quote(sel, req.PaymentOption)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	b := &models.Booking{
		ID:        uuid.New().String(),
		ServiceID: sel.Service.ID,
		AddOnIDs:  sel.AddOnIDs(),
		Customer:  req.Customer,
		Address:   req.Address,
		Notes:     strings.TrimSpace(req.Notes),
		Start:     start,
		End:       start.Add(duration),
		Status:    models.StatusPendingPayment,
		Payment: models.PaymentRecord{
			Option:         quote.Option,
			AmountCents:    quote.TotalCents,
			DepositCents:   quote.DepositCents,
			RemainingCents: quote.RemainingCents,
			Currency:       quote.Currency,
		},
		History:   []models.StatusChange{{To: models.StatusPendingPayment, At: now, Reason: "created"}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateBookingIfNoOverlap(ctx, b); err != nil {
		if errors.Is(err, bookingRepo.ErrOverlap) {
			return nil, &ConflictError{Start: b.Start, End: b.End}
		}
		return nil, fmt.Errorf("failed to reserve booking: %w", err)
	}
	s.logger.Info("Booking reserved",
		zap.String("bookingID", b.ID),
		zap.String("serviceID", b.ServiceID),
		zap.Time("start", b.Start),
		zap.Time("end", b.End))

	s.publish(ctx, events.BookingCreated, b)
	s.enqueueOrRecord(ctx, tasks.TypeCreatePaymentIntent, b.ID)

	return &models.BookingConfirmation{
		Booking: *b,
		Quote:   quote,
		Message: "Your slot is reserved. Complete payment to confirm it.",
	}, nil
}

// enqueueOrRecord dispatches a task. When that fails the failure is stored on
// the sub-record the task would have satisfied, so a retry can find it.
func (s *DefaultBookingService) enqueueOrRecord(ctx context.Context, taskType, id string) {
	if err := s.enqueue(ctx, taskType, id); err != nil {
		s.recordEnqueueError(ctx, taskType, id, err)
	}
}

// recordEnqueueError stores cause on the sub-record owned by taskType, best effort.
func (s *DefaultBookingService) recordEnqueueError(ctx context.Context, taskType, id string, cause error) {
	msg := fmt.Sprintf("enqueue %s: %v", taskType, cause)
	_, err := s.repo.UpdateBooking(ctx, id, func(b *models.Booking) error {
		switch taskType {
		case tasks.TypeCreatePaymentIntent:
			b.Payment.LastError = msg
		case tasks.TypeCreateCalendarEvent, tasks.TypeCancelCalendarEvent:
			b.Calendar.LastError = msg
		default:
			b.Notifications.LastError = msg
		}
		b.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to record enqueue error",
			zap.String("type", taskType),
			zap.String("bookingID", id),
			zap.Error(err))
	}
}
