package events

import (
	"context"
	"time"

	"washly/models"

	"go.uber.org/zap"
)

// Routing keys of booking domain events.
const (
	BookingCreated     = "booking.created"
	BookingConfirmed   = "booking.confirmed"
	BookingFailed      = "booking.payment_failed"
	BookingRescheduled = "booking.rescheduled"
	BookingCancelled   = "booking.cancelled"
	BookingReminded    = "booking.reminder_sent"
	BookingCompleted   = "booking.completed"
	BookingNoShow      = "booking.no_show"
)

// BookingEvent is the message body published for every status change.
type BookingEvent struct {
	Type      string               `json:"type"`
	BookingID string               `json:"bookingId"`
	Status    models.BookingStatus `json:"status"`
	Start     time.Time            `json:"start"`
	End       time.Time            `json:"end"`
	At        time.Time            `json:"at"`
}

// NewBookingEvent snapshots b under routing key typ.
func NewBookingEvent(typ string, b models.Booking, at time.Time) BookingEvent {
	return BookingEvent{Type: typ, BookingID: b.ID, Status: b.Status, Start: b.Start, End: b.End, At: at.UTC()}
}

// Publisher emits domain events. Delivery is best effort; callers log failures.
type Publisher interface {
	Publish(ctx context.Context, ev BookingEvent) error
	Close() error
}

// LogPublisher writes events to the log when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev BookingEvent) error {
	p.logger.Debug("Booking event",
		zap.String("type", ev.Type),
		zap.String("bookingID", ev.BookingID),
		zap.String("status", string(ev.Status)))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
