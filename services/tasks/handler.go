package tasks

import (
	"context"

	"github.com/hibiken/asynq"
)

// Handler performs the collaborator work behind each task type.
type Handler interface {
	CreatePaymentIntent(ctx context.Context, bookingID string) error
	CreateCalendarEvent(ctx context.Context, bookingID string) error
	CancelCalendarEvent(ctx context.Context, bookingID string) error
	SendConfirmation(ctx context.Context, bookingID string) error
	SendReminder(ctx context.Context, bookingID string) error
	SendCancellation(ctx context.Context, bookingID string) error
}

// NewServeMux routes every task type to h. The same mux backs the asynq
// server and the inline dispatcher.
func NewServeMux(h Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCreatePaymentIntent, bookingFunc(h.CreatePaymentIntent))
	mux.HandleFunc(TypeCreateCalendarEvent, bookingFunc(h.CreateCalendarEvent))
	mux.HandleFunc(TypeCancelCalendarEvent, bookingFunc(h.CancelCalendarEvent))
	mux.HandleFunc(TypeSendConfirmation, bookingFunc(h.SendConfirmation))
	mux.HandleFunc(TypeSendReminder, bookingFunc(h.SendReminder))
	mux.HandleFunc(TypeSendCancellation, bookingFunc(h.SendCancellation))
	return mux
}

func bookingFunc(fn func(ctx context.Context, bookingID string) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := ParseBookingPayload(task)
		if err != nil {
			return err
		}
		return fn(ctx, p.BookingID)
	}
}
