package booking

import (
	"context"

	"washly/models"
)

// BookingService is the scheduling engine as the HTTP layer sees it.
type BookingService interface {
	ListCatalog() models.CatalogResponse
	GetAvailability(ctx context.Context, q models.AvailabilityQuery) (*models.AvailabilityResponse, error)
	Quote(req models.QuoteRequest) (*models.Quote, error)

	CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.BookingConfirmation, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CancelBooking(ctx context.Context, id, reason string) (*models.Booking, error)
	RescheduleBooking(ctx context.Context, id, start string) (*models.Booking, error)

	MarkNoShow(ctx context.Context, id string) (*models.Booking, error)
	MarkCompleted(ctx context.Context, id string) (*models.Booking, error)
	RetrySideEffects(ctx context.Context, id string) ([]string, error)

	HandlePaymentEvent(ctx context.Context, ev models.PaymentEvent) error
	HandleDeliveryReport(ctx context.Context, r models.DeliveryReport) error
	HandleInboundSMS(ctx context.Context, m models.InboundMessage) (string, error)
	HandleCalendarCallback(ctx context.Context, cb models.CalendarCallback) error

	SendDueReminders(ctx context.Context) (int, error)
	CompletePastBookings(ctx context.Context) (int, error)
}
