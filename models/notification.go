package models

// NotificationRecord tracks the SMS side effects of a booking.
type NotificationRecord struct {
	ConfirmationSent   bool   `bson:"confirmationSent" json:"confirmationSent"`
	ReminderSent       bool   `bson:"reminderSent" json:"reminderSent"`
	CancellationSent   bool   `bson:"cancellationSent" json:"cancellationSent"`
	LastDeliveryID     string `bson:"lastDeliveryId,omitempty" json:"lastDeliveryId,omitempty"`
	LastDeliveryStatus string `bson:"lastDeliveryStatus,omitempty" json:"lastDeliveryStatus,omitempty"`
	LastError          string `bson:"lastError,omitempty" json:"lastError,omitempty"`
}

// NotificationKind names the message a delivery belongs to.
type NotificationKind string

const (
	NotificationConfirmation NotificationKind = "confirmation"
	NotificationReminder     NotificationKind = "reminder"
	NotificationCancellation NotificationKind = "cancellation"
)

// DeliveryReport is an SMS provider status callback.
type DeliveryReport struct {
	BookingID  string
	Kind       NotificationKind
	DeliveryID string
	Status     string // queued, sent, delivered, undelivered, failed
	ErrorCode  string
}

// InboundMessage is an SMS a customer sent to the business number.
type InboundMessage struct {
	MessageID string
	From      string
	Body      string
}

// CalendarRecord is the calendar sub-record of a booking.
type CalendarRecord struct {
	ExternalEventID string `bson:"externalEventId,omitempty" json:"externalEventId,omitempty"`
	Synced          bool   `bson:"synced" json:"synced"`
	LastError       string `bson:"lastError,omitempty" json:"lastError,omitempty"`
}

// CalendarCallback reports an external change to a booking's calendar event.
type CalendarCallback struct {
	BookingID       string `json:"bookingId" binding:"required"`
	ExternalEventID string `json:"externalEventId"`
	Status          string `json:"status" binding:"required"` // "confirmed" or "cancelled"
}
