package notification

import (
	"context"

	"washly/models"
)

// Message is one outbound SMS.
type Message struct {
	BookingID string
	Kind      models.NotificationKind
	To        string // E.164
	Body      string
}

// Sender delivers SMS. The returned id correlates later delivery callbacks.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SignatureValidator checks that a callback really came from the SMS provider.
type SignatureValidator interface {
	ValidSignature(url string, params map[string]string, signature string) bool
}
