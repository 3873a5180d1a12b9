package payment

import (
	"context"

	"washly/models"
)

// IntentRequest asks the gateway to collect AmountCents for one booking.
type IntentRequest struct {
	AmountCents    int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// Gateway creates payment intents. Implementations must honour IdempotencyKey
// so a retried task never charges twice.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*models.PaymentIntent, error)
}

// EventParser verifies a webhook body and normalises it into a PaymentEvent.
type EventParser interface {
	ParseEvent(payload []byte, signature string) (*models.PaymentEvent, error)
}
