package models

import "time"

// PaymentOption selects how much is charged up front.
type PaymentOption string

const (
	PaymentOptionFull    PaymentOption = "full"
	PaymentOptionDeposit PaymentOption = "deposit"
)

// Quote is the pricing engine's output. All amounts are in cents.
type Quote struct {
	ServiceID      string        `json:"serviceId"`
	AddOnIDs       []string      `json:"addOns"`
	Option         PaymentOption `json:"paymentOption"`
	TotalCents     int64         `json:"totalCents"`
	DepositCents   int64         `json:"depositCents"`
	RemainingCents int64         `json:"remainingCents"`
	Currency       string        `json:"currency"`
}

// PaymentRecord is the payment sub-record of a booking.
type PaymentRecord struct {
	IntentID       string        `bson:"intentId,omitempty" json:"intentId,omitempty"`
	ClientSecret   string        `bson:"clientSecret,omitempty" json:"clientSecret,omitempty"`
	Option         PaymentOption `bson:"option" json:"option"`
	AmountCents    int64         `bson:"amountCents" json:"amountCents"`       // total price
	DepositCents   int64         `bson:"depositCents" json:"depositCents"`     // charged through the intent
	RemainingCents int64         `bson:"remainingCents" json:"remainingCents"` // due on site
	Currency       string        `bson:"currency" json:"currency"`
	Paid           bool          `bson:"paid" json:"paid"`
	PaidAt         *time.Time    `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	Attempts       int           `bson:"attempts" json:"attempts"`
	LastError      string        `bson:"lastError,omitempty" json:"lastError,omitempty"`
}

// PaymentIntent is what the gateway hands back for a created intent.
type PaymentIntent struct {
	IntentID     string
	ClientSecret string
}

// PaymentEvent is a gateway callback normalised away from the provider's format.
type PaymentEvent struct {
	EventID  string
	Type     PaymentEventType
	IntentID string
	Reason   string
}

type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "succeeded"
	PaymentEventFailed    PaymentEventType = "failed"
	PaymentEventIgnored   PaymentEventType = "ignored"
)
