package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"washly/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// StripeGateway creates PaymentIntents and verifies Stripe webhooks.
type StripeGateway struct {
	intents       paymentintent.Client
	webhookSecret string
	logger        *zap.Logger
}

func NewStripeGateway(apiKey, webhookSecret string, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		intents:       paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: apiKey},
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create intent: %w", err)
	}
	g.logger.Info("Stripe payment intent created",
		zap.String("intentID", pi.ID),
		zap.Int64("amount", req.AmountCents))
	return &models.PaymentIntent{IntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) ParseEvent(payload []byte, signature string) (*models.PaymentEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &models.PaymentEvent{EventID: event.ID, Type: models.PaymentEventIgnored}
	switch string(event.Type) {
	case "payment_intent.succeeded":
		out.Type = models.PaymentEventSucceeded
	case "payment_intent.payment_failed":
		out.Type = models.PaymentEventFailed
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("stripe event %s: decode intent: %w", event.ID, err)
	}
	out.IntentID = pi.ID
	if pi.LastPaymentError != nil {
		out.Reason = pi.LastPaymentError.Msg
	}
	return out, nil
}
