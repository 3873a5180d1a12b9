package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"washly/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimulatedGateway stands in for Stripe when no key is configured. Intents are
// keyed by idempotency key. Webhooks are unsigned JSON:
//
//	{"id": "evt_1", "type": "succeeded", "intentId": "pi_sim_..."}
type SimulatedGateway struct {
	logger  *zap.Logger
	mu      sync.Mutex
	intents map[string]*models.PaymentIntent
}

func NewSimulatedGateway(logger *zap.Logger) *SimulatedGateway {
	return &SimulatedGateway{logger: logger, intents: make(map[string]*models.PaymentIntent)}
}

func (g *SimulatedGateway) CreateIntent(ctx context.Context, req IntentRequest) (*models.PaymentIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("invalid payment amount %d", req.AmountCents)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if pi, ok := g.intents[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return pi, nil
	}
	id := "pi_sim_" + uuid.New().String()
	pi := &models.PaymentIntent{IntentID: id, ClientSecret: id + "_secret"}
	if req.IdempotencyKey != "" {
		g.intents[req.IdempotencyKey] = pi
	}
	g.logger.Info("Simulated payment intent created", zap.String("intentID", id), zap.Int64("amount", req.AmountCents))
	return pi, nil
}

func (g *SimulatedGateway) ParseEvent(payload []byte, _ string) (*models.PaymentEvent, error) {
	var raw struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		IntentID string `json:"intentId"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	ev := &models.PaymentEvent{EventID: raw.ID, IntentID: raw.IntentID, Reason: raw.Reason}
	switch models.PaymentEventType(raw.Type) {
	case models.PaymentEventSucceeded, models.PaymentEventFailed:
		ev.Type = models.PaymentEventType(raw.Type)
	default:
		ev.Type = models.PaymentEventIgnored
	}
	return ev, nil
}
