package booking

import (
	"washly/models"
	"washly/services/catalog"
)

// PricingPolicy holds the deposit rule. All amounts are in cents.
type PricingPolicy struct {
	DepositPercent  int64
	MinDepositCents int64
	Currency        string
}

// Deposit returns round-half-up(total * percent / 100), raised to the minimum
// and capped at the total.
func (p PricingPolicy) Deposit(total int64) int64 {
	if total <= 0 {
		return 0
	}
	deposit := (total*p.DepositPercent + 50) / 100
	if deposit < p.MinDepositCents {
		deposit = p.MinDepositCents
	}
	if deposit > total {
		deposit = total
	}
	return deposit
}

// Quote prices a resolved selection. An empty option means deposit.
func (p PricingPolicy) Quote(sel catalog.Selection, option models.PaymentOption) (models.Quote, error) {
	if option == "" {
		option = models.PaymentOptionDeposit
	}
	q := models.Quote{
		ServiceID:  sel.Service.ID,
		AddOnIDs:   sel.AddOnIDs(),
		Option:     option,
		TotalCents: sel.TotalCents,
		Currency:   p.Currency,
	}
	switch option {
	case models.PaymentOptionFull:
		q.DepositCents = q.TotalCents
	case models.PaymentOptionDeposit:
		q.DepositCents = p.Deposit(q.TotalCents)
	default:
		return models.Quote{}, invalid("paymentOption", "must be %q or %q", models.PaymentOptionFull, models.PaymentOptionDeposit)
	}
	q.RemainingCents = q.TotalCents - q.DepositCents
	return q, nil
}
