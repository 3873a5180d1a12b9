package notification

import (
	"fmt"
	"strings"
	"time"

	"washly/models"
)

const timeLayout = "Mon Jan 2 at 3:04 PM"

// Render builds the SMS text of kind for booking b. loc is the business timezone.
func Render(kind models.NotificationKind, b models.Booking, serviceName string, loc *time.Location) (string, error) {
	when := b.Start.In(loc).Format(timeLayout)
	short := shortID(b.ID)
	switch kind {
	case models.NotificationConfirmation:
		msg := fmt.Sprintf("Hi %s, your %s is confirmed for %s at %s. Ref %s.",
			b.Customer.Name, serviceName, when, b.Address, short)
		if b.Payment.RemainingCents > 0 {
			msg += fmt.Sprintf(" Balance due on site: %s.", FormatMoney(b.Payment.RemainingCents, b.Payment.Currency))
		}
		return msg, nil
	case models.NotificationReminder:
		return fmt.Sprintf("Reminder: your %s is scheduled for %s at %s. Reply CANCEL to cancel. Ref %s.",
			serviceName, when, b.Address, short), nil
	case models.NotificationCancellation:
		return fmt.Sprintf("Your %s on %s has been cancelled. Ref %s.", serviceName, when, short), nil
	default:
		return "", fmt.Errorf("unknown notification kind %q", kind)
	}
}

// FormatMoney renders cents like "$27.00" for usd and "27.00 EUR" otherwise.
func FormatMoney(cents int64, currency string) string {
	whole, frac := cents/100, cents%100
	if frac < 0 {
		frac = -frac
	}
	if currency == "" || currency == "usd" {
		return fmt.Sprintf("$%d.%02d", whole, frac)
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, strings.ToUpper(currency))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
