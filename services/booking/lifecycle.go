package booking

import (
	"slices"
	"time"

	"washly/models"
)

// allowedTransitions is the booking state machine. Statuses absent as keys are terminal.
var allowedTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPendingPayment: {models.StatusConfirmed, models.StatusPaymentFailed, models.StatusCancelled, models.StatusNoShow},
	models.StatusPaymentFailed:  {models.StatusConfirmed, models.StatusCancelled, models.StatusNoShow},
	models.StatusConfirmed:      {models.StatusReminderSent, models.StatusCompleted, models.StatusCancelled, models.StatusNoShow},
	models.StatusReminderSent:   {models.StatusCompleted, models.StatusCancelled, models.StatusNoShow},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to models.BookingStatus) bool {
	return slices.Contains(allowedTransitions[from], to)
}

// Terminal reports whether no further status change is possible.
func Terminal(s models.BookingStatus) bool {
	_, ok := allowedTransitions[s]
	return !ok
}

// transition moves b to status to and appends the audit entry.
func transition(b *models.Booking, to models.BookingStatus, at time.Time, reason string) error {
	if !CanTransition(b.Status, to) {
		return &TransitionError{BookingID: b.ID, From: b.Status, To: to}
	}
	b.History = append(b.History, models.StatusChange{From: b.Status, To: to, At: at, Reason: reason})
	b.Status = to
	b.UpdatedAt = at
	return nil
}

// reschedulable statuses may still move to another slot.
func reschedulable(s models.BookingStatus) bool {
	switch s {
	case models.StatusPendingPayment, models.StatusPaymentFailed, models.StatusConfirmed:
		return true
	}
	return false
}
