package booking

import (
	"fmt"
	"time"

	"washly/models"
)

// ValidationError reports a malformed or incomplete request. Nothing was written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports that the requested range is held by another live booking.
type ConflictError struct {
	Start time.Time
	End   time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("requested time %s-%s is no longer available",
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("booking %s not found", e.ID)
}

// TransitionError reports an operation the booking's current status does not allow.
// Op names a refused operation that is not a status change, such as a reschedule.
type TransitionError struct {
	BookingID string
	From      models.BookingStatus
	To        models.BookingStatus
	Op        string
}

func (e *TransitionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("booking %s cannot be %s while %s", e.BookingID, e.Op, e.From)
	}
	return fmt.Sprintf("booking %s cannot move from %s to %s", e.BookingID, e.From, e.To)
}

// CollaboratorError wraps a payment, calendar or SMS failure. It is recorded on
// the booking's sub-record and returned to the task runner only.
type CollaboratorError struct {
	Collaborator string
	BookingID    string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed for booking %s: %v", e.Collaborator, e.BookingID, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
