package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types dispatched by the lifecycle coordinator. Each targets one
// collaborator and one booking.
const (
	TypeCreatePaymentIntent = "payment:create_intent"
	TypeCreateCalendarEvent = "calendar:create_event"
	TypeCancelCalendarEvent = "calendar:cancel_event"
	TypeSendConfirmation    = "notify:confirmation"
	TypeSendReminder        = "notify:reminder"
	TypeSendCancellation    = "notify:cancellation"
)

// AllTypes lists every task type the worker registers.
var AllTypes = []string{
	TypeCreatePaymentIntent,
	TypeCreateCalendarEvent,
	TypeCancelCalendarEvent,
	TypeSendConfirmation,
	TypeSendReminder,
	TypeSendCancellation,
}

// BookingPayload is the body of every task. Handlers reload the booking so a
// retried task always acts on current state.
type BookingPayload struct {
	BookingID string `json:"bookingId"`
}

// TaskID is the deduplication key of a task: one live task per type and booking.
func TaskID(taskType, bookingID string) string {
	return taskType + ":" + bookingID
}

// NewBookingTask builds a task for bookingID with its id and retry budget set.
func NewBookingTask(taskType, bookingID string, maxRetry int) (*asynq.Task, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("task %s needs a booking id", taskType)
	}
	b, err := json.Marshal(BookingPayload{BookingID: bookingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, b,
		asynq.TaskID(TaskID(taskType, bookingID)),
		asynq.MaxRetry(maxRetry),
	), nil
}

// ParseBookingPayload decodes a task body. Malformed payloads are never retried.
func ParseBookingPayload(task *asynq.Task) (BookingPayload, error) {
	var p BookingPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	if p.BookingID == "" {
		return p, fmt.Errorf("%s payload has no booking id: %w", task.Type(), asynq.SkipRetry)
	}
	return p, nil
}
