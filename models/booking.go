package models

import "time"

// BookingStatus is a state of the booking lifecycle.
type BookingStatus string

const (
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusPaymentFailed  BookingStatus = "payment_failed"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusReminderSent   BookingStatus = "reminder_sent"
	StatusCompleted      BookingStatus = "completed"
	StatusCancelled      BookingStatus = "cancelled"
	StatusNoShow         BookingStatus = "no_show"
)

// Live reports whether a booking in this status still holds its time range.
func (s BookingStatus) Live() bool {
	return s != StatusCancelled
}

// Customer is the contact the booking belongs to.
type Customer struct {
	Name  string `bson:"name" json:"name" validate:"required,max=128"`
	Email string `bson:"email" json:"email" validate:"required,email"`
	Phone string `bson:"phone" json:"phone" validate:"required,e164"`
}

// StatusChange is one entry of a booking's audit trail.
type StatusChange struct {
	From   BookingStatus `bson:"from" json:"from"`
	To     BookingStatus `bson:"to" json:"to"`
	At     time.Time     `bson:"at" json:"at"`
	Reason string        `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Booking represents a reservation of the service resource.
type Booking struct {
	ID            string             `bson:"id" json:"id"` // UUID
	ServiceID     string             `bson:"serviceId" json:"serviceId"`
	AddOnIDs      []string           `bson:"addOnIds" json:"addOns"` // ordered, unique
	Customer      Customer           `bson:"customer" json:"customer"`
	Address       string             `bson:"address" json:"address"`
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Start         time.Time          `bson:"start" json:"start"` // UTC
	End           time.Time          `bson:"end" json:"end"`     // start + service + add-on durations
	Status        BookingStatus      `bson:"status" json:"status"`
	Payment       PaymentRecord      `bson:"payment" json:"payment"`
	Calendar      CalendarRecord     `bson:"calendar" json:"calendar"`
	Notifications NotificationRecord `bson:"notifications" json:"notifications"`
	History       []StatusChange     `bson:"history" json:"history"`
	CancelReason  string             `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	CancelledAt   *time.Time         `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	Version       int                `bson:"version" json:"-"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Overlaps reports whether the booking's half-open range intersects [start, end).
func (b Booking) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && start.Before(b.End)
}

// Clone returns a deep copy so stores never share slices with callers.
func (b Booking) Clone() Booking {
	out := b
	out.AddOnIDs = append([]string(nil), b.AddOnIDs...)
	out.History = append([]StatusChange(nil), b.History...)
	if b.Payment.PaidAt != nil {
		t := *b.Payment.PaidAt
		out.Payment.PaidAt = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		out.CancelledAt = &t
	}
	return out
}

// CreateBookingRequest is the payload accepted by the booking endpoint.
type CreateBookingRequest struct {
	ServiceID     string        `json:"serviceId" validate:"required"`
	AddOnIDs      []string      `json:"addOns" validate:"max=10"`
	Customer      Customer      `json:"customer"`
	Address       string        `json:"address" validate:"required,max=256"`
	Notes         string        `json:"notes" validate:"max=1000"`
	Start         string        `json:"start" validate:"required"` // RFC3339 instant of the chosen slot
	PaymentOption PaymentOption `json:"paymentOption" validate:"omitempty,oneof=full deposit"`
}

// RescheduleRequest moves a booking to another slot.
type RescheduleRequest struct {
	Start string `json:"start" binding:"required"`
}

// CancelRequest carries an optional reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// QuoteRequest asks the pricing engine for a preview.
type QuoteRequest struct {
	ServiceID     string        `json:"serviceId" validate:"required"`
	AddOnIDs      []string      `json:"addOns"`
	PaymentOption PaymentOption `json:"paymentOption" validate:"omitempty,oneof=full deposit"`
}

// BookingConfirmation is returned when a booking is reserved.
type BookingConfirmation struct {
	Booking Booking `json:"booking"`
	Quote   Quote   `json:"quote"`
	Message string  `json:"message"`
}
