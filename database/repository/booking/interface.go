package bookingRepo

import (
	"context"
	"errors"
	"sort"
	"time"

	"washly/models"
)

var (
	// ErrOverlap is returned when a live booking already holds part of the range.
	ErrOverlap = errors.New("booking overlaps an existing reservation")
	// ErrNotFound is returned for unknown booking ids or intent ids.
	ErrNotFound = errors.New("booking not found")
	// ErrVersionConflict is returned when optimistic retries are exhausted.
	ErrVersionConflict = errors.New("booking was modified concurrently")
	// ErrImmutableRange is returned when a mutation touches the id or time range,
	// or tries to revive a cancelled booking.
	ErrImmutableRange = errors.New("booking range and identity can only change through reschedule")
)

// MutateFunc edits a copy of the stored booking. Returning an error aborts the update.
type MutateFunc func(b *models.Booking) error

// BookingRepository is the persistence store behind the conflict guard.
type BookingRepository interface {
	// CreateBookingIfNoOverlap atomically checks for live bookings intersecting
	// [booking.Start, booking.End) and inserts the booking only if none exist.
	CreateBookingIfNoOverlap(ctx context.Context, booking *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error)
	// ListBookings returns every booking, cancelled included, intersecting [from, to), ordered by start.
	ListBookings(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	ListBookingsByStatus(ctx context.Context, statuses []models.BookingStatus, from, to time.Time) ([]models.Booking, error)
	// UpdateBooking applies mutate as a version-checked read-modify-write.
	UpdateBooking(ctx context.Context, id string, mutate MutateFunc) (*models.Booking, error)
	// RescheduleIfNoOverlap moves a live booking to [start, end) under the same
	// guarantees as CreateBookingIfNoOverlap, ignoring the booking itself.
	RescheduleIfNoOverlap(ctx context.Context, id string, start, end time.Time, mutate MutateFunc) (*models.Booking, error)
}

// LockDays returns the sorted UTC days the range [start, end) touches.
// Any two overlapping ranges share at least one of these keys.
func LockDays(start, end time.Time) []string {
	start, end = start.UTC(), end.UTC()
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	days := []string{day.Format(time.DateOnly)}
	for day = day.AddDate(0, 0, 1); day.Before(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day.Format(time.DateOnly))
	}
	sort.Strings(days)
	return days
}

// checkMutation enforces the fields only the guard may change.
func checkMutation(before, after models.Booking) error {
	if after.ID != before.ID || !after.Start.Equal(before.Start) || !after.End.Equal(before.End) {
		return ErrImmutableRange
	}
	if !before.Status.Live() && after.Status.Live() {
		return ErrImmutableRange
	}
	return nil
}

func statusStrings(statuses []models.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
