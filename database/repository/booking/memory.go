package bookingRepo

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"washly/models"
)

// MemoryBookingRepo keeps bookings in process memory. The overlap guard is a
// mutex per UTC day, so requests on different days never contend.
type MemoryBookingRepo struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	byIntent map[string]string

	locksMu  sync.Mutex
	dayLocks map[string]*sync.Mutex
}

// NewMemoryBookingRepo constructs an empty in-memory repository.
func NewMemoryBookingRepo() *MemoryBookingRepo {
	return &MemoryBookingRepo{
		bookings: make(map[string]*models.Booking),
		byIntent: make(map[string]string),
		dayLocks: make(map[string]*sync.Mutex),
	}
}

// lockDays acquires the day mutexes in sorted order and returns the release func.
func (r *MemoryBookingRepo) lockDays(days []string) func() {
	r.locksMu.Lock()
	held := make([]*sync.Mutex, 0, len(days))
	for _, d := range days {
		m, ok := r.dayLocks[d]
		if !ok {
			m = &sync.Mutex{}
			r.dayLocks[d] = m
		}
		held = append(held, m)
	}
	r.locksMu.Unlock()

	for _, m := range held {
		m.Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (r *MemoryBookingRepo) hasOverlap(start, end time.Time, excludeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, b := range r.bookings {
		if id == excludeID || !b.Status.Live() {
			continue
		}
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r *MemoryBookingRepo) CreateBookingIfNoOverlap(ctx context.Context, booking *models.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release := r.lockDays(LockDays(booking.Start, booking.End))
	defer release()

	if r.hasOverlap(booking.Start, booking.End, "") {
		return ErrOverlap
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}
	stored := booking.Clone()
	r.bookings[booking.ID] = &stored
	if stored.Payment.IntentID != "" {
		r.byIntent[stored.Payment.IntentID] = stored.ID
	}
	return nil
}

func (r *MemoryBookingRepo) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := b.Clone()
	return &out, nil
}

func (r *MemoryBookingRepo) GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error) {
	r.mu.RLock()
	id, ok := r.byIntent[intentID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetBookingByID(ctx, id)
}

func (r *MemoryBookingRepo) ListBookings(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	return r.list(func(b *models.Booking) bool { return b.Overlaps(from, to) }), nil
}

func (r *MemoryBookingRepo) ListBookingsByStatus(ctx context.Context, statuses []models.BookingStatus, from, to time.Time) ([]models.Booking, error) {
	return r.list(func(b *models.Booking) bool {
		return slices.Contains(statuses, b.Status) && b.Overlaps(from, to)
	}), nil
}

func (r *MemoryBookingRepo) list(keep func(*models.Booking) bool) []models.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Booking, 0)
	for _, b := range r.bookings {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (r *MemoryBookingRepo) UpdateBooking(ctx context.Context, id string, mutate MutateFunc) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(id, mutate, func(before, after models.Booking) error {
		return checkMutation(before, after)
	})
}

func (r *MemoryBookingRepo) RescheduleIfNoOverlap(ctx context.Context, id string, start, end time.Time, mutate MutateFunc) (*models.Booking, error) {
	release := r.lockDays(LockDays(start, end))
	defer release()

	if r.hasOverlap(start, end, id) {
		return nil, ErrOverlap
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(id, func(b *models.Booking) error {
		if !b.Status.Live() {
			return ErrImmutableRange
		}
		b.Start, b.End = start.UTC(), end.UTC()
		if mutate != nil {
			return mutate(b)
		}
		return nil
	}, func(before, after models.Booking) error {
		if after.ID != before.ID || !after.Start.Equal(start) || !after.End.Equal(end) {
			return ErrImmutableRange
		}
		return nil
	})
}

// applyLocked runs mutate on a copy and stores it. Caller holds r.mu.
func (r *MemoryBookingRepo) applyLocked(id string, mutate MutateFunc, check func(before, after models.Booking) error) (*models.Booking, error) {
	current, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	before := current.Clone()
	after := current.Clone()
	if err := mutate(&after); err != nil {
		return nil, err
	}
	if err := check(before, after); err != nil {
		return nil, err
	}
	after.Version = before.Version + 1
	r.bookings[id] = &after
	if after.Payment.IntentID != "" {
		r.byIntent[after.Payment.IntentID] = id
	}
	out := after.Clone()
	return &out, nil
}
