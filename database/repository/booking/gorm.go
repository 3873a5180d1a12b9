package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"washly/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// bookingRecord is the relational shape of a booking. Sub-records are JSON columns.
type bookingRecord struct {
	ID              string                      `gorm:"primaryKey;size:36"`
	ServiceID       string                      `gorm:"size:64;not null"`
	AddOnIDs        datatypes.JSONSlice[string] `gorm:"column:add_on_ids"`
	CustomerName    string                      `gorm:"size:128;not null"`
	CustomerEmail   string                      `gorm:"size:256;not null"`
	CustomerPhone   string                      `gorm:"size:32;not null"`
	Address         string                      `gorm:"not null"`
	Notes           string
	StartsAt        time.Time `gorm:"not null;index:idx_bookings_range,priority:1"`
	EndsAt          time.Time `gorm:"not null;index:idx_bookings_range,priority:2"`
	Status          string    `gorm:"size:32;not null;index"`
	PaymentIntentID string    `gorm:"size:128;index"`
	Payment         datatypes.JSONType[models.PaymentRecord]
	Calendar        datatypes.JSONType[models.CalendarRecord]
	Notifications   datatypes.JSONType[models.NotificationRecord]
	History         datatypes.JSONSlice[models.StatusChange]
	CancelReason    string
	CancelledAt     *time.Time
	Version         int `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (bookingRecord) TableName() string { return "bookings" }

// dayLockRecord is the row locked with SELECT ... FOR UPDATE by the guard.
type dayLockRecord struct {
	Day string `gorm:"primaryKey;size:10"`
	Seq int64  `gorm:"not null;default:0"`
}

func (dayLockRecord) TableName() string { return "booking_day_locks" }

func toRecord(b models.Booking) bookingRecord {
	return bookingRecord{
		ID:              b.ID,
		ServiceID:       b.ServiceID,
		AddOnIDs:        datatypes.JSONSlice[string](b.AddOnIDs),
		CustomerName:    b.Customer.Name,
		CustomerEmail:   b.Customer.Email,
		CustomerPhone:   b.Customer.Phone,
		Address:         b.Address,
		Notes:           b.Notes,
		StartsAt:        b.Start.UTC(),
		EndsAt:          b.End.UTC(),
		Status:          string(b.Status),
		PaymentIntentID: b.Payment.IntentID,
		Payment:         datatypes.NewJSONType(b.Payment),
		Calendar:        datatypes.NewJSONType(b.Calendar),
		Notifications:   datatypes.NewJSONType(b.Notifications),
		History:         datatypes.JSONSlice[models.StatusChange](b.History),
		CancelReason:    b.CancelReason,
		CancelledAt:     b.CancelledAt,
		Version:         b.Version,
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
	}
}

func (r bookingRecord) toModel() models.Booking {
	b := models.Booking{
		ID:            r.ID,
		ServiceID:     r.ServiceID,
		AddOnIDs:      []string(r.AddOnIDs),
		Customer:      models.Customer{Name: r.CustomerName, Email: r.CustomerEmail, Phone: r.CustomerPhone},
		Address:       r.Address,
		Notes:         r.Notes,
		Start:         r.StartsAt.UTC(),
		End:           r.EndsAt.UTC(),
		Status:        models.BookingStatus(r.Status),
		Payment:       r.Payment.Data(),
		Calendar:      r.Calendar.Data(),
		Notifications: r.Notifications.Data(),
		History:       []models.StatusChange(r.History),
		CancelReason:  r.CancelReason,
		CancelledAt:   r.CancelledAt,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if b.AddOnIDs == nil {
		b.AddOnIDs = []string{}
	}
	return b
}

// GormBookingRepo implements BookingRepository on a SQL database through gorm.
// On Postgres the guard serializes overlapping writers through row locks on
// booking_day_locks.
type GormBookingRepo struct {
	db *gorm.DB
}

// NewGormBookingRepo constructs a repository on an open gorm handle.
func NewGormBookingRepo(db *gorm.DB) *GormBookingRepo {
	return &GormBookingRepo{db: db}
}

// Migrate creates or updates the booking tables.
func (r *GormBookingRepo) Migrate() error {
	return r.db.AutoMigrate(&bookingRecord{}, &dayLockRecord{})
}

func lockDayRows(tx *gorm.DB, days []string) error {
	for _, day := range days {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&dayLockRecord{Day: day}).Error; err != nil {
			return fmt.Errorf("failed to prepare lock for %s: %w", day, err)
		}
	}
	var locks []dayLockRecord
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("day IN ?", days).
		Order("day").
		Find(&locks).Error; err != nil {
		return fmt.Errorf("failed to lock days: %w", err)
	}
	return nil
}

func overlapScope(start, end time.Time, excludeID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		q := db.Where("status <> ? AND starts_at < ? AND ends_at > ?", string(models.StatusCancelled), end.UTC(), start.UTC())
		if excludeID != "" {
			q = q.Where("id <> ?", excludeID)
		}
		return q
	}
}

func (r *GormBookingRepo) CreateBookingIfNoOverlap(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDayRows(tx, LockDays(booking.Start, booking.End)); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&bookingRecord{}).Scopes(overlapScope(booking.Start, booking.End, "")).Count(&count).Error; err != nil {
			return fmt.Errorf("overlap check failed: %w", err)
		}
		if count > 0 {
			return ErrOverlap
		}
		rec := toRecord(*booking)
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert booking failed: %w", err)
		}
		return nil
	})
}

func (r *GormBookingRepo) first(ctx context.Context, query string, arg any) (*models.Booking, error) {
	var rec bookingRecord
	err := r.db.WithContext(ctx).Where(query, arg).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching booking: %w", err)
	}
	b := rec.toModel()
	return &b, nil
}

func (r *GormBookingRepo) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormBookingRepo) GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error) {
	return r.first(ctx, "payment_intent_id = ?", intentID)
}

func (r *GormBookingRepo) ListBookings(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	return r.list(r.db.WithContext(ctx).Where("starts_at < ? AND ends_at > ?", to.UTC(), from.UTC()))
}

func (r *GormBookingRepo) ListBookingsByStatus(ctx context.Context, statuses []models.BookingStatus, from, to time.Time) ([]models.Booking, error) {
	return r.list(r.db.WithContext(ctx).
		Where("status IN ?", statusStrings(statuses)).
		Where("starts_at < ? AND ends_at > ?", to.UTC(), from.UTC()))
}

func (r *GormBookingRepo) list(q *gorm.DB) ([]models.Booking, error) {
	var recs []bookingRecord
	if err := q.Order("starts_at ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("error listing bookings: %w", err)
	}
	out := make([]models.Booking, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// lockedBooking loads a booking row FOR UPDATE inside tx.
func lockedBooking(tx *gorm.DB, id string) (*models.Booking, error) {
	var rec bookingRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching booking: %w", err)
	}
	b := rec.toModel()
	return &b, nil
}

func saveVersioned(tx *gorm.DB, before, after models.Booking) error {
	after.Version = before.Version + 1
	rec := toRecord(after)
	res := tx.Model(&bookingRecord{}).
		Where("id = ? AND version = ?", before.ID, before.Version).
		Select("*").
		Updates(&rec)
	if res.Error != nil {
		return fmt.Errorf("error updating booking %s: %w", before.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *GormBookingRepo) UpdateBooking(ctx context.Context, id string, mutate MutateFunc) (*models.Booking, error) {
	var out models.Booking
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := lockedBooking(tx, id)
		if err != nil {
			return err
		}
		after := before.Clone()
		if err := mutate(&after); err != nil {
			return err
		}
		if err := checkMutation(*before, after); err != nil {
			return err
		}
		if err := saveVersioned(tx, *before, after); err != nil {
			return err
		}
		out = after
		out.Version = before.Version + 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GormBookingRepo) RescheduleIfNoOverlap(ctx context.Context, id string, start, end time.Time, mutate MutateFunc) (*models.Booking, error) {
	var out models.Booking
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDayRows(tx, LockDays(start, end)); err != nil {
			return err
		}
		before, err := lockedBooking(tx, id)
		if err != nil {
			return err
		}
		if !before.Status.Live() {
			return ErrImmutableRange
		}
		var count int64
		if err := tx.Model(&bookingRecord{}).Scopes(overlapScope(start, end, id)).Count(&count).Error; err != nil {
			return fmt.Errorf("overlap check failed: %w", err)
		}
		if count > 0 {
			return ErrOverlap
		}
		after := before.Clone()
		after.Start, after.End = start.UTC(), end.UTC()
		if mutate != nil {
			if err := mutate(&after); err != nil {
				return err
			}
		}
		if err := saveVersioned(tx, *before, after); err != nil {
			return err
		}
		out = after
		out.Version = before.Version + 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
