package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"washly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const maxVersionRetries = 5

// MongoBookingRepo implements BookingRepository on MongoDB. It needs a replica
// set: the guard writes a lock document per touched day inside a transaction, so
// two transactions on the same day hit a write conflict and the loser is retried
// against the winner's committed booking.
type MongoBookingRepo struct {
	client      *mongo.Client
	bookingColl *mongo.Collection
	lockColl    *mongo.Collection
}

// NewMongoBookingRepo constructs a repository on the given database.
func NewMongoBookingRepo(client *mongo.Client, dbName string) *MongoBookingRepo {
	db := client.Database(dbName)
	return &MongoBookingRepo{
		client:      client,
		bookingColl: db.Collection("bookings"),
		lockColl:    db.Collection("booking_locks"),
	}
}

func overlapFilter(start, end time.Time, excludeID string) bson.M {
	filter := bson.M{
		"status": bson.M{"$ne": models.StatusCancelled},
		"start":  bson.M{"$lt": end.UTC()},
		"end":    bson.M{"$gt": start.UTC()},
	}
	if excludeID != "" {
		filter["id"] = bson.M{"$ne": excludeID}
	}
	return filter
}

// ensureLockDocs creates the day lock documents outside any transaction, so
// concurrent upserts inside transactions never race on insert.
func (repo *MongoBookingRepo) ensureLockDocs(ctx context.Context, days []string) error {
	for _, day := range days {
		_, err := repo.lockColl.UpdateOne(ctx,
			bson.M{"_id": day},
			bson.M{"$setOnInsert": bson.M{"seq": int64(0)}},
			options.Update().SetUpsert(true),
		)
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to prepare lock for %s: %w", day, err)
		}
	}
	return nil
}

func (repo *MongoBookingRepo) lockDays(sc mongo.SessionContext, days []string) error {
	for _, day := range days {
		_, err := repo.lockColl.UpdateOne(sc,
			bson.M{"_id": day},
			bson.M{"$inc": bson.M{"seq": int64(1)}, "$currentDate": bson.M{"lockedAt": true}},
		)
		if err != nil {
			return fmt.Errorf("failed to lock day %s: %w", day, err)
		}
	}
	return nil
}

// withGuard runs fn in a snapshot transaction holding every day lock of [start, end).
func (repo *MongoBookingRepo) withGuard(ctx context.Context, start, end time.Time, fn func(sc mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	days := LockDays(start, end)
	if err := repo.ensureLockDocs(ctx, days); err != nil {
		return nil, err
	}

	sess, err := repo.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if err := repo.lockDays(sc, days); err != nil {
			return nil, err
		}
		return fn(sc)
	}, txnOpts)
}

func (repo *MongoBookingRepo) CreateBookingIfNoOverlap(ctx context.Context, booking *models.Booking) error {
	_, err := repo.withGuard(ctx, booking.Start, booking.End, func(sc mongo.SessionContext) (interface{}, error) {
		n, err := repo.bookingColl.CountDocuments(sc, overlapFilter(booking.Start, booking.End, ""), options.Count().SetLimit(1))
		if err != nil {
			return nil, fmt.Errorf("overlap check failed: %w", err)
		}
		if n > 0 {
			return nil, ErrOverlap
		}
		if _, err := repo.bookingColl.InsertOne(sc, booking); err != nil {
			return nil, fmt.Errorf("insert booking failed: %w", err)
		}
		return nil, nil
	})
	if errors.Is(err, ErrOverlap) {
		return ErrOverlap
	}
	if err != nil {
		return fmt.Errorf("booking transaction failed: %w", err)
	}
	return nil
}

func (repo *MongoBookingRepo) findOne(ctx context.Context, filter bson.M) (*models.Booking, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking models.Booking
	err := repo.bookingColl.FindOne(ctxWithTimeout, filter).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching booking: %w", err)
	}
	normalize(&booking)
	return &booking, nil
}

func (repo *MongoBookingRepo) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	return repo.findOne(ctx, bson.M{"id": id})
}

func (repo *MongoBookingRepo) GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error) {
	return repo.findOne(ctx, bson.M{"payment.intentId": intentID})
}

func (repo *MongoBookingRepo) ListBookings(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	return repo.find(ctx, bson.M{
		"start": bson.M{"$lt": to.UTC()},
		"end":   bson.M{"$gt": from.UTC()},
	})
}

func (repo *MongoBookingRepo) ListBookingsByStatus(ctx context.Context, statuses []models.BookingStatus, from, to time.Time) ([]models.Booking, error) {
	return repo.find(ctx, bson.M{
		"status": bson.M{"$in": statusStrings(statuses)},
		"start":  bson.M{"$lt": to.UTC()},
		"end":    bson.M{"$gt": from.UTC()},
	})
}

func (repo *MongoBookingRepo) find(ctx context.Context, filter bson.M) ([]models.Booking, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := repo.bookingColl.Find(ctxWithTimeout, filter, options.Find().SetSort(bson.D{{Key: "start", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing bookings: %w", err)
	}
	defer cursor.Close(ctxWithTimeout)

	out := make([]models.Booking, 0)
	for cursor.Next(ctxWithTimeout) {
		var b models.Booking
		if err := cursor.Decode(&b); err != nil {
			return nil, fmt.Errorf("error decoding booking: %w", err)
		}
		normalize(&b)
		out = append(out, b)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

// UpdateBooking retries on version mismatch, mirroring the optimistic
// aggregate updates on embedded timeslots.
func (repo *MongoBookingRepo) UpdateBooking(ctx context.Context, id string, mutate MutateFunc) (*models.Booking, error) {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		before, err := repo.GetBookingByID(ctx, id)
		if err != nil {
			return nil, err
		}
		after := before.Clone()
		if err := mutate(&after); err != nil {
			return nil, err
		}
		if err := checkMutation(*before, after); err != nil {
			return nil, err
		}
		after.Version = before.Version + 1

		res, err := repo.bookingColl.ReplaceOne(ctx, bson.M{"id": id, "version": before.Version}, after)
		if err != nil {
			return nil, fmt.Errorf("error updating booking %s: %w", id, err)
		}
		if res.MatchedCount == 1 {
			return &after, nil
		}
	}
	return nil, ErrVersionConflict
}

func (repo *MongoBookingRepo) RescheduleIfNoOverlap(ctx context.Context, id string, start, end time.Time, mutate MutateFunc) (*models.Booking, error) {
	result, err := repo.withGuard(ctx, start, end, func(sc mongo.SessionContext) (interface{}, error) {
		var current models.Booking
		err := repo.bookingColl.FindOne(sc, bson.M{"id": id}).Decode(&current)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("error fetching booking: %w", err)
		}
		normalize(&current)
		if !current.Status.Live() {
			return nil, ErrImmutableRange
		}

		n, err := repo.bookingColl.CountDocuments(sc, overlapFilter(start, end, id), options.Count().SetLimit(1))
		if err != nil {
			return nil, fmt.Errorf("overlap check failed: %w", err)
		}
		if n > 0 {
			return nil, ErrOverlap
		}

		after := current.Clone()
		after.Start, after.End = start.UTC(), end.UTC()
		if mutate != nil {
			if err := mutate(&after); err != nil {
				return nil, err
			}
		}
		after.Version = current.Version + 1
		res, err := repo.bookingColl.ReplaceOne(sc, bson.M{"id": id, "version": current.Version}, after)
		if err != nil {
			return nil, fmt.Errorf("error rescheduling booking %s: %w", id, err)
		}
		if res.MatchedCount == 0 {
			return nil, ErrVersionConflict
		}
		return &after, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Booking), nil
}

// normalize restores UTC locations dropped by the BSON datetime decoder.
func normalize(b *models.Booking) {
	b.Start = b.Start.UTC()
	b.End = b.End.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
}
