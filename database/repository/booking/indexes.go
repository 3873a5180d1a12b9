package bookingRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the necessary indexes on the bookings collection.
func (repo *MongoBookingRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		// Unique index on booking ID
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// Overlap checks and day listings
		{
			Keys:    bson.D{{Key: "start", Value: 1}, {Key: "end", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("start_end_status_idx"),
		},
		// Reminder and completion sweeps
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "start", Value: 1}},
			Options: options.Index().SetName("status_start_idx"),
		},
		// Webhook lookups
		{
			Keys: bson.D{{Key: "payment.intentId", Value: 1}},
			Options: options.Index().SetName("payment_intent_idx").
				SetPartialFilterExpression(bson.M{"payment.intentId": bson.M{"$type": "string"}}),
		},
	}

	_, err := repo.bookingColl.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}
