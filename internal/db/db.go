package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	CollectionUsers         = "users"
	CollectionMerchants     = "merchants"
	CollectionChitPlans     = "chitplans"
	CollectionPayments      = "payments"
	CollectionVerifications = "verifications"
	CollectionIdempotency   = "idempotency_keys"
)

// Connect opens a client and pings the primary before returning it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique and lookup indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, database *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		CollectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		CollectionMerchants: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "subscriptionStatus", Value: 1}, {Key: "subscriptionExpiryDate", Value: 1}}},
		},
		CollectionChitPlans: {
			{Keys: bson.D{{Key: "merchant", Value: 1}}},
			{Keys: bson.D{{Key: "subscribers.user", Value: 1}}},
		},
		CollectionPayments: {
			{Keys: bson.D{{Key: "paymentId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "paymentDate", Value: -1}}},
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "paymentDate", Value: -1}}},
		},
		CollectionVerifications: {
			{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(600)},
			{Keys: bson.D{{Key: "email", Value: 1}}},
		},
		CollectionIdempotency: {
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}

	for name, models := range indexes {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			logger.Error("failed to create indexes", zap.String("collection", name), zap.Error(err))
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	logger.Info("mongo indexes ensured")
	return nil
}
