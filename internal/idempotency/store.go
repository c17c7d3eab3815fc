// Package idempotency records gateway callbacks that have already been acted
// on, so a replayed callback does not apply its state transition twice.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store claims keys. Claim returns true only for the first caller of a key
// within its TTL; Release gives a claim back when the guarded work failed.
type Store interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

func Key(scope, id string) string {
	return fmt.Sprintf("idem:%s:%s", scope, id)
}

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// MongoStore keeps claims as documents keyed by _id; a TTL index on
// expiresAt removes them.
type MongoStore struct {
	collection *mongo.Collection
	ttl        time.Duration
}

func NewMongoStore(collection *mongo.Collection, ttl time.Duration) *MongoStore {
	return &MongoStore{collection: collection, ttl: ttl}
}

func (s *MongoStore) Claim(ctx context.Context, key string) (bool, error) {
	now := time.Now().UTC()
	_, err := s.collection.InsertOne(ctx, bson.M{
		"_id":       key,
		"claimedAt": now,
		"expiresAt": now.Add(s.ttl),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *MongoStore) Release(ctx context.Context, key string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}
