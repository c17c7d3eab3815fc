package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

// ErrVersionConflict is returned by Save when the merchant was written by
// someone else since it was read.
var ErrVersionConflict = &apperr.Error{Kind: apperr.ErrConflict, Message: "merchant was modified concurrently"}

var merchantSortFields = map[string]bool{
	"createdAt":              true,
	"updatedAt":              true,
	"name":                   true,
	"status":                 true,
	"plan":                   true,
	"subscriptionExpiryDate": true,
}

type MerchantFilter struct {
	Status             models.MerchantStatus
	SubscriptionStatus models.SubscriptionStatus
	Keyword            string
	Sort               string
	Now                time.Time
	Page               Page
}

type MerchantRepository struct {
	collection *mongo.Collection
}

func NewMerchantRepository(db *mongo.Database) *MerchantRepository {
	return &MerchantRepository{collection: db.Collection(CollectionMerchants)}
}

func (r *MerchantRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Merchant, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MerchantRepository) FindByEmail(ctx context.Context, email string) (*models.Merchant, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MerchantRepository) findOne(ctx context.Context, filter bson.M) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := r.collection.FindOne(ctx, filter).Decode(&merchant); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("Merchant not found")
		}
		return nil, fmt.Errorf("failed to fetch merchant: %w", err)
	}
	return &merchant, nil
}

func (r *MerchantRepository) Create(ctx context.Context, merchant *models.Merchant) error {
	now := time.Now().UTC()
	merchant.ID = primitive.NewObjectID()
	merchant.CreatedAt = now
	merchant.UpdatedAt = now
	merchant.Version = 1

	if _, err := r.collection.InsertOne(ctx, merchant); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Validation("Merchant already exists")
		}
		return fmt.Errorf("failed to save merchant: %w", err)
	}
	return nil
}

// Save replaces the merchant only if its stored version still matches the
// version it was read at, then advances the version.
func (r *MerchantRepository) Save(ctx context.Context, merchant *models.Merchant) error {
	readVersion := merchant.Version
	merchant.Version = readVersion + 1
	merchant.UpdatedAt = time.Now().UTC()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": merchant.ID, "version": readVersion}, merchant)
	if err != nil {
		merchant.Version = readVersion
		return fmt.Errorf("failed to update merchant: %w", err)
	}
	if res.MatchedCount == 0 {
		merchant.Version = readVersion
		return ErrVersionConflict
	}
	return nil
}

func (r *MerchantRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete merchant: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Merchant not found")
	}
	return nil
}

func (r *MerchantRepository) List(ctx context.Context, f MerchantFilter) ([]models.Merchant, Pagination, error) {
	query := merchantQuery(f)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count merchants: %w", err)
	}

	sortField := "createdAt"
	if merchantSortFields[f.Sort] {
		sortField = f.Sort
	}
	opts := f.Page.findOptions().
		SetSort(bson.D{{Key: sortField, Value: -1}}).
		SetProjection(bson.M{"password": 0})

	cur, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to fetch merchants: %w", err)
	}
	defer cur.Close(ctx)

	merchants := []models.Merchant{}
	if err := cur.All(ctx, &merchants); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to decode merchants: %w", err)
	}
	return merchants, NewPagination(f.Page, total), nil
}

// merchantQuery translates the filter; subscription status is derived from
// the expiry date rather than trusted from the stored field.
func merchantQuery(f MerchantFilter) bson.M {
	query := bson.M{}
	if f.Status != "" {
		query["status"] = f.Status
	}
	if f.Keyword != "" {
		query["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Keyword), Options: "i"}
	}
	switch f.SubscriptionStatus {
	case models.SubscriptionActive:
		query["subscriptionStatus"] = models.SubscriptionActive
		query["subscriptionExpiryDate"] = bson.M{"$gt": f.Now}
	case models.SubscriptionExpired:
		query["$or"] = bson.A{
			bson.M{"subscriptionStatus": models.SubscriptionExpired},
			bson.M{"subscriptionStatus": models.SubscriptionActive, "subscriptionExpiryDate": bson.M{"$lte": f.Now}},
		}
	case models.SubscriptionCancelled:
		query["subscriptionStatus"] = models.SubscriptionCancelled
	}
	return query
}
