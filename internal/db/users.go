package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection(CollectionUsers)}
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Validation("User already exists")
		}
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}

// ListByRole pages through users of one role, without password hashes.
func (r *UserRepository) ListByRole(ctx context.Context, role string, page Page) ([]models.User, Pagination, error) {
	query := bson.M{"role": role}
	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count users: %w", err)
	}

	opts := page.findOptions().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.D{{Key: "password", Value: 0}})
	cur, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to fetch users: %w", err)
	}
	defer cur.Close(ctx)

	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, NewPagination(page, total), nil
}

type VerificationRepository struct {
	collection *mongo.Collection
}

func NewVerificationRepository(db *mongo.Database) *VerificationRepository {
	return &VerificationRepository{collection: db.Collection(CollectionVerifications)}
}

// Replace drops any outstanding OTPs for email and stores otp.
func (r *VerificationRepository) Replace(ctx context.Context, email, otp string) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"email": email}); err != nil {
		return fmt.Errorf("failed to clear verifications: %w", err)
	}
	_, err := r.collection.InsertOne(ctx, models.Verification{
		ID:        primitive.NewObjectID(),
		Email:     email,
		OTP:       otp,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}
	return nil
}

// Consume deletes the matching OTP and reports whether one existed.
func (r *VerificationRepository) Consume(ctx context.Context, email, otp string) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"email": email, "otp": otp})
	if err != nil {
		return false, fmt.Errorf("failed to consume verification: %w", err)
	}
	return res.DeletedCount == 1, nil
}
