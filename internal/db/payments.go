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

type PaymentRepository struct {
	collection *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{collection: db.Collection(CollectionPayments)}
}

// Create inserts the payment. If a payment with the same gateway PaymentID
// already exists, the stored record is returned with created=false.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	now := time.Now().UTC()
	payment.ID = primitive.NewObjectID()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = now
	}

	if _, err := r.collection.InsertOne(ctx, payment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, findErr := r.FindByPaymentID(ctx, payment.PaymentID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to save payment: %w", err)
	}
	return payment, true, nil
}

func (r *PaymentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.collection.FindOne(ctx, bson.M{"paymentId": paymentID}).Decode(&payment); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("Payment not found")
		}
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}
	return &payment, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID primitive.ObjectID, page Page) ([]models.Payment, Pagination, error) {
	return r.list(ctx, bson.M{"user": userID}, page)
}

func (r *PaymentRepository) ListByMerchant(ctx context.Context, merchantID primitive.ObjectID, page Page) ([]models.Payment, Pagination, error) {
	return r.list(ctx, bson.M{"merchant": merchantID}, page)
}

func (r *PaymentRepository) list(ctx context.Context, query bson.M, page Page) ([]models.Payment, Pagination, error) {
	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count payments: %w", err)
	}

	cur, err := r.collection.Find(ctx, query, page.findOptions().SetSort(bson.D{{Key: "paymentDate", Value: -1}}))
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to fetch payments: %w", err)
	}
	defer cur.Close(ctx)

	payments := []models.Payment{}
	if err := cur.All(ctx, &payments); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to decode payments: %w", err)
	}
	return payments, NewPagination(page, total), nil
}
