package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

func TestNewPagination(t *testing.T) {
	t.Parallel()

	p := NewPagination(Page{Page: 2, Limit: 10}, 25)
	if p.TotalPages != 3 || !p.HasNextPage || !p.HasPrevPage || p.PageSize != 10 {
		t.Errorf("Unexpected pagination %+v", p)
	}

	p = NewPagination(Page{}, 0)
	if p.Page != 1 || p.PageSize != defaultPageSize || p.HasNextPage || p.HasPrevPage {
		t.Errorf("Unexpected default pagination %+v", p)
	}

	p = NewPagination(Page{Page: 1, Limit: 1000}, 5)
	if p.PageSize != maxPageSize {
		t.Errorf("Expected page size capped at %d, got %d", maxPageSize, p.PageSize)
	}
}

func TestMerchantQueryDerivesSubscriptionStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	q := merchantQuery(MerchantFilter{SubscriptionStatus: models.SubscriptionActive, Now: now})
	if q["subscriptionStatus"] != models.SubscriptionActive {
		t.Errorf("Expected active status filter, got %v", q)
	}
	if cond, ok := q["subscriptionExpiryDate"].(bson.M); !ok || cond["$gt"] != now {
		t.Errorf("Expected expiry > now, got %v", q["subscriptionExpiryDate"])
	}

	q = merchantQuery(MerchantFilter{SubscriptionStatus: models.SubscriptionExpired, Now: now})
	if or, ok := q["$or"].(bson.A); !ok || len(or) != 2 {
		t.Errorf("Expected $or with two branches for expired, got %v", q)
	}

	q = merchantQuery(MerchantFilter{Status: models.MerchantPending, Keyword: "gold (mumbai)"})
	if q["status"] != models.MerchantPending {
		t.Errorf("Expected status filter, got %v", q)
	}
	re, ok := q["name"].(primitive.Regex)
	if !ok || re.Pattern != `gold \(mumbai\)` || re.Options != "i" {
		t.Errorf("Expected escaped case-insensitive regex, got %v", q["name"])
	}
}

func TestMerchantRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("find missing merchant", func(mt *mtest.T) {
		repo := &MerchantRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "aurumdb.merchants", mtest.FirstBatch))

		_, err := repo.FindByID(context.Background(), primitive.NewObjectID())
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("Expected not found, got %v", err)
		}
	})

	mt.Run("save advances version", func(mt *mtest.T) {
		repo := &MerchantRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		m := &models.Merchant{ID: primitive.NewObjectID(), Version: 4}
		if err := repo.Save(context.Background(), m); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if m.Version != 5 {
			t.Errorf("Expected version 5, got %d", m.Version)
		}
	})

	mt.Run("save detects stale version", func(mt *mtest.T) {
		repo := &MerchantRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		m := &models.Merchant{ID: primitive.NewObjectID(), Version: 4}
		err := repo.Save(context.Background(), m)
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("Expected version conflict, got %v", err)
		}
		if m.Version != 4 {
			t.Errorf("Expected version restored to 4, got %d", m.Version)
		}
	})

	mt.Run("create duplicate email", func(mt *mtest.T) {
		repo := &MerchantRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		err := repo.Create(context.Background(), &models.Merchant{Email: "a@b.c"})
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("Expected validation error, got %v", err)
		}
	})
}

func TestPaymentRepositoryCreateIsIdempotent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate payment id returns stored record", func(mt *mtest.T) {
		repo := &PaymentRepository{collection: mt.Coll}
		storedID := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
			mtest.CreateCursorResponse(0, "aurumdb.payments", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: storedID},
				{Key: "paymentId", Value: "PAYID-1"},
				{Key: "status", Value: "Completed"},
				{Key: "amount", Value: 1500.0},
			}),
		)

		got, created, err := repo.Create(context.Background(), &models.Payment{PaymentID: "PAYID-1", Amount: 1500})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if created {
			t.Error("Expected created=false for duplicate")
		}
		if got.ID != storedID || got.Status != models.PaymentCompleted {
			t.Errorf("Expected stored payment, got %+v", got)
		}
	})

	mt.Run("first insert creates", func(mt *mtest.T) {
		repo := &PaymentRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		got, created, err := repo.Create(context.Background(), &models.Payment{PaymentID: "PAYID-2"})
		if err != nil || !created {
			t.Fatalf("Expected created payment, got created=%v err=%v", created, err)
		}
		if got.ID.IsZero() || got.PaymentDate.IsZero() {
			t.Errorf("Expected id and payment date to be set, got %+v", got)
		}
	})
}

func TestChitPlanRepositoryAddSubscriber(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("adds new subscriber", func(mt *mtest.T) {
		repo := &ChitPlanRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		added, err := repo.AddSubscriber(context.Background(), primitive.NewObjectID(), models.Subscription{User: primitive.NewObjectID()})
		if err != nil || !added {
			t.Fatalf("Expected subscriber added, got added=%v err=%v", added, err)
		}
	})

	mt.Run("already subscribed", func(mt *mtest.T) {
		repo := &ChitPlanRepository{collection: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "aurumdb.chitplans", mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}),
		)

		added, err := repo.AddSubscriber(context.Background(), primitive.NewObjectID(), models.Subscription{User: primitive.NewObjectID()})
		if err != nil || added {
			t.Fatalf("Expected no-op, got added=%v err=%v", added, err)
		}
	})

	mt.Run("missing plan", func(mt *mtest.T) {
		repo := &ChitPlanRepository{collection: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "aurumdb.chitplans", mtest.FirstBatch),
		)

		_, err := repo.AddSubscriber(context.Background(), primitive.NewObjectID(), models.Subscription{User: primitive.NewObjectID()})
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("Expected not found, got %v", err)
		}
	})
}
