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
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

type ChitPlanRepository struct {
	collection *mongo.Collection
	merchants  *mongo.Collection
}

func NewChitPlanRepository(db *mongo.Database) *ChitPlanRepository {
	return &ChitPlanRepository{
		collection: db.Collection(CollectionChitPlans),
		merchants:  db.Collection(CollectionMerchants),
	}
}

func (r *ChitPlanRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.ChitPlan, error) {
	var plan models.ChitPlan
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&plan); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("Chit plan not found")
		}
		return nil, fmt.Errorf("failed to fetch chit plan: %w", err)
	}
	return &plan, nil
}

func (r *ChitPlanRepository) Create(ctx context.Context, plan *models.ChitPlan) error {
	now := time.Now().UTC()
	plan.ID = primitive.NewObjectID()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if plan.Subscribers == nil {
		plan.Subscribers = []models.Subscription{}
	}
	if _, err := r.collection.InsertOne(ctx, plan); err != nil {
		return fmt.Errorf("failed to save chit plan: %w", err)
	}
	return nil
}

// Save writes the plan's editable fields. Subscribers are only changed
// through AddSubscriber.
func (r *ChitPlanRepository) Save(ctx context.Context, plan *models.ChitPlan) error {
	plan.UpdatedAt = time.Now().UTC()
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": plan.ID}, bson.M{"$set": bson.M{
		"planName":       plan.PlanName,
		"monthlyAmount":  plan.MonthlyAmount,
		"durationMonths": plan.DurationMonths,
		"totalAmount":    plan.TotalAmount,
		"description":    plan.Description,
		"updatedAt":      plan.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("failed to update chit plan: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Chit plan not found")
	}
	return nil
}

func (r *ChitPlanRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete chit plan: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Chit plan not found")
	}
	return nil
}

func (r *ChitPlanRepository) CountByMerchant(ctx context.Context, merchantID primitive.ObjectID) (int, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"merchant": merchantID})
	if err != nil {
		return 0, fmt.Errorf("failed to count chit plans: %w", err)
	}
	return int(n), nil
}

// AddSubscriber appends the subscription unless the user is already listed.
// The membership check and the push are one atomic update.
func (r *ChitPlanRepository) AddSubscriber(ctx context.Context, planID primitive.ObjectID, sub models.Subscription) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": planID, "subscribers.user": bson.M{"$ne": sub.User}},
		bson.M{
			"$push": bson.M{"subscribers": sub},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to add subscriber: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": planID})
	if err != nil {
		return false, fmt.Errorf("failed to fetch chit plan: %w", err)
	}
	if n == 0 {
		return false, apperr.NotFound("Chit plan not found")
	}
	return false, nil
}

func (r *ChitPlanRepository) ListByMerchant(ctx context.Context, merchantID primitive.ObjectID, page Page) ([]models.ChitPlan, Pagination, error) {
	return r.list(ctx, bson.M{"merchant": merchantID}, page, false)
}

func (r *ChitPlanRepository) List(ctx context.Context, keyword string, page Page) ([]models.ChitPlan, Pagination, error) {
	query := bson.M{}
	if keyword != "" {
		query["planName"] = primitive.Regex{Pattern: regexp.QuoteMeta(keyword), Options: "i"}
	}
	return r.list(ctx, query, page, true)
}

func (r *ChitPlanRepository) list(ctx context.Context, query bson.M, page Page, withMerchantNames bool) ([]models.ChitPlan, Pagination, error) {
	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count chit plans: %w", err)
	}

	cur, err := r.collection.Find(ctx, query, page.findOptions().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to fetch chit plans: %w", err)
	}
	defer cur.Close(ctx)

	plans := []models.ChitPlan{}
	if err := cur.All(ctx, &plans); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to decode chit plans: %w", err)
	}

	if withMerchantNames && len(plans) > 0 {
		if err := r.attachMerchantNames(ctx, plans); err != nil {
			return nil, Pagination{}, err
		}
	}
	return plans, NewPagination(page, total), nil
}

func (r *ChitPlanRepository) attachMerchantNames(ctx context.Context, plans []models.ChitPlan) error {
	ids := make([]primitive.ObjectID, 0, len(plans))
	for _, p := range plans {
		ids = append(ids, p.Merchant)
	}

	cur, err := r.merchants.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(bson.M{"name": 1}))
	if err != nil {
		return fmt.Errorf("failed to fetch merchant names: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID   primitive.ObjectID `bson:"_id"`
		Name string             `bson:"name"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return fmt.Errorf("failed to decode merchant names: %w", err)
	}

	names := make(map[primitive.ObjectID]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	for i := range plans {
		plans[i].MerchantName = names[plans[i].Merchant]
	}
	return nil
}
