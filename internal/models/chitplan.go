package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SubscriberActive    = "active"
	SubscriberCompleted = "completed"
)

type Subscription struct {
	User     primitive.ObjectID `bson:"user" json:"user"`
	JoinedAt time.Time          `bson:"joinedAt" json:"joinedAt"`
	Status   string             `bson:"status" json:"status"`
}

// ChitPlan is a group-savings scheme issued by one merchant.
type ChitPlan struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Merchant       primitive.ObjectID `bson:"merchant" json:"merchant"`
	PlanName       string             `bson:"planName" json:"planName"`
	MonthlyAmount  float64            `bson:"monthlyAmount" json:"monthlyAmount"`
	DurationMonths int                `bson:"durationMonths" json:"durationMonths"`
	TotalAmount    float64            `bson:"totalAmount" json:"totalAmount"`
	Description    string             `bson:"description,omitempty" json:"description,omitempty"`
	Subscribers    []Subscription     `bson:"subscribers" json:"subscribers"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`

	// MerchantName is filled in for browse listings only.
	MerchantName string `bson:"-" json:"merchantName,omitempty"`
}

func (c *ChitPlan) HasSubscriber(userID primitive.ObjectID) bool {
	for _, s := range c.Subscribers {
		if s.User == userID {
			return true
		}
	}
	return false
}

// TotalAmount is monthly × months unless an explicit positive override is given.
func TotalAmount(monthly float64, months int, override float64) float64 {
	if override > 0 {
		return override
	}
	return decimal.NewFromFloat(monthly).Mul(decimal.NewFromInt(int64(months))).InexactFloat64()
}
