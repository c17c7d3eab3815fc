package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentFailed    PaymentStatus = "Failed"
)

// Payment is written once, after the gateway confirms execution.
// PaymentID (the gateway's id) is unique.
type Payment struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	User           primitive.ObjectID `bson:"user" json:"user"`
	Merchant       primitive.ObjectID `bson:"merchant" json:"merchant"`
	ChitPlan       primitive.ObjectID `bson:"chitPlan" json:"chitPlan"`
	Amount         float64            `bson:"amount" json:"amount"`
	PaymentID      string             `bson:"paymentId" json:"paymentId"`
	Status         PaymentStatus      `bson:"status" json:"status"`
	PaymentDate    time.Time          `bson:"paymentDate" json:"paymentDate"`
	PaymentDetails map[string]any     `bson:"paymentDetails,omitempty" json:"paymentDetails,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}
