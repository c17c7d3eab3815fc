package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser     = "user"
	RoleAdmin    = "admin"
	RoleMerchant = "merchant"
)

// User model
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name     string             `bson:"name" json:"name"`
	Email    string             `bson:"email" json:"email"`
	Password string             `bson:"password" json:"-"`
	Phone    string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Address  string             `bson:"address,omitempty" json:"address,omitempty"`
	Role     string             `bson:"role" json:"role"`

	ResetPasswordOTP    string     `bson:"resetPasswordOtp,omitempty" json:"-"`
	ResetPasswordExpire *time.Time `bson:"resetPasswordExpire,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Verification holds a registration OTP; a TTL index removes it after ten minutes.
type Verification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Email     string             `bson:"email" json:"email"`
	OTP       string             `bson:"otp" json:"-"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
