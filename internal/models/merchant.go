package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aurum-chit/chitfund-backend/internal/billing"
)

type MerchantStatus string

const (
	MerchantPending  MerchantStatus = "Pending"
	MerchantApproved MerchantStatus = "Approved"
	MerchantRejected MerchantStatus = "Rejected"
)

func (s MerchantStatus) Valid() bool {
	switch s {
	case MerchantPending, MerchantApproved, MerchantRejected:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type BankVerificationStatus string

const (
	BankPending  BankVerificationStatus = "pending"
	BankVerified BankVerificationStatus = "verified"
	BankFailed   BankVerificationStatus = "failed"
)

// BankDetails is stored with AccountNumber encrypted.
type BankDetails struct {
	AccountHolderName  string                 `bson:"accountHolderName,omitempty" json:"accountHolderName,omitempty"`
	AccountNumber      string                 `bson:"accountNumber,omitempty" json:"accountNumber,omitempty"`
	IFSCCode           string                 `bson:"ifscCode,omitempty" json:"ifscCode,omitempty"`
	BankName           string                 `bson:"bankName,omitempty" json:"bankName,omitempty"`
	BranchName         string                 `bson:"branchName,omitempty" json:"branchName,omitempty"`
	VerifiedName       string                 `bson:"verifiedName,omitempty" json:"verifiedName,omitempty"`
	AccountType        string                 `bson:"accountType,omitempty" json:"accountType,omitempty"`
	VerificationStatus BankVerificationStatus `bson:"verificationStatus" json:"verificationStatus"`
	BeneficiaryID      string                 `bson:"beneficiaryId,omitempty" json:"beneficiaryId,omitempty"`
}

// Merchant is a plan issuer. Version is bumped on every write and used for
// compare-and-swap updates.
type Merchant struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	Password     string             `bson:"password" json:"-"`
	Phone        string             `bson:"phone" json:"phone"`
	Address      string             `bson:"address" json:"address"`
	Plan         billing.Plan       `bson:"plan" json:"plan"`
	BankDetails  BankDetails        `bson:"bankDetails" json:"bankDetails"`
	GSTIN        string             `bson:"gstin,omitempty" json:"gstin,omitempty"`
	AddressProof string             `bson:"addressProof,omitempty" json:"addressProof,omitempty"`
	ShopImages   []string           `bson:"shopImages,omitempty" json:"shopImages,omitempty"`
	PaypalEmail  string             `bson:"paypalEmail,omitempty" json:"paypalEmail,omitempty"`
	Status       MerchantStatus     `bson:"status" json:"status"`
	PaymentID    string             `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	// RenewalPaymentIDs lists every gateway payment already applied as a
	// renewal. It is never pruned.
	RenewalPaymentIDs []string `bson:"renewalPaymentIds,omitempty" json:"-"`

	SubscriptionStartDate  *time.Time         `bson:"subscriptionStartDate,omitempty" json:"subscriptionStartDate,omitempty"`
	SubscriptionExpiryDate *time.Time         `bson:"subscriptionExpiryDate,omitempty" json:"subscriptionExpiryDate,omitempty"`
	SubscriptionStatus     SubscriptionStatus `bson:"subscriptionStatus,omitempty" json:"subscriptionStatus,omitempty"`

	ResetPasswordOTP    string     `bson:"resetPasswordOtp,omitempty" json:"-"`
	ResetPasswordExpire *time.Time `bson:"resetPasswordExpire,omitempty" json:"-"`
	LoginOTP            string     `bson:"loginOtp,omitempty" json:"-"`
	LoginOTPExpire      *time.Time `bson:"loginOtpExpire,omitempty" json:"-"`

	Version   int64     `bson:"version" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// EffectiveSubscriptionStatus derives expiry at read time: an active
// subscription whose expiry has passed reads as expired.
func (m *Merchant) EffectiveSubscriptionStatus(now time.Time) SubscriptionStatus {
	if m.SubscriptionStatus == SubscriptionActive && m.SubscriptionExpiryDate != nil && !m.SubscriptionExpiryDate.After(now) {
		return SubscriptionExpired
	}
	return m.SubscriptionStatus
}

// ApplyWindow records a new subscription window and marks it active.
func (m *Merchant) ApplyWindow(w billing.Window) {
	start, expiry := w.Start, w.Expiry
	m.SubscriptionStartDate = &start
	m.SubscriptionExpiryDate = &expiry
	m.SubscriptionStatus = SubscriptionActive
}

func (m *Merchant) HasRenewalPayment(paymentID string) bool {
	for _, id := range m.RenewalPaymentIDs {
		if id == paymentID {
			return true
		}
	}
	return false
}
