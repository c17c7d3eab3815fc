package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/auth"
	"github.com/aurum-chit/chitfund-backend/internal/billing"
	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/models"
	"github.com/aurum-chit/chitfund-backend/internal/notify"
)

// maxWriteAttempts bounds the read-modify-write loop on version conflicts.
const maxWriteAttempts = 3

// errRenewalApplied reports a renewal payment id that is already on record.
var errRenewalApplied = errors.New("renewal payment already applied")

type MerchantService struct {
	merchants   MerchantStore
	plans       ChitPlanStore
	mailer      Dispatcher
	cipher      FieldCipher
	frontendURL string
	logger      *zap.Logger
	now         func() time.Time
}

func NewMerchantService(merchants MerchantStore, plans ChitPlanStore, mailer Dispatcher, cipher FieldCipher, frontendURL string, logger *zap.Logger) *MerchantService {
	return &MerchantService{
		merchants:   merchants,
		plans:       plans,
		mailer:      mailer,
		cipher:      cipher,
		frontendURL: frontendURL,
		logger:      logger,
		now:         time.Now,
	}
}

// update runs a read-modify-write against the merchant, retrying from a
// fresh read when another writer got in first.
func (s *MerchantService) update(ctx context.Context, id primitive.ObjectID, mutate func(m *models.Merchant) error) (*models.Merchant, error) {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		merchant, err := s.merchants.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(merchant); err != nil {
			return nil, err
		}
		err = s.merchants.Save(ctx, merchant)
		if err == nil {
			return merchant, nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("merchant version conflict, retrying",
			zap.String("merchantId", id.Hex()),
			zap.Int("attempt", attempt),
		)
	}
	return nil, lastErr
}

// ApplyRenewal sets the plan and extends the subscription window by one
// period, stacking on an unexpired window. A payment id is recorded in the
// same write and is never applied twice.
func (s *MerchantService) ApplyRenewal(ctx context.Context, id primitive.ObjectID, plan billing.Plan, paymentID string) (*models.Merchant, error) {
	if _, err := billing.Price(plan); err != nil {
		return nil, err
	}
	merchant, err := s.update(ctx, id, func(m *models.Merchant) error {
		if paymentID != "" && m.HasRenewalPayment(paymentID) {
			return errRenewalApplied
		}
		m.Plan = plan
		m.ApplyWindow(billing.ComputeRenewal(s.now(), m.SubscriptionExpiryDate))
		if paymentID != "" {
			m.PaymentID = paymentID
			m.RenewalPaymentIDs = append(m.RenewalPaymentIDs, paymentID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("subscription renewed",
		zap.String("merchantId", id.Hex()),
		zap.String("plan", string(plan)),
		zap.Timep("expiry", merchant.SubscriptionExpiryDate),
	)
	return merchant, nil
}

// RenewPlan is the admin override: plan gate, then ApplyRenewal with no
// payment behind it.
func (s *MerchantService) RenewPlan(ctx context.Context, id primitive.ObjectID, rawPlan string) (*models.Merchant, error) {
	plan, err := billing.ParsePlan(rawPlan)
	if err != nil {
		return nil, err
	}
	count, err := s.plans.CountByMerchant(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := billing.CanSelectPlan(count, plan); err != nil {
		return nil, err
	}
	merchant, err := s.ApplyRenewal(ctx, id, plan, "")
	if err != nil {
		return nil, err
	}
	return s.present(merchant), nil
}

// SetStatus moves a merchant through Pending/Approved/Rejected. The first
// approval opens the initial subscription window; any actual change sends
// one notification.
func (s *MerchantService) SetStatus(ctx context.Context, id primitive.ObjectID, status models.MerchantStatus) (*models.Merchant, error) {
	if !status.Valid() {
		return nil, apperr.Validation("Invalid status %q", status)
	}

	var oldStatus models.MerchantStatus
	merchant, err := s.update(ctx, id, func(m *models.Merchant) error {
		oldStatus = m.Status
		m.Status = status
		if status == models.MerchantApproved && oldStatus != models.MerchantApproved {
			m.ApplyWindow(billing.InitialWindow(s.now()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if oldStatus != status {
		s.logger.Info("merchant status changed",
			zap.String("merchantId", id.Hex()),
			zap.String("from", string(oldStatus)),
			zap.String("to", string(status)),
		)
		s.mailer.Dispatch(notify.StatusChanged(merchant.Email, merchant.Name, string(status), s.frontendURL+"/aurum/login"))
	}
	return s.present(merchant), nil
}

func (s *MerchantService) List(ctx context.Context, f db.MerchantFilter) ([]models.Merchant, db.Pagination, error) {
	f.Now = s.now()
	merchants, page, err := s.merchants.List(ctx, f)
	if err != nil {
		return nil, db.Pagination{}, err
	}
	for i := range merchants {
		merchants[i] = *s.present(&merchants[i])
	}
	return merchants, page, nil
}

func (s *MerchantService) Get(ctx context.Context, id primitive.ObjectID) (*models.Merchant, error) {
	merchant, err := s.merchants.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.present(merchant), nil
}

func (s *MerchantService) Delete(ctx context.Context, id primitive.ObjectID) error {
	return s.merchants.Delete(ctx, id)
}

type BankDetailsUpdate struct {
	AccountHolderName  string `json:"accountHolderName"`
	AccountNumber      string `json:"accountNumber"`
	IFSCCode           string `json:"ifscCode"`
	BankName           string `json:"bankName"`
	BranchName         string `json:"branchName"`
	VerifiedName       string `json:"verifiedName"`
	AccountType        string `json:"accountType"`
	VerificationStatus string `json:"verificationStatus" validate:"omitempty,oneof=pending verified failed"`
}

// MerchantUpdate carries profile changes. Empty fields keep their stored value.
type MerchantUpdate struct {
	Name         string             `json:"name"`
	Phone        string             `json:"phone"`
	Address      string             `json:"address"`
	Plan         string             `json:"plan"`
	PaymentID    string             `json:"paymentId"`
	BankDetails  *BankDetailsUpdate `json:"bankDetails" validate:"omitempty"`
	GSTIN        string             `json:"gstin"`
	AddressProof string             `json:"addressProof"`
	ShopImages   []string           `json:"shopImages"`
	PaypalEmail  string             `json:"paypalEmail" validate:"omitempty,email"`
}

// UpdateProfile lets a merchant edit its own profile; admins may edit any.
// Only an admin may change the plan or the bank verification status, and a
// plan change still passes the plan gate.
func (s *MerchantService) UpdateProfile(ctx context.Context, caller auth.Principal, id primitive.ObjectID, in MerchantUpdate) (*models.Merchant, error) {
	var admin bool
	switch caller.(type) {
	case auth.AdminPrincipal:
		admin = true
	case auth.MerchantPrincipal:
		if caller.AccountID() != id {
			return nil, apperr.Forbidden("Not authorized to update this merchant")
		}
	default:
		return nil, apperr.Forbidden("Not authorized to update this merchant")
	}

	var plan billing.Plan
	if in.Plan != "" {
		if !admin {
			return nil, apperr.Forbidden("Plan changes require a renewal payment")
		}
		p, err := billing.ParsePlan(in.Plan)
		if err != nil {
			return nil, err
		}
		count, err := s.plans.CountByMerchant(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := billing.CanSelectPlan(count, p); err != nil {
			return nil, err
		}
		plan = p
	}
	if in.BankDetails != nil && in.BankDetails.VerificationStatus != "" && !admin {
		return nil, apperr.Forbidden("Bank verification status is set by an admin")
	}

	var encryptedAccount string
	if in.BankDetails != nil && in.BankDetails.AccountNumber != "" {
		enc, err := s.cipher.Encrypt(in.BankDetails.AccountNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt account number: %w", err)
		}
		encryptedAccount = enc
	}

	merchant, err := s.update(ctx, id, func(m *models.Merchant) error {
		m.Name = firstNonEmpty(in.Name, m.Name)
		m.Phone = firstNonEmpty(in.Phone, m.Phone)
		m.Address = firstNonEmpty(in.Address, m.Address)
		m.PaymentID = firstNonEmpty(in.PaymentID, m.PaymentID)
		m.GSTIN = firstNonEmpty(in.GSTIN, m.GSTIN)
		m.AddressProof = firstNonEmpty(in.AddressProof, m.AddressProof)
		m.PaypalEmail = firstNonEmpty(in.PaypalEmail, m.PaypalEmail)
		if plan != "" {
			m.Plan = plan
		}
		if len(in.ShopImages) > 0 {
			m.ShopImages = in.ShopImages
		}
		if b := in.BankDetails; b != nil {
			bd := &m.BankDetails
			// New account details need verifying again.
			if (encryptedAccount != "" || (b.IFSCCode != "" && b.IFSCCode != bd.IFSCCode)) && b.VerificationStatus == "" {
				bd.VerificationStatus = models.BankPending
			}
			bd.AccountHolderName = firstNonEmpty(b.AccountHolderName, bd.AccountHolderName)
			bd.AccountNumber = firstNonEmpty(encryptedAccount, bd.AccountNumber)
			bd.IFSCCode = firstNonEmpty(b.IFSCCode, bd.IFSCCode)
			bd.BankName = firstNonEmpty(b.BankName, bd.BankName)
			bd.BranchName = firstNonEmpty(b.BranchName, bd.BranchName)
			bd.VerifiedName = firstNonEmpty(b.VerifiedName, bd.VerifiedName)
			bd.AccountType = firstNonEmpty(b.AccountType, bd.AccountType)
			bd.VerificationStatus = models.BankVerificationStatus(firstNonEmpty(b.VerificationStatus, string(bd.VerificationStatus), string(models.BankPending)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.present(merchant), nil
}

// present returns a copy safe to serialise: the account number is decrypted
// and masked.
func (s *MerchantService) present(m *models.Merchant) *models.Merchant {
	out := *m
	out.SubscriptionStatus = out.EffectiveSubscriptionStatus(s.now())
	if out.BankDetails.AccountNumber != "" {
		plain, err := s.cipher.Decrypt(out.BankDetails.AccountNumber)
		if err != nil {
			s.logger.Error("failed to decrypt account number", zap.String("merchantId", m.ID.Hex()), zap.Error(err))
			plain = ""
		}
		out.BankDetails.AccountNumber = auth.Mask(plain)
	}
	return &out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
