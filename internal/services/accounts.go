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
	"github.com/aurum-chit/chitfund-backend/internal/models"
	"github.com/aurum-chit/chitfund-backend/internal/notify"
)

const otpTTL = 10 * time.Minute

var (
	errInvalidCredentials = apperr.Auth("Invalid credentials")
	errInvalidOTP         = apperr.Auth("Invalid OTP or expired")
	errEmailNotSent       = &apperr.Error{Kind: apperr.ErrDelivery, Message: "Email could not be sent"}
)

// AccountService handles registration, login and the OTP flows for users
// and merchants.
type AccountService struct {
	users         UserStore
	merchants     MerchantStore
	merchantSvc   *MerchantService
	verifications VerificationStore
	tokens        *auth.Tokens
	mailer        notify.Notifier
	background    Dispatcher
	cipher        FieldCipher
	logger        *zap.Logger
	now           func() time.Time
	newOTP        func() (string, error)
}

func NewAccountService(users UserStore, merchants MerchantStore, merchantSvc *MerchantService, verifications VerificationStore, tokens *auth.Tokens, mailer notify.Notifier, background Dispatcher, cipher FieldCipher, logger *zap.Logger) *AccountService {
	return &AccountService{
		users:         users,
		merchants:     merchants,
		merchantSvc:   merchantSvc,
		verifications: verifications,
		tokens:        tokens,
		mailer:        mailer,
		background:    background,
		cipher:        cipher,
		logger:        logger,
		now:           time.Now,
		newOTP:        auth.NewOTP,
	}
}

// Session is returned on successful registration or login.
type Session struct {
	ID    primitive.ObjectID `json:"_id"`
	Name  string             `json:"name"`
	Email string             `json:"email"`
	Role  string             `json:"role"`
	Plan  billing.Plan       `json:"plan,omitempty"`
	Token string             `json:"token"`
}

func (s *AccountService) session(id primitive.ObjectID, name, email, role string, plan billing.Plan) (*Session, error) {
	token, err := s.tokens.Issue(id.Hex())
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, Name: name, Email: email, Role: role, Plan: plan, Token: token}, nil
}

type UserRegistration struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

func (s *AccountService) RegisterUser(ctx context.Context, in UserRegistration) (*Session, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: hash,
		Phone:    in.Phone,
		Address:  in.Address,
		Role:     models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("userId", user.ID.Hex()))
	return s.session(user.ID, user.Name, user.Email, user.Role, "")
}

func (s *AccountService) LoginUser(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(user.Password, password) {
		return nil, errInvalidCredentials
	}
	return s.session(user.ID, user.Name, user.Email, user.Role, "")
}

type MerchantRegistration struct {
	Name         string             `json:"name" validate:"required"`
	Email        string             `json:"email" validate:"required,email"`
	Password     string             `json:"password" validate:"required,min=6"`
	Phone        string             `json:"phone" validate:"required"`
	Address      string             `json:"address" validate:"required"`
	Plan         string             `json:"plan"`
	PaymentID    string             `json:"paymentId"`
	BankDetails  *BankDetailsUpdate `json:"bankDetails"`
	ShopImages   []string           `json:"shopImages"`
	GSTIN        string             `json:"gstin"`
	AddressProof string             `json:"addressProof"`
	PaypalEmail  string             `json:"paypalEmail" validate:"omitempty,email"`
}

// RegisterMerchant creates a Pending merchant. The subscription window opens
// on approval, not here.
func (s *AccountService) RegisterMerchant(ctx context.Context, in MerchantRegistration) (*Session, error) {
	plan := billing.PlanStandard
	if in.Plan != "" {
		p, err := billing.ParsePlan(in.Plan)
		if err != nil {
			return nil, err
		}
		plan = p
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	merchant := &models.Merchant{
		Name:         in.Name,
		Email:        in.Email,
		Password:     hash,
		Phone:        in.Phone,
		Address:      in.Address,
		Plan:         plan,
		PaymentID:    in.PaymentID,
		ShopImages:   in.ShopImages,
		GSTIN:        in.GSTIN,
		AddressProof: in.AddressProof,
		PaypalEmail:  in.PaypalEmail,
		Status:       models.MerchantPending,
		BankDetails:  models.BankDetails{VerificationStatus: models.BankPending},
	}
	if b := in.BankDetails; b != nil {
		account, err := s.cipher.Encrypt(b.AccountNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt account number: %w", err)
		}
		merchant.BankDetails = models.BankDetails{
			AccountHolderName:  b.AccountHolderName,
			AccountNumber:      account,
			IFSCCode:           b.IFSCCode,
			BankName:           b.BankName,
			BranchName:         b.BranchName,
			VerifiedName:       b.VerifiedName,
			AccountType:        b.AccountType,
			VerificationStatus: models.BankVerificationStatus(firstNonEmpty(b.VerificationStatus, string(models.BankPending))),
		}
	}

	if err := s.merchants.Create(ctx, merchant); err != nil {
		return nil, err
	}
	s.logger.Info("merchant registered", zap.String("merchantId", merchant.ID.Hex()), zap.String("plan", string(plan)))
	s.background.Dispatch(notify.Welcome(merchant.Email, merchant.Name, string(plan)))
	return s.session(merchant.ID, merchant.Name, merchant.Email, models.RoleMerchant, merchant.Plan)
}

// LoginMerchant admits only Approved merchants.
func (s *AccountService) LoginMerchant(ctx context.Context, email, password string) (*Session, error) {
	merchant, err := s.merchants.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(merchant.Password, password) {
		return nil, errInvalidCredentials
	}
	if err := loginAllowed(merchant); err != nil {
		return nil, err
	}
	return s.session(merchant.ID, merchant.Name, merchant.Email, models.RoleMerchant, merchant.Plan)
}

func loginAllowed(m *models.Merchant) error {
	switch m.Status {
	case models.MerchantApproved:
		return nil
	case models.MerchantRejected:
		return apperr.Auth("Your account is Rejected. Please contact Admin for Refund.")
	default:
		return apperr.Auth("Your account is %s. Please wait for Admin approval.", firstNonEmpty(string(m.Status), string(models.MerchantPending)))
	}
}

func (s *AccountService) EmailExists(ctx context.Context, email string) (bool, error) {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return true, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	if _, err := s.merchants.FindByEmail(ctx, email); err == nil {
		return true, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	return false, nil
}

// account is whichever of user or merchant owns an email address; users win.
type account struct {
	user     *models.User
	merchant *models.Merchant
}

func (a account) resetOTP() (string, *time.Time) {
	if a.user != nil {
		return a.user.ResetPasswordOTP, a.user.ResetPasswordExpire
	}
	return a.merchant.ResetPasswordOTP, a.merchant.ResetPasswordExpire
}

func (s *AccountService) findAccount(ctx context.Context, email string, notFound string) (account, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return account{user: user}, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return account{}, err
	}
	merchant, err := s.merchants.FindByEmail(ctx, email)
	if err == nil {
		return account{merchant: merchant}, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return account{}, apperr.NotFound("%s", notFound)
	}
	return account{}, err
}

// saveAccount applies mutate to the account's user or merchant fields and
// persists it.
func (s *AccountService) saveAccount(ctx context.Context, a account, mutateUser func(*models.User), mutateMerchant func(*models.Merchant)) error {
	if a.user != nil {
		mutateUser(a.user)
		a.user.UpdatedAt = s.now().UTC()
		return s.users.Save(ctx, a.user)
	}
	_, err := s.merchantSvc.update(ctx, a.merchant.ID, func(m *models.Merchant) error {
		mutateMerchant(m)
		return nil
	})
	return err
}

func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	acct, err := s.findAccount(ctx, email, "Email not registered")
	if err != nil {
		return err
	}
	otp, err := s.newOTP()
	if err != nil {
		return err
	}
	expires := s.now().Add(otpTTL)
	err = s.saveAccount(ctx, acct,
		func(u *models.User) { u.ResetPasswordOTP, u.ResetPasswordExpire = otp, &expires },
		func(m *models.Merchant) { m.ResetPasswordOTP, m.ResetPasswordExpire = otp, &expires },
	)
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, notify.PasswordResetOTP(email, otp)); err != nil {
		s.logger.Error("password reset email failed", zap.String("email", email), zap.Error(err))
		clearErr := s.saveAccount(ctx, acct,
			func(u *models.User) { u.ResetPasswordOTP, u.ResetPasswordExpire = "", nil },
			func(m *models.Merchant) { m.ResetPasswordOTP, m.ResetPasswordExpire = "", nil },
		)
		if clearErr != nil {
			s.logger.Error("failed to clear reset otp", zap.String("email", email), zap.Error(clearErr))
		}
		return errEmailNotSent
	}
	return nil
}

func (s *AccountService) otpValid(stored string, expires *time.Time, otp string) bool {
	return stored != "" && stored == otp && expires != nil && expires.After(s.now())
}

func (s *AccountService) VerifyResetOTP(ctx context.Context, email, otp string) error {
	acct, err := s.findAccount(ctx, email, "User not found")
	if err != nil {
		return err
	}
	stored, expires := acct.resetOTP()
	if !s.otpValid(stored, expires, otp) {
		return errInvalidOTP
	}
	return nil
}

func (s *AccountService) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	acct, err := s.findAccount(ctx, email, "User not found")
	if err != nil {
		return err
	}
	stored, expires := acct.resetOTP()
	if !s.otpValid(stored, expires, otp) {
		return errInvalidOTP
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.saveAccount(ctx, acct,
		func(u *models.User) { u.Password, u.ResetPasswordOTP, u.ResetPasswordExpire = hash, "", nil },
		func(m *models.Merchant) { m.Password, m.ResetPasswordOTP, m.ResetPasswordExpire = hash, "", nil },
	)
}

// SendLoginOTP starts passwordless login for an Approved merchant.
func (s *AccountService) SendLoginOTP(ctx context.Context, email string) error {
	merchant, err := s.merchants.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("Email not registered")
		}
		return err
	}
	if merchant.Status != models.MerchantApproved {
		return apperr.Auth("Account status: %s.", firstNonEmpty(string(merchant.Status), string(models.MerchantPending)))
	}

	otp, err := s.newOTP()
	if err != nil {
		return err
	}
	expires := s.now().Add(otpTTL)
	if _, err := s.merchantSvc.update(ctx, merchant.ID, func(m *models.Merchant) error {
		m.LoginOTP, m.LoginOTPExpire = otp, &expires
		return nil
	}); err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, notify.LoginOTP(email, otp)); err != nil {
		s.logger.Error("login otp email failed", zap.String("email", email), zap.Error(err))
		return errEmailNotSent
	}
	return nil
}

func (s *AccountService) VerifyLoginOTP(ctx context.Context, email, otp string) (*Session, error) {
	merchant, err := s.merchants.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errInvalidOTP
		}
		return nil, err
	}
	if !s.otpValid(merchant.LoginOTP, merchant.LoginOTPExpire, otp) {
		return nil, errInvalidOTP
	}
	if err := loginAllowed(merchant); err != nil {
		return nil, err
	}
	if _, err := s.merchantSvc.update(ctx, merchant.ID, func(m *models.Merchant) error {
		m.LoginOTP, m.LoginOTPExpire = "", nil
		return nil
	}); err != nil {
		return nil, err
	}
	return s.session(merchant.ID, merchant.Name, merchant.Email, models.RoleMerchant, merchant.Plan)
}

// SendRegistrationOTP verifies ownership of an email before merchant signup.
func (s *AccountService) SendRegistrationOTP(ctx context.Context, email string) error {
	if _, err := s.merchants.FindByEmail(ctx, email); err == nil {
		return apperr.Validation("Email already registered")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	otp, err := s.newOTP()
	if err != nil {
		return err
	}
	if err := s.verifications.Replace(ctx, email, otp); err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, notify.RegistrationOTP(email, otp)); err != nil {
		s.logger.Error("registration otp email failed", zap.String("email", email), zap.Error(err))
		return errEmailNotSent
	}
	return nil
}

func (s *AccountService) VerifyRegistrationOTP(ctx context.Context, email, otp string) error {
	ok, err := s.verifications.Consume(ctx, email, otp)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Auth("Invalid OTP")
	}
	return nil
}

// SeedAdmin creates the administrator account unless the email is taken.
func (s *AccountService) SeedAdmin(ctx context.Context, name, email, password string) (bool, error) {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	if password == "" {
		return false, apperr.Validation("admin password is required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	admin := &models.User{Name: name, Email: email, Password: hash, Role: models.RoleAdmin}
	if err := s.users.Create(ctx, admin); err != nil {
		return false, err
	}
	s.logger.Info("admin account created", zap.String("email", email))
	return true, nil
}
