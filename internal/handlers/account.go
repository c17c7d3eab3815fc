package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/services"
)

type AccountService interface {
	RegisterUser(ctx context.Context, in services.UserRegistration) (*services.Session, error)
	LoginUser(ctx context.Context, email, password string) (*services.Session, error)
	RegisterMerchant(ctx context.Context, in services.MerchantRegistration) (*services.Session, error)
	LoginMerchant(ctx context.Context, email, password string) (*services.Session, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetOTP(ctx context.Context, email, otp string) error
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
	SendLoginOTP(ctx context.Context, email string) error
	VerifyLoginOTP(ctx context.Context, email, otp string) (*services.Session, error)
	SendRegistrationOTP(ctx context.Context, email string) error
	VerifyRegistrationOTP(ctx context.Context, email, otp string) error
}

type AccountHandler struct {
	service AccountService
	logger  *zap.Logger
}

func NewAccountHandler(service AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{service: service, logger: logger}
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type otpRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

type resetRequest struct {
	Email    string `json:"email" validate:"required,email"`
	OTP      string `json:"otp" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

func (h *AccountHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req services.UserRegistration
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.service.RegisterUser(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *AccountHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.service.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AccountHandler) RegisterMerchant(w http.ResponseWriter, r *http.Request) {
	var req services.MerchantRegistration
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.service.RegisterMerchant(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *AccountHandler) LoginMerchant(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.service.LoginMerchant(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AccountHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	exists, err := h.service.EmailExists(r.Context(), req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if exists {
		writeJSON(w, http.StatusOK, map[string]any{"exists": true, "message": "Email already registered"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": false})
}

func (h *AccountHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "OTP sent to email")
}

func (h *AccountHandler) VerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.VerifyResetOTP(r.Context(), req.Email, req.OTP); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "OTP verified")
}

func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Email, req.OTP, req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successful")
}

func (h *AccountHandler) SendLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.SendLoginOTP(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "OTP sent to email", "email": req.Email, "otpSent": true})
}

func (h *AccountHandler) VerifyLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.service.VerifyLoginOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AccountHandler) SendRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.SendRegistrationOTP(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Verification OTP sent")
}

func (h *AccountHandler) VerifyRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.VerifyRegistrationOTP(r.Context(), req.Email, req.OTP); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Email verified"})
}
