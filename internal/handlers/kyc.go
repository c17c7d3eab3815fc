package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/services"
)

type KYCService interface {
	VerifyBank(accountNumber, ifscCode, holderName string) (*services.BankVerification, error)
	VerifyPAN(panNumber string) (*services.PANVerification, error)
}

type KYCHandler struct {
	service KYCService
	logger  *zap.Logger
}

func NewKYCHandler(service KYCService, logger *zap.Logger) *KYCHandler {
	return &KYCHandler{service: service, logger: logger}
}

// Fields are checked by the service so its messages reach the client.
type bankRequest struct {
	AccountNumber     string `json:"accountNumber"`
	IFSCCode          string `json:"ifscCode"`
	AccountHolderName string `json:"accountHolderName"`
}

type panRequest struct {
	PANNumber string `json:"panNumber"`
}

func (h *KYCHandler) VerifyBank(w http.ResponseWriter, r *http.Request) {
	var req bankRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	result, err := h.service.VerifyBank(req.AccountNumber, req.IFSCCode, req.AccountHolderName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": result, "message": "Bank account verified successfully"})
}

func (h *KYCHandler) VerifyPAN(w http.ResponseWriter, r *http.Request) {
	var req panRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	result, err := h.service.VerifyPAN(req.PANNumber)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": result, "message": "PAN verified successfully"})
}
