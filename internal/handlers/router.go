package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aurum-chit/chitfund-backend/internal/models"
)

type Handlers struct {
	Accounts  *AccountHandler
	Merchants *MerchantHandler
	ChitPlans *ChitPlanHandler
	Payments  *PaymentHandler
	Users     *UserHandler
	KYC       *KYCHandler
}

// NewRouter registers every API route. protect routes need any signed-in
// principal; as(role, ...) routes also check the role.
func NewRouter(h Handlers, mw *Middleware) *mux.Router {
	router := mux.NewRouter()
	router.Use(mw.Logging)

	open := func(f http.HandlerFunc) http.Handler { return f }
	protect := func(f http.HandlerFunc) http.Handler { return mw.Protect(f) }
	as := func(role string, f http.HandlerFunc) http.Handler {
		return mw.Protect(mw.Require(role)(f))
	}

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("API is running..."))
	}).Methods(http.MethodGet, http.MethodHead)

	api := router.PathPrefix("/api").Subrouter()

	api.Handle("/users", open(h.Accounts.RegisterUser)).Methods(http.MethodPost)
	api.Handle("/users/login", open(h.Accounts.LoginUser)).Methods(http.MethodPost)
	api.Handle("/users", as(models.RoleAdmin, h.Users.GetUsers)).Methods(http.MethodGet)

	api.Handle("/check-email", open(h.Accounts.CheckEmail)).Methods(http.MethodPost)
	api.Handle("/forgot-password", open(h.Accounts.ForgotPassword)).Methods(http.MethodPost)
	api.Handle("/verify-otp", open(h.Accounts.VerifyResetOTP)).Methods(http.MethodPost)
	api.Handle("/reset-password", open(h.Accounts.ResetPassword)).Methods(http.MethodPost)
	api.Handle("/registration-otp", open(h.Accounts.SendRegistrationOTP)).Methods(http.MethodPost)
	api.Handle("/verify-registration-otp", open(h.Accounts.VerifyRegistrationOTP)).Methods(http.MethodPost)

	api.Handle("/merchants", open(h.Accounts.RegisterMerchant)).Methods(http.MethodPost)
	api.Handle("/merchants/login", open(h.Accounts.LoginMerchant)).Methods(http.MethodPost)
	api.Handle("/merchants/login-otp", open(h.Accounts.SendLoginOTP)).Methods(http.MethodPost)
	api.Handle("/merchants/verify-login-otp", open(h.Accounts.VerifyLoginOTP)).Methods(http.MethodPost)
	api.Handle("/merchants/create-renewal-order", as(models.RoleMerchant, h.Merchants.CreateRenewalOrder)).Methods(http.MethodPost)
	api.Handle("/merchants/verify-renewal", as(models.RoleMerchant, h.Merchants.VerifyRenewal)).Methods(http.MethodPost)
	api.Handle("/merchants", open(h.Merchants.List)).Methods(http.MethodGet)
	api.Handle("/merchants/{id}", open(h.Merchants.Get)).Methods(http.MethodGet)
	api.Handle("/merchants/{id}", protect(h.Merchants.Update)).Methods(http.MethodPut)
	api.Handle("/merchants/{id}", as(models.RoleAdmin, h.Merchants.Delete)).Methods(http.MethodDelete)
	api.Handle("/merchants/{id}/status", as(models.RoleAdmin, h.Merchants.UpdateStatus)).Methods(http.MethodPut)
	api.Handle("/merchants/{id}/renew-plan", as(models.RoleAdmin, h.Merchants.RenewPlan)).Methods(http.MethodPost)

	api.Handle("/chit-plans", open(h.ChitPlans.List)).Methods(http.MethodGet)
	api.Handle("/chit-plans", as(models.RoleMerchant, h.ChitPlans.Create)).Methods(http.MethodPost)
	api.Handle("/chit-plans/merchant/{id}", open(h.ChitPlans.ListByMerchant)).Methods(http.MethodGet)
	api.Handle("/chit-plans/{id}", as(models.RoleMerchant, h.ChitPlans.Update)).Methods(http.MethodPut)
	api.Handle("/chit-plans/{id}", as(models.RoleMerchant, h.ChitPlans.Delete)).Methods(http.MethodDelete)
	api.Handle("/chit-plans/{id}/subscribe", protect(h.ChitPlans.Subscribe)).Methods(http.MethodPost)

	api.Handle("/payments/pay", protect(h.Payments.Pay)).Methods(http.MethodPost)
	api.Handle("/payments/success", open(h.Payments.Success)).Methods(http.MethodGet)
	api.Handle("/payments/cancel", open(h.Payments.Cancel)).Methods(http.MethodGet)
	api.Handle("/payments/create-subscription-order", open(h.Payments.CreateSubscriptionOrder)).Methods(http.MethodPost)
	api.Handle("/payments/verify-subscription-payment", open(h.Payments.VerifySubscriptionPayment)).Methods(http.MethodPost)
	api.Handle("/payments/mine", protect(h.Payments.Mine)).Methods(http.MethodGet)
	api.Handle("/payments/merchant", as(models.RoleMerchant, h.Payments.ForMerchant)).Methods(http.MethodGet)

	api.Handle("/kyc/verify-bank", open(h.KYC.VerifyBank)).Methods(http.MethodPost)
	api.Handle("/kyc/verify-pan", open(h.KYC.VerifyPAN)).Methods(http.MethodPost)

	return router
}
