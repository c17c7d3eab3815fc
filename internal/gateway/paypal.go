package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
)

// ChitPaymentRequest describes a one-off instalment paid into a merchant's
// PayPal account.
type ChitPaymentRequest struct {
	ChitPlanID string
	PlanName   string
	PayeeEmail string
	Amount     decimal.Decimal
	Currency   string
	ReturnURL  string
	CancelURL  string
}

type CreatedPayment struct {
	ID          string
	ApprovalURL string
}

type paypalAmount struct {
	Currency string `json:"currency"`
	Total    string `json:"total"`
}

type paypalItem struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Quantity int    `json:"quantity"`
}

type paypalItemList struct {
	Items []paypalItem `json:"items"`
}

type paypalPayee struct {
	Email string `json:"email"`
}

type paypalTransaction struct {
	ItemList    *paypalItemList `json:"item_list,omitempty"`
	Amount      paypalAmount    `json:"amount"`
	Description string          `json:"description,omitempty"`
	Payee       *paypalPayee    `json:"payee,omitempty"`
}

type paypalPayment struct {
	Intent string `json:"intent"`
	Payer  struct {
		PaymentMethod string `json:"payment_method"`
	} `json:"payer"`
	RedirectURLs struct {
		ReturnURL string `json:"return_url"`
		CancelURL string `json:"cancel_url"`
	} `json:"redirect_urls"`
	Transactions []paypalTransaction `json:"transactions"`
}

type paypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type PayPalClient struct {
	rest         *resty.Client
	clientID     string
	clientSecret string
	logger       *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalClient(clientID, clientSecret string, opts Options, logger *zap.Logger) *PayPalClient {
	return &PayPalClient{
		rest:         newRestClient(opts),
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
	}
}

func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.clientSecret).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&result).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", apperr.Gateway("PayPal authentication failed", map[string]any{"reason": err.Error()})
	}
	if resp.IsError() || result.AccessToken == "" {
		c.logger.Error("paypal token request rejected", zap.Int("status", resp.StatusCode()))
		return "", providerError("PayPal authentication failed", resp)
	}

	c.token = result.AccessToken
	// Refresh a minute early so an in-flight request never carries an expired token.
	c.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

// CreatePayment creates a sale payment and returns the URL the payer must be
// redirected to for approval.
func (c *PayPalClient) CreatePayment(ctx context.Context, req ChitPaymentRequest) (*CreatedPayment, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	total := req.Amount.StringFixed(2)
	payment := paypalPayment{Intent: "sale"}
	payment.Payer.PaymentMethod = "paypal"
	payment.RedirectURLs.ReturnURL = req.ReturnURL
	payment.RedirectURLs.CancelURL = req.CancelURL

	payment.Transactions = []paypalTransaction{{
		ItemList: &paypalItemList{Items: []paypalItem{{
			Name:     "Chit Plan: " + req.PlanName,
			SKU:      req.ChitPlanID,
			Price:    total,
			Currency: req.Currency,
			Quantity: 1,
		}}},
		Amount:      paypalAmount{Currency: req.Currency, Total: total},
		Description: fmt.Sprintf("Payment for Chit Plan %s", req.PlanName),
		Payee:       &paypalPayee{Email: req.PayeeEmail},
	}}

	body, err := json.Marshal(payment)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("paypal payment request", zap.ByteString("body", maskSensitiveFields(body)))

	var result struct {
		ID    string       `json:"id"`
		Links []paypalLink `json:"links"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("PayPal-Request-Id", uuid.NewString()).
		SetBody(body).
		SetResult(&result).
		Post("/v1/payments/payment")
	if err != nil {
		c.logger.Error("paypal payment request failed", zap.Error(err))
		return nil, apperr.Gateway("PayPal Payment Creation Failed", map[string]any{"reason": err.Error()})
	}
	if resp.IsError() {
		c.logger.Error("paypal payment rejected", zap.Int("status", resp.StatusCode()), zap.ByteString("body", resp.Body()))
		return nil, providerError("PayPal Payment Creation Failed", resp)
	}

	for _, link := range result.Links {
		if link.Rel == "approval_url" {
			c.logger.Info("paypal payment created", zap.String("paymentId", result.ID))
			return &CreatedPayment{ID: result.ID, ApprovalURL: link.Href}, nil
		}
	}
	return nil, apperr.Gateway("Approval URL not found", map[string]any{"paymentId": result.ID})
}

// ExecutePayment captures an approved payment. The raw provider response is
// returned for storage alongside the local payment record.
func (c *PayPalClient) ExecutePayment(ctx context.Context, paymentID, payerID string, amount decimal.Decimal, currency string) (map[string]any, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"payer_id": payerID,
		"transactions": []map[string]any{{
			"amount": paypalAmount{Currency: currency, Total: amount.StringFixed(2)},
		}},
	}

	var result map[string]any
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(token).
		// Keyed on the payment so a retried execute is de-duplicated by the provider.
		SetHeader("PayPal-Request-Id", "exec-"+paymentID).
		SetBody(reqBody).
		SetResult(&result).
		Post("/v1/payments/payment/" + url.PathEscape(paymentID) + "/execute")
	if err != nil {
		c.logger.Error("paypal execute failed", zap.String("paymentId", paymentID), zap.Error(err))
		return nil, apperr.Gateway("Payment Execution Failed", map[string]any{"reason": err.Error()})
	}
	if resp.IsError() {
		c.logger.Error("paypal execute rejected",
			zap.String("paymentId", paymentID),
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()),
		)
		return nil, providerError("Payment Execution Failed", resp)
	}
	return result, nil
}
