package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
)

// Notes are free-form key/values stored on the order by the provider.
type Notes map[string]string

// UnmarshalJSON accepts the empty array the provider returns for an order
// without notes.
func (n *Notes) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		*n = Notes{}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

type OrderRequest struct {
	// Amount in minor units (paise).
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Notes    Notes  `json:"notes,omitempty"`
}

type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity,omitempty"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid,omitempty"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Notes      Notes  `json:"notes,omitempty"`
	CreatedAt  int64  `json:"created_at,omitempty"`
}

type RazorpayClient struct {
	rest   *resty.Client
	keyID  string
	logger *zap.Logger
}

func NewRazorpayClient(keyID, keySecret string, opts Options, logger *zap.Logger) *RazorpayClient {
	rest := newRestClient(opts).SetBasicAuth(keyID, keySecret)
	return &RazorpayClient{rest: rest, keyID: keyID, logger: logger}
}

// KeyID is the public key handed to the checkout widget.
func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

// CreateOrder registers an order with the provider. The receipt is sent as
// the provider-side idempotency reference, so a retried request is safe.
func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("razorpay order request", zap.ByteString("body", maskSensitiveFields(body)))

	var order Order
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("X-Razorpay-Idempotency-Key", req.Receipt).
		SetBody(body).
		SetResult(&order).
		Post("/orders")
	if err != nil {
		c.logger.Error("razorpay order request failed", zap.String("receipt", req.Receipt), zap.Error(err))
		return nil, apperr.Gateway("Razorpay Order Creation Failed", map[string]any{"reason": err.Error()})
	}
	if resp.IsError() {
		c.logger.Error("razorpay order rejected",
			zap.String("receipt", req.Receipt),
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()),
		)
		return nil, providerError("Razorpay Order Creation Failed", resp)
	}

	c.logger.Info("razorpay order created", zap.String("orderId", order.ID), zap.String("receipt", order.Receipt))
	return &order, nil
}

// FetchOrder reads an order back from the provider.
func (c *RazorpayClient) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&order).
		Get("/orders/" + url.PathEscape(orderID))
	if err != nil {
		c.logger.Error("razorpay order fetch failed", zap.String("orderId", orderID), zap.Error(err))
		return nil, apperr.Gateway("Razorpay Order Fetch Failed", map[string]any{"reason": err.Error()})
	}
	if resp.IsError() {
		c.logger.Error("razorpay order fetch rejected",
			zap.String("orderId", orderID),
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()),
		)
		return nil, providerError("Razorpay Order Fetch Failed", resp)
	}
	return &order, nil
}
