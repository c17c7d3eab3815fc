// Package gateway holds the REST clients for the two payment providers: an
// order-based provider used for merchant subscriptions (Razorpay API) and a
// redirect/execute provider used for chit plan instalments (PayPal REST API).
package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
)

// Options configures timeout and retry for a gateway client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Retries is the number of extra attempts after the first one.
	Retries int
}

func newRestClient(opts Options) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= 500)
		}).
		SetHeader("Content-Type", "application/json")
}

// providerError converts a non-2xx response into an apperr gateway error
// carrying the provider's decoded body.
func providerError(message string, resp *resty.Response) error {
	var payload any
	if err := json.Unmarshal(resp.Body(), &payload); err != nil || payload == nil {
		payload = map[string]any{"status": resp.StatusCode(), "body": string(resp.Body())}
	}
	return apperr.Gateway(message, payload)
}

func maskSensitiveFields(body []byte) []byte {
	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		return body
	}
	maskMap(req)
	masked, _ := json.Marshal(req)
	return masked
}

func maskMap(m map[string]interface{}) {
	for key, value := range m {
		switch v := value.(type) {
		case string:
			switch key {
			case "email", "payer_email":
				m[key] = maskEmail(v)
			case "account_number", "payer_id":
				if len(v) > 4 {
					m[key] = "****" + v[len(v)-4:]
				}
			}
		case map[string]interface{}:
			maskMap(v)
		case []interface{}:
			for _, item := range v {
				if nested, ok := item.(map[string]interface{}); ok {
					maskMap(nested)
				}
			}
		}
	}
}

func maskEmail(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) == 2 && len(parts[0]) > 3 {
		return parts[0][:3] + "****@" + parts[1]
	}
	return email
}
