package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/auth"
	"github.com/aurum-chit/chitfund-backend/internal/billing"
	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/gateway"
	"github.com/aurum-chit/chitfund-backend/internal/models"
	"github.com/aurum-chit/chitfund-backend/internal/services"
)

type mockResolver struct {
	principals map[string]auth.Principal
}

func (m mockResolver) Resolve(_ context.Context, token string) (auth.Principal, error) {
	if p, ok := m.principals[token]; ok {
		return p, nil
	}
	return nil, apperr.Auth("Not authorized, token failed")
}

// MockOrders implements RenewalOrders and PaymentOrders.
type MockOrders struct {
	CreateRenewalOrderFunc        func(ctx context.Context, merchantID primitive.ObjectID, rawPlan string) (*services.RenewalOrder, error)
	VerifyRenewalFunc             func(ctx context.Context, merchantID primitive.ObjectID, cb services.RenewalCallback) (*services.RenewalResult, error)
	CreateSubscriptionOrderFunc   func(ctx context.Context, rawAmount, currency string) (*gateway.Order, error)
	VerifySubscriptionPaymentFunc func(orderID, paymentID, signature string) error
	InitiateChitPaymentFunc       func(ctx context.Context, userID primitive.ObjectID, rawPlanID, rawAmount string) (*services.ChitPaymentLink, error)
	ExecuteChitPaymentFunc        func(ctx context.Context, ret services.ChitPaymentReturn) (*models.Payment, error)
}

func (m *MockOrders) CreateRenewalOrder(ctx context.Context, merchantID primitive.ObjectID, rawPlan string) (*services.RenewalOrder, error) {
	return m.CreateRenewalOrderFunc(ctx, merchantID, rawPlan)
}

func (m *MockOrders) VerifyRenewal(ctx context.Context, merchantID primitive.ObjectID, cb services.RenewalCallback) (*services.RenewalResult, error) {
	return m.VerifyRenewalFunc(ctx, merchantID, cb)
}

func (m *MockOrders) CreateSubscriptionOrder(ctx context.Context, rawAmount, currency string) (*gateway.Order, error) {
	return m.CreateSubscriptionOrderFunc(ctx, rawAmount, currency)
}

func (m *MockOrders) VerifySubscriptionPayment(orderID, paymentID, signature string) error {
	return m.VerifySubscriptionPaymentFunc(orderID, paymentID, signature)
}

func (m *MockOrders) InitiateChitPayment(ctx context.Context, userID primitive.ObjectID, rawPlanID, rawAmount string) (*services.ChitPaymentLink, error) {
	return m.InitiateChitPaymentFunc(ctx, userID, rawPlanID, rawAmount)
}

func (m *MockOrders) ExecuteChitPayment(ctx context.Context, ret services.ChitPaymentReturn) (*models.Payment, error) {
	return m.ExecuteChitPaymentFunc(ctx, ret)
}

type MockMerchants struct {
	ListFunc      func(ctx context.Context, f db.MerchantFilter) ([]models.Merchant, db.Pagination, error)
	SetStatusFunc func(ctx context.Context, id primitive.ObjectID, status models.MerchantStatus) (*models.Merchant, error)
	RenewPlanFunc func(ctx context.Context, id primitive.ObjectID, rawPlan string) (*models.Merchant, error)
}

func (m *MockMerchants) List(ctx context.Context, f db.MerchantFilter) ([]models.Merchant, db.Pagination, error) {
	return m.ListFunc(ctx, f)
}

func (m *MockMerchants) Get(context.Context, primitive.ObjectID) (*models.Merchant, error) {
	return nil, apperr.NotFound("Merchant not found")
}

func (m *MockMerchants) Delete(context.Context, primitive.ObjectID) error { return nil }

func (m *MockMerchants) UpdateProfile(context.Context, auth.Principal, primitive.ObjectID, services.MerchantUpdate) (*models.Merchant, error) {
	return nil, errors.New("not implemented")
}

func (m *MockMerchants) SetStatus(ctx context.Context, id primitive.ObjectID, status models.MerchantStatus) (*models.Merchant, error) {
	return m.SetStatusFunc(ctx, id, status)
}

func (m *MockMerchants) RenewPlan(ctx context.Context, id primitive.ObjectID, rawPlan string) (*models.Merchant, error) {
	if m.RenewPlanFunc == nil {
		return nil, errors.New("not implemented")
	}
	return m.RenewPlanFunc(ctx, id, rawPlan)
}

type MockChitPlans struct {
	ListFunc func(ctx context.Context, keyword string, page db.Page) ([]models.ChitPlan, db.Pagination, error)
}

func (m *MockChitPlans) Create(context.Context, *models.Merchant, services.ChitPlanInput) (*models.ChitPlan, error) {
	return nil, errors.New("not implemented")
}

func (m *MockChitPlans) Update(context.Context, primitive.ObjectID, primitive.ObjectID, services.ChitPlanPatch) (*models.ChitPlan, error) {
	return nil, errors.New("not implemented")
}

func (m *MockChitPlans) Delete(context.Context, primitive.ObjectID, primitive.ObjectID) error {
	return errors.New("not implemented")
}

func (m *MockChitPlans) Subscribe(context.Context, primitive.ObjectID, primitive.ObjectID) error {
	return errors.New("not implemented")
}

func (m *MockChitPlans) List(ctx context.Context, keyword string, page db.Page) ([]models.ChitPlan, db.Pagination, error) {
	return m.ListFunc(ctx, keyword, page)
}

func (m *MockChitPlans) ListByMerchant(context.Context, primitive.ObjectID, db.Page) ([]models.ChitPlan, db.Pagination, error) {
	return nil, db.Pagination{}, nil
}

type testServer struct {
	orders    *MockOrders
	merchants *MockMerchants
	plans     *MockChitPlans
	router    http.Handler

	merchant *models.Merchant
	user     *models.User
	admin    *models.User
}

func newTestServer() *testServer {
	ts := &testServer{
		orders:    &MockOrders{},
		merchants: &MockMerchants{},
		plans:     &MockChitPlans{},
		merchant:  &models.Merchant{ID: primitive.NewObjectID(), Status: models.MerchantApproved},
		user:      &models.User{ID: primitive.NewObjectID(), Role: models.RoleUser},
		admin:     &models.User{ID: primitive.NewObjectID(), Role: models.RoleAdmin},
	}
	logger := zap.NewNop()
	resolver := mockResolver{principals: map[string]auth.Principal{
		"merchant-token": auth.MerchantPrincipal{Merchant: ts.merchant},
		"user-token":     auth.UserPrincipal{User: ts.user},
		"admin-token":    auth.AdminPrincipal{User: ts.admin},
	}}
	ts.router = NewRouter(Handlers{
		Accounts:  NewAccountHandler(nil, logger),
		Merchants: NewMerchantHandler(ts.merchants, ts.orders, logger),
		ChitPlans: NewChitPlanHandler(ts.plans, logger),
		Payments:  NewPaymentHandler(ts.orders, nil, logger),
		Users:     NewUserHandler(nil, logger),
		KYC:       NewKYCHandler(services.NewKYCService(), logger),
	}, NewMiddleware(resolver, logger))
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer()
	w, _ := ts.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestProtectedRoutes(t *testing.T) {
	ts := newTestServer()

	tests := []struct {
		name    string
		method  string
		target  string
		token   string
		status  int
		message string
	}{
		{"no token", http.MethodPost, "/api/merchants/verify-renewal", "", http.StatusUnauthorized, "Not authorized, no token"},
		{"bad token", http.MethodPost, "/api/merchants/verify-renewal", "forged", http.StatusUnauthorized, "Not authorized, token failed"},
		{"user on merchant route", http.MethodPost, "/api/merchants/verify-renewal", "user-token", http.StatusUnauthorized, "Not authorized as a merchant"},
		{"merchant on admin route", http.MethodPut, "/api/merchants/" + primitive.NewObjectID().Hex() + "/status", "merchant-token", http.StatusUnauthorized, "Not authorized as an admin"},
		{"user listing users", http.MethodGet, "/api/users", "user-token", http.StatusUnauthorized, "Not authorized as an admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := ts.do(t, tt.method, tt.target, tt.token, map[string]string{})
			if w.Code != tt.status || body["message"] != tt.message {
				t.Errorf("Expected %d %q, got %d %v", tt.status, tt.message, w.Code, body)
			}
		})
	}
}

func TestRenewPlanIsAdminOnly(t *testing.T) {
	ts := newTestServer()
	var calls int
	ts.merchants.RenewPlanFunc = func(_ context.Context, id primitive.ObjectID, rawPlan string) (*models.Merchant, error) {
		calls++
		return &models.Merchant{ID: id, Plan: billing.Plan(rawPlan)}, nil
	}
	target := "/api/merchants/" + ts.merchant.ID.Hex() + "/renew-plan"
	body := map[string]string{"plan": "Premium"}

	w, resp := ts.do(t, http.MethodPost, target, "merchant-token", body)
	if w.Code != http.StatusUnauthorized || resp["message"] != "Not authorized as an admin" {
		t.Errorf("Expected merchant to be refused, got %d %v", w.Code, resp)
	}
	if w, _ := ts.do(t, http.MethodPost, "/api/merchants/renew-plan", "merchant-token", body); w.Code == http.StatusOK {
		t.Error("Expected the self-service renew route to be gone")
	}
	if calls != 0 {
		t.Fatalf("Expected no renewal for a merchant caller, got %d", calls)
	}

	w, resp = ts.do(t, http.MethodPost, target, "admin-token", body)
	if w.Code != http.StatusOK || resp["_id"] != ts.merchant.ID.Hex() || resp["plan"] != "Premium" {
		t.Errorf("Expected admin renewal, got %d %v", w.Code, resp)
	}
	if calls != 1 {
		t.Errorf("Expected one renewal, got %d", calls)
	}
}

func TestVerifyRenewal(t *testing.T) {
	ts := newTestServer()
	req := map[string]string{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "sig",
		"plan":                "Premium",
	}

	t.Run("applied", func(t *testing.T) {
		ts.orders.VerifyRenewalFunc = func(_ context.Context, merchantID primitive.ObjectID, cb services.RenewalCallback) (*services.RenewalResult, error) {
			if merchantID != ts.merchant.ID {
				t.Errorf("Expected caller's merchant id, got %s", merchantID.Hex())
			}
			if cb.OrderID != "order_1" || cb.PaymentID != "pay_1" || cb.Signature != "sig" || cb.Plan != "Premium" {
				t.Errorf("Unexpected callback %+v", cb)
			}
			return &services.RenewalResult{Merchant: &models.Merchant{ID: merchantID, Plan: billing.PlanPremium}}, nil
		}
		w, body := ts.do(t, http.MethodPost, "/api/merchants/verify-renewal", "merchant-token", req)
		if w.Code != http.StatusOK || body["success"] != true {
			t.Fatalf("Expected success, got %d %v", w.Code, body)
		}
		if m, _ := body["merchant"].(map[string]any); m["plan"] != "Premium" {
			t.Errorf("Expected merchant in response, got %v", body["merchant"])
		}
	})

	t.Run("invalid signature", func(t *testing.T) {
		ts.orders.VerifyRenewalFunc = func(context.Context, primitive.ObjectID, services.RenewalCallback) (*services.RenewalResult, error) {
			return nil, services.ErrInvalidSignature
		}
		w, body := ts.do(t, http.MethodPost, "/api/merchants/verify-renewal", "merchant-token", req)
		if w.Code != http.StatusBadRequest || body["success"] != false || body["message"] != "Invalid Signature" {
			t.Errorf("Expected 400 invalid signature, got %d %v", w.Code, body)
		}
	})

	t.Run("plan gate", func(t *testing.T) {
		ts.orders.VerifyRenewalFunc = func(context.Context, primitive.ObjectID, services.RenewalCallback) (*services.RenewalResult, error) {
			return nil, billing.CanSelectPlan(6, billing.PlanStandard)
		}
		w, body := ts.do(t, http.MethodPost, "/api/merchants/verify-renewal", "merchant-token", req)
		if w.Code != http.StatusBadRequest || body["message"] == "" {
			t.Errorf("Expected 400 with message, got %d %v", w.Code, body)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		w, body := ts.do(t, http.MethodPost, "/api/merchants/verify-renewal", "merchant-token", map[string]string{"plan": "Premium"})
		if w.Code != http.StatusBadRequest || body["message"] != "Invalid value for razorpay_order_id" {
			t.Errorf("Expected validation failure, got %d %v", w.Code, body)
		}
	})
}

func TestCreateRenewalOrderForwardsGatewayPayload(t *testing.T) {
	ts := newTestServer()
	ts.orders.CreateRenewalOrderFunc = func(context.Context, primitive.ObjectID, string) (*services.RenewalOrder, error) {
		return nil, apperr.Gateway("Razorpay Order Creation Failed", map[string]any{"code": "BAD_REQUEST_ERROR"})
	}

	w, body := ts.do(t, http.MethodPost, "/api/merchants/create-renewal-order", "merchant-token", map[string]string{"plan": "Premium"})
	if w.Code != http.StatusInternalServerError || body["message"] != "Razorpay Order Creation Failed" {
		t.Fatalf("Expected 500 gateway failure, got %d %v", w.Code, body)
	}
	if payload, _ := body["error"].(map[string]any); payload["code"] != "BAD_REQUEST_ERROR" {
		t.Errorf("Expected provider payload, got %v", body["error"])
	}
}

func TestUpdateStatus(t *testing.T) {
	ts := newTestServer()
	id := primitive.NewObjectID()
	ts.merchants.SetStatusFunc = func(_ context.Context, got primitive.ObjectID, status models.MerchantStatus) (*models.Merchant, error) {
		if got != id || status != models.MerchantApproved {
			t.Errorf("Unexpected call %s %s", got.Hex(), status)
		}
		return &models.Merchant{ID: id, Status: status}, nil
	}

	w, body := ts.do(t, http.MethodPut, "/api/merchants/"+id.Hex()+"/status", "admin-token", map[string]string{"status": "Approved"})
	if w.Code != http.StatusOK || body["status"] != "Approved" {
		t.Errorf("Expected approved merchant, got %d %v", w.Code, body)
	}

	w, _ = ts.do(t, http.MethodPut, "/api/merchants/not-an-id/status", "admin-token", map[string]string{"status": "Approved"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", w.Code)
	}
}

func TestListMerchantsPassesFilters(t *testing.T) {
	ts := newTestServer()
	ts.merchants.ListFunc = func(_ context.Context, f db.MerchantFilter) ([]models.Merchant, db.Pagination, error) {
		if f.Status != models.MerchantPending || f.SubscriptionStatus != models.SubscriptionExpired || f.Keyword != "gold" || f.Page.Page != 2 {
			t.Errorf("Unexpected filter %+v", f)
		}
		return nil, db.NewPagination(f.Page, 0), nil
	}

	w, body := ts.do(t, http.MethodGet, "/api/merchants?status=Pending&subscriptionStatus=expired&keyword=gold&page=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if list, ok := body["merchants"].([]any); !ok || len(list) != 0 {
		t.Errorf("Expected empty merchants array, got %v", body["merchants"])
	}
	if _, ok := body["pagination"].(map[string]any); !ok {
		t.Errorf("Expected pagination object, got %v", body)
	}
}

func TestChitPlanListShape(t *testing.T) {
	ts := newTestServer()
	ts.plans.ListFunc = func(_ context.Context, keyword string, page db.Page) ([]models.ChitPlan, db.Pagination, error) {
		return []models.ChitPlan{{PlanName: "Gold"}}, db.NewPagination(page, 11), nil
	}

	_, body := ts.do(t, http.MethodGet, "/api/chit-plans", "", nil)
	if body["page"] != float64(1) || body["pages"] != float64(2) || body["total"] != float64(11) {
		t.Errorf("Unexpected paging fields %v", body)
	}
}

func TestPaymentFlow(t *testing.T) {
	ts := newTestServer()
	planID := primitive.NewObjectID().Hex()

	t.Run("pay accepts numeric amount", func(t *testing.T) {
		ts.orders.InitiateChitPaymentFunc = func(_ context.Context, userID primitive.ObjectID, rawPlanID, rawAmount string) (*services.ChitPaymentLink, error) {
			if userID != ts.user.ID || rawPlanID != planID || rawAmount != "25.5" {
				t.Errorf("Unexpected call %s %s %s", userID.Hex(), rawPlanID, rawAmount)
			}
			return &services.ChitPaymentLink{PaymentID: "PAYID-1", ApprovalURL: "https://paypal.test/approve"}, nil
		}
		w, body := ts.do(t, http.MethodPost, "/api/payments/pay", "user-token", map[string]any{"chitPlanId": planID, "amount": 25.5})
		if w.Code != http.StatusOK || body["approvalUrl"] != "https://paypal.test/approve" {
			t.Errorf("Expected approval url, got %d %v", w.Code, body)
		}
	})

	t.Run("success reads return query", func(t *testing.T) {
		ts.orders.ExecuteChitPaymentFunc = func(_ context.Context, ret services.ChitPaymentReturn) (*models.Payment, error) {
			if ret.PaymentID != "PAYID-1" || ret.PayerID != "PAYER" || ret.ChitPlanID != planID || ret.Amount != "25.50" {
				t.Errorf("Unexpected return %+v", ret)
			}
			return &models.Payment{PaymentID: ret.PaymentID, Status: models.PaymentCompleted}, nil
		}
		target := "/api/payments/success?paymentId=PAYID-1&PayerID=PAYER&chitPlanId=" + planID + "&userId=" + ts.user.ID.Hex() + "&amount=25.50"
		w, body := ts.do(t, http.MethodGet, target, "", nil)
		if w.Code != http.StatusOK || body["message"] != "Payment Successful" {
			t.Errorf("Expected success, got %d %v", w.Code, body)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		_, body := ts.do(t, http.MethodGet, "/api/payments/cancel", "", nil)
		if body["message"] != "Payment Cancelled" {
			t.Errorf("Unexpected body %v", body)
		}
	})

	t.Run("verify subscription payment", func(t *testing.T) {
		ts.orders.VerifySubscriptionPaymentFunc = func(orderID, paymentID, signature string) error {
			if signature == "good" {
				return nil
			}
			return services.ErrInvalidSignature
		}
		req := map[string]string{"razorpay_order_id": "o", "razorpay_payment_id": "p", "razorpay_signature": "good"}
		w, body := ts.do(t, http.MethodPost, "/api/payments/verify-subscription-payment", "", req)
		if w.Code != http.StatusOK || body["status"] != "success" {
			t.Errorf("Expected verified, got %d %v", w.Code, body)
		}
		req["razorpay_signature"] = "bad"
		w, body = ts.do(t, http.MethodPost, "/api/payments/verify-subscription-payment", "", req)
		if w.Code != http.StatusBadRequest || body["status"] != "failure" {
			t.Errorf("Expected failure, got %d %v", w.Code, body)
		}
	})

	t.Run("unclassified error is generic", func(t *testing.T) {
		ts.orders.CreateSubscriptionOrderFunc = func(context.Context, string, string) (*gateway.Order, error) {
			return nil, errors.New("dial tcp: connection refused")
		}
		w, body := ts.do(t, http.MethodPost, "/api/payments/create-subscription-order", "", map[string]string{"amount": "₹1500/mo"})
		if w.Code != http.StatusInternalServerError || body["message"] != "Server Error" {
			t.Errorf("Expected generic 500, got %d %v", w.Code, body)
		}
	})
}

func TestKYCRoutes(t *testing.T) {
	ts := newTestServer()

	w, body := ts.do(t, http.MethodPost, "/api/kyc/verify-bank", "", map[string]string{"accountNumber": "123456789", "ifscCode": "SBIN0001"})
	if w.Code != http.StatusOK || body["status"] != "success" {
		t.Fatalf("Expected success, got %d %v", w.Code, body)
	}
	if data, _ := body["data"].(map[string]any); data["bankName"] != "State Bank of India" {
		t.Errorf("Unexpected data %v", body["data"])
	}

	w, body = ts.do(t, http.MethodPost, "/api/kyc/verify-pan", "", map[string]string{"panNumber": "ABC"})
	if w.Code != http.StatusBadRequest || body["message"] != "Invalid PAN Number format. Must be 10 characters." {
		t.Errorf("Expected PAN validation error, got %d %v", w.Code, body)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/kyc/verify-pan", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}
