package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/events"
	"github.com/aurum-chit/chitfund-backend/internal/gateway"
	"github.com/aurum-chit/chitfund-backend/internal/models"
	"github.com/aurum-chit/chitfund-backend/internal/notify"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// memMerchants mimics the repository's version compare-and-swap.
type memMerchants struct {
	mu         sync.Mutex
	byID       map[primitive.ObjectID]models.Merchant
	saves      int
	beforeSave func(m *models.Merchant) error
	lastFilter db.MerchantFilter
}

func newMemMerchants(ms ...*models.Merchant) *memMerchants {
	s := &memMerchants{byID: map[primitive.ObjectID]models.Merchant{}}
	for _, m := range ms {
		if m.ID.IsZero() {
			m.ID = primitive.NewObjectID()
		}
		if m.Version == 0 {
			m.Version = 1
		}
		s.byID[m.ID] = *m
	}
	return s
}

func (s *memMerchants) get(id primitive.ObjectID) models.Merchant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *memMerchants) FindByID(_ context.Context, id primitive.ObjectID) (*models.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("Merchant not found")
	}
	return &m, nil
}

func (s *memMerchants) FindByEmail(_ context.Context, email string) (*models.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byID {
		if m.Email == email {
			return &m, nil
		}
	}
	return nil, apperr.NotFound("Merchant not found")
}

func (s *memMerchants) Create(_ context.Context, m *models.Merchant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Email == m.Email {
			return apperr.Validation("Merchant already exists")
		}
	}
	m.ID = primitive.NewObjectID()
	m.Version = 1
	s.byID[m.ID] = *m
	return nil
}

func (s *memMerchants) Save(_ context.Context, m *models.Merchant) error {
	if s.beforeSave != nil {
		if err := s.beforeSave(m); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	stored, ok := s.byID[m.ID]
	if !ok || stored.Version != m.Version {
		return db.ErrVersionConflict
	}
	m.Version++
	s.byID[m.ID] = *m
	return nil
}

func (s *memMerchants) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return apperr.NotFound("Merchant not found")
	}
	delete(s.byID, id)
	return nil
}

func (s *memMerchants) List(_ context.Context, f db.MerchantFilter) ([]models.Merchant, db.Pagination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	var out []models.Merchant
	for _, m := range s.byID {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		out = append(out, m)
	}
	return out, db.NewPagination(f.Page, int64(len(out))), nil
}

type memPlans struct {
	mu               sync.Mutex
	byID             map[primitive.ObjectID]models.ChitPlan
	addSubscriberErr error
}

func newMemPlans(ps ...*models.ChitPlan) *memPlans {
	s := &memPlans{byID: map[primitive.ObjectID]models.ChitPlan{}}
	for _, p := range ps {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		s.byID[p.ID] = *p
	}
	return s
}

// seedCount adds n plans owned by merchantID.
func (s *memPlans) seedCount(merchantID primitive.ObjectID, n int) {
	for i := 0; i < n; i++ {
		id := primitive.NewObjectID()
		s.byID[id] = models.ChitPlan{ID: id, Merchant: merchantID}
	}
}

func (s *memPlans) add(p *models.ChitPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	s.byID[p.ID] = *p
}

func (s *memPlans) get(id primitive.ObjectID) models.ChitPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *memPlans) FindByID(_ context.Context, id primitive.ObjectID) (*models.ChitPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("Chit plan not found")
	}
	return &p, nil
}

func (s *memPlans) Create(_ context.Context, p *models.ChitPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = primitive.NewObjectID()
	s.byID[p.ID] = *p
	return nil
}

func (s *memPlans) Save(_ context.Context, p *models.ChitPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; !ok {
		return apperr.NotFound("Chit plan not found")
	}
	s.byID[p.ID] = *p
	return nil
}

func (s *memPlans) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return apperr.NotFound("Chit plan not found")
	}
	delete(s.byID, id)
	return nil
}

func (s *memPlans) CountByMerchant(_ context.Context, merchantID primitive.ObjectID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.byID {
		if p.Merchant == merchantID {
			n++
		}
	}
	return n, nil
}

func (s *memPlans) AddSubscriber(_ context.Context, planID primitive.ObjectID, sub models.Subscription) (bool, error) {
	if s.addSubscriberErr != nil {
		return false, s.addSubscriberErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[planID]
	if !ok {
		return false, apperr.NotFound("Chit plan not found")
	}
	if p.HasSubscriber(sub.User) {
		return false, nil
	}
	p.Subscribers = append(p.Subscribers, sub)
	s.byID[planID] = p
	return true, nil
}

func (s *memPlans) ListByMerchant(context.Context, primitive.ObjectID, db.Page) ([]models.ChitPlan, db.Pagination, error) {
	return nil, db.Pagination{}, nil
}

func (s *memPlans) List(context.Context, string, db.Page) ([]models.ChitPlan, db.Pagination, error) {
	return nil, db.Pagination{}, nil
}

type memPayments struct {
	mu   sync.Mutex
	byID map[string]*models.Payment
}

func newMemPayments() *memPayments {
	return &memPayments{byID: map[string]*models.Payment{}}
}

func (s *memPayments) Create(_ context.Context, p *models.Payment) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[p.PaymentID]; ok {
		return existing, false, nil
	}
	p.ID = primitive.NewObjectID()
	s.byID[p.PaymentID] = p
	return p, true, nil
}

func (s *memPayments) ListByUser(context.Context, primitive.ObjectID, db.Page) ([]models.Payment, db.Pagination, error) {
	return nil, db.Pagination{}, nil
}

func (s *memPayments) ListByMerchant(context.Context, primitive.ObjectID, db.Page) ([]models.Payment, db.Pagination, error) {
	return nil, db.Pagination{}, nil
}

type memUsers struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.User
}

func newMemUsers(us ...*models.User) *memUsers {
	s := &memUsers{byID: map[primitive.ObjectID]models.User{}}
	for _, u := range us {
		if u.ID.IsZero() {
			u.ID = primitive.NewObjectID()
		}
		s.byID[u.ID] = *u
	}
	return s
}

func (s *memUsers) add(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.byID[u.ID] = *u
}

func (s *memUsers) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	return &u, nil
}

func (s *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (s *memUsers) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return apperr.Validation("User already exists")
		}
	}
	u.ID = primitive.NewObjectID()
	s.byID[u.ID] = *u
	return nil
}

func (s *memUsers) Save(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[u.ID] = *u
	return nil
}

func (s *memUsers) ListByRole(_ context.Context, role string, page db.Page) ([]models.User, db.Pagination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.byID {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, db.NewPagination(page, int64(len(out))), nil
}

type memVerifications struct {
	otps map[string]string
}

func (s *memVerifications) Replace(_ context.Context, email, otp string) error {
	s.otps[email] = otp
	return nil
}

func (s *memVerifications) Consume(_ context.Context, email, otp string) (bool, error) {
	if s.otps[email] != otp || otp == "" {
		return false, nil
	}
	delete(s.otps, email)
	return true, nil
}

// fakeOrderGateway keeps the orders it creates so they can be fetched back.
type fakeOrderGateway struct {
	calls       []gateway.OrderRequest
	createOrder func(req gateway.OrderRequest) (*gateway.Order, error)
	orders      map[string]gateway.Order
	fetches     int
}

func (g *fakeOrderGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	g.calls = append(g.calls, req)
	if g.createOrder != nil {
		return g.createOrder(req)
	}
	order := gateway.Order{
		ID:       fmt.Sprintf("order_%d", len(g.calls)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
		Status:   "created",
	}
	if g.orders == nil {
		g.orders = map[string]gateway.Order{}
	}
	g.orders[order.ID] = order
	return &order, nil
}

func (g *fakeOrderGateway) FetchOrder(_ context.Context, orderID string) (*gateway.Order, error) {
	g.fetches++
	order, ok := g.orders[orderID]
	if !ok {
		return nil, apperr.Gateway("Razorpay Order Fetch Failed", map[string]any{"code": "BAD_REQUEST_ERROR"})
	}
	return &order, nil
}

func (g *fakeOrderGateway) KeyID() string { return "rzp_test_key" }

type fakeRedirectGateway struct {
	created        []gateway.ChitPaymentRequest
	executeErr     error
	executedAmount decimal.Decimal
}

func (g *fakeRedirectGateway) CreatePayment(_ context.Context, req gateway.ChitPaymentRequest) (*gateway.CreatedPayment, error) {
	g.created = append(g.created, req)
	return &gateway.CreatedPayment{ID: "PAYID-1", ApprovalURL: "https://paypal.test/approve?token=EC-1"}, nil
}

func (g *fakeRedirectGateway) ExecutePayment(_ context.Context, paymentID, _ string, amount decimal.Decimal, _ string) (map[string]any, error) {
	if g.executeErr != nil {
		return nil, g.executeErr
	}
	g.executedAmount = amount
	return map[string]any{"id": paymentID, "state": "approved"}, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (d *recordingDispatcher) Dispatch(msg notify.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
}

type recordingNotifier struct {
	sent []notify.Message
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.sent = append(n.sent, msg)
	return n.err
}

type fakeClaims struct {
	claimed  map[string]bool
	released []string
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{claimed: map[string]bool{}}
}

func (c *fakeClaims) Claim(_ context.Context, key string) (bool, error) {
	if c.claimed[key] {
		return false, nil
	}
	c.claimed[key] = true
	return true, nil
}

// expireAll drops every claim, as the store's TTL eventually does.
func (c *fakeClaims) expireAll() {
	c.claimed = map[string]bool{}
}

func (c *fakeClaims) Release(_ context.Context, key string) error {
	delete(c.claimed, key)
	c.released = append(c.released, key)
	return nil
}

type recordingPublisher struct {
	events []events.Reconciliation
	err    error
}

func (p *recordingPublisher) PublishReconciliation(_ context.Context, ev events.Reconciliation) error {
	p.events = append(p.events, ev)
	return p.err
}

// plainCipher leaves values untouched apart from a marker prefix.
type plainCipher struct{}

func (plainCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	return "enc:" + plain, nil
}

func (plainCipher) Decrypt(value string) (string, error) {
	if len(value) > 4 && value[:4] == "enc:" {
		return value[4:], nil
	}
	return value, nil
}

type fixture struct {
	merchants  *memMerchants
	plans      *memPlans
	payments   *memPayments
	users      *memUsers
	orders     *fakeOrderGateway
	redirects  *fakeRedirectGateway
	dispatcher *recordingDispatcher
	claims     *fakeClaims
	publisher  *recordingPublisher

	merchantSvc *MerchantService
	paymentSvc  *PaymentService
	orderSvc    *OrderService
}

const testKeySecret = "rzp_secret"

func newFixture(merchants ...*models.Merchant) *fixture {
	f := &fixture{
		merchants:  newMemMerchants(merchants...),
		plans:      newMemPlans(),
		payments:   newMemPayments(),
		users:      newMemUsers(),
		orders:     &fakeOrderGateway{},
		redirects:  &fakeRedirectGateway{},
		dispatcher: &recordingDispatcher{},
		claims:     newFakeClaims(),
		publisher:  &recordingPublisher{},
	}
	logger := zap.NewNop()
	f.merchantSvc = NewMerchantService(f.merchants, f.plans, f.dispatcher, plainCipher{}, "http://frontend.test", logger)
	f.merchantSvc.now = fixedNow
	f.paymentSvc = NewPaymentService(f.plans, f.merchants, f.payments, f.publisher, logger)
	f.paymentSvc.now = fixedNow
	f.orderSvc = NewOrderService(
		OrderServiceConfig{KeySecret: testKeySecret, PublicBaseURL: "http://api.test"},
		f.orders, f.redirects, f.merchantSvc, f.paymentSvc, f.plans, f.merchants, f.claims, f.publisher, logger,
	)
	f.orderSvc.now = fixedNow
	return f
}
