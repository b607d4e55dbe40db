package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/zoranhorsy/reboul-checkout/internal/models"
	"github.com/zoranhorsy/reboul-checkout/internal/payments"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.StockReservation{},
		&models.Transfer{},
		&models.ProviderEvent{},
	))
	return db
}

// fakeCatalog answers classifier lookups from fixed maps.
type fakeCatalog struct {
	corner map[string]bool
	stores map[string]models.Store
	calls  int
}

func (f *fakeCatalog) IsCornerProduct(ctx context.Context, numericID string) (bool, error) {
	f.calls++
	return f.corner[numericID], nil
}

func (f *fakeCatalog) StoreType(ctx context.Context, numericID string) (models.Store, error) {
	if store, ok := f.stores[numericID]; ok {
		return store, nil
	}
	return "", fmt.Errorf("not found")
}

// fakeProvider is an in-memory payments.Provider. failStore makes session
// creation fail for one bucket to exercise the compensation path.
type fakeProvider struct {
	mu sync.Mutex

	sessions  map[string]*payments.Session
	lineItems map[string][]payments.LineItem
	intents   map[string]*payments.PaymentIntent
	expired   []string
	transfers []payments.TransferRequest

	failStore    models.Store
	transferErr  error
	nextSessionN int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sessions:  make(map[string]*payments.Session),
		lineItems: make(map[string][]payments.LineItem),
		intents:   make(map[string]*payments.PaymentIntent),
	}
}

func (f *fakeProvider) CreateSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failStore != "" && req.Store == f.failStore {
		return nil, fmt.Errorf("provider rejected session for %s", req.Store)
	}

	f.nextSessionN++
	id := fmt.Sprintf("cs_test_%d", f.nextSessionN)
	meta, err := req.Metadata.Encode()
	if err != nil {
		return nil, err
	}

	var total int64
	var items []payments.LineItem
	for i, li := range req.LineItems {
		amount := li.UnitAmountCents * li.Quantity
		total += amount
		items = append(items, payments.LineItem{
			ID:          fmt.Sprintf("li_%d_%d", f.nextSessionN, i),
			Description: li.Description,
			AmountTotal: amount,
			Quantity:    li.Quantity,
		})
	}

	sess := &payments.Session{
		ID:              id,
		URL:             "https://pay.example.com/" + id,
		PaymentIntentID: "pi_" + id,
		AmountTotal:     total,
		Currency:        req.Currency,
		Status:          "open",
		PaymentStatus:   "unpaid",
		Metadata:        meta,
	}
	f.sessions[id] = sess
	f.lineItems[id] = items
	f.intents[sess.PaymentIntentID] = &payments.PaymentIntent{
		ID:       sess.PaymentIntentID,
		Status:   "requires_capture",
		Amount:   total,
		Currency: req.Currency,
	}
	return sess, nil
}

func (f *fakeProvider) ExpireSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return payments.ErrSessionNotFound
	}
	sess.Status = "expired"
	f.expired = append(f.expired, sessionID)
	return nil
}

func (f *fakeProvider) GetSession(ctx context.Context, sessionID string) (*payments.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, payments.ErrSessionNotFound
	}
	return sess, nil
}

func (f *fakeProvider) SessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*payments.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.sessions {
		if sess.PaymentIntentID == paymentIntentID {
			return sess, nil
		}
	}
	return nil, payments.ErrSessionNotFound
}

func (f *fakeProvider) SessionLineItems(ctx context.Context, sessionID string) ([]payments.LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lineItems[sessionID], nil
}

func (f *fakeProvider) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*payments.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[paymentIntentID]
	if !ok {
		return nil, payments.ErrSessionNotFound
	}
	return pi, nil
}

func (f *fakeProvider) CapturePayment(ctx context.Context, paymentIntentID string, amountCents int64) (*payments.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[paymentIntentID]
	if !ok {
		return nil, payments.ErrSessionNotFound
	}
	pi.Status = "succeeded"
	if amountCents > 0 {
		pi.AmountReceived = amountCents
	} else {
		pi.AmountReceived = pi.Amount
	}
	return pi, nil
}

func (f *fakeProvider) CreateTransfer(ctx context.Context, req payments.TransferRequest) (*payments.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.transfers = append(f.transfers, req)
	return &payments.Transfer{
		ID:          fmt.Sprintf("tr_test_%d", len(f.transfers)),
		AmountCents: req.AmountCents,
		Destination: req.Destination,
	}, nil
}

func (f *fakeProvider) VerifyWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	return nil, fmt.Errorf("not implemented in fake")
}

// fakeNotifier records enqueued emails.
type fakeNotifier struct {
	mu     sync.Mutex
	emails []string
}

func (f *fakeNotifier) NotifyOrderEmail(ctx context.Context, orderNumber string, kind EmailKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, orderNumber+":"+string(kind))
	return nil
}
