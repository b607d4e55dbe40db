package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/models"
	"github.com/zoranhorsy/reboul-checkout/internal/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSettlementFixture(t *testing.T) (*SettlementService, *CheckoutService, *fakeProvider, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	provider := newFakeProvider()
	classifier := NewStoreClassifier(&fakeCatalog{}, time.Minute)
	checkout := NewCheckoutService(db, provider, classifier, "https://reboul.example.com", "eur", "acct_corner")
	settlement := NewSettlementService(db, provider, "acct_corner", "eur")
	return settlement, checkout, provider, db
}

func createMixedSession(t *testing.T, checkout *CheckoutService) string {
	t.Helper()
	result, err := checkout.CreateSessions(context.Background(), CheckoutInput{
		Items: []models.LineItem{
			// One session cannot mix stores, so a "mixed" legacy session is
			// simulated by tagging a corner item into the adult bucket.
			{ProductID: "1-Blanc-M", Name: "Tee", Price: 100, Quantity: 1, Variant: models.VariantSelector{Size: "M", Color: "Blanc"}, Store: models.StoreAdult},
		},
	})
	require.NoError(t, err)
	return result.Primary().SessionID
}

// buildLegacyMixedSession fabricates a session whose metadata says adult
// store but whose items include corner products, the shape produced before
// carts were split per store.
func buildLegacyMixedSession(t *testing.T, provider *fakeProvider, marked bool) (sessionID, intentID string) {
	t.Helper()

	description := "Vert - L"
	if marked {
		description += " · The Corner"
	}
	sess, err := provider.CreateSession(context.Background(), payments.SessionRequest{
		OrderNumber: "ADT-1714064523123",
		Store:       models.StoreAdult,
		Currency:    "eur",
		LineItems: []payments.SessionLineItem{
			{Name: "Tee", Description: "Blanc - M", UnitAmountCents: 10000, Quantity: 2},
			{Name: "Goggle Jacket", Description: description, UnitAmountCents: 45000, Quantity: 1},
		},
		Metadata: payments.Metadata{
			OrderNumber:      "ADT-1714064523123",
			Store:            models.StoreAdult,
			ItemCount:        3,
			TotalAmountCents: 65000,
			CreatedAt:        time.Now().UTC(),
			Items: []payments.MetadataItem{
				{Name: "Tee", Store: models.StoreAdult, Quantity: 2},
				{Name: "Goggle Jacket", Store: models.StoreCorner, Quantity: 1},
			},
		},
	})
	require.NoError(t, err)
	return sess.ID, sess.PaymentIntentID
}

func TestHandleStoreTransfersMarkedLineItems(t *testing.T) {
	settlement, _, provider, _ := newSettlementFixture(t)
	_, intentID := buildLegacyMixedSession(t, provider, true)

	outcome, err := settlement.HandleStoreTransfers(context.Background(), intentID, 65000)
	require.NoError(t, err)

	assert.True(t, outcome.Needed)
	assert.Equal(t, int64(45000), outcome.AmountCents)
	assert.Equal(t, "acct_corner", outcome.Destination)
	require.Len(t, provider.transfers, 1)
	assert.Equal(t, "transfer_"+intentID, provider.transfers[0].IdempotencyKey)
	assert.Equal(t, "order_ADT-1714064523123", provider.transfers[0].TransferGroup)
}

func TestHandleStoreTransfersIdempotent(t *testing.T) {
	settlement, _, provider, _ := newSettlementFixture(t)
	_, intentID := buildLegacyMixedSession(t, provider, true)

	first, err := settlement.HandleStoreTransfers(context.Background(), intentID, 65000)
	require.NoError(t, err)

	second, err := settlement.HandleStoreTransfers(context.Background(), intentID, 65000)
	require.NoError(t, err)

	assert.Equal(t, first.TransferID, second.TransferID)
	assert.Equal(t, "already settled", second.Reason)
	// The provider saw exactly one transfer.
	assert.Len(t, provider.transfers, 1)
}

func TestHandleStoreTransfersRetryAfterFailure(t *testing.T) {
	settlement, _, provider, db := newSettlementFixture(t)
	_, intentID := buildLegacyMixedSession(t, provider, true)

	provider.transferErr = fmt.Errorf("stripe unavailable")
	_, err := settlement.HandleStoreTransfers(context.Background(), intentID, 65000)
	require.Error(t, err)

	var record models.Transfer
	require.NoError(t, db.Where("payment_intent_id = ?", intentID).First(&record).Error)
	assert.Equal(t, models.TransferFailed, record.Status)

	provider.transferErr = nil
	outcome, err := settlement.HandleStoreTransfers(context.Background(), intentID, 65000)
	require.NoError(t, err)
	assert.True(t, outcome.Needed)
	assert.Len(t, provider.transfers, 1)

	require.NoError(t, db.Where("payment_intent_id = ?", intentID).First(&record).Error)
	assert.Equal(t, models.TransferCompleted, record.Status)
}

func TestHandleStoreTransfersPureCornerIsNoOp(t *testing.T) {
	settlement, checkout, provider, _ := newSettlementFixture(t)

	result, err := checkout.CreateSessions(context.Background(), CheckoutInput{
		Items: []models.LineItem{
			{ProductID: "3-Vert-L", Name: "Goggle Jacket", Price: 450, Quantity: 1, Variant: models.VariantSelector{Size: "L", Color: "Vert"}, Store: models.StoreCorner},
		},
	})
	require.NoError(t, err)

	sess := provider.sessions[result.Primary().SessionID]
	outcome, err := settlement.HandleStoreTransfers(context.Background(), sess.PaymentIntentID, 45000)
	require.NoError(t, err)

	assert.False(t, outcome.Needed)
	assert.Equal(t, "funds routed at payment time", outcome.Reason)
	assert.Empty(t, provider.transfers)
}

func TestHandleStoreTransfersNoCornerItems(t *testing.T) {
	settlement, checkout, provider, _ := newSettlementFixture(t)
	sessionID := createMixedSession(t, checkout)

	sess := provider.sessions[sessionID]
	outcome, err := settlement.HandleStoreTransfers(context.Background(), sess.PaymentIntentID, 10000)
	require.NoError(t, err)

	assert.False(t, outcome.Needed)
	assert.Empty(t, provider.transfers)
}

func TestHandleStoreTransfersProportionalFallback(t *testing.T) {
	settlement, _, provider, _ := newSettlementFixture(t)
	sessionID, intentID := buildLegacyMixedSession(t, provider, true)

	// Simulate the provider no longer returning line items.
	provider.mu.Lock()
	provider.lineItems[sessionID] = nil
	provider.mu.Unlock()

	outcome, err := settlement.HandleStoreTransfers(context.Background(), intentID, 60000)
	require.NoError(t, err)

	// 1 of 3 metadata items belongs to the corner: round(60000 / 3).
	assert.Equal(t, int64(20000), outcome.AmountCents)
}

func TestHandleStoreTransfersRefusesUnmarkedLineItems(t *testing.T) {
	settlement, _, provider, _ := newSettlementFixture(t)
	_, intentID := buildLegacyMixedSession(t, provider, false)

	_, err := settlement.HandleStoreTransfers(context.Background(), intentID, 65000)
	assert.ErrorIs(t, err, ErrUnattributableTransfer)
	assert.Empty(t, provider.transfers)
}

func TestHandleStoreTransfersMalformedMetadata(t *testing.T) {
	settlement, _, provider, _ := newSettlementFixture(t)
	sessionID, intentID := buildLegacyMixedSession(t, provider, true)

	provider.mu.Lock()
	delete(provider.sessions[sessionID].Metadata, "order_number")
	provider.mu.Unlock()

	_, err := settlement.HandleStoreTransfers(context.Background(), intentID, 65000)
	assert.ErrorIs(t, err, payments.ErrMalformedMetadata)
}

func TestHandleStoreTransfersClampsToCaptured(t *testing.T) {
	settlement, _, provider, _ := newSettlementFixture(t)
	_, intentID := buildLegacyMixedSession(t, provider, true)

	// Partial capture below the corner share.
	outcome, err := settlement.HandleStoreTransfers(context.Background(), intentID, 30000)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), outcome.AmountCents)
}

func TestCaptureFullFlow(t *testing.T) {
	settlement, _, provider, db := newSettlementFixture(t)
	_, intentID := buildLegacyMixedSession(t, provider, true)

	require.NoError(t, db.Create(&models.Order{
		OrderNumber:     "ADT-1714064523123",
		Store:           models.StoreAdult,
		TotalAmount:     650,
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentPending,
		PaymentIntentID: intentID,
	}).Error)

	result, err := settlement.Capture(context.Background(), intentID, 0)
	require.NoError(t, err)

	assert.Equal(t, "succeeded", result.PaymentIntent.Status)
	require.NotNil(t, result.Transfer)
	assert.Equal(t, int64(45000), result.Transfer.AmountCents)
	assert.Empty(t, result.TransferError)

	var order models.Order
	require.NoError(t, db.Where("payment_intent_id = ?", intentID).First(&order).Error)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, models.OrderProcessing, order.Status)
}

func TestCaptureRejectsWrongState(t *testing.T) {
	settlement, _, provider, _ := newSettlementFixture(t)
	_, intentID := buildLegacyMixedSession(t, provider, true)

	provider.mu.Lock()
	provider.intents[intentID].Status = "succeeded"
	provider.mu.Unlock()

	_, err := settlement.Capture(context.Background(), intentID, 0)
	assert.ErrorIs(t, err, payments.ErrNotCapturable)
}

func TestCaptureReportsTransferFailure(t *testing.T) {
	settlement, _, provider, _ := newSettlementFixture(t)
	_, intentID := buildLegacyMixedSession(t, provider, true)

	provider.transferErr = fmt.Errorf("stripe unavailable")
	result, err := settlement.Capture(context.Background(), intentID, 0)
	require.NoError(t, err)

	assert.Equal(t, "succeeded", result.PaymentIntent.Status)
	assert.Nil(t, result.Transfer)
	assert.Contains(t, result.TransferError, "stripe unavailable")
}
