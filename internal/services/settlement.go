package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/models"
	"github.com/zoranhorsy/reboul-checkout/internal/payments"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettlementService captures authorized payments and routes The Corner's
// share of mixed orders to its connected account. Transfers are recorded in
// a local ledger keyed by payment intent before the provider is called, so a
// retry can never pay the same intent twice.
type SettlementService struct {
	db            *gorm.DB
	provider      payments.Provider
	cornerAccount string
	currency      string
}

func NewSettlementService(db *gorm.DB, provider payments.Provider, cornerAccount, currency string) *SettlementService {
	return &SettlementService{
		db:            db,
		provider:      provider,
		cornerAccount: cornerAccount,
		currency:      currency,
	}
}

// TransferOutcome reports what settlement decided for one payment intent.
type TransferOutcome struct {
	Needed      bool   `json:"transfer_needed"`
	Reason      string `json:"reason,omitempty"`
	TransferID  string `json:"transfer_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Destination string `json:"destination,omitempty"`
}

type CaptureResult struct {
	PaymentIntent *payments.PaymentIntent `json:"payment_intent"`
	Transfer      *TransferOutcome        `json:"transfer,omitempty"`
	TransferError string                  `json:"transfer_error,omitempty"`
}

// Capture captures a manually-held payment intent and then settles any store
// transfers it implies. A settlement failure after a successful capture is
// reported in the result rather than as an error: the capture already
// happened and must not look failed to the caller.
func (s *SettlementService) Capture(ctx context.Context, paymentIntentID string, amountCents int64) (*CaptureResult, error) {
	ctx, span := tracer.Start(ctx, "settlement.capture")
	defer span.End()
	span.SetAttributes(attribute.String("payment_intent.id", paymentIntentID))

	pi, err := s.provider.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if pi.Status != "requires_capture" {
		return nil, fmt.Errorf("%w: payment intent is %s", payments.ErrNotCapturable, pi.Status)
	}

	captured, err := s.provider.CapturePayment(ctx, paymentIntentID, amountCents)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("payment_intent_id = ?", paymentIntentID).
		Updates(map[string]interface{}{
			"status":         models.OrderProcessing,
			"payment_status": models.PaymentPaid,
		}).Error; err != nil {
		logging.Error(ctx).Err(err).
			Str("payment_intent_id", paymentIntentID).
			Msg("captured payment but order status update failed")
	}

	result := &CaptureResult{PaymentIntent: captured}
	outcome, err := s.HandleStoreTransfers(ctx, paymentIntentID, captured.AmountReceived)
	if err != nil {
		logging.Error(ctx).
			Err(err).
			Str("payment_intent_id", paymentIntentID).
			Msg("capture succeeded but settlement failed")
		result.TransferError = err.Error()
		return result, nil
	}
	result.Transfer = outcome
	return result, nil
}

// HandleStoreTransfers computes and executes The Corner's settlement for a
// captured payment intent. Pure-Corner sessions were created with funds
// routed at payment time and need nothing here. Mixed sessions get a manual
// transfer for the sum of Corner-attributed line items; when the provider no
// longer returns line items, the amount falls back to a per-item proportion
// of the captured total.
func (s *SettlementService) HandleStoreTransfers(ctx context.Context, paymentIntentID string, capturedCents int64) (*TransferOutcome, error) {
	ctx, span := tracer.Start(ctx, "settlement.store_transfers")
	defer span.End()
	span.SetAttributes(attribute.String("payment_intent.id", paymentIntentID))

	sess, err := s.provider.SessionByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}

	meta, err := payments.DecodeMetadata(sess.Metadata)
	if err != nil {
		return nil, err
	}

	cornerCount := meta.CornerItemCount()
	if cornerCount == 0 {
		return &TransferOutcome{Needed: false, Reason: "no transfer needed"}, nil
	}
	if meta.Store == models.StoreCorner {
		// Funds were routed to the connected account when the session was
		// created; a manual transfer here would pay twice.
		return &TransferOutcome{Needed: false, Reason: "funds routed at payment time"}, nil
	}

	amount, err := s.cornerAmount(ctx, sess.ID, meta, capturedCents)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: computed %d cents for %s", ErrInvalidTransferAmount, amount, meta.OrderNumber)
	}
	if capturedCents > 0 && amount > capturedCents {
		amount = capturedCents
	}

	return s.executeTransfer(ctx, paymentIntentID, sess.ID, meta, amount)
}

// cornerAmount sums the Corner-marked line items of the session. When the
// provider returns no line items at all the amount is estimated
// proportionally from the captured total and the metadata item counts. Line
// items that exist but carry no store marking are refused rather than
// guessed at.
func (s *SettlementService) cornerAmount(ctx context.Context, sessionID string, meta *payments.Metadata, capturedCents int64) (int64, error) {
	lineItems, err := s.provider.SessionLineItems(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	if len(lineItems) == 0 {
		total := capturedCents
		if total <= 0 {
			total = meta.TotalAmountCents
		}
		estimated := int64(math.Round(float64(total) * float64(meta.CornerItemCount()) / float64(meta.ItemCount)))
		logging.Warn(ctx).
			Str("session_id", sessionID).
			Str("order_number", meta.OrderNumber).
			Int64("estimated_cents", estimated).
			Msg("no line items returned, using proportional settlement estimate")
		return estimated, nil
	}

	var sum int64
	for _, li := range lineItems {
		if strings.Contains(li.Description, cornerLineMarker) {
			sum += li.AmountTotal
		}
	}
	if sum == 0 {
		return 0, fmt.Errorf("%w: %d line items, none marked for the corner", ErrUnattributableTransfer, len(lineItems))
	}
	return sum, nil
}

func (s *SettlementService) executeTransfer(ctx context.Context, paymentIntentID, sessionID string, meta *payments.Metadata, amount int64) (*TransferOutcome, error) {
	transferGroup := "order_" + meta.OrderNumber

	record := models.Transfer{
		PaymentIntentID:    paymentIntentID,
		OrderNumber:        meta.OrderNumber,
		SessionID:          sessionID,
		AmountCents:        amount,
		DestinationAccount: s.cornerAccount,
		TransferGroup:      transferGroup,
		Status:             models.TransferPending,
	}

	// Claim the intent in the ledger first. A conflict means someone already
	// settled (or is settling) this payment intent.
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_intent_id"}},
			DoNothing: true,
		}).
		Create(&record)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.Transfer
		if err := s.db.WithContext(ctx).
			Where("payment_intent_id = ?", paymentIntentID).
			First(&existing).Error; err != nil {
			return nil, err
		}
		if existing.Status != models.TransferFailed {
			logging.Info(ctx).
				Str("payment_intent_id", paymentIntentID).
				Str("transfer_id", existing.ProviderTransferID).
				Msg("transfer already settled, skipping")
			return &TransferOutcome{
				Needed:      true,
				Reason:      "already settled",
				TransferID:  existing.ProviderTransferID,
				AmountCents: existing.AmountCents,
				Destination: existing.DestinationAccount,
			}, nil
		}
		// Previous attempt failed; reclaim it for a retry.
		if err := s.db.WithContext(ctx).Model(&existing).
			Updates(map[string]interface{}{
				"status":         models.TransferPending,
				"amount_cents":   amount,
				"failure_reason": "",
			}).Error; err != nil {
			return nil, err
		}
		record = existing
	}

	transfer, err := s.provider.CreateTransfer(ctx, payments.TransferRequest{
		AmountCents:    amount,
		Currency:       s.currency,
		Destination:    s.cornerAccount,
		TransferGroup:  transferGroup,
		IdempotencyKey: "transfer_" + paymentIntentID,
		Metadata: map[string]string{
			"order_number":      meta.OrderNumber,
			"payment_intent_id": paymentIntentID,
		},
	})
	if err != nil {
		if dbErr := s.db.WithContext(ctx).Model(&models.Transfer{}).
			Where("payment_intent_id = ?", paymentIntentID).
			Updates(map[string]interface{}{
				"status":         models.TransferFailed,
				"failure_reason": err.Error(),
			}).Error; dbErr != nil {
			logging.Error(ctx).Err(dbErr).
				Str("payment_intent_id", paymentIntentID).
				Msg("failed to record transfer failure in ledger")
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("payment_intent_id = ?", paymentIntentID).
		Updates(map[string]interface{}{
			"status":               models.TransferCompleted,
			"provider_transfer_id": transfer.ID,
		}).Error; err != nil {
		logging.Error(ctx).Err(err).
			Str("transfer_id", transfer.ID).
			Msg("transfer executed but ledger update failed")
	}

	logging.Info(ctx).
		Str("order_number", meta.OrderNumber).
		Str("transfer_id", transfer.ID).
		Int64("amount_cents", amount).
		Msg("corner settlement transfer completed")

	return &TransferOutcome{
		Needed:      true,
		TransferID:  transfer.ID,
		AmountCents: amount,
		Destination: s.cornerAccount,
	}, nil
}

// TransferForIntent looks up the settlement ledger entry for a payment
// intent, mostly for support tooling and tests.
func (s *SettlementService) TransferForIntent(ctx context.Context, paymentIntentID string) (*models.Transfer, error) {
	var transfer models.Transfer
	err := s.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		First(&transfer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}
