package payments

import (
	"context"
	"errors"

	"github.com/zoranhorsy/reboul-checkout/internal/models"
)

var (
	// ErrNotCapturable is returned when a payment is not in a state that
	// allows capture.
	ErrNotCapturable = errors.New("payment is not in a capturable state")
	// ErrSessionNotFound is returned when no checkout session matches the
	// given reference.
	ErrSessionNotFound = errors.New("checkout session not found")
)

// SessionLineItem is one line of a checkout session request, already
// converted to integer minor units.
type SessionLineItem struct {
	Name            string
	Description     string
	UnitAmountCents int64
	Quantity        int64
	ImageURL        string
}

// SessionRequest describes one checkout session to create. A non-empty
// TransferDestination routes the session's captured funds to a connected
// account.
type SessionRequest struct {
	OrderNumber         string
	Store               models.Store
	CustomerEmail       string
	SuccessURL          string
	CancelURL           string
	LineItems           []SessionLineItem
	Metadata            Metadata
	TransferDestination string
	TransferGroup       string
	Currency            string
}

// Session is the provider's view of a checkout session.
type Session struct {
	ID              string
	URL             string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Status          string
	PaymentStatus   string
	Metadata        map[string]string
}

// PaymentIntent is the provider's view of a payment.
type PaymentIntent struct {
	ID             string
	Status         string
	Amount         int64
	AmountReceived int64
	Currency       string
	Metadata       map[string]string
}

// LineItem is one settled line of a completed session.
type LineItem struct {
	ID          string
	Description string
	AmountTotal int64
	Quantity    int64
}

// TransferRequest moves funds to a connected account. IdempotencyKey is
// forwarded to the provider so retries cannot double-pay.
type TransferRequest struct {
	AmountCents    int64
	Currency       string
	Destination    string
	TransferGroup  string
	IdempotencyKey string
	Metadata       map[string]string
}

// Transfer is the provider's record of a completed transfer.
type Transfer struct {
	ID          string
	AmountCents int64
	Destination string
}

// WebhookEvent is a verified event delivered by the provider.
type WebhookEvent struct {
	ID              string
	Type            string
	OrderNumber     string
	SessionID       string
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	CustomerEmail   string
	FailureMessage  string
	Payload         []byte
}

// Provider is the payment backend used by checkout and settlement. The
// production implementation talks to Stripe; tests substitute fakes.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	ExpireSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	SessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*Session, error)
	SessionLineItems(ctx context.Context, sessionID string) ([]LineItem, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
	CapturePayment(ctx context.Context, paymentIntentID string, amountCents int64) (*PaymentIntent, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
