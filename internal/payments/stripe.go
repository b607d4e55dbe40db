package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ProviderError carries the provider's failure details so handlers can
// distinguish card declines from generic provider failures without
// importing the SDK.
type ProviderError struct {
	Code       string
	Message    string
	HTTPStatus int
	CardError  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// StripeProvider implements Provider against the Stripe API, including
// Connect transfers to The Corner's account.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:        stripe.String(li.Name),
			Description: stripe.String(li.Description),
		}
		if li.ImageURL != "" {
			productData.Images = stripe.StringSlice([]string{li.ImageURL})
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(li.UnitAmountCents),
				ProductData: productData,
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		LineItems:          lineItems,
		AllowPromotionCodes: stripe.Bool(true),
		PhoneNumberCollection: &stripe.CheckoutSessionPhoneNumberCollectionParams{
			Enabled: stripe.Bool(true),
		},
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{"FR", "BE", "CH", "LU"}),
		},
	}
	params.Context = ctx

	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	// Card is authorized at checkout and captured only after the shop
	// confirms availability.
	paymentIntentData := &stripe.CheckoutSessionPaymentIntentDataParams{
		CaptureMethod: stripe.String("manual"),
	}
	if req.TransferGroup != "" {
		paymentIntentData.TransferGroup = stripe.String(req.TransferGroup)
	}
	if req.TransferDestination != "" {
		paymentIntentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(req.TransferDestination),
		}
	}
	params.PaymentIntentData = paymentIntentData

	meta, err := req.Metadata.Encode()
	if err != nil {
		return nil, err
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return sessionFromStripe(sess), nil
}

func (p *StripeProvider) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := p.api.CheckoutSessions.Expire(sessionID, params)
	return wrapStripeErr(err)
}

func (p *StripeProvider) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return sessionFromStripe(sess), nil
}

func (p *StripeProvider) SessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*Session, error) {
	params := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	iter := p.api.CheckoutSessions.List(params)
	for iter.Next() {
		return sessionFromStripe(iter.CheckoutSession()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeErr(err)
	}
	return nil, ErrSessionNotFound
}

func (p *StripeProvider) SessionLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx
	iter := p.api.CheckoutSessions.ListLineItems(params)

	var items []LineItem
	for iter.Next() {
		li := iter.LineItem()
		items = append(items, LineItem{
			ID:          li.ID,
			Description: li.Description,
			AmountTotal: li.AmountTotal,
			Quantity:    li.Quantity,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeErr(err)
	}
	return items, nil
}

func (p *StripeProvider) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return paymentIntentFromStripe(pi), nil
}

func (p *StripeProvider) CapturePayment(ctx context.Context, paymentIntentID string, amountCents int64) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if amountCents > 0 {
		params.AmountToCapture = stripe.Int64(amountCents)
	}
	pi, err := p.api.PaymentIntents.Capture(paymentIntentID, params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return paymentIntentFromStripe(pi), nil
}

func (p *StripeProvider) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.Destination),
	}
	params.Context = ctx
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	tr, err := p.api.Transfers.New(params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return &Transfer{
		ID:          tr.ID,
		AmountCents: tr.Amount,
		Destination: tr.Destination.ID,
	}, nil
}

func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	out := &WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: event.Data.Raw,
	}

	switch out.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session event: %w", err)
		}
		out.SessionID = sess.ID
		out.OrderNumber = sess.Metadata[metaKeyOrderNumber]
		out.AmountCents = sess.AmountTotal
		out.Currency = string(sess.Currency)
		if sess.PaymentIntent != nil {
			out.PaymentIntentID = sess.PaymentIntent.ID
		}
		if sess.CustomerDetails != nil {
			out.CustomerEmail = sess.CustomerDetails.Email
		}
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent event: %w", err)
		}
		out.PaymentIntentID = pi.ID
		out.OrderNumber = pi.Metadata[metaKeyOrderNumber]
		out.AmountCents = pi.Amount
		out.Currency = string(pi.Currency)
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	}

	return out, nil
}

func sessionFromStripe(sess *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            sess.ID,
		URL:           sess.URL,
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		Metadata:      sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	return out
}

func paymentIntentFromStripe(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:             pi.ID,
		Status:         string(pi.Status),
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Metadata:       pi.Metadata,
	}
}

func wrapStripeErr(err error) error {
	if err == nil {
		return nil
	}
	stripeErr, ok := err.(*stripe.Error)
	if !ok {
		return err
	}
	status := stripeErr.HTTPStatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &ProviderError{
		Code:       string(stripeErr.Code),
		Message:    stripeErr.Msg,
		HTTPStatus: status,
		CardError:  stripeErr.Type == stripe.ErrorTypeCard,
	}
}
