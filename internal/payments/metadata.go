package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/models"
)

// ErrMalformedMetadata is returned when a session's metadata cannot be
// decoded into the typed envelope. Settlement fails fast on it instead of
// estimating from partial data.
var ErrMalformedMetadata = errors.New("malformed session metadata")

// MetadataItem records the store attribution of one line item so settlement
// can recompute per-store shares without re-querying the catalogs.
type MetadataItem struct {
	Name     string       `json:"name"`
	Store    models.Store `json:"store"`
	Quantity int          `json:"quantity"`
}

// Metadata is the typed envelope attached to every checkout session. It is
// serialized into the provider's string-only metadata map and validated on
// the way back.
type Metadata struct {
	OrderNumber      string         `json:"order_number"`
	Store            models.Store   `json:"store"`
	CartID           string         `json:"cart_id,omitempty"`
	ItemCount        int            `json:"item_count"`
	TotalAmountCents int64          `json:"total_amount_cents"`
	ShippingMethod   string         `json:"shipping_method,omitempty"`
	DiscountCode     string         `json:"discount_code,omitempty"`
	CustomerEmail    string         `json:"customer_email,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	Items            []MetadataItem `json:"items"`
}

const (
	metaKeyOrderNumber = "order_number"
	metaKeyStore       = "store"
	metaKeyCartID      = "cart_id"
	metaKeyItemCount   = "item_count"
	metaKeyTotalCents  = "total_amount_cents"
	metaKeyShipping    = "shipping_method"
	metaKeyDiscount    = "discount_code"
	metaKeyEmail       = "user_email"
	metaKeyCreatedAt   = "created_at"
	metaKeyItems       = "items"
)

// Encode flattens the envelope into the provider's metadata map.
func (m Metadata) Encode() (map[string]string, error) {
	items, err := json.Marshal(m.Items)
	if err != nil {
		return nil, fmt.Errorf("encode metadata items: %w", err)
	}

	out := map[string]string{
		metaKeyOrderNumber: m.OrderNumber,
		metaKeyStore:       string(m.Store),
		metaKeyItemCount:   strconv.Itoa(m.ItemCount),
		metaKeyTotalCents:  strconv.FormatInt(m.TotalAmountCents, 10),
		metaKeyCreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
		metaKeyItems:       string(items),
	}
	if m.CartID != "" {
		out[metaKeyCartID] = m.CartID
	}
	if m.ShippingMethod != "" {
		out[metaKeyShipping] = m.ShippingMethod
	}
	if m.DiscountCode != "" {
		out[metaKeyDiscount] = m.DiscountCode
	}
	if m.CustomerEmail != "" {
		out[metaKeyEmail] = m.CustomerEmail
	}
	return out, nil
}

// DecodeMetadata rebuilds and validates the typed envelope from a provider
// metadata map.
func DecodeMetadata(raw map[string]string) (*Metadata, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: no metadata", ErrMalformedMetadata)
	}

	m := &Metadata{
		OrderNumber:    raw[metaKeyOrderNumber],
		Store:          models.Store(raw[metaKeyStore]),
		CartID:         raw[metaKeyCartID],
		ShippingMethod: raw[metaKeyShipping],
		DiscountCode:   raw[metaKeyDiscount],
		CustomerEmail:  raw[metaKeyEmail],
	}

	if m.OrderNumber == "" {
		return nil, fmt.Errorf("%w: missing order_number", ErrMalformedMetadata)
	}
	if !m.Store.Valid() {
		return nil, fmt.Errorf("%w: unknown store %q", ErrMalformedMetadata, raw[metaKeyStore])
	}

	count, err := strconv.Atoi(raw[metaKeyItemCount])
	if err != nil || count < 1 {
		return nil, fmt.Errorf("%w: bad item_count %q", ErrMalformedMetadata, raw[metaKeyItemCount])
	}
	m.ItemCount = count

	total, err := strconv.ParseInt(raw[metaKeyTotalCents], 10, 64)
	if err != nil || total < 0 {
		return nil, fmt.Errorf("%w: bad total_amount_cents %q", ErrMalformedMetadata, raw[metaKeyTotalCents])
	}
	m.TotalAmountCents = total

	if ts := raw[metaKeyCreatedAt]; ts != "" {
		created, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: bad created_at %q", ErrMalformedMetadata, ts)
		}
		m.CreatedAt = created
	}

	if itemsJSON := raw[metaKeyItems]; itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &m.Items); err != nil {
			return nil, fmt.Errorf("%w: bad items payload: %v", ErrMalformedMetadata, err)
		}
	}

	return m, nil
}

// CornerItemCount is the number of line items attributed to The Corner.
func (m *Metadata) CornerItemCount() int {
	n := 0
	for _, it := range m.Items {
		if it.Store == models.StoreCorner {
			n++
		}
	}
	return n
}
