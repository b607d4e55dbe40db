package models

import "math"

// VariantSelector identifies one size/color combination from the storefront.
type VariantSelector struct {
	Size  string `json:"size"`
	Color string `json:"color"`
	Stock int    `json:"stock,omitempty"`
}

// LineItem is one cart entry as submitted at checkout. Immutable once
// bucketed; prices are euros and converted to cents exactly once when the
// provider session is built.
type LineItem struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Price     float64         `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
	Variant   VariantSelector `json:"variant"`
	Store     Store           `json:"store,omitempty"`
}

// UnitAmountCents converts the line item's unit price to integer minor
// units, the only rounding point in the money path.
func (li LineItem) UnitAmountCents() int64 {
	return roundCents(li.Price)
}

// TotalCents is quantity times the rounded unit amount.
func (li LineItem) TotalCents() int64 {
	return li.UnitAmountCents() * int64(li.Quantity)
}

func roundCents(euros float64) int64 {
	return int64(math.Round(euros * 100))
}

// PartitionedCart groups a cart's line items by owning store. Every input
// item lands in exactly one bucket.
type PartitionedCart map[Store][]LineItem

// IsEmpty reports whether no bucket holds any item.
func (pc PartitionedCart) IsEmpty() bool {
	for _, items := range pc {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

// Len is the total number of line items across all buckets.
func (pc PartitionedCart) Len() int {
	n := 0
	for _, items := range pc {
		n += len(items)
	}
	return n
}
