package models

import (
	"time"
)

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer is the settlement idempotency ledger: one row per captured
// payment that owes funds to the connected account. The unique index on
// PaymentIntentID guarantees at-most-once transfers.
type Transfer struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	PaymentIntentID    string         `gorm:"uniqueIndex;not null" json:"payment_intent_id"`
	OrderNumber        string         `gorm:"index" json:"order_number"`
	SessionID          string         `json:"session_id"`
	AmountCents        int64          `gorm:"not null" json:"amount_cents"`
	DestinationAccount string         `gorm:"not null" json:"destination_account"`
	TransferGroup      string         `json:"transfer_group"`
	ProviderTransferID string         `json:"provider_transfer_id"`
	Status             TransferStatus `gorm:"not null;default:'pending'" json:"status"`
	FailureReason      string         `json:"failure_reason,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProviderEvent logs every webhook event received from the payment provider.
// The unique event id makes duplicate deliveries a no-op.
type ProviderEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"uniqueIndex;not null" json:"event_id"`
	EventType string    `gorm:"not null" json:"event_type"`
	Payload   string    `gorm:"type:text" json:"payload"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
