package reconcile

import (
	"time"

	"github.com/petnest/settlement/internal/gateway"
)

// Status is the settlement state of a gateway payment.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the payment can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payment is a booking checkout registered with a gateway, keyed by
// (Provider, TransactionCode).
type Payment struct {
	ID              string
	BookingID       string
	Provider        gateway.Provider
	TransactionCode string
	Amount          int64
	Status          Status
	ResponseCode    string
	ProviderTxID    string
	PaidAt          *time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Receipt is the idempotency claim taken before a callback mutates anything.
// At most one receipt exists per (Provider, TransactionCode).
type Receipt struct {
	ID              string
	Provider        gateway.Provider
	TransactionCode string
	Channel         gateway.Channel
	ResponseCode    string
	ReceivedAt      time.Time
}
