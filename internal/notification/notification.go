package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const (
	// KindWithdrawalStatusChanged is emitted after a withdrawal transition commits.
	KindWithdrawalStatusChanged = "withdrawal_status_changed"
	// KindPaymentSettled is emitted after a gateway callback settles a payment.
	KindPaymentSettled = "payment_settled"
)

// Message describes a notification payload. Destination is the owner the
// event concerns, Key orders events for the same aggregate and Body is JSON.
type Message struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	Key         string `json:"key"`
	Body        string `json:"body"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// WithdrawalStatusChanged is the body of a KindWithdrawalStatusChanged message.
type WithdrawalStatusChanged struct {
	WithdrawalID string    `json:"withdrawal_id"`
	Code         string    `json:"code"`
	ProviderID   string    `json:"provider_id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Amount       int64     `json:"amount"`
	NetAmount    int64     `json:"net_amount"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// PaymentSettled is the body of a KindPaymentSettled message.
type PaymentSettled struct {
	PaymentID       string    `json:"payment_id"`
	BookingID       string    `json:"booking_id"`
	ProviderID      string    `json:"provider_id"`
	Gateway         string    `json:"gateway"`
	TransactionCode string    `json:"transaction_code"`
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	Credited        int64     `json:"credited"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewMessage encodes payload as the JSON body of a message.
func NewMessage(kind, destination, key string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Message{Kind: kind, Destination: destination, Key: key, Body: string(body)}, nil
}

// Publish encodes and sends an event. Delivery failures are logged, not returned.
func Publish(ctx context.Context, n Notifier, logger *slog.Logger, kind, destination, key string, payload any) {
	if n == nil {
		return
	}
	msg, err := NewMessage(kind, destination, key, payload)
	if err == nil {
		err = n.Send(ctx, msg)
	}
	if err != nil && logger != nil {
		logger.WarnContext(ctx, "event delivery failed",
			slog.String("kind", kind),
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("key", message.Key),
		slog.String("body", message.Body),
	)
	return nil
}
