// Package gateway defines the contract every payment provider adapter
// implements so that reconciliation stays provider agnostic.
package gateway

import (
	"net/url"
)

// Provider names a payment gateway.
type Provider string

const (
	ProviderVNPay Provider = "VNPAY"
	ProviderPayOS Provider = "PAYOS"
)

// Channel is the transport a callback arrived on.
type Channel string

const (
	ChannelReturn  Channel = "return"
	ChannelIPN     Channel = "ipn"
	ChannelWebhook Channel = "webhook"
)

// Payload is the raw inbound callback: the query string for redirect and IPN
// style callbacks, the body for webhook style callbacks.
type Payload struct {
	Query url.Values
	Body  []byte
}

// Callback is the provider-neutral content of a verified callback.
type Callback struct {
	TransactionCode string
	Amount          int64
	ResponseCode    string
	ProviderTxID    string
	Success         bool
}

// Outcome is what reconciliation decided for a callback. OutcomeInvalidPayload
// is a signed callback that cannot be parsed; only OutcomeError asks the
// gateway to redeliver.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeInvalidAmount    Outcome = "invalid_amount"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeInvalidPayload   Outcome = "invalid_payload"
	OutcomeError            Outcome = "error"
)

// Ack is the transport acknowledgement a provider expects back.
type Ack struct {
	Status int
	Body   any
}

// Adapter verifies, parses and acknowledges callbacks of one provider.
type Adapter interface {
	Provider() Provider
	VerifySignature(payload Payload, secret string) bool
	ParseCallback(payload Payload) (Callback, error)
	Acknowledge(outcome Outcome) Ack
}
