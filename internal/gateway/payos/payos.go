// Package payos adapts PayOS payment webhooks.
package payos

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/gateway"
)

const successCode = "00"

// Webhook is the body PayOS posts when a payment link changes state.
type Webhook struct {
	Code      string         `json:"code"`
	Desc      string         `json:"desc"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data"`
	Signature string         `json:"signature"`
}

// Adapter implements gateway.Adapter for PayOS.
type Adapter struct{}

// New returns a PayOS adapter.
func New() Adapter { return Adapter{} }

// Provider reports PAYOS.
func (Adapter) Provider() gateway.Provider { return gateway.ProviderPayOS }

func decode(body []byte) (Webhook, error) {
	var w Webhook
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Webhook{}, apperrors.Invalid("body", "malformed webhook JSON")
	}
	if w.Data == nil {
		return Webhook{}, apperrors.Invalid("data", "required")
	}
	return w, nil
}

// Sign computes the hex HMAC-SHA256 over data as alphabetically sorted k=v pairs.
func Sign(data map[string]any, checksumKey string) (string, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := stringify(data[k])
		if err != nil {
			return "", fmt.Errorf("field %s: %w", k, err)
		}
		parts = append(parts, k+"="+v)
	}

	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		if t == "null" || t == "undefined" {
			return "", nil
		}
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case float64:
		return fmt.Sprintf("%v", t), nil
	case int, int64:
		return fmt.Sprintf("%d", t), nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// VerifySignature recomputes the webhook signature. Payloads without a body,
// such as the browser return redirect, carry no signature and never verify.
func (Adapter) VerifySignature(payload gateway.Payload, secret string) bool {
	if len(payload.Body) == 0 || secret == "" {
		return false
	}
	w, err := decode(payload.Body)
	if err != nil || w.Signature == "" {
		return false
	}
	want, err := Sign(w.Data, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(strings.ToLower(w.Signature)), []byte(want))
}

// ParseCallback extracts the payment outcome from the webhook data.
func (Adapter) ParseCallback(payload gateway.Payload) (gateway.Callback, error) {
	w, err := decode(payload.Body)
	if err != nil {
		return gateway.Callback{}, err
	}

	code, err := stringify(w.Data["orderCode"])
	if err != nil || code == "" {
		return gateway.Callback{}, apperrors.Invalid("data.orderCode", "required")
	}
	num, ok := w.Data["amount"].(json.Number)
	if !ok {
		return gateway.Callback{}, apperrors.Invalid("data.amount", "must be a number")
	}
	amount, err := num.Int64()
	if err != nil || amount <= 0 {
		return gateway.Callback{}, apperrors.Invalid("data.amount", "must be a positive integer")
	}

	response, _ := stringify(w.Data["code"])
	reference, _ := stringify(w.Data["reference"])
	return gateway.Callback{
		TransactionCode: code,
		Amount:          amount,
		ResponseCode:    response,
		ProviderTxID:    reference,
		Success:         response == successCode,
	}, nil
}

// Acknowledge renders the webhook response. Anything but a 2xx makes PayOS
// redeliver, which is only wanted for internal errors.
func (Adapter) Acknowledge(outcome gateway.Outcome) gateway.Ack {
	switch outcome {
	case gateway.OutcomeConfirmed, gateway.OutcomeAlreadyConfirmed:
		return gateway.Ack{Status: http.StatusOK, Body: map[string]any{"success": true}}
	case gateway.OutcomeError:
		return gateway.Ack{Status: http.StatusInternalServerError, Body: map[string]any{"success": false, "error": string(outcome)}}
	default:
		return gateway.Ack{Status: http.StatusOK, Body: map[string]any{"success": false, "error": string(outcome)}}
	}
}
