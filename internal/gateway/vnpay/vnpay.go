// Package vnpay adapts VNPay return and IPN callbacks.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/gateway"
)

const (
	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"
	successCode         = "00"
)

// Adapter implements gateway.Adapter for VNPay.
type Adapter struct{}

// New returns a VNPay adapter.
func New() Adapter { return Adapter{} }

// Provider reports VNPAY.
func (Adapter) Provider() gateway.Provider { return gateway.ProviderVNPay }

// Sign computes the hex HMAC-SHA512 over the sorted, URL-encoded vnp_* fields.
func Sign(params url.Values, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !strings.HasPrefix(k, "vnp_") || k == paramSecureHash || k == paramSecureHashType {
			continue
		}
		if params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the secure hash and compares it in constant time.
func (Adapter) VerifySignature(payload gateway.Payload, secret string) bool {
	got := strings.ToLower(payload.Query.Get(paramSecureHash))
	if got == "" || secret == "" {
		return false
	}
	want := Sign(payload.Query, secret)
	return hmac.Equal([]byte(got), []byte(want))
}

// ParseCallback extracts the payment outcome. vnp_Amount is sent in hundredths.
func (Adapter) ParseCallback(payload gateway.Payload) (gateway.Callback, error) {
	q := payload.Query
	code := q.Get("vnp_TxnRef")
	if code == "" {
		return gateway.Callback{}, apperrors.Invalid("vnp_TxnRef", "required")
	}
	raw, err := strconv.ParseInt(q.Get("vnp_Amount"), 10, 64)
	if err != nil || raw <= 0 {
		return gateway.Callback{}, apperrors.Invalid("vnp_Amount", "must be a positive integer")
	}
	if raw%100 != 0 {
		return gateway.Callback{}, apperrors.Invalid("vnp_Amount", fmt.Sprintf("%d is not a whole amount", raw))
	}

	response := q.Get("vnp_ResponseCode")
	status := q.Get("vnp_TransactionStatus")
	return gateway.Callback{
		TransactionCode: code,
		Amount:          raw / 100,
		ResponseCode:    response,
		ProviderTxID:    q.Get("vnp_TransactionNo"),
		Success:         response == successCode && (status == "" || status == successCode),
	}, nil
}

type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// Acknowledge renders the IPN response VNPay expects.
func (Adapter) Acknowledge(outcome gateway.Outcome) gateway.Ack {
	var body ipnResponse
	switch outcome {
	case gateway.OutcomeConfirmed:
		body = ipnResponse{"00", "Confirm Success"}
	case gateway.OutcomeAlreadyConfirmed:
		body = ipnResponse{"02", "Order already confirmed"}
	case gateway.OutcomeNotFound:
		body = ipnResponse{"01", "Order not found"}
	case gateway.OutcomeInvalidAmount:
		body = ipnResponse{"04", "Invalid amount"}
	case gateway.OutcomeInvalidSignature:
		body = ipnResponse{"97", "Invalid signature"}
	default:
		body = ipnResponse{"99", "Unknown error"}
	}
	return gateway.Ack{Status: http.StatusOK, Body: body}
}
