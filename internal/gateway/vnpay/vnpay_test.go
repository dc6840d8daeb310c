package vnpay

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/gateway"
)

const secret = "VNPAYSECRETKEY"

func signedQuery(overrides map[string]string) url.Values {
	q := url.Values{}
	q.Set("vnp_TmnCode", "PETNEST1")
	q.Set("vnp_TxnRef", "BK20260101001")
	q.Set("vnp_Amount", "10000000")
	q.Set("vnp_ResponseCode", "00")
	q.Set("vnp_TransactionStatus", "00")
	q.Set("vnp_TransactionNo", "14123456")
	q.Set("vnp_OrderInfo", "Thanh toan don hang BK20260101001")
	q.Set("vnp_BankCode", "NCB")
	for k, v := range overrides {
		q.Set(k, v)
	}
	q.Set("vnp_SecureHashType", "HmacSHA512")
	q.Set("vnp_SecureHash", Sign(q, secret))
	return q
}

func TestVerifySignature(t *testing.T) {
	a := New()
	q := signedQuery(nil)
	require.True(t, a.VerifySignature(gateway.Payload{Query: q}, secret))
	require.False(t, a.VerifySignature(gateway.Payload{Query: q}, "other"))
	require.False(t, a.VerifySignature(gateway.Payload{Query: q}, ""))

	upper := url.Values{}
	for k, v := range q {
		upper[k] = v
	}
	upper.Set("vnp_SecureHash", strings.ToUpper(q.Get("vnp_SecureHash")))
	require.True(t, a.VerifySignature(gateway.Payload{Query: upper}, secret))

	tampered := signedQuery(nil)
	tampered.Set("vnp_Amount", "20000000")
	require.False(t, a.VerifySignature(gateway.Payload{Query: tampered}, secret))

	missing := signedQuery(nil)
	missing.Del("vnp_SecureHash")
	require.False(t, a.VerifySignature(gateway.Payload{Query: missing}, secret))
}

func TestSignIgnoresForeignAndEmptyParams(t *testing.T) {
	q := signedQuery(nil)
	base := Sign(q, secret)

	q.Set("utm_source", "mail")
	q.Set("vnp_CardType", "")
	require.Equal(t, base, Sign(q, secret))
}

func TestParseCallback(t *testing.T) {
	a := New()

	cb, err := a.ParseCallback(gateway.Payload{Query: signedQuery(nil)})
	require.NoError(t, err)
	require.Equal(t, "BK20260101001", cb.TransactionCode)
	require.EqualValues(t, 100_000, cb.Amount)
	require.Equal(t, "14123456", cb.ProviderTxID)
	require.True(t, cb.Success)

	cb, err = a.ParseCallback(gateway.Payload{Query: signedQuery(map[string]string{"vnp_ResponseCode": "24"})})
	require.NoError(t, err)
	require.False(t, cb.Success)
	require.Equal(t, "24", cb.ResponseCode)

	cb, err = a.ParseCallback(gateway.Payload{Query: signedQuery(map[string]string{"vnp_TransactionStatus": "02"})})
	require.NoError(t, err)
	require.False(t, cb.Success)

	_, err = a.ParseCallback(gateway.Payload{Query: signedQuery(map[string]string{"vnp_Amount": "abc"})})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = a.ParseCallback(gateway.Payload{Query: signedQuery(map[string]string{"vnp_Amount": "10050"})})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = a.ParseCallback(gateway.Payload{Query: url.Values{"vnp_Amount": {"100"}}})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAcknowledge(t *testing.T) {
	a := New()
	codes := map[gateway.Outcome]string{
		gateway.OutcomeConfirmed:        "00",
		gateway.OutcomeAlreadyConfirmed: "02",
		gateway.OutcomeNotFound:         "01",
		gateway.OutcomeInvalidAmount:    "04",
		gateway.OutcomeInvalidSignature: "97",
		gateway.OutcomeInvalidPayload:   "99",
		gateway.OutcomeError:            "99",
	}
	for outcome, code := range codes {
		ack := a.Acknowledge(outcome)
		require.Equal(t, http.StatusOK, ack.Status)
		require.Equal(t, code, ack.Body.(ipnResponse).RspCode, string(outcome))
	}
}
