package reconcile

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/gateway"
)

// Handler exposes checkout registration and gateway callback endpoints.
type Handler struct {
	service   *Service
	resultURL string
}

// NewHandler builds a reconciliation HTTP handler. Browser returns are
// redirected to resultURL with the settled status appended.
func NewHandler(service *Service, resultURL string) *Handler {
	return &Handler{service: service, resultURL: resultURL}
}

type openRequest struct {
	BookingID       string `json:"booking_id"`
	Provider        string `json:"provider"`
	TransactionCode string `json:"transaction_code"`
	Amount          int64  `json:"amount"`
}

type paymentResponse struct {
	ID              string     `json:"id"`
	BookingID       string     `json:"booking_id"`
	Provider        string     `json:"provider"`
	TransactionCode string     `json:"transaction_code"`
	Amount          int64      `json:"amount"`
	Status          string     `json:"status"`
	ResponseCode    string     `json:"response_code,omitempty"`
	ProviderTxID    string     `json:"provider_tx_id,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		BookingID:       p.BookingID,
		Provider:        string(p.Provider),
		TransactionCode: p.TransactionCode,
		Amount:          p.Amount,
		Status:          string(p.Status),
		ResponseCode:    p.ResponseCode,
		ProviderTxID:    p.ProviderTxID,
		PaidAt:          p.PaidAt,
		CreatedAt:       p.CreatedAt,
	}
}

// Open registers a pending checkout.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.OpenPayment(c.UserContext(), OpenInput{
		BookingID:       req.BookingID,
		Provider:        gateway.Provider(strings.ToUpper(req.Provider)),
		TransactionCode: req.TransactionCode,
		Amount:          req.Amount,
	})
	if err != nil {
		return fiber.NewError(apperrors.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(p))
}

// Status returns a payment by gateway and transaction code.
func (h *Handler) Status(c *fiber.Ctx) error {
	p, err := h.service.Get(c.UserContext(), gateway.Provider(strings.ToUpper(utils.CopyString(c.Params("provider")))), utils.CopyString(c.Params("code")))
	if err != nil {
		return fiber.NewError(apperrors.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(p))
}

// VNPayIPN handles the server-to-server IPN and answers with the RspCode body.
func (h *Handler) VNPayIPN(c *fiber.Ctx) error {
	res, _ := h.service.HandleCallback(c.UserContext(), gateway.ProviderVNPay, gateway.ChannelIPN,
		gateway.Payload{Query: queryValues(c)})
	return c.Status(res.Ack.Status).JSON(res.Ack.Body)
}

// VNPayReturn settles from the signed browser redirect and forwards the user
// to the result page.
func (h *Handler) VNPayReturn(c *fiber.Ctx) error {
	res, err := h.service.HandleCallback(c.UserContext(), gateway.ProviderVNPay, gateway.ChannelReturn,
		gateway.Payload{Query: queryValues(c)})
	status := "failed"
	switch {
	case errors.Is(err, apperrors.ErrInvalidSignature):
		status = "invalid"
	case err == nil && res.Payment.Status == StatusCompleted:
		status = "success"
	}
	return c.Redirect(h.redirectURL(status, res.Payment.TransactionCode), http.StatusFound)
}

// PayOSWebhook handles the signed PayOS webhook.
func (h *Handler) PayOSWebhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	res, _ := h.service.HandleCallback(c.UserContext(), gateway.ProviderPayOS, gateway.ChannelWebhook,
		gateway.Payload{Body: body})
	return c.Status(res.Ack.Status).JSON(res.Ack.Body)
}

// PayOSReturn forwards the browser to the result page. The redirect is
// unsigned, so it reports the stored payment status and never settles.
func (h *Handler) PayOSReturn(c *fiber.Ctx) error {
	code := utils.CopyString(c.Query("orderCode"))
	status := "pending"
	if p, err := h.service.Get(c.UserContext(), gateway.ProviderPayOS, code); err == nil {
		switch p.Status {
		case StatusCompleted:
			status = "success"
		case StatusFailed:
			status = "failed"
		}
	}
	if status == "pending" && c.Query("cancel") == "true" {
		status = "cancelled"
	}
	return c.Redirect(h.redirectURL(status, code), http.StatusFound)
}

func (h *Handler) redirectURL(status, code string) string {
	q := url.Values{}
	q.Set("status", status)
	if code != "" {
		q.Set("code", code)
	}
	sep := "?"
	if strings.Contains(h.resultURL, "?") {
		sep = "&"
	}
	return h.resultURL + sep + q.Encode()
}

func queryValues(c *fiber.Ctx) url.Values {
	values := url.Values{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		values.Add(string(k), string(v))
	})
	return values
}
