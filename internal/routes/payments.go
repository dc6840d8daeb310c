package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/petnest/settlement/internal/reconcile"
)

// RegisterPaymentRoutes wires checkout registration and gateway callbacks.
func RegisterPaymentRoutes(r fiber.Router, h *reconcile.Handler, idempotent fiber.Handler) {
	r.Post("/payments", idempotent, h.Open)
	r.Get("/payments/vnpay/ipn", h.VNPayIPN)
	r.Get("/payments/vnpay/return", h.VNPayReturn)
	r.Post("/payments/payos/webhook", h.PayOSWebhook)
	r.Get("/payments/payos/return", h.PayOSReturn)
	r.Get("/payments/:provider/:code", h.Status)
}
