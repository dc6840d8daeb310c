package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/petnest/settlement/internal/withdrawal"
)

// RegisterWithdrawalRoutes wires provider and admin withdrawal endpoints.
func RegisterWithdrawalRoutes(r fiber.Router, h *withdrawal.Handler, idempotent, rateLimit fiber.Handler) {
	r.Post("/withdrawals", rateLimit, idempotent, h.Create)
	r.Get("/withdrawals", h.Mine)
	r.Get("/withdrawals/:id", h.Get)

	admin := r.Group("/admin/withdrawals")
	admin.Get("", h.List)
	admin.Post("/:id/approve", idempotent, h.Approve)
	admin.Post("/:id/start", idempotent, h.Start)
	admin.Post("/:id/complete", idempotent, h.Complete)
	admin.Post("/:id/reject", idempotent, h.Reject)
	admin.Post("/:id/fail", idempotent, h.Fail)
}
