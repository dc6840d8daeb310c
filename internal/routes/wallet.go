package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/petnest/settlement/internal/wallet"
)

// RegisterWalletRoutes wires wallet read endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallets/me", h.Mine)
	r.Get("/wallets/:walletId/balance", h.Balance)
	r.Get("/wallets/:walletId/transactions", h.Transactions)
	r.Get("/admin/wallets/:walletId/audit", h.Audit)
}
