package wallet

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/ledger"
)

// ProviderHeader carries the authenticated provider's owner ID, set upstream.
const ProviderHeader = "X-Provider-ID"

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Balance        int64     `json:"balance"`
	PendingBalance int64     `json:"pending_balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type entryResponse struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"booking_id,omitempty"`
	Reference   string    `json:"reference"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func toWalletResponse(w Wallet) walletResponse {
	return walletResponse{
		ID:             w.ID,
		OwnerID:        w.OwnerID,
		Balance:        w.Balance,
		PendingBalance: w.PendingBalance,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

// Mine returns the calling provider's wallet, creating it on first access.
func (h *Handler) Mine(c *fiber.Ctx) error {
	ownerID := utils.CopyString(c.Get(ProviderHeader))
	if ownerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing "+ProviderHeader+" header")
	}
	w, err := h.service.GetOrCreate(c.UserContext(), ownerID)
	if err != nil {
		return fiber.NewError(apperrors.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	walletID := utils.CopyString(c.Params("walletId"))
	balance, err := h.service.Balance(c.UserContext(), walletID)
	if err != nil {
		return fiber.NewError(apperrors.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":       walletID,
		"balance":         balance.Available,
		"pending_balance": balance.Pending,
		"timestamp":       balance.AsOf,
	})
}

// Transactions pages through the wallet's ledger entries.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	page, err := h.service.Transactions(c.UserContext(), utils.CopyString(c.Params("walletId")), filter)
	if err != nil {
		return fiber.NewError(apperrors.HTTPStatus(err), err.Error())
	}

	entries := make([]entryResponse, 0, len(page.Entries))
	for _, e := range page.Entries {
		entries = append(entries, entryResponse{
			ID:          e.ID,
			BookingID:   e.BookingID,
			Reference:   e.Reference,
			Amount:      e.Amount,
			Type:        string(e.Type),
			Status:      string(e.Status),
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"entries": entries,
		"total":   page.Total,
	})
}

// Audit replays the ledger and reports drift against the stored balances.
func (h *Handler) Audit(c *fiber.Ctx) error {
	report, err := h.service.Audit(c.UserContext(), utils.CopyString(c.Params("walletId")))
	if err != nil {
		return fiber.NewError(apperrors.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":  report.WalletID,
		"stored":     report.Stored,
		"replayed":   report.Replayed,
		"consistent": report.Consistent(),
	})
}

func parseFilter(c *fiber.Ctx) (ledger.Filter, error) {
	filter := ledger.Filter{
		Order:  ledger.Order(strings.ToLower(c.Query("order"))),
		Limit:  c.QueryInt("limit"),
		Offset: c.QueryInt("offset"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apperrors.Invalid("from", "must be RFC3339")
		}
		filter.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apperrors.Invalid("to", "must be RFC3339")
		}
		filter.To = t
	}
	for _, v := range splitList(c.Query("type")) {
		t := ledger.Type(strings.ToUpper(v))
		if !t.Valid() {
			return filter, apperrors.Invalid("type", "unknown transaction type "+v)
		}
		filter.Types = append(filter.Types, t)
	}
	for _, v := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, ledger.Status(strings.ToUpper(v)))
	}
	return filter, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
