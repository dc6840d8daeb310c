package withdrawal

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/petnest/settlement/internal/apperrors"
)

const (
	// ProviderHeader carries the authenticated provider's ID, set upstream.
	ProviderHeader = "X-Provider-ID"
	// AdminHeader carries the authenticated administrator's ID, set upstream.
	AdminHeader = "X-Admin-ID"
)

// Handler exposes provider and admin withdrawal endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a withdrawal HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type bankRequest struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	HolderName    string `json:"holder_name"`
}

type createRequest struct {
	Amount int64       `json:"amount"`
	Bank   bankRequest `json:"bank"`
}

type actionRequest struct {
	Note           string `json:"note"`
	Reason         string `json:"reason"`
	TransactionRef string `json:"transaction_ref"`
}

type withdrawalResponse struct {
	ID              string      `json:"id"`
	Code            string      `json:"code"`
	WalletID        string      `json:"wallet_id"`
	ProviderID      string      `json:"provider_id"`
	Amount          int64       `json:"amount"`
	Fee             int64       `json:"fee"`
	NetAmount       int64       `json:"net_amount"`
	Status          string      `json:"status"`
	Bank            bankRequest `json:"bank"`
	AdminNote       string      `json:"admin_note,omitempty"`
	ProcessedBy     string      `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time  `json:"processed_at,omitempty"`
	TransactionRef  string      `json:"transaction_ref,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	FailureReason   string      `json:"failure_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func toResponse(w Withdrawal) withdrawalResponse {
	return withdrawalResponse{
		ID:         w.ID,
		Code:       w.Code,
		WalletID:   w.WalletID,
		ProviderID: w.ProviderID,
		Amount:     w.Amount,
		Fee:        w.Fee,
		NetAmount:  w.NetAmount,
		Status:     string(w.Status),
		Bank: bankRequest{
			Code:          w.Bank.Code,
			Name:          w.Bank.Name,
			AccountNumber: w.Bank.AccountNumber,
			HolderName:    w.Bank.HolderName,
		},
		AdminNote:       w.AdminNote,
		ProcessedBy:     w.ProcessedBy,
		ProcessedAt:     w.ProcessedAt,
		TransactionRef:  w.TransactionRef,
		RejectionReason: w.RejectionReason,
		FailureReason:   w.FailureReason,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

// header copies a request header out of the reused fasthttp buffer so the
// value can outlive the request.
func header(c *fiber.Ctx, name string) string {
	return utils.CopyString(c.Get(name))
}

func fail(err error) error {
	return fiber.NewError(apperrors.HTTPStatus(err), err.Error())
}

// Create files a withdrawal request for the calling provider.
func (h *Handler) Create(c *fiber.Ctx) error {
	providerID := header(c, ProviderHeader)
	if providerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing "+ProviderHeader+" header")
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Create(c.UserContext(), CreateInput{
		ProviderID: providerID,
		Amount:     req.Amount,
		Bank: Bank{
			Code:          req.Bank.Code,
			Name:          req.Bank.Name,
			AccountNumber: req.Bank.AccountNumber,
			HolderName:    req.Bank.HolderName,
		},
	})
	if err != nil {
		return fail(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(w))
}

// Mine lists the calling provider's withdrawals.
func (h *Handler) Mine(c *fiber.Ctx) error {
	providerID := header(c, ProviderHeader)
	if providerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing "+ProviderHeader+" header")
	}
	return h.list(c, providerID)
}

// Get returns one of the calling provider's withdrawals. Other providers'
// withdrawals are reported as missing.
func (h *Handler) Get(c *fiber.Ctx) error {
	providerID := header(c, ProviderHeader)
	if providerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing "+ProviderHeader+" header")
	}
	w, err := h.service.Get(c.UserContext(), utils.CopyString(c.Params("id")))
	if err != nil {
		return fail(err)
	}
	if w.ProviderID != providerID {
		return fiber.NewError(http.StatusNotFound, "withdrawal not found")
	}
	return c.Status(http.StatusOK).JSON(toResponse(w))
}

// List returns withdrawals across providers for the admin console.
func (h *Handler) List(c *fiber.Ctx) error {
	return h.list(c, utils.CopyString(c.Query("provider_id")))
}

func (h *Handler) list(c *fiber.Ctx, providerID string) error {
	items, total, err := h.service.List(c.UserContext(), Filter{
		ProviderID: providerID,
		Status:     Status(strings.ToUpper(c.Query("status"))),
		Limit:      c.QueryInt("limit"),
		Offset:     c.QueryInt("offset"),
	})
	if err != nil {
		return fail(err)
	}
	out := make([]withdrawalResponse, 0, len(items))
	for _, w := range items {
		out = append(out, toResponse(w))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"withdrawals": out, "total": total})
}

// Approve handles POST /admin/withdrawals/:id/approve.
func (h *Handler) Approve(c *fiber.Ctx) error {
	return h.act(c, func(adminID string, req actionRequest) (Withdrawal, error) {
		return h.service.Approve(c.UserContext(), utils.CopyString(c.Params("id")), adminID, req.Note)
	})
}

// Start handles POST /admin/withdrawals/:id/start.
func (h *Handler) Start(c *fiber.Ctx) error {
	return h.act(c, func(adminID string, _ actionRequest) (Withdrawal, error) {
		return h.service.StartProcessing(c.UserContext(), utils.CopyString(c.Params("id")), adminID)
	})
}

// Complete handles POST /admin/withdrawals/:id/complete.
func (h *Handler) Complete(c *fiber.Ctx) error {
	return h.act(c, func(adminID string, req actionRequest) (Withdrawal, error) {
		return h.service.Complete(c.UserContext(), utils.CopyString(c.Params("id")), adminID, req.TransactionRef)
	})
}

// Reject handles POST /admin/withdrawals/:id/reject.
func (h *Handler) Reject(c *fiber.Ctx) error {
	return h.act(c, func(adminID string, req actionRequest) (Withdrawal, error) {
		return h.service.Reject(c.UserContext(), utils.CopyString(c.Params("id")), adminID, req.Reason)
	})
}

// Fail handles POST /admin/withdrawals/:id/fail.
func (h *Handler) Fail(c *fiber.Ctx) error {
	return h.act(c, func(adminID string, req actionRequest) (Withdrawal, error) {
		return h.service.Fail(c.UserContext(), utils.CopyString(c.Params("id")), adminID, req.Reason)
	})
}

func (h *Handler) act(c *fiber.Ctx, do func(adminID string, req actionRequest) (Withdrawal, error)) error {
	adminID := header(c, AdminHeader)
	if adminID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing "+AdminHeader+" header")
	}
	var req actionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	w, err := do(adminID, req)
	if err != nil {
		return fail(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(w))
}
