package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/petnest/settlement/internal/logging"
)

func TestRequestIDAndAudit(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Audit(logging.NewWithWriter(&buf, "info")))

	var seen string
	app.Post("/admin/withdrawals/:id/approve", func(c *fiber.Ctx) error {
		seen = RequestIDFrom(c.UserContext())
		return fiber.NewError(fiber.StatusConflict, "invalid state transition")
	})

	req := httptest.NewRequest(fiber.MethodPost, "/admin/withdrawals/w-1/approve", nil)
	req.Header.Set("X-Request-ID", "req-42")
	req.Header.Set("X-Admin-ID", "admin-7")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
	require.Equal(t, "req-42", seen)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	require.Equal(t, "WARN", line["level"])
	require.EqualValues(t, 409, line["status"])
	require.Equal(t, "admin-7", line["admin_id"])
	require.Equal(t, "req-42", line["request_id"])
}

func TestRequestIDGenerated(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
