package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func mine(t *testing.T, app *fiber.App, ownerID string) walletResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/wallets/me", nil)
	req.Header.Set(ProviderHeader, ownerID)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out walletResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestMineKeepsOwnerAfterLaterRequests(t *testing.T) {
	svc, _ := newTestService(t)
	app := fiber.New()
	app.Get("/wallets/me", NewHandler(svc).Mine)

	owner := uuid.NewString()
	first := mine(t, app, owner)
	require.Equal(t, owner, first.OwnerID)

	for range 20 {
		mine(t, app, uuid.NewString())
	}

	w, err := svc.GetByOwner(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, first.ID, w.ID)
	require.Equal(t, owner, w.OwnerID)
	require.Equal(t, first.ID, mine(t, app, owner).ID)
}

func TestMineRequiresProvider(t *testing.T) {
	svc, _ := newTestService(t)
	app := fiber.New()
	app.Get("/wallets/me", NewHandler(svc).Mine)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/wallets/me", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
