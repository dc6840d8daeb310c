package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petnest/settlement/internal/config"
	"github.com/petnest/settlement/internal/logging"
)

func TestNewInMemory(t *testing.T) {
	cfg := config.Config{AppName: "settlement-test", AppEnv: "test", Port: "0"}
	cfg.Wallet.MaxRetries = 3
	srv, err := New(cfg, nil, nil, nil, logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, srv.Services().Wallets)
	require.True(t, srv.App().Config().Immutable)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewRefusesMemoryOutsideDev(t *testing.T) {
	cfg := config.Config{AppEnv: "production"}
	_, err := New(cfg, nil, nil, nil, logging.Discard())
	require.Error(t, err)
}
