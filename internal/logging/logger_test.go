package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithWriterLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
	}{
		{"debug enabled", "debug", true},
		{"info hides debug", "info", false},
		{"invalid falls back to info", "notalevel", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, tt.level)
			logger.Debug("ledger replayed")
			require.Equal(t, tt.wantDebug, buf.Len() > 0)
		})
	}
}

func TestNewWithWriterEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info").Info("wallet credited", "wallet_id", "w-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "wallet credited", line["msg"])
	require.Equal(t, "w-1", line["wallet_id"])
}

func TestRequestIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info").With("component", "wallet")

	ctx := WithRequestID(context.Background(), "req-42")
	logger.InfoContext(ctx, "wallet provisioned")
	logger.Info("no request")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	require.Equal(t, "req-42", first["request_id"])
	require.Equal(t, "wallet", first["component"])
	require.NotContains(t, second, "request_id")
}
