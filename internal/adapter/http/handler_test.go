package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h echo.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec)
	require.NoError(t, h(c))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		configured bool
		wantLedger string
	}{
		{"ledger configured", true, "configured"},
		{"ledger disabled", false, "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now().UTC()
			rec := get(t, NewHandler(LedgerInfo{Configured: tt.configured}).Health, "/health")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)

			var body struct{ Status, Ledger, Time string }
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "ok", body.Status)
			assert.Equal(t, tt.wantLedger, body.Ledger)

			at, err := time.Parse(time.RFC3339Nano, body.Time)
			require.NoError(t, err)
			assert.Equal(t, time.UTC, at.Location())
			assert.WithinDuration(t, before, at, 2*time.Second)
		})
	}
}

func TestLedgerInfo(t *testing.T) {
	info := LedgerInfo{Origin: "0xabc", ChainID: 11155111, Configured: true, ExplorerTxURL: "https://sepolia.etherscan.io/tx/"}
	rec := get(t, NewHandler(info).LedgerInfo, "/ledger/info")

	var got LedgerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, info, got)
}
