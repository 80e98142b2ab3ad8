package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// LedgerInfo describes the anchoring identity this deployment writes from.
type LedgerInfo struct {
	Origin        string `json:"origin"`
	ChainID       int64  `json:"chain_id"`
	Configured    bool   `json:"configured"`
	ExplorerTxURL string `json:"explorer_tx_url"`
}

type Handler struct{ ledger LedgerInfo }

func NewHandler(info LedgerInfo) *Handler { return &Handler{ledger: info} }

// Health is unauthenticated. An unconfigured ledger is reported, not failed:
// approvals keep working and anchor later.
func (h *Handler) Health(c echo.Context) error {
	ledger := "configured"
	if !h.ledger.Configured {
		ledger = "disabled"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"ledger": ledger,
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) LedgerInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ledger)
}
