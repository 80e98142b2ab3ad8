package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"rcv-cert-ledger/internal/usecase/recovery"
)

type RecoveryService interface {
	Origin() string
	Certificates(ctx context.Context) ([]recovery.Certificate, int, error)
	RecoverAll(ctx context.Context) (*recovery.Report, error)
	RecoverOne(ctx context.Context, txRef string) (*recovery.Item, error)
	Status(ctx context.Context) (*recovery.Status, error)
	Verify(ctx context.Context, txRef string) (*recovery.Verification, error)
	VerifyPDFHash(ctx context.Context, txRef, pdfHash string) (*recovery.PDFVerification, error)
	Rebuild(ctx context.Context, txRef string, ov recovery.Overrides, operatorID string) (*recovery.RebuildResult, error)
}

type RecoveryHandler struct{ svc RecoveryService }

func NewRecoveryHandler(svc RecoveryService) *RecoveryHandler { return &RecoveryHandler{svc: svc} }

type txParam struct {
	TxHash string `param:"tx" validate:"required,txhash"`
}

type pdfReq struct {
	TxHash  string `param:"tx"      validate:"required,txhash"`
	PDFHash string `json:"pdfHash" validate:"required"`
}

type rebuildReq struct {
	TxHash string `param:"tx" validate:"required,txhash"`
	recovery.Overrides
}

func (h *RecoveryHandler) Status(c echo.Context) error {
	st, err := h.svc.Status(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *RecoveryHandler) Certificates(c echo.Context) error {
	certs, scanned, err := h.svc.Certificates(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"origin":               h.svc.Origin(),
		"transactions_scanned": scanned,
		"certificates":         certs,
	})
}

// Run performs a full scan. An interrupted scan still returns its partial
// report.
func (h *RecoveryHandler) Run(c echo.Context) error {
	rep, err := h.svc.RecoverAll(c.Request().Context())
	if rep != nil && rep.Interrupted {
		log.WithError(err).Warn("recovery scan interrupted by client")
		return c.JSON(http.StatusOK, rep)
	}
	if err != nil {
		return writeError(c, err)
	}
	log.WithField("operator", callerID(c)).Info("recovery scan requested")
	return c.JSON(http.StatusOK, rep)
}

func (h *RecoveryHandler) RecoverOne(c echo.Context) error {
	var req txParam
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	it, err := h.svc.RecoverOne(c.Request().Context(), req.TxHash)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *RecoveryHandler) Verify(c echo.Context) error {
	var req txParam
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.svc.Verify(c.Request().Context(), req.TxHash)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *RecoveryHandler) VerifyPDF(c echo.Context) error {
	var req pdfReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.svc.VerifyPDFHash(c.Request().Context(), req.TxHash, req.PDFHash)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *RecoveryHandler) Rebuild(c echo.Context) error {
	var req rebuildReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.svc.Rebuild(c.Request().Context(), req.TxHash, req.Overrides, callerID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}
