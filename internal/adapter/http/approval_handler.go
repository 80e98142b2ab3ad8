package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"rcv-cert-ledger/internal/adapter/middleware"
	domain "rcv-cert-ledger/internal/domain/approval"
	uc "rcv-cert-ledger/internal/usecase/approval"
)

// ApprovalService is the approval registry as seen by the HTTP surface.
type ApprovalService interface {
	Submit(ctx context.Context, in uc.SubmitInput) (*uc.VoteResult, error)
	Vote(ctx context.Context, in uc.VoteInput) (*uc.VoteResult, error)
	Reject(ctx context.Context, in uc.RejectInput) (*uc.ApprovalDTO, error)
	Resubmit(ctx context.Context, in uc.ResubmitInput) (*uc.ApprovalDTO, error)
	RegisterOnLedger(ctx context.Context, approvalID string) (*uc.ApprovalDTO, error)
	Rematerialize(ctx context.Context, in uc.RematerializeInput) (*uc.VoteResult, error)
	RetryUnanchored(ctx context.Context, limit int) ([]uc.AnchorOutcome, error)

	Get(ctx context.Context, approvalID string) (*uc.ApprovalDTO, error)
	SigningMessage(ctx context.Context, approvalID string) (*uc.SigningMessageDTO, error)
	RejectionMessage(ctx context.Context, approvalID, reason string) (*uc.RejectionMessageDTO, error)
	GetPending(ctx context.Context, forUser string) ([]uc.ApprovalDTO, error)
	GetByStatus(ctx context.Context, status domain.Status) ([]uc.ApprovalDTO, error)
	GetByCertificate(ctx context.Context, certificateID string) ([]uc.ApprovalDTO, error)
	GetByEntity(ctx context.Context, entityType domain.EntityType, entityID string) (*uc.ApprovalDTO, error)
	GetSubmittedBy(ctx context.Context, userID string) ([]uc.ApprovalDTO, error)
	GetRejectedFor(ctx context.Context, submitterID string) ([]uc.ApprovalDTO, error)
	History(ctx context.Context, userID string) ([]uc.ApprovalDTO, error)
	ReadyForLedger(ctx context.Context, limit int) ([]uc.ApprovalDTO, error)
	QuorumInfo(ctx context.Context) (*uc.QuorumDTO, error)
}

type ApprovalHandler struct{ svc ApprovalService }

func NewApprovalHandler(svc ApprovalService) *ApprovalHandler { return &ApprovalHandler{svc: svc} }

type submitReq struct {
	CertificateID     string          `json:"certificateId"     validate:"required,max=128"`
	EntityType        string          `json:"entityType"        validate:"required,entitytype"`
	EntityID          string          `json:"entityId"          validate:"max=64"`
	EntityName        string          `json:"entityName"        validate:"required,max=255"`
	PDFHash           string          `json:"pdfHash"           validate:"required,max=130"`
	PDFURL            string          `json:"pdfUrl"            validate:"omitempty,url"`
	PendingEntityData json.RawMessage `json:"pendingEntityData" validate:"required"`
}

type voteReq struct {
	Signature      string `json:"signature"      validate:"required,hexsig"`
	Timestamp      string `json:"timestamp"      validate:"required"`
	ApprovalNumber int    `json:"approvalNumber" validate:"gte=0"`
}

type rejectReq struct {
	Reason    string `json:"reason"    validate:"required,max=2000"`
	Signature string `json:"signature" validate:"required,hexsig"`
	Timestamp string `json:"timestamp" validate:"required"`
}

type resubmitReq struct {
	PDFHash           string          `json:"pdfHash"           validate:"max=130"`
	PDFURL            string          `json:"pdfUrl"            validate:"omitempty,url"`
	PendingEntityData json.RawMessage `json:"pendingEntityData"`
}

type rematerializeReq struct {
	PendingEntityData json.RawMessage `json:"pendingEntityData"`
}

// bindValid binds the body into req and validates it, writing the 400/422
// response itself. ok is false when a response has been written.
func bindValid(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	return true, nil
}

func callerID(c echo.Context) string {
	p, _ := middleware.PrincipalFrom(c)
	return p.ID
}

// writeVote renders a vote result. A materialization failure still carries
// the committed record so the client can show the approval state.
func writeVote(c echo.Context, okStatus int, res *uc.VoteResult, err error) error {
	if err != nil && res != nil && errors.Is(err, domain.ErrMaterializationFailed) {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error":    err.Error(),
			"code":     CodeMaterializationFailed,
			"approval": res.Approval,
		})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(okStatus, res)
}

func (h *ApprovalHandler) Submit(c echo.Context) error {
	var req submitReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.svc.Submit(c.Request().Context(), uc.SubmitInput{
		CertificateID:     req.CertificateID,
		EntityType:        domain.EntityType(req.EntityType),
		EntityID:          req.EntityID,
		EntityName:        req.EntityName,
		PDFHash:           req.PDFHash,
		PDFURL:            req.PDFURL,
		SubmitterID:       callerID(c),
		PendingEntityData: req.PendingEntityData,
	})
	return writeVote(c, http.StatusCreated, res, err)
}

func (h *ApprovalHandler) Approve(c echo.Context) error {
	var req voteReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.svc.Vote(c.Request().Context(), uc.VoteInput{
		ApprovalID:     c.Param("id"),
		ApproverID:     callerID(c),
		Signature:      req.Signature,
		Timestamp:      req.Timestamp,
		ApprovalNumber: req.ApprovalNumber,
	})
	return writeVote(c, http.StatusOK, res, err)
}

func (h *ApprovalHandler) Reject(c echo.Context) error {
	var req rejectReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.svc.Reject(c.Request().Context(), uc.RejectInput{
		ApprovalID: c.Param("id"),
		RejectorID: callerID(c),
		Reason:     req.Reason,
		Signature:  req.Signature,
		Timestamp:  req.Timestamp,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ApprovalHandler) Resubmit(c echo.Context) error {
	var req resubmitReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.svc.Resubmit(c.Request().Context(), uc.ResubmitInput{
		PreviousApprovalID: c.Param("id"),
		CallerID:           callerID(c),
		PDFHash:            req.PDFHash,
		PDFURL:             req.PDFURL,
		PendingEntityData:  req.PendingEntityData,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *ApprovalHandler) RegisterOnLedger(c echo.Context) error {
	dto, err := h.svc.RegisterOnLedger(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// Rematerialize takes an optional corrected draft; an empty body retries
// with the stored one.
func (h *ApprovalHandler) Rematerialize(c echo.Context) error {
	var req rematerializeReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
		}
	}
	res, err := h.svc.Rematerialize(c.Request().Context(), uc.RematerializeInput{
		ApprovalID:        c.Param("id"),
		OperatorID:        callerID(c),
		PendingEntityData: req.PendingEntityData,
	})
	return writeVote(c, http.StatusOK, res, err)
}

func (h *ApprovalHandler) RetryUnanchored(c echo.Context) error {
	out, err := h.svc.RetryUnanchored(c.Request().Context(), limitParam(c, 50))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": out})
}

func (h *ApprovalHandler) Get(c echo.Context) error {
	dto, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ApprovalHandler) SigningMessage(c echo.Context) error {
	dto, err := h.svc.SigningMessage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ApprovalHandler) RejectionMessage(c echo.Context) error {
	reason := c.QueryParam("reason")
	if reason == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing reason query param"})
	}
	dto, err := h.svc.RejectionMessage(c.Request().Context(), c.Param("id"), reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// List serves GET /approvals?status=...; without a status it lists what the
// caller can still act on.
func (h *ApprovalHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		out []uc.ApprovalDTO
		err error
	)
	switch s := domain.Status(c.QueryParam("status")); s {
	case "":
		out, err = h.svc.GetPending(ctx, callerID(c))
	case domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
		out, err = h.svc.GetByStatus(ctx, s)
	default:
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown status " + string(s)})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ApprovalHandler) ByCertificate(c echo.Context) error {
	out, err := h.svc.GetByCertificate(c.Request().Context(), c.Param("certificateId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ApprovalHandler) ByEntity(c echo.Context) error {
	t := domain.EntityType(c.Param("type"))
	if !t.Valid() {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "entity type must be product or company"})
	}
	dto, err := h.svc.GetByEntity(c.Request().Context(), t, c.Param("entityId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ApprovalHandler) Mine(c echo.Context) error {
	out, err := h.svc.GetSubmittedBy(c.Request().Context(), callerID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ApprovalHandler) MyRejected(c echo.Context) error {
	out, err := h.svc.GetRejectedFor(c.Request().Context(), callerID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ApprovalHandler) History(c echo.Context) error {
	out, err := h.svc.History(c.Request().Context(), callerID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ApprovalHandler) ReadyForLedger(c echo.Context) error {
	out, err := h.svc.ReadyForLedger(c.Request().Context(), limitParam(c, 100))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ApprovalHandler) Quorum(c echo.Context) error {
	dto, err := h.svc.QuorumInfo(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func limitParam(c echo.Context, def int) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}
