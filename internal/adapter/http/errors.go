package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/identity"
	"rcv-cert-ledger/internal/domain/ledger"
	"rcv-cert-ledger/internal/usecase/recovery"
)

const CodeMaterializationFailed = "MATERIALIZATION_FAILED"

type errMapping struct {
	target error
	status int
	code   string
}

// first match wins; ErrInvalidSignature is handled before this table
var errTable = []errMapping{
	{approval.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{catalog.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{identity.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ledger.ErrTxNotFound, http.StatusNotFound, "TX_NOT_FOUND"},

	{approval.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
	{approval.ErrDuplicateVote, http.StatusConflict, "DUPLICATE_VOTE"},
	{approval.ErrDuplicateSubmission, http.StatusConflict, "DUPLICATE_SUBMISSION"},
	{approval.ErrSlotTaken, http.StatusConflict, "SLOT_TAKEN"},
	{approval.ErrAlreadyAnchored, http.StatusConflict, "ALREADY_ANCHORED"},
	{approval.ErrAnchorInProgress, http.StatusConflict, "ANCHOR_IN_PROGRESS"},
	{approval.ErrEntityNotMaterialized, http.StatusConflict, "ENTITY_NOT_MATERIALIZED"},
	{recovery.ErrScanInProgress, http.StatusConflict, "SCAN_IN_PROGRESS"},
	{recovery.ErrAlreadyRecovered, http.StatusConflict, "ALREADY_RECOVERED"},

	{approval.ErrNotApprover, http.StatusForbidden, "NOT_APPROVER"},
	{approval.ErrNotSubmitter, http.StatusForbidden, "NOT_SUBMITTER"},

	{approval.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{approval.ErrUnsupportedEntityType, http.StatusBadRequest, "UNSUPPORTED_ENTITY_TYPE"},
	{approval.ErrInvalidPendingEntity, http.StatusUnprocessableEntity, "INVALID_PENDING_ENTITY"},
	{recovery.ErrInsufficientRecoveryData, http.StatusUnprocessableEntity, "INSUFFICIENT_RECOVERY_DATA"},
	{recovery.ErrEntityTypeMismatch, http.StatusUnprocessableEntity, "ENTITY_TYPE_MISMATCH"},
	{recovery.ErrNotCertificate, http.StatusUnprocessableEntity, "NOT_A_CERTIFICATE"},

	{approval.ErrMaterializationFailed, http.StatusInternalServerError, CodeMaterializationFailed},
	{approval.ErrLedgerTimeout, http.StatusGatewayTimeout, "LEDGER_TIMEOUT"},
	{approval.ErrLedgerWriteFailed, http.StatusBadGateway, "LEDGER_WRITE_FAILED"},
	{ledger.ErrIndexUnavailable, http.StatusBadGateway, "INDEX_UNAVAILABLE"},
	{approval.ErrQuorumNotConfigured, http.StatusServiceUnavailable, "QUORUM_NOT_CONFIGURED"},
	{recovery.ErrOriginNotConfigured, http.StatusServiceUnavailable, "LEDGER_NOT_CONFIGURED"},
}

// statusOf maps a usecase error to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	for _, m := range errTable {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeError renders err. Signature failures never leak the recovered or
// expected identity; the verifier has already logged both.
func writeError(c echo.Context, err error) error {
	if errors.Is(err, approval.ErrInvalidSignature) {
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:          "signature verification failed",
			Code:           "INVALID_SIGNATURE",
			Reauthenticate: true,
		})
	}
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && code == "INTERNAL" {
		log.WithError(err).WithField("path", c.Path()).Error("unhandled error")
		msg = "internal error"
	}
	return c.JSON(status, ErrorResponse{Error: msg, Code: code})
}
