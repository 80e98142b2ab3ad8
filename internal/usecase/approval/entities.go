package approval

import (
	"encoding/json"
	"time"

	domain "rcv-cert-ledger/internal/domain/approval"
)

type SubmitInput struct {
	CertificateID string
	EntityType    domain.EntityType
	// EntityID names an existing entity for update/renewal/archive drafts.
	EntityID          string
	EntityName        string
	PDFHash           string
	PDFURL            string
	SubmitterID       string
	PendingEntityData json.RawMessage
}

type VoteInput struct {
	ApprovalID string
	ApproverID string
	Signature  string
	Timestamp  string // echoed from the signing message
	// ApprovalNumber is the slot the caller signed for; zero means "current".
	ApprovalNumber int
}

type RejectInput struct {
	ApprovalID string
	RejectorID string
	Reason     string
	Signature  string
	Timestamp  string
}

type ResubmitInput struct {
	PreviousApprovalID string
	CallerID           string
	PDFHash            string // optional
	PDFURL             string // optional
	PendingEntityData  json.RawMessage
}

// RematerializeInput retries entity creation for an approved record whose
// materialization failed. PendingEntityData, when set, replaces the draft.
type RematerializeInput struct {
	ApprovalID        string
	OperatorID        string
	PendingEntityData json.RawMessage
}

type ApproverDTO struct {
	ApproverID   string    `json:"approver_id"`
	Name         string    `json:"name"`
	Wallet       string    `json:"wallet"`
	Timestamp    time.Time `json:"timestamp"`
	AutoApproved bool      `json:"auto_approved,omitempty"`
}

type ApprovalDTO struct {
	ApprovalID    string `json:"approval_id"`
	CertificateID string `json:"certificate_id"`
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	EntityName    string `json:"entity_name"`
	PDFHash       string `json:"pdf_hash"`
	PDFURL        string `json:"pdf_url,omitempty"`
	Status        string `json:"status"`

	SubmittedBy   string `json:"submitted_by"`
	SubmitterName string `json:"submitter_name,omitempty"`

	Approvers         []ApproverDTO `json:"approvers"`
	ApprovalCount     int           `json:"approval_count"`
	RequiredApprovals int           `json:"required_approvals"`

	EntityCreated        bool   `json:"entity_created"`
	MaterializationError string `json:"materialization_error,omitempty"`

	AnchorStatus    string     `json:"anchor_status"`
	AnchorError     string     `json:"anchor_error,omitempty"`
	LedgerTxRef     *string    `json:"ledger_tx_ref,omitempty"`
	LedgerBlockRef  *uint64    `json:"ledger_block_ref,omitempty"`
	LedgerTimestamp *time.Time `json:"ledger_timestamp,omitempty"`

	RejectedBy      *string    `json:"rejected_by,omitempty"`
	RejectorName    string     `json:"rejector_name,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`

	SubmissionVersion  int     `json:"submission_version"`
	PreviousApprovalID *string `json:"previous_approval_id,omitempty"`

	IsRenewal    bool     `json:"is_renewal,omitempty"`
	RenewalChain []string `json:"renewal_chain,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SigningMessageDTO is everything a client needs to produce a vote signature.
type SigningMessageDTO struct {
	ApprovalID       string        `json:"approval_id"`
	Message          string        `json:"message"`
	Timestamp        string        `json:"timestamp"`
	ApprovalNumber   int           `json:"approval_number"`
	TotalRequired    int           `json:"total_required"`
	CurrentApprovals int           `json:"current_approvals"`
	Approvers        []ApproverDTO `json:"approvers"`
}

type RejectionMessageDTO struct {
	ApprovalID string `json:"approval_id"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

type QuorumDTO struct {
	EligibleCount     int64 `json:"eligible_count"`
	RequiredApprovals int   `json:"required_approvals"`
}

// AnchorOutcome reports one anchoring attempt. Status is anchored, failed or skipped.
type AnchorOutcome struct {
	ApprovalID string  `json:"approval_id"`
	Status     string  `json:"status"`
	TxRef      string  `json:"tx_ref,omitempty"`
	BlockRef   *uint64 `json:"block_ref,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type VoteResult struct {
	Approval *ApprovalDTO `json:"approval"`
	// Finalized is true when this call moved the record out of pending.
	Finalized bool           `json:"finalized"`
	Anchor    *AnchorOutcome `json:"anchor,omitempty"`
}

func toDTO(r *domain.Record) *ApprovalDTO {
	dto := &ApprovalDTO{
		ApprovalID:           r.ID,
		CertificateID:        r.CertificateID,
		EntityType:           string(r.EntityType),
		EntityID:             r.EntityID,
		EntityName:           r.EntityName,
		PDFHash:              r.PDFHash,
		PDFURL:               r.PDFURL,
		Status:               string(r.Status),
		SubmittedBy:          r.SubmittedBy,
		SubmitterName:        r.SubmitterName,
		Approvers:            toApproverDTOs(r.Approvers),
		ApprovalCount:        r.ApprovalCount,
		RequiredApprovals:    r.RequiredApprovals,
		EntityCreated:        r.EntityCreated,
		MaterializationError: r.MaterializationError,
		AnchorStatus:         r.AnchorStatus(),
		AnchorError:          r.AnchorError,
		LedgerTxRef:          r.LedgerTxRef,
		LedgerBlockRef:       r.LedgerBlockRef,
		LedgerTimestamp:      r.LedgerTimestamp,
		RejectedBy:           r.RejectedBy,
		RejectorName:         r.RejectorName,
		RejectionReason:      r.RejectionReason,
		RejectedAt:           r.RejectedAt,
		SubmissionVersion:    r.SubmissionVersion,
		PreviousApprovalID:   r.PreviousApprovalID,
		IsRenewal:            r.IsRenewal,
		RenewalChain:         r.RenewalChain,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	return dto
}

func toDTOs(rs []domain.Record) []ApprovalDTO {
	out := make([]ApprovalDTO, 0, len(rs))
	for i := range rs {
		out = append(out, *toDTO(&rs[i]))
	}
	return out
}

func toApproverDTOs(as []domain.Approver) []ApproverDTO {
	out := make([]ApproverDTO, 0, len(as))
	for _, a := range as {
		out = append(out, ApproverDTO{
			ApproverID:   a.ApproverID,
			Name:         a.ApproverName,
			Wallet:       a.ApproverWallet,
			Timestamp:    a.Timestamp,
			AutoApproved: a.Signature == domain.SubmitterSignature,
		})
	}
	return out
}
