package approval

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type EntityType string

const (
	EntityProduct EntityType = "product"
	EntityCompany EntityType = "company"
)

func (t EntityType) Valid() bool { return t == EntityProduct || t == EntityCompany }

const (
	// EntityIDPending marks a record whose entity has not been materialized yet.
	EntityIDPending = "pending"
	// SubmitterSignature is stored on the implicit first approval of a
	// quorum-eligible submitter; it is never a verifiable signature.
	SubmitterSignature = "SUBMITTER_AUTO_APPROVAL"
)

// Approver is one committed vote.
type Approver struct {
	ApproverID     string    `json:"approverId"`
	ApproverName   string    `json:"approverName"`
	ApproverWallet string    `json:"approverWallet"`
	Timestamp      time.Time `json:"timestamp"`
	Signature      string    `json:"signature"`
}

// Record is the unit of work for one certificate approval round.
// Table: certificate_approvals
type Record struct {
	ID            string     `gorm:"column:id;type:varchar(36);primaryKey"`
	CertificateID string     `gorm:"column:certificate_id;type:varchar(191);not null;index"`
	EntityType    EntityType `gorm:"column:entity_type;type:varchar(16);not null"`
	EntityID      string     `gorm:"column:entity_id;type:varchar(36);not null;default:'pending';index"`
	EntityName    string     `gorm:"column:entity_name;type:varchar(255);not null"`
	PDFHash       string     `gorm:"column:pdf_hash;type:varchar(128);not null"`
	PDFURL        string     `gorm:"column:pdf_url;type:text"`
	Status        Status     `gorm:"column:status;type:varchar(16);not null;default:'pending';index"`
	// PendingGuard equals CertificateID while pending and NULL afterwards, so a
	// plain unique index enforces one pending record per certificate.
	PendingGuard *string `gorm:"column:pending_guard;type:varchar(191);uniqueIndex:ux_approvals_pending_certificate"`

	SubmittedBy     string `gorm:"column:submitted_by;type:varchar(36);not null;index"`
	SubmitterName   string `gorm:"column:submitter_name;type:varchar(255)"`
	SubmitterWallet string `gorm:"column:submitter_wallet;type:varchar(42)"`

	Approvers         datatypes.JSONSlice[Approver] `gorm:"column:approvers"`
	ApprovalCount     int                           `gorm:"column:approval_count;not null;default:0"`
	RequiredApprovals int                           `gorm:"column:required_approvals;not null;default:1"`

	PendingEntityData    datatypes.JSON `gorm:"column:pending_entity_data"`
	EntityCreated        bool           `gorm:"column:entity_created;not null;default:false"`
	MaterializationError string         `gorm:"column:materialization_error;type:text"`

	LedgerTxRef     *string    `gorm:"column:ledger_tx_ref;type:varchar(66);uniqueIndex:ux_approvals_ledger_tx"`
	LedgerBlockRef  *uint64    `gorm:"column:ledger_block_ref"`
	LedgerTimestamp *time.Time `gorm:"column:ledger_timestamp"`
	AnchorClaimedAt *time.Time `gorm:"column:anchor_claimed_at"`
	// AnchorPendingTx is a broadcast tx not yet confirmed; retries confirm it instead of re-sending.
	AnchorPendingTx *string `gorm:"column:anchor_pending_tx;type:varchar(66)"`
	AnchorError     string     `gorm:"column:anchor_error;type:text"`

	RejectedBy         *string    `gorm:"column:rejected_by;type:varchar(36)"`
	RejectorName       string     `gorm:"column:rejector_name;type:varchar(255)"`
	RejectionReason    string     `gorm:"column:rejection_reason;type:text"`
	RejectionSignature string     `gorm:"column:rejection_signature;type:text"`
	RejectedAt         *time.Time `gorm:"column:rejected_at"`

	SubmissionVersion  int     `gorm:"column:submission_version;not null;default:1"`
	PreviousApprovalID *string `gorm:"column:previous_approval_id;type:varchar(36);index"`

	IsRenewal               bool                        `gorm:"column:is_renewal;not null;default:false"`
	PreviousCertificateHash string                      `gorm:"column:previous_certificate_hash;type:varchar(128)"`
	RenewalChain            datatypes.JSONSlice[string] `gorm:"column:renewal_chain"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Record) TableName() string { return "certificate_approvals" }

func (r *Record) IsPending() bool { return r.Status == StatusPending }

// HasApprover compares ids case-insensitively.
func (r *Record) HasApprover(approverID string) bool {
	for _, a := range r.Approvers {
		if strings.EqualFold(a.ApproverID, approverID) {
			return true
		}
	}
	return false
}

// FirstApprover and SecondApprover are projections kept for consumers that
// still read the two-slot layout.
func (r *Record) FirstApprover() *Approver  { return r.approverAt(0) }
func (r *Record) SecondApprover() *Approver { return r.approverAt(1) }

func (r *Record) approverAt(i int) *Approver {
	if i >= len(r.Approvers) {
		return nil
	}
	a := r.Approvers[i]
	return &a
}

// AppendApprover keeps ApprovalCount equal to len(Approvers).
func (r *Record) AppendApprover(a Approver) {
	r.Approvers = append(r.Approvers, a)
	r.ApprovalCount = len(r.Approvers)
}

// QuorumReached reports whether the captured threshold has been met.
func (r *Record) QuorumReached() bool { return r.ApprovalCount >= r.RequiredApprovals }

// MarkApproved flips a pending record and releases the pending guard.
func (r *Record) MarkApproved() {
	r.Status = StatusApproved
	r.PendingGuard = nil
}

func (r *Record) MarkRejected(by, name, reason, signature string, at time.Time) {
	r.Status = StatusRejected
	r.PendingGuard = nil
	r.RejectedBy = &by
	r.RejectorName = name
	r.RejectionReason = reason
	r.RejectionSignature = signature
	r.RejectedAt = &at
}

func (r *Record) Anchored() bool { return r.LedgerTxRef != nil && *r.LedgerTxRef != "" }

// AnchorStatus is the eventually-consistent ledger state shown to callers.
func (r *Record) AnchorStatus() string {
	switch {
	case r.Anchored():
		return "anchored"
	case r.Status != StatusApproved:
		return "not_applicable"
	case r.AnchorError != "":
		return "failed"
	default:
		return "pending"
	}
}

func PendingGuardFor(certificateID string) *string { return &certificateID }
