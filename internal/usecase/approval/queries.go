package approval

import (
	"context"
	"sort"

	domain "rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/usecase/signature"
)

func (u *Usecase) Get(ctx context.Context, approvalID string) (*ApprovalDTO, error) {
	rec, err := u.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	return toDTO(rec), nil
}

// SigningMessage issues the exact text the next approver must sign. The
// timestamp is generated here and must be echoed back with the vote.
func (u *Usecase) SigningMessage(ctx context.Context, approvalID string) (*SigningMessageDTO, error) {
	rec, err := u.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if !rec.IsPending() {
		return nil, domain.ErrInvalidState
	}
	ts := signature.FormatTimestamp(u.now())
	slot := rec.ApprovalCount + 1
	return &SigningMessageDTO{
		ApprovalID:       rec.ID,
		Message:          signature.ApprovalMessage(fieldsOf(rec), slot, rec.RequiredApprovals, ts),
		Timestamp:        ts,
		ApprovalNumber:   slot,
		TotalRequired:    rec.RequiredApprovals,
		CurrentApprovals: rec.ApprovalCount,
		Approvers:        toApproverDTOs(rec.Approvers),
	}, nil
}

func (u *Usecase) RejectionMessage(ctx context.Context, approvalID, reason string) (*RejectionMessageDTO, error) {
	rec, err := u.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if !rec.IsPending() {
		return nil, domain.ErrInvalidState
	}
	ts := signature.FormatTimestamp(u.now())
	return &RejectionMessageDTO{
		ApprovalID: rec.ID,
		Message:    signature.RejectionMessage(fieldsOf(rec), reason, ts),
		Timestamp:  ts,
	}, nil
}

// GetPending lists pending records. With forUser set it hides records that
// user submitted or already approved.
func (u *Usecase) GetPending(ctx context.Context, forUser string) ([]ApprovalDTO, error) {
	rs, err := u.approvals.ListByStatus(ctx, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	if forUser == "" {
		return toDTOs(rs), nil
	}
	out := rs[:0]
	for _, r := range rs {
		if r.SubmittedBy == forUser || r.HasApprover(forUser) {
			continue
		}
		out = append(out, r)
	}
	return toDTOs(out), nil
}

func (u *Usecase) GetByStatus(ctx context.Context, status domain.Status) ([]ApprovalDTO, error) {
	switch status {
	case domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
	default:
		return nil, domain.ErrInvalidInput
	}
	rs, err := u.approvals.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return toDTOs(rs), nil
}

func (u *Usecase) GetByCertificate(ctx context.Context, certificateID string) ([]ApprovalDTO, error) {
	rs, err := u.approvals.ListByCertificate(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	return toDTOs(rs), nil
}

// GetByEntity returns the most recent round for an entity.
func (u *Usecase) GetByEntity(ctx context.Context, entityType domain.EntityType, entityID string) (*ApprovalDTO, error) {
	if !entityType.Valid() {
		return nil, domain.ErrUnsupportedEntityType
	}
	rec, err := u.approvals.LatestByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return toDTO(rec), nil
}

func (u *Usecase) GetSubmittedBy(ctx context.Context, userID string) ([]ApprovalDTO, error) {
	rs, err := u.approvals.ListBySubmitter(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	return toDTOs(rs), nil
}

// GetRejectedFor lists the submitter's rejected rounds, candidates for Resubmit.
func (u *Usecase) GetRejectedFor(ctx context.Context, submitterID string) ([]ApprovalDTO, error) {
	status := domain.StatusRejected
	rs, err := u.approvals.ListBySubmitter(ctx, submitterID, &status)
	if err != nil {
		return nil, err
	}
	return toDTOs(rs), nil
}

// History lists closed rounds the user approved or rejected, newest first.
func (u *Usecase) History(ctx context.Context, userID string) ([]ApprovalDTO, error) {
	var out []domain.Record
	for _, s := range []domain.Status{domain.StatusApproved, domain.StatusRejected} {
		rs, err := u.approvals.ListByStatus(ctx, s)
		if err != nil {
			return nil, err
		}
		for _, r := range rs {
			if r.HasApprover(userID) || (r.RejectedBy != nil && *r.RejectedBy == userID) {
				out = append(out, r)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return toDTOs(out), nil
}

// ReadyForLedger lists approved, fully voted, materialized and unanchored
// records, oldest first.
func (u *Usecase) ReadyForLedger(ctx context.Context, limit int) ([]ApprovalDTO, error) {
	rs, err := u.approvals.ListUnanchored(ctx, limit)
	if err != nil {
		return nil, err
	}
	return toDTOs(rs), nil
}

func (u *Usecase) QuorumInfo(ctx context.Context) (*QuorumDTO, error) {
	n, err := u.identities.CountQuorumEligible(ctx)
	if err != nil {
		return nil, err
	}
	required := int(n)
	if required < 1 {
		required = 1
	}
	return &QuorumDTO{EligibleCount: n, RequiredApprovals: required}, nil
}
