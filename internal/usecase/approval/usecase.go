package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	domain "rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/identity"
	"rcv-cert-ledger/internal/domain/ledger"
	"rcv-cert-ledger/internal/domain/uow"
	"rcv-cert-ledger/internal/infrastructure/metrics"
	"rcv-cert-ledger/internal/usecase/signature"
	"rcv-cert-ledger/pkg/id"
)

type SignatureVerifier interface {
	Verify(message, signature, expected string) error
}

// EntityMaterializer persists a record's pending entity inside the caller's tx.
type EntityMaterializer interface {
	Materialize(ctx context.Context, r uow.Repos, rec *domain.Record) (string, error)
}

// LedgerAnchor anchors a committed, approved record.
type LedgerAnchor interface {
	Anchor(ctx context.Context, approvalID string) (*ledger.Receipt, error)
}

type Deps struct {
	UoW          uow.UnitOfWork
	Approvals    domain.Repository
	Identities   identity.Repository
	Verifier     SignatureVerifier
	Materializer EntityMaterializer
	// Anchor may be nil when no ledger is configured; records then stay unanchored.
	Anchor LedgerAnchor
}

type Option func(*Usecase)

func WithMetrics(m *metrics.Metrics) Option { return func(u *Usecase) { u.metrics = m } }

func WithClock(now func() time.Time) Option { return func(u *Usecase) { u.now = now } }

// WithSigningWindow bounds how old an echoed signing timestamp may be.
func WithSigningWindow(d time.Duration) Option {
	return func(u *Usecase) {
		if d > 0 {
			u.signingWindow = d
		}
	}
}

type Usecase struct {
	uow           uow.UnitOfWork
	approvals     domain.Repository
	identities    identity.Repository
	verifier      SignatureVerifier
	materializer  EntityMaterializer
	anchor        LedgerAnchor
	metrics       *metrics.Metrics
	now           func() time.Time
	signingWindow time.Duration
	clockSkew     time.Duration
}

func NewUsecase(d Deps, opts ...Option) *Usecase {
	u := &Usecase{
		uow:           d.UoW,
		approvals:     d.Approvals,
		identities:    d.Identities,
		verifier:      d.Verifier,
		materializer:  d.Materializer,
		anchor:        d.Anchor,
		now:           func() time.Time { return time.Now().UTC() },
		signingWindow: 15 * time.Minute,
		clockSkew:     30 * time.Second,
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Submit opens a pending approval round for a certificate. A quorum-eligible
// submitter is recorded as the first approver; when that alone meets the
// threshold the record is finalized immediately.
func (u *Usecase) Submit(ctx context.Context, in SubmitInput) (*VoteResult, error) {
	if err := validateSubmit(in); err != nil {
		return nil, err
	}
	lifecycle, err := catalog.ParseLifecycle(in.PendingEntityData)
	if err != nil {
		return nil, pkgerrors.WithMessage(domain.ErrInvalidPendingEntity, err.Error())
	}

	var (
		rec    *domain.Record
		matErr error
	)
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		submitter, err := r.Identities.GetByID(ctx, in.SubmitterID)
		if err != nil {
			return err
		}
		if _, err := r.Approvals.FindPendingByCertificate(ctx, in.CertificateID); err == nil {
			return domain.ErrDuplicateSubmission
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		required, err := u.requiredApprovals(ctx, r)
		if err != nil {
			return err
		}

		rec = &domain.Record{
			ID:                id.NewUUID(),
			CertificateID:     in.CertificateID,
			EntityType:        in.EntityType,
			EntityID:          domain.EntityIDPending,
			EntityName:        in.EntityName,
			PDFHash:           in.PDFHash,
			PDFURL:            in.PDFURL,
			Status:            domain.StatusPending,
			PendingGuard:      domain.PendingGuardFor(in.CertificateID),
			SubmittedBy:       submitter.ID,
			SubmitterName:     submitter.FullName(),
			SubmitterWallet:   submitter.WalletAddress,
			RequiredApprovals: required,
			PendingEntityData: datatypes.JSON(in.PendingEntityData),
			SubmissionVersion: 1,
			IsRenewal:         lifecycle.IsRenewal,
		}
		if in.EntityID != "" {
			rec.EntityID = in.EntityID
		}
		if lifecycle.IsRenewal {
			rec.PreviousCertificateHash = lifecycle.PreviousCertificateHash
			rec.RenewalChain = u.renewalChain(ctx, r, rec, lifecycle)
		}
		if submitter.QuorumEligible() {
			rec.AppendApprover(domain.Approver{
				ApproverID:     submitter.ID,
				ApproverName:   submitter.FullName(),
				ApproverWallet: submitter.WalletAddress,
				Timestamp:      u.now(),
				Signature:      domain.SubmitterSignature,
			})
		}
		if rec.QuorumReached() {
			matErr = u.finalize(ctx, r, rec)
		}
		return r.Approvals.Create(ctx, rec)
	})
	if err != nil {
		u.metrics.Vote("submit", "rejected")
		return nil, err
	}
	u.metrics.Vote("submit", "ok")
	log.WithFields(log.Fields{
		"approval_id":    rec.ID,
		"certificate_id": rec.CertificateID,
		"required":       rec.RequiredApprovals,
		"auto_approved":  rec.ApprovalCount > 0,
	}).Info("certificate submitted for approval")

	return u.afterCommit(ctx, rec, matErr)
}

func validateSubmit(in SubmitInput) error {
	var missing []string
	for name, v := range map[string]string{
		"certificateId": in.CertificateID,
		"entityName":    in.EntityName,
		"pdfHash":       in.PDFHash,
		"submitterId":   in.SubmitterID,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return pkgerrors.WithMessagef(domain.ErrInvalidInput, "missing %s", strings.Join(missing, ", "))
	}
	if !in.EntityType.Valid() {
		return pkgerrors.WithMessagef(domain.ErrUnsupportedEntityType, "%q", in.EntityType)
	}
	return nil
}

// requiredApprovals snapshots the current quorum size, never below one.
func (u *Usecase) requiredApprovals(ctx context.Context, r uow.Repos) (int, error) {
	n, err := r.Identities.CountQuorumEligible(ctx)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		log.WithError(domain.ErrQuorumNotConfigured).Warn("defaulting to one required approval")
		return 1, nil
	}
	return int(n), nil
}

// renewalChain extends the chain of the entity's latest round with the hash
// being superseded.
func (u *Usecase) renewalChain(ctx context.Context, r uow.Repos, rec *domain.Record, l catalog.Lifecycle) []string {
	var chain []string
	if rec.EntityID != domain.EntityIDPending {
		if prev, err := r.Approvals.LatestByEntity(ctx, rec.EntityType, rec.EntityID); err == nil {
			chain = append(chain, prev.RenewalChain...)
			if l.PreviousCertificateHash == "" {
				l.PreviousCertificateHash = prev.PDFHash
				rec.PreviousCertificateHash = prev.PDFHash
			}
		}
	}
	if l.PreviousCertificateHash != "" {
		chain = append(chain, l.PreviousCertificateHash)
	}
	return chain
}

// Vote appends one verified approval under the record's row lock.
func (u *Usecase) Vote(ctx context.Context, in VoteInput) (*VoteResult, error) {
	signedAt, err := u.checkTimestamp(in.Timestamp)
	if err != nil {
		u.metrics.Vote("approve", "invalid_signature")
		return nil, err
	}

	var (
		rec       *domain.Record
		finalized bool
		matErr    error
	)
	err = u.uow.WithinApprovalTx(ctx, in.ApprovalID, func(r uow.Repos, locked *domain.Record) error {
		rec = locked
		if !rec.IsPending() {
			return domain.ErrInvalidState
		}
		approver, err := u.eligible(ctx, r, in.ApproverID)
		if err != nil {
			return err
		}
		if rec.HasApprover(approver.ID) || hasWallet(rec, approver.WalletAddress) {
			return domain.ErrDuplicateVote
		}
		slot := rec.ApprovalCount + 1
		if in.ApprovalNumber != 0 && in.ApprovalNumber != slot {
			return domain.ErrSlotTaken
		}
		msg := signature.ApprovalMessage(fieldsOf(rec), slot, rec.RequiredApprovals, in.Timestamp)
		if err := u.verifier.Verify(msg, in.Signature, approver.WalletAddress); err != nil {
			return err
		}

		rec.AppendApprover(domain.Approver{
			ApproverID:     approver.ID,
			ApproverName:   approver.FullName(),
			ApproverWallet: approver.WalletAddress,
			Timestamp:      signedAt,
			Signature:      in.Signature,
		})
		if rec.QuorumReached() {
			finalized = true
			matErr = u.finalize(ctx, r, rec)
		}
		return r.Approvals.Save(ctx, rec)
	})
	if err != nil {
		u.metrics.Vote("approve", outcomeOf(err))
		return nil, err
	}
	u.metrics.Vote("approve", "ok")
	log.WithFields(log.Fields{
		"approval_id": rec.ID,
		"approver_id": in.ApproverID,
		"count":       rec.ApprovalCount,
		"required":    rec.RequiredApprovals,
	}).Info("approval vote recorded")

	if !finalized {
		return &VoteResult{Approval: toDTO(rec)}, nil
	}
	return u.afterCommit(ctx, rec, matErr)
}

// Reject closes a pending record with a verified rejection. Terminal.
func (u *Usecase) Reject(ctx context.Context, in RejectInput) (*ApprovalDTO, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, pkgerrors.WithMessage(domain.ErrInvalidInput, "rejection reason is required")
	}
	if _, err := u.checkTimestamp(in.Timestamp); err != nil {
		u.metrics.Vote("reject", "invalid_signature")
		return nil, err
	}

	var rec *domain.Record
	err := u.uow.WithinApprovalTx(ctx, in.ApprovalID, func(r uow.Repos, locked *domain.Record) error {
		rec = locked
		if !rec.IsPending() {
			return domain.ErrInvalidState
		}
		rejector, err := u.eligible(ctx, r, in.RejectorID)
		if err != nil {
			return err
		}
		msg := signature.RejectionMessage(fieldsOf(rec), in.Reason, in.Timestamp)
		if err := u.verifier.Verify(msg, in.Signature, rejector.WalletAddress); err != nil {
			return err
		}
		rec.MarkRejected(rejector.ID, rejector.FullName(), in.Reason, in.Signature, u.now())
		return r.Approvals.Save(ctx, rec)
	})
	if err != nil {
		u.metrics.Vote("reject", outcomeOf(err))
		return nil, err
	}
	u.metrics.Vote("reject", "ok")
	log.WithFields(log.Fields{"approval_id": rec.ID, "rejected_by": in.RejectorID}).Info("certificate rejected")
	return toDTO(rec), nil
}

// Resubmit opens a fresh round for a rejected record. Quorum is recomputed
// and no approval carries over, including the submitter's.
func (u *Usecase) Resubmit(ctx context.Context, in ResubmitInput) (*ApprovalDTO, error) {
	var next *domain.Record
	err := u.uow.WithinApprovalTx(ctx, in.PreviousApprovalID, func(r uow.Repos, prev *domain.Record) error {
		if prev.Status != domain.StatusRejected {
			return domain.ErrInvalidState
		}
		if in.CallerID != prev.SubmittedBy {
			return domain.ErrNotSubmitter
		}
		if _, err := r.Approvals.FindPendingByCertificate(ctx, prev.CertificateID); err == nil {
			return domain.ErrDuplicateSubmission
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		required, err := u.requiredApprovals(ctx, r)
		if err != nil {
			return err
		}

		prevID := prev.ID
		next = &domain.Record{
			ID:                      id.NewUUID(),
			CertificateID:           prev.CertificateID,
			EntityType:              prev.EntityType,
			EntityID:                prev.EntityID,
			EntityName:              prev.EntityName,
			PDFHash:                 prev.PDFHash,
			PDFURL:                  prev.PDFURL,
			Status:                  domain.StatusPending,
			PendingGuard:            domain.PendingGuardFor(prev.CertificateID),
			SubmittedBy:             prev.SubmittedBy,
			SubmitterName:           prev.SubmitterName,
			SubmitterWallet:         prev.SubmitterWallet,
			RequiredApprovals:       required,
			PendingEntityData:       prev.PendingEntityData,
			SubmissionVersion:       prev.SubmissionVersion + 1,
			PreviousApprovalID:      &prevID,
			IsRenewal:               prev.IsRenewal,
			PreviousCertificateHash: prev.PreviousCertificateHash,
			RenewalChain:            prev.RenewalChain,
		}
		if in.PDFHash != "" {
			next.PDFHash = in.PDFHash
		}
		if in.PDFURL != "" {
			next.PDFURL = in.PDFURL
		}
		if len(in.PendingEntityData) > 0 {
			next.PendingEntityData = datatypes.JSON(in.PendingEntityData)
		}
		return r.Approvals.Create(ctx, next)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"approval_id":          next.ID,
		"previous_approval_id": in.PreviousApprovalID,
		"version":              next.SubmissionVersion,
	}).Info("certificate resubmitted")
	return toDTO(next), nil
}

// Rematerialize is the operator remediation for an approved record whose
// entity could not be created. It reruns materialization under the row lock
// and, on success, anchors the record. Records already materialized are
// returned unchanged.
func (u *Usecase) Rematerialize(ctx context.Context, in RematerializeInput) (*VoteResult, error) {
	if len(in.PendingEntityData) > 0 {
		if _, err := catalog.ParseLifecycle(in.PendingEntityData); err != nil {
			return nil, pkgerrors.WithMessage(domain.ErrInvalidPendingEntity, err.Error())
		}
	}
	var (
		rec     *domain.Record
		matErr  error
		changed bool
	)
	err := u.uow.WithinApprovalTx(ctx, in.ApprovalID, func(r uow.Repos, locked *domain.Record) error {
		rec = locked
		if rec.Status != domain.StatusApproved || !rec.QuorumReached() {
			return domain.ErrInvalidState
		}
		if rec.EntityCreated {
			return nil
		}
		changed = true
		if len(in.PendingEntityData) > 0 {
			rec.PendingEntityData = datatypes.JSON(in.PendingEntityData)
		}
		matErr = u.finalize(ctx, r, rec)
		return r.Approvals.Save(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &VoteResult{Approval: toDTO(rec), Finalized: true}, nil
	}
	log.WithFields(log.Fields{
		"approval_id": rec.ID,
		"operator_id": in.OperatorID,
		"created":     rec.EntityCreated,
	}).Info("materialization retried")
	return u.afterCommit(ctx, rec, matErr)
}

// finalize approves rec and materializes its entity in a savepoint. A
// materialization error is returned but must not abort the surrounding tx:
// the votes are committed and the record stays approved for remediation.
func (u *Usecase) finalize(ctx context.Context, r uow.Repos, rec *domain.Record) error {
	rec.MarkApproved()
	if rec.EntityCreated {
		return nil
	}
	var entityID string
	err := r.RunNested(ctx, func(nr uow.Repos) error {
		var err error
		entityID, err = u.materializer.Materialize(ctx, nr, rec)
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrMaterializationFailed) {
			err = pkgerrors.Wrap(domain.ErrMaterializationFailed, err.Error())
		}
		rec.MaterializationError = err.Error()
		u.metrics.Materialize(string(rec.EntityType), "failed")
		log.WithFields(log.Fields{
			"approval_id":    rec.ID,
			"certificate_id": rec.CertificateID,
		}).WithError(err).Error("approved certificate could not be materialized; manual remediation required")
		return err
	}
	rec.EntityID = entityID
	rec.EntityCreated = true
	rec.MaterializationError = ""
	u.metrics.Materialize(string(rec.EntityType), "ok")
	return nil
}

// afterCommit anchors a freshly approved record. Anchoring is skipped when
// materialization failed; RegisterOnLedger can still anchor it later.
func (u *Usecase) afterCommit(ctx context.Context, rec *domain.Record, matErr error) (*VoteResult, error) {
	res := &VoteResult{Approval: toDTO(rec), Finalized: rec.Status == domain.StatusApproved}
	if !res.Finalized {
		return res, nil
	}
	if matErr != nil {
		res.Anchor = &AnchorOutcome{ApprovalID: rec.ID, Status: "skipped", Error: "materialization failed"}
		return res, matErr
	}
	res.Anchor = u.anchorOne(ctx, rec.ID)
	if fresh, err := u.approvals.GetByID(ctx, rec.ID); err == nil {
		res.Approval = toDTO(fresh)
	}
	return res, nil
}

func (u *Usecase) anchorOne(ctx context.Context, approvalID string) *AnchorOutcome {
	out := &AnchorOutcome{ApprovalID: approvalID}
	if u.anchor == nil {
		out.Status, out.Error = "skipped", "ledger not configured"
		return out
	}
	receipt, err := u.anchor.Anchor(ctx, approvalID)
	switch {
	case errors.Is(err, domain.ErrAnchorInProgress):
		out.Status, out.Error = "skipped", err.Error()
		return out
	case err != nil:
		out.Status, out.Error = "failed", err.Error()
		return out
	}
	block := receipt.BlockRef
	out.Status, out.TxRef, out.BlockRef = "anchored", receipt.TxRef, &block
	return out
}

// checkTimestamp parses an echoed signing timestamp and enforces the window.
func (u *Usecase) checkTimestamp(ts string) (time.Time, error) {
	t, err := signature.ParseTimestamp(ts)
	if err != nil {
		return time.Time{}, pkgerrors.WithMessage(domain.ErrInvalidSignature, err.Error())
	}
	now := u.now()
	if now.Sub(t) > u.signingWindow || t.Sub(now) > u.clockSkew {
		return time.Time{}, pkgerrors.WithMessage(domain.ErrInvalidSignature, "signing timestamp outside accepted window")
	}
	return t, nil
}

// eligible loads a voter and requires a quorum-eligible identity.
func (u *Usecase) eligible(ctx context.Context, r uow.Repos, identityID string) (*identity.Identity, error) {
	who, err := r.Identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if !who.QuorumEligible() {
		return nil, domain.ErrNotApprover
	}
	return who, nil
}

func hasWallet(rec *domain.Record, wallet string) bool {
	for _, a := range rec.Approvers {
		if a.ApproverWallet != "" && strings.EqualFold(a.ApproverWallet, wallet) {
			return true
		}
	}
	return false
}

func fieldsOf(rec *domain.Record) signature.Fields {
	return signature.Fields{
		CertificateID: rec.CertificateID,
		EntityName:    rec.EntityName,
		EntityType:    string(rec.EntityType),
		PDFHash:       rec.PDFHash,
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, domain.ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrSlotTaken):
		return "conflict"
	default:
		return "error"
	}
}
