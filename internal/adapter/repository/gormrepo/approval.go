package gormrepo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	approvalDomain "rcv-cert-ledger/internal/domain/approval"
)

type ApprovalRepository struct{ db *gorm.DB }

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository { return &ApprovalRepository{db: db} }

func (r *ApprovalRepository) Create(ctx context.Context, a *approvalDomain.Record) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if isUniqueViolation(err) {
		return approvalDomain.ErrDuplicateSubmission
	}
	return err
}

func (r *ApprovalRepository) Save(ctx context.Context, a *approvalDomain.Record) error {
	err := r.db.WithContext(ctx).Save(a).Error
	if isUniqueViolation(err) {
		return approvalDomain.ErrAlreadyAnchored
	}
	return err
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*approvalDomain.Record, error) {
	var out approvalDomain.Record
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, notFound(err, approvalDomain.ErrNotFound)
	}
	return &out, nil
}

// GetByIDForUpdate issues SELECT ... FOR UPDATE (dropped by sqlite, which
// serialises writers at the database level).
func (r *ApprovalRepository) GetByIDForUpdate(ctx context.Context, id string) (*approvalDomain.Record, error) {
	var out approvalDomain.Record
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, approvalDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *ApprovalRepository) FindPendingByCertificate(ctx context.Context, certificateID string) (*approvalDomain.Record, error) {
	var out approvalDomain.Record
	err := r.db.WithContext(ctx).
		Where("certificate_id = ? AND status = ?", certificateID, approvalDomain.StatusPending).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, approvalDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *ApprovalRepository) ListByStatus(ctx context.Context, status approvalDomain.Status) ([]approvalDomain.Record, error) {
	var out []approvalDomain.Record
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *ApprovalRepository) ListByCertificate(ctx context.Context, certificateID string) ([]approvalDomain.Record, error) {
	var out []approvalDomain.Record
	err := r.db.WithContext(ctx).
		Where("certificate_id = ?", certificateID).
		Order("submission_version DESC, created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *ApprovalRepository) LatestByEntity(ctx context.Context, entityType approvalDomain.EntityType, entityID string) (*approvalDomain.Record, error) {
	var out approvalDomain.Record
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		First(&out).Error
	if err != nil {
		return nil, notFound(err, approvalDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *ApprovalRepository) ListBySubmitter(ctx context.Context, submitterID string, status *approvalDomain.Status) ([]approvalDomain.Record, error) {
	var out []approvalDomain.Record
	q := r.db.WithContext(ctx).Where("submitted_by = ?", submitterID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

func (r *ApprovalRepository) ListUnanchored(ctx context.Context, limit int) ([]approvalDomain.Record, error) {
	var out []approvalDomain.Record
	q := r.db.WithContext(ctx).
		Where("status = ? AND entity_created = ? AND ledger_tx_ref IS NULL AND approval_count >= required_approvals",
			approvalDomain.StatusApproved, true).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *ApprovalRepository) FindByLedgerTx(ctx context.Context, txRef string) (*approvalDomain.Record, error) {
	var out approvalDomain.Record
	if err := r.db.WithContext(ctx).Where("ledger_tx_ref = ?", txRef).First(&out).Error; err != nil {
		return nil, notFound(err, approvalDomain.ErrNotFound)
	}
	return &out, nil
}
