package gormrepo

import (
	"context"

	"gorm.io/gorm"

	"rcv-cert-ledger/internal/domain/identity"
)

type IdentityRepository struct{ db *gorm.DB }

func NewIdentityRepository(db *gorm.DB) *IdentityRepository { return &IdentityRepository{db: db} }

func (r *IdentityRepository) Create(ctx context.Context, i *identity.Identity) error {
	return r.db.WithContext(ctx).Create(i).Error
}

func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*identity.Identity, error) {
	var out identity.Identity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, notFound(err, identity.ErrNotFound)
	}
	return &out, nil
}

// CountQuorumEligible mirrors identity.Identity.QuorumEligible.
func (r *IdentityRepository) CountQuorumEligible(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&identity.Identity{}).
		Where("role = ? AND wallet_authorized = ? AND wallet_address IS NOT NULL AND wallet_address <> ''",
			identity.RoleAdmin, true).
		Count(&n).Error
	return n, err
}
