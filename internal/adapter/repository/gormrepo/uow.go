package gormrepo

import (
	"context"

	"gorm.io/gorm"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/identity"
	"rcv-cert-ledger/internal/domain/uow"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

// reposFor builds tx-bound repos; Nested opens a savepoint on the same tx.
func reposFor(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Approvals:       &ApprovalRepository{db: tx},
		Identities:      &IdentityRepository{db: tx},
		Companies:       &CompanyRepository{db: tx},
		Products:        &ProductRepository{db: tx},
		Brands:          &BrandRepository{db: tx},
		Classifications: &ClassificationRepository{db: tx},
		Nested: func(ctx context.Context, fn func(r uow.Repos) error) error {
			return tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
				return fn(reposFor(sp))
			})
		},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposFor(tx))
	})
}

func (u *GormUoW) WithinApprovalTx(ctx context.Context, approvalID string, fn func(r uow.Repos, rec *approval.Record) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		// lock the approval row up-front so concurrent votes serialise
		rec, err := r.Approvals.GetByIDForUpdate(ctx, approvalID)
		if err != nil {
			return err
		}
		return fn(r, rec)
	})
}

// Models lists every table owned by this service.
func Models() []any {
	return []any{
		&approval.Record{},
		&identity.Identity{},
		&catalog.Company{},
		&catalog.Product{},
		&catalog.Brand{},
		&catalog.Classification{},
	}
}

func Migrate(db *gorm.DB) error { return db.AutoMigrate(Models()...) }
