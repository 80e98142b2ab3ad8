package uow

import (
	"context"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/identity"
)

// Repos are bound to one transaction.
type Repos struct {
	Approvals       approval.Repository
	Identities      identity.Repository
	Companies       catalog.CompanyRepository
	Products        catalog.ProductRepository
	Brands          catalog.BrandRepository
	Classifications catalog.ClassificationRepository

	// Nested runs fn inside a savepoint of the current tx: an error from fn
	// undoes only fn's writes. Nil means no savepoint support; callers run fn
	// directly.
	Nested func(ctx context.Context, fn func(r Repos) error) error
}

// RunNested runs fn in a savepoint when available.
func (r Repos) RunNested(ctx context.Context, fn func(r Repos) error) error {
	if r.Nested == nil {
		return fn(r)
	}
	return r.Nested(ctx, fn)
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// lock the approval row first, then pass it in
	WithinApprovalTx(ctx context.Context, approvalID string, fn func(r Repos, rec *approval.Record) error) error
}
