package uowmock

import (
	"context"
	"errors"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/uow"
)

var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed mock that satisfies uow.UnitOfWork.
// Fill in the function fields you need in a test; unfilled ones return errUnimplemented.
type UoW struct {
	WithinTxFn         func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinApprovalTxFn func(ctx context.Context, approvalID string, fn func(r uow.Repos, rec *approval.Record) error) error
}

// Passthrough runs every closure against repos without a real transaction.
// WithinApprovalTx loads the record through repos.Approvals.GetByIDForUpdate.
func Passthrough(repos uow.Repos) *UoW {
	return &UoW{
		WithinTxFn: func(_ context.Context, fn func(uow.Repos) error) error { return fn(repos) },
		WithinApprovalTxFn: func(ctx context.Context, id string, fn func(uow.Repos, *approval.Record) error) error {
			rec, err := repos.Approvals.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			return fn(repos, rec)
		},
	}
}

func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	return errUnimplemented
}
func (m *UoW) WithinApprovalTx(ctx context.Context, approvalID string, fn func(r uow.Repos, rec *approval.Record) error) error {
	if m.WithinApprovalTxFn != nil {
		return m.WithinApprovalTxFn(ctx, approvalID, fn)
	}
	return errUnimplemented
}
