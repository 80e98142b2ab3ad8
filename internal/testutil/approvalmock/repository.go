package approvalmock

import (
	"context"

	domain "rcv-cert-ledger/internal/domain/approval"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Writers default to a nil error; readers default to domain.ErrNotFound.
type Repo struct {
	CreateFn                   func(ctx context.Context, r *domain.Record) error
	SaveFn                     func(ctx context.Context, r *domain.Record) error
	GetByIDFn                  func(ctx context.Context, id string) (*domain.Record, error)
	GetByIDForUpdateFn         func(ctx context.Context, id string) (*domain.Record, error)
	FindPendingByCertificateFn func(ctx context.Context, certificateID string) (*domain.Record, error)
	ListByStatusFn             func(ctx context.Context, status domain.Status) ([]domain.Record, error)
	ListByCertificateFn        func(ctx context.Context, certificateID string) ([]domain.Record, error)
	LatestByEntityFn           func(ctx context.Context, t domain.EntityType, entityID string) (*domain.Record, error)
	ListBySubmitterFn          func(ctx context.Context, submitterID string, status *domain.Status) ([]domain.Record, error)
	ListUnanchoredFn           func(ctx context.Context, limit int) ([]domain.Record, error)
	FindByLedgerTxFn           func(ctx context.Context, txRef string) (*domain.Record, error)
}

func (m *Repo) Create(ctx context.Context, r *domain.Record) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, r)
	}
	return nil
}

func (m *Repo) Save(ctx context.Context, r *domain.Record) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, r)
	}
	return nil
}

func (m *Repo) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Record, error) {
	if m.GetByIDForUpdateFn != nil {
		return m.GetByIDForUpdateFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) FindPendingByCertificate(ctx context.Context, certificateID string) (*domain.Record, error) {
	if m.FindPendingByCertificateFn != nil {
		return m.FindPendingByCertificateFn(ctx, certificateID)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Record, error) {
	if m.ListByStatusFn != nil {
		return m.ListByStatusFn(ctx, status)
	}
	return nil, nil
}

func (m *Repo) ListByCertificate(ctx context.Context, certificateID string) ([]domain.Record, error) {
	if m.ListByCertificateFn != nil {
		return m.ListByCertificateFn(ctx, certificateID)
	}
	return nil, nil
}

func (m *Repo) LatestByEntity(ctx context.Context, t domain.EntityType, entityID string) (*domain.Record, error) {
	if m.LatestByEntityFn != nil {
		return m.LatestByEntityFn(ctx, t, entityID)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) ListBySubmitter(ctx context.Context, submitterID string, status *domain.Status) ([]domain.Record, error) {
	if m.ListBySubmitterFn != nil {
		return m.ListBySubmitterFn(ctx, submitterID, status)
	}
	return nil, nil
}

func (m *Repo) ListUnanchored(ctx context.Context, limit int) ([]domain.Record, error) {
	if m.ListUnanchoredFn != nil {
		return m.ListUnanchoredFn(ctx, limit)
	}
	return nil, nil
}

func (m *Repo) FindByLedgerTx(ctx context.Context, txRef string) (*domain.Record, error) {
	if m.FindByLedgerTxFn != nil {
		return m.FindByLedgerTxFn(ctx, txRef)
	}
	return nil, domain.ErrNotFound
}
