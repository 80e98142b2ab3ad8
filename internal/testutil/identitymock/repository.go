package identitymock

import (
	"context"

	domain "rcv-cert-ledger/internal/domain/identity"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
type Repo struct {
	GetByIDFn             func(ctx context.Context, id string) (*domain.Identity, error)
	CountQuorumEligibleFn func(ctx context.Context) (int64, error)
}

// Static serves a fixed set of identities and derives the quorum count from it.
func Static(ids ...domain.Identity) *Repo {
	byID := make(map[string]domain.Identity, len(ids))
	var eligible int64
	for _, i := range ids {
		byID[i.ID] = i
		if i.QuorumEligible() {
			eligible++
		}
	}
	return &Repo{
		GetByIDFn: func(_ context.Context, id string) (*domain.Identity, error) {
			i, ok := byID[id]
			if !ok {
				return nil, domain.ErrNotFound
			}
			return &i, nil
		},
		CountQuorumEligibleFn: func(context.Context) (int64, error) { return eligible, nil },
	}
}

func (m *Repo) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) CountQuorumEligible(ctx context.Context) (int64, error) {
	if m.CountQuorumEligibleFn != nil {
		return m.CountQuorumEligibleFn(ctx)
	}
	return 0, nil
}
