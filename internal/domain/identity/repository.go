package identity

import "context"

type Repository interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
	// CountQuorumEligible counts identities for which QuorumEligible is true.
	CountQuorumEligible(ctx context.Context) (int64, error)
}
