package approval

import "context"

type Repository interface {
	// Create fails with ErrDuplicateSubmission when a pending record exists
	// for the same certificate.
	Create(ctx context.Context, r *Record) error
	Save(ctx context.Context, r *Record) error

	GetByID(ctx context.Context, id string) (*Record, error)
	// GetByIDForUpdate takes a row lock until the surrounding tx ends.
	GetByIDForUpdate(ctx context.Context, id string) (*Record, error)

	FindPendingByCertificate(ctx context.Context, certificateID string) (*Record, error)
	ListByStatus(ctx context.Context, status Status) ([]Record, error)
	ListByCertificate(ctx context.Context, certificateID string) ([]Record, error)
	LatestByEntity(ctx context.Context, entityType EntityType, entityID string) (*Record, error)
	ListBySubmitter(ctx context.Context, submitterID string, status *Status) ([]Record, error)
	// ListUnanchored returns approved, materialized records with full quorum and
	// no ledger ref, oldest first.
	ListUnanchored(ctx context.Context, limit int) ([]Record, error)
	FindByLedgerTx(ctx context.Context, txRef string) (*Record, error)
}
