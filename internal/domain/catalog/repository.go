package catalog

import "context"

// Every getter returns ErrNotFound when nothing matches.

type CompanyRepository interface {
	Create(ctx context.Context, c *Company) error
	Save(ctx context.Context, c *Company) error
	GetByID(ctx context.Context, id string) (*Company, error)
	FindByName(ctx context.Context, name string) (*Company, error)
	FindByLicense(ctx context.Context, license string) (*Company, error)
	FindByLedgerTx(ctx context.Context, txRef string) (*Company, error)
	CountWithLedgerTx(ctx context.Context, txRefs []string) (int64, error)
}

type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	Save(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	FindByLedgerTx(ctx context.Context, txRef string) (*Product, error)
	CountWithLedgerTx(ctx context.Context, txRefs []string) (int64, error)
}

// Ensure methods insert the row unless one with the same natural key exists,
// in which case the argument is overwritten with the stored row and created
// is false. A concurrent insert of the same key is not an error.

type BrandRepository interface {
	Ensure(ctx context.Context, b *Brand) (created bool, err error)
	FindByName(ctx context.Context, name string) (*Brand, error)
}

type ClassificationRepository interface {
	Ensure(ctx context.Context, c *Classification) (created bool, err error)
	GetByID(ctx context.Context, id string) (*Classification, error)
	// FindRoot matches name with a NULL parent.
	FindRoot(ctx context.Context, name string) (*Classification, error)
	FindChild(ctx context.Context, name, parentID string) (*Classification, error)
}
