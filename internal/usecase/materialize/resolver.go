package materialize

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/uow"
	"rcv-cert-ledger/pkg/id"
)

// Resolver finds catalog rows by natural key and creates them when absent.
// Each method reports whether it created the row.
type Resolver struct{}

// CompanyStub describes a company to create when name and license both miss.
type CompanyStub struct {
	Name        string
	License     string
	Address     string
	Description string
}

// Company matches by name first, then by license.
func (Resolver) Company(ctx context.Context, r uow.Repos, stub CompanyStub) (*catalog.Company, bool, error) {
	name := strings.TrimSpace(stub.Name)
	if name != "" {
		c, err := r.Companies.FindByName(ctx, name)
		if err == nil {
			return c, false, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, false, err
		}
	}
	license := strings.TrimSpace(stub.License)
	if license != "" {
		c, err := r.Companies.FindByLicense(ctx, license)
		if err == nil {
			return c, false, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, false, err
		}
	}
	if name == "" {
		return nil, false, pkgerrors.New("company name is required to create a company")
	}
	c := &catalog.Company{
		ID:            id.NewUUID(),
		Name:          name,
		LicenseNumber: license,
		Address:       stub.Address,
		Description:   stub.Description,
	}
	if err := r.Companies.Create(ctx, c); err != nil {
		return nil, false, pkgerrors.Wrapf(err, "create company %q", name)
	}
	return c, true, nil
}

// Brand, Classification and SubClassification tolerate a concurrent
// materialization or recovery creating the same row first.
func (Resolver) Brand(ctx context.Context, r uow.Repos, name string) (*catalog.Brand, bool, error) {
	name = strings.TrimSpace(name)
	b, err := r.Brands.FindByName(ctx, name)
	if err == nil {
		return b, false, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return nil, false, err
	}
	b = &catalog.Brand{ID: id.NewUUID(), Name: name}
	created, err := r.Brands.Ensure(ctx, b)
	if err != nil {
		return nil, false, pkgerrors.Wrapf(err, "create brand %q", name)
	}
	return b, created, nil
}

// Classification resolves a top-level classification.
func (Resolver) Classification(ctx context.Context, r uow.Repos, name string) (*catalog.Classification, bool, error) {
	name = strings.TrimSpace(name)
	c, err := r.Classifications.FindRoot(ctx, name)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return nil, false, err
	}
	c = &catalog.Classification{ID: id.NewUUID(), Name: name}
	created, err := r.Classifications.Ensure(ctx, c)
	if err != nil {
		return nil, false, pkgerrors.Wrapf(err, "create classification %q", name)
	}
	return c, created, nil
}

func (Resolver) SubClassification(ctx context.Context, r uow.Repos, name, parentID string) (*catalog.Classification, bool, error) {
	name = strings.TrimSpace(name)
	c, err := r.Classifications.FindChild(ctx, name, parentID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return nil, false, err
	}
	pid := parentID
	c = &catalog.Classification{ID: id.NewUUID(), Name: name, ParentID: &pid}
	created, err := r.Classifications.Ensure(ctx, c)
	if err != nil {
		return nil, false, pkgerrors.Wrapf(err, "create sub-classification %q", name)
	}
	return c, created, nil
}
