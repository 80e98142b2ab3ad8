package anchor

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/ledger"
	"rcv-cert-ledger/internal/domain/uow"
	"rcv-cert-ledger/internal/usecase/signature"
)

// BuildPayload derives the ledger payload for rec. Foreign references are
// substituted by value; ids mean nothing once the primary store is gone.
func BuildPayload(ctx context.Context, r uow.Repos, rec *approval.Record, timestamp string) (ledger.Payload, error) {
	p := ledger.Payload{
		CertificateID: rec.CertificateID,
		EntityType:    string(rec.EntityType),
		EntityName:    rec.EntityName,
		PDFHash:       rec.PDFHash,
		Timestamp:     timestamp,
	}
	for _, a := range rec.Approvers {
		p.Approvers = append(p.Approvers, ledger.ApproverEntry{
			Wallet: a.ApproverWallet,
			Name:   a.ApproverName,
			Date:   signature.FormatTimestamp(a.Timestamp),
		})
	}

	var (
		data *ledger.EntityData
		err  error
	)
	switch rec.EntityType {
	case approval.EntityProduct:
		data, err = productSnapshot(ctx, r, rec)
	case approval.EntityCompany:
		data, err = companySnapshot(ctx, r, rec)
	default:
		err = approval.ErrUnsupportedEntityType
	}
	if err != nil {
		return p, err
	}
	p.Entity = data
	return p, nil
}

func productSnapshot(ctx context.Context, r uow.Repos, rec *approval.Record) (*ledger.EntityData, error) {
	if rec.EntityCreated {
		prod, err := r.Products.GetByID(ctx, rec.EntityID)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "load product %s", rec.EntityID)
		}
		data := &ledger.EntityData{
			LTONumber:         prod.LTONumber,
			CFPRNumber:        prod.CFPRNumber,
			LotNumber:         prod.LotNumber,
			BrandName:         prod.BrandName,
			ProductName:       prod.ProductName,
			Classification:    prod.ProductClassification,
			SubClassification: prod.ProductSubClassification,
			ExpirationDate:    prod.ExpirationDate.UTC().Format("2006-01-02"),
			ProductImageFront: prod.ProductImageFront,
			ProductImageBack:  prod.ProductImageBack,
		}
		ref, err := companyRef(ctx, r, prod.CompanyID)
		if err != nil {
			return nil, err
		}
		data.Company = ref
		return data, nil
	}

	d, err := catalog.ParseProductDraft(rec.PendingEntityData)
	if err != nil {
		return nil, pkgerrors.Wrap(approval.ErrInvalidPendingEntity, err.Error())
	}
	data := &ledger.EntityData{
		LTONumber:         d.LTONumber,
		CFPRNumber:        d.CFPRNumber,
		LotNumber:         d.LotNumber,
		BrandName:         d.BrandName,
		ProductName:       d.ProductName,
		Classification:    d.ProductClassification,
		SubClassification: d.ProductSubClassification,
		ExpirationDate:    d.ExpirationDate,
		ProductImageFront: d.ProductImageFront,
		ProductImageBack:  d.ProductImageBack,
	}
	if d.CompanyID != "" {
		ref, err := companyRef(ctx, r, d.CompanyID)
		if err != nil {
			return nil, err
		}
		data.Company = ref
	}
	return data, nil
}

// companyRef tolerates a dangling company id; the snapshot just omits it.
func companyRef(ctx context.Context, r uow.Repos, companyID string) (*ledger.CompanyRef, error) {
	c, err := r.Companies.GetByID(ctx, companyID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "load company %s", companyID)
	}
	return &ledger.CompanyRef{Name: c.Name, License: c.LicenseNumber}, nil
}

func companySnapshot(ctx context.Context, r uow.Repos, rec *approval.Record) (*ledger.EntityData, error) {
	if rec.EntityCreated {
		c, err := r.Companies.GetByID(ctx, rec.EntityID)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "load company %s", rec.EntityID)
		}
		return &ledger.EntityData{
			Address:       c.Address,
			LicenseNumber: c.LicenseNumber,
			Phone:         c.Phone,
			Email:         c.Email,
			BusinessType:  c.BusinessType,
		}, nil
	}
	d, err := catalog.ParseCompanyDraft(rec.PendingEntityData)
	if err != nil {
		return nil, pkgerrors.Wrap(approval.ErrInvalidPendingEntity, err.Error())
	}
	return &ledger.EntityData{
		Address:       d.Address,
		LicenseNumber: d.LicenseNumber,
		Phone:         d.Phone,
		Email:         d.Email,
		BusinessType:  d.BusinessType,
	}, nil
}
