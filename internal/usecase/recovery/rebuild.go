package recovery

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/ledger"
	"rcv-cert-ledger/internal/domain/uow"
	"rcv-cert-ledger/internal/usecase/materialize"
	"rcv-cert-ledger/pkg/id"
)

// Rebuild recreates the entity behind txRef, letting an operator fill in
// what the certificate does not carry. Overrides win over ledger data.
func (e *Engine) Rebuild(ctx context.Context, txRef string, ov Overrides, operatorID string) (*RebuildResult, error) {
	v, err := e.Verify(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if !v.Exists {
		return nil, ledger.ErrTxNotFound
	}
	if v.Certificate == nil {
		return nil, ErrNotCertificate
	}
	cert := *v.Certificate
	anchored := approval.EntityType(cert.Payload.EntityType)
	if ov.EntityType != "" && approval.EntityType(ov.EntityType) != anchored {
		return nil, pkgerrors.WithMessagef(ErrEntityTypeMismatch, "certificate is a %s", anchored)
	}

	res := &RebuildResult{EntityType: string(anchored), TxRef: cert.TxRef, ExplorerURL: cert.ExplorerURL}
	err = e.uow.WithinTx(ctx, func(r uow.Repos) error {
		existing, err := referencedBy(ctx, r, cert.TxRef)
		if err != nil {
			return err
		}
		if existing != "" {
			return pkgerrors.WithMessagef(ErrAlreadyRecovered, "entity %s", existing)
		}
		switch anchored {
		case approval.EntityCompany:
			c, err := buildCompany(cert, ov)
			if err != nil {
				return err
			}
			if err := r.Companies.Create(ctx, c); err != nil {
				return pkgerrors.Wrap(err, "create rebuilt company")
			}
			res.EntityID, res.Name = c.ID, c.Name
		case approval.EntityProduct:
			p, created, err := e.buildProduct(ctx, r, cert, ov, operatorID)
			if err != nil {
				return err
			}
			res.EntityID, res.Name, res.AutoCreated = p.ID, p.ProductName, created
		default:
			return pkgerrors.WithMessagef(ErrInsufficientRecoveryData, "unknown entity type %q", anchored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.Recovery("rebuilt")
	log.WithFields(log.Fields{
		"tx_hash":     res.TxRef,
		"entity_type": res.EntityType,
		"entity_id":   res.EntityID,
		"operator":    operatorID,
	}).Info("entity rebuilt from ledger")
	return res, nil
}

func buildCompany(cert Certificate, ov Overrides) (*catalog.Company, error) {
	p := cert.Payload
	var snap ledger.EntityData
	if p.HasEntitySnapshot() {
		snap = *p.Entity
	}
	ref := cert.TxRef
	c := &catalog.Company{
		ID:            id.NewUUID(),
		Name:          pick(ov.Name, p.EntityName),
		Address:       pick(ov.Address, snap.Address),
		LicenseNumber: pick(ov.LicenseNumber, snap.LicenseNumber),
		Phone:         pick(ov.Phone, snap.Phone),
		Email:         pick(ov.Email, snap.Email),
		Website:       ov.Website,
		BusinessType:  pick(ov.BusinessType, snap.BusinessType),
		Description:   pick(ov.Description, "Rebuilt from ledger. Certificate: "+p.CertificateID+". TX: "+ref),
		LedgerTxRef:   &ref,
	}
	var missing []string
	if c.Address == "" {
		missing = append(missing, "address")
	}
	if c.LicenseNumber == "" {
		missing = append(missing, "licenseNumber")
	}
	if len(missing) > 0 {
		return nil, pkgerrors.WithMessage(ErrInsufficientRecoveryData, "missing "+strings.Join(missing, ", "))
	}
	return c, nil
}

// buildProduct creates a product from the certificate snapshot and
// overrides, resolving or creating its company, brand and classifications.
func (e *Engine) buildProduct(ctx context.Context, r uow.Repos, cert Certificate, ov Overrides, operatorID string) (*catalog.Product, []AutoCreated, error) {
	p := cert.Payload
	var snap ledger.EntityData
	if p.HasEntitySnapshot() {
		snap = *p.Entity
	}
	d := catalog.ProductDraft{
		LTONumber:                pick(ov.LTONumber, snap.LTONumber),
		CFPRNumber:               pick(ov.CFPRNumber, snap.CFPRNumber),
		LotNumber:                pick(ov.LotNumber, snap.LotNumber),
		BrandName:                pick(ov.BrandName, snap.BrandName, p.EntityName),
		ProductName:              pick(ov.ProductName, snap.ProductName, p.EntityName),
		ProductClassification:    pick(ov.ProductClassification, snap.Classification),
		ProductSubClassification: pick(ov.ProductSubClassification, snap.SubClassification),
		ExpirationDate:           pick(ov.ExpirationDate, snap.ExpirationDate),
	}
	if missing := d.MissingFields(); len(missing) > 0 {
		return nil, nil, pkgerrors.WithMessage(ErrInsufficientRecoveryData, "missing "+strings.Join(missing, ", "))
	}
	expires, err := catalog.ParseDate(d.ExpirationDate)
	if err != nil {
		return nil, nil, pkgerrors.WithMessage(ErrInsufficientRecoveryData, err.Error())
	}

	var created []AutoCreated
	companyID := strings.TrimSpace(ov.CompanyID)
	if companyID != "" {
		if _, err := r.Companies.GetByID(ctx, companyID); errors.Is(err, catalog.ErrNotFound) {
			return nil, nil, pkgerrors.WithMessagef(ErrInsufficientRecoveryData, "company %s not found", companyID)
		} else if err != nil {
			return nil, nil, err
		}
	} else {
		if snap.Company == nil || strings.TrimSpace(snap.Company.Name) == "" {
			return nil, nil, pkgerrors.WithMessage(ErrInsufficientRecoveryData, "missing company")
		}
		c, isNew, err := e.resolver.Company(ctx, r, companyStub(cert.TxRef, snap.Company))
		if err != nil {
			return nil, nil, err
		}
		if isNew {
			created = append(created, AutoCreated{Kind: "company", ID: c.ID, Name: c.Name})
		}
		companyID = c.ID
	}

	brand, isNew, err := e.resolver.Brand(ctx, r, d.BrandName)
	if err != nil {
		return nil, nil, err
	}
	if isNew {
		created = append(created, AutoCreated{Kind: "brand", ID: brand.ID, Name: brand.Name})
	}
	cls, isNew, err := e.resolver.Classification(ctx, r, d.ProductClassification)
	if err != nil {
		return nil, nil, err
	}
	if isNew {
		created = append(created, AutoCreated{Kind: "classification", ID: cls.ID, Name: cls.Name})
	}
	sub, isNew, err := e.resolver.SubClassification(ctx, r, d.ProductSubClassification, cls.ID)
	if err != nil {
		return nil, nil, err
	}
	if isNew {
		created = append(created, AutoCreated{Kind: "sub_classification", ID: sub.ID, Name: sub.Name})
	}

	ref := cert.TxRef
	prod := &catalog.Product{
		ID:                       id.NewUUID(),
		LTONumber:                d.LTONumber,
		CFPRNumber:               d.CFPRNumber,
		LotNumber:                d.LotNumber,
		BrandName:                d.BrandName,
		ProductName:              d.ProductName,
		ProductClassification:    d.ProductClassification,
		ProductSubClassification: d.ProductSubClassification,
		ClassificationID:         &cls.ID,
		SubClassificationID:      &sub.ID,
		BrandID:                  &brand.ID,
		ExpirationDate:           expires,
		DateOfRegistration:       cert.BlockTime,
		CompanyID:                companyID,
		RegisteredBy:             operatorID,
		ProductImageFront:        snap.ProductImageFront,
		ProductImageBack:         snap.ProductImageBack,
		LedgerTxRef:              &ref,
	}
	if err := r.Products.Create(ctx, prod); err != nil {
		return nil, nil, pkgerrors.Wrap(err, "create recovered product")
	}
	return prod, created, nil
}

func companyStub(txRef string, ref *ledger.CompanyRef) materialize.CompanyStub {
	return materialize.CompanyStub{
		Name:        ref.Name,
		License:     pick(ref.License, "RECOVERED_"+prefix(txRef, 10)),
		Address:     "Address pending - recovered from ledger",
		Description: "Auto-created during product recovery. TX: " + txRef,
	}
}

// pick returns the first non-blank value.
func pick(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
