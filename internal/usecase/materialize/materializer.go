package materialize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/uow"
	"rcv-cert-ledger/pkg/id"
)

type Materializer struct {
	resolver Resolver
	now      func() time.Time
}

func NewMaterializer() *Materializer {
	return &Materializer{now: func() time.Time { return time.Now().UTC() }}
}

// Materialize persists rec.PendingEntityData as a catalog entity and returns
// its id. It is a no-op returning rec.EntityID once rec.EntityCreated is set;
// the caller stores the id and flips EntityCreated in the same transaction.
// Every failure unwraps to approval.ErrMaterializationFailed.
func (m *Materializer) Materialize(ctx context.Context, r uow.Repos, rec *approval.Record) (string, error) {
	if rec.EntityCreated {
		return rec.EntityID, nil
	}
	if len(rec.PendingEntityData) == 0 {
		return "", failed(errors.New("no pending entity data"))
	}

	var (
		entityID string
		err      error
	)
	switch rec.EntityType {
	case approval.EntityProduct:
		entityID, err = m.product(ctx, r, rec)
	case approval.EntityCompany:
		entityID, err = m.company(ctx, r, rec)
	default:
		err = approval.ErrUnsupportedEntityType
	}
	if err != nil {
		return "", failed(err)
	}

	log.WithFields(log.Fields{
		"approval_id": rec.ID,
		"entity_type": rec.EntityType,
		"entity_id":   entityID,
	}).Info("entity materialized")
	return entityID, nil
}

func failed(err error) error {
	return fmt.Errorf("%w: %w", approval.ErrMaterializationFailed, err)
}

// targetsExisting: lifecycle drafts modify the entity named by rec.EntityID.
func targetsExisting(rec *approval.Record, l catalog.Lifecycle) bool {
	return l.ModifiesExisting() && rec.EntityID != approval.EntityIDPending && id.IsUUID(rec.EntityID)
}

func (m *Materializer) product(ctx context.Context, r uow.Repos, rec *approval.Record) (string, error) {
	d, err := catalog.ParseProductDraft(rec.PendingEntityData)
	if err != nil {
		return "", err
	}
	if targetsExisting(rec, d.Lifecycle) {
		return m.updateProduct(ctx, r, rec.EntityID, d)
	}

	if missing := d.MissingFields(); len(missing) > 0 {
		return "", errors.Errorf("product draft missing %s", strings.Join(missing, ", "))
	}
	company, err := r.Companies.GetByID(ctx, d.CompanyID)
	if err != nil {
		return "", errors.Wrapf(err, "company %q", d.CompanyID)
	}
	exp, err := catalog.ParseDate(d.ExpirationDate)
	if err != nil {
		return "", err
	}
	registered := m.now()
	if d.DateOfRegistration != "" {
		if registered, err = catalog.ParseDate(d.DateOfRegistration); err != nil {
			return "", err
		}
	}

	p := &catalog.Product{
		ID:                       id.NewUUID(),
		LTONumber:                d.LTONumber,
		CFPRNumber:               d.CFPRNumber,
		LotNumber:                d.LotNumber,
		BrandName:                d.BrandName,
		ProductName:              d.ProductName,
		ProductClassification:    d.ProductClassification,
		ProductSubClassification: d.ProductSubClassification,
		ExpirationDate:           exp,
		DateOfRegistration:       registered,
		CompanyID:                company.ID,
		RegisteredBy:             rec.SubmittedBy,
		ProductImageFront:        d.ProductImageFront,
		ProductImageBack:         d.ProductImageBack,
	}
	if err := m.linkProduct(ctx, r, p); err != nil {
		return "", err
	}
	if err := r.Products.Create(ctx, p); err != nil {
		return "", errors.Wrap(err, "create product")
	}
	return p.ID, nil
}

// linkProduct resolves brand and classification references by name.
func (m *Materializer) linkProduct(ctx context.Context, r uow.Repos, p *catalog.Product) error {
	brand, _, err := m.resolver.Brand(ctx, r, p.BrandName)
	if err != nil {
		return err
	}
	p.BrandID = &brand.ID

	cls, _, err := m.resolver.Classification(ctx, r, p.ProductClassification)
	if err != nil {
		return err
	}
	p.ClassificationID = &cls.ID

	sub, _, err := m.resolver.SubClassification(ctx, r, p.ProductSubClassification, cls.ID)
	if err != nil {
		return err
	}
	p.SubClassificationID = &sub.ID
	return nil
}

func (m *Materializer) updateProduct(ctx context.Context, r uow.Repos, entityID string, d *catalog.ProductDraft) (string, error) {
	p, err := r.Products.GetByID(ctx, entityID)
	if err != nil {
		return "", errors.Wrapf(err, "product %q", entityID)
	}
	switch {
	case d.IsArchive:
		now := m.now()
		p.Archived, p.ArchivedAt = true, &now
	case d.IsUnarchive:
		p.Archived, p.ArchivedAt = false, nil
	default:
		overwrite(&p.LTONumber, d.LTONumber)
		overwrite(&p.CFPRNumber, d.CFPRNumber)
		overwrite(&p.LotNumber, d.LotNumber)
		overwrite(&p.BrandName, d.BrandName)
		overwrite(&p.ProductName, d.ProductName)
		overwrite(&p.ProductClassification, d.ProductClassification)
		overwrite(&p.ProductSubClassification, d.ProductSubClassification)
		overwrite(&p.ProductImageFront, d.ProductImageFront)
		overwrite(&p.ProductImageBack, d.ProductImageBack)
		if d.CompanyID != "" && d.CompanyID != p.CompanyID {
			if _, err := r.Companies.GetByID(ctx, d.CompanyID); err != nil {
				return "", errors.Wrapf(err, "company %q", d.CompanyID)
			}
			p.CompanyID = d.CompanyID
		}
		if d.ExpirationDate != "" {
			exp, err := catalog.ParseDate(d.ExpirationDate)
			if err != nil {
				return "", err
			}
			p.ExpirationDate = exp
		}
		if err := m.linkProduct(ctx, r, p); err != nil {
			return "", err
		}
	}
	if err := r.Products.Save(ctx, p); err != nil {
		return "", errors.Wrap(err, "save product")
	}
	return p.ID, nil
}

func (m *Materializer) company(ctx context.Context, r uow.Repos, rec *approval.Record) (string, error) {
	d, err := catalog.ParseCompanyDraft(rec.PendingEntityData)
	if err != nil {
		return "", err
	}
	if targetsExisting(rec, d.Lifecycle) {
		return m.updateCompany(ctx, r, rec.EntityID, d)
	}
	if d.Name == "" {
		d.Name = rec.EntityName
	}
	if missing := d.MissingFields(); len(missing) > 0 {
		return "", errors.Errorf("company draft missing %s", strings.Join(missing, ", "))
	}
	c := &catalog.Company{
		ID:            id.NewUUID(),
		Name:          d.Name,
		Address:       d.Address,
		LicenseNumber: d.LicenseNumber,
		Phone:         d.Phone,
		Email:         d.Email,
		Website:       d.Website,
		BusinessType:  d.BusinessType,
		Description:   d.Description,
	}
	if err := r.Companies.Create(ctx, c); err != nil {
		return "", errors.Wrap(err, "create company")
	}
	return c.ID, nil
}

func (m *Materializer) updateCompany(ctx context.Context, r uow.Repos, entityID string, d *catalog.CompanyDraft) (string, error) {
	c, err := r.Companies.GetByID(ctx, entityID)
	if err != nil {
		return "", errors.Wrapf(err, "company %q", entityID)
	}
	switch {
	case d.IsArchive:
		c.Archived = true
	case d.IsUnarchive:
		c.Archived = false
	default:
		overwrite(&c.Name, d.Name)
		overwrite(&c.Address, d.Address)
		overwrite(&c.LicenseNumber, d.LicenseNumber)
		overwrite(&c.Phone, d.Phone)
		overwrite(&c.Email, d.Email)
		overwrite(&c.Website, d.Website)
		overwrite(&c.BusinessType, d.BusinessType)
		overwrite(&c.Description, d.Description)
	}
	if err := r.Companies.Save(ctx, c); err != nil {
		return "", errors.Wrap(err, "save company")
	}
	return c.ID, nil
}

func overwrite(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}
