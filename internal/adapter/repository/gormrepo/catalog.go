package gormrepo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rcv-cert-ledger/internal/domain/catalog"
)

type CompanyRepository struct{ db *gorm.DB }

func NewCompanyRepository(db *gorm.DB) *CompanyRepository { return &CompanyRepository{db: db} }

func (r *CompanyRepository) Create(ctx context.Context, c *catalog.Company) error {
	err := r.db.WithContext(ctx).Create(c).Error
	if isUniqueViolation(err) {
		return catalog.ErrDuplicateTxRef
	}
	return err
}

func (r *CompanyRepository) Save(ctx context.Context, c *catalog.Company) error {
	err := r.db.WithContext(ctx).Save(c).Error
	if isUniqueViolation(err) {
		return catalog.ErrDuplicateTxRef
	}
	return err
}

func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*catalog.Company, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *CompanyRepository) FindByName(ctx context.Context, name string) (*catalog.Company, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *CompanyRepository) FindByLicense(ctx context.Context, license string) (*catalog.Company, error) {
	return r.first(ctx, "license_number = ?", license)
}

func (r *CompanyRepository) FindByLedgerTx(ctx context.Context, txRef string) (*catalog.Company, error) {
	return r.first(ctx, "ledger_tx_ref = ?", txRef)
}

func (r *CompanyRepository) CountWithLedgerTx(ctx context.Context, txRefs []string) (int64, error) {
	return countIn(ctx, r.db, &catalog.Company{}, txRefs)
}

func (r *CompanyRepository) first(ctx context.Context, query string, arg any) (*catalog.Company, error) {
	var out catalog.Company
	if err := r.db.WithContext(ctx).Where(query, arg).Order("created_at ASC").First(&out).Error; err != nil {
		return nil, notFound(err, catalog.ErrNotFound)
	}
	return &out, nil
}

type ProductRepository struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) *ProductRepository { return &ProductRepository{db: db} }

func (r *ProductRepository) Create(ctx context.Context, p *catalog.Product) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if isUniqueViolation(err) {
		return catalog.ErrDuplicateTxRef
	}
	return err
}

func (r *ProductRepository) Save(ctx context.Context, p *catalog.Product) error {
	err := r.db.WithContext(ctx).Save(p).Error
	if isUniqueViolation(err) {
		return catalog.ErrDuplicateTxRef
	}
	return err
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	var out catalog.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, notFound(err, catalog.ErrNotFound)
	}
	return &out, nil
}

func (r *ProductRepository) FindByLedgerTx(ctx context.Context, txRef string) (*catalog.Product, error) {
	var out catalog.Product
	if err := r.db.WithContext(ctx).Where("ledger_tx_ref = ?", txRef).First(&out).Error; err != nil {
		return nil, notFound(err, catalog.ErrNotFound)
	}
	return &out, nil
}

func (r *ProductRepository) CountWithLedgerTx(ctx context.Context, txRefs []string) (int64, error) {
	return countIn(ctx, r.db, &catalog.Product{}, txRefs)
}

// countIn chunks the IN list to stay under driver placeholder limits.
func countIn(ctx context.Context, db *gorm.DB, model any, txRefs []string) (int64, error) {
	const chunk = 500
	var total int64
	for start := 0; start < len(txRefs); start += chunk {
		end := start + chunk
		if end > len(txRefs) {
			end = len(txRefs)
		}
		var n int64
		err := db.WithContext(ctx).Model(model).
			Where("ledger_tx_ref IN ?", txRefs[start:end]).
			Count(&n).Error
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

type BrandRepository struct{ db *gorm.DB }

func NewBrandRepository(db *gorm.DB) *BrandRepository { return &BrandRepository{db: db} }

func (r *BrandRepository) Ensure(ctx context.Context, b *catalog.Brand) (bool, error) {
	created, err := insertIgnore(ctx, r.db, b)
	if err != nil || created {
		return created, err
	}
	var out catalog.Brand
	if err := latest(ctx, r.db).Where("name = ?", b.Name).First(&out).Error; err != nil {
		return false, notFound(err, catalog.ErrNotFound)
	}
	*b = out
	return false, nil
}

func (r *BrandRepository) FindByName(ctx context.Context, name string) (*catalog.Brand, error) {
	var out catalog.Brand
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&out).Error; err != nil {
		return nil, notFound(err, catalog.ErrNotFound)
	}
	return &out, nil
}

type ClassificationRepository struct{ db *gorm.DB }

func NewClassificationRepository(db *gorm.DB) *ClassificationRepository {
	return &ClassificationRepository{db: db}
}

func (r *ClassificationRepository) Ensure(ctx context.Context, c *catalog.Classification) (bool, error) {
	c.NaturalKey = catalog.ClassificationKey(c.Name, c.ParentID)
	created, err := insertIgnore(ctx, r.db, c)
	if err != nil || created {
		return created, err
	}
	out, err := r.first(latest(ctx, r.db).Where("natural_key = ?", c.NaturalKey))
	if err != nil {
		return false, err
	}
	*c = *out
	return false, nil
}

func (r *ClassificationRepository) GetByID(ctx context.Context, id string) (*catalog.Classification, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *ClassificationRepository) FindRoot(ctx context.Context, name string) (*catalog.Classification, error) {
	return r.first(r.db.WithContext(ctx).Where("name = ? AND parent_id IS NULL", name))
}

func (r *ClassificationRepository) FindChild(ctx context.Context, name, parentID string) (*catalog.Classification, error) {
	return r.first(r.db.WithContext(ctx).Where("name = ? AND parent_id = ?", name, parentID))
}

func (r *ClassificationRepository) first(q *gorm.DB) (*catalog.Classification, error) {
	var out catalog.Classification
	if err := q.First(&out).Error; err != nil {
		return nil, notFound(err, catalog.ErrNotFound)
	}
	return &out, nil
}

// insertIgnore inserts row unless it conflicts with a unique key. It does not
// fail the surrounding transaction on conflict.
func insertIgnore(ctx context.Context, db *gorm.DB, row any) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// latest reads the newest committed version of a row, including one a
// concurrent transaction committed after this one's snapshot.
func latest(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).Clauses(clause.Locking{Strength: "SHARE"})
}
