package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("catalog entity not found")
	ErrDuplicateTxRef = errors.New("ledger transaction already referenced by another entity")
)

// Company table: companies
type Company struct {
	ID            string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Name          string    `gorm:"column:name;type:varchar(255);not null;index" json:"name"`
	Address       string    `gorm:"column:address;type:text;not null" json:"address"`
	LicenseNumber string    `gorm:"column:license_number;type:varchar(128);not null;index" json:"licenseNumber"`
	Phone         string    `gorm:"column:phone;type:varchar(64)" json:"phone,omitempty"`
	Email         string    `gorm:"column:email;type:varchar(255)" json:"email,omitempty"`
	Website       string    `gorm:"column:website;type:varchar(255)" json:"website,omitempty"`
	BusinessType  string    `gorm:"column:business_type;type:varchar(128)" json:"businessType,omitempty"`
	Description   string    `gorm:"column:description;type:text" json:"description,omitempty"`
	LedgerTxRef   *string   `gorm:"column:ledger_tx_ref;type:varchar(66);uniqueIndex:ux_companies_ledger_tx" json:"ledgerTxRef,omitempty"`
	Archived      bool      `gorm:"column:archived;not null;default:false" json:"archived"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Company) TableName() string { return "companies" }

// Product table: products
type Product struct {
	ID                       string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	LTONumber                string     `gorm:"column:lto_number;type:varchar(128);not null" json:"LTONumber"`
	CFPRNumber               string     `gorm:"column:cfpr_number;type:varchar(128);not null" json:"CFPRNumber"`
	LotNumber                string     `gorm:"column:lot_number;type:varchar(128);not null" json:"lotNumber"`
	BrandName                string     `gorm:"column:brand_name;type:varchar(255);not null" json:"brandName"`
	ProductName              string     `gorm:"column:product_name;type:varchar(255);not null" json:"productName"`
	ProductClassification    string     `gorm:"column:product_classification;type:varchar(128)" json:"productClassification"`
	ProductSubClassification string     `gorm:"column:product_sub_classification;type:varchar(128)" json:"productSubClassification"`
	ClassificationID         *string    `gorm:"column:classification_id;type:varchar(36)" json:"classificationId,omitempty"`
	SubClassificationID      *string    `gorm:"column:sub_classification_id;type:varchar(36)" json:"subClassificationId,omitempty"`
	BrandID                  *string    `gorm:"column:brand_id;type:varchar(36)" json:"brandId,omitempty"`
	ExpirationDate           time.Time  `gorm:"column:expiration_date" json:"expirationDate"`
	DateOfRegistration       time.Time  `gorm:"column:date_of_registration" json:"dateOfRegistration"`
	CompanyID                string     `gorm:"column:company_id;type:varchar(36);not null;index" json:"companyId"`
	RegisteredBy             string     `gorm:"column:registered_by;type:varchar(36)" json:"registeredBy"`
	ProductImageFront        string     `gorm:"column:product_image_front;type:text" json:"productImageFront,omitempty"`
	ProductImageBack         string     `gorm:"column:product_image_back;type:text" json:"productImageBack,omitempty"`
	LedgerTxRef              *string    `gorm:"column:ledger_tx_ref;type:varchar(66);uniqueIndex:ux_products_ledger_tx" json:"ledgerTxRef,omitempty"`
	Archived                 bool       `gorm:"column:archived;not null;default:false" json:"archived"`
	ArchivedAt               *time.Time `gorm:"column:archived_at" json:"archivedAt,omitempty"`
	CreatedAt                time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt                time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Product) TableName() string { return "products" }

// Brand table: brands
type Brand struct {
	ID        string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Brand) TableName() string { return "brands" }

// Classification is a two-level tree; ParentID is nil for top-level rows.
type Classification struct {
	ID       string  `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Name     string  `gorm:"column:name;type:varchar(255);not null;index" json:"name"`
	ParentID *string `gorm:"column:parent_id;type:varchar(36);index" json:"parentId,omitempty"`

	// NaturalKey is unique per (parent, name); see ClassificationKey.
	NaturalKey string    `gorm:"column:natural_key;type:varchar(300);not null;uniqueIndex" json:"-"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Classification) TableName() string { return "product_classifications" }

// ClassificationKey is "/name" for top-level rows and "parentID/name" below.
func ClassificationKey(name string, parentID *string) string {
	if parentID == nil {
		return "/" + name
	}
	return *parentID + "/" + name
}
