package catalog

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Lifecycle flags may ride along in any pending entity payload.
type Lifecycle struct {
	IsRenewal               bool   `json:"isRenewal,omitempty"`
	PreviousCertificateHash string `json:"previousCertificateHash,omitempty"`
	OldCertificateID        string `json:"oldCertificateId,omitempty"`
	RenewalRequestDate      string `json:"renewalRequestDate,omitempty"`
	IsUpdate                bool   `json:"isUpdate,omitempty"`
	IsArchive               bool   `json:"isArchive,omitempty"`
	IsUnarchive             bool   `json:"isUnarchive,omitempty"`
}

// ModifiesExisting is true for drafts that target an already persisted entity.
func (l Lifecycle) ModifiesExisting() bool {
	return l.IsRenewal || l.IsUpdate || l.IsArchive || l.IsUnarchive
}

// ProductDraft is the pending form of a Product.
type ProductDraft struct {
	Lifecycle
	LTONumber                string `json:"LTONumber"`
	CFPRNumber               string `json:"CFPRNumber"`
	LotNumber                string `json:"lotNumber"`
	BrandName                string `json:"brandName"`
	ProductName              string `json:"productName"`
	ProductClassification    string `json:"productClassification"`
	ProductSubClassification string `json:"productSubClassification"`
	ExpirationDate           string `json:"expirationDate"`
	DateOfRegistration       string `json:"dateOfRegistration,omitempty"`
	CompanyID                string `json:"companyId"`
	ProductImageFront        string `json:"productImageFront,omitempty"`
	ProductImageBack         string `json:"productImageBack,omitempty"`
}

// CompanyDraft is the pending form of a Company.
type CompanyDraft struct {
	Lifecycle
	Name          string `json:"name"`
	Address       string `json:"address"`
	LicenseNumber string `json:"licenseNumber"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Website       string `json:"website,omitempty"`
	BusinessType  string `json:"businessType,omitempty"`
	Description   string `json:"description,omitempty"`
}

func ParseLifecycle(raw []byte) (Lifecycle, error) {
	var l Lifecycle
	if len(raw) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(raw, &l); err != nil {
		return l, errors.Wrap(err, "decode lifecycle flags")
	}
	return l, nil
}

func ParseProductDraft(raw []byte) (*ProductDraft, error) {
	var d ProductDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errors.Wrap(err, "decode product draft")
	}
	return &d, nil
}

func ParseCompanyDraft(raw []byte) (*CompanyDraft, error) {
	var d CompanyDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errors.Wrap(err, "decode company draft")
	}
	return &d, nil
}

// MissingFields lists required product fields that are blank.
func (d *ProductDraft) MissingFields() []string {
	var out []string
	for name, v := range map[string]string{
		"LTONumber":                d.LTONumber,
		"CFPRNumber":               d.CFPRNumber,
		"lotNumber":                d.LotNumber,
		"brandName":                d.BrandName,
		"productName":              d.ProductName,
		"productClassification":    d.ProductClassification,
		"productSubClassification": d.ProductSubClassification,
		"expirationDate":           d.ExpirationDate,
	} {
		if strings.TrimSpace(v) == "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (d *CompanyDraft) MissingFields() []string {
	var out []string
	if strings.TrimSpace(d.Name) == "" {
		out = append(out, "name")
	}
	if strings.TrimSpace(d.Address) == "" {
		out = append(out, "address")
	}
	if strings.TrimSpace(d.LicenseNumber) == "" {
		out = append(out, "licenseNumber")
	}
	return out
}

// ParseDate accepts YYYY-MM-DD or RFC3339.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}
