package recovery

import (
	"errors"
	"time"

	"rcv-cert-ledger/internal/domain/ledger"
)

var (
	ErrScanInProgress = errors.New("a recovery scan is already running")
	// ErrInsufficientRecoveryData marks certificates that need an operator,
	// e.g. legacy products without an entity snapshot.
	ErrInsufficientRecoveryData = errors.New("certificate lacks data for automatic reconstruction")
	ErrNotCertificate           = errors.New("transaction does not carry a certificate")
	ErrEntityTypeMismatch       = errors.New("entity type does not match the anchored certificate")
	ErrAlreadyRecovered         = errors.New("an entity already references this transaction")
	ErrOriginNotConfigured      = errors.New("ledger origin identity not configured")
)

type Outcome string

const (
	OutcomeExisting   Outcome = "existing"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeBackfilled Outcome = "backfilled"
	OutcomeCreated    Outcome = "created"
	OutcomeManual     Outcome = "manual"
	OutcomeFailed     Outcome = "failed"
)

// Certificate is one decoded ledger certificate with its transaction context.
type Certificate struct {
	TxRef       string         `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
	BlockTime   time.Time      `json:"block_timestamp"`
	ExplorerURL string         `json:"explorer_url"`
	Payload     ledger.Payload `json:"certificate"`
}

// AutoCreated names a dependency synthesized during reconstruction.
type AutoCreated struct {
	Kind string `json:"kind"` // company, brand, classification, sub_classification
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Item struct {
	Certificate Certificate   `json:"certificate"`
	Outcome     Outcome       `json:"outcome"`
	EntityID    string        `json:"entity_id,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	AutoCreated []AutoCreated `json:"auto_created,omitempty"`
}

type Report struct {
	Origin              string        `json:"origin"`
	TransactionsScanned int           `json:"transactions_scanned"`
	CertificatesFound   int           `json:"certificates_found"`
	SkippedExisting     int           `json:"skipped_existing"`
	Backfilled          int           `json:"backfilled"`
	CompaniesCreated    int           `json:"companies_created"`
	ProductsCreated     int           `json:"products_created"`
	ManualRecovery      []Item        `json:"manual_recovery"`
	AutoCreated         []AutoCreated `json:"auto_created"`
	Items               []Item        `json:"items"`
	Errors              []string      `json:"errors"`
	Interrupted         bool          `json:"interrupted"`
	StartedAt           time.Time     `json:"started_at"`
	FinishedAt          time.Time     `json:"finished_at"`
}

// Success is true when no candidate failed and the scan ran to the end.
func (r *Report) Success() bool { return len(r.Errors) == 0 && !r.Interrupted }

func (r *Report) add(it Item) {
	r.Items = append(r.Items, it)
	switch it.Outcome {
	case OutcomeExisting, OutcomeSuperseded:
		r.SkippedExisting++
	case OutcomeBackfilled:
		r.Backfilled++
	case OutcomeCreated:
		if it.Certificate.Payload.EntityType == "product" {
			r.ProductsCreated++
		} else {
			r.CompaniesCreated++
		}
		r.AutoCreated = append(r.AutoCreated, it.AutoCreated...)
	case OutcomeManual:
		r.ManualRecovery = append(r.ManualRecovery, it)
	case OutcomeFailed:
		r.Errors = append(r.Errors, it.Certificate.Payload.CertificateID+": "+it.Reason)
	}
}

type Status struct {
	Origin         string    `json:"origin"`
	OnLedger       int       `json:"certificates_on_ledger"`
	PresentLocally int64     `json:"present_locally"`
	Missing        int64     `json:"missing"`
	CheckedAt      time.Time `json:"checked_at"`
}

type Verification struct {
	Exists      bool         `json:"exists"`
	Certificate *Certificate `json:"certificate,omitempty"`
	ExplorerURL string       `json:"explorer_url"`
}

type PDFVerification struct {
	TxRef        string `json:"tx_hash"`
	Matches      bool   `json:"matches"`
	AnchoredHash string `json:"anchored_hash"`
}

// Overrides are operator-supplied values that win over ledger data in Rebuild.
type Overrides struct {
	EntityType string `json:"entityType"`

	Name          string `json:"name"`
	Address       string `json:"address"`
	LicenseNumber string `json:"licenseNumber"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Website       string `json:"website"`
	BusinessType  string `json:"businessType"`
	Description   string `json:"description"`

	LTONumber                string `json:"LTONumber"`
	CFPRNumber               string `json:"CFPRNumber"`
	LotNumber                string `json:"lotNumber"`
	BrandName                string `json:"brandName"`
	ProductName              string `json:"productName"`
	ProductClassification    string `json:"productClassification"`
	ProductSubClassification string `json:"productSubClassification"`
	ExpirationDate           string `json:"expirationDate"`
	CompanyID                string `json:"companyId"`
}

type RebuildResult struct {
	EntityID    string        `json:"entity_id"`
	EntityType  string        `json:"entity_type"`
	Name        string        `json:"name"`
	TxRef       string        `json:"tx_hash"`
	ExplorerURL string        `json:"explorer_url"`
	AutoCreated []AutoCreated `json:"auto_created"`
}
