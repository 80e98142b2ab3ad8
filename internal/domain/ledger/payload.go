package ledger

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gowebpki/jcs"
	"github.com/pkg/errors"
)

const (
	PayloadType    = "RCV_CERTIFICATE"
	VersionLegacy  = "1.0"
	VersionCurrent = "2.0"
)

var ErrPayloadDecode = errors.New("transaction payload is not a certificate")

type CompanyRef struct {
	Name    string `json:"name"`
	License string `json:"license"`
}

// EntityData is the self-contained entity snapshot carried from version 2.0.
// Product fields and company fields share one flat object.
type EntityData struct {
	LTONumber         string      `json:"LTONumber,omitempty"`
	CFPRNumber        string      `json:"CFPRNumber,omitempty"`
	LotNumber         string      `json:"lotNumber,omitempty"`
	BrandName         string      `json:"brandName,omitempty"`
	ProductName       string      `json:"productName,omitempty"`
	Classification    string      `json:"classification,omitempty"`
	SubClassification string      `json:"subClassification,omitempty"`
	ExpirationDate    string      `json:"expirationDate,omitempty"`
	Company           *CompanyRef `json:"company,omitempty"`
	ProductImageFront string      `json:"productImageFront,omitempty"`
	ProductImageBack  string      `json:"productImageBack,omitempty"`

	Address       string `json:"address,omitempty"`
	LicenseNumber string `json:"licenseNumber,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	BusinessType  string `json:"businessType,omitempty"`
}

type ApproverEntry struct {
	Wallet string `json:"wallet"`
	Name   string `json:"name"`
	Date   string `json:"date"`
}

type Payload struct {
	Type          string          `json:"type"`
	Version       string          `json:"version"`
	CertificateID string          `json:"certificateId"`
	EntityType    string          `json:"entityType"`
	EntityName    string          `json:"entityName"`
	PDFHash       string          `json:"pdfHash"`
	Timestamp     string          `json:"timestamp"`
	Entity        *EntityData     `json:"entity,omitempty"`
	Approvers     []ApproverEntry `json:"approvers,omitempty"`
}

// Encode always emits the current version in canonical (RFC 8785) form so
// equal payloads anchor byte-identical data.
func Encode(p Payload) ([]byte, error) {
	p.Type = PayloadType
	p.Version = VersionCurrent
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalize payload")
	}
	return out, nil
}

// Decode accepts every version. Non-UTF-8 data, non-JSON data and JSON of
// another type all yield ErrPayloadDecode.
func Decode(data []byte) (*Payload, error) {
	if len(data) == 0 || !utf8.Valid(data) {
		return nil, ErrPayloadDecode
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrPayloadDecode
	}
	if p.Type != PayloadType {
		return nil, ErrPayloadDecode
	}
	if p.Version == "" {
		p.Version = VersionLegacy
	}
	if p.CertificateID == "" {
		p.CertificateID = "UNKNOWN"
	}
	if p.EntityType == "" {
		p.EntityType = "company"
	}
	if p.EntityName == "" {
		p.EntityName = "Unknown Entity"
	}
	if !p.HasEntitySnapshot() {
		p.Entity = nil
		p.Approvers = nil
	}
	return &p, nil
}

// DecodeHex decodes 0x-prefixed transaction input.
func DecodeHex(input string) (*Payload, error) {
	if input == "" || input == "0x" {
		return nil, ErrPayloadDecode
	}
	data, err := hexutil.Decode(input)
	if err != nil {
		return nil, ErrPayloadDecode
	}
	return Decode(data)
}

// MajorVersion returns 1 for unparseable versions.
func (p *Payload) MajorVersion() int {
	major, _, _ := strings.Cut(p.Version, ".")
	n, err := strconv.Atoi(major)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// HasEntitySnapshot is true for 2.0+ payloads that carry entity data.
func (p *Payload) HasEntitySnapshot() bool {
	return p.MajorVersion() >= 2 && p.Entity != nil
}
