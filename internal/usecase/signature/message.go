package signature

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimestampLayout is ISO-8601 UTC with milliseconds, e.g. 2025-01-31T09:15:00.000Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Fields are the immutable parts of an approval record bound into every message.
type Fields struct {
	CertificateID string
	EntityName    string
	EntityType    string
	PDFHash       string
}

func FormatTimestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }

// ParseTimestamp accepts the canonical layout and any RFC3339 variant.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse signing timestamp %q", s)
	}
	return t.UTC(), nil
}

// ApprovalMessage binds a signature to one approval slot (approvalNumber of
// required) and one server-issued timestamp.
func ApprovalMessage(f Fields, approvalNumber, required int, timestamp string) string {
	var b strings.Builder
	b.WriteString("I approve this certificate registration on RCV Blockchain\n\n")
	writeSubject(&b, f)
	fmt.Fprintf(&b, "Approval: %d of %d required\n", approvalNumber, required)
	fmt.Fprintf(&b, "Timestamp: %s", timestamp)
	return b.String()
}

func RejectionMessage(f Fields, reason, timestamp string) string {
	var b strings.Builder
	b.WriteString("I reject this certificate registration on RCV Blockchain\n\n")
	writeSubject(&b, f)
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	fmt.Fprintf(&b, "Timestamp: %s", timestamp)
	return b.String()
}

func writeSubject(b *strings.Builder, f Fields) {
	fmt.Fprintf(b, "Certificate ID: %s\n", f.CertificateID)
	fmt.Fprintf(b, "Entity: %s (%s)\n", f.EntityName, f.EntityType)
	fmt.Fprintf(b, "PDF Hash: %s\n", f.PDFHash)
}
