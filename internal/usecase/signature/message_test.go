package signature

import (
	"testing"
	"time"
)

var fields = Fields{
	CertificateID: "CERT-001",
	EntityName:    "Acme Vitamin C",
	EntityType:    "product",
	PDFHash:       "0xabc123",
}

func TestApprovalMessage_ExactLayout(t *testing.T) {
	got := ApprovalMessage(fields, 2, 3, "2025-09-06T10:00:00.000Z")
	want := "I approve this certificate registration on RCV Blockchain\n\n" +
		"Certificate ID: CERT-001\n" +
		"Entity: Acme Vitamin C (product)\n" +
		"PDF Hash: 0xabc123\n" +
		"Approval: 2 of 3 required\n" +
		"Timestamp: 2025-09-06T10:00:00.000Z"
	if got != want {
		t.Fatalf("message mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRejectionMessage_ExactLayout(t *testing.T) {
	got := RejectionMessage(fields, "label mismatch", "2025-09-06T10:00:00.000Z")
	want := "I reject this certificate registration on RCV Blockchain\n\n" +
		"Certificate ID: CERT-001\n" +
		"Entity: Acme Vitamin C (product)\n" +
		"PDF Hash: 0xabc123\n" +
		"Reason: label mismatch\n" +
		"Timestamp: 2025-09-06T10:00:00.000Z"
	if got != want {
		t.Fatalf("message mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestApprovalMessage_SlotBinding(t *testing.T) {
	ts := "2025-09-06T10:00:00.000Z"
	if ApprovalMessage(fields, 1, 2, ts) == ApprovalMessage(fields, 2, 2, ts) {
		t.Fatal("messages for different approval slots must differ")
	}
}

func TestTimestamp_RoundTrip(t *testing.T) {
	in := time.Date(2025, 9, 6, 17, 4, 5, 123_000_000, time.FixedZone("WIB", 7*3600))
	s := FormatTimestamp(in)
	if s != "2025-09-06T10:04:05.123Z" {
		t.Fatalf("FormatTimestamp = %q", s)
	}
	back, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !back.Equal(in) {
		t.Fatalf("round trip: got %v want %v", back, in)
	}

	if _, err := ParseTimestamp("2025-09-06T17:04:05+07:00"); err != nil {
		t.Fatalf("RFC3339 with zone should parse: %v", err)
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatal("expected error for garbage timestamp")
	}
}
