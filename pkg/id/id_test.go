package id

import (
	"encoding/hex"
	"regexp"
	"strings"
	"testing"
)

var reHex32 = regexp.MustCompile(`^[a-f0-9]{32}$`)

func TestNewID32_FormatAndDecode(t *testing.T) {
	got := NewID32()

	if len(got) != 32 {
		t.Fatalf("length = %d, want 32 (got=%q)", len(got), got)
	}
	if !reHex32.MatchString(got) {
		t.Fatalf("not 32-char lowercase hex: %q", got)
	}
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("hex.DecodeString error: %v", err)
	}
	if len(b) != 16 {
		t.Fatalf("decoded bytes = %d, want 16", len(b))
	}
}

func TestNewID32_Uniqueness(t *testing.T) {
	const n = 200
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := NewID32()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id after %d iterations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewUUID_IsRecognised(t *testing.T) {
	u := NewUUID()
	if !IsUUID(u) {
		t.Fatalf("NewUUID produced %q which IsUUID rejects", u)
	}
	if u != strings.ToLower(u) {
		t.Fatalf("expected lowercase uuid, got %q", u)
	}
}

func TestIsUUID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0b6f3a4e-8d1c-4c55-9a2e-3f0e8a7b6c5d", true},
		{"0B6F3A4E-8D1C-4C55-9A2E-3F0E8A7B6C5D", true},
		{"LTO-12345-1700000000", false},
		{"0b6f3a4e8d1c4c559a2e3f0e8a7b6c5d", false},
		{"{0b6f3a4e-8d1c-4c55-9a2e-3f0e8a7b6c5d}", false},
		{"urn:uuid:0b6f3a4e-8d1c-4c55-9a2e-3f0e8a7b6c5d", false},
		{"0b6f3a4e-8d1c-4c55-9a2e-3f0e8a7b6c5z", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsUUID(tt.in); got != tt.want {
			t.Errorf("IsUUID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
