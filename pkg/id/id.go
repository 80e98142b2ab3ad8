package id

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewID32 returns exactly 32 hex characters (no separators/prefixes).
// Used for opaque tokens such as lock owners.
func NewID32() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewUUID returns a lowercase canonical v4 UUID. Entity and approval
// identifiers use this form so they can be recognised inside certificate ids.
func NewUUID() string { return uuid.NewString() }

// IsUUID reports whether s is a canonical 8-4-4-4-12 UUID (any case).
// uuid.Parse also accepts urn/braced forms, which certificate ids never carry.
func IsUUID(s string) bool {
	if len(s) != 36 || strings.Count(s, "-") != 4 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
