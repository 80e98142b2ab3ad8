package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func bodyHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// buildKey scopes a key to the route and the caller, so two approvers never
// see each other's replays.
func buildKey(method, path, callerID, requestID string) string {
	return strings.Join([]string{"idemp", "rcv", strings.ToLower(method), path, callerID, requestID}, ":")
}

var reHex32 = regexp.MustCompile(`^[a-f0-9]{32}$`)

// validReqID accepts a v1-v5 UUID or 32 hex characters, any case.
func validReqID(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	if reHex32.MatchString(id) {
		return true
	}
	if len(id) != 36 {
		return false
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return u.Version() >= 1 && u.Version() <= 5 && u.Variant() == uuid.RFC4122
}

// parseRequestAt reads epoch seconds, epoch milliseconds or RFC3339 with a
// zone. Timestamps without a zone are rejected.
func parseRequestAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.Errorf("missing %s", HeaderRequestAt)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errors.Errorf("%s must be epoch (s/ms) or RFC3339 with timezone", HeaderRequestAt)
	}
	return t.UTC(), nil
}
