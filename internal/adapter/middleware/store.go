package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// replay is what the store keeps per caller and key: a pending marker while
// the handler runs, then the rendered response.
type replay struct {
	Pending   bool      `json:"pending"`
	Status    int       `json:"status,omitempty"`
	Body      []byte    `json:"body,omitempty"`
	BodyHash  string    `json:"body_hash"`
	Key       string    `json:"key"`
	RequestAt int64     `json:"request_at_ms"`
	StoredAt  time.Time `json:"stored_at"`
}

func (r replay) replayable() bool { return !r.Pending && r.Status != 0 && len(r.Body) > 0 }

type replayStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// claim stores a pending marker unless the key is already taken.
func (s replayStore) claim(ctx context.Context, key string, r replay) (bool, error) {
	r.Pending = true
	raw, err := json.Marshal(r)
	if err != nil {
		return false, errors.Wrap(err, "encode replay")
	}
	return s.rdb.SetNX(ctx, key, raw, provisionalLockTTL).Result()
}

func (s replayStore) load(ctx context.Context, key string) (replay, error) {
	var r replay
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, errors.Wrap(err, "decode replay")
	}
	return r, nil
}

// finish replaces the pending marker with the final response for ttl.
func (s replayStore) finish(ctx context.Context, key string, r replay) error {
	r.Pending = false
	raw, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode replay")
	}
	return s.rdb.Set(ctx, key, raw, s.ttl).Err()
}
