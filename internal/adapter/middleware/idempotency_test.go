package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	testKey    = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testCaller = "admin-1"
	votePath   = "/approvals/:id/approve"
)

// setupEcho mounts Authenticate then Idempotency in front of handler.
func setupEcho(rdb *redis.Client, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	g := e.Group("", Authenticate(testSecret), Idempotency(rdb, ttl))
	g.POST(votePath, handler)
	g.GET(votePath, handler)
	return e
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	return "Bearer " + token(t, testSecret, sub, "ADMIN", time.Hour)
}

func validHeaders(t *testing.T) map[string]string {
	return map[string]string{
		echo.HeaderAuthorization: bearer(t, testCaller),
		HeaderIdempotencyKey:     testKey,
		HeaderRequestAt:          time.Now().UTC().Format(time.RFC3339),
	}
}

func doReq(t *testing.T, e *echo.Echo, method string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/approvals/ap-1/approve", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// countingHandler returns 200 with the call number so replays are visible.
func countingHandler(n *atomic.Int32) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]int32{"call": n.Add(1)})
	}
}

func Test_BypassOnGET_NoHeadersRequired(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, 30*time.Second, countingHandler(&n))

	rec := doReq(t, e, http.MethodGet, nil, map[string]string{echo.HeaderAuthorization: bearer(t, testCaller)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func Test_ValidationFailures(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, 30*time.Second, countingHandler(&n))

	tests := []struct {
		name   string
		mutate func(h map[string]string)
	}{
		{"missing key", func(h map[string]string) { delete(h, HeaderIdempotencyKey) }},
		{"invalid key", func(h map[string]string) { h[HeaderIdempotencyKey] = "NOT-VALID" }},
		{"invalid request-at", func(h map[string]string) { h[HeaderRequestAt] = "not-a-time" }},
		{"missing request-at", func(h map[string]string) { delete(h, HeaderRequestAt) }},
		{"skewed past", func(h map[string]string) {
			h[HeaderRequestAt] = time.Now().UTC().Add(-maxClockSkew - time.Minute).Format(time.RFC3339)
		}},
		{"skewed future", func(h map[string]string) {
			h[HeaderRequestAt] = time.Now().UTC().Add(maxClockSkew + time.Minute).Format(time.RFC3339)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHeaders(t)
			tt.mutate(h)
			rec := doReq(t, e, http.MethodPost, bytes.NewReader([]byte(`{"x":1}`)), h)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", rec.Code)
			}
		})
	}
	if n.Load() != 0 {
		t.Fatalf("handler ran %d times on rejected requests", n.Load())
	}
}

func Test_RequiresPrincipal(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	e := echo.New()
	e.POST(votePath, func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Idempotency(rdb, time.Minute))

	h := validHeaders(t)
	delete(h, echo.HeaderAuthorization)
	rec := doReq(t, e, http.MethodPost, bytes.NewReader([]byte(`{}`)), h)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func Test_HappyPath_Then_Replay(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, 2*time.Minute, countingHandler(&n))

	h := validHeaders(t)
	rec1 := doReq(t, e, http.MethodPost, bytes.NewReader([]byte(`{"signature":"0x01"}`)), h)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request => want 200, got %d, body: %s", rec1.Code, rec1.Body.String())
	}

	rec2 := doReq(t, e, http.MethodPost, bytes.NewReader([]byte(`{"signature":"0x01"}`)), h)
	if rec2.Code != http.StatusOK {
		t.Fatalf("replay => want 200, got %d, body: %s", rec2.Code, rec2.Body.String())
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", rec1.Body.String(), rec2.Body.String())
	}
	if rec2.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("replay not flagged")
	}
	if n.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", n.Load())
	}

	// the same key from another caller is a different request
	h[echo.HeaderAuthorization] = bearer(t, "admin-2")
	rec3 := doReq(t, e, http.MethodPost, bytes.NewReader([]byte(`{"signature":"0x01"}`)), h)
	if rec3.Code != http.StatusOK || n.Load() != 2 {
		t.Fatalf("other caller => code %d, calls %d", rec3.Code, n.Load())
	}
}

func Test_Conflict_When_InProgress(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, 2*time.Minute, countingHandler(&n))

	body := []byte(`{"x":1}`)
	key := buildKey(http.MethodPost, votePath, testCaller, testKey)
	store := replayStore{rdb: rdb, ttl: time.Minute}
	entry := replay{BodyHash: bodyHash(body), Key: testKey, RequestAt: time.Now().UnixMilli()}
	if ok, err := store.claim(context.Background(), key, entry); err != nil || !ok {
		t.Fatalf("seed provisional failed, ok=%v err=%v", ok, err)
	}

	rec := doReq(t, e, http.MethodPost, bytes.NewReader(body), validHeaders(t))
	if rec.Code != http.StatusConflict {
		t.Fatalf("in-progress => want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func Test_Conflict_When_SameKey_DifferentBody(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, 2*time.Minute, countingHandler(&n))

	key := buildKey(http.MethodPost, votePath, testCaller, testKey)
	store := replayStore{rdb: rdb, ttl: 5 * time.Minute}
	final := replay{
		Status:   http.StatusOK,
		Body:     []byte(`{"call":1}`),
		BodyHash: bodyHash([]byte(`{"x":1}`)),
		Key:      testKey,
	}
	if err := store.finish(context.Background(), key, final); err != nil {
		t.Fatalf("seed final failed: %v", err)
	}

	rec := doReq(t, e, http.MethodPost, bytes.NewReader([]byte(`{"x":2}`)), validHeaders(t))
	if rec.Code != http.StatusConflict {
		t.Fatalf("different body same key => want 409, got %d", rec.Code)
	}
}

func Test_StoreUnavailable_Returns503(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	var n atomic.Int32
	e := setupEcho(rdb, time.Minute, countingHandler(&n))

	rec := doReq(t, e, http.MethodPost, bytes.NewReader([]byte(`{}`)), validHeaders(t))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store unavailable => want 503, got %d", rec.Code)
	}
}
