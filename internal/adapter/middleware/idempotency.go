package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestAt      = "X-Request-At"
	HeaderReplay         = "Idempotent-Replay"

	// How long we hold the "in-progress" marker; a vote may wait on ledger
	// confirmation, so this exceeds the default confirmation timeout.
	provisionalLockTTL = 2 * time.Minute
	// Allowed client/server clock skew for X-Request-At (in UTC).
	maxClockSkew = 10 * time.Minute
)

type respRecorder struct {
	w    http.ResponseWriter
	buf  *bytes.Buffer
	code int
}

func (r *respRecorder) Header() http.Header { return r.w.Header() }
func (r *respRecorder) Write(b []byte) (int, error) {
	if r.buf != nil {
		r.buf.Write(b)
	}
	return r.w.Write(b)
}
func (r *respRecorder) WriteHeader(statusCode int) { r.code = statusCode; r.w.WriteHeader(statusCode) }

// Idempotency makes mutating requests safe to retry: a repeated
// Idempotency-Key from the same caller replays the first response instead of
// casting a second vote. Must run after Authenticate.
// X-Request-At must be epoch (s or ms) or RFC3339 with a zone.
func Idempotency(rdb *redis.Client, ttl time.Duration) echo.MiddlewareFunc {
	store := replayStore{rdb: rdb, ttl: ttl}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			reqID := strings.TrimSpace(req.Header.Get(HeaderIdempotencyKey))
			if reqID == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing " + HeaderIdempotencyKey})
			}
			if !validReqID(reqID) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid " + HeaderIdempotencyKey + " format"})
			}
			reqAt, err := parseRequestAt(req.Header.Get(HeaderRequestAt))
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
			if skew := time.Since(reqAt); skew > maxClockSkew || skew < -maxClockSkew {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": HeaderRequestAt + " too skewed"})
			}
			caller, ok := PrincipalFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
			}

			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(req.Body)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			key := buildKey(req.Method, c.Path(), caller.ID, reqID)
			entry := replay{
				BodyHash:  bodyHash(body),
				Key:       reqID,
				RequestAt: reqAt.UnixMilli(),
				StoredAt:  time.Now().UTC(),
			}
			logger := log.WithFields(log.Fields{"idempotency_key": reqID, "caller": caller.ID})

			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			claimed, err := store.claim(ctx, key, entry)
			if err != nil {
				logger.WithError(err).Error("idempotency store unavailable")
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "idempotency store unavailable"})
			}
			if !claimed {
				prev, err := store.load(ctx, key)
				if err != nil {
					logger.WithError(err).Warn("idempotency entry unreadable")
				}
				switch {
				case prev.BodyHash != "" && prev.BodyHash != entry.BodyHash:
					return c.JSON(http.StatusConflict, map[string]string{"error": HeaderIdempotencyKey + " reused with different body"})
				case prev.replayable():
					c.Response().Header().Set(HeaderReplay, "true")
					return c.Blob(prev.Status, echo.MIMEApplicationJSON, prev.Body)
				default:
					return c.JSON(http.StatusConflict, map[string]string{"error": "request is already in progress"})
				}
			}

			rec := &respRecorder{w: c.Response().Writer, buf: &bytes.Buffer{}, code: http.StatusOK}
			c.Response().Writer = rec
			if err := next(c); err != nil {
				c.Error(err)
			}

			entry.Status, entry.Body, entry.StoredAt = rec.code, rec.buf.Bytes(), time.Now().UTC()
			if err := store.finish(context.WithoutCancel(req.Context()), key, entry); err != nil {
				logger.WithError(err).Warn("idempotency result not stored")
			}
			return nil
		}
	}
}
