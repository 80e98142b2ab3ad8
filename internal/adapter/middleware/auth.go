package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const principalKey = "rcv.principal"

// Principal is the authenticated caller.
type Principal struct {
	ID   string
	Role string
}

func (p Principal) IsAdmin() bool { return strings.EqualFold(p.Role, "ADMIN") }

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate requires an HS256 bearer token whose subject is the caller id.
func Authenticate(secret []byte) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			}
			var claims Claims
			if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
				return secret, nil
			}); err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}
			if claims.Subject == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "token has no subject"})
			}
			c.Set(principalKey, Principal{ID: claims.Subject, Role: claims.Role})
			return next(c)
		}
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := PrincipalFrom(c)
		if !ok || !p.IsAdmin() {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "admin role required"})
		}
		return next(c)
	}
}

func PrincipalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(principalKey).(Principal)
	return p, ok
}

// WithPrincipal stores p on c; handler tests use it in place of a token.
func WithPrincipal(c echo.Context, p Principal) { c.Set(principalKey, p) }

// SignToken issues an HS256 token; rcvctl and tests use it.
func SignToken(secret []byte, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
