package handler

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/harune/notify/internal/domain"
)

const contextKeyPrincipal = "principal"

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)

			return err
		}
	}
}

// JWTAuth validates the Bearer token and injects the authenticated principal
// into echo context. The token is issued by the auth collaborator; this
// service only verifies the signature and trusts the claims.
func JWTAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return domain.ErrUnauthorized
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return domain.ErrUnauthorized
			}

			principal, err := parsePrincipal(parts[1], secret)
			if err != nil {
				return domain.ErrUnauthorized
			}

			c.Set(contextKeyPrincipal, principal)
			return next(c)
		}
	}
}

// RequireAdmin rejects non-admin principals before the handler runs.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := GetPrincipal(c)
			if !ok {
				return domain.ErrUnauthorized
			}
			if !p.IsAdmin() {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}

// GetPrincipal extracts the authenticated principal from echo context.
func GetPrincipal(c echo.Context) (domain.Principal, bool) {
	p, ok := c.Get(contextKeyPrincipal).(domain.Principal)
	return p, ok
}

// parsePrincipal validates an HS256 access token and extracts {id, role}.
func parsePrincipal(tokenString string, secret []byte) (domain.Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return domain.Principal{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.Principal{}, domain.ErrUnauthorized
	}

	userID, err := subjectID(claims["sub"])
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}

	role, _ := claims["role"].(string)
	if !domain.Role(role).Valid() {
		return domain.Principal{}, domain.ErrUnauthorized
	}

	return domain.Principal{ID: userID, Role: domain.Role(role)}, nil
}

// subjectID extracts the user id from the sub claim. RFC 7519 defines sub as
// a StringOrURI, so the issuer may send either "7" or 7.
func subjectID(claim any) (int64, error) {
	switch v := claim.(type) {
	case string:
		return strconv.ParseInt(v, 10, 64)
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("unsupported sub claim type %T", claim)
}
