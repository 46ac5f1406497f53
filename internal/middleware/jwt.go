package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/workerlly/internal/logger"
)

// Claims is the token payload issued by the identity service.
type Claims struct {
	UserID string   `json:"user_id"`
	Mobile string   `json:"mobile,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Sign issues an HS256 token for claims, valid for ttl.
func Sign(secret string, c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// Parse validates a token string and returns its claims.
func Parse(secret, token string) (*Claims, error) {
	c := &Claims{}
	_, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if c.UserID == "" {
		return nil, errors.New("token has no user_id")
	}
	return c, nil
}

func bearer(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	// Browsers cannot set headers on a websocket handshake.
	return c.QueryParam("token")
}

// JWTMiddleware authenticates the request and stores user_id, mobile and roles on the
// echo context.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := bearer(c)
			if tok == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
			}
			claims, err := Parse(secret, tok)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set("user_id", claims.UserID)
			c.Set("mobile", claims.Mobile)
			c.Set("roles", claims.Roles)

			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithUserID(req.Context(), claims.UserID)))
			return next(c)
		}
	}
}
