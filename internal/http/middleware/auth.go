// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file verifies the identity established by the external authentication
// service. That service signs a short-lived JWT carrying {userId, role}; this
// middleware only checks the signature and expiry and never issues tokens
// itself. A connection without a verifiable identity is rejected before any
// chat event — including the websocket upgrade — is honored.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims is the claim set the external auth service signs.
type IdentityClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// SignIdentity mints a token for the given identity. Exposed for tests and
// for local development tooling; production tokens come from the auth
// service, which shares the signing secret.
func SignIdentity(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	claims := &IdentityClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Auth returns a middleware that authenticates every request in its group.
//
// The token is taken from the Authorization header ("Bearer <token>") or,
// for websocket clients that cannot set headers, from the "token" query
// parameter. On success the verified user id and role are stored in the Gin
// context under "userID" / "userRole"; on failure the request is aborted
// with 401 and a stable error envelope.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			abortUnauthenticated(c, "missing credentials")
			return
		}

		token, err := jwt.ParseWithClaims(raw, &IdentityClaims{}, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			abortUnauthenticated(c, "invalid or expired credentials")
			return
		}
		claims, ok := token.Claims.(*IdentityClaims)
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			abortUnauthenticated(c, "invalid or expired credentials")
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		c.Next()
	}
}

// bearerToken extracts the raw token from the Authorization header, falling
// back to the "token" query parameter used by websocket dials.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") || strings.HasPrefix(h, "bearer ") {
			return strings.TrimSpace(h[len("Bearer "):])
		}
	}
	return strings.TrimSpace(c.Query("token"))
}

func abortUnauthenticated(c *gin.Context, msg string) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": asString(rid),
		"code":       "unauthenticated",
		"message":    msg,
	})
}
