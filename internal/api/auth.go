package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "trustnet-cache"

// IssueToken signs an HS256 admin token for subject
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// JWTAuthMiddleware requires a valid HS256 bearer token signed with secret
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondError(c, http.StatusUnauthorized, ErrorTypeAuthentication, "MISSING_AUTH", "Authorization header required")
			return
		}

		raw, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || raw == "" {
			respondError(c, http.StatusUnauthorized, ErrorTypeAuthentication, "INVALID_AUTH", "Bearer token required")
			return
		}

		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			respondError(c, http.StatusUnauthorized, ErrorTypeAuthentication, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}
