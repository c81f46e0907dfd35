package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Context keys set by Middleware.
const (
	ContextUserID    = "userID"
	ContextUserEmail = "userEmail"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// Middleware enforces bearer token auth and stores the user identity in the gin context.
func Middleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			respondUnauthorized(c, "auth verifier not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondUnauthorized(c, "missing authorization header")
			return
		}
		token, ok := extractBearerToken(authHeader)
		if !ok {
			respondUnauthorized(c, "invalid authorization format")
			return
		}

		claims, errVerify := verifier.Verify(token)
		if errVerify != nil {
			log.WithError(errVerify).WithField("path", c.Request.URL.Path).Debug("auth: token rejected")
			respondUnauthorized(c, "invalid token")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// UserEmail returns the authenticated user's email claim.
func UserEmail(c *gin.Context) string {
	return c.GetString(ContextUserEmail)
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}
