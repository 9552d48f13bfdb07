package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pollpulse/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// TokenValidator validates a bearer token and returns the authenticated
// user's ID and email.
type TokenValidator func(token string) (userID uuid.UUID, email string, err error)

// JWT returns a middleware that requires a valid bearer token and sets
// user claims in context.
func JWT(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "missing or invalid authorization header")
			c.Abort()
			return
		}
		userID, email, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, userID)
		c.Set(ContextUserEmail, email)
		c.Next()
	}
}

// OptionalJWT returns a middleware that sets user claims when a bearer
// token is present and valid, and lets anonymous requests through.
// A malformed or expired token is still rejected rather than treated
// as anonymous, so a voter cannot downgrade their identity by accident.
func OptionalJWT(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		userID, email, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, userID)
		c.Set(ContextUserEmail, email)
		c.Next()
	}
}

// UserID returns the authenticated user ID from context, if any.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}
