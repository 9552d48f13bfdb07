// Package identity derives opaque voter keys used for vote deduplication.
// Authenticated voters are keyed by their user ID; anonymous voters by a
// one-way hash of their client IP. Raw IP addresses are never persisted.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidContext is returned when neither an authenticated user nor a
// client IP is available to derive a voter key from.
var ErrInvalidContext = errors.New("invalid identity context")

const (
	userPrefix = "user:"
	anonPrefix = "anon:"
)

// Context carries the per-request inputs for voter key derivation.
// UserID is set for authenticated requests; ClientIP is the remote
// address as reported by the HTTP layer.
type Context struct {
	UserID   *uuid.UUID
	ClientIP string
}

// Resolver derives voter keys. The salt is process-wide static
// configuration; changing it invalidates dedup continuity for anonymous
// voters across a deployment change.
type Resolver struct {
	salt string
}

// NewResolver creates a resolver with the given anonymous-fingerprint salt.
func NewResolver(salt string) *Resolver {
	return &Resolver{salt: salt}
}

// Resolve returns the opaque voter key for the given context:
// "user:<id>" for authenticated voters, "anon:<hash>" otherwise.
func (r *Resolver) Resolve(ctx Context) (string, error) {
	if ctx.UserID != nil && *ctx.UserID != uuid.Nil {
		return userPrefix + ctx.UserID.String(), nil
	}
	ip := strings.TrimSpace(ctx.ClientIP)
	if ip == "" {
		return "", ErrInvalidContext
	}
	sum := sha256.Sum256([]byte(ip + r.salt))
	return anonPrefix + hex.EncodeToString(sum[:]), nil
}

// IsAnonymous reports whether a voter key was derived from an IP fingerprint.
func IsAnonymous(key string) bool {
	return strings.HasPrefix(key, anonPrefix)
}
