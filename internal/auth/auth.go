// Package auth resolves login tokens to users and checks role policies.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	v1 "github.com/aevon-lab/eventbridge/internal/api/v1"
	"github.com/aevon-lab/eventbridge/internal/core/storage"
)

// ErrInvalidToken is returned when a token does not resolve to a user.
var ErrInvalidToken = errors.New("Invalid token")

// UserStore looks users up by the hash of one of their login tokens.
// Implementations return storage.ErrNotFound when no user holds the token.
type UserStore interface {
	FindByHashedToken(ctx context.Context, hashedToken string) (*v1.User, error)
}

// HashToken returns the stored form of a login token: base64(sha256(token)).
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Authenticate resolves token to its user. A token no user holds yields ErrInvalidToken;
// any other lookup failure is returned wrapped.
func Authenticate(ctx context.Context, users UserStore, token string) (*v1.User, error) {
	u, err := users.FindByHashedToken(ctx, HashToken(token))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && u == nil) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return u, nil
}
