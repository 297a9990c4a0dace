package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// tokenKeySuffix is appended to the snapshot key to form the jar's key.
const tokenKeySuffix = ".token"

// TokenJar persists the identity client's bearer token next to the auth
// snapshot. It implements identity.TokenJar.
type TokenJar struct {
	backend Backend
	key     string
	sealer  *Sealer
}

// NewTokenJar creates a jar stored under snapshotKey + ".token". A nil
// sealer stores the token as-is.
func NewTokenJar(backend Backend, snapshotKey string, sealer *Sealer) *TokenJar {
	return &TokenJar{backend: backend, key: snapshotKey + tokenKeySuffix, sealer: sealer}
}

// Token returns the stored token, or "" when none is stored or the stored
// bytes can't be opened.
func (j *TokenJar) Token(ctx context.Context) (string, error) {
	data, err := j.backend.Get(ctx, j.key)
	if err != nil {
		return "", fmt.Errorf("loading token: %w", err)
	}
	if data == nil {
		return "", nil
	}

	plain, err := j.sealer.open(data)
	if err != nil {
		slog.Warn("discarding unreadable session token", slog.Any("error", err))
		return "", nil
	}
	return string(plain), nil
}

// SetToken stores token. An empty token clears the jar.
func (j *TokenJar) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return j.Clear(ctx)
	}

	data, err := j.sealer.seal([]byte(token))
	if err != nil {
		return fmt.Errorf("sealing token: %w", err)
	}
	if err := j.backend.Set(ctx, j.key, data); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// Clear removes the stored token.
func (j *TokenJar) Clear(ctx context.Context) error {
	if err := j.backend.Delete(ctx, j.key); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}
