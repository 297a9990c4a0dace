// data.go provides typed context helpers for passing layout data from
// middleware to the page components. Only simple types are stored so the
// layouts package never imports the session types.
//
// Data flow: Gate view → LayoutInjector → Go Context → page component
package layouts

import (
	"context"
	"time"
)

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey string

const (
	keyIsAuthenticated  ctxKey = "layout_is_authenticated"
	keyUserName         ctxKey = "layout_user_name"
	keyUserEmail        ctxKey = "layout_user_email"
	keySessionExpiresAt ctxKey = "layout_session_expires_at"
)

// --- Setters (called by the layout injector in app/routes.go) ---

// SetIsAuthenticated marks whether a user is signed in on this device.
func SetIsAuthenticated(ctx context.Context, authed bool) context.Context {
	return context.WithValue(ctx, keyIsAuthenticated, authed)
}

// SetUserName stores the signed-in user's display name in context.
func SetUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyUserName, name)
}

// SetUserEmail stores the signed-in user's email in context.
func SetUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, keyUserEmail, email)
}

// SetSessionExpiresAt stores when the current session expires.
func SetSessionExpiresAt(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keySessionExpiresAt, t)
}

// --- Getters (called by page components) ---

// IsAuthenticated returns true if a user is signed in.
func IsAuthenticated(ctx context.Context) bool {
	authed, _ := ctx.Value(keyIsAuthenticated).(bool)
	return authed
}

// GetUserName returns the signed-in user's display name, or "".
func GetUserName(ctx context.Context) string {
	name, _ := ctx.Value(keyUserName).(string)
	return name
}

// GetUserEmail returns the signed-in user's email, or "".
func GetUserEmail(ctx context.Context) string {
	email, _ := ctx.Value(keyUserEmail).(string)
	return email
}

// GetSessionExpiresAt returns the session expiry, or the zero time.
func GetSessionExpiresAt(ctx context.Context) time.Time {
	t, _ := ctx.Value(keySessionExpiresAt).(time.Time)
	return t
}
