package identity

import (
	"context"
)

// Gateway defines the contract of the identity service as seen by the
// session store. Implementations return apperror values: unreachable
// services surface as apperror.TypeUnavailable or apperror.TypeTimeout,
// refusals carry the service's own message.
type Gateway interface {
	// SignInEmail authenticates with email and password.
	SignInEmail(ctx context.Context, creds EmailCredentials) (*AuthData, error)

	// SignUpEmail registers a new account and signs it in.
	SignUpEmail(ctx context.Context, req SignUpRequest) (*AuthData, error)

	// SignInSocial runs the redirect-based handshake for provider and
	// returns the resulting pair once the callback has been received.
	SignInSocial(ctx context.Context, provider, callbackURL string) (*AuthData, error)

	// SignOut revokes the current session on the service.
	SignOut(ctx context.Context) error

	// GetSession returns the live session, or (nil, nil) when there is none.
	GetSession(ctx context.Context) (*AuthData, error)
}

// TokenJar holds the bearer token presented to the service between calls.
// Token returns "" when nothing is stored.
type TokenJar interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Redirector completes the out-of-band part of a social sign-in: it sends
// the user to authURL and waits for the service to redirect back to
// callbackURL, returning the session token delivered there.
type Redirector interface {
	Redirect(ctx context.Context, authURL, callbackURL string) (string, error)
}
