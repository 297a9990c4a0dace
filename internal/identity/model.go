// Package identity is the client side of the OpenDreams identity service.
// It defines the records the service issues (User, Session) and the Gateway
// contract the session store talks to, plus an HTTP implementation of it.
//
// The service itself (password hashing, provider negotiation, token
// issuance) lives elsewhere; this package only speaks its wire format.
package identity

import (
	"time"
)

// ProviderGoogle is the only social provider the app offers.
const ProviderGoogle = "google"

// User is the identity record issued by the service. Optional profile fields
// are pointers so an absent value survives a JSON round trip as absent.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	Image         *string   `json:"image,omitempty"`
	FirstName     *string   `json:"firstName,omitempty"`
	LastName      *string   `json:"lastName,omitempty"`
	Batch         *string   `json:"batch,omitempty"`
	AdmissionCode *string   `json:"admissionCode,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// Session is the credential record proving an authenticated identity. The
// client treats it as opaque; Token is presented back to the service.
type Session struct {
	ID        string    `json:"id,omitempty"`
	Token     string    `json:"token"`
	UserID    string    `json:"userId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	IPAddress *string   `json:"ipAddress,omitempty"`
	UserAgent *string   `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// AuthData is the {user, session} pair returned by successful operations.
type AuthData struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

// Complete reports whether both halves of the pair are present.
func (d *AuthData) Complete() bool {
	return d != nil && d.User != nil && d.Session != nil
}

// --- Request DTOs (sent to the service) ---

// EmailCredentials is the body of an email/password sign-in.
type EmailCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpRequest is the body of an email/password registration.
type SignUpRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	AdmissionCode string `json:"admissionCode,omitempty"`
}

// socialRequest starts a social sign-in handshake.
type socialRequest struct {
	Provider    string `json:"provider"`
	CallbackURL string `json:"callbackURL"`
}

// socialResponse tells the client where to send the user next.
type socialResponse struct {
	URL      string `json:"url"`
	Redirect bool   `json:"redirect"`
}

// errorBody is the shape of every non-2xx response.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
