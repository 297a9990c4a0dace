// Package session owns the device's authentication state: who is signed in,
// whether an auth operation is in flight, and whether startup restoration
// has finished. The Store is the only thing allowed to change that state;
// everything else reads it or calls the Store's operations.
package session

import (
	"github.com/opendreams/opendreams/internal/identity"
)

// Operation names used in logs and metrics.
const (
	opInitialize       = "initialize"
	opSignIn           = "sign_in"
	opSignUp           = "sign_up"
	opSignInWithGoogle = "sign_in_google"
	opSignOut          = "sign_out"
)

// Metric outcomes.
const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeRejected = "rejected"
)

// busyMessage is returned when a sign-in style operation is attempted while
// another operation is still in flight.
const busyMessage = "Another sign-in request is already in progress"

// State is the in-memory session state. User and Session are always both
// set or both nil. Values handed out by the Store are copies; the pointed-to
// records must be treated as read-only.
type State struct {
	User          *identity.User    `json:"user"`
	Session       *identity.Session `json:"session"`
	IsLoading     bool              `json:"isLoading"`
	IsInitialized bool              `json:"isInitialized"`
}

// IsAuthenticated reports whether both user and session are present.
func (s State) IsAuthenticated() bool {
	return s.User != nil && s.Session != nil
}

// Result is what every user-initiated operation reports back to the UI.
// Error is safe to display as-is.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SignUpInput is the registration form as the UI collects it: a single
// display name and an optional admission code.
type SignUpInput struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	AdmissionCode string `json:"admissionCode,omitempty"`
}
