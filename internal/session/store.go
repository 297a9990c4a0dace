package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opendreams/opendreams/internal/apperror"
	"github.com/opendreams/opendreams/internal/identity"
	"github.com/opendreams/opendreams/internal/storage"
)

// SnapshotPersister saves and restores the signed-in pair between runs.
// Load returns an empty snapshot, not an error, for missing or unreadable
// data; errors are reserved for the backend itself failing.
type SnapshotPersister interface {
	Save(ctx context.Context, snap storage.Snapshot) error
	Load(ctx context.Context) (storage.Snapshot, error)
}

// Store is the single owner of the device's session state.
//
// Auth operations are serialized by an operation lock. Sign-in style calls
// refuse to queue behind a running operation and report busy instead;
// Initialize and SignOut wait their turn. State reads never wait on the
// network.
type Store struct {
	gateway     identity.Gateway
	snapshots   SnapshotPersister
	metrics     Recorder
	callbackURL string

	op sync.Mutex

	mu        sync.RWMutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics records operation outcomes on r.
func WithMetrics(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithCallbackURL sets the redirect target handed to the identity service
// during social sign-in.
func WithCallbackURL(u string) Option {
	return func(s *Store) { s.callbackURL = u }
}

// New creates a Store in its initial state: signed out, not loading, not
// yet initialized.
func New(gw identity.Gateway, snapshots SnapshotPersister, opts ...Option) *Store {
	s := &Store{
		gateway:   gw,
		snapshots: snapshots,
		metrics:   noopRecorder{},
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether a user and session are both present.
func (s *Store) IsAuthenticated() bool {
	return s.State().IsAuthenticated()
}

// Subscribe registers fn to receive every state change. fn runs on the
// goroutine that made the change and must not block. The returned func
// removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Initialize restores the session at startup. It never fails: whatever
// goes wrong, the store ends initialized and not loading, signed in or
// signed out.
//
// A live answer from the identity service always wins. The persisted
// snapshot is only consulted when the service cannot be reached.
func (s *Store) Initialize(ctx context.Context) {
	s.op.Lock()
	defer s.op.Unlock()

	start := time.Now()
	s.setLoading(true)
	defer s.setLoading(false)

	user, sess, err := s.restore(ctx)

	s.update(func(st *State) {
		st.User, st.Session = user, sess
		st.IsInitialized = true
	})
	s.persist(ctx)

	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	s.metrics.ObserveOperation(opInitialize, outcome, time.Since(start))

	slog.Info("session initialized",
		slog.Bool("authenticated", user != nil),
		slog.Duration("duration", time.Since(start)),
	)
}

// restore decides the starting pair. err is the gateway failure, if any.
func (s *Store) restore(ctx context.Context) (user *identity.User, sess *identity.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while restoring session", slog.Any("panic", r))
			user, sess, err = nil, nil, errors.New("restore panicked")
		}
	}()

	data, err := s.gateway.GetSession(ctx)
	switch {
	case err == nil && data.Complete():
		return data.User, data.Session, nil

	case err == nil:
		return nil, nil, nil

	case apperror.IsUnreachable(err) && s.snapshots != nil:
		slog.Warn("identity service unreachable, falling back to stored session",
			slog.Any("error", err),
		)
		snap, loadErr := s.snapshots.Load(ctx)
		if loadErr != nil {
			slog.Warn("loading stored session failed", slog.Any("error", loadErr))
			return nil, nil, err
		}
		if snap.Complete() {
			return snap.User, snap.Session, err
		}
		return nil, nil, err

	default:
		slog.Warn("session check rejected", slog.Any("error", err))
		return nil, nil, err
	}
}

// SignIn authenticates with email and password.
func (s *Store) SignIn(ctx context.Context, email, password string) Result {
	return s.authenticate(ctx, opSignIn, "Sign in failed", func(ctx context.Context) (*identity.AuthData, error) {
		return s.gateway.SignInEmail(ctx, identity.EmailCredentials{
			Email:    strings.TrimSpace(email),
			Password: password,
		})
	})
}

// SignUp registers a new account and signs it in. The display name is split
// on whitespace: the first word becomes the first name, the rest the last
// name.
func (s *Store) SignUp(ctx context.Context, in SignUpInput) Result {
	first, last := splitName(in.Name)
	req := identity.SignUpRequest{
		Email:         strings.TrimSpace(in.Email),
		Password:      in.Password,
		Name:          strings.TrimSpace(in.Name),
		FirstName:     first,
		LastName:      last,
		AdmissionCode: strings.TrimSpace(in.AdmissionCode),
	}

	return s.authenticate(ctx, opSignUp, "Sign up failed", func(ctx context.Context) (*identity.AuthData, error) {
		return s.gateway.SignUpEmail(ctx, req)
	})
}

// SignInWithGoogle runs the Google redirect handshake.
func (s *Store) SignInWithGoogle(ctx context.Context) Result {
	return s.authenticate(ctx, opSignInWithGoogle, "Google sign in failed", func(ctx context.Context) (*identity.AuthData, error) {
		data, err := s.gateway.SignInSocial(ctx, identity.ProviderGoogle, s.callbackURL)
		if err == nil && !data.Complete() {
			return nil, apperror.NewUnauthorized("Google sign in did not complete")
		}
		return data, err
	})
}

// authenticate runs one sign-in style call under the busy guard and adopts
// the returned pair on success. State is left untouched on failure.
func (s *Store) authenticate(ctx context.Context, op, fallback string, call func(context.Context) (*identity.AuthData, error)) Result {
	if !s.op.TryLock() {
		s.metrics.ObserveOperation(op, outcomeRejected, 0)
		slog.Info("auth operation rejected, another is in progress", slog.String("operation", op))
		return Result{Success: false, Error: busyMessage}
	}
	defer s.op.Unlock()

	start := time.Now()
	s.setLoading(true)
	defer s.setLoading(false)

	data, err := s.guarded(ctx, call)
	if err == nil && !data.Complete() {
		err = apperror.NewInternal(errors.New("identity service returned an incomplete session"))
	}
	if err != nil {
		s.metrics.ObserveOperation(op, outcomeFailure, time.Since(start))
		slog.Info("auth operation failed",
			slog.String("operation", op),
			slog.String("type", errorType(err)),
			slog.Any("error", err),
		)
		return Result{Success: false, Error: displayMessage(err, fallback)}
	}

	s.update(func(st *State) {
		st.User, st.Session = data.User, data.Session
	})
	s.persist(ctx)

	s.metrics.ObserveOperation(op, outcomeSuccess, time.Since(start))
	slog.Info("signed in",
		slog.String("operation", op),
		slog.String("user_id", data.User.ID),
	)
	return Result{Success: true}
}

// guarded turns a panic inside call into an internal error.
func (s *Store) guarded(ctx context.Context, call func(context.Context) (*identity.AuthData, error)) (data *identity.AuthData, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in auth operation", slog.Any("panic", r))
			data, err = nil, apperror.NewInternal(errors.New("auth operation panicked"))
		}
	}()
	return call(ctx)
}

// SignOut ends the session. The local state is cleared even when the
// identity service fails or cannot be reached.
func (s *Store) SignOut(ctx context.Context) {
	s.op.Lock()
	defer s.op.Unlock()

	start := time.Now()
	s.setLoading(true)
	defer s.setLoading(false)

	outcome := outcomeSuccess
	if err := s.signOutRemote(ctx); err != nil {
		outcome = outcomeFailure
		slog.Warn("remote sign out failed, clearing local session anyway",
			slog.Any("error", err),
		)
	}

	s.update(func(st *State) {
		st.User, st.Session = nil, nil
	})
	s.persist(ctx)

	s.metrics.ObserveOperation(opSignOut, outcome, time.Since(start))
	slog.Info("signed out")
}

func (s *Store) signOutRemote(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("sign out panicked")
		}
	}()
	return s.gateway.SignOut(ctx)
}

// Reset returns the store to its initial state and persists the empty
// snapshot. It does not contact the identity service and waits for any
// running operation to finish first.
func (s *Store) Reset() {
	s.op.Lock()
	defer s.op.Unlock()

	s.update(func(st *State) {
		*st = State{}
	})
	s.persist(context.Background())
}

// setLoading flips IsLoading.
func (s *Store) setLoading(loading bool) {
	s.update(func(st *State) { st.IsLoading = loading })
}

// update applies fn to the state and notifies subscribers outside the lock.
func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state
	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	s.metrics.SetAuthenticated(snapshot.IsAuthenticated())
	for _, l := range listeners {
		l(snapshot)
	}
}

// persist writes the current pair. Failures are logged; the in-memory state
// stays authoritative. The write is not cut short by a cancelled caller.
func (s *Store) persist(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	st := s.State()
	snap := storage.Snapshot{User: st.User, Session: st.Session}
	if err := s.snapshots.Save(context.WithoutCancel(ctx), snap); err != nil {
		slog.Warn("persisting session snapshot failed", slog.Any("error", err))
	}
}

// splitName splits a display name into first and last name.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// displayMessage picks the message shown to the user: the service's own
// message when it gave one, otherwise fallback.
func displayMessage(err error, fallback string) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" && appErr.Type != apperror.TypeInternal {
		return appErr.Message
	}
	return fallback
}

func errorType(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return "unknown"
}
