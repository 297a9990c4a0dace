// Package gate holds the rest of the app back until the session store has
// finished restoring state, then exposes the store's surface to it.
package gate

import (
	"context"
	"sync"

	"github.com/opendreams/opendreams/internal/identity"
	"github.com/opendreams/opendreams/internal/session"
)

// Store is the part of session.Store the gate drives.
type Store interface {
	Initialize(ctx context.Context)
	SignIn(ctx context.Context, email, password string) session.Result
	SignUp(ctx context.Context, in session.SignUpInput) session.Result
	SignInWithGoogle(ctx context.Context) session.Result
	SignOut(ctx context.Context)
	State() session.State
	Subscribe(fn func(session.State)) func()
}

// View is what the gated app sees of the session.
type View struct {
	User            *identity.User    `json:"user"`
	Session         *identity.Session `json:"session"`
	IsLoading       bool              `json:"isLoading"`
	IsInitialized   bool              `json:"isInitialized"`
	IsAuthenticated bool              `json:"isAuthenticated"`
}

func viewOf(st session.State) View {
	return View{
		User:            st.User,
		Session:         st.Session,
		IsLoading:       st.IsLoading,
		IsInitialized:   st.IsInitialized,
		IsAuthenticated: st.IsAuthenticated(),
	}
}

func ready(st session.State) bool {
	return st.IsInitialized && !st.IsLoading
}

// Gate runs initialization once and reports when the app may render.
type Gate struct {
	store Store
	once  sync.Once
}

// New creates a gate over store. Nothing runs until Start or Run.
func New(store Store) *Gate {
	return &Gate{store: store}
}

// Start kicks off initialization in the background. Calls after the first
// are no-ops.
func (g *Gate) Start(ctx context.Context) {
	g.once.Do(func() {
		go g.store.Initialize(ctx)
	})
}

// Run initializes (if nobody has yet) and blocks until the gate is ready or
// ctx is done.
func (g *Gate) Run(ctx context.Context) error {
	g.once.Do(func() {
		g.store.Initialize(ctx)
	})
	return g.Wait(ctx)
}

// Ready reports whether the store is initialized and idle.
func (g *Gate) Ready() bool {
	return ready(g.store.State())
}

// Wait blocks until Ready or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	unsubscribe := g.store.Subscribe(func(session.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		if g.Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// View returns the current session view.
func (g *Gate) View() View {
	return viewOf(g.store.State())
}

// SignIn delegates to the store.
func (g *Gate) SignIn(ctx context.Context, email, password string) session.Result {
	return g.store.SignIn(ctx, email, password)
}

// SignUp delegates to the store.
func (g *Gate) SignUp(ctx context.Context, in session.SignUpInput) session.Result {
	return g.store.SignUp(ctx, in)
}

// SignInWithGoogle delegates to the store.
func (g *Gate) SignInWithGoogle(ctx context.Context) session.Result {
	return g.store.SignInWithGoogle(ctx)
}

// SignOut delegates to the store.
func (g *Gate) SignOut(ctx context.Context) {
	g.store.SignOut(ctx)
}

// subscribe forwards every state change as a View.
func (g *Gate) subscribe(fn func(View)) func() {
	return g.store.Subscribe(func(st session.State) { fn(viewOf(st)) })
}
