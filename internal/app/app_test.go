package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opendreams/opendreams/internal/apperror"
	"github.com/opendreams/opendreams/internal/config"
	"github.com/opendreams/opendreams/internal/identity"
	"github.com/opendreams/opendreams/internal/storage"
)

// --- Mock Gateway ---

// mockGateway implements identity.Gateway for testing.
type mockGateway struct {
	getSessionFn func(ctx context.Context) (*identity.AuthData, error)
}

func (m *mockGateway) SignInEmail(ctx context.Context, creds identity.EmailCredentials) (*identity.AuthData, error) {
	return nil, apperror.NewUnauthorized("Invalid email or password")
}

func (m *mockGateway) SignUpEmail(ctx context.Context, req identity.SignUpRequest) (*identity.AuthData, error) {
	return nil, apperror.NewConflict("User already exists")
}

func (m *mockGateway) SignInSocial(ctx context.Context, provider, callbackURL string) (*identity.AuthData, error) {
	return nil, apperror.NewUnauthorized("Google sign in did not complete")
}

func (m *mockGateway) SignOut(ctx context.Context) error {
	return nil
}

func (m *mockGateway) GetSession(ctx context.Context) (*identity.AuthData, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx)
	}
	return nil, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", config.BackendMemory)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func newTestApp(t *testing.T, gw *mockGateway) *App {
	t.Helper()
	cfg := testConfig(t)
	st, err := NewStorage(cfg, storage.NewMemoryBackend())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return New(cfg, st.Snapshots, gw)
}

func get(a *App, path, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHome_GatedUntilInitialized(t *testing.T) {
	a := newTestApp(t, &mockGateway{
		getSessionFn: func(ctx context.Context) (*identity.AuthData, error) {
			return &identity.AuthData{
				User:    &identity.User{ID: "u1", Name: "Ada <Lovelace>", Email: "ada@example.com"},
				Session: &identity.Session{ID: "s1", Token: "tok", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
			}, nil
		},
	})

	if rec := get(a, "/", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before init: status %d, want 503", rec.Code)
	}

	if err := a.Gate.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec := get(a, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("after init: status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Welcome back, Ada &lt;Lovelace&gt;") {
		t.Errorf("home page does not greet the escaped user: %q", body)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected security headers")
	}
}

func TestHome_SignedOut(t *testing.T) {
	a := newTestApp(t, &mockGateway{})
	if err := a.Gate.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec := get(a, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Sign in or create an account") {
		t.Errorf("signed-out home: %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t, &mockGateway{})

	rec := get(a, "/healthz", "")
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["status"] != "ok" || body["ready"] != false {
		t.Errorf("healthz before init = %v", body)
	}

	a.Gate.Run(context.Background())
	rec = get(a, "/healthz", "")
	body = nil
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["ready"] != true {
		t.Errorf("healthz after init = %v", body)
	}
}

func TestMetrics(t *testing.T) {
	a := newTestApp(t, &mockGateway{})
	a.Gate.Run(context.Background())

	rec := get(a, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `opendreams_session_operations_total{operation="initialize",outcome="success"} 1`) {
		t.Errorf("metrics missing initialize counter:\n%s", rec.Body.String())
	}
}

func TestErrorHandler(t *testing.T) {
	a := newTestApp(t, &mockGateway{})

	rec := get(a, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("API 404 is not JSON: %v", err)
	}
	if body["error"] != "Not Found" {
		t.Errorf("body = %v", body)
	}

	rec = get(a, "/nope", "text/html")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "<h1>404</h1>") {
		t.Errorf("browser 404: %d %q", rec.Code, rec.Body.String())
	}
}

func TestErrorHandler_RateLimited(t *testing.T) {
	a := newTestApp(t, &mockGateway{})
	a.Gate.Run(context.Background())

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/session/sign-up", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec = httptest.NewRecorder()
		a.Echo.ServeHTTP(rec, req)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After")
	}
}

// --- Storage wiring ---

func TestOpenStorage(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", config.BackendFile)
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("STORAGE_SECRET_KEY", "test-secret")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	s, err := OpenStorage(cfg)
	if err != nil {
		t.Fatalf("OpenStorage: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Jar.SetToken(ctx, "tok-1"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	// Reopening with the same secret reads the sealed token back.
	again, err := OpenStorage(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if tok, _ := again.Jar.Token(ctx); tok != "tok-1" {
		t.Errorf("token = %q, want tok-1", tok)
	}
}

func TestNew_PersistsThroughStorageSnapshots(t *testing.T) {
	t.Setenv("STORAGE_SECRET_KEY", "test-secret")
	cfg := testConfig(t)
	st, err := NewStorage(cfg, storage.NewMemoryBackend())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	a := New(cfg, st.Snapshots, &mockGateway{
		getSessionFn: func(ctx context.Context) (*identity.AuthData, error) {
			return &identity.AuthData{
				User:    &identity.User{ID: "u1", Email: "ada@example.com"},
				Session: &identity.Session{ID: "s1", Token: "tok", UserID: "u1"},
			}, nil
		},
	})
	if err := a.Gate.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap, err := st.Snapshots.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !snap.Complete() || snap.User.ID != "u1" {
		t.Errorf("snapshot = %+v, want u1 pair", snap)
	}
}

func TestOpenStorage_Unknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "floppy"
	if _, err := OpenStorage(cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewGateway_UsesJar(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`null`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Identity.BaseURL = srv.URL

	s, err := NewStorage(cfg, storage.NewMemoryBackend())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	s.Jar.SetToken(context.Background(), "persisted")

	gw := NewGateway(cfg, s.Jar, nil)
	if _, err := gw.GetSession(context.Background()); err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if auth != "Bearer persisted" {
		t.Errorf("Authorization = %q", auth)
	}
}
