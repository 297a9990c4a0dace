package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opendreams/opendreams/internal/apperror"
)

func TestRateLimiter_Window(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	ok, retry := l.Allow("1.2.3.4")
	if ok {
		t.Fatal("third request should be rejected")
	}
	if retry != time.Minute {
		t.Errorf("retry = %v, want 1m", retry)
	}

	if ok, _ := l.Allow("5.6.7.8"); !ok {
		t.Error("other clients have their own window")
	}

	now = now.Add(time.Minute + time.Second)
	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Error("window should have reset")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	h := NewRateLimiter(1, time.Minute).Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/session/sign-in", nil)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("first request: %v", err)
	}

	rec = httptest.NewRecorder()
	err := h(e.NewContext(req, rec))
	if !apperror.HasType(err, apperror.TypeRateLimited) {
		t.Fatalf("second request err = %v, want rate limited", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	e := echo.New()
	h := Recovery()(func(c echo.Context) error { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := h(e.NewContext(req, httptest.NewRecorder()))

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != http.StatusInternalServerError {
		t.Errorf("err = %v, want internal AppError", err)
	}
}

func TestRequestLogger_RequestID(t *testing.T) {
	e := echo.New()
	h := RequestLogger()(func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("request_id").(string))
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Header().Get(HeaderRequestID) != "abc-123" || rec.Body.String() != "abc-123" {
		t.Errorf("request id not propagated: header %q body %q", rec.Header().Get(HeaderRequestID), rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec))
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("expected generated request id")
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	h := SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))

	for _, name := range []string{"Content-Security-Policy", "X-Content-Type-Options", "X-Frame-Options"} {
		if rec.Header().Get(name) == "" {
			t.Errorf("missing %s", name)
		}
	}
}

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		path, accept string
		want         bool
	}{
		{"/api/session", "", true},
		{"/", "text/html,application/xhtml+xml", false},
		{"/", "application/json", true},
		{"/", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.accept != "" {
			req.Header.Set("Accept", tt.accept)
		}
		if got := WantsJSON(req); got != tt.want {
			t.Errorf("WantsJSON(%s, %q) = %v, want %v", tt.path, tt.accept, got, tt.want)
		}
	}
}
