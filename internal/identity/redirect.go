package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opendreams/opendreams/internal/apperror"
	"github.com/opendreams/opendreams/internal/sanitize"
)

// defaultRedirectTimeout is how long the user gets to finish the provider flow.
const defaultRedirectTimeout = 5 * time.Minute

// callbackPage is shown in the browser once the callback has been received.
const callbackPage = `<!doctype html><html><body><p>You can return to OpenDreams now.</p></body></html>`

// LoopbackRedirector completes social sign-in through a short-lived local
// listener bound to the callback URL's host. The service redirects the
// browser to the callback with a "token" (or "error") query parameter.
type LoopbackRedirector struct {
	// Open presents the authorization URL to the user. Default: log it.
	Open func(authURL string) error

	// Timeout bounds the wait for the callback. Default: 5 minutes.
	Timeout time.Duration
}

type callbackResult struct {
	token  string
	reason string
}

// Redirect implements Redirector.
func (r *LoopbackRedirector) Redirect(ctx context.Context, authURL, callbackURL string) (string, error) {
	cb, err := url.Parse(callbackURL)
	if err != nil || cb.Host == "" {
		return "", apperror.NewInternal(fmt.Errorf("callback URL %q is not a loopback address", callbackURL))
	}

	ln, err := net.Listen("tcp", cb.Host)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("listening for callback: %w", err))
	}

	results := make(chan callbackResult, 1)

	path := cb.Path
	if path == "" {
		path = "/"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET(path, func(c echo.Context) error {
		res := callbackResult{token: c.QueryParam("token"), reason: sanitize.Text(c.QueryParam("error"))}
		select {
		case results <- res:
		default:
		}
		return c.HTML(http.StatusOK, callbackPage)
	})

	srv := &http.Server{Handler: e, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("callback listener stopped", slog.Any("error", err))
		}
	}()
	defer srv.Close()

	open := r.Open
	if open == nil {
		open = func(u string) error {
			slog.Info("open this URL to continue signing in", slog.String("url", u))
			return nil
		}
	}
	if err := open(authURL); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("opening authorization URL: %w", err))
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRedirectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case res := <-results:
		if res.reason != "" {
			return "", apperror.NewUnauthorized("Sign in was not completed: " + res.reason)
		}
		if res.token == "" {
			return "", apperror.NewUnauthorized("Sign in was not completed")
		}
		return res.token, nil
	case <-ctx.Done():
		return "", apperror.NewTimeout(fmt.Errorf("waiting for sign-in callback: %w", ctx.Err()))
	}
}
