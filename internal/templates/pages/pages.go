// Package pages holds the full-page components served by the local session
// server. Layout data (who is signed in) is read from the context populated
// by middleware.LayoutInjector.
package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/opendreams/opendreams/internal/templates/layouts"
)

// Home greets the signed-in user or shows the onboarding prompt.
func Home() templ.Component {
	return layouts.Base("OpenDreams", layouts.Options{}, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if !layouts.IsAuthenticated(ctx) {
			_, err := io.WriteString(w, "<h1>Welcome to OpenDreams</h1>\n<p>Sign in or create an account to continue.</p>\n")
			return err
		}

		name := layouts.GetUserName(ctx)
		if name == "" {
			name = layouts.GetUserEmail(ctx)
		}
		if _, err := fmt.Fprintf(w, "<h1>Welcome back, %s</h1>\n<p>Signed in as %s</p>\n",
			templ.EscapeString(name), templ.EscapeString(layouts.GetUserEmail(ctx))); err != nil {
			return err
		}

		if exp := layouts.GetSessionExpiresAt(ctx); !exp.IsZero() {
			_, err := fmt.Fprintf(w, "<p>Session valid until %s</p>\n", exp.Local().Format("2006-01-02 15:04"))
			return err
		}
		return nil
	}))
}

// Loading is shown while the session is being restored. It reloads itself
// every second until the real page is served.
func Loading() templ.Component {
	return layouts.Base("OpenDreams", layouts.Options{RefreshSeconds: 1}, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div class="spinner" role="status" aria-label="Loading"></div>`+"\n")
		return err
	}))
}

// ErrorPage renders an HTTP error for browsers.
func ErrorPage(code int, message string) templ.Component {
	return layouts.Base(http.StatusText(code), layouts.Options{}, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, "<h1>%d</h1>\n<p>%s</p>\n", code, templ.EscapeString(message))
		return err
	}))
}
