package app

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opendreams/opendreams/internal/gate"
	"github.com/opendreams/opendreams/internal/middleware"
	"github.com/opendreams/opendreams/internal/templates/layouts"
	"github.com/opendreams/opendreams/internal/templates/pages"
)

// RegisterRoutes sets up all application routes. The session API and the
// operational endpoints are always reachable; UI pages sit behind the gate.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Bridge the gate's view into the page context.
	middleware.LayoutInjector = a.injectLayout

	// Health check: reports whether the gate has opened yet.
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status": "ok",
			"ready":  a.Gate.Ready(),
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	gate.RegisterRoutes(e, gate.NewHandler(a.Gate))

	// --- Gated UI ---
	// Route-level so unknown paths still 404 instead of hitting the gate.
	gated := a.Gate.Middleware()

	e.GET("/", func(c echo.Context) error {
		return middleware.Render(c, http.StatusOK, pages.Home())
	}, gated)
}

// injectLayout copies the signed-in user into ctx for page components.
func (a *App) injectLayout(_ echo.Context, ctx context.Context) context.Context {
	v := a.Gate.View()
	ctx = layouts.SetIsAuthenticated(ctx, v.IsAuthenticated)
	if !v.IsAuthenticated {
		return ctx
	}
	ctx = layouts.SetUserName(ctx, v.User.Name)
	ctx = layouts.SetUserEmail(ctx, v.User.Email)
	return layouts.SetSessionExpiresAt(ctx, v.Session.ExpiresAt)
}
