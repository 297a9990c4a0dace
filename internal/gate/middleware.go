package gate

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opendreams/opendreams/internal/middleware"
	"github.com/opendreams/opendreams/internal/templates/pages"
)

// Middleware serves a placeholder until the gate is ready. Once ready the
// next handler always runs; whether anyone is signed in is the handler's
// business.
func (g *Gate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			st := g.store.State()
			if ready(st) {
				return next(c)
			}

			c.Response().Header().Set("Retry-After", "1")
			if middleware.WantsJSON(c.Request()) {
				return c.JSON(http.StatusServiceUnavailable, map[string]any{
					"status":        "initializing",
					"isLoading":     st.IsLoading,
					"isInitialized": st.IsInitialized,
				})
			}
			return middleware.Render(c, http.StatusServiceUnavailable, pages.Loading())
		}
	}
}
