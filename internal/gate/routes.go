package gate

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opendreams/opendreams/internal/middleware"
)

// RegisterRoutes sets up the session API on the given Echo instance. These
// routes are not behind the gate middleware: clients poll GET /api/session
// or follow the events stream to learn when the gate opens.
//
// Sign-in style POSTs are rate-limited per IP: 10 per minute for email
// sign-in and Google, 5 for sign-up.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	api := e.Group("/api/session")

	api.GET("", h.GetSession)
	api.GET("/events", h.Events)

	api.POST("/sign-in", h.SignIn, middleware.RateLimit(10, time.Minute))
	api.POST("/sign-in/google", h.SignInWithGoogle, middleware.RateLimit(10, time.Minute))
	api.POST("/sign-up", h.SignUp, middleware.RateLimit(5, time.Minute))
	api.POST("/sign-out", h.SignOut)
}
