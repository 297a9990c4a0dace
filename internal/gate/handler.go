package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"

	"github.com/opendreams/opendreams/internal/apperror"
	"github.com/opendreams/opendreams/internal/session"
)

// Handler is the HTTP form of the gate's surface. Handlers are thin: they
// bind the request, call the gate, and write the result. Operation outcomes
// travel in the Result body, not the status code.
type Handler struct {
	gate *Gate
}

// NewHandler creates a handler over g.
func NewHandler(g *Gate) *Handler {
	return &Handler{gate: g}
}

type signInRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// GetSession returns the current view (GET /api/session).
func (h *Handler) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gate.View())
}

// SignIn handles POST /api/session/sign-in.
func (h *Handler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	return c.JSON(http.StatusOK, h.gate.SignIn(c.Request().Context(), req.Email, req.Password))
}

// SignUp handles POST /api/session/sign-up.
func (h *Handler) SignUp(c echo.Context) error {
	var req session.SignUpInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	return c.JSON(http.StatusOK, h.gate.SignUp(c.Request().Context(), req))
}

// SignInWithGoogle handles POST /api/session/sign-in/google. The response is
// written once the browser handshake has finished.
func (h *Handler) SignInWithGoogle(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gate.SignInWithGoogle(c.Request().Context()))
}

// SignOut handles POST /api/session/sign-out and returns the resulting view.
func (h *Handler) SignOut(c echo.Context) error {
	h.gate.SignOut(c.Request().Context())
	return c.JSON(http.StatusOK, h.gate.View())
}

// Events streams the view over a websocket (GET /api/session/events): the
// current view on connect, then one message per change. Slow readers only
// get the latest view.
func (h *Handler) Events(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		// Accept has already written the failure response.
		slog.Debug("session events upgrade failed", slog.Any("error", err))
		return nil
	}
	defer conn.CloseNow()

	// Nothing is read from the client; CloseRead handles control frames
	// and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(c.Request().Context())

	updates := make(chan View, 1)
	unsubscribe := h.gate.subscribe(func(v View) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- v:
		default:
		}
	})
	defer unsubscribe()

	if err := wsjson.Write(ctx, conn, h.gate.View()); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		case v := <-updates:
			if err := wsjson.Write(ctx, conn, v); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("session events write failed", slog.Any("error", err))
				}
				return nil
			}
		}
	}
}
