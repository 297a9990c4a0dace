// Package app is the application bootstrap and dependency injection root.
// It builds the session store over the chosen storage and identity client,
// puts the gate in front of the UI, and owns the Echo server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/opendreams/opendreams/internal/apperror"
	"github.com/opendreams/opendreams/internal/config"
	"github.com/opendreams/opendreams/internal/gate"
	"github.com/opendreams/opendreams/internal/identity"
	"github.com/opendreams/opendreams/internal/middleware"
	"github.com/opendreams/opendreams/internal/session"
	"github.com/opendreams/opendreams/internal/storage"
	"github.com/opendreams/opendreams/internal/templates/pages"
)

// App holds the session store, its gate, and the Echo HTTP server.
// Created once at startup in main.go.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// Store owns the session state.
	Store *session.Store

	// Gate holds the UI back until the store is initialized.
	Gate *gate.Gate

	// Registry collects the metrics served on /metrics.
	Registry *prometheus.Registry

	// Echo is the HTTP server instance.
	Echo *echo.Echo
}

// NewStore builds a session store persisting to snapshots and recording
// metrics on reg (nil for none).
func NewStore(cfg *config.Config, snapshots *storage.SnapshotStore, gw identity.Gateway, reg prometheus.Registerer) *session.Store {
	opts := []session.Option{session.WithCallbackURL(cfg.Identity.CallbackURL)}
	if reg != nil {
		opts = append(opts, session.WithMetrics(session.NewMetrics(reg)))
	}

	return session.New(gw, snapshots, opts...)
}

// New creates the App and configures the Echo server with global
// middleware, error handling, and routes.
func New(cfg *config.Config, snapshots *storage.SnapshotStore, gw identity.Gateway) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := NewStore(cfg, snapshots, gw, reg)

	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// The server is only reached from this device; never trust forwarding headers.
	e.IPExtractor = echo.ExtractIPDirect()

	app := &App{
		Config:   cfg,
		Store:    store,
		Gate:     gate.New(store),
		Registry: reg,
		Echo:     e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler
	app.RegisterRoutes()

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: the request logger is outermost so it also logs the 500
// that recovery turns a panic into.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.SecurityHeaders())
}

// errorHandler maps AppErrors to HTTP responses: JSON for API clients, an
// error page for browsers.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		message = appErr.Message

		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		// Echo's built-in HTTP errors (404 from the router, bind errors).
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			} else {
				message = defaultErrorMessage(code)
			}
		} else {
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	if middleware.WantsJSON(c.Request()) {
		c.JSON(code, map[string]string{
			"error":   http.StatusText(code),
			"message": message,
		})
		return
	}

	middleware.Render(c, code, pages.ErrorPage(code, message))
}

// defaultErrorMessage returns a user-friendly message for common HTTP status
// codes when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}

// Start restores the session in the background and begins listening for
// HTTP requests on the configured port. Only loopback is bound.
func (a *App) Start() error {
	a.Gate.Start(context.Background())

	addr := fmt.Sprintf("127.0.0.1:%d", a.Config.Port)
	slog.Info("starting OpenDreams session server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}
