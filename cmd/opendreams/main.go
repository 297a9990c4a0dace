// Package main is the entry point for the OpenDreams session tool. It can
// run the local session server or perform a single auth operation from the
// terminal against the same persisted session.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opendreams/opendreams/internal/app"
	"github.com/opendreams/opendreams/internal/config"
	"github.com/opendreams/opendreams/internal/gate"
	"github.com/opendreams/opendreams/internal/identity"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opendreams",
		Short: "OpenDreams session manager",
		Long: `Keeps the OpenDreams sign-in on this device.

Run "opendreams serve" for the local session server, or use the
status, login, signup, google and logout commands directly.
Configuration is read from the environment (IDENTITY_URL,
STORAGE_BACKEND, ...).`,
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		statusCmd(),
		loginCmd(),
		signupCmd(),
		googleCmd(),
		logoutCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation. LOG_LEVEL overrides the default level.
func setupLogging(cfg *config.Config, w io.Writer) {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			fmt.Fprintf(os.Stderr, "ignoring LOG_LEVEL %q: %v\n", cfg.LogLevel, err)
		}
	}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler))
}

// localSession is everything a one-shot command needs: a ready gate over the
// persisted session.
type localSession struct {
	gate    *gate.Gate
	storage *app.Storage
}

// openSession loads config, opens storage and restores the session. Logs go
// to stderr so command output stays clean on stdout.
func openSession(ctx context.Context) (*localSession, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg, os.Stderr)

	st, err := app.OpenStorage(cfg)
	if err != nil {
		return nil, err
	}

	redirector := &identity.LoopbackRedirector{
		Open: func(authURL string) error {
			fmt.Fprintf(os.Stderr, "Open this address in your browser to continue:\n\n  %s\n\n", authURL)
			return nil
		},
	}
	gw := app.NewGateway(cfg, st.Jar, redirector)

	g := gate.New(app.NewStore(cfg, st.Snapshots, gw, nil))
	if err := g.Run(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("restoring session: %w", err)
	}
	return &localSession{gate: g, storage: st}, nil
}

func (s *localSession) Close() {
	if err := s.storage.Close(); err != nil {
		slog.Warn("closing storage", slog.Any("error", err))
	}
}

// describe renders a view for humans.
func describe(v gate.View) string {
	if !v.IsAuthenticated {
		return "Not signed in."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Signed in as %s", v.User.Email)
	if v.User.Name != "" {
		fmt.Fprintf(&b, " (%s)", v.User.Name)
	}
	fmt.Fprintf(&b, "\nSession expires %s", v.Session.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return b.String()
}
