package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendreams/opendreams/internal/app"
	"github.com/opendreams/opendreams/internal/config"
	"github.com/opendreams/opendreams/internal/identity"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local session server",
		Long: `Serve the session API, the gated home page, /healthz and /metrics on
127.0.0.1. The session is restored in the background; pages show a
placeholder until that finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			setupLogging(cfg, os.Stdout)

			slog.Info("starting OpenDreams",
				slog.String("env", cfg.Env),
				slog.Int("port", cfg.Port),
				slog.String("identity_url", cfg.Identity.BaseURL),
			)

			st, err := app.OpenStorage(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			gw := app.NewGateway(cfg, st.Jar, &identity.LoopbackRedirector{})

			application := app.New(cfg, st.Snapshots, gw)

			// --- Graceful Shutdown ---
			go func() {
				<-cmd.Context().Done()
				slog.Info("shutting down server...")

				// Give in-flight requests 10 seconds to complete.
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := application.Shutdown(ctx); err != nil {
					slog.Error("server forced shutdown", slog.Any("error", err))
				}
			}()

			if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			slog.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Listen port (overrides PORT)")

	return cmd
}
