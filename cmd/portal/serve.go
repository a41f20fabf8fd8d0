package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vaihtoaktivaattori/portal/internal/api"
	"github.com/vaihtoaktivaattori/portal/internal/config"
	"github.com/vaihtoaktivaattori/portal/internal/services"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(config.GetJWTSecret()) == 0 {
				return errors.New("JWT_SECRET must be set to validate bearer tokens")
			}

			svc, err := services.InitializeServices(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close services")
				}
			}()

			if addr == "" {
				addr = config.GetServerAddr()
			}
			return listenAndServe(ctx, addr, api.NewRouter(svc), config.GetShutdownTimeout())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}

// listenAndServe serves until ctx is cancelled, then drains open requests for
// at most shutdownTimeout.
func listenAndServe(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
