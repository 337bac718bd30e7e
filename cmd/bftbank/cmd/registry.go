package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/bftbank/core/internal/logger"
	"github.com/bftbank/core/registry"
)

func registryCmd() *cobra.Command {
	var addr string
	var logFormat string
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Starts the registry service",
		Long:  "Runs the centralised peer directory and reputation store's HTTP API (spec §4.3).",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(nil, slog.LevelInfo, logFormat == "json")
			srv := registry.NewServer(log)

			httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

			errch := make(chan error, 1)
			go func() {
				log.InfoContext(cmd.Context(), "registry listening", slog.String("addr", addr))
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errch <- err
					return
				}
				errch <- nil
			}()

			select {
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					log.WarnContext(cmd.Context(), "registry shutdown error", logger.Error(err))
				}
				return <-errch
			case err := <-errch:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "address to listen on")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log output format: text|json")
	return cmd
}
