package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/routes"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local portal server",
	Long: `Serve the portal route surface on SERVER_HOST:SERVER_PORT. Pages are
gated by role; the session is checked on start and every --check-interval
so near-expiry tokens are refreshed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(deps *app.Dependencies) error {
			return serve(cmd.Context(), deps)
		})
	},
}

func serve(ctx context.Context, deps *app.Dependencies) error {
	cfg := deps.Config.Server
	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go watchSession(ctx, deps, checkInterval)

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("portal listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.TLS.Enabled))
		if cfg.TLS.Enabled {
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	deps.Logger.Info("shutting down portal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// watchSession runs CheckAuth now and then every interval until ctx ends.
// A zero interval checks once.
func watchSession(ctx context.Context, deps *app.Dependencies, interval time.Duration) {
	check := func() {
		if err := deps.Manager.CheckAuth(ctx); err != nil {
			deps.Logger.Warn("session check failed", zap.Error(err))
		}
	}
	check()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func init() {
	serveCmd.Flags().DurationVar(&checkInterval, "check-interval", 30*time.Second, "How often to re-check the session (0 checks once)")
	rootCmd.AddCommand(serveCmd)
}
