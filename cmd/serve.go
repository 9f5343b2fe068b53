package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/api"
	"github.com/sells-group/menu-cli/internal/discovery"
	"github.com/sells-group/menu-cli/internal/monitoring"
	"github.com/sells-group/menu-cli/pkg/google"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for triggering extraction and reading menus",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := []api.Option{api.WithCORSOrigins(cfg.Server.CORSOrigins)}
		if cfg.Google.Key != "" {
			places := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
			opts = append(opts, api.WithScanner(discovery.NewScanner(env.Store, places, env.Controller, cfg.Google)))
			zap.L().Info("google places scan enabled")
		} else {
			zap.L().Debug("MENU_GOOGLE_KEY not set, POST /scan disabled")
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(env.Store,
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		handler := api.NewServer(env.Store, env.Controller, opts...).Handler()
		return startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves handler until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
