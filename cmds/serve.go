package cmds

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"livetv-guide/config"
	"livetv-guide/handlers"
	"livetv-guide/logger"
	"livetv-guide/tuner"
	"livetv-guide/updater"
)

const shutdownTimeout = 10 * time.Second

var listenAddr string

func NewServeCLI() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the cache fresh and serve the guide over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := config.GetConfig()
			if listenAddr != "" {
				conf.ListenAddr = listenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := tuner.Open(ctx, conf, logger.Default)
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.Start(ctx); err != nil {
				// feed problems can be corrected through the settings endpoint
				if updater.FieldMessages(err) == nil {
					return err
				}
				logger.Default.Warnf("Serving without a complete cache: %v", err)
			}

			gin.SetMode(gin.ReleaseMode)
			server := &http.Server{
				Addr:    conf.ListenAddr,
				Handler: handlers.NewRouter(handlers.NewAPI(engine, logger.Default)),
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Default.Logf("Server is running on %s...", conf.ListenAddr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					logger.Default.Errorf("HTTP server error: %v", err)
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Default.Log("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "HTTP listen address, e.g `:8080`")

	return serveCmd
}
