// cmd/libradesk/serve.go
package main

import (
	"context"
	"fmt"
	"libradesk/internal/circulation"
	"libradesk/internal/events"
	"libradesk/internal/server"
	"libradesk/internal/stats"
	"libradesk/internal/telemetry"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	log.Info("Starting libradesk",
		zap.String("driver", cfg.Database.Driver),
		zap.String("port", cfg.HTTP.Port),
	)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Error("Tracer shutdown error", zap.Error(err))
		}
	}()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := circulation.NewService(store, policyFrom(cfg), log)

	if cfg.RabbitMQURL != "" {
		publisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
		if err != nil {
			log.Warn("RabbitMQ unavailable, circulation events will not be published", zap.Error(err))
		} else {
			defer publisher.Close()
			engine.Subscribe(publisher.Publish)
		}
	}

	handler := server.NewRouter(server.Config{
		Records:            store,
		Engine:             engine,
		Stats:              stats.NewService(store, log),
		Health:             store.Ping,
		Log:                log,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve HTTP: %w", err)
	case <-quit:
	}

	log.Info("Shutting down server...")

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
	return nil
}
