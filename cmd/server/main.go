package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stream-service/internal/config"
	"stream-service/internal/factory"
	"stream-service/internal/handler"
	"stream-service/internal/util"
)

func main() {
	cfg := config.LoadConfig()
	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	util.Info("Starting stream-service",
		zap.String("environment", cfg.Environment),
		zap.String("address", cfg.GetServerAddress()))

	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", zap.Error(err))
	}
	defer f.Close()

	streamHandler := handler.NewStreamHandler(f.StreamingService(), logger)
	licenseHandler := handler.NewLicenseHandler(f.LicenseService(), logger)
	healthHandler := handler.NewHealthHandler(f)
	router := handler.NewRouter(streamHandler, licenseHandler, healthHandler, logger)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// The reaper finalizes idle sessions for as long as the server runs.
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go f.StreamingService().RunReaper(reaperCtx)

	serverErrors := make(chan error, 1)
	go func() {
		if cfg.Server.EnableTLS {
			util.Info("Serving HTTPS", zap.String("cert_file", cfg.Server.CertFile))
			serverErrors <- server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
			return
		}
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			util.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		util.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			util.Error("Graceful shutdown failed, forcing close", zap.Error(err))
			_ = server.Close()
		}
	}

	stopReaper()
	util.Info("stream-service stopped")
}
