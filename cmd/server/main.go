package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/app"
	"alcyxob/emstore/internal/config"
	"alcyxob/emstore/internal/logger"
)

// @title Email Campaign Attachment API
// @version 1.0
// @description API for managing email campaigns, inbound submissions and their attachments.
// @contact.name API Support
// @contact.email support@example.com
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("could not build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("Starting emstore server...",
		zap.String("database", cfg.Database.Driver),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("url_strategy", cfg.Storage.URLStrategy))

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Components ---
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	application, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing metadata store...")
		if err := application.Close(); err != nil {
			log.Error("Failed to close metadata store", zap.Error(err))
		}
	}()

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: application.Router(),
		// Uploads of up to upload.max_bytes must fit in the read window.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exiting.")
	return nil
}
