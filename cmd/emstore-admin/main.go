// Command emstore-admin runs maintenance tasks against the attachment store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"alcyxob/emstore/internal/app"
	"alcyxob/emstore/internal/config"
	"alcyxob/emstore/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(loadApp)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadApp builds the application from the same configuration the server reads.
func loadApp(ctx context.Context, configDir string) (*app.App, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}
