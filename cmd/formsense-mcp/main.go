package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/usestring/formsense/pkg/mcpsrv"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Configuration is loaded from FORMSENSE_CONFIG and environment variables:
	// - LOG_LEVEL: debug, info, warn, error (default: info)
	// - LOG_FILE: path to log file (default: stderr only)
	// - FORMSENSE_CUSTOM_HOST: inference server checked before localhost
	// - FORMSENSE_HTTP_ADDR: serve streamable HTTP instead of stdio
	// - etc. (see internal/config for all options)
	server, err := mcpsrv.NewServer()
	if err != nil {
		slog.Error("failed to create MCP server", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	if addr := server.Deps().Config.HTTPAddr; addr != "" {
		err = server.RunHTTP(ctx, addr)
	} else {
		slog.Info("starting formsense MCP server on stdio")
		err = server.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
