// Command mcp-server serves the kidney compatibility scorer and clinician match records as
// MCP tools over stdio. It needs no external database; records are kept in SQLite under
// the data directory.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kidney-match-server/internal/config"
	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/kidneymatch"
	"github.com/kidney-match-server/internal/mcp"
)

func main() {
	cfg := config.LoadLiteConfig()

	// stdout carries the protocol; logs go to stderr
	logger, err := config.NewLogger(cfg.Logging())
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		logger.WithError(err).Fatal("Failed to create data directory")
	}

	store, err := kidneymatch.NewSQLiteStore(cfg.MatchDBPath())
	if err != nil {
		logger.WithError(err).Fatal("Failed to open match store")
	}

	server, err := mcp.NewServer(
		domain.MCPConfig{ServerName: cfg.ServerName, ServerVersion: cfg.ServerVersion},
		mcp.WithLogger(logger),
		mcp.WithMatchStore(store),
	)
	if err != nil {
		store.Close()
		logger.WithError(err).Fatal("Failed to create MCP server")
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithField("data_dir", cfg.DataDir).Info("Kidney match MCP server ready")

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}

	logger.Info("Kidney match MCP server stopped")
}
