package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/Anosmish/pdf2word/internal/config"
	httpserver "github.com/Anosmish/pdf2word/internal/http"
)

func main() {
	_ = godotenv.Load()

	logger := newLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	srv, err := httpserver.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server stopped with error", "error", err)
	}
}

func newLogger() *log.Logger {
	if os.Getenv("DEBUG") == "1" {
		logger := log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			Prefix:          "pdf2word",
		})
		logger.SetLevel(log.DebugLevel)
		return logger
	}

	logger := log.New(os.Stderr)
	logger.SetLevel(log.InfoLevel)
	return logger
}
