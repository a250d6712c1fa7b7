// Package main is the entry point for the blog API server.
//
// STARTUP ORDER:
//  1. Read configuration (defaults, then the YAML file, then BLOG_* env vars)
//  2. Build the logger from log.level and log.format
//  3. Make sure the database directory exists
//  4. Pick a mail sender: SMTP when email.host is set, the log otherwise
//  5. Wire the server and run it until SIGINT or SIGTERM
//
// All actual logic lives in internal/. main only decides what gets plugged in.
//
// Usage:
//
//	BLOG_JWT_SECRET=$(openssl rand -hex 32) go run ./cmd/server -config config.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sakif/blog-backend/internal/config"
	"github.com/sakif/blog-backend/internal/mail"
	"github.com/sakif/blog-backend/internal/mail/smtp"
	"github.com/sakif/blog-backend/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $"+config.PathEnv+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.Path != ":memory:" {
		dir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	mailer, err := newMailer(cfg.Email, logger)
	if err != nil {
		logger.Error("failed to configure mail", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Run returns once the context is cancelled and shutdown has finished.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, mailer, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.Log) *slog.Logger {
	level, _ := cfg.SlogLevel() // already validated
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newMailer(cfg config.Email, logger *slog.Logger) (mail.Sender, error) {
	if cfg.Host == "" {
		logger.Warn("email.host not set, password reset mails are written to the log")
		return mail.NewLogSender(logger), nil
	}
	sender, err := smtp.New(smtp.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
