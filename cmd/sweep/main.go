package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/talentloop/talentloop/internal/config"
	"github.com/talentloop/talentloop/internal/db"
	"github.com/talentloop/talentloop/internal/notify"
	"github.com/talentloop/talentloop/internal/observ"
	"github.com/talentloop/talentloop/internal/sweep"
)

// One-shot sweep for operators: runs a single pass against the database and
// prints the summary as JSON. Useful after an incident to catch up on missed
// notifications without waiting for the gateway's ticker.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	var sender notify.Sender
	if cfg.SESFromEmail != "" {
		sender, err = notify.NewSESSender(ctx, notify.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES email sender: %w", err)
		}
	} else {
		logger.Warn("SES_FROM_EMAIL not set, emails will be logged instead of sent")
		sender = notify.NewLogSender(logger)
	}

	renderer := notify.NewRenderer(cfg.ConfirmBaseURL)
	dispatcher := notify.NewDispatcher(repo, sender, renderer, notify.Config{
		SendTimeout: time.Duration(cfg.SendTimeout) * time.Second,
	}, logger)

	sweeper := sweep.New(repo, dispatcher, sweep.Config{
		GracePeriod: time.Duration(cfg.GracePeriodHours) * time.Hour,
	}, logger)

	summary := sweeper.RunOnce(ctx)

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	fmt.Println(string(out))

	return nil
}
