package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/talentloop/talentloop/internal/api"
	"github.com/talentloop/talentloop/internal/circuitbreaker"
	"github.com/talentloop/talentloop/internal/config"
	"github.com/talentloop/talentloop/internal/db"
	"github.com/talentloop/talentloop/internal/events"
	"github.com/talentloop/talentloop/internal/metrics"
	"github.com/talentloop/talentloop/internal/notify"
	"github.com/talentloop/talentloop/internal/observ"
	"github.com/talentloop/talentloop/internal/redis"
	"github.com/talentloop/talentloop/internal/sweep"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting talentloop gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for idempotency and rate limiting
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,             // 100 requests
			Window: 1 * time.Minute, // per minute per tenant
		})
		defer redisClient.Close()
	}

	// Email sender. Without a configured from-address we log instead of
	// sending, which keeps local development working with no AWS account.
	var emailSender notify.Sender
	if cfg.SESFromEmail != "" {
		sesSender, err := notify.NewSESSender(ctx, notify.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES email sender: %w", err)
		}
		emailSender = sesSender
	} else {
		logger.Warn("SES_FROM_EMAIL not set, emails will be logged instead of sent")
		emailSender = notify.NewLogSender(logger)
	}

	// Initialize SNS sender for SMS reminders
	var smsSender notify.Sender
	if cfg.SNSRegion != "" {
		snsSender, err := notify.NewSNSSender(ctx, notify.SNSConfig{
			Region: cfg.SNSRegion,
		}, logger)
		if err != nil {
			logger.Warn("SNS sender unavailable, SMS reminders disabled",
				zap.Error(err),
			)
		} else {
			smsSender = snsSender
		}
	}

	var multiSender notify.Sender
	if smsSender != nil {
		multiSender = notify.NewMultiSender(logger, emailSender, smsSender)
	} else {
		multiSender = notify.NewMultiSender(logger, emailSender)
	}

	// Wrap outbound sends in a circuit breaker so a degraded provider does
	// not stall every sweep pass.
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name: "messaging",
	}, logger)
	protectedSender := circuitbreaker.NewProtectedSender(multiSender, breaker, logger)

	logger.Info("initialized notification senders",
		zap.Bool("email_enabled", true),
		zap.Bool("sms_enabled", smsSender != nil),
	)

	renderer := notify.NewRenderer(cfg.ConfirmBaseURL)
	dispatcher := notify.NewDispatcher(repo, protectedSender, renderer, notify.Config{
		SendTimeout: time.Duration(cfg.SendTimeout) * time.Second,
	}, logger)

	sweeper := sweep.New(repo, dispatcher, sweep.Config{
		Interval:    time.Duration(cfg.SweepIntervalMinutes) * time.Minute,
		GracePeriod: time.Duration(cfg.GracePeriodHours) * time.Hour,
	}, logger)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweeper.Start(sweepCtx)

	logger.Info("sweeper started",
		zap.Int("interval_minutes", cfg.SweepIntervalMinutes),
	)

	// Lifecycle events poke the sweeper and optionally fan out to a webhook.
	notifier := events.NewNotifier(events.Config{
		WebhookURL: cfg.EventWebhookURL,
		Timeout:    time.Duration(cfg.WebhookTimeout) * time.Second,
	}, sweeper, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, repo, dispatcher, notifier, sweeper, idempotencyService)

	r.Route("/v1", func(r chi.Router) {
		// Apply rate limiting to API routes
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.TenantKeyFunc))

		r.Post("/interviews", handler.ScheduleInterview)
		r.Get("/interviews", handler.ListInterviews)
		r.Get("/interviews/{id}", handler.GetInterview)
		r.Post("/interviews/{id}/cancel", handler.CancelInterview)
		r.Post("/interviews/{id}/reschedule", handler.RescheduleInterview)

		r.Post("/sweep", handler.TriggerSweep)

		r.Get("/tenants/{tenant_id}/settings", handler.GetTenantSettings)
		r.Put("/tenants/{tenant_id}/settings", handler.PutTenantSettings)
	})

	// Public confirmation endpoints, rate limited by client IP since
	// candidates carry no tenant header.
	r.Group(func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

		r.Get("/confirm/{token}", handler.ShowConfirmation)
		r.Post("/confirm/{token}", handler.Confirm)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
