// Package main is the entry point for the guestflow API server.
//
// It loads configuration, connects Postgres and Redis, wires the fulfillment
// pipeline behind the HTTP surface, and runs the two daily schedulers and the
// job worker pool in-process. Graceful shutdown is handled via OS signal
// interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guestflow/internal/api"
	"guestflow/internal/config"
	"guestflow/internal/db"
	"guestflow/internal/external"
	"guestflow/internal/fulfillment"
	"guestflow/internal/messaging"
	"guestflow/internal/queue"
	"guestflow/internal/scheduler"
	"guestflow/internal/templates"
	"guestflow/internal/types"
	"guestflow/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("guestflow API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)
	appLog := types.NewSlogLogger(logger)

	// Background context cancelled on shutdown; schedulers and the worker
	// pool derive their lifetime from it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	reservations := db.NewReservationRepository(pool)
	orgs := db.NewOrgRepository(pool)
	notifications := db.NewNotificationLogRepository(pool)
	schedulerRuns := db.NewSchedulerRunRepository(pool)

	cipher, err := templateCipher(cfg.Templates)
	if err != nil {
		return fmt.Errorf("configuring template cipher: %w", err)
	}
	store := templates.NewStore(orgs, cipher, appLog)

	payment, verifier := paymentProvider(cfg, logger)
	locks := lockProvider(cfg, logger)
	sender := messaging.NewSender(messengerProvider(cfg, logger), emailProvider(cfg, logger), store, appLog)

	orch := fulfillment.New(
		reservations, orgs, notifications,
		payment, locks, sender,
		fulfillment.Config{
			LinkExpiry:     cfg.Payment.LinkExpiry,
			CheckInBaseURL: cfg.Server.CheckInBaseURL,
		},
		appLog,
	)

	// The queue's inline mode dispatches through the worker pool, which in
	// turn consumes the queue; the closure breaks the construction cycle.
	var jobPool *worker.Pool
	handler := func(ctx context.Context, payload types.JobPayload) error {
		return jobPool.Handle(ctx, payload)
	}

	var q *queue.Queue
	if cfg.Queue.Enabled {
		rdb, err := queue.NewClient(cfg.Queue)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		q = queue.New(rdb, cfg.Queue, handler, appLog)
	} else {
		logger.Warn("queue disabled, jobs will run inline")
		q = queue.New(nil, cfg.Queue, handler, appLog)
	}
	jobPool = worker.NewPool(q, orch, cfg.Queue, appLog)

	if cfg.Queue.Enabled {
		go func() {
			if err := jobPool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker pool stopped", "error", err)
			}
		}()
	}

	if cfg.Scheduler.Enabled {
		invitation := scheduler.NewInvitationScheduler(
			orgs, reservations, schedulerRuns, q, cfg.Scheduler.InvitationHour, appLog)
		cleanup := scheduler.NewPasscodeCleanupScheduler(
			reservations, orgs, locks, cfg.Scheduler.CleanupHour, appLog)

		go scheduler.NewRunner(invitation, cfg.Scheduler.InvitationInterval, appLog).Run(ctx)
		go scheduler.NewRunner(cleanup, cfg.Scheduler.CleanupInterval, appLog).Run(ctx)
	}

	srv := api.NewServer(api.Deps{
		Reservations:  reservations,
		Notifications: notifications,
		Queue:         q,
		Verifier:      verifier,
		WebhookSecret: cfg.Payment.WebhookSecret,
		DB:            pool,
		QueueHealth:   q,
		Logger:        appLog,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// paymentProvider selects the configured payment-link implementation and its
// matching webhook verifier. Local environments run against a stub.
func paymentProvider(cfg *config.Config, logger *slog.Logger) (external.PaymentProvider, external.WebhookVerifier) {
	if cfg.Environment == "local" {
		return external.NewStubPaymentProvider(logger), &external.BoldVerifier{}
	}
	switch cfg.Payment.Provider {
	case "stripe":
		// Stripe holds requests while creating payment links.
		return external.NewStripeClient(&http.Client{Timeout: 20 * time.Second}, external.StripeClientConfig{
			SecretKey: cfg.Payment.StripeSecretKey.Unmask(),
			Logger:    logger,
		}), &external.StripeVerifier{}
	default:
		return external.NewBoldClient(&http.Client{Timeout: 15 * time.Second}, external.BoldClientConfig{
			APIKey:  cfg.Payment.BoldAPIKey.Unmask(),
			BaseURL: cfg.Payment.BoldBaseURL,
			Logger:  logger,
		}), &external.BoldVerifier{}
	}
}

func lockProvider(cfg *config.Config, logger *slog.Logger) external.LockProvider {
	if cfg.Environment == "local" {
		return external.NewStubLockProvider(logger)
	}
	return external.NewTTLockClient(&http.Client{Timeout: 15 * time.Second}, external.TTLockClientConfig{
		ClientID:     cfg.Lock.ClientID,
		ClientSecret: cfg.Lock.ClientSecret.Unmask(),
		Username:     cfg.Lock.Username,
		Password:     cfg.Lock.Password.Unmask(),
		BaseURL:      cfg.Lock.BaseURL,
		Logger:       logger,
	})
}

func messengerProvider(cfg *config.Config, logger *slog.Logger) external.Messenger {
	if cfg.Environment == "local" {
		return external.NewStubMessenger(logger)
	}
	return external.NewWhatsAppClient(&http.Client{Timeout: 15 * time.Second}, external.WhatsAppClientConfig{
		AccessToken:   cfg.WhatsApp.AccessToken.Unmask(),
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		BaseURL:       cfg.WhatsApp.BaseURL,
		Logger:        logger,
	})
}

func emailProvider(cfg *config.Config, logger *slog.Logger) external.EmailProvider {
	if cfg.Environment == "local" {
		return external.NewStubEmailProvider(logger)
	}
	return external.NewMailerSendProvider(external.MailerSendConfig{
		APIKey:      cfg.Email.MailerSendAPIKey.Unmask(),
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		Logger:      logger,
	})
}

// templateCipher builds the override cipher from the configured key, or
// returns nil when encryption is not configured.
func templateCipher(cfg config.TemplatesConfig) (*templates.Cipher, error) {
	raw := cfg.EncryptionKey.Unmask()
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding TEMPLATE_ENCRYPTION_KEY: %w", err)
	}
	return templates.NewCipher(key)
}

// newLogger creates a structured JSON slog.Logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
