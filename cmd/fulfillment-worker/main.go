// Package main is the entry point for the standalone fulfillment worker.
//
// The worker consumes jobs from the Redis queue and runs them through the
// fulfillment pipeline. It carries no HTTP surface and no schedulers; deploy
// it alongside cmd/api when job throughput needs to scale independently of
// the API. Multiple workers can share one queue; BRPOPLPUSH hands each job
// to exactly one consumer.
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

	"guestflow/internal/config"
	"guestflow/internal/db"
	"guestflow/internal/external"
	"guestflow/internal/fulfillment"
	"guestflow/internal/messaging"
	"guestflow/internal/queue"
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

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if !cfg.Queue.Enabled {
		return errors.New("fulfillment worker requires QUEUE_ENABLED=true")
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("guestflow fulfillment worker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"concurrency", cfg.Queue.Concurrency,
	)
	appLog := types.NewSlogLogger(logger)

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

	cipher, err := templateCipher(cfg.Templates)
	if err != nil {
		return fmt.Errorf("configuring template cipher: %w", err)
	}
	store := templates.NewStore(orgs, cipher, appLog)

	payment := paymentProvider(cfg, logger)
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

	rdb, err := queue.NewClient(cfg.Queue)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	var jobPool *worker.Pool
	handler := func(ctx context.Context, payload types.JobPayload) error {
		return jobPool.Handle(ctx, payload)
	}
	q := queue.New(rdb, cfg.Queue, handler, appLog)
	jobPool = worker.NewPool(q, orch, cfg.Queue, appLog)

	poolErr := make(chan error, 1)
	go func() {
		poolErr <- jobPool.Run(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
		if err := <-poolErr; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker pool stopped with error", "error", err)
		}
	case err := <-poolErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker pool error: %w", err)
		}
	}

	logger.Info("worker stopped cleanly")
	return nil
}

func paymentProvider(cfg *config.Config, logger *slog.Logger) external.PaymentProvider {
	if cfg.Environment == "local" {
		return external.NewStubPaymentProvider(logger)
	}
	switch cfg.Payment.Provider {
	case "stripe":
		return external.NewStripeClient(&http.Client{Timeout: 20 * time.Second}, external.StripeClientConfig{
			SecretKey: cfg.Payment.StripeSecretKey.Unmask(),
			Logger:    logger,
		})
	default:
		return external.NewBoldClient(&http.Client{Timeout: 15 * time.Second}, external.BoldClientConfig{
			APIKey:  cfg.Payment.BoldAPIKey.Unmask(),
			BaseURL: cfg.Payment.BoldBaseURL,
			Logger:  logger,
		})
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
