package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/otp-auth/config"
	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/email"
	"github.com/ErlanBelekov/otp-auth/internal/health"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/awsclient"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/sqs"
	ctxlog "github.com/ErlanBelekov/otp-auth/internal/log"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/notifier"
	"github.com/ErlanBelekov/otp-auth/internal/sms"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.ValidateNotifier(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := awsclient.New(ctx, cfg)
	if err != nil {
		log.Fatalf("aws: %v", err)
	}

	emailSender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	smsSender := sms.NewSender(cfg.Env, clients.SNS(), cfg.SMSSenderID, logger)
	n := notifier.New(emailSender, smsSender, cfg.DeliveryStaleAfter, logger)

	mux := bus.NewMux()
	mux.Register(domain.EventDeliveryRequested, n)
	consumer := sqs.NewConsumer(clients.SQS(), cfg.DeliveryQueueURL, mux, logger, cfg.WorkerCount)

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer,
		health.Dependency{Name: "delivery_queue", Pinger: consumer},
	)
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	consumerDone := make(chan struct{})
	go func() {
		consumer.Start(ctx)
		close(consumerDone)
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn("consumer still draining at shutdown deadline")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
