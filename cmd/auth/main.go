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
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/health"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/awsclient"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/dynamo"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/sns"
	ctxlog "github.com/ErlanBelekov/otp-auth/internal/log"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/outbox"
	httptransport "github.com/ErlanBelekov/otp-auth/internal/transport/http"
	"github.com/ErlanBelekov/otp-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/otp-auth/internal/usecase"
	"github.com/gin-gonic/gin"
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
	if err := cfg.ValidateAuth(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, "otp-auth")
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("db schema: %v", err)
	}

	clients, err := awsclient.New(ctx, cfg)
	if err != nil {
		log.Fatalf("aws: %v", err)
	}
	dynamoClient := clients.DynamoDB()
	if cfg.DynamoBootstrap {
		if err := dynamo.EnsureCodesTable(ctx, dynamoClient, cfg.CodesTable, logger); err != nil {
			log.Fatalf("dynamo bootstrap: %v", err)
		}
	}

	// Stores and bus
	codes := dynamo.NewCodeStore(dynamoClient, cfg.CodesTable)
	identities := postgres.NewIdentityRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)
	publisher := sns.NewTopicPublisher(clients.SNS(), map[domain.EventType]string{
		domain.EventDeliveryRequested: cfg.DeliveryTopicARN,
		domain.EventIdentityCreated:   cfg.IdentityTopicARN,
	})

	// Usecases
	tokens := usecase.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.SessionTokenTTL, cfg.Secure())
	issuer := usecase.NewOTPIssuer(codes, publisher, logger, cfg.OTPTTL)
	verifier := usecase.NewOTPVerifier(codes, identities, tokens, logger)
	authHandler := handler.NewAuthHandler(usecase.OTPService{OTPIssuer: issuer, OTPVerifier: verifier}, cfg.Secure(), logger)

	// Outbox
	relay := outbox.NewRelay(outboxRepo, publisher, logger, time.Duration(cfg.PollIntervalSec)*time.Second, cfg.WorkerCount, cfg.OutboxMaxAttempts)
	janitor, err := outbox.NewJanitor(outboxRepo, cfg.OutboxPurgeCron, cfg.OutboxRetention, logger)
	if err != nil {
		log.Fatalf("outbox janitor: %v", err)
	}

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer,
		health.Dependency{Name: "postgres", Pinger: pool},
		health.Dependency{Name: "dynamodb", Pinger: codes},
	)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, authHandler, tokens, cfg.Secure()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	relayDone := make(chan struct{})
	go func() {
		relay.Start(ctx)
		close(relayDone)
	}()
	go janitor.Start(ctx)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}

	// Drain delivery publishes still in flight from handled requests.
	waitOrTimeout(shutdownCtx, logger, "delivery publishes", issuer.Wait)
	waitOrTimeout(shutdownCtx, logger, "outbox relay", func() { <-relayDone })

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func waitOrTimeout(ctx context.Context, logger *slog.Logger, what string, wait func()) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("shutdown deadline reached", "waiting_for", what)
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
