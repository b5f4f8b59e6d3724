package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/repository"
)

const (
	defaultCodeTTL        = 2 * time.Minute
	defaultPublishTimeout = 5 * time.Second
	codeDigits            = 6
)

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a uniformly random 6-digit code, zero padded.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

type OTPIssuer struct {
	codes          repository.CodeStore
	publisher      bus.Publisher
	logger         *slog.Logger
	ttl            time.Duration
	publishTimeout time.Duration

	inflight sync.WaitGroup
}

func NewOTPIssuer(codes repository.CodeStore, publisher bus.Publisher, logger *slog.Logger, ttl time.Duration) *OTPIssuer {
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	return &OTPIssuer{
		codes:          codes,
		publisher:      publisher,
		logger:         logger.With("component", "otp_issuer"),
		ttl:            ttl,
		publishTimeout: defaultPublishTimeout,
	}
}

// IssueCode stores a fresh code for id, replacing any live one, and requests
// delivery in the background. Only a failed store write fails the call.
func (u *OTPIssuer) IssueCode(ctx context.Context, id domain.Identifier) error {
	id = id.Normalize()
	if err := id.Validate(); err != nil {
		return err
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}

	if err := u.codes.Set(ctx, id.Key(), code, u.ttl); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	metrics.CodesIssuedTotal.WithLabelValues(string(id.Channel())).Inc()

	env, err := bus.NewEnvelope(domain.EventDeliveryRequested, domain.DeliveryRequested{
		Channel:   id.Channel(),
		Recipient: id.Recipient(),
		Content:   code,
	})
	if err != nil {
		u.logger.ErrorContext(ctx, "build delivery event", "error", err)
		metrics.DeliveryPublishFailuresTotal.Inc()
		return nil
	}

	u.inflight.Add(1)
	go func() {
		defer u.inflight.Done()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.publishTimeout)
		defer cancel()
		if err := u.publisher.Publish(pubCtx, env); err != nil {
			metrics.DeliveryPublishFailuresTotal.Inc()
			u.logger.ErrorContext(pubCtx, "publish delivery request", "event_id", env.ID, "channel", id.Channel(), "error", err)
		}
	}()

	return nil
}

// Wait blocks until background delivery publishes have finished.
func (u *OTPIssuer) Wait() {
	u.inflight.Wait()
}

// OTPService bundles issuance and redemption for the HTTP layer.
type OTPService struct {
	*OTPIssuer
	*OTPVerifier
}
