package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/repository"
)

type OTPVerifier struct {
	codes      repository.CodeStore
	identities repository.IdentityRepository
	tokens     *TokenIssuer
	logger     *slog.Logger
}

func NewOTPVerifier(codes repository.CodeStore, identities repository.IdentityRepository, tokens *TokenIssuer, logger *slog.Logger) *OTPVerifier {
	return &OTPVerifier{
		codes:      codes,
		identities: identities,
		tokens:     tokens,
		logger:     logger.With("component", "otp_verifier"),
	}
}

// VerifyCode redeems code for id and returns a session credential.
//
// A mismatch leaves the stored code live so the caller can retry within the
// ttl. A match consumes the code with a compare-and-delete; when several
// callers race on the same code only one gets past that step and the rest see
// domain.ErrCodeNotFound.
func (u *OTPVerifier) VerifyCode(ctx context.Context, id domain.Identifier, code string) (*domain.SessionCredential, error) {
	cred, err := u.verify(ctx, id, code)
	metrics.VerifyAttemptsTotal.WithLabelValues(verifyOutcome(err)).Inc()
	return cred, err
}

func (u *OTPVerifier) verify(ctx context.Context, id domain.Identifier, code string) (*domain.SessionCredential, error) {
	id = id.Normalize()
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if !id.IsEmail() {
		return nil, fmt.Errorf("%w: phone_number verification is not supported", domain.ErrValidation)
	}
	if !isNumericCode(code) {
		return nil, fmt.Errorf("%w: code must be %d digits", domain.ErrValidation, codeDigits)
	}

	key := id.Key()
	stored, err := u.codes.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return nil, domain.ErrCodeMismatch
	}

	if err := u.codes.Delete(ctx, key, code); err != nil {
		return nil, err
	}

	identity, err := u.resolveIdentity(ctx, id)
	if err != nil {
		return nil, err
	}

	return u.tokens.Issue(identity.ID, identity.EmailAddress())
}

// resolveIdentity returns the canonical identity for id, creating it on first
// sight. A uniqueness conflict means another verifier created it first.
func (u *OTPVerifier) resolveIdentity(ctx context.Context, id domain.Identifier) (*domain.Identity, error) {
	identity, err := u.identities.FindByIdentifier(ctx, id)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, fmt.Errorf("find identity: %w", err)
	}

	identity, err = u.identities.Create(ctx, id)
	switch {
	case err == nil:
		metrics.IdentitiesCreatedTotal.Inc()
		u.logger.InfoContext(ctx, "identity created", "identity_id", identity.ID)
		return identity, nil
	case errors.Is(err, domain.ErrConflict):
		metrics.IdentityConflictsTotal.Inc()
		identity, err = u.identities.FindByIdentifier(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("re-read identity after conflict: %w", err)
		}
		return identity, nil
	default:
		return nil, fmt.Errorf("create identity: %w", err)
	}
}

func isNumericCode(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCodeMismatch):
		return "mismatch"
	default:
		return "error"
	}
}
