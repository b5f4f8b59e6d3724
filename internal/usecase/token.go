package usecase

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionTTL = time.Hour

// TokenIssuer mints stateless HS256 session tokens. No lookup, no storage.
type TokenIssuer struct {
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewTokenIssuer(key []byte, ttl time.Duration, secure bool) *TokenIssuer {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &TokenIssuer{key: key, ttl: ttl, secure: secure, now: time.Now}
}

func (t *TokenIssuer) Issue(subjectID int64, email string) (*domain.SessionCredential, error) {
	if len(t.key) == 0 {
		return nil, domain.ErrSigningKeyUnavailable
	}

	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(subjectID, 10),
		"email": email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return nil, fmt.Errorf("%w: sign jwt: %w", domain.ErrUnavailable, err)
	}

	return &domain.SessionCredential{
		Token:     signed,
		SubjectID: subjectID,
		Email:     email,
		ExpiresAt: time.Unix(expiresAt.Unix(), 0),
		Secure:    t.secure,
	}, nil
}

// Parse validates signature and expiry and returns the session claims.
func (t *TokenIssuer) Parse(raw string) (*domain.SessionClaims, error) {
	if len(t.key) == 0 {
		return nil, domain.ErrSigningKeyUnavailable
	}

	token, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, domain.ErrUnauthorized
	}
	subjectID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	email, _ := claims["email"].(string)

	out := &domain.SessionClaims{SubjectID: subjectID, Email: email}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
