package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrCodeNotFound     = errors.New("code not found or expired")
	ErrCodeMismatch     = errors.New("code mismatch")
	ErrConflict         = errors.New("identity already exists")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrUnavailable      = errors.New("dependency unavailable")
	ErrDeliveryFailed   = errors.New("delivery failed")
	ErrUnauthorized     = errors.New("unauthorized")

	// ErrSigningKeyUnavailable is reported as ErrUnavailable to callers.
	ErrSigningKeyUnavailable = fmt.Errorf("%w: signing key not configured", ErrUnavailable)
)

const (
	SessionCookieName   = "token"
	SessionCookieMaxAge = 24 * time.Hour
)

// Identity is the canonical identity record. ID is assigned by the identity
// store and never generated anywhere else.
type Identity struct {
	ID          int64
	Email       *string
	PhoneNumber *string
	CreatedAt   time.Time
}

func (i *Identity) EmailAddress() string {
	if i.Email == nil {
		return ""
	}
	return *i.Email
}

// ReplicaUser is a downstream copy of an Identity keyed by the canonical id.
type ReplicaUser struct {
	ID           int64
	Email        *string
	PhoneNumber  *string
	CreatedAt    time.Time
	ReplicatedAt time.Time
}

type SessionCredential struct {
	Token     string
	SubjectID int64
	Email     string
	ExpiresAt time.Time
	Secure    bool
}

// Cookie returns the transport form of the credential.
func (c *SessionCredential) Cookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    c.Token,
		Path:     "/",
		MaxAge:   int(SessionCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

type SessionClaims struct {
	SubjectID int64
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
