package usecase_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/usecase"
	"github.com/golang-jwt/jwt/v5"
)

const testJWTKey = "test-jwt-secret-at-least-32-chars!!"

func TestTokenIssuer_IssueClaims(t *testing.T) {
	issuer := usecase.NewTokenIssuer([]byte(testJWTKey), time.Hour, true)

	before := time.Now()
	cred, err := issuer.Issue(42, "a@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := jwt.Parse(cred.Token, func(*jwt.Token) (any, error) { return []byte(testJWTKey), nil })
	if err != nil || !token.Valid {
		t.Fatalf("invalid token: %v", err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if claims["sub"] != strconv.Itoa(42) {
		t.Errorf("sub = %v, want 42", claims["sub"])
	}
	if claims["email"] != "a@x.com" {
		t.Errorf("email = %v", claims["email"])
	}
	if token.Method.Alg() != "HS256" {
		t.Errorf("alg = %s, want HS256", token.Method.Alg())
	}

	if cred.ExpiresAt.Before(before.Add(59*time.Minute)) || cred.ExpiresAt.After(before.Add(61*time.Minute)) {
		t.Errorf("expires_at %v not ~1h from now", cred.ExpiresAt)
	}
	if !cred.Secure || cred.SubjectID != 42 {
		t.Errorf("unexpected credential %+v", cred)
	}
}

func TestTokenIssuer_EmptyKeyIsUnavailable(t *testing.T) {
	issuer := usecase.NewTokenIssuer(nil, time.Hour, false)
	_, err := issuer.Issue(1, "a@x.com")
	if err != domain.ErrSigningKeyUnavailable {
		t.Fatalf("err = %v, want ErrSigningKeyUnavailable", err)
	}
}

func TestTokenIssuer_ParseRoundTrip(t *testing.T) {
	issuer := usecase.NewTokenIssuer([]byte(testJWTKey), time.Hour, false)
	cred, err := issuer.Issue(7, "b@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Parse(cred.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SubjectID != 7 || claims.Email != "b@x.com" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestTokenIssuer_ParseRejects(t *testing.T) {
	issuer := usecase.NewTokenIssuer([]byte(testJWTKey), time.Hour, false)

	sign := func(key string, method jwt.SigningMethod, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	tests := map[string]string{
		"garbage":   "not.a.jwt",
		"wrong key": sign("another-secret-that-is-32-chars!!", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()}),
		"expired":   sign(testJWTKey, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no exp":    sign(testJWTKey, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}),
		"bad sub":   sign(testJWTKey, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "abc", "exp": time.Now().Add(time.Hour).Unix()}),
		"hs512":     sign(testJWTKey, jwt.SigningMethodHS512, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()}),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := issuer.Parse(raw); err != domain.ErrUnauthorized {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}
