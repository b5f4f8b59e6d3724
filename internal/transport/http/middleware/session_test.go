package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/transport/http/middleware"
	"github.com/ErlanBelekov/otp-auth/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testKey = "middleware-test-secret-32-chars!!"

func init() {
	gin.SetMode(gin.TestMode)
}

// newEngine builds a minimal gin engine with the Session middleware protecting
// GET /protected. The handler echoes the userID so we can assert it was set.
func newEngine() *gin.Engine {
	tokens := usecase.NewTokenIssuer([]byte(testKey), time.Hour, false)
	r := gin.New()
	r.GET("/protected", middleware.Session(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, "%d|%s", c.GetInt64("userID"), c.GetString("email"))
	})
	return r
}

func makeJWT(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "42",
		"email": "a@x.com",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	newEngine().ServeHTTP(w, req)
	return w
}

func TestSession_MissingCredential_Returns401(t *testing.T) {
	w := serve(httptest.NewRequest(http.MethodGet, "/protected", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSession_NonBearerScheme_Returns401(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if w := serve(req); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSession_InvalidToken_Returns401(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "not.a.jwt"})
	if w := serve(req); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSession_ExpiredToken_Returns401(t *testing.T) {
	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+makeJWT(t, []byte(testKey), claims))
	if w := serve(req); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSession_WrongSigningKey_Returns401(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+makeJWT(t, []byte("different-key-that-is-32-chars!!"), validClaims()))
	if w := serve(req); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSession_ValidCookie_SetsClaims(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: makeJWT(t, []byte(testKey), validClaims())})
	w := serve(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got, want := w.Body.String(), fmt.Sprintf("%d|%s", 42, "a@x.com"); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestSession_ValidBearer_Passes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+makeJWT(t, []byte(testKey), validClaims()))
	if w := serve(req); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
