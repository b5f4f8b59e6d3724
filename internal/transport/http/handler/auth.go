package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/gin-gonic/gin"
)

// otpUsecaser is the subset of the OTP usecases the handler needs.
// Defined here (point of use) so tests can inject a fake.
type otpUsecaser interface {
	IssueCode(ctx context.Context, id domain.Identifier) error
	VerifyCode(ctx context.Context, id domain.Identifier, code string) (*domain.SessionCredential, error)
}

type AuthHandler struct {
	otp    otpUsecaser
	secure bool
	logger *slog.Logger
}

func NewAuthHandler(otp otpUsecaser, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		otp:    otp,
		secure: secureCookies,
		logger: logger.With("component", "auth_handler"),
	}
}

type issueCodeRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

type verifyCodeRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code" binding:"required"`
}

// POST /auth/otp
// Returns 202 once the code is stored; delivery happens asynchronously.
func (h *AuthHandler) RequestCode(c *gin.Context) {
	var req issueCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody})
		return
	}

	id := domain.Identifier{Email: req.Email, PhoneNumber: req.PhoneNumber}
	if err := h.otp.IssueCode(c.Request.Context(), id); err != nil {
		h.writeError(c, "issue code", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "code sent"})
}

// POST /auth/otp/verify
// Sets the session cookie on success. Absent, expired and wrong codes all
// get the same 401 so the response does not reveal which one it was.
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody})
		return
	}

	id := domain.Identifier{Email: req.Email, PhoneNumber: req.PhoneNumber}
	cred, err := h.otp.VerifyCode(c.Request.Context(), id, req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) || errors.Is(err, domain.ErrCodeMismatch) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidCode})
			return
		}
		h.writeError(c, "verify code", err)
		return
	}

	http.SetCookie(c.Writer, cred.Cookie())
	c.JSON(http.StatusOK, gin.H{
		"user_id":    cred.SubjectID,
		"expires_at": cred.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// GET /auth/session
// Requires the Session middleware.
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id": c.GetInt64("userID"),
		"email":   c.GetString("email"),
	})
}

// POST /auth/logout
// Sessions are stateless, so logging out only clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     domain.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnavailable):
		h.logger.ErrorContext(c.Request.Context(), op, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errUnavailable})
	default:
		h.logger.ErrorContext(c.Request.Context(), op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
