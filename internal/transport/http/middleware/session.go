package middleware

import (
	"net/http"
	"strings"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/gin-gonic/gin"
)

const errUnauthorized = "Unauthorized"

type sessionParser interface {
	Parse(raw string) (*domain.SessionClaims, error)
}

// Session validates the session token from the "token" cookie, or from a
// Bearer header for non-browser clients, and sets "userID" and "email" in the
// gin context.
func Session(parser sessionParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, err := c.Cookie(domain.SessionCookieName)
		if err != nil || rawToken == "" {
			header := c.GetHeader("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			rawToken = strings.TrimPrefix(header, "Bearer ")
		}

		claims, err := parser.Parse(rawToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set("userID", claims.SubjectID)
		c.Set("email", claims.Email)
		c.Next()
	}
}
