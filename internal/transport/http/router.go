package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/otp-auth/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

type sessionParser interface {
	Parse(raw string) (*domain.SessionClaims, error)
}

func NewRouter(logger *slog.Logger, authHandler *handler.AuthHandler, sessions sessionParser, secure bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security(secure))
	r.Use(sloggin.NewWithConfig(logger, sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		Filters:          []sloggin.Filter{sloggin.IgnorePath("/favicon.ico")},
	}))
	r.Use(middleware.Metrics())

	auth := r.Group("/auth")
	auth.POST("/otp", authHandler.RequestCode)
	auth.POST("/otp/verify", authHandler.VerifyCode)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/session", middleware.Session(sessions), authHandler.Session)

	return r
}
