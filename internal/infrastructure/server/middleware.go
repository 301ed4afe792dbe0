package server

import (
	"strings"

	"github.com/labstack/echo/v4"

	httpHandlers "github.com/taskmaster/pulse/internal/adapters/http"
	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/ports"
)

// authMiddleware validates the bearer token and stores the caller's identity
// on the request context.
func (s *Server) authMiddleware(authService ports.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return entities.NewError(entities.ErrCodeUnauthorized, "missing authorization header")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || tokenString == "" {
				return entities.NewError(entities.ErrCodeUnauthorized, "invalid authorization header format")
			}

			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				s.logger.LogSecurityEvent("invalid_token", "", c.RealIP(), map[string]interface{}{
					"error": err.Error(),
				})
				return entities.ErrInvalidToken
			}

			c.Set(httpHandlers.ContextUserID, claims.UserID)
			c.Set(httpHandlers.ContextUserEmail, claims.Email)

			return next(c)
		}
	}
}
