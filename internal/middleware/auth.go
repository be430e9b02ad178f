package middleware

import (
	"net/http"
	"strings"

	"taskboard-service/internal/authz"
	"taskboard-service/pkg/jwtutil"
	"taskboard-service/pkg/logger"
	"taskboard-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// CallerKey is the echo.Context key holding the authenticated authz.Caller.
const CallerKey = "caller"

// AuthMiddleware validates the Bearer token and stores the caller identity in
// the request context. Every protected route goes through here; handlers read
// the caller back with CallerFromContext and pass it explicitly into the
// authorization policy and data access.
func AuthMiddleware(jwtUtil *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			// Get the Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "No token provided"})
			}

			// Check if it's a Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "No token provided"})
			}

			// Validate the token
			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Invalid or expired token"})
			}

			caller := authz.Caller{
				UserID:   claims.UserID,
				Email:    claims.Email,
				TenantID: claims.TenantID,
				Role:     claims.Role,
			}
			c.Set(CallerKey, caller)

			log.Debug("Request authenticated",
				zap.Uint("user_id", caller.UserID),
				zap.String("role", caller.Role))

			return next(c)
		}
	}
}

// CallerFromContext returns the caller stored by AuthMiddleware.
func CallerFromContext(c echo.Context) (authz.Caller, bool) {
	caller, ok := c.Get(CallerKey).(authz.Caller)
	return caller, ok
}
