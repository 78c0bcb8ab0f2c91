// Package middleware provides HTTP middleware components for the application.
// It includes caller authentication for the public API and service
// authentication for internal endpoints.
package middleware

import (
	"strings"

	"wallettx/internal/logging"
	"wallettx/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"go.uber.org/zap"
)

// JWT validates the bearer token of the request and stores the caller's
// claims under utils.ClaimsKey.
func JWT(secret string, logger *zap.Logger) fiber.Handler {
	logger = logging.OrNop(logger).Named("auth")

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := utils.ParseToken(secret, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			logger.Debug("token rejected", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals(utils.ClaimsKey, claims)
		return c.Next()
	}
}

// ServiceAuth guards internal endpoints with HTTP basic auth. passwordHash is
// the bcrypt hash of the shared service password.
func ServiceAuth(user, passwordHash string) fiber.Handler {
	return basicauth.New(basicauth.Config{
		Realm: "wallettx-internal",
		Authorizer: func(u, p string) bool {
			return u == user && utils.CheckPassword(passwordHash, p)
		},
		Unauthorized: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		},
	})
}
