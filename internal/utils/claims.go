package utils

import (
	"errors"

	"wallettx/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ClaimsKey is the fiber local the auth middleware stores claims under.
const ClaimsKey = "claims"

// GetOwnerClaims extracts the caller's claims from the Fiber context.
// It returns an error if the claims are missing or of an invalid type.
func GetOwnerClaims(c *fiber.Ctx) (*models.OwnerClaims, error) {
	v := c.Locals(ClaimsKey)
	if v == nil {
		return nil, errors.New("claims not found in context")
	}

	claims, ok := v.(*models.OwnerClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}
