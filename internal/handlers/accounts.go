package handlers

import (
	"errors"

	"wallettx/internal/logging"
	"wallettx/internal/services/account"
	"wallettx/internal/services/wallet"
	"wallettx/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AccountHandler answers the account directory for other services.
type AccountHandler struct {
	ledger wallet.Ledger
	logger *zap.Logger
}

func NewAccountHandler(l wallet.Ledger, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{ledger: l, logger: logging.OrNop(logger)}
}

// Resolve handles GET /internal/accounts/resolve?identity=.
func (h *AccountHandler) Resolve(c *fiber.Ctx) error {
	identity := c.Query("identity")
	if identity == "" {
		return response.BadRequest(c, "identity is required")
	}

	acct, err := h.ledger.ResolveOwner(c.UserContext(), identity)
	if errors.Is(err, wallet.ErrAccountNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(account.Resolution{Status: account.StatusNotFound})
	}
	if err != nil {
		h.logger.Error("account resolution failed", zap.Error(err))
		return response.ServerError(c, "could not resolve account")
	}
	return c.JSON(account.Resolution{Status: account.StatusFound, AccountID: acct})
}
