package handlers

import (
	"errors"

	"wallettx/internal/logging"
	"wallettx/internal/services/wallet"
	"wallettx/internal/utils"
	"wallettx/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WalletHandler exposes the read API and the account directory of the wallet service.
type WalletHandler struct {
	ledger wallet.Ledger
	logger *zap.Logger
}

func NewWalletHandler(l wallet.Ledger, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{ledger: l, logger: logging.OrNop(logger)}
}

func (h *WalletHandler) ownAccount(c *fiber.Ctx) (string, error) {
	claims, err := utils.GetOwnerClaims(c)
	if err != nil {
		return "", response.Unauthorized(c)
	}
	acct, err := h.ledger.ResolveOwner(c.UserContext(), claims.Identity())
	if errors.Is(err, wallet.ErrAccountNotFound) {
		return "", response.NotFound(c, "wallet not found")
	}
	if err != nil {
		h.logger.Error("owner lookup failed", zap.Error(err))
		return "", response.ServerError(c, "could not load wallet")
	}
	return acct, nil
}

// GetWallet handles GET /api/wallets/me.
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	acct, err := h.ownAccount(c)
	if acct == "" {
		return err
	}
	w, err := h.ledger.GetWallet(c.UserContext(), acct)
	if err != nil {
		h.logger.Error("get wallet failed", zap.String("account_id", acct), zap.Error(err))
		return response.ServerError(c, "could not load wallet")
	}
	return response.Success(c, "wallet", w)
}

// GetEntries handles GET /api/wallets/me/entries.
func (h *WalletHandler) GetEntries(c *fiber.Ctx) error {
	acct, err := h.ownAccount(c)
	if acct == "" {
		return err
	}
	entries, err := h.ledger.Entries(c.UserContext(), acct, c.QueryInt("limit", 0))
	if err != nil {
		h.logger.Error("list ledger entries failed", zap.String("account_id", acct), zap.Error(err))
		return response.ServerError(c, "could not load ledger entries")
	}
	return response.Success(c, "ledger entries", entries)
}
