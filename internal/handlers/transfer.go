package handlers

import (
	"errors"

	"wallettx/internal/logging"
	"wallettx/internal/services/account"
	"wallettx/internal/services/transaction"
	"wallettx/internal/utils"
	"wallettx/internal/utils/pagination"
	"wallettx/internal/utils/response"
	"wallettx/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferHandler exposes the transfer endpoints of the transaction service.
type TransferHandler struct {
	service  transaction.Service
	resolver account.Resolver
	logger   *zap.Logger
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(s transaction.Service, r account.Resolver, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{service: s, resolver: r, logger: logging.OrNop(logger)}
}

type createTransferRequest struct {
	Receiver string          `json:"receiver"`
	Amount   decimal.Decimal `json:"amount"`
	Purpose  string          `json:"purpose"`
}

// callerAccount resolves the authenticated owner to their account id.
func (h *TransferHandler) callerAccount(c *fiber.Ctx) (string, error) {
	claims, err := utils.GetOwnerClaims(c)
	if err != nil {
		return "", response.Unauthorized(c)
	}
	acct, err := h.resolver.Resolve(c.UserContext(), claims.Identity())
	if errors.Is(err, account.ErrAccountNotFound) {
		return "", response.Forbidden(c, "caller has no account")
	}
	if err != nil {
		h.logger.Error("account resolution failed", zap.Error(err))
		return "", response.Error(c, fiber.StatusBadGateway, "account directory unavailable")
	}
	return acct, nil
}

// Create handles POST /api/transfers. The transfer completes asynchronously.
func (h *TransferHandler) Create(c *fiber.Ctx) error {
	sender, err := h.callerAccount(c)
	if sender == "" {
		return err
	}

	var req createTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}
	if req.Receiver == "" {
		return response.ValidationError(c, "validation failed", validation.Errors{{Field: "receiver", Message: "is required"}})
	}

	receiver, err := h.resolver.Resolve(c.UserContext(), req.Receiver)
	if errors.Is(err, account.ErrAccountNotFound) {
		return response.NotFound(c, "receiver not found")
	}
	if err != nil {
		h.logger.Error("account resolution failed", zap.Error(err))
		return response.Error(c, fiber.StatusBadGateway, "account directory unavailable")
	}

	tx, err := h.service.Initiate(c.UserContext(), transaction.TransferRequest{
		SenderAccount:   sender,
		ReceiverAccount: receiver,
		Amount:          req.Amount,
		Purpose:         req.Purpose,
	})
	if err != nil {
		var fields validation.Errors
		if errors.As(err, &fields) {
			return response.ValidationError(c, "validation failed", fields)
		}
		h.logger.Error("initiate transfer failed", zap.Error(err))
		return response.ServerError(c, "could not initiate transfer")
	}

	return response.Accepted(c, "transfer initiated", fiber.Map{
		"transactionId": tx.TransactionID,
		"status":        tx.Status,
	})
}

// List handles GET /api/transfers, newest first.
func (h *TransferHandler) List(c *fiber.Ctx) error {
	sender, err := h.callerAccount(c)
	if sender == "" {
		return err
	}

	p := pagination.ParseFromRequest(c)
	page, err := h.service.ListByAccount(c.UserContext(), sender, p.Page, p.Limit)
	if err != nil {
		h.logger.Error("list transfers failed", zap.Error(err))
		return response.ServerError(c, "could not list transfers")
	}
	p.Total = page.Total
	return c.JSON(pagination.Response(p, page.Items))
}

// Get handles GET /api/transfers/:id for the sender or the receiver.
func (h *TransferHandler) Get(c *fiber.Ctx) error {
	caller, err := h.callerAccount(c)
	if caller == "" {
		return err
	}

	tx, err := h.service.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, transaction.ErrTransactionNotFound) {
		return response.NotFound(c, "transfer not found")
	}
	if err != nil {
		h.logger.Error("get transfer failed", zap.Error(err))
		return response.ServerError(c, "could not load transfer")
	}
	if !tx.Involves(caller) {
		return response.Forbidden(c, "not a party to this transfer")
	}
	return response.Success(c, "transfer", tx)
}
