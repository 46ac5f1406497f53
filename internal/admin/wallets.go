package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/models"
)

type CreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"max=200"`
}

type OpenRequest struct {
	InitialCredit decimal.Decimal `json:"initial_credit"`
}

// POST /admin/wallets/:user_id
func (h *Handler) OpenWallet(c echo.Context) error {
	var req OpenRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	st, err := h.ledger.OpenAccount(c.Request().Context(), c.Param("user_id"), req.InitialCredit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"wallet": st})
}

// POST /admin/wallets/:user_id/credit
func (h *Handler) CreditWallet(c echo.Context) error {
	var req CreditRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Reason == "" {
		req.Reason = models.ReasonAdminCredit
	}
	ctx := c.Request().Context()
	userID := c.Param("user_id")
	tx, err := h.ledger.Credit(ctx, userID, req.Amount, req.Reason, "")
	if err != nil {
		return err
	}
	balance, err := h.ledger.Balance(ctx, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"transaction": tx, "wallet_balance": balance})
}

// GET /admin/wallets/:user_id/transactions
func (h *Handler) WalletTransactions(c echo.Context) error {
	txs, err := h.ledger.Transactions(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

// GET /admin/wallets/:user_id/audit
func (h *Handler) AuditWallet(c echo.Context) error {
	r, err := h.ledger.Audit(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"audit": r, "consistent": r.Consistent()})
}

// GET /admin/wallets/audit
func (h *Handler) AuditAll(c echo.Context) error {
	bad, err := h.ledger.AuditAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"mismatches": bad, "consistent": len(bad) == 0})
}
