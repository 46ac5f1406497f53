// Package admin serves the operator endpoints mounted under /admin.
package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/store"
	"github.com/sudo-init-do/workerlly/internal/tracking"
	"github.com/sudo-init-do/workerlly/internal/wallet"
)

type Handler struct {
	store  store.Store
	ledger *wallet.Ledger
	hub    *tracking.Hub
}

func NewHandler(st store.Store, ledger *wallet.Ledger, hub *tracking.Hub) *Handler {
	return &Handler{store: st, ledger: ledger, hub: hub}
}

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	byStatus, err := h.store.CountJobsByStatus(c.Request().Context())
	if err != nil {
		return apperr.Wrap(apperr.Internal, "admin.Stats", err)
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}
	subs := 0
	if h.hub != nil {
		subs = h.hub.Total()
	}
	return c.JSON(http.StatusOK, echo.Map{
		"jobs":                   total,
		"jobs_by_status":         byStatus,
		"tracking_subscriptions": subs,
	})
}
