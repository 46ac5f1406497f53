package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/geo"
)

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=online offline"`
}

// POST /location accepts {"latitude","longitude"}, {"lat","lon"} or a GeoJSON point.
func (s *server) updateLocation(c echo.Context) error {
	var p geo.Point
	if err := c.Bind(&p); err != nil {
		return err
	}
	conf, err := s.tracking.UpdateLocation(c.Request().Context(), actor(c).UserID, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conf)
}

// GET /jobs/:id/track
func (s *server) trackSnapshot(c echo.Context) error {
	snap, err := s.tracking.Snapshot(c.Request().Context(), actor(c).UserID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// POST /status
func (s *server) setStatus(c echo.Context) error {
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	av, err := s.ledger.SetAvailability(c.Request().Context(), actor(c).UserID, req.Status == "online")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, av)
}

// GET /status
func (s *server) getStatus(c echo.Context) error {
	av, err := s.ledger.Availability(c.Request().Context(), actor(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, av)
}

// GET /wallet
func (s *server) wallet(c echo.Context) error {
	ctx := c.Request().Context()
	a := actor(c)
	balance, err := s.ledger.Balance(ctx, a.UserID)
	if err != nil {
		return err
	}
	resp := echo.Map{"user_id": a.UserID, "wallet_balance": balance}
	if a.Has("seeker") {
		min, err := s.ledger.MinBalanceToGoOnline(ctx, a.UserID)
		switch {
		case err == nil:
			resp["minimum_balance"] = min
		case !apperr.Is(err, apperr.MissingSeekerConfig):
			return err
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// GET /wallet/transactions
func (s *server) walletTransactions(c echo.Context) error {
	txs, err := s.ledger.Transactions(c.Request().Context(), actor(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}
