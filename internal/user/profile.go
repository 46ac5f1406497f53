// Package user serves the read-only profile endpoints. Accounts themselves are owned by
// the identity service; this side only reads them.
package user

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

type Handler struct {
	store store.Queries
}

func NewHandler(q store.Queries) *Handler {
	return &Handler{store: q}
}

// Profile is the caller's own view: account, wallet and work counters.
type Profile struct {
	models.User
	Stats *models.UserStats `json:"stats,omitempty"`
}

// GET /me
func (h *Handler) Me(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	p, err := h.profile(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) profile(ctx context.Context, userID string) (*Profile, error) {
	const op = "user.Me"
	u, err := h.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.UnknownUser, op, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	p := &Profile{User: *u}
	st, err := h.store.GetUserStats(ctx, userID)
	switch {
	case err == nil:
		p.Stats = st
	case !errors.Is(err, store.ErrNotFound):
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	return p, nil
}
