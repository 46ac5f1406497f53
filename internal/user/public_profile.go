package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/store"
)

// PublicProfile is what other users may see.
type PublicProfile struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Roles               []string `json:"roles"`
	AvgRatingAsSeeker   float64  `json:"avg_rating_as_seeker"`
	AvgRatingAsProvider float64  `json:"avg_rating_as_provider"`
	TotalJobsDone       int      `json:"total_jobs_done"`
	TotalJobsPosted     int      `json:"total_jobs_posted"`
}

// GET /users/:id
func (h *Handler) GetPublicProfile(c echo.Context) error {
	const op = "user.GetPublicProfile"
	ctx := c.Request().Context()
	userID := c.Param("id")

	u, err := h.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.UnknownUser, op, "user not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, op, err)
	}

	p := PublicProfile{ID: u.ID, Name: u.Name, Roles: u.Roles}
	if st, err := h.store.GetUserStats(ctx, userID); err == nil {
		p.AvgRatingAsSeeker = st.AvgRatingAsSeeker()
		p.AvgRatingAsProvider = st.AvgRatingAsProvider()
		p.TotalJobsDone = st.TotalJobsDone
		p.TotalJobsPosted = st.TotalJobsPosted
	}
	return c.JSON(http.StatusOK, p)
}
