package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/marketplace"
	"github.com/sudo-init-do/workerlly/internal/models"
)

type rateRequest struct {
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

type bidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type otpRequest struct {
	OTP string `json:"otp" validate:"required,len=4,numeric"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type payRequest struct {
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=cash online"`
}

type reviewRequest struct {
	Rating int    `json:"rating" validate:"gte=1,lte=5"`
	Text   string `json:"review_text" validate:"required,max=1000"`
}

// POST /jobs
func (s *server) createJob(c echo.Context) error {
	var in marketplace.CreateJobInput
	if err := bind(c, &in); err != nil {
		return err
	}
	job, err := s.engine.CreateJob(c.Request().Context(), actor(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"job": job})
}

// PATCH /jobs/:id/rate
func (s *server) updateRate(c echo.Context) error {
	var req rateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	job, err := s.engine.UpdateHourlyRate(c.Request().Context(), actor(c), c.Param("id"), req.HourlyRate)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// GET /jobs?as=provider&status=pending,assigned&limit=20
func (s *server) listJobs(c echo.Context) error {
	var (
		as    string
		raw   []string
		limit int
	)
	if err := echo.QueryParamsBinder(c).
		String("as", &as).
		Strings("status", &raw).
		Int("limit", &limit).
		BindError(); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "api.listJobs", err)
	}
	var statuses []models.JobStatus
	for _, r := range raw {
		for _, st := range strings.Split(r, ",") {
			if st = strings.TrimSpace(st); st != "" {
				statuses = append(statuses, models.JobStatus(st))
			}
		}
	}
	jobs, err := s.engine.ListJobs(c.Request().Context(), actor(c), models.Role(as), statuses, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"jobs": jobs})
}

// GET /jobs/:id
func (s *server) getJob(c echo.Context) error {
	job, err := s.engine.GetJob(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// POST /jobs/:id/bids
func (s *server) placeBid(c echo.Context) error {
	var req bidRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	bid, err := s.engine.PlaceBid(c.Request().Context(), actor(c), c.Param("id"), req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"bid": bid})
}

// DELETE /bids/:id
func (s *server) withdrawBid(c echo.Context) error {
	if err := s.engine.WithdrawBid(c.Request().Context(), actor(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "bid withdrawn"})
}

// GET /jobs/:id/bids
func (s *server) listBids(c echo.Context) error {
	bids, err := s.engine.ListBids(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"bids": bids})
}

// POST /jobs/:id/bids/:bid_id/accept
func (s *server) acceptBid(c echo.Context) error {
	job, err := s.engine.AcceptBid(c.Request().Context(), actor(c), c.Param("id"), c.Param("bid_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// POST /jobs/:id/reached
func (s *server) markReached(c echo.Context) error {
	job, err := s.engine.MarkReached(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// POST /jobs/:id/start
func (s *server) verifyStart(c echo.Context) error {
	var req otpRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	job, err := s.engine.VerifyStartOTP(c.Request().Context(), actor(c), c.Param("id"), req.OTP)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// POST /jobs/:id/complete
func (s *server) requestCompletion(c echo.Context) error {
	job, err := s.engine.RequestCompletion(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// POST /jobs/:id/done
func (s *server) verifyDone(c echo.Context) error {
	var req otpRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	job, err := s.engine.VerifyDoneOTP(c.Request().Context(), actor(c), c.Param("id"), req.OTP)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// POST /jobs/:id/pay
func (s *server) pay(c echo.Context) error {
	var req payRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	job, err := s.engine.Pay(c.Request().Context(), actor(c), c.Param("id"), req.PaymentMethod)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// POST /jobs/:id/cancel
func (s *server) cancel(c echo.Context) error {
	var req cancelRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	job, err := s.engine.Cancel(c.Request().Context(), actor(c), c.Param("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// POST /jobs/:id/delayed-cancel
func (s *server) cancelOverdue(c echo.Context) error {
	job, err := s.engine.CancelOverdue(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"job": job})
}

// GET /jobs/:id/invoice
func (s *server) invoice(c echo.Context) error {
	inv, err := s.engine.Invoice(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"invoice": inv})
}

// POST /admin/jobs/sweep runs the stale-job sweep now.
func (s *server) sweepJobs(c echo.Context) error {
	n, err := s.engine.SweepStale(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"cancelled_count": n})
}

// POST /jobs/:id/reviews
func (s *server) submitReview(c echo.Context) error {
	var req reviewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := s.engine.SubmitReview(c.Request().Context(), actor(c), c.Param("id"), req.Rating, req.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"review": r})
}

// GET /jobs/:id/reviews
func (s *server) listReviews(c echo.Context) error {
	reviews, err := s.engine.ListReviewsForJob(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"reviews": reviews})
}

// GET /users/:id/review-stats
func (s *server) reviewStats(c echo.Context) error {
	st, err := s.engine.ReviewStats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
