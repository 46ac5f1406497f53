// Package api is the HTTP surface of the marketplace.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sudo-init-do/workerlly/internal/admin"
	"github.com/sudo-init-do/workerlly/internal/logger"
	"github.com/sudo-init-do/workerlly/internal/marketplace"
	"github.com/sudo-init-do/workerlly/internal/metrics"
	mware "github.com/sudo-init-do/workerlly/internal/middleware"
	"github.com/sudo-init-do/workerlly/internal/tracking"
	"github.com/sudo-init-do/workerlly/internal/user"
	"github.com/sudo-init-do/workerlly/internal/wallet"
)

type Deps struct {
	Engine    *marketplace.Engine
	Ledger    *wallet.Ledger
	Tracking  *tracking.Service
	Admin     *admin.Handler
	Users     *user.Handler
	Metrics   *metrics.Collector
	JWTSecret string
	// Ready reports whether backing services answer; nil means always ready.
	Ready func(ctx context.Context) error
}

type server struct {
	engine   *marketplace.Engine
	ledger   *wallet.Ledger
	tracking *tracking.Service
}

// New builds the echo instance with every route mounted.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext)
	e.Use(requestLogger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": err.Error()})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	auth := mware.JWTMiddleware(d.JWTSecret)
	if d.Tracking != nil {
		e.GET("/ws", tracking.NewHandler(d.Tracking).Serve, auth)
	}

	s := &server{engine: d.Engine, ledger: d.Ledger, tracking: d.Tracking}
	v1 := e.Group("/api/v1", auth)

	provider := mware.RequireRoles("provider")
	seeker := mware.RequireRoles("seeker")

	v1.POST("/jobs", s.createJob, provider)
	v1.PATCH("/jobs/:id/rate", s.updateRate, provider)
	v1.GET("/jobs/:id/bids", s.listBids, provider)
	v1.POST("/jobs/:id/bids/:bid_id/accept", s.acceptBid, provider)
	v1.POST("/jobs/:id/start", s.verifyStart, provider)
	v1.POST("/jobs/:id/done", s.verifyDone, provider)
	v1.POST("/jobs/:id/delayed-cancel", s.cancelOverdue, provider)
	v1.GET("/jobs/:id/track", s.trackSnapshot, provider)

	v1.POST("/jobs/:id/bids", s.placeBid, seeker)
	v1.DELETE("/bids/:id", s.withdrawBid, seeker)
	v1.POST("/jobs/:id/reached", s.markReached, seeker)
	v1.POST("/jobs/:id/pay", s.pay, seeker)
	v1.POST("/location", s.updateLocation, seeker)
	v1.POST("/status", s.setStatus, seeker)
	v1.GET("/status", s.getStatus, seeker)

	v1.GET("/jobs", s.listJobs)
	v1.GET("/jobs/:id", s.getJob)
	v1.POST("/jobs/:id/complete", s.requestCompletion)
	v1.POST("/jobs/:id/cancel", s.cancel)
	v1.GET("/jobs/:id/invoice", s.invoice)
	v1.POST("/jobs/:id/reviews", s.submitReview)
	v1.GET("/jobs/:id/reviews", s.listReviews)

	v1.GET("/wallet", s.wallet)
	v1.GET("/wallet/transactions", s.walletTransactions)
	v1.GET("/users/:id/review-stats", s.reviewStats)
	if d.Users != nil {
		v1.GET("/me", d.Users.Me)
		v1.GET("/users/:id", d.Users.GetPublicProfile)
	}

	adm := v1.Group("/admin", mware.AdminGuard)
	adm.POST("/jobs/sweep", s.sweepJobs)
	if d.Admin != nil {
		adm.GET("/stats", d.Admin.Stats)
		adm.GET("/wallets/audit", d.Admin.AuditAll)
		adm.POST("/wallets/:user_id", d.Admin.OpenWallet)
		adm.POST("/wallets/:user_id/credit", d.Admin.CreditWallet)
		adm.GET("/wallets/:user_id/transactions", d.Admin.WalletTransactions)
		adm.GET("/wallets/:user_id/audit", d.Admin.AuditWallet)
	}
	return e
}

// requestContext carries the request id into the slog context.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		req := c.Request()
		c.SetRequest(req.WithContext(logger.WithRequestID(req.Context(), id)))
		return next(c)
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			switch {
			case v.Status >= http.StatusInternalServerError:
				level = slog.LevelError
			case v.Status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			ctx := c.Request().Context()
			logger.FromContext(ctx).LogAttrs(ctx, level, "request", attrs...)
			return nil
		},
	})
}

func actor(c echo.Context) marketplace.Actor {
	id, _ := c.Get("user_id").(string)
	return marketplace.Actor{UserID: id, Roles: mware.Roles(c)}
}

// bind decodes and validates a request body.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return err
	}
	return c.Validate(v)
}
