// Package marketplace runs the job lifecycle: posting, bidding, assignment, on-site
// verification, completion, payment, cancellation and reviews.
package marketplace

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/sudo-init-do/workerlly/internal/alerts"
	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/fees"
	"github.com/sudo-init-do/workerlly/internal/logger"
	"github.com/sudo-init-do/workerlly/internal/metrics"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/otp"
	"github.com/sudo-init-do/workerlly/internal/store"
	"github.com/sudo-init-do/workerlly/internal/wallet"
)

// Tracker ends live-location tracking for a job.
type Tracker interface {
	Close(ctx context.Context, jobID string)
}

type nopTracker struct{}

func (nopTracker) Close(context.Context, string) {}

const (
	DefaultOverdueAfter = 45 * time.Minute
	DefaultStaleAfter   = 24 * time.Hour
)

type Deps struct {
	Store    store.Store
	Fees     *fees.Calculator
	Ledger   *wallet.Ledger
	OTP      otp.Issuer
	Notifier alerts.Notifier
	Tracker  Tracker
	Metrics  *metrics.Collector

	// CancelWindow limits how long after assignment a job may still be cancelled.
	// Zero means no limit.
	CancelWindow time.Duration
	// OverdueAfter is how long after booking a provider may drop a seeker who has
	// not arrived. Zero uses DefaultOverdueAfter.
	OverdueAfter time.Duration
	// StaleAfter is the age at which SweepStale cancels unfinished jobs. Zero uses
	// DefaultStaleAfter.
	StaleAfter time.Duration
	Now        func() time.Time
}

type Engine struct {
	store    store.Store
	fees     *fees.Calculator
	ledger   *wallet.Ledger
	otp      otp.Issuer
	notifier alerts.Notifier
	tracker  Tracker
	metrics  *metrics.Collector
	window   time.Duration
	overdue  time.Duration
	stale    time.Duration
	now      func() time.Time
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		store:    d.Store,
		fees:     d.Fees,
		ledger:   d.Ledger,
		otp:      d.OTP,
		notifier: d.Notifier,
		tracker:  d.Tracker,
		metrics:  d.Metrics,
		window:   d.CancelWindow,
		overdue:  d.OverdueAfter,
		stale:    d.StaleAfter,
		now:      d.Now,
	}
	if e.overdue <= 0 {
		e.overdue = DefaultOverdueAfter
	}
	if e.stale <= 0 {
		e.stale = DefaultStaleAfter
	}
	if e.otp == nil {
		e.otp = otp.Random{}
	}
	if e.notifier == nil {
		e.notifier = alerts.Nop{}
	}
	if e.tracker == nil {
		e.tracker = nopTracker{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

// observe starts timing op; the returned func records the outcome held in *err.
func (e *Engine) observe(op string, err *error) func() {
	started := time.Now()
	return func() {
		outcome := "ok"
		if *err != nil {
			outcome = string(apperr.KindOf(*err))
		}
		e.metrics.ObserveOp(op, outcome, started)
	}
}

// tx runs fn in a store transaction and classifies whatever comes back.
func (e *Engine) tx(ctx context.Context, op string, fn func(q store.Queries) error) error {
	return classify(op, e.store.InTx(ctx, fn))
}

// notify is fire-and-forget; a failed enqueue never fails the caller.
func (e *Engine) notify(ctx context.Context, ev alerts.Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = e.clock()
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		logger.FromContext(ctx).Warn("alert not queued", "type", ev.Type, "job_id", ev.JobID, "error", err)
	}
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return apperr.Wrap(apperr.Conflict, op, err)
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, op, err)
	}
	return apperr.Wrap(apperr.Internal, op, err)
}

func requireRole(op string, a Actor, r models.Role) error {
	if !a.Has(r) {
		return apperr.New(apperr.Forbidden, op, "requires role "+string(r))
	}
	return nil
}

// lockJob loads a job for update, mapping a miss to NotFound.
func lockJob(ctx context.Context, q store.Queries, op, id string) (*models.Job, error) {
	j, err := q.LockJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, op, "job not found")
	}
	return j, err
}

func ownedJob(ctx context.Context, q store.Queries, op string, a Actor, id string) (*models.Job, error) {
	j, err := lockJob(ctx, q, op, id)
	if err != nil {
		return nil, err
	}
	if j.ProviderID != a.UserID {
		return nil, apperr.New(apperr.Forbidden, op, "not your job")
	}
	return j, nil
}

func assignedJob(ctx context.Context, q store.Queries, op string, a Actor, id string) (*models.Job, error) {
	j, err := lockJob(ctx, q, op, id)
	if err != nil {
		return nil, err
	}
	if !j.IsAssignedTo(a.UserID) {
		return nil, apperr.New(apperr.Forbidden, op, "job is not assigned to you")
	}
	return j, nil
}

// updateStats applies fn to a user's stats row, creating the row when the user has none.
func updateStats(ctx context.Context, q store.Queries, userID string, now time.Time, fn func(s *models.UserStats)) error {
	s, err := q.LockUserStats(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		s = &models.UserStats{UserID: userID, CurrentStatus: models.SeekerOffline}
		fn(s)
		s.UpdatedAt = now
		return q.InsertUserStats(ctx, s)
	}
	if err != nil {
		return err
	}
	fn(s)
	s.UpdatedAt = now
	return q.UpdateUserStats(ctx, s)
}

// lockStats takes the stats row locks for ids in user_id order. Later reads of those
// rows in the same transaction find the locks already held, so two transactions over
// the same pair of users cannot deadlock.
func lockStats(ctx context.Context, q store.Queries, ids ...string) error {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	for _, id := range slices.Compact(ids) {
		if _, err := q.LockUserStats(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

// updateStatsPair updates two users' stats with the locks taken in user_id order.
func updateStatsPair(ctx context.Context, q store.Queries, now time.Time, a string, fa func(*models.UserStats), b string, fb func(*models.UserStats)) error {
	if err := lockStats(ctx, q, a, b); err != nil {
		return err
	}
	if err := updateStats(ctx, q, a, now, fa); err != nil {
		return err
	}
	return updateStats(ctx, q, b, now, fb)
}

func countCancelled(s *models.UserStats) { s.TotalJobsCancelled++ }

// releaseSeeker frees a seeker whose current job just ended.
func releaseSeeker(s *models.UserStats) {
	if s.CurrentStatus == models.SeekerBusy {
		s.CurrentStatus = models.SeekerFree
	}
	s.CurrentJobID = nil
}
