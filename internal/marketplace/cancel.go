package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sudo-init-do/workerlly/internal/alerts"
	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/logger"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

// Cancel ends a job before work starts.
//
// A pending job is cancelled by its owner, or rejected by a seeker who bid on it.
// An assigned job may be cancelled by either participant with a reason; the seeker
// gets the lead fee back and is freed.
func (e *Engine) Cancel(ctx context.Context, a Actor, jobID, reason string) (job *models.Job, err error) {
	const op = "marketplace.Cancel"
	defer e.observe(op, &err)()

	reason = strings.TrimSpace(reason)
	var assigned bool
	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := lockJob(ctx, q, op, jobID)
		if err != nil {
			return err
		}
		now := e.clock()

		switch j.Status {
		case models.JobPending:
			switch {
			case j.ProviderID == a.UserID:
				j.Status = models.JobCancelled
				j.CancelledBy = models.RoleProvider
				if err := updateStats(ctx, q, a.UserID, now, countCancelled); err != nil {
					return err
				}
			default:
				b, err := q.FindPendingBid(ctx, jobID, a.UserID)
				if errors.Is(err, store.ErrNotFound) {
					return apperr.New(apperr.Forbidden, op, "not a participant in this job")
				}
				if err != nil {
					return err
				}
				if err := q.SetBidStatus(ctx, b.ID, models.BidPending, models.BidWithdrawn, now); err != nil {
					return err
				}
				j.Status = models.JobRejected
				j.CancelledBy = models.RoleSeeker
			}
			// Other bids stay pending. The job is closed so nothing can accept them.

		case models.JobOngoing:
			if !j.IsParticipant(a.UserID) {
				return apperr.New(apperr.Forbidden, op, "not a participant in this job")
			}
			if reason == "" {
				return apperr.New(apperr.InvalidInput, op, "a reason is required to cancel an assigned job")
			}
			if e.window > 0 && j.BookedAt != nil && now.Sub(*j.BookedAt) > e.window {
				return apperr.New(apperr.InvalidState, op, "the cancellation window has passed")
			}
			var byProvider func(*models.UserStats)
			if j.ProviderID == a.UserID {
				byProvider = countCancelled
			}
			if err := e.unassign(ctx, q, j, true, byProvider); err != nil {
				return err
			}
			j.Status = models.JobCancelled
			j.CancelledBy = models.RoleSeeker
			if byProvider != nil {
				j.CancelledBy = models.RoleProvider
			}
			assigned = true

		case models.JobCancelled, models.JobRejected:
			return apperr.New(apperr.InvalidState, op, "job is already closed")
		default:
			return apperr.New(apperr.InvalidState, op, "job can no longer be cancelled")
		}

		j.CancelReason = reason
		j.UpdatedAt = now
		if err := q.UpdateJob(ctx, j); err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	if assigned {
		e.tracker.Close(ctx, job.ID)
		other := job.ProviderID
		if other == a.UserID {
			other = *job.AssignedTo
		}
		e.notify(ctx, alerts.Event{
			Type:       alerts.TaskJobCancelled,
			JobID:      job.ID,
			TaskID:     job.TaskID,
			Recipients: []string{other},
			Title:      "Job cancelled",
			Body:       reason,
		})
	}
	return job.ForViewer(a.UserID), nil
}

const (
	reasonOverdue = "seeker did not arrive in time"
	reasonStale   = "cancelled by system"
	sweepBatch    = 500
)

// CancelOverdue lets the owner drop an assigned seeker who has not arrived once the
// overdue window since booking has passed. The seeker's lead fee is not refunded.
func (e *Engine) CancelOverdue(ctx context.Context, a Actor, jobID string) (job *models.Job, err error) {
	const op = "marketplace.CancelOverdue"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleProvider); err != nil {
		return nil, err
	}
	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := ownedJob(ctx, q, op, a, jobID)
		if err != nil {
			return err
		}
		if j.Status != models.JobOngoing {
			return apperr.New(apperr.InvalidState, op, "only an assigned job can be cancelled for no arrival")
		}
		if j.IsReached {
			return apperr.New(apperr.InvalidState, op, "the seeker has already arrived")
		}
		now := e.clock()
		if j.BookedAt == nil || now.Sub(*j.BookedAt) < e.overdue {
			return apperr.New(apperr.InvalidState, op,
				fmt.Sprintf("job cannot be cancelled before %d minutes from booking", int(e.overdue.Minutes())))
		}
		if err := e.unassign(ctx, q, j, false, countCancelled); err != nil {
			return err
		}
		j.Status = models.JobCancelled
		j.CancelledBy = models.RoleProvider
		j.CancelReason = reasonOverdue
		j.UpdatedAt = now
		if err := q.UpdateJob(ctx, j); err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.tracker.Close(ctx, job.ID)
	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskJobCancelled,
		JobID:      job.ID,
		TaskID:     job.TaskID,
		Recipients: []string{*job.AssignedTo},
		Title:      "Job cancelled",
		Body:       reasonOverdue,
	})
	return job.ForViewer(a.UserID), nil
}

// SweepStale cancels pending and assigned jobs older than the stale age. Assigned
// seekers are freed and their tracking closed; no lead fee is refunded. A job that
// fails to close is logged and left for the next sweep.
func (e *Engine) SweepStale(ctx context.Context) (n int, err error) {
	const op = "marketplace.SweepStale"
	defer e.observe(op, &err)()

	log := logger.FromContext(ctx).With("component", "job_sweeper")
	jobs, err := e.store.ListJobs(ctx, store.JobFilter{
		Statuses:      []models.JobStatus{models.JobPending, models.JobOngoing},
		CreatedBefore: e.clock().Add(-e.stale),
		Limit:         sweepBatch,
	})
	if err != nil {
		return 0, classify(op, err)
	}

	for _, stale := range jobs {
		var closed, assigned bool
		err := e.tx(ctx, op, func(q store.Queries) error {
			j, err := lockJob(ctx, q, op, stale.ID)
			if err != nil {
				return err
			}
			switch j.Status {
			case models.JobPending:
			case models.JobOngoing:
				if err := e.unassign(ctx, q, j, false, nil); err != nil {
					return err
				}
				assigned = true
			default:
				return nil
			}
			j.Status = models.JobCancelled
			j.CancelledBy = models.RoleSystem
			j.CancelReason = reasonStale
			j.UpdatedAt = e.clock()
			if err := q.UpdateJob(ctx, j); err != nil {
				return err
			}
			closed = true
			return nil
		})
		if err != nil {
			log.Error("stale job not cancelled", "job_id", stale.ID, "error", err)
			continue
		}
		if !closed {
			continue
		}
		if assigned {
			e.tracker.Close(ctx, stale.ID)
		}
		n++
		log.Info("stale job cancelled", "job_id", stale.ID, "task_id", stale.TaskID, "previous_status", string(stale.Status))
	}
	return n, nil
}

// unassign undoes an acceptance: the accepted bid is cancelled, tracking is closed and
// the seeker is freed. With refund set the lead fee charged for this job goes back to
// the seeker. A non-nil provider func is applied to the owner's stats in the same
// transaction.
func (e *Engine) unassign(ctx context.Context, q store.Queries, j *models.Job, refund bool, provider func(*models.UserStats)) error {
	now := e.clock()
	seekerID := *j.AssignedTo
	if provider != nil {
		if err := lockStats(ctx, q, seekerID, j.ProviderID); err != nil {
			return err
		}
	}
	if j.AcceptedBidID != nil {
		err := q.SetBidStatus(ctx, *j.AcceptedBidID, models.BidAccepted, models.BidCancelled, now)
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	if err := q.CloseActiveLocation(ctx, j.ID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if refund {
		charge, err := q.FindJobTransaction(ctx, seekerID, j.ID, models.TxDebit, models.ReasonJobLead)
		switch {
		case err == nil:
			if _, err := e.ledger.CreditIn(ctx, q, seekerID, charge.Amount, models.ReasonLeadRefund, j.ID); err != nil {
				return err
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
	}

	err := updateStats(ctx, q, seekerID, now, func(s *models.UserStats) {
		if s.CurrentJobID != nil && *s.CurrentJobID == j.ID {
			releaseSeeker(s)
		}
	})
	if err != nil || provider == nil {
		return err
	}
	return updateStats(ctx, q, j.ProviderID, now, provider)
}
