package marketplace

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/alerts"
	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

// MarkReached records that the assigned seeker is on site. Status stays ongoing.
func (e *Engine) MarkReached(ctx context.Context, a Actor, jobID string) (job *models.Job, err error) {
	const op = "marketplace.MarkReached"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleSeeker); err != nil {
		return nil, err
	}
	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := assignedJob(ctx, q, op, a, jobID)
		if err != nil {
			return err
		}
		if j.Status != models.JobOngoing {
			return apperr.New(apperr.InvalidState, op, "job is not ongoing")
		}
		if j.IsReached {
			return apperr.New(apperr.InvalidState, op, "already marked as reached")
		}
		now := e.clock()
		j.IsReached = true
		j.ReachedAt = &now
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
	return job.ForViewer(a.UserID), nil
}

// VerifyStartOTP starts the work once the provider enters the code the seeker reads out.
// A wrong code changes nothing.
func (e *Engine) VerifyStartOTP(ctx context.Context, a Actor, jobID, code string) (job *models.Job, err error) {
	const op = "marketplace.VerifyStartOTP"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleProvider); err != nil {
		return nil, err
	}
	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := ownedJob(ctx, q, op, a, jobID)
		if err != nil {
			return err
		}
		if j.Status != models.JobOngoing || j.StartOTP == nil {
			return apperr.New(apperr.InvalidState, op, "job is not awaiting a start code")
		}
		if code == "" || code != j.StartOTP.Code {
			return apperr.New(apperr.OtpMismatch, op, "start code does not match")
		}
		now := e.clock()
		j.StartOTP.Verified = true
		j.StartOTP.VerifiedAt = &now
		j.Status = models.JobInProgress
		j.StartedAt = &now
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

	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskJobStarted,
		JobID:      job.ID,
		TaskID:     job.TaskID,
		Recipients: []string{*job.AssignedTo},
		Title:      "Job started",
		Body:       job.Title,
	})
	return job.ForViewer(a.UserID), nil
}

// RequestCompletion issues the done code. Asking again while a code is outstanding
// returns the same code.
func (e *Engine) RequestCompletion(ctx context.Context, a Actor, jobID string) (job *models.Job, err error) {
	const op = "marketplace.RequestCompletion"
	defer e.observe(op, &err)()

	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := lockJob(ctx, q, op, jobID)
		if err != nil {
			return err
		}
		if !j.IsParticipant(a.UserID) {
			return apperr.New(apperr.Forbidden, op, "not a participant in this job")
		}
		if j.Status != models.JobInProgress {
			return apperr.New(apperr.InvalidState, op, "job is not in progress")
		}
		job = j
		if j.DoneOTP != nil && !j.DoneOTP.Verified {
			return nil
		}
		code, err := e.otp.Issue(ctx)
		if err != nil {
			return apperr.Wrap(apperr.DependencyFailure, op, err)
		}
		now := e.clock()
		j.DoneOTP = &models.OTP{Code: code, IssuedAt: now}
		j.UpdatedAt = now
		return q.UpdateJob(ctx, j)
	})
	if err != nil {
		return nil, err
	}
	return job.ForViewer(a.UserID), nil
}

// BillableHours rounds worked time up to whole hours, with a one hour minimum.
func BillableHours(started, done time.Time) int {
	h := int(math.Ceil(done.Sub(started).Hours()))
	if h < 1 {
		return 1
	}
	return h
}

// VerifyDoneOTP completes the job, bills it and frees the seeker.
func (e *Engine) VerifyDoneOTP(ctx context.Context, a Actor, jobID, code string) (job *models.Job, err error) {
	const op = "marketplace.VerifyDoneOTP"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleProvider); err != nil {
		return nil, err
	}
	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := ownedJob(ctx, q, op, a, jobID)
		if err != nil {
			return err
		}
		if j.Status != models.JobInProgress || j.DoneOTP == nil {
			return apperr.New(apperr.InvalidState, op, "completion has not been requested")
		}
		if code == "" || code != j.DoneOTP.Code {
			return apperr.New(apperr.OtpMismatch, op, "done code does not match")
		}
		now := e.clock()
		started := now
		if j.StartedAt != nil {
			started = *j.StartedAt
		}
		hours := BillableHours(started, now)

		j.DoneOTP.Verified = true
		j.DoneOTP.VerifiedAt = &now
		j.Status = models.JobCompleted
		j.DoneAt = &now
		j.BillableHours = hours
		j.TotalAmount = j.CurrentRate.Mul(decimal.NewFromInt(int64(hours))).Round(2)
		j.UpdatedAt = now
		if err := q.UpdateJob(ctx, j); err != nil {
			return err
		}
		if err := q.CloseActiveLocation(ctx, j.ID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		err = updateStats(ctx, q, *j.AssignedTo, now, func(s *models.UserStats) {
			releaseSeeker(s)
			s.TotalJobsDone++
			s.TotalHoursWorked += hours
		})
		if err != nil {
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
		Type:       alerts.TaskJobCompleted,
		JobID:      job.ID,
		TaskID:     job.TaskID,
		Recipients: []string{*job.AssignedTo},
		Title:      "Job completed",
		Body:       "Total due " + job.TotalAmount.StringFixed(2),
	})
	return job.ForViewer(a.UserID), nil
}
