package marketplace

import (
	"context"

	"github.com/sudo-init-do/workerlly/internal/alerts"
	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

// Pay records that the provider settled the job total with the seeker, in cash or
// online. No wallet balance moves; the amount only feeds the earnings rollups.
func (e *Engine) Pay(ctx context.Context, a Actor, jobID string, method models.PaymentMethod) (job *models.Job, err error) {
	const op = "marketplace.Pay"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleSeeker); err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, apperr.New(apperr.InvalidInput, op, "payment method must be cash or online")
	}
	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := assignedJob(ctx, q, op, a, jobID)
		if err != nil {
			return err
		}
		if j.Status == models.JobPaid || (j.Payment != nil && j.Payment.Paid) {
			return apperr.New(apperr.AlreadyPaid, op, "job is already paid")
		}
		if j.Status != models.JobCompleted {
			return apperr.New(apperr.InvalidState, op, "job is not completed")
		}
		now := e.clock()
		j.Payment = &models.Payment{Paid: true, Method: method, PaidAt: now}
		j.Status = models.JobPaid
		j.ProviderReview = &models.ReviewMark{}
		j.SeekerReview = &models.ReviewMark{}
		j.UpdatedAt = now
		if err := q.UpdateJob(ctx, j); err != nil {
			return err
		}
		total := j.TotalAmount
		err = updateStatsPair(ctx, q, now,
			a.UserID, func(s *models.UserStats) { s.TotalEarned = s.TotalEarned.Add(total) },
			j.ProviderID, func(s *models.UserStats) { s.TotalSpent = s.TotalSpent.Add(total) },
		)
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskJobPaid,
		JobID:      job.ID,
		TaskID:     job.TaskID,
		Recipients: []string{job.ProviderID},
		Title:      "Payment recorded",
		Body:       job.TotalAmount.StringFixed(2) + " via " + string(method),
	})
	return job.ForViewer(a.UserID), nil
}
