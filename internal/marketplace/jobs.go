package marketplace

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/alerts"
	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
	"github.com/sudo-init-do/workerlly/internal/taskid"
)

const taskIDAttempts = 3

// CreateJob posts a new pending job for a provider.
func (e *Engine) CreateJob(ctx context.Context, a Actor, in CreateJobInput) (job *models.Job, err error) {
	const op = "marketplace.CreateJob"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleProvider); err != nil {
		return nil, err
	}
	if in.Title == "" {
		return nil, apperr.New(apperr.InvalidInput, op, "title is required")
	}
	if !in.HourlyRate.IsPositive() {
		return nil, apperr.New(apperr.InvalidInput, op, "hourly rate must be positive")
	}

	for attempt := 1; ; attempt++ {
		now := e.clock()
		job = &models.Job{
			ID:             uuid.New().String(),
			ProviderID:     a.UserID,
			CategoryID:     in.CategoryID,
			SubCategoryIDs: append([]string{}, in.SubCategoryIDs...),
			Title:          in.Title,
			Description:    in.Description,
			HourlyRate:     in.HourlyRate.Round(2),
			CurrentRate:    in.HourlyRate.Round(2),
			RateHistory:    []models.RateChange{{Rate: in.HourlyRate.Round(2), ChangedAt: now}},
			Status:         models.JobPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err = e.store.InTx(ctx, func(q store.Queries) error {
			if err := e.checkCatalogue(ctx, q, op, a, in, job); err != nil {
				return err
			}
			prefix := taskid.Prefix(now)
			seq, err := q.MaxTaskSequence(ctx, prefix)
			if err != nil {
				return err
			}
			job.TaskID = taskid.Format(prefix, seq+1)
			if err := q.InsertJob(ctx, job); err != nil {
				return err
			}
			return updateStats(ctx, q, a.UserID, now, func(s *models.UserStats) { s.TotalJobsPosted++ })
		})
		if errors.Is(err, store.ErrDuplicate) && attempt < taskIDAttempts {
			continue
		}
		break
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Wrap(apperr.Conflict, op, err)
		}
		return nil, classify(op, err)
	}

	e.notify(ctx, alerts.Event{
		Type:   alerts.TaskJobNew,
		JobID:  job.ID,
		TaskID: job.TaskID,
		Title:  "New job near you",
		Body:   job.Title,
		Data:   map[string]string{"category_id": job.CategoryID, "city_id": job.Address.CityID},
	})
	return job.ForViewer(a.UserID), nil
}

// checkCatalogue validates category, address, city and rate band, and snapshots the
// address onto job.
func (e *Engine) checkCatalogue(ctx context.Context, q store.Queries, op string, a Actor, in CreateJobInput, job *models.Job) error {
	cat, err := q.GetCategory(ctx, in.CategoryID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, op, "category not found")
	}
	if err != nil {
		return err
	}
	if !cat.IsActive {
		return apperr.New(apperr.InvalidInput, op, "category is not active")
	}
	for _, id := range in.SubCategoryIDs {
		sub, err := q.GetCategory(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, op, "sub-category not found")
		}
		if err != nil {
			return err
		}
		if sub.ParentID != cat.ID {
			return apperr.New(apperr.InvalidInput, op, "sub-category does not belong to the category")
		}
	}

	addr, err := q.GetAddress(ctx, in.AddressID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, op, "address not found")
	}
	if err != nil {
		return err
	}
	if addr.UserID != a.UserID {
		return apperr.New(apperr.Forbidden, op, "address belongs to another user")
	}
	city, err := q.GetCity(ctx, addr.CityID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, op, "city not found")
	}
	if err != nil {
		return err
	}
	if !city.IsActive {
		return apperr.New(apperr.InvalidInput, op, "city is not active")
	}
	if err := checkBand(ctx, q, op, city.ID, cat.ID, in.HourlyRate); err != nil {
		return err
	}
	job.Address = addr.Snapshot()
	return nil
}

// checkBand enforces the city/category rate band when one is configured.
func checkBand(ctx context.Context, q store.Queries, op, cityID, categoryID string, rate decimal.Decimal) error {
	band, err := q.GetRate(ctx, cityID, categoryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if band.MinHourlyRate.IsPositive() && rate.LessThan(band.MinHourlyRate) {
		return apperr.New(apperr.InvalidInput, op, "hourly rate is below the minimum of "+band.MinHourlyRate.StringFixed(2))
	}
	if band.MaxHourlyRate.IsPositive() && rate.GreaterThan(band.MaxHourlyRate) {
		return apperr.New(apperr.InvalidInput, op, "hourly rate is above the maximum of "+band.MaxHourlyRate.StringFixed(2))
	}
	return nil
}

// UpdateHourlyRate changes the offered rate of a pending job.
func (e *Engine) UpdateHourlyRate(ctx context.Context, a Actor, jobID string, rate decimal.Decimal) (job *models.Job, err error) {
	const op = "marketplace.UpdateHourlyRate"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleProvider); err != nil {
		return nil, err
	}
	if !rate.IsPositive() {
		return nil, apperr.New(apperr.InvalidInput, op, "hourly rate must be positive")
	}
	rate = rate.Round(2)

	var bidders []string
	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := ownedJob(ctx, q, op, a, jobID)
		if err != nil {
			return err
		}
		if j.Status != models.JobPending || j.AssignedTo != nil {
			return apperr.New(apperr.InvalidState, op, "rate can only change while the job is pending")
		}
		if err := checkBand(ctx, q, op, j.Address.CityID, j.CategoryID, rate); err != nil {
			return err
		}
		now := e.clock()
		j.CurrentRate = rate
		j.RateHistory = append(j.RateHistory, models.RateChange{Rate: rate, ChangedAt: now})
		j.UpdatedAt = now
		if err := q.UpdateJob(ctx, j); err != nil {
			return err
		}
		bids, err := q.ListBidsForJob(ctx, jobID)
		if err != nil {
			return err
		}
		for _, b := range bids {
			if b.Status == models.BidPending {
				bidders = append(bidders, b.SeekerID)
			}
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskJobRateUpdated,
		JobID:      job.ID,
		TaskID:     job.TaskID,
		Recipients: bidders,
		Title:      "Hourly rate updated",
		Body:       job.Title + " now pays " + rate.StringFixed(2) + " per hour",
	})
	return job.ForViewer(a.UserID), nil
}

// GetJob returns a job to one of its participants. Seekers may also view pending jobs
// they could bid on.
func (e *Engine) GetJob(ctx context.Context, a Actor, jobID string) (*models.Job, error) {
	const op = "marketplace.GetJob"
	j, err := e.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, op, "job not found")
	}
	if err != nil {
		return nil, classify(op, err)
	}
	switch {
	case j.IsParticipant(a.UserID), a.Has(models.RoleAdmin):
	case j.Status == models.JobPending && a.Has(models.RoleSeeker):
	default:
		return nil, apperr.New(apperr.Forbidden, op, "not a participant in this job")
	}
	return j.ForViewer(a.UserID), nil
}

// ListJobs lists the caller's jobs: posted ones for a provider, assigned ones for a
// seeker. as picks the side for users holding both roles.
func (e *Engine) ListJobs(ctx context.Context, a Actor, as models.Role, statuses []models.JobStatus, limit int) ([]*models.Job, error) {
	const op = "marketplace.ListJobs"
	if as == "" {
		as = models.RoleSeeker
		if a.Has(models.RoleProvider) {
			as = models.RoleProvider
		}
	}
	if err := requireRole(op, a, as); err != nil {
		return nil, err
	}
	f := store.JobFilter{Statuses: statuses, Limit: limit}
	switch as {
	case models.RoleProvider:
		f.ProviderID = a.UserID
	case models.RoleSeeker:
		f.AssignedTo = a.UserID
	default:
		return nil, apperr.New(apperr.InvalidInput, op, "jobs are listed as provider or seeker")
	}
	jobs, err := e.store.ListJobs(ctx, f)
	if err != nil {
		return nil, classify(op, err)
	}
	out := make([]*models.Job, 0, len(jobs))
	for i := range jobs {
		out = append(out, jobs[i].ForViewer(a.UserID))
	}
	return out, nil
}
