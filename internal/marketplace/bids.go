package marketplace

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/alerts"
	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

// PlaceBid offers to do a pending job at amount per hour.
func (e *Engine) PlaceBid(ctx context.Context, a Actor, jobID string, amount decimal.Decimal) (bid *models.Bid, err error) {
	const op = "marketplace.PlaceBid"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleSeeker); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.InvalidInput, op, "bid amount must be positive")
	}
	amount = amount.Round(2)
	lead, err := e.fees.LeadFee(amount)
	if err != nil {
		return nil, err
	}

	var job *models.Job
	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := lockJob(ctx, q, op, jobID)
		if err != nil {
			return err
		}
		if j.ProviderID == a.UserID {
			return apperr.New(apperr.Forbidden, op, "cannot bid on your own job")
		}
		if j.Status != models.JobPending || j.AssignedTo != nil {
			return apperr.New(apperr.InvalidState, op, "job is no longer open for bids")
		}
		st, err := q.GetUserStats(ctx, a.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.UnknownUser, op, "no wallet for user")
		}
		if err != nil {
			return err
		}
		if st.CurrentStatus != models.SeekerFree {
			return apperr.New(apperr.InvalidState, op, "go online before bidding")
		}
		if st.WalletBalance.LessThan(lead) {
			return apperr.New(apperr.InsufficientFunds, op, "wallet balance below the lead fee of "+lead.StringFixed(2))
		}
		if _, err := q.FindPendingBid(ctx, jobID, a.UserID); err == nil {
			return apperr.New(apperr.Conflict, op, "you already have a pending bid on this job")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := e.clock()
		bid = &models.Bid{
			ID:        uuid.New().String(),
			JobID:     jobID,
			SeekerID:  a.UserID,
			Amount:    amount,
			Status:    models.BidPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := q.InsertBid(ctx, bid); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.New(apperr.Conflict, op, "you already have a pending bid on this job")
			}
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskBidNew,
		JobID:      job.ID,
		TaskID:     job.TaskID,
		Recipients: []string{job.ProviderID},
		Title:      "New bid on your job",
		Body:       amount.StringFixed(2) + " per hour for " + job.Title,
		Data:       map[string]string{"bid_id": bid.ID},
	})
	return bid, nil
}

// WithdrawBid takes back a pending bid.
func (e *Engine) WithdrawBid(ctx context.Context, a Actor, bidID string) (err error) {
	const op = "marketplace.WithdrawBid"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleSeeker); err != nil {
		return err
	}
	return e.tx(ctx, op, func(q store.Queries) error {
		b, err := q.GetBid(ctx, bidID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, op, "bid not found")
		}
		if err != nil {
			return err
		}
		if b.SeekerID != a.UserID {
			return apperr.New(apperr.Forbidden, op, "not your bid")
		}
		err = q.SetBidStatus(ctx, bidID, models.BidPending, models.BidWithdrawn, e.clock())
		if errors.Is(err, store.ErrConflict) {
			return apperr.New(apperr.InvalidState, op, "only pending bids can be withdrawn")
		}
		return err
	})
}

// ListBids shows the job owner every bid with the bidder's profile and distance.
func (e *Engine) ListBids(ctx context.Context, a Actor, jobID string) ([]BidView, error) {
	const op = "marketplace.ListBids"
	if err := requireRole(op, a, models.RoleProvider); err != nil {
		return nil, err
	}
	job, err := e.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, op, "job not found")
	}
	if err != nil {
		return nil, classify(op, err)
	}
	if job.ProviderID != a.UserID {
		return nil, apperr.New(apperr.Forbidden, op, "not your job")
	}
	bids, err := e.store.ListBidsForJob(ctx, jobID)
	if err != nil {
		return nil, classify(op, err)
	}

	catNames := map[string]string{}
	categoryName := func(id string) string {
		if id == "" {
			return ""
		}
		if n, ok := catNames[id]; ok {
			return n
		}
		n := ""
		if c, err := e.store.GetCategory(ctx, id); err == nil {
			n = c.Name
		}
		catNames[id] = n
		return n
	}

	out := make([]BidView, 0, len(bids))
	for _, b := range bids {
		v := BidView{Bid: b}
		if u, err := e.store.GetUser(ctx, b.SeekerID); err == nil {
			v.SeekerName = u.Name
		}
		catID := job.CategoryID
		if st, err := e.store.GetUserStats(ctx, b.SeekerID); err == nil {
			v.Rating = st.AvgRatingAsSeeker()
			v.TotalRatings = st.RatingCountAsSeeker
			v.Location = st.LastLocation
			if st.SeekerCategory != "" {
				catID = st.SeekerCategory
			}
			if st.LastLocation != nil {
				v.ETAMinutes = geo.EstimateMinutes(*st.LastLocation, job.Address.Location)
			}
		}
		v.CategoryName = categoryName(catID)
		out = append(out, v)
	}
	return out, nil
}

// AcceptBid assigns the job to the bid's seeker and charges them the lead fee, all in
// one transaction. Repeating an accept that already succeeded returns the job as is.
func (e *Engine) AcceptBid(ctx context.Context, a Actor, jobID, bidID string) (job *models.Job, err error) {
	const op = "marketplace.AcceptBid"
	defer e.observe(op, &err)()

	if err := requireRole(op, a, models.RoleProvider); err != nil {
		return nil, err
	}

	var replay bool
	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := ownedJob(ctx, q, op, a, jobID)
		if err != nil {
			return err
		}
		if j.AcceptedBidID != nil && *j.AcceptedBidID == bidID && j.Status != models.JobCancelled {
			job, replay = j, true
			return nil
		}
		if j.Status == models.JobCancelled || j.Status == models.JobRejected {
			return apperr.New(apperr.InvalidState, op, "job is closed")
		}
		if j.Status != models.JobPending || j.AssignedTo != nil {
			return apperr.New(apperr.Conflict, op, "job is already assigned")
		}

		b, err := q.GetBid(ctx, bidID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, op, "bid not found")
		}
		if err != nil {
			return err
		}
		if b.JobID != jobID {
			return apperr.New(apperr.InvalidInput, op, "bid does not belong to this job")
		}
		if b.Status != models.BidPending {
			return apperr.New(apperr.InvalidState, op, "bid is not pending")
		}

		seeker, err := q.GetUserStats(ctx, b.SeekerID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.UnknownUser, op, "no wallet for seeker")
		}
		if err != nil {
			return err
		}
		if seeker.CurrentStatus == models.SeekerBusy {
			return apperr.New(apperr.Conflict, op, "seeker is already on another job")
		}

		code, err := e.otp.Issue(ctx)
		if err != nil {
			return apperr.Wrap(apperr.DependencyFailure, op, err)
		}

		now := e.clock()
		if err := q.SetBidStatus(ctx, bidID, models.BidPending, models.BidAccepted, now); err != nil {
			return err
		}
		if _, err := q.RejectOtherBids(ctx, jobID, b.SeekerID, bidID, now); err != nil {
			return err
		}

		j.Status = models.JobOngoing
		j.AssignedTo = &b.SeekerID
		j.AcceptedBidID = &b.ID
		j.CurrentRate = b.Amount
		j.BookedAt = &now
		j.StartOTP = &models.OTP{Code: code, IssuedAt: now}
		if seeker.LastLocation != nil {
			j.EstimatedMinutes = geo.EstimateMinutes(*seeker.LastLocation, j.Address.Location)
		}
		j.UpdatedAt = now
		if err := q.UpdateJob(ctx, j); err != nil {
			return err
		}

		lead, err := e.fees.LeadFee(b.Amount)
		if err != nil {
			return err
		}
		if lead.IsPositive() {
			if _, err := e.ledger.DebitIn(ctx, q, b.SeekerID, lead, models.ReasonJobLead, jobID); err != nil {
				return err
			}
		}
		err = updateStats(ctx, q, b.SeekerID, now, func(s *models.UserStats) {
			s.CurrentStatus = models.SeekerBusy
			s.CurrentJobID = &j.ID
		})
		if err != nil {
			return err
		}
		if err := q.UpsertActiveLocation(ctx, &models.ActiveJobLocation{
			JobID:            j.ID,
			SeekerID:         b.SeekerID,
			ProviderID:       j.ProviderID,
			SeekerLocation:   seeker.LastLocation,
			ProviderLocation: j.Address.Location,
			Status:           models.LocationActive,
			LastUpdated:      now,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !replay {
		e.notify(ctx, alerts.Event{
			Type:       alerts.TaskBidAccepted,
			JobID:      job.ID,
			TaskID:     job.TaskID,
			Recipients: []string{*job.AssignedTo},
			Title:      "Your bid was accepted",
			Body:       job.Title,
		})
	}
	return job.ForViewer(a.UserID), nil
}
