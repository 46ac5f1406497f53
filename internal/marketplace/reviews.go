package marketplace

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/sudo-init-do/workerlly/internal/alerts"
	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

const (
	maxReviewText = 1000
	recentReviews = 10
)

// SubmitReview lets each side of a paid job rate the other once.
func (e *Engine) SubmitReview(ctx context.Context, a Actor, jobID string, rating int, text string) (review *models.Review, err error) {
	const op = "marketplace.SubmitReview"
	defer e.observe(op, &err)()

	text = strings.TrimSpace(text)
	if rating < 1 || rating > 5 {
		return nil, apperr.New(apperr.InvalidInput, op, "rating must be between 1 and 5")
	}
	if text == "" {
		return nil, apperr.New(apperr.InvalidInput, op, "review text is required")
	}
	if len(text) > maxReviewText {
		return nil, apperr.New(apperr.InvalidInput, op, "review text is too long")
	}

	err = e.tx(ctx, op, func(q store.Queries) error {
		j, err := lockJob(ctx, q, op, jobID)
		if err != nil {
			return err
		}
		if !j.IsParticipant(a.UserID) {
			return apperr.New(apperr.Forbidden, op, "not a participant in this job")
		}
		if j.Status != models.JobPaid {
			return apperr.New(apperr.InvalidState, op, "reviews open once the job is paid")
		}

		role, reviewee, mark := models.RoleProvider, *j.AssignedTo, &j.ProviderReview
		if j.ProviderID != a.UserID {
			role, reviewee, mark = models.RoleSeeker, j.ProviderID, &j.SeekerReview
		}
		if *mark != nil && (*mark).Done {
			return apperr.New(apperr.Conflict, op, "you already reviewed this job")
		}

		now := e.clock()
		review = &models.Review{
			ID:           uuid.New().String(),
			JobID:        j.ID,
			ReviewerID:   a.UserID,
			RevieweeID:   reviewee,
			ReviewerRole: role,
			Rating:       rating,
			Text:         text,
			CreatedAt:    now,
		}
		if err := q.InsertReview(ctx, review); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.New(apperr.Conflict, op, "you already reviewed this job")
			}
			return err
		}
		*mark = &models.ReviewMark{Done: true, ReviewID: &review.ID, RatedAt: &now}
		j.UpdatedAt = now
		if err := q.UpdateJob(ctx, j); err != nil {
			return err
		}
		return updateStats(ctx, q, reviewee, now, func(s *models.UserStats) {
			if role == models.RoleProvider {
				s.RatingSumAsSeeker += rating
				s.RatingCountAsSeeker++
			} else {
				s.RatingSumAsProvider += rating
				s.RatingCountAsProvider++
			}
		})
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskReviewNew,
		JobID:      jobID,
		Recipients: []string{review.RevieweeID},
		Title:      "You received a review",
		Body:       text,
	})
	return review, nil
}

func (e *Engine) ListReviewsForJob(ctx context.Context, a Actor, jobID string) ([]models.Review, error) {
	const op = "marketplace.ListReviewsForJob"
	j, err := e.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, op, "job not found")
	}
	if err != nil {
		return nil, classify(op, err)
	}
	if !j.IsParticipant(a.UserID) && !a.Has(models.RoleAdmin) {
		return nil, apperr.New(apperr.Forbidden, op, "not a participant in this job")
	}
	rs, err := e.store.ListReviewsForJob(ctx, jobID)
	if err != nil {
		return nil, classify(op, err)
	}
	return rs, nil
}

// ReviewStats is a user's public rating profile in both roles.
func (e *Engine) ReviewStats(ctx context.Context, userID string) (*ReviewStats, error) {
	const op = "marketplace.ReviewStats"
	st, err := e.store.GetUserStats(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.UnknownUser, op, "user not found")
	}
	if err != nil {
		return nil, classify(op, err)
	}
	all, err := e.store.ListReviewsForUser(ctx, userID, 0)
	if err != nil {
		return nil, classify(op, err)
	}

	out := &ReviewStats{
		UserID:       userID,
		AsSeeker:     RatingSummary{Average: st.AvgRatingAsSeeker(), TotalReviews: st.RatingCountAsSeeker},
		AsProvider:   RatingSummary{Average: st.AvgRatingAsProvider(), TotalReviews: st.RatingCountAsProvider},
		RatingCounts: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		Recent:       []models.Review{},
	}
	for i, r := range all {
		out.RatingCounts[r.Rating]++
		if i < recentReviews {
			out.Recent = append(out.Recent, r)
		}
	}
	return out, nil
}
