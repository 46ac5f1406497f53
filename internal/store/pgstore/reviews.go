package pgstore

import (
	"context"

	"github.com/sudo-init-do/workerlly/internal/models"
)

const reviewColumns = `id, job_id, reviewer_id, reviewee_id, reviewer_role, rating, review_text, created_at`

func (q *queries) InsertReview(ctx context.Context, r *models.Review) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.JobID, r.ReviewerID, r.RevieweeID, string(r.ReviewerRole), r.Rating, r.Text, r.CreatedAt,
	)
	return mapErr(err)
}

func (q *queries) listReviews(ctx context.Context, sql string, args ...any) ([]models.Review, error) {
	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Review
	for rows.Next() {
		var r models.Review
		var role string
		if err := rows.Scan(&r.ID, &r.JobID, &r.ReviewerID, &r.RevieweeID, &role, &r.Rating, &r.Text, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ReviewerRole = models.Role(role)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) ListReviewsForJob(ctx context.Context, jobID string) ([]models.Review, error) {
	return q.listReviews(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE job_id = $1 ORDER BY created_at`, jobID)
}

func (q *queries) ListReviewsForUser(ctx context.Context, revieweeID string, limit int) ([]models.Review, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.listReviews(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE reviewee_id = $1 ORDER BY created_at DESC LIMIT $2`,
		revieweeID, limit)
}
