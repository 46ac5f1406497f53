package pgstore

import (
	"context"
	"time"

	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

const jobColumns = `id, task_id, user_id, category_id, sub_category_ids, title, description, address,
	hourly_rate, current_rate, rate_history, status, assigned_to, accepted_bid_id,
	estimated_minutes, booked_at, start_otp, done_otp, is_reached, reached_at, started_at,
	done_at, billable_hours, total_amount, payment, provider_review, seeker_review,
	cancel_reason, cancelled_by, created_at, updated_at, version`

func scanJob(row scanner) (*models.Job, error) {
	var j models.Job
	var status, cancelledBy string
	err := row.Scan(
		&j.ID, &j.TaskID, &j.ProviderID, &j.CategoryID, &j.SubCategoryIDs, &j.Title, &j.Description, &j.Address,
		&j.HourlyRate, &j.CurrentRate, &j.RateHistory, &status, &j.AssignedTo, &j.AcceptedBidID,
		&j.EstimatedMinutes, &j.BookedAt, &j.StartOTP, &j.DoneOTP, &j.IsReached, &j.ReachedAt, &j.StartedAt,
		&j.DoneAt, &j.BillableHours, &j.TotalAmount, &j.Payment, &j.ProviderReview, &j.SeekerReview,
		&j.CancelReason, &cancelledBy, &j.CreatedAt, &j.UpdatedAt, &j.Version,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	j.Status = models.JobStatus(status)
	j.CancelledBy = models.Role(cancelledBy)
	return &j, nil
}

func (q *queries) InsertJob(ctx context.Context, j *models.Job) error {
	j.Version = 1
	_, err := q.q.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)`,
		j.ID, j.TaskID, j.ProviderID, j.CategoryID, nonNil(j.SubCategoryIDs), j.Title, j.Description, j.Address,
		j.HourlyRate, j.CurrentRate, j.RateHistory, string(j.Status), j.AssignedTo, j.AcceptedBidID,
		j.EstimatedMinutes, j.BookedAt, j.StartOTP, j.DoneOTP, j.IsReached, j.ReachedAt, j.StartedAt,
		j.DoneAt, j.BillableHours, j.TotalAmount, j.Payment, j.ProviderReview, j.SeekerReview,
		j.CancelReason, string(j.CancelledBy), j.CreatedAt, j.UpdatedAt, j.Version,
	)
	return mapErr(err)
}

func (q *queries) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return scanJob(q.q.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

func (q *queries) LockJob(ctx context.Context, id string) (*models.Job, error) {
	return scanJob(q.q.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
}

func (q *queries) UpdateJob(ctx context.Context, j *models.Job) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE jobs SET
			sub_category_ids = $3, title = $4, description = $5, current_rate = $6, rate_history = $7,
			status = $8, assigned_to = $9, accepted_bid_id = $10, estimated_minutes = $11, booked_at = $12,
			start_otp = $13, done_otp = $14, is_reached = $15, reached_at = $16, started_at = $17,
			done_at = $18, billable_hours = $19, total_amount = $20, payment = $21,
			provider_review = $22, seeker_review = $23, cancel_reason = $24, cancelled_by = $25,
			updated_at = $26, version = version + 1
		WHERE id = $1 AND version = $2`,
		j.ID, j.Version,
		nonNil(j.SubCategoryIDs), j.Title, j.Description, j.CurrentRate, j.RateHistory,
		string(j.Status), j.AssignedTo, j.AcceptedBidID, j.EstimatedMinutes, j.BookedAt,
		j.StartOTP, j.DoneOTP, j.IsReached, j.ReachedAt, j.StartedAt,
		j.DoneAt, j.BillableHours, j.TotalAmount, j.Payment,
		j.ProviderReview, j.SeekerReview, j.CancelReason, string(j.CancelledBy),
		j.UpdatedAt,
	)
	if err := casResult(tag, err); err != nil {
		return err
	}
	j.Version++
	return nil
}

func (q *queries) ListJobs(ctx context.Context, f store.JobFilter) ([]models.Job, error) {
	statuses := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses = append(statuses, string(s))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var before *time.Time
	if !f.CreatedBefore.IsZero() {
		before = &f.CreatedBefore
	}
	rows, err := q.q.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE ($1::text = '' OR user_id = $1)
		  AND ($2::text = '' OR assigned_to = $2)
		  AND (cardinality($3::text[]) = 0 OR status = ANY($3))
		  AND ($5::timestamptz IS NULL OR created_at < $5)
		ORDER BY created_at DESC
		LIMIT $4`,
		f.ProviderID, f.AssignedTo, statuses, limit, before,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (q *queries) MaxTaskSequence(ctx context.Context, prefix string) (int, error) {
	var n int
	err := q.q.QueryRow(ctx, `
		SELECT COALESCE(MAX(split_part(task_id, '-', 2)::int), 0)
		FROM jobs WHERE task_id LIKE $1::text || '-%'`, prefix,
	).Scan(&n)
	return n, mapErr(err)
}

func (q *queries) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := q.q.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[models.JobStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.JobStatus(status)] = n
	}
	return out, rows.Err()
}
