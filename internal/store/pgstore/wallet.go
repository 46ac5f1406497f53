package pgstore

import (
	"context"

	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/models"
)

const statsColumns = `user_id, wallet_balance, total_jobs_posted, total_jobs_done, total_jobs_cancelled, total_spent, total_earned,
	total_hours_worked, rating_sum_as_seeker, rating_count_as_seeker, rating_sum_as_provider,
	rating_count_as_provider, current_status, current_job_id, seeker_city_id, seeker_category_id,
	last_lat, last_lon, updated_at, version`

func scanStats(row scanner) (*models.UserStats, error) {
	var s models.UserStats
	var status string
	var lat, lon *float64
	err := row.Scan(&s.UserID, &s.WalletBalance, &s.TotalJobsPosted, &s.TotalJobsDone, &s.TotalJobsCancelled, &s.TotalSpent, &s.TotalEarned,
		&s.TotalHoursWorked, &s.RatingSumAsSeeker, &s.RatingCountAsSeeker, &s.RatingSumAsProvider,
		&s.RatingCountAsProvider, &status, &s.CurrentJobID, &s.SeekerCityID, &s.SeekerCategory,
		&lat, &lon, &s.UpdatedAt, &s.Version)
	if err != nil {
		return nil, mapErr(err)
	}
	s.CurrentStatus = models.SeekerStatus(status)
	if lat != nil && lon != nil {
		s.LastLocation = &geo.Point{Lat: *lat, Lon: *lon}
	}
	return &s, nil
}

func lastLocation(s *models.UserStats) (*float64, *float64) {
	if s.LastLocation == nil {
		return nil, nil
	}
	return &s.LastLocation.Lat, &s.LastLocation.Lon
}

func (q *queries) InsertUserStats(ctx context.Context, s *models.UserStats) error {
	s.Version = 1
	lat, lon := lastLocation(s)
	_, err := q.q.Exec(ctx, `
		INSERT INTO user_stats (`+statsColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		s.UserID, s.WalletBalance, s.TotalJobsPosted, s.TotalJobsDone, s.TotalJobsCancelled, s.TotalSpent, s.TotalEarned,
		s.TotalHoursWorked, s.RatingSumAsSeeker, s.RatingCountAsSeeker, s.RatingSumAsProvider,
		s.RatingCountAsProvider, string(s.CurrentStatus), s.CurrentJobID, s.SeekerCityID, s.SeekerCategory,
		lat, lon, s.UpdatedAt, s.Version,
	)
	return mapErr(err)
}

func (q *queries) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	return scanStats(q.q.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id = $1`, userID))
}

func (q *queries) LockUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	return scanStats(q.q.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id = $1 FOR UPDATE`, userID))
}

func (q *queries) UpdateUserStats(ctx context.Context, s *models.UserStats) error {
	lat, lon := lastLocation(s)
	tag, err := q.q.Exec(ctx, `
		UPDATE user_stats SET
			wallet_balance = $3, total_jobs_posted = $4, total_jobs_done = $5, total_jobs_cancelled = $6,
			total_spent = $7, total_earned = $8, total_hours_worked = $9, rating_sum_as_seeker = $10,
			rating_count_as_seeker = $11, rating_sum_as_provider = $12, rating_count_as_provider = $13,
			current_status = $14, current_job_id = $15, seeker_city_id = $16, seeker_category_id = $17,
			last_lat = $18, last_lon = $19, updated_at = $20, version = version + 1
		WHERE user_id = $1 AND version = $2`,
		s.UserID, s.Version,
		s.WalletBalance, s.TotalJobsPosted, s.TotalJobsDone, s.TotalJobsCancelled, s.TotalSpent,
		s.TotalEarned, s.TotalHoursWorked, s.RatingSumAsSeeker,
		s.RatingCountAsSeeker, s.RatingSumAsProvider, s.RatingCountAsProvider,
		string(s.CurrentStatus), s.CurrentJobID, s.SeekerCityID, s.SeekerCategory,
		lat, lon, s.UpdatedAt,
	)
	if err := casResult(tag, err); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (q *queries) ListUserStatsIDs(ctx context.Context) ([]string, error) {
	rows, err := q.q.Query(ctx, `SELECT user_id FROM user_stats ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const txColumns = `id, user_id, amount, type, reason, job_id, created_at`

func scanTx(row scanner) (*models.WalletTransaction, error) {
	var t models.WalletTransaction
	var typ string
	if err := row.Scan(&t.ID, &t.UserID, &t.Amount, &typ, &t.Reason, &t.JobID, &t.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	t.Type = models.TxType(typ)
	return &t, nil
}

func (q *queries) InsertWalletTransaction(ctx context.Context, t *models.WalletTransaction) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO wallet_transactions (`+txColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.UserID, t.Amount, string(t.Type), t.Reason, t.JobID, t.CreatedAt,
	)
	return mapErr(err)
}

func (q *queries) ListWalletTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error) {
	rows, err := q.q.Query(ctx,
		`SELECT `+txColumns+` FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WalletTransaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (q *queries) FindJobTransaction(ctx context.Context, userID, jobID string, typ models.TxType, reason string) (*models.WalletTransaction, error) {
	return scanTx(q.q.QueryRow(ctx, `
		SELECT `+txColumns+` FROM wallet_transactions
		WHERE user_id = $1 AND job_id = $2 AND type = $3 AND reason = $4
		ORDER BY created_at DESC
		LIMIT 1`,
		userID, jobID, string(typ), reason,
	))
}
