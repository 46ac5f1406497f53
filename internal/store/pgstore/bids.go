package pgstore

import (
	"context"
	"time"

	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

const bidColumns = `id, job_id, seeker_id, amount, status, created_at, updated_at`

func scanBid(row scanner) (*models.Bid, error) {
	var b models.Bid
	var status string
	if err := row.Scan(&b.ID, &b.JobID, &b.SeekerID, &b.Amount, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	b.Status = models.BidStatus(status)
	return &b, nil
}

func (q *queries) InsertBid(ctx context.Context, b *models.Bid) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO bids (`+bidColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.JobID, b.SeekerID, b.Amount, string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
	return mapErr(err)
}

func (q *queries) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	return scanBid(q.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
}

func (q *queries) ListBidsForJob(ctx context.Context, jobID string) ([]models.Bid, error) {
	rows, err := q.q.Query(ctx, `SELECT `+bidColumns+` FROM bids WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (q *queries) FindPendingBid(ctx context.Context, jobID, seekerID string) (*models.Bid, error) {
	return scanBid(q.q.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE job_id = $1 AND seeker_id = $2 AND status = 'pending'`,
		jobID, seekerID,
	))
}

func (q *queries) SetBidStatus(ctx context.Context, id string, from, to models.BidStatus, at time.Time) error {
	tag, err := q.q.Exec(ctx,
		`UPDATE bids SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at,
	)
	if err := casResult(tag, err); err != nil {
		if _, getErr := q.GetBid(ctx, id); getErr == store.ErrNotFound {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (q *queries) RejectOtherBids(ctx context.Context, jobID, seekerID, keepBidID string, at time.Time) (int, error) {
	tag, err := q.q.Exec(ctx, `
		UPDATE bids SET status = 'rejected', updated_at = $4
		WHERE status = 'pending' AND id <> $3 AND (job_id = $1 OR seeker_id = $2)`,
		jobID, seekerID, keepBidID, at,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
