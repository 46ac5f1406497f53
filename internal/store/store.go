// Package store defines the persistence contract shared by the postgres and in-memory
// implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/models"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrConflict  = errors.New("store: concurrent modification")
	ErrDuplicate = errors.New("store: duplicate")
)

// JobFilter selects jobs for listing. Exactly one of ProviderID or AssignedTo is
// normally set; an empty Statuses matches all.
type JobFilter struct {
	ProviderID string
	AssignedTo string
	Statuses   []models.JobStatus
	// CreatedBefore, when set, keeps only jobs created strictly before it.
	CreatedBefore time.Time
	Limit         int
}

type Queries interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetAddress(ctx context.Context, id string) (*models.Address, error)
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	GetCity(ctx context.Context, id string) (*models.City, error)
	GetRate(ctx context.Context, cityID, categoryID string) (*models.Rate, error)

	InsertJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	// LockJob reads a job and holds it for the rest of the transaction.
	LockJob(ctx context.Context, id string) (*models.Job, error)
	// UpdateJob writes j if its Version still matches the stored one, then bumps
	// j.Version. A stale version yields ErrConflict.
	UpdateJob(ctx context.Context, j *models.Job) error
	ListJobs(ctx context.Context, f JobFilter) ([]models.Job, error)
	MaxTaskSequence(ctx context.Context, prefix string) (int, error)
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)

	// InsertBid returns ErrDuplicate when the seeker already has a pending bid on the job.
	InsertBid(ctx context.Context, b *models.Bid) error
	GetBid(ctx context.Context, id string) (*models.Bid, error)
	ListBidsForJob(ctx context.Context, jobID string) ([]models.Bid, error)
	FindPendingBid(ctx context.Context, jobID, seekerID string) (*models.Bid, error)
	// SetBidStatus flips a bid from one status to another; ErrConflict if it was not in from.
	SetBidStatus(ctx context.Context, id string, from, to models.BidStatus, at time.Time) error
	// RejectOtherBids rejects every other pending bid on jobID and every other
	// pending bid by seekerID, returning how many changed.
	RejectOtherBids(ctx context.Context, jobID, seekerID, keepBidID string, at time.Time) (int, error)

	UpsertActiveLocation(ctx context.Context, l *models.ActiveJobLocation) error
	GetActiveLocation(ctx context.Context, jobID string) (*models.ActiveJobLocation, error)
	// UpdateSeekerLocation sets the seeker position on their active record and returns
	// the updated record; ErrNotFound when the seeker has none.
	UpdateSeekerLocation(ctx context.Context, seekerID string, p geo.Point, at time.Time) (*models.ActiveJobLocation, error)
	CloseActiveLocation(ctx context.Context, jobID string, at time.Time) error

	InsertUserStats(ctx context.Context, s *models.UserStats) error
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
	LockUserStats(ctx context.Context, userID string) (*models.UserStats, error)
	// UpdateUserStats is a version-checked write like UpdateJob.
	UpdateUserStats(ctx context.Context, s *models.UserStats) error
	ListUserStatsIDs(ctx context.Context) ([]string, error)

	InsertWalletTransaction(ctx context.Context, t *models.WalletTransaction) error
	ListWalletTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error)
	// FindJobTransaction returns the most recent transaction of typ for the user and job.
	FindJobTransaction(ctx context.Context, userID, jobID string, typ models.TxType, reason string) (*models.WalletTransaction, error)

	// InsertReview returns ErrDuplicate for a second review by the same role on a job.
	InsertReview(ctx context.Context, r *models.Review) error
	ListReviewsForJob(ctx context.Context, jobID string) ([]models.Review, error)
	ListReviewsForUser(ctx context.Context, revieweeID string, limit int) ([]models.Review, error)
}

type Store interface {
	Queries
	// InTx runs fn inside a transaction. Any error from fn rolls back every write.
	InTx(ctx context.Context, fn func(q Queries) error) error
}
