package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/workerlly/internal/db"
	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

// Runs against a real database only when WORKERLLY_TEST_DATABASE_URL is set.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("WORKERLLY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WORKERLLY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.EnsureSchema(ctx, pool))
	return New(pool)
}

func newJob() *models.Job {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Job{
		ID:          uuid.New().String(),
		TaskID:      "T" + uuid.New().String()[:8] + "-0001",
		ProviderID:  uuid.New().String(),
		CategoryID:  "plumbing",
		Title:       "Fix tap",
		Address:     models.AddressSnapshot{AddressID: "a1", AddressLine1: "1 Main St", CityID: "delhi", Location: geo.Point{Lat: 28.6, Lon: 77.2}},
		HourlyRate:  decimal.NewFromInt(120),
		CurrentRate: decimal.NewFromInt(120),
		RateHistory: []models.RateChange{{Rate: decimal.NewFromInt(120), ChangedAt: now}},
		Status:      models.JobPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestJobRoundTripAndVersionCheck(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	j := newJob()
	require.NoError(t, s.InsertJob(ctx, j))

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.TaskID, got.TaskID)
	assert.True(t, j.CurrentRate.Equal(got.CurrentRate))
	assert.Equal(t, j.Address, got.Address)
	assert.Nil(t, got.StartOTP)
	assert.Nil(t, got.AssignedTo)

	stale := got.Clone()
	got.Status = models.JobOngoing
	got.AssignedTo = models.Ptr("seeker")
	got.StartOTP = &models.OTP{Code: "1234", IssuedAt: j.CreatedAt}
	require.NoError(t, s.UpdateJob(ctx, got))

	stale.Status = models.JobCancelled
	assert.ErrorIs(t, s.UpdateJob(ctx, stale), store.ErrConflict)

	again, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobOngoing, again.Status)
	require.NotNil(t, again.StartOTP)
	assert.Equal(t, "1234", again.StartOTP.Code)

	_, err = s.GetJob(ctx, uuid.New().String())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPendingBidUniqueness(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	j := newJob()
	require.NoError(t, s.InsertJob(ctx, j))

	now := time.Now()
	b := &models.Bid{ID: uuid.New().String(), JobID: j.ID, SeekerID: "s1", Amount: decimal.NewFromInt(100), Status: models.BidPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.InsertBid(ctx, b))
	dup := *b
	dup.ID = uuid.New().String()
	assert.ErrorIs(t, s.InsertBid(ctx, &dup), store.ErrDuplicate)
}

func TestInTxRollback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := uuid.New().String()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(q store.Queries) error {
		require.NoError(t, q.InsertUserStats(ctx, &models.UserStats{UserID: id, CurrentStatus: models.SeekerOffline, UpdatedAt: time.Now()}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetUserStats(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
