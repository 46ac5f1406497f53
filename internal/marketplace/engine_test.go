package marketplace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/workerlly/internal/alerts"
	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/fees"
	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/otp"
	"github.com/sudo-init-do/workerlly/internal/store/memstore"
	"github.com/sudo-init-do/workerlly/internal/taskid"
	"github.com/sudo-init-do/workerlly/internal/wallet"
)

var (
	t0       = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	jobSite  = geo.Point{Lat: 12.9716, Lon: 77.5946}
	provider = Actor{UserID: "p1", Roles: []string{"provider"}}
	seeker1  = Actor{UserID: "s1", Roles: []string{"seeker"}}
	seeker2  = Actor{UserID: "s2", Roles: []string{"seeker"}}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type notifications struct {
	mu     sync.Mutex
	events []alerts.Event
	err    error
}

func (n *notifications) Notify(_ context.Context, e alerts.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *notifications) ofType(typ string) []alerts.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []alerts.Event
	for _, e := range n.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type closed struct {
	mu   sync.Mutex
	jobs []string
}

func (c *closed) Close(_ context.Context, jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, jobID)
}

type fixture struct {
	st      *memstore.Store
	eng     *Engine
	ledger  *wallet.Ledger
	clock   *clock
	alerts  *notifications
	tracker *closed
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	st.PutUser(models.User{ID: "p1", Name: "Priya", Roles: []string{"provider"}})
	st.PutUser(models.User{ID: "s1", Name: "Sameer", Roles: []string{"seeker"}})
	st.PutUser(models.User{ID: "s2", Name: "Asha", Roles: []string{"seeker"}})
	st.PutCity(models.City{ID: "blr", Name: "Bengaluru", IsActive: true})
	st.PutCategory(models.Category{ID: "plumb", Name: "Plumbing", IsActive: true})
	st.PutCategory(models.Category{ID: "plumb-leak", Name: "Leak repair", ParentID: "plumb", IsActive: true})
	st.PutCategory(models.Category{ID: "paint", Name: "Painting", IsActive: true})
	st.PutRate(models.Rate{ID: "r1", CityID: "blr", CategoryID: "plumb", MinHourlyRate: dec("100"), MaxHourlyRate: dec("500")})
	st.PutAddress(models.Address{ID: "a1", UserID: "p1", AddressLine1: "12 MG Road", CityID: "blr", Location: jobSite})
	st.PutAddress(models.Address{ID: "a2", UserID: "s2", AddressLine1: "4 Church St", CityID: "blr", Location: jobSite})

	clk := &clock{t: t0}
	calc := fees.NewCalculator(dec("20"), dec("18"))
	ledger := wallet.NewLedger(st, calc, nil).WithClock(clk.Now)

	_, err := ledger.OpenAccount(ctx, "p1", decimal.Zero)
	require.NoError(t, err)
	for _, id := range []string{"s1", "s2"} {
		_, err := ledger.OpenAccount(ctx, id, dec("100"))
		require.NoError(t, err)
		require.NoError(t, ledger.Configure(ctx, id, "blr", "plumb"))
		_, err = ledger.SetAvailability(ctx, id, true)
		require.NoError(t, err)
	}

	n := &notifications{}
	tr := &closed{}
	eng := NewEngine(Deps{
		Store:    st,
		Fees:     calc,
		Ledger:   ledger,
		OTP:      otp.NewFixed("1234", "5678", "4321", "8765"),
		Notifier: n,
		Tracker:  tr,
		Now:      clk.Now,
	})
	return &fixture{st: st, eng: eng, ledger: ledger, clock: clk, alerts: n, tracker: tr}
}

func (f *fixture) postJob(t *testing.T, rate string) *models.Job {
	t.Helper()
	job, err := f.eng.CreateJob(context.Background(), provider, CreateJobInput{
		CategoryID:     "plumb",
		SubCategoryIDs: []string{"plumb-leak"},
		Title:          "Fix kitchen sink",
		AddressID:      "a1",
		HourlyRate:     dec(rate),
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) assign(t *testing.T, a Actor, amount string) (*models.Job, *models.Bid) {
	t.Helper()
	job := f.postJob(t, "120")
	bid, err := f.eng.PlaceBid(context.Background(), a, job.ID, dec(amount))
	require.NoError(t, err)
	job, err = f.eng.AcceptBid(context.Background(), provider, job.ID, bid.ID)
	require.NoError(t, err)
	return job, bid
}

func (f *fixture) balance(t *testing.T, id string) string {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), id)
	require.NoError(t, err)
	return b.StringFixed(2)
}

func (f *fixture) stats(t *testing.T, id string) *models.UserStats {
	t.Helper()
	s, err := f.st.GetUserStats(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestHappyPathBillsThreeHours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, _ := f.assign(t, seeker1, "120")
	assert.Equal(t, models.JobOngoing, job.Status)
	assert.Equal(t, "120.00", job.CurrentRate.StringFixed(2))
	assert.Equal(t, "71.68", f.balance(t, "s1"))
	assert.Equal(t, models.SeekerBusy, f.stats(t, "s1").CurrentStatus)

	job, err := f.eng.MarkReached(ctx, seeker1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "reached", job.Stage())
	assert.Equal(t, models.JobOngoing, job.Status)

	f.clock.Set(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	job, err = f.eng.VerifyStartOTP(ctx, provider, job.ID, "1234")
	require.NoError(t, err)
	assert.Equal(t, models.JobInProgress, job.Status)

	f.clock.Set(time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC))
	seen, err := f.eng.RequestCompletion(ctx, seeker1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "5678", seen.DoneOTP.Code)

	job, err = f.eng.VerifyDoneOTP(ctx, provider, job.ID, "5678")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 3, job.BillableHours)
	assert.Equal(t, "360.00", job.TotalAmount.StringFixed(2))
	assert.Equal(t, []string{job.ID}, f.tracker.jobs)

	s1 := f.stats(t, "s1")
	assert.Equal(t, models.SeekerFree, s1.CurrentStatus)
	assert.Nil(t, s1.CurrentJobID)
	assert.Equal(t, 1, s1.TotalJobsDone)
	assert.Equal(t, 3, s1.TotalHoursWorked)

	loc, err := f.st.GetActiveLocation(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LocationClosed, loc.Status)

	job, err = f.eng.Pay(ctx, seeker1, job.ID, models.PaymentCash)
	require.NoError(t, err)
	assert.Equal(t, models.JobPaid, job.Status)
	require.NotNil(t, job.ProviderReview)
	assert.False(t, job.ProviderReview.Done)
	assert.Equal(t, "360.00", f.stats(t, "s1").TotalEarned.StringFixed(2))
	assert.Equal(t, "360.00", f.stats(t, "p1").TotalSpent.StringFixed(2))
	assert.Equal(t, "71.68", f.balance(t, "s1"))

	_, err = f.eng.Pay(ctx, seeker1, job.ID, models.PaymentOnline)
	assert.True(t, apperr.Is(err, apperr.AlreadyPaid))
}

func TestBillableHours(t *testing.T) {
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, BillableHours(start, start))
	assert.Equal(t, 1, BillableHours(start, start.Add(20*time.Minute)))
	assert.Equal(t, 1, BillableHours(start, start.Add(time.Hour)))
	assert.Equal(t, 2, BillableHours(start, start.Add(time.Hour+time.Second)))
	assert.Equal(t, 3, BillableHours(start, start.Add(150*time.Minute)))
}

func TestCreateJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.postJob(t, "120")
	second := f.postJob(t, "150")
	assert.Equal(t, taskid.Format(taskid.Prefix(t0), 1), first.TaskID)
	assert.Equal(t, taskid.Format(taskid.Prefix(t0), 2), second.TaskID)
	assert.Equal(t, models.JobPending, first.Status)
	assert.Equal(t, "a1", first.Address.AddressID)
	assert.Len(t, first.RateHistory, 1)
	assert.Equal(t, 2, f.stats(t, "p1").TotalJobsPosted)

	cases := []struct {
		name string
		in   CreateJobInput
		kind apperr.Kind
	}{
		{"below band", CreateJobInput{CategoryID: "plumb", Title: "x", AddressID: "a1", HourlyRate: dec("50")}, apperr.InvalidInput},
		{"above band", CreateJobInput{CategoryID: "plumb", Title: "x", AddressID: "a1", HourlyRate: dec("900")}, apperr.InvalidInput},
		{"foreign address", CreateJobInput{CategoryID: "plumb", Title: "x", AddressID: "a2", HourlyRate: dec("120")}, apperr.Forbidden},
		{"wrong sub-category", CreateJobInput{CategoryID: "paint", SubCategoryIDs: []string{"plumb-leak"}, Title: "x", AddressID: "a1", HourlyRate: dec("120")}, apperr.InvalidInput},
		{"unknown category", CreateJobInput{CategoryID: "nope", Title: "x", AddressID: "a1", HourlyRate: dec("120")}, apperr.NotFound},
		{"zero rate", CreateJobInput{CategoryID: "plumb", Title: "x", AddressID: "a1", HourlyRate: decimal.Zero}, apperr.InvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.eng.CreateJob(ctx, provider, tc.in)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}

	_, err := f.eng.CreateJob(ctx, seeker1, CreateJobInput{CategoryID: "plumb", Title: "x", AddressID: "a1", HourlyRate: dec("120")})
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	assert.Len(t, f.alerts.ofType(alerts.TaskJobNew), 2)
}

func TestUpdateHourlyRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "120")
	_, err := f.eng.PlaceBid(ctx, seeker1, job.ID, dec("130"))
	require.NoError(t, err)

	job, err = f.eng.UpdateHourlyRate(ctx, provider, job.ID, dec("140"))
	require.NoError(t, err)
	assert.Equal(t, "140.00", job.CurrentRate.StringFixed(2))
	assert.Len(t, job.RateHistory, 2)
	ev := f.alerts.ofType(alerts.TaskJobRateUpdated)
	require.Len(t, ev, 1)
	assert.Equal(t, []string{"s1"}, ev[0].Recipients)

	_, err = f.eng.UpdateHourlyRate(ctx, provider, job.ID, dec("20"))
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	assigned, _ := f.assign(t, seeker2, "120")
	_, err = f.eng.UpdateHourlyRate(ctx, provider, assigned.ID, dec("150"))
	assert.True(t, apperr.Is(err, apperr.InvalidState))
}

func TestPlaceBidRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "120")

	_, err := f.eng.PlaceBid(ctx, Actor{UserID: "p1", Roles: []string{"provider", "seeker"}}, job.ID, dec("120"))
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = f.eng.PlaceBid(ctx, seeker1, job.ID, dec("-1"))
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	_, err = f.eng.PlaceBid(ctx, seeker1, job.ID, dec("120"))
	require.NoError(t, err)
	_, err = f.eng.PlaceBid(ctx, seeker1, job.ID, dec("110"))
	assert.True(t, apperr.Is(err, apperr.Conflict))

	_, err = f.ledger.SetAvailability(ctx, "s2", false)
	require.NoError(t, err)
	_, err = f.eng.PlaceBid(ctx, seeker2, job.ID, dec("120"))
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	// 100 covers the 23.60 minimum but not the 118.00 lead fee on a 500 bid.
	_, err = f.ledger.SetAvailability(ctx, "s2", true)
	require.NoError(t, err)
	_, err = f.eng.PlaceBid(ctx, seeker2, job.ID, dec("500"))
	assert.True(t, apperr.Is(err, apperr.InsufficientFunds))

	bids, err := f.eng.ListBids(ctx, provider, job.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "Sameer", bids[0].SeekerName)
	assert.Equal(t, "Plumbing", bids[0].CategoryName)
	assert.Len(t, f.alerts.ofType(alerts.TaskBidNew), 1)

	_, err = f.eng.ListBids(ctx, Actor{UserID: "p2", Roles: []string{"provider"}}, job.ID)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
}

func TestWithdrawBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "120")
	bid, err := f.eng.PlaceBid(ctx, seeker1, job.ID, dec("120"))
	require.NoError(t, err)

	assert.True(t, apperr.Is(f.eng.WithdrawBid(ctx, seeker2, bid.ID), apperr.Forbidden))
	require.NoError(t, f.eng.WithdrawBid(ctx, seeker1, bid.ID))
	assert.True(t, apperr.Is(f.eng.WithdrawBid(ctx, seeker1, bid.ID), apperr.InvalidState))

	_, err = f.eng.PlaceBid(ctx, seeker1, job.ID, dec("125"))
	assert.NoError(t, err)
}

func TestAcceptBidEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := f.postJob(t, "120")
	job := f.postJob(t, "120")
	b1, err := f.eng.PlaceBid(ctx, seeker1, job.ID, dec("120"))
	require.NoError(t, err)
	b2, err := f.eng.PlaceBid(ctx, seeker2, job.ID, dec("110"))
	require.NoError(t, err)
	elsewhere, err := f.eng.PlaceBid(ctx, seeker1, other.ID, dec("120"))
	require.NoError(t, err)

	accepted, err := f.eng.AcceptBid(ctx, provider, job.ID, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, "s1", *accepted.AssignedTo)
	assert.Equal(t, b1.ID, *accepted.AcceptedBidID)
	assert.Empty(t, accepted.StartOTP.Code, "provider must not see the start code")

	for id, want := range map[string]models.BidStatus{b1.ID: models.BidAccepted, b2.ID: models.BidRejected, elsewhere.ID: models.BidRejected} {
		b, err := f.st.GetBid(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, b.Status, id)
	}

	txs, err := f.ledger.Transactions(ctx, "s1")
	require.NoError(t, err)
	last := txs[len(txs)-1]
	assert.Equal(t, models.ReasonJobLead, last.Reason)
	assert.Equal(t, "28.32", last.Amount.StringFixed(2))
	require.NotNil(t, last.JobID)
	assert.Equal(t, job.ID, *last.JobID)

	seen, err := f.eng.GetJob(ctx, seeker1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "1234", seen.StartOTP.Code)

	loc, err := f.st.GetActiveLocation(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LocationActive, loc.Status)
	assert.Equal(t, jobSite, loc.ProviderLocation)

	ev := f.alerts.ofType(alerts.TaskBidAccepted)
	require.Len(t, ev, 1)
	assert.Equal(t, []string{"s1"}, ev[0].Recipients)
}

func TestAcceptBidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, bid := f.assign(t, seeker1, "120")

	again, err := f.eng.AcceptBid(ctx, provider, job.ID, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, "71.68", f.balance(t, "s1"))
	assert.Len(t, f.alerts.ofType(alerts.TaskBidAccepted), 1)
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "120")
	b1, err := f.eng.PlaceBid(ctx, seeker1, job.ID, dec("120"))
	require.NoError(t, err)
	b2, err := f.eng.PlaceBid(ctx, seeker2, job.ID, dec("120"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{b1.ID, b2.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.eng.AcceptBid(ctx, provider, job.ID, id)
		}(i, id)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.Conflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	got, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	winner := *got.AssignedTo
	loser := "s1"
	if winner == "s1" {
		loser = "s2"
	}
	assert.Equal(t, "71.68", f.balance(t, winner))
	assert.Equal(t, "100.00", f.balance(t, loser))
}

func TestWrongStartCodeChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, _ := f.assign(t, seeker1, "120")
	before, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)

	_, err = f.eng.VerifyStartOTP(ctx, provider, job.ID, "0000")
	assert.True(t, apperr.Is(err, apperr.OtpMismatch))

	after, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobOngoing, after.Status)
	assert.Nil(t, after.StartedAt)
	assert.False(t, after.StartOTP.Verified)
	assert.Equal(t, before.Version, after.Version)

	_, err = f.eng.VerifyStartOTP(ctx, Actor{UserID: "p2", Roles: []string{"provider"}}, job.ID, "1234")
	assert.True(t, apperr.Is(err, apperr.Forbidden))
}

func TestCompletionCodeIsReusedUntilVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, _ := f.assign(t, seeker1, "120")
	_, err := f.eng.RequestCompletion(ctx, seeker1, job.ID)
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	_, err = f.eng.VerifyStartOTP(ctx, provider, job.ID, "1234")
	require.NoError(t, err)
	_, err = f.eng.VerifyDoneOTP(ctx, provider, job.ID, "5678")
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	first, err := f.eng.RequestCompletion(ctx, provider, job.ID)
	require.NoError(t, err)
	assert.Empty(t, first.DoneOTP.Code)
	again, err := f.eng.RequestCompletion(ctx, seeker1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "5678", again.DoneOTP.Code)

	_, err = f.eng.VerifyDoneOTP(ctx, provider, job.ID, "1111")
	assert.True(t, apperr.Is(err, apperr.OtpMismatch))
	done, err := f.eng.VerifyDoneOTP(ctx, provider, job.ID, "5678")
	require.NoError(t, err)
	assert.Equal(t, 1, done.BillableHours)
	assert.Equal(t, "120.00", done.TotalAmount.StringFixed(2))
}

func TestOTPFailureIsDependencyFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "120")
	bid, err := f.eng.PlaceBid(ctx, seeker1, job.ID, dec("120"))
	require.NoError(t, err)

	f.eng.otp = &otp.Fixed{Err: errors.New("entropy unavailable")}
	_, err = f.eng.AcceptBid(ctx, provider, job.ID, bid.ID)
	assert.True(t, apperr.Is(err, apperr.DependencyFailure))
	assert.Equal(t, "100.00", f.balance(t, "s1"))

	got, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
}

func TestCancelPendingMovesNoMoney(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "120")
	bid, err := f.eng.PlaceBid(ctx, seeker1, job.ID, dec("120"))
	require.NoError(t, err)

	_, err = f.eng.Cancel(ctx, seeker2, job.ID, "")
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	job, err = f.eng.Cancel(ctx, provider, job.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, job.Status)
	assert.Equal(t, models.RoleProvider, job.CancelledBy)

	b, err := f.st.GetBid(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidPending, b.Status)
	_, err = f.eng.AcceptBid(ctx, provider, job.ID, bid.ID)
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	assert.Equal(t, "100.00", f.balance(t, "s1"))
	txs, err := f.ledger.Transactions(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	_, err = f.eng.Cancel(ctx, provider, job.ID, "")
	assert.True(t, apperr.Is(err, apperr.InvalidState))
}

func TestSeekerRejectsPendingJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "120")
	_, err := f.eng.PlaceBid(ctx, seeker2, job.ID, dec("120"))
	require.NoError(t, err)

	job, err = f.eng.Cancel(ctx, seeker2, job.ID, "too far")
	require.NoError(t, err)
	assert.Equal(t, models.JobRejected, job.Status)
	assert.Equal(t, models.RoleSeeker, job.CancelledBy)
}

func TestCancelAssignedRefundsLeadFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, bid := f.assign(t, seeker1, "120")

	_, err := f.eng.Cancel(ctx, seeker1, job.ID, "  ")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	job, err = f.eng.Cancel(ctx, seeker1, job.ID, "vehicle broke down")
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, job.Status)
	assert.Equal(t, models.RoleSeeker, job.CancelledBy)
	assert.Equal(t, "vehicle broke down", job.CancelReason)

	assert.Equal(t, "100.00", f.balance(t, "s1"))
	txs, err := f.ledger.Transactions(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonLeadRefund, txs[len(txs)-1].Reason)

	s1 := f.stats(t, "s1")
	assert.Equal(t, models.SeekerFree, s1.CurrentStatus)
	assert.Nil(t, s1.CurrentJobID)

	b, err := f.st.GetBid(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidCancelled, b.Status)
	loc, err := f.st.GetActiveLocation(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LocationClosed, loc.Status)
	assert.Equal(t, []string{job.ID}, f.tracker.jobs)

	ev := f.alerts.ofType(alerts.TaskJobCancelled)
	require.Len(t, ev, 1)
	assert.Equal(t, []string{"p1"}, ev[0].Recipients)

	audit, err := f.ledger.Audit(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, audit.Consistent())
}

func TestCancelWindowAndStartedJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.eng.window = 10 * time.Minute

	job, _ := f.assign(t, seeker1, "120")
	f.clock.Set(t0.Add(11 * time.Minute))
	_, err := f.eng.Cancel(ctx, provider, job.ID, "changed plans")
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	_, err = f.eng.VerifyStartOTP(ctx, provider, job.ID, "1234")
	require.NoError(t, err)
	f.eng.window = 0
	_, err = f.eng.Cancel(ctx, provider, job.ID, "changed plans")
	assert.True(t, apperr.Is(err, apperr.InvalidState))
}

func paidJob(t *testing.T, f *fixture) *models.Job {
	t.Helper()
	ctx := context.Background()
	f.eng.otp = otp.NewFixed("1234", "5678")
	job, _ := f.assign(t, seeker1, "120")
	_, err := f.eng.VerifyStartOTP(ctx, provider, job.ID, "1234")
	require.NoError(t, err)
	_, err = f.eng.RequestCompletion(ctx, seeker1, job.ID)
	require.NoError(t, err)
	_, err = f.eng.VerifyDoneOTP(ctx, provider, job.ID, "5678")
	require.NoError(t, err)
	job, err = f.eng.Pay(ctx, seeker1, job.ID, models.PaymentOnline)
	require.NoError(t, err)
	return job
}

func TestReviews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, _ := f.assign(t, seeker1, "120")
	_, err := f.eng.SubmitReview(ctx, provider, job.ID, 5, "great")
	assert.True(t, apperr.Is(err, apperr.InvalidState))
	_, err = f.eng.Cancel(ctx, provider, job.ID, "test")
	require.NoError(t, err)

	paid := paidJob(t, f)
	_, err = f.eng.SubmitReview(ctx, provider, paid.ID, 6, "great")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
	_, err = f.eng.SubmitReview(ctx, provider, paid.ID, 4, "")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
	_, err = f.eng.SubmitReview(ctx, seeker2, paid.ID, 4, "hi")
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	r, err := f.eng.SubmitReview(ctx, provider, paid.ID, 4, "quick and tidy")
	require.NoError(t, err)
	assert.Equal(t, "s1", r.RevieweeID)
	assert.Equal(t, models.RoleProvider, r.ReviewerRole)

	_, err = f.eng.SubmitReview(ctx, provider, paid.ID, 5, "again")
	assert.True(t, apperr.Is(err, apperr.Conflict))

	_, err = f.eng.SubmitReview(ctx, seeker1, paid.ID, 3, "paid on time")
	require.NoError(t, err)

	got, err := f.st.GetJob(ctx, paid.ID)
	require.NoError(t, err)
	assert.True(t, got.ProviderReview.Done)
	assert.True(t, got.SeekerReview.Done)

	stats, err := f.eng.ReviewStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AsSeeker.TotalReviews)
	assert.InDelta(t, 4.0, stats.AsSeeker.Average, 1e-9)
	assert.Equal(t, 1, stats.RatingCounts[4])
	require.Len(t, stats.Recent, 1)

	ps, err := f.eng.ReviewStats(ctx, "p1")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, ps.AsProvider.Average, 1e-9)

	rs, err := f.eng.ListReviewsForJob(ctx, seeker1, paid.ID)
	require.NoError(t, err)
	assert.Len(t, rs, 2)

	_, err = f.eng.ReviewStats(ctx, "ghost")
	assert.True(t, apperr.Is(err, apperr.UnknownUser))
}

func TestRatingAverageIsRunningMean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, rating := range []int{5, 2, 4} {
		job := paidJob(t, f)
		_, err := f.eng.SubmitReview(ctx, provider, job.ID, rating, "ok")
		require.NoError(t, err)
	}
	s := f.stats(t, "s1")
	assert.Equal(t, 3, s.RatingCountAsSeeker)
	assert.InDelta(t, 11.0/3.0, s.AvgRatingAsSeeker(), 1e-9)
}

func TestAlertFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.alerts.err = errors.New("redis down")
	job, _ := f.assign(t, seeker1, "120")
	assert.Equal(t, models.JobOngoing, job.Status)
}

func TestListJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.postJob(t, "120")
	assigned, _ := f.assign(t, seeker1, "120")

	mine, err := f.eng.ListJobs(ctx, provider, "", nil, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	pending, err := f.eng.ListJobs(ctx, provider, "", []models.JobStatus{models.JobPending}, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	work, err := f.eng.ListJobs(ctx, seeker1, "", nil, 0)
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, assigned.ID, work[0].ID)

	_, err = f.eng.ListJobs(ctx, seeker1, models.RoleProvider, nil, 0)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
}
