package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/fees"
	"github.com/sudo-init-do/workerlly/internal/metrics"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store/memstore"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newLedger(t *testing.T) (*Ledger, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	s.PutCity(models.City{ID: "delhi", Name: "Delhi", IsActive: true})
	s.PutCategory(models.Category{ID: "plumbing", Name: "Plumbing", IsActive: true})
	s.PutRate(models.Rate{ID: "r1", CityID: "delhi", CategoryID: "plumbing", MinHourlyRate: dec("100"), MaxHourlyRate: dec("500")})
	return NewLedger(s, fees.NewCalculator(dec("20"), dec("18")), metrics.NewCollector(nil)), s
}

func TestCreditDebitAndLog(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.OpenAccount(ctx, "u1", dec("50"))
	require.NoError(t, err)

	_, err = l.Credit(ctx, "u1", dec("25.5"), models.ReasonAdminCredit, "")
	require.NoError(t, err)
	tx, err := l.Debit(ctx, "u1", dec("10"), models.ReasonJobLead, "job-1")
	require.NoError(t, err)
	require.NotNil(t, tx.JobID)
	assert.Equal(t, "job-1", *tx.JobID)

	bal, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "65.5", bal.String())

	txs, err := l.Transactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, models.ReasonInitialCredit, txs[0].Reason)
	assert.Equal(t, models.TxDebit, txs[2].Type)
}

func TestDebitInsufficientFundsChangesNothing(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "u1", dec("5"))
	require.NoError(t, err)

	_, err = l.Debit(ctx, "u1", dec("5.01"), models.ReasonJobLead, "")
	assert.True(t, apperr.Is(err, apperr.InsufficientFunds))

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, "5", bal.String())
	txs, _ := l.Transactions(ctx, "u1")
	assert.Len(t, txs, 1)
}

func TestInvalidAmountsAndUnknownUser(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.Credit(ctx, "ghost", dec("1"), "x", "")
	assert.True(t, apperr.Is(err, apperr.UnknownUser))
	_, err = l.Balance(ctx, "ghost")
	assert.True(t, apperr.Is(err, apperr.UnknownUser))

	_, err = l.OpenAccount(ctx, "u1", decimal.Zero)
	require.NoError(t, err)
	_, err = l.Credit(ctx, "u1", decimal.Zero, "x", "")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
	_, err = l.Debit(ctx, "u1", dec("-3"), "x", "")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	_, err = l.OpenAccount(ctx, "u1", decimal.Zero)
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "u1", dec("50"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, short := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Debit(ctx, "u1", dec("10"), models.ReasonJobLead, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if apperr.Is(err, apperr.InsufficientFunds) {
				short++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 7, short)
	bal, _ := l.Balance(ctx, "u1")
	assert.True(t, bal.IsZero())

	r, err := l.Audit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, r.Consistent())
	assert.Equal(t, 6, r.Entries)
}

func TestMinBalanceGate(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "s1", dec("20.00"))
	require.NoError(t, err)

	_, err = l.MinBalanceToGoOnline(ctx, "s1")
	assert.True(t, apperr.Is(err, apperr.MissingSeekerConfig))

	require.NoError(t, l.Configure(ctx, "s1", "delhi", "plumbing"))
	min, err := l.MinBalanceToGoOnline(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "23.60", min.StringFixed(2))

	can, err := l.CanGoOnline(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, can)

	_, err = l.SetAvailability(ctx, "s1", true)
	assert.True(t, apperr.Is(err, apperr.InsufficientFunds))

	_, err = l.Credit(ctx, "s1", dec("3.59"), models.ReasonAdminCredit, "")
	require.NoError(t, err)
	can, err = l.CanGoOnline(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, can, "23.59 is one paisa short")
	_, err = l.SetAvailability(ctx, "s1", true)
	assert.True(t, apperr.Is(err, apperr.InsufficientFunds))

	_, err = l.Credit(ctx, "s1", dec("0.01"), models.ReasonAdminCredit, "")
	require.NoError(t, err)
	av, err := l.SetAvailability(ctx, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, models.SeekerFree, av.Status)
	assert.True(t, av.CanGoOnline)

	av, err = l.SetAvailability(ctx, "s1", false)
	require.NoError(t, err)
	assert.Equal(t, models.SeekerOffline, av.Status)

	s.PutRate(models.Rate{ID: "r1", CityID: "delhi", CategoryID: "plumbing", MinHourlyRate: decimal.Zero, MaxHourlyRate: dec("500")})
	_, err = l.MinBalanceToGoOnline(ctx, "s1")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestMinBalanceMissingRate(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	s.PutCategory(models.Category{ID: "painting", Name: "Painting", IsActive: true})
	_, err := l.OpenAccount(ctx, "s1", dec("100"))
	require.NoError(t, err)
	require.NoError(t, l.Configure(ctx, "s1", "delhi", "painting"))

	_, err = l.MinBalanceToGoOnline(ctx, "s1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestAuditAllFindsDrift(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "u1", dec("10"))
	require.NoError(t, err)
	_, err = l.OpenAccount(ctx, "u2", dec("10"))
	require.NoError(t, err)

	st, err := s.GetUserStats(ctx, "u2")
	require.NoError(t, err)
	st.WalletBalance = dec("11")
	require.NoError(t, s.UpdateUserStats(ctx, st))

	bad, err := l.AuditAll(ctx)
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Equal(t, "u2", bad[0].UserID)
	assert.Equal(t, "10", bad[0].Computed.String())
}
