package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

// MinBalanceToGoOnline is the lead fee at the minimum hourly rate of the seeker's
// configured city and category.
func (l *Ledger) MinBalanceToGoOnline(ctx context.Context, seekerID string) (decimal.Decimal, error) {
	return l.minBalance(ctx, l.store, seekerID)
}

func (l *Ledger) minBalance(ctx context.Context, q store.Queries, seekerID string) (decimal.Decimal, error) {
	const op = "wallet.MinBalanceToGoOnline"
	st, err := q.GetUserStats(ctx, seekerID)
	if err != nil {
		return decimal.Zero, statsErr(op, err)
	}
	return l.minBalanceFor(ctx, q, st)
}

func (l *Ledger) minBalanceFor(ctx context.Context, q store.Queries, st *models.UserStats) (decimal.Decimal, error) {
	const op = "wallet.MinBalanceToGoOnline"
	if st.SeekerCityID == "" || st.SeekerCategory == "" {
		return decimal.Zero, apperr.New(apperr.MissingSeekerConfig, op, "seeker city and category must be set")
	}
	rate, err := q.GetRate(ctx, st.SeekerCityID, st.SeekerCategory)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, apperr.New(apperr.NotFound, op, "no rate configured for city and category")
		}
		return decimal.Zero, apperr.Wrap(apperr.Internal, op, err)
	}
	if !rate.MinHourlyRate.IsPositive() {
		return decimal.Zero, apperr.New(apperr.InvalidInput, op, "minimum hourly rate must be positive")
	}
	return l.fees.MinBalance(rate.MinHourlyRate)
}

func (l *Ledger) CanGoOnline(ctx context.Context, seekerID string) (bool, error) {
	st, err := l.store.GetUserStats(ctx, seekerID)
	if err != nil {
		return false, statsErr("wallet.CanGoOnline", err)
	}
	min, err := l.minBalanceFor(ctx, l.store, st)
	if err != nil {
		return false, err
	}
	return st.WalletBalance.GreaterThanOrEqual(min), nil
}

// Availability is what the seeker status endpoint reports.
type Availability struct {
	Status         models.SeekerStatus `json:"status"`
	CanGoOnline    bool                `json:"can_go_online"`
	Balance        decimal.Decimal     `json:"wallet_balance"`
	MinimumBalance decimal.Decimal     `json:"minimum_balance"`
	CurrentJobID   *string             `json:"current_job_id,omitempty"`
}

func (l *Ledger) Availability(ctx context.Context, seekerID string) (*Availability, error) {
	st, err := l.store.GetUserStats(ctx, seekerID)
	if err != nil {
		return nil, statsErr("wallet.Availability", err)
	}
	min, err := l.minBalanceFor(ctx, l.store, st)
	if err != nil {
		return nil, err
	}
	return &Availability{
		Status:         st.CurrentStatus,
		CanGoOnline:    st.WalletBalance.GreaterThanOrEqual(min),
		Balance:        st.WalletBalance,
		MinimumBalance: min,
		CurrentJobID:   st.CurrentJobID,
	}, nil
}

// SetAvailability moves a seeker between free and offline. Going online requires the
// minimum balance; a busy seeker stays busy until the job ends.
func (l *Ledger) SetAvailability(ctx context.Context, seekerID string, online bool) (*Availability, error) {
	const op = "wallet.SetAvailability"
	err := l.store.InTx(ctx, func(q store.Queries) error {
		st, err := q.LockUserStats(ctx, seekerID)
		if err != nil {
			return statsErr(op, err)
		}
		if st.CurrentStatus == models.SeekerBusy {
			return apperr.New(apperr.InvalidState, op, "seeker is on a job")
		}
		if online {
			min, err := l.minBalanceFor(ctx, q, st)
			if err != nil {
				return err
			}
			if st.WalletBalance.LessThan(min) {
				return apperr.New(apperr.InsufficientFunds, op, "wallet balance below the minimum to go online")
			}
			st.CurrentStatus = models.SeekerFree
		} else {
			st.CurrentStatus = models.SeekerOffline
		}
		st.UpdatedAt = l.now()
		if err := q.UpdateUserStats(ctx, st); err != nil {
			return storeErr(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.Availability(ctx, seekerID)
}

// Configure sets the seeker's working city and category.
func (l *Ledger) Configure(ctx context.Context, seekerID, cityID, categoryID string) error {
	const op = "wallet.Configure"
	return l.store.InTx(ctx, func(q store.Queries) error {
		if _, err := q.GetCity(ctx, cityID); err != nil {
			return apperr.New(apperr.NotFound, op, "city not found")
		}
		if _, err := q.GetCategory(ctx, categoryID); err != nil {
			return apperr.New(apperr.NotFound, op, "category not found")
		}
		st, err := q.LockUserStats(ctx, seekerID)
		if err != nil {
			return statsErr(op, err)
		}
		st.SeekerCityID = cityID
		st.SeekerCategory = categoryID
		st.UpdatedAt = l.now()
		if err := q.UpdateUserStats(ctx, st); err != nil {
			return storeErr(op, err)
		}
		return nil
	})
}
