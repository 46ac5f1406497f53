// Package wallet keeps each user's platform credit. The balance cached on user_stats is
// always the sum of credits minus debits in wallet_transactions.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/fees"
	"github.com/sudo-init-do/workerlly/internal/metrics"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

type Ledger struct {
	store   store.Store
	fees    *fees.Calculator
	metrics *metrics.Collector
	now     func() time.Time
}

func NewLedger(s store.Store, calc *fees.Calculator, m *metrics.Collector) *Ledger {
	return &Ledger{store: s, fees: calc, metrics: m, now: time.Now}
}

// WithClock replaces the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	st, err := l.store.GetUserStats(ctx, userID)
	if err != nil {
		return decimal.Zero, statsErr("wallet.Balance", err)
	}
	return st.WalletBalance, nil
}

func (l *Ledger) Transactions(ctx context.Context, userID string) ([]models.WalletTransaction, error) {
	if _, err := l.store.GetUserStats(ctx, userID); err != nil {
		return nil, statsErr("wallet.Transactions", err)
	}
	return l.store.ListWalletTransactions(ctx, userID)
}

// OpenAccount creates the user's stats row. A positive initial amount is booked as the
// first credit so the ledger stays reconcilable.
func (l *Ledger) OpenAccount(ctx context.Context, userID string, initial decimal.Decimal) (*models.UserStats, error) {
	if initial.IsNegative() {
		return nil, apperr.New(apperr.InvalidInput, "wallet.OpenAccount", "initial balance must not be negative")
	}
	st := &models.UserStats{
		UserID:        userID,
		CurrentStatus: models.SeekerOffline,
		UpdatedAt:     l.now(),
	}
	err := l.store.InTx(ctx, func(q store.Queries) error {
		if err := q.InsertUserStats(ctx, st); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.New(apperr.Conflict, "wallet.OpenAccount", "account already exists")
			}
			return err
		}
		if initial.IsPositive() {
			_, err := l.CreditIn(ctx, q, userID, initial, models.ReasonInitialCredit, "")
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.store.GetUserStats(ctx, userID)
}

func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, reason, jobID string) (*models.WalletTransaction, error) {
	var tx *models.WalletTransaction
	err := l.store.InTx(ctx, func(q store.Queries) error {
		var err error
		tx, err = l.CreditIn(ctx, q, userID, amount, reason, jobID)
		return err
	})
	return tx, err
}

func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal, reason, jobID string) (*models.WalletTransaction, error) {
	var tx *models.WalletTransaction
	err := l.store.InTx(ctx, func(q store.Queries) error {
		var err error
		tx, err = l.DebitIn(ctx, q, userID, amount, reason, jobID)
		return err
	})
	return tx, err
}

// CreditIn books a credit inside the caller's transaction.
func (l *Ledger) CreditIn(ctx context.Context, q store.Queries, userID string, amount decimal.Decimal, reason, jobID string) (*models.WalletTransaction, error) {
	return l.apply(ctx, q, "wallet.Credit", userID, amount, models.TxCredit, reason, jobID)
}

// DebitIn books a debit inside the caller's transaction. It fails with
// InsufficientFunds, writing nothing, when the balance would go negative.
func (l *Ledger) DebitIn(ctx context.Context, q store.Queries, userID string, amount decimal.Decimal, reason, jobID string) (*models.WalletTransaction, error) {
	return l.apply(ctx, q, "wallet.Debit", userID, amount, models.TxDebit, reason, jobID)
}

func (l *Ledger) apply(ctx context.Context, q store.Queries, op, userID string, amount decimal.Decimal, typ models.TxType, reason, jobID string) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.InvalidInput, op, "amount must be positive")
	}
	amount = amount.Round(2)

	st, err := q.LockUserStats(ctx, userID)
	if err != nil {
		return nil, statsErr(op, err)
	}
	switch typ {
	case models.TxCredit:
		st.WalletBalance = st.WalletBalance.Add(amount)
	case models.TxDebit:
		if st.WalletBalance.LessThan(amount) {
			return nil, apperr.New(apperr.InsufficientFunds, op, "insufficient wallet balance")
		}
		st.WalletBalance = st.WalletBalance.Sub(amount)
	}
	now := l.now()
	st.UpdatedAt = now
	if err := q.UpdateUserStats(ctx, st); err != nil {
		return nil, storeErr(op, err)
	}

	tx := &models.WalletTransaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Amount:    amount,
		Type:      typ,
		Reason:    reason,
		CreatedAt: now,
	}
	if jobID != "" {
		tx.JobID = &jobID
	}
	if err := q.InsertWalletTransaction(ctx, tx); err != nil {
		return nil, err
	}
	l.metrics.WalletEntry(string(typ))
	return tx, nil
}

func statsErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.UnknownUser, op, "no wallet for user")
	}
	return storeErr(op, err)
}

func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrConflict) {
		return apperr.Wrap(apperr.Conflict, op, err)
	}
	return apperr.Wrap(apperr.Internal, op, err)
}
