package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/logger"
	"github.com/sudo-init-do/workerlly/internal/models"
)

type AuditResult struct {
	UserID   string          `json:"user_id"`
	Cached   decimal.Decimal `json:"cached_balance"`
	Computed decimal.Decimal `json:"computed_balance"`
	Entries  int             `json:"entries"`
}

func (r AuditResult) Consistent() bool { return r.Cached.Equal(r.Computed) }

// Audit recomputes a wallet from its transaction log.
func (l *Ledger) Audit(ctx context.Context, userID string) (AuditResult, error) {
	st, err := l.store.GetUserStats(ctx, userID)
	if err != nil {
		return AuditResult{}, statsErr("wallet.Audit", err)
	}
	txs, err := l.store.ListWalletTransactions(ctx, userID)
	if err != nil {
		return AuditResult{}, err
	}
	computed := decimal.Zero
	for _, t := range txs {
		switch t.Type {
		case models.TxCredit:
			computed = computed.Add(t.Amount)
		case models.TxDebit:
			computed = computed.Sub(t.Amount)
		}
	}
	return AuditResult{UserID: userID, Cached: st.WalletBalance, Computed: computed, Entries: len(txs)}, nil
}

// AuditAll returns every inconsistent wallet.
func (l *Ledger) AuditAll(ctx context.Context) ([]AuditResult, error) {
	ids, err := l.store.ListUserStatsIDs(ctx)
	if err != nil {
		return nil, err
	}
	var bad []AuditResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return bad, err
		}
		r, err := l.Audit(ctx, id)
		if err != nil {
			return bad, err
		}
		if !r.Consistent() {
			bad = append(bad, r)
			l.metrics.AuditMismatch()
		}
	}
	return bad, nil
}

// RunAuditor audits every wallet each interval until ctx ends.
func (l *Ledger) RunAuditor(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx).With("component", "wallet_auditor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bad, err := l.AuditAll(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error("wallet audit failed", "error", err)
				continue
			}
			for _, r := range bad {
				log.Error("wallet balance mismatch",
					"user_id", r.UserID, "cached", r.Cached.String(), "computed", r.Computed.String())
			}
		}
	}
}
