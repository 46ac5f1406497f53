package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/fees"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

const (
	seekerInvoicePrefix   = "WRKRLY-"
	providerInvoicePrefix = "WRKRLYP-"
)

// Invoice is the bill for one job. The seeker's copy covers the lead fee paid to the
// platform; the provider's covers the work billed at the agreed rate.
type Invoice struct {
	Number       string                 `json:"invoice_number"`
	For          models.Role            `json:"for"`
	JobID        string                 `json:"job_id"`
	TaskID       string                 `json:"task_id"`
	IssuedAt     time.Time              `json:"invoice_date"`
	CategoryName string                 `json:"category_name"`
	Address      models.AddressSnapshot `json:"address"`
	SeekerName   string                 `json:"seeker_name,omitempty"`
	ProviderName string                 `json:"provider_name,omitempty"`

	LeadFee *fees.Breakdown `json:"lead_fee,omitempty"`

	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	BillableHours int             `json:"billable_hours,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Payment       *models.Payment `json:"payment,omitempty"`
}

// Invoice builds the caller's invoice for a job. The assigned seeker gets the lead fee
// breakdown once the fee has been charged; the owner gets the work total once the job
// is completed.
func (e *Engine) Invoice(ctx context.Context, a Actor, jobID string) (*Invoice, error) {
	const op = "marketplace.Invoice"
	j, err := e.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, op, "job not found")
	}
	if err != nil {
		return nil, classify(op, err)
	}

	inv := &Invoice{
		JobID:        j.ID,
		TaskID:       j.TaskID,
		CategoryName: e.categoryName(ctx, j.CategoryID),
		Address:      j.Address,
		ProviderName: e.userName(ctx, j.ProviderID),
		HourlyRate:   j.CurrentRate,
	}
	if j.AssignedTo != nil {
		inv.SeekerName = e.userName(ctx, *j.AssignedTo)
	}

	switch {
	case j.IsAssignedTo(a.UserID):
		charge, err := e.store.FindJobTransaction(ctx, a.UserID, j.ID, models.TxDebit, models.ReasonJobLead)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, op, "no lead fee was charged for this job")
		}
		if err != nil {
			return nil, classify(op, err)
		}
		b, err := e.fees.Calculate(j.CurrentRate)
		if err != nil {
			return nil, err
		}
		inv.Number = seekerInvoicePrefix + j.TaskID
		inv.For = models.RoleSeeker
		inv.IssuedAt = charge.CreatedAt
		inv.LeadFee = &b
		inv.TotalAmount = charge.Amount

	case j.ProviderID == a.UserID:
		if j.Status != models.JobCompleted && j.Status != models.JobPaid {
			return nil, apperr.New(apperr.InvalidState, op, "job is not completed")
		}
		inv.Number = providerInvoicePrefix + j.TaskID
		inv.For = models.RoleProvider
		inv.IssuedAt = j.UpdatedAt
		if j.DoneAt != nil {
			inv.IssuedAt = *j.DoneAt
		}
		inv.BillableHours = j.BillableHours
		inv.TotalAmount = j.TotalAmount
		inv.Payment = j.Payment

	default:
		return nil, apperr.New(apperr.Forbidden, op, "not a participant in this job")
	}
	return inv, nil
}

func (e *Engine) categoryName(ctx context.Context, id string) string {
	c, err := e.store.GetCategory(ctx, id)
	if err != nil {
		return "Service"
	}
	return c.Name
}

func (e *Engine) userName(ctx context.Context, id string) string {
	u, err := e.store.GetUser(ctx, id)
	if err != nil {
		return ""
	}
	return u.Name
}
