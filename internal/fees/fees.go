// Package fees computes the platform lead fee charged to a seeker for a job.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/apperr"
)

var hundred = decimal.NewFromInt(100)

type Breakdown struct {
	BaseFee    decimal.Decimal `json:"base_fee"`
	GSTAmount  decimal.Decimal `json:"gst_amount"`
	TotalFee   decimal.Decimal `json:"total_fee"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

type Calculator struct {
	PlatformPct decimal.Decimal
	GSTPct      decimal.Decimal
}

func NewCalculator(platformPct, gstPct decimal.Decimal) *Calculator {
	return &Calculator{PlatformPct: platformPct, GSTPct: gstPct}
}

// Calculate splits the fee on rate into base and GST. Each figure is rounded to two
// places half-up from the unrounded intermediates.
func (c *Calculator) Calculate(rate decimal.Decimal) (Breakdown, error) {
	if rate.IsNegative() {
		return Breakdown{}, apperr.New(apperr.InvalidInput, "fees.Calculate", "rate must not be negative")
	}
	base := rate.Mul(c.PlatformPct).Div(hundred)
	gst := base.Mul(c.GSTPct).Div(hundred)
	return Breakdown{
		BaseFee:    round(base),
		GSTAmount:  round(gst),
		TotalFee:   round(base.Add(gst)),
		HourlyRate: rate,
	}, nil
}

// LeadFee is the total fee for a bid of amount.
func (c *Calculator) LeadFee(amount decimal.Decimal) (decimal.Decimal, error) {
	b, err := c.Calculate(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return b.TotalFee, nil
}

// MinBalance is the wallet balance a seeker must hold to go online for a city and
// category whose minimum hourly rate is minRate.
func (c *Calculator) MinBalance(minRate decimal.Decimal) (decimal.Decimal, error) {
	return c.LeadFee(minRate)
}

// round is half-up for the non-negative amounts this package produces.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
