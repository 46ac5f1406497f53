package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/workerlly/internal/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateMinimumRate(t *testing.T) {
	c := NewCalculator(dec("20"), dec("18"))

	b, err := c.Calculate(dec("100"))
	require.NoError(t, err)
	assert.True(t, dec("20.00").Equal(b.BaseFee), b.BaseFee.String())
	assert.True(t, dec("3.60").Equal(b.GSTAmount), b.GSTAmount.String())
	assert.True(t, dec("23.60").Equal(b.TotalFee), b.TotalFee.String())
	assert.True(t, dec("100").Equal(b.HourlyRate))

	min, err := c.MinBalance(dec("100"))
	require.NoError(t, err)
	assert.Equal(t, "23.6", min.String())
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	c := NewCalculator(dec("10"), dec("18"))

	// base 12.345 -> 12.35, gst 2.2221 -> 2.22, total 14.5671 -> 14.57
	b, err := c.Calculate(dec("123.45"))
	require.NoError(t, err)
	assert.Equal(t, "12.35", b.BaseFee.StringFixed(2))
	assert.Equal(t, "2.22", b.GSTAmount.StringFixed(2))
	assert.Equal(t, "14.57", b.TotalFee.StringFixed(2))
}

func TestZeroRatesAndPercentages(t *testing.T) {
	b, err := NewCalculator(dec("0"), dec("18")).Calculate(dec("250"))
	require.NoError(t, err)
	assert.True(t, b.TotalFee.IsZero())

	b, err = NewCalculator(dec("20"), dec("0")).Calculate(dec("0"))
	require.NoError(t, err)
	assert.True(t, b.TotalFee.IsZero())
}

func TestNegativeRateRejected(t *testing.T) {
	_, err := NewCalculator(dec("20"), dec("18")).Calculate(dec("-1"))
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestLeadFeeForBid(t *testing.T) {
	fee, err := NewCalculator(dec("20"), dec("18")).LeadFee(dec("120"))
	require.NoError(t, err)
	assert.Equal(t, "28.32", fee.StringFixed(2))
}
