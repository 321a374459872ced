/*
Package valuation discounts projected cash flows and values capital assets
that never pay out inside the projection table.

PURPOSE:
  The projector reports yearly net income. Advisors compare scenarios by a
  single number, the net present value of that stream plus the after-tax
  present value of lump sums kept invested until the horizon.

FORMULAS:
  NPV            = Σ CF_i / (1 + r)^i          (CF_0 undiscounted)
  Total return   = (1 + return) × (1 + indexation) - 1
  Future value   = CV × (1 + total)^years
  After-tax NPV  = (FV - tax(FV)) / (1 + r)^years

PRECISION:
  Flows, rates and results are decimal.Decimal. Discount factors use integer
  powers only, so every figure is exact up to the division precision.

SEE ALSO:
  - assets.go: capital asset valuation
  - summary.go: Summarize, combining both NPVs
*/
package valuation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/projection"
)

var one = decimal.NewFromInt(1)

// discountFactor is (1+rate)^periods; ok is false when rate <= -100%.
func discountFactor(rate decimal.Decimal, periods int) (decimal.Decimal, bool) {
	base := one.Add(rate)
	if !base.IsPositive() {
		return decimal.Zero, false
	}
	return base.Pow(decimal.NewFromInt(int64(periods))), true
}

// NPV returns Σ cashFlows[i] / (1+rate)^i. The first flow is not discounted.
// A rate at or below -100% has no meaningful discount factor and yields 0.
func NPV(cashFlows []decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	pv := decimal.Zero
	for i, cf := range cashFlows {
		f, ok := discountFactor(rate, i)
		if !ok {
			return decimal.Zero
		}
		pv = pv.Add(cf.Div(f))
	}
	return pv
}

// PresentValue discounts a single amount received after periods years.
func PresentValue(amount, rate decimal.Decimal, periods int) decimal.Decimal {
	if periods < 0 {
		return decimal.Zero
	}
	f, ok := discountFactor(rate, periods)
	if !ok {
		return decimal.Zero
	}
	return amount.Div(f)
}

// AnnualNetCashFlows annualizes each row's net monthly income.
func AnnualNetCashFlows(rows []projection.YearlyProjection) []decimal.Decimal {
	out := make([]decimal.Decimal, len(rows))
	for i, row := range rows {
		out[i] = row.AnnualNet()
	}
	return out
}
