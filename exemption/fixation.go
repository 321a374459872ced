package exemption

import (
	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/tax"
)

// MonthsOfExemptCapital converts remaining exempt capital into a monthly
// exempt amount (capital / 180).
const MonthsOfExemptCapital = 180

var monthsOfExemptCapital = decimal.NewFromInt(MonthsOfExemptCapital)

// Summary is the rights-fixation result consumed by the engine.
type Summary struct {
	EligibilityYear           int              `json:"eligibility_year"`
	RemainingExemptCapital    decimal.Decimal  `json:"remaining_exempt_capital"`
	RemainingMonthlyExemption *decimal.Decimal `json:"remaining_monthly_exemption,omitempty"`
}

// MonthlyExemption returns RemainingMonthlyExemption, defaulting to
// RemainingExemptCapital / 180 when absent.
func (s Summary) MonthlyExemption() decimal.Decimal {
	if s.RemainingMonthlyExemption != nil {
		return *s.RemainingMonthlyExemption
	}
	return s.RemainingExemptCapital.Div(monthsOfExemptCapital)
}

// Percentage is the share of the eligibility-year ceiling that the monthly
// exemption represents. It is fixed once and applied to later ceilings.
func (s Summary) Percentage(ceilings tax.Ceilings) decimal.Decimal {
	ceiling := ceilings.For(s.EligibilityYear)
	if !ceiling.IsPositive() {
		return decimal.Zero
	}
	return s.MonthlyExemption().Div(ceiling)
}

// MonthlyExemptPension returns the exempt pension for year. A nil summary,
// or a year before eligibility, yields 0. In the eligibility year the amount
// is RemainingExemptCapital / 180; afterwards it is Percentage times that
// year's ceiling.
func MonthlyExemptPension(s *Summary, year int, ceilings tax.Ceilings) decimal.Decimal {
	if s == nil || year < s.EligibilityYear {
		return decimal.Zero
	}
	if year == s.EligibilityYear {
		return s.RemainingExemptCapital.Div(monthsOfExemptCapital)
	}
	return s.Percentage(ceilings).Mul(ceilings.For(year))
}
