/*
Package projection produces the year-by-year net income and tax table for a
client's retirement portfolio.

PURPOSE:
  Given everything a retiree will receive (pensions, additional incomes,
  lump-sum capital payments) and the rights-fixation result, compute for
  every calendar year up to the horizon:
    - monthly income per source
    - monthly tax per source
    - the exempt pension applied
    - totals and net

KEY CONCEPTS IN THIS FILE (types.go):
  - PensionIncome:    annuity stream, optionally indexed yearly
  - AdditionalIncome: rent, salary, annuity from abroad; any frequency
  - CapitalAsset:     lump sum; paid once in its start year when
                      MonthlyIncome > 0, otherwise valued only by NPV
  - YearlyProjection: one output row

UNITS:
  Every *Monthly* field is ILS per month, held as decimal.Decimal. Lump-sum
  payments are shown as a monthly equivalent (payment / 12) so a row adds up
  across sources.

BREAKDOWN ALIGNMENT:
  IncomeBreakdown[i] and TaxBreakdown[i] always describe the same source.
  Order: pensions, additional incomes, then capital assets that carry a
  one-time payment. A source with nothing to contribute in a year still has
  an explicit zero entry.

SEE ALSO:
  - projector.go: The yearly loop
  - dates.go: Lenient date parsing
  - exemption/: Exempt pension per year and its allocation
*/
package projection

import (
	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/tax"
)

var twelve = decimal.NewFromInt(12)

// =============================================================================
// INCOME SOURCES
// =============================================================================

// PensionIncome is a monthly annuity.
type PensionIncome struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	MonthlyAmount  decimal.Decimal `json:"monthly_amount"`
	StartDate      string          `json:"start_date"`
	IndexationRate decimal.Decimal `json:"indexation_rate"` // yearly, 0 = none
	TaxTreatment   tax.Treatment   `json:"tax_treatment"`   // exempt streams skip the exemption pool
}

// Frequency of an additional income payment.
type Frequency string

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annual    Frequency = "annual"
)

// MonthsPerPayment returns how many months one payment covers.
func (f Frequency) MonthsPerPayment() int64 {
	switch f {
	case Quarterly:
		return 3
	case Annual:
		return 12
	default:
		return 1
	}
}

// AdditionalIncome is any income that is not a pension from the portfolio.
type AdditionalIncome struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	Frequency    Frequency       `json:"frequency"`
	StartDate    string          `json:"start_date"`
	EndDate      string          `json:"end_date,omitempty"`
	TaxTreatment tax.Treatment   `json:"tax_treatment"` // taxable, exempt or fixed_rate
	TaxRate      decimal.Decimal `json:"tax_rate"`
}

// MonthlyAmount normalizes Amount to a monthly figure.
func (a AdditionalIncome) MonthlyAmount() decimal.Decimal {
	return a.Amount.Div(decimal.NewFromInt(a.Frequency.MonthsPerPayment()))
}

// Treatment is the effective treatment of the income. Only exempt and
// fixed_rate stay out of the progressive aggregate; anything else, including
// capital_gains and tax_spread which do not apply to recurring income, is
// taxed on the brackets.
func (a AdditionalIncome) Treatment() tax.Treatment {
	switch a.TaxTreatment {
	case tax.Exempt, tax.FixedRate:
		return a.TaxTreatment
	default:
		return tax.Taxable
	}
}

// IndexationMethod controls how a capital asset's value grows beyond its
// return rate.
type IndexationMethod string

const (
	IndexationNone  IndexationMethod = "none"
	IndexationFixed IndexationMethod = "fixed"
	IndexationCPI   IndexationMethod = "cpi"
)

// CapitalAsset is a lump sum. MonthlyIncome > 0 is the payment realized once
// in the StartDate year; MonthlyIncome == 0 keeps the asset out of the yearly
// table entirely.
type CapitalAsset struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	CurrentValue     decimal.Decimal  `json:"current_value"`
	MonthlyIncome    decimal.Decimal  `json:"monthly_income"`
	AnnualReturnRate decimal.Decimal  `json:"annual_return_rate"`
	IndexationMethod IndexationMethod `json:"indexation_method"`
	IndexationRate   decimal.Decimal  `json:"indexation_rate"` // used with IndexationFixed
	StartDate        string           `json:"start_date"`
	TaxTreatment     tax.Treatment    `json:"tax_treatment"`
	TaxRate          decimal.Decimal  `json:"tax_rate"`               // fixed_rate only
	SpreadYears      int              `json:"spread_years,omitempty"` // tax_spread only
}

// HasPayment reports whether the asset pays out in the cash-flow table.
func (c CapitalAsset) HasPayment() bool { return c.MonthlyIncome.IsPositive() }

// =============================================================================
// OUTPUT
// =============================================================================

// SourceKind tags a breakdown entry.
type SourceKind string

const (
	SourcePension    SourceKind = "pension"
	SourceAdditional SourceKind = "additional_income"
	SourceCapital    SourceKind = "capital_asset"
)

// Entry is one source's monthly figure in a row.
type Entry struct {
	SourceID string          `json:"source_id"`
	Name     string          `json:"name"`
	Kind     SourceKind      `json:"kind"`
	Amount   decimal.Decimal `json:"amount"`
}

// YearlyProjection is one calendar year of the cash-flow table.
type YearlyProjection struct {
	Year               int             `json:"year"`
	TotalMonthlyIncome decimal.Decimal `json:"total_monthly_income"`
	TotalMonthlyTax    decimal.Decimal `json:"total_monthly_tax"`
	NetMonthlyIncome   decimal.Decimal `json:"net_monthly_income"`
	IncomeBreakdown    []Entry         `json:"income_breakdown"`
	TaxBreakdown       []Entry         `json:"tax_breakdown"`

	// ExemptPension is the part of the exemption actually offset against
	// taxable pensions; ExemptPensionAvailable is the year's entitlement.
	ExemptPension          decimal.Decimal `json:"exempt_pension"`
	ExemptPensionAvailable decimal.Decimal `json:"exempt_pension_available"`
}

// AnnualNet returns the row's net income for the whole year.
func (y YearlyProjection) AnnualNet() decimal.Decimal { return y.NetMonthlyIncome.Mul(twelve) }
