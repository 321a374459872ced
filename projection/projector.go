package projection

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/exemption"
	"github.com/warp/retirement-engine/tax"
)

// =============================================================================
// PROJECTOR - Yearly cash-flow and tax table
// =============================================================================

// Projector holds the reference data for one computation. The zero value
// uses the built-in tax table and ceilings and no credit points.
type Projector struct {
	Taxes        tax.Schedule
	Ceilings     tax.Ceilings
	CreditPoints decimal.Decimal
}

// Project returns one row per year in [startYear, startYear+horizonYears).
// Inputs are never modified. A non-positive horizon yields an empty table.
func (p *Projector) Project(
	pensions []PensionIncome,
	incomes []AdditionalIncome,
	assets []CapitalAsset,
	fixation *exemption.Summary,
	startYear, horizonYears int,
) []YearlyProjection {
	if horizonYears <= 0 {
		return []YearlyProjection{}
	}

	// Only assets with a one-time payment appear in the table.
	var paying []CapitalAsset
	for _, a := range assets {
		if a.HasPayment() {
			paying = append(paying, a)
		}
	}

	rows := make([]YearlyProjection, 0, horizonYears)
	for y := startYear; y < startYear+horizonYears; y++ {
		rows = append(rows, p.projectYear(y, startYear, pensions, incomes, paying, fixation))
	}
	return rows
}

// Input bundles one projection request. Zero Taxes and Ceilings use the
// built-in reference data; StartYear 0 means the current year.
type Input struct {
	Pensions          []PensionIncome    `json:"pensions"`
	AdditionalIncomes []AdditionalIncome `json:"additional_incomes"`
	CapitalAssets     []CapitalAsset     `json:"capital_assets"`
	Fixation          *exemption.Summary `json:"fixation,omitempty"`
	StartYear         int                `json:"start_year"`
	HorizonYears      int                `json:"horizon_years"`
	CreditPoints      decimal.Decimal    `json:"credit_points"`
	Taxes             tax.Schedule       `json:"-"`
	Ceilings          tax.Ceilings       `json:"-"`
}

// Run projects in with a Projector built from its reference data.
func Run(in Input) []YearlyProjection {
	start := in.StartYear
	if start == 0 {
		start = CurrentYear()
	}
	p := &Projector{Taxes: in.Taxes, Ceilings: in.Ceilings, CreditPoints: in.CreditPoints}
	return p.Project(in.Pensions, in.AdditionalIncomes, in.CapitalAssets, in.Fixation, start, in.HorizonYears)
}

func (p *Projector) projectYear(
	year, startYear int,
	pensions []PensionIncome,
	incomes []AdditionalIncome,
	assets []CapitalAsset,
	fixation *exemption.Summary,
) YearlyProjection {
	table := p.Taxes.For(year)
	size := len(pensions) + len(incomes) + len(assets)
	income := make([]Entry, 0, size)
	taxes := make([]Entry, 0, size)

	// 1. Pension amounts; exempt streams stay out of the exemption pool.
	gross := make([]decimal.Decimal, len(pensions))
	pool := make([]decimal.Decimal, len(pensions))
	for i, pen := range pensions {
		gross[i] = pensionMonthly(pen, year, startYear)
		if pen.TaxTreatment != tax.Exempt {
			pool[i] = gross[i]
		}
	}

	// 2. Exemption, largest taxable pension first.
	available := exemption.MonthlyExemptPension(fixation, year, p.Ceilings)
	afterExemption := exemption.Allocate(available, pool)

	// 3. Taxable aggregate: post-exemption pensions + taxable additional incomes.
	taxableMonthly := decimal.Zero
	for i, pen := range pensions {
		if pen.TaxTreatment != tax.Exempt {
			taxableMonthly = taxableMonthly.Add(afterExemption[i])
		}
	}
	additional := make([]decimal.Decimal, len(incomes))
	for i, inc := range incomes {
		additional[i] = additionalMonthly(inc, year, startYear)
		if inc.Treatment() == tax.Taxable {
			taxableMonthly = taxableMonthly.Add(additional[i])
		}
	}

	// 4. Progressive tax on the aggregate, allocated by share.
	monthlyTax := table.Tax(taxableMonthly.Mul(twelve), p.CreditPoints).Div(twelve)
	share := func(amount decimal.Decimal) decimal.Decimal {
		if !taxableMonthly.IsPositive() {
			return decimal.Zero
		}
		return amount.Mul(monthlyTax).Div(taxableMonthly)
	}

	for i, pen := range pensions {
		income = append(income, Entry{SourceID: pen.ID, Name: pen.Name, Kind: SourcePension, Amount: gross[i]})
		t := decimal.Zero
		if pen.TaxTreatment != tax.Exempt {
			t = share(afterExemption[i])
		}
		taxes = append(taxes, Entry{SourceID: pen.ID, Name: pen.Name, Kind: SourcePension, Amount: t})
	}

	for i, inc := range incomes {
		income = append(income, Entry{SourceID: inc.ID, Name: inc.Name, Kind: SourceAdditional, Amount: additional[i]})
		t := decimal.Zero
		switch inc.Treatment() {
		case tax.FixedRate:
			t = additional[i].Mul(inc.TaxRate)
		case tax.Taxable:
			t = share(additional[i])
		}
		taxes = append(taxes, Entry{SourceID: inc.ID, Name: inc.Name, Kind: SourceAdditional, Amount: t})
	}

	// 5. One-time capital payments, taxed on top of the aggregate.
	baseAnnual := taxableMonthly.Mul(twelve)
	for _, a := range assets {
		paid, t := decimal.Zero, decimal.Zero
		if realizationYear(a, startYear) == year {
			paid = a.MonthlyIncome
			t = p.capitalTax(a, year, baseAnnual)
		}
		income = append(income, Entry{SourceID: a.ID, Name: a.Name, Kind: SourceCapital, Amount: paid.Div(twelve)})
		taxes = append(taxes, Entry{SourceID: a.ID, Name: a.Name, Kind: SourceCapital, Amount: t.Div(twelve)})
	}

	// 6. Totals.
	row := YearlyProjection{
		Year:                   year,
		IncomeBreakdown:        income,
		TaxBreakdown:           taxes,
		ExemptPension:          exemption.Used(available, pool),
		ExemptPensionAvailable: available,
	}
	for i := range income {
		row.TotalMonthlyIncome = row.TotalMonthlyIncome.Add(income[i].Amount)
		row.TotalMonthlyTax = row.TotalMonthlyTax.Add(taxes[i].Amount)
	}
	row.NetMonthlyIncome = row.TotalMonthlyIncome.Sub(row.TotalMonthlyTax)
	return row
}

// capitalTax returns the annual tax on a capital payment realized in year.
// A tax_spread payment is split into SpreadYears equal portions, each taxed
// at the margin of its own year's table, and the whole estimate is reported
// in the realization year.
func (p *Projector) capitalTax(a CapitalAsset, year int, baseAnnual decimal.Decimal) decimal.Decimal {
	payment := a.MonthlyIncome
	switch a.TaxTreatment.OrTaxable() {
	case tax.Exempt:
		return decimal.Zero
	case tax.CapitalGains:
		return payment.Mul(tax.CapitalGainsRate)
	case tax.FixedRate:
		return payment.Mul(a.TaxRate)
	case tax.TaxSpread:
		k := max(a.SpreadYears, 1)
		portion := payment.Div(decimal.NewFromInt(int64(k)))
		total := decimal.Zero
		for j := 0; j < k; j++ {
			total = total.Add(tax.Marginal(baseAnnual, portion, p.Taxes.For(year+j), p.CreditPoints))
		}
		return total
	default:
		return tax.Marginal(baseAnnual, payment, p.Taxes.For(year), p.CreditPoints)
	}
}

// =============================================================================
// PER-SOURCE AMOUNTS
// =============================================================================

// pensionMonthly is 0 before the start year, prorated by (13 - startMonth)/12
// in the start year, and indexed yearly afterwards.
func pensionMonthly(pen PensionIncome, year, fallbackYear int) decimal.Decimal {
	sy, sm := yearMonth(pen.StartDate, fallbackYear)
	switch {
	case year < sy:
		return decimal.Zero
	case year == sy:
		return pen.MonthlyAmount.Mul(decimal.NewFromInt(int64(13 - int(sm)))).Div(twelve)
	default:
		growth := decimal.NewFromInt(1).Add(pen.IndexationRate)
		return pen.MonthlyAmount.Mul(growth.Pow(decimal.NewFromInt(int64(year - sy))))
	}
}

// additionalMonthly is the monthly amount while start <= year <= end.
func additionalMonthly(inc AdditionalIncome, year, fallbackYear int) decimal.Decimal {
	sy, _ := yearMonth(inc.StartDate, fallbackYear)
	if year < sy {
		return decimal.Zero
	}
	if ey, ok := endYear(inc.EndDate); ok && year > ey {
		return decimal.Zero
	}
	return inc.MonthlyAmount()
}

func realizationYear(a CapitalAsset, fallbackYear int) int {
	y, _ := yearMonth(a.StartDate, fallbackYear)
	return y
}

// StartYearOf exposes the lenient start-year rule for callers building
// inputs (e.g. NPV horizons): unparseable dates resolve to fallbackYear.
func StartYearOf(date string, fallbackYear int) int {
	y, _ := yearMonth(date, fallbackYear)
	return y
}

// CurrentYear is the default projection start.
func CurrentYear() int { return time.Now().Year() }
