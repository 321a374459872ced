package projection_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/retirement-engine/exemption"
	"github.com/warp/retirement-engine/projection"
	"github.com/warp/retirement-engine/tax"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !d(want).Equal(got) {
		assert.Fail(t, fmt.Sprintf("want %s, got %s", want, got), msgAndArgs...)
	}
}

func newProjector() *projection.Projector {
	return &projection.Projector{
		Taxes:    tax.DefaultSchedule(),
		Ceilings: tax.DefaultCeilings(),
	}
}

func pension(id, monthly, start string) projection.PensionIncome {
	return projection.PensionIncome{ID: id, Name: id, MonthlyAmount: d(monthly), StartDate: start, TaxTreatment: tax.Taxable}
}

// taxOn is the monthly bracket tax on a monthly taxable amount.
func taxOn(monthly string) decimal.Decimal {
	twelve := decimal.NewFromInt(12)
	return tax.CalculateByBrackets(d(monthly).Mul(twelve), tax.Default2025().Brackets).Div(twelve)
}

func assertRowBalanced(t *testing.T, row projection.YearlyProjection) {
	t.Helper()
	require.Len(t, row.TaxBreakdown, len(row.IncomeBreakdown), "breakdowns must stay index-aligned")

	income, taxes := decimal.Zero, decimal.Zero
	for i := range row.IncomeBreakdown {
		assert.Equal(t, row.IncomeBreakdown[i].SourceID, row.TaxBreakdown[i].SourceID)
		income = income.Add(row.IncomeBreakdown[i].Amount)
		taxes = taxes.Add(row.TaxBreakdown[i].Amount)
	}
	assert.True(t, income.Equal(row.TotalMonthlyIncome))
	assert.True(t, taxes.Equal(row.TotalMonthlyTax))
	assert.True(t, row.TotalMonthlyIncome.Sub(row.TotalMonthlyTax).Equal(row.NetMonthlyIncome))
}

// =============================================================================
// PENSIONS
// =============================================================================

func TestProject_SingleTaxablePension(t *testing.T) {
	// GIVEN: One 10,000/month taxable pension already running
	// WHEN: Projecting three years
	// THEN: Every year taxes 120,000 annual income on the default brackets

	rows := newProjector().Project(
		[]projection.PensionIncome{pension("p1", "10000", "2020-01-01")},
		nil, nil, nil, 2025, 3,
	)

	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, 2025+i, row.Year)
		assertDecimal(t, "10000", row.TotalMonthlyIncome)
		assertDecimal(t, "1119.6", row.TotalMonthlyTax, "13,435.2 a year")
		assertDecimal(t, "8880.4", row.NetMonthlyIncome)
		assertRowBalanced(t, row)
	}
}

func TestProject_ProrationAndIndexation(t *testing.T) {
	p := pension("p1", "1200", "2025-07-01")
	p.IndexationRate = d("0.02")

	rows := newProjector().Project([]projection.PensionIncome{p}, nil, nil, nil, 2024, 4)
	require.Len(t, rows, 4)

	assert.True(t, rows[0].IncomeBreakdown[0].Amount.IsZero(), "before start year")
	assertDecimal(t, "600", rows[1].IncomeBreakdown[0].Amount, "July start: 6/12 of the year")
	assertDecimal(t, "1224", rows[2].IncomeBreakdown[0].Amount)
	assertDecimal(t, "1248.48", rows[3].IncomeBreakdown[0].Amount)
}

func TestProject_UnparseableDateDefaultsToStartYear(t *testing.T) {
	rows := newProjector().Project(
		[]projection.PensionIncome{pension("p1", "5000", "not a date")},
		nil, nil, nil, 2030, 2,
	)

	require.Len(t, rows, 2)
	assertDecimal(t, "5000", rows[0].IncomeBreakdown[0].Amount, "full year from projection start")
	assertDecimal(t, "5000", rows[1].IncomeBreakdown[0].Amount)
}

// =============================================================================
// EXEMPTION
// =============================================================================

func TestProject_ExemptionOffsetsLargestTaxablePension(t *testing.T) {
	// GIVEN: Fixation worth 1,000/month from 2025 and three pensions,
	//        one already exempt
	// WHEN: Projecting 2025
	// THEN: The 5,000 pension absorbs the exemption and tax is shared by
	//       post-exemption amounts

	exempt := pension("p3", "2000", "2020-01-01")
	exempt.TaxTreatment = tax.Exempt
	pensions := []projection.PensionIncome{
		pension("p1", "3000", "2020-01-01"),
		pension("p2", "5000", "2020-01-01"),
		exempt,
	}
	fixation := &exemption.Summary{EligibilityYear: 2025, RemainingExemptCapital: d("180000")}

	rows := newProjector().Project(pensions, nil, nil, fixation, 2025, 1)
	require.Len(t, rows, 1)
	row := rows[0]

	assertDecimal(t, "10000", row.TotalMonthlyIncome, "exempt streams still count as income")
	assertDecimal(t, "1000", row.ExemptPension)
	assertDecimal(t, "1000", row.ExemptPensionAvailable)

	assertDecimal(t, "700", taxOn("7000"))
	assertDecimal(t, "300", row.TaxBreakdown[0].Amount, "3,000 / 7,000 of 700")
	assertDecimal(t, "400", row.TaxBreakdown[1].Amount, "4,000 / 7,000 of 700")
	assert.True(t, row.TaxBreakdown[2].Amount.IsZero())
	assertRowBalanced(t, row)
}

func TestProject_ExemptionOnlyFromEligibilityYear(t *testing.T) {
	fixation := &exemption.Summary{EligibilityYear: 2026, RemainingExemptCapital: d("180000")}
	rows := newProjector().Project(
		[]projection.PensionIncome{pension("p1", "8000", "2020-01-01")},
		nil, nil, fixation, 2025, 2,
	)

	assert.True(t, rows[0].ExemptPension.IsZero())
	assertDecimal(t, "839.6", rows[0].TotalMonthlyTax)
	assert.True(t, taxOn("8000").Equal(rows[0].TotalMonthlyTax))
	assertDecimal(t, "1000", rows[1].ExemptPension)
	assertDecimal(t, "700", rows[1].TotalMonthlyTax)
}

// =============================================================================
// ADDITIONAL INCOMES
// =============================================================================

func TestProject_AdditionalIncomeTreatments(t *testing.T) {
	incomes := []projection.AdditionalIncome{
		{ID: "salary", Amount: d("3000"), Frequency: projection.Quarterly, StartDate: "2025-01-01", TaxTreatment: tax.Taxable},
		{ID: "rent", Amount: d("5000"), Frequency: projection.Monthly, StartDate: "2025-01-01", EndDate: "2026-12-31", TaxTreatment: tax.FixedRate, TaxRate: d("0.10")},
		{ID: "allowance", Amount: d("12000"), Frequency: projection.Annual, StartDate: "2025-01-01", TaxTreatment: tax.Exempt},
	}

	rows := newProjector().Project(nil, incomes, nil, nil, 2025, 3)
	require.Len(t, rows, 3)

	first := rows[0]
	assertDecimal(t, "1000", first.IncomeBreakdown[0].Amount)
	assertDecimal(t, "5000", first.IncomeBreakdown[1].Amount)
	assertDecimal(t, "1000", first.IncomeBreakdown[2].Amount)

	// Fixed-rate income is out of the bracket calculation.
	assertDecimal(t, "100", first.TaxBreakdown[0].Amount)
	assertDecimal(t, "500", first.TaxBreakdown[1].Amount)
	assert.True(t, first.TaxBreakdown[2].Amount.IsZero())
	assertRowBalanced(t, first)

	last := rows[2]
	assert.True(t, last.IncomeBreakdown[1].Amount.IsZero(), "rent ended in 2026")
	assert.True(t, last.TaxBreakdown[1].Amount.IsZero())
}

func TestProject_NonRecurringTreatmentOnIncomeIsBracketTaxed(t *testing.T) {
	// GIVEN: A 10,000 taxable pension and a 5,000 income marked capital_gains
	// WHEN: Projecting one year
	// THEN: The income joins the aggregate, so the row carries the bracket
	//       tax on 15,000 and nothing more

	incomes := []projection.AdditionalIncome{
		{ID: "odd", Amount: d("5000"), Frequency: projection.Monthly, StartDate: "2020-01-01", TaxTreatment: tax.CapitalGains},
	}
	row := newProjector().Project(
		[]projection.PensionIncome{pension("p1", "10000", "2020-01-01")},
		incomes, nil, nil, 2025, 1,
	)[0]

	assert.Equal(t, "2116.00", row.TotalMonthlyTax.StringFixed(2), "25,392 a year on 180,000")
	assertRowBalanced(t, row)

	// The same income on its own is taxed too, never silently free.
	alone := newProjector().Project(nil, incomes, nil, nil, 2025, 1)[0]
	assertDecimal(t, "500", alone.TaxBreakdown[0].Amount)

	spread := incomes[0]
	spread.TaxTreatment = tax.TaxSpread
	assert.Equal(t, tax.Taxable, spread.Treatment())
}

func TestProject_CreditPointsReduceBracketTaxOnly(t *testing.T) {
	p := newProjector()
	p.CreditPoints = d("2.25")

	rows := p.Project(
		[]projection.PensionIncome{pension("p1", "10000", "2020-01-01")},
		[]projection.AdditionalIncome{{ID: "rent", Amount: d("4000"), Frequency: projection.Monthly, StartDate: "2020-01-01", TaxTreatment: tax.FixedRate, TaxRate: d("0.10")}},
		nil, nil, 2025, 1,
	)

	row := rows[0]
	assertDecimal(t, "575.1", row.TaxBreakdown[0].Amount, "(13,435.2 - 2.25 x 2,904) / 12")
	assertDecimal(t, "400", row.TaxBreakdown[1].Amount, "credits never reduce fixed-rate tax")
}

// =============================================================================
// CAPITAL ASSETS
// =============================================================================

func TestProject_CapitalPaymentOnlyInStartYear(t *testing.T) {
	assets := []projection.CapitalAsset{
		{ID: "lump", CurrentValue: d("120000"), MonthlyIncome: d("120000"), StartDate: "2026-03-01", TaxTreatment: tax.Taxable},
		{ID: "savings", CurrentValue: d("500000"), MonthlyIncome: decimal.Zero, StartDate: "2026-01-01", TaxTreatment: tax.CapitalGains},
	}

	rows := newProjector().Project(nil, nil, assets, nil, 2025, 3)
	require.Len(t, rows, 3)

	for _, row := range rows {
		require.Len(t, row.IncomeBreakdown, 1, "NPV-only assets never enter the table")
		assert.Equal(t, "lump", row.IncomeBreakdown[0].SourceID)
		assertRowBalanced(t, row)
	}

	assert.True(t, rows[0].IncomeBreakdown[0].Amount.IsZero())
	assertDecimal(t, "10000", rows[1].IncomeBreakdown[0].Amount)
	assertDecimal(t, "1119.6", rows[1].TaxBreakdown[0].Amount, "marginal tax on an empty base")
	assert.True(t, rows[2].IncomeBreakdown[0].Amount.IsZero())
	assert.True(t, rows[2].TaxBreakdown[0].Amount.IsZero())
}

func TestProject_CapitalMarginalTaxAboveBase(t *testing.T) {
	// GIVEN: A 7,010/month pension (top of the 10% band) and a 36,600 payment
	// THEN: The whole payment fills the 14% band exactly

	assets := []projection.CapitalAsset{{ID: "lump", MonthlyIncome: d("36600"), StartDate: "2025-06-01", TaxTreatment: tax.Taxable}}
	rows := newProjector().Project(
		[]projection.PensionIncome{pension("p1", "7010", "2020-01-01")},
		nil, assets, nil, 2025, 1,
	)

	assertDecimal(t, "427", rows[0].TaxBreakdown[1].Amount, "36,600 x 14% / 12")
}

func TestProject_TaxSpreadFrontLoadsWholeEstimate(t *testing.T) {
	// GIVEN: 300,000 spread over 3 years with no other income
	// WHEN: Projecting the realization year and the following years
	// THEN: Three 100,000 portions are each taxed at the margin and the
	//       whole estimate lands in the realization year

	assets := []projection.CapitalAsset{{ID: "spread", MonthlyIncome: d("300000"), StartDate: "2025-01-01", TaxTreatment: tax.TaxSpread, SpreadYears: 3}}
	rows := newProjector().Project(nil, nil, assets, nil, 2025, 3)

	assertDecimal(t, "2658.8", rows[0].TaxBreakdown[0].Amount, "3 x 10,635.2 / 12")
	assert.True(t, rows[1].TaxBreakdown[0].Amount.IsZero())
	assert.True(t, rows[2].TaxBreakdown[0].Amount.IsZero())
}

func TestProject_TaxSpreadUsesEachYearsTable(t *testing.T) {
	// 2026 onwards taxes everything at a flat 20%.
	flat := tax.Table{
		Year:     2026,
		Brackets: []tax.Bracket{tax.NewBracket(0, -1, "0.20")},
	}
	p := &projection.Projector{Taxes: tax.NewSchedule(tax.Default2025(), flat)}

	assets := []projection.CapitalAsset{{ID: "spread", MonthlyIncome: d("200000"), StartDate: "2025-01-01", TaxTreatment: tax.TaxSpread, SpreadYears: 2}}
	rows := p.Project(nil, nil, assets, nil, 2025, 1)

	want := tax.CalculateByBrackets(d("100000"), tax.Default2025().Brackets).Add(d("20000")).Div(decimal.NewFromInt(12))
	assert.True(t, want.Equal(rows[0].TaxBreakdown[0].Amount))
	assert.Equal(t, "2552.93", rows[0].TaxBreakdown[0].Amount.StringFixed(2))
}

func TestProject_CapitalFlatTreatments(t *testing.T) {
	assets := []projection.CapitalAsset{
		{ID: "cg", MonthlyIncome: d("12000"), StartDate: "2025", TaxTreatment: tax.CapitalGains},
		{ID: "fixed", MonthlyIncome: d("12000"), StartDate: "2025", TaxTreatment: tax.FixedRate, TaxRate: d("0.15")},
		{ID: "free", MonthlyIncome: d("12000"), StartDate: "2025", TaxTreatment: tax.Exempt},
	}
	row := newProjector().Project(nil, nil, assets, nil, 2025, 1)[0]

	assertDecimal(t, "250", row.TaxBreakdown[0].Amount)
	assertDecimal(t, "150", row.TaxBreakdown[1].Amount)
	assert.True(t, row.TaxBreakdown[2].Amount.IsZero())
	assertDecimal(t, "3000", row.TotalMonthlyIncome)
}

// =============================================================================
// GRACEFUL DEGRADATION
// =============================================================================

func TestProject_EmptyInputs(t *testing.T) {
	var p projection.Projector

	assert.Empty(t, p.Project(nil, nil, nil, nil, 2025, 0))
	assert.Empty(t, p.Project(nil, nil, nil, nil, 2025, -3))

	rows := p.Project(nil, nil, nil, nil, 2025, 2)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.TotalMonthlyIncome.IsZero())
		assert.True(t, row.TotalMonthlyTax.IsZero())
		assert.Empty(t, row.IncomeBreakdown)
	}
}

func TestProject_InputsNotMutated(t *testing.T) {
	pensions := []projection.PensionIncome{pension("p1", "3000", "2020-01-01"), pension("p2", "5000", "2020-01-01")}
	before := append([]projection.PensionIncome(nil), pensions...)

	newProjector().Project(pensions, nil, nil, &exemption.Summary{EligibilityYear: 2020, RemainingExemptCapital: d("500000")}, 2025, 5)

	assert.Equal(t, before, pensions)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2025-03-01", "01/03/2025", "2025-03", "2025-03-01T00:00:00Z"} {
		parsed, ok := projection.ParseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, 2025, parsed.Year(), s)
	}

	_, ok := projection.ParseDate("")
	assert.False(t, ok)
	_, ok = projection.ParseDate("31/31/2025")
	assert.False(t, ok)

	assert.Equal(t, 2040, projection.StartYearOf("??", 2040))
	assert.Equal(t, 2027, projection.StartYearOf("2027-10-10", 2040))
}

func TestRun_MatchesProjector(t *testing.T) {
	in := projection.Input{
		Pensions:     []projection.PensionIncome{pension("p1", "8000", "2024-01-01")},
		StartYear:    2025,
		HorizonYears: 4,
		CreditPoints: d("2.25"),
		Taxes:        tax.DefaultSchedule(),
	}
	p := &projection.Projector{Taxes: in.Taxes, CreditPoints: in.CreditPoints}

	assert.Equal(t, p.Project(in.Pensions, nil, nil, nil, 2025, 4), projection.Run(in))

	in.StartYear = 0
	rows := projection.Run(in)
	require.Len(t, rows, 4)
	assert.Equal(t, projection.CurrentYear(), rows[0].Year)
}
