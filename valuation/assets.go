package valuation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/projection"
	"github.com/warp/retirement-engine/tax"
)

// AssetValuation is the standalone valuation of one capital asset.
type AssetValuation struct {
	AssetID         string          `json:"asset_id"`
	Name            string          `json:"name"`
	Years           int             `json:"years"`
	TotalReturnRate decimal.Decimal `json:"total_return_rate"`
	FutureValue     decimal.Decimal `json:"future_value"`
	PresentValue    decimal.Decimal `json:"present_value"`
	Gain            decimal.Decimal `json:"gain"`
	TaxableGain     decimal.Decimal `json:"taxable_gain"`
	EstimatedTax    decimal.Decimal `json:"estimated_tax"`
	TaxTreatment    tax.Treatment   `json:"tax_treatment"`
	AfterTaxNPV     decimal.Decimal `json:"after_tax_npv"`
}

// Valuer values capital assets against one inflation assumption and tax
// table.
type Valuer struct {
	InflationRate decimal.Decimal
	Table         tax.Table
}

// indexation returns the yearly indexation rate for a's method.
func (v Valuer) indexation(a projection.CapitalAsset) decimal.Decimal {
	switch a.IndexationMethod {
	case projection.IndexationFixed:
		return a.IndexationRate
	case projection.IndexationCPI:
		return v.InflationRate
	default:
		return decimal.Zero
	}
}

func grow(amount, rate decimal.Decimal, years int) decimal.Decimal {
	return amount.Mul(one.Add(rate).Pow(decimal.NewFromInt(int64(years))))
}

// Value projects a to the horizon, estimates the tax on realizing it there,
// and discounts both back at discountRate.
func (v Valuer) Value(a projection.CapitalAsset, years int, discountRate decimal.Decimal) AssetValuation {
	years = max(years, 0)
	total := one.Add(a.AnnualReturnRate).Mul(one.Add(v.indexation(a))).Sub(one)
	fv := grow(a.CurrentValue, total, years)
	gain := fv.Sub(a.CurrentValue)

	res := AssetValuation{
		AssetID:         a.ID,
		Name:            a.Name,
		Years:           years,
		TotalReturnRate: total,
		FutureValue:     fv,
		PresentValue:    PresentValue(fv, discountRate, years),
		Gain:            gain,
		TaxTreatment:    a.TaxTreatment.OrTaxable(),
	}

	switch res.TaxTreatment {
	case tax.Exempt:
	case tax.CapitalGains:
		// Only the real gain is taxed.
		realGain := fv.Sub(grow(a.CurrentValue, v.InflationRate, years))
		res.TaxableGain = decimal.Max(decimal.Zero, realGain)
		res.EstimatedTax = res.TaxableGain.Mul(tax.CapitalGainsRate)
	case tax.FixedRate:
		res.TaxableGain = decimal.Max(decimal.Zero, gain)
		res.EstimatedTax = res.TaxableGain.Mul(a.TaxRate)
	default:
		res.TaxableGain = decimal.Max(decimal.Zero, gain)
		brackets := v.Table.Brackets
		if len(brackets) == 0 {
			brackets = tax.Default2025().Brackets
		}
		res.EstimatedTax = tax.CalculateByBrackets(res.TaxableGain, brackets)
	}

	res.AfterTaxNPV = res.PresentValue.Sub(PresentValue(res.EstimatedTax, discountRate, years))
	return res
}

// CapitalAssetsNPV values every asset absent from the cash-flow table
// (MonthlyIncome == 0) and returns the per-asset results with their summed
// after-tax NPV.
func (v Valuer) CapitalAssetsNPV(assets []projection.CapitalAsset, horizonYears int, discountRate decimal.Decimal) ([]AssetValuation, decimal.Decimal) {
	out := []AssetValuation{}
	sum := decimal.Zero
	for _, a := range assets {
		if a.HasPayment() {
			continue
		}
		av := v.Value(a, horizonYears, discountRate)
		out = append(out, av)
		sum = sum.Add(av.AfterTaxNPV)
	}
	return out, sum
}
