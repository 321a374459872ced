package valuation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/projection"
	"github.com/warp/retirement-engine/tax"
)

// Options configure Summarize. A zero Taxes schedule uses the default table.
type Options struct {
	DiscountRate  decimal.Decimal
	HorizonYears  int
	InflationRate decimal.Decimal
	StartYear     int
	Taxes         tax.Schedule
}

// Summary reports both NPVs individually and summed.
type Summary struct {
	DiscountRate     decimal.Decimal  `json:"discount_rate"`
	CashFlowNPV      decimal.Decimal  `json:"cash_flow_npv"`
	CapitalAssetsNPV decimal.Decimal  `json:"capital_assets_npv"`
	TotalNPV         decimal.Decimal  `json:"total_npv"`
	Assets           []AssetValuation `json:"assets"`
}

// Summarize discounts the annualized net income of rows and adds the
// standalone valuation of non-paying assets. Asset gains are taxed on the
// table in force at the horizon.
func Summarize(rows []projection.YearlyProjection, assets []projection.CapitalAsset, opts Options) Summary {
	start := opts.StartYear
	if start == 0 && len(rows) > 0 {
		start = rows[0].Year
	}
	v := Valuer{
		InflationRate: opts.InflationRate,
		Table:         opts.Taxes.For(start + opts.HorizonYears),
	}

	s := Summary{
		DiscountRate: opts.DiscountRate,
		CashFlowNPV:  NPV(AnnualNetCashFlows(rows), opts.DiscountRate),
	}
	s.Assets, s.CapitalAssetsNPV = v.CapitalAssetsNPV(assets, opts.HorizonYears, opts.DiscountRate)
	s.TotalNPV = s.CashFlowNPV.Add(s.CapitalAssetsNPV)
	return s
}
