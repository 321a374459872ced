package conversion

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/projection"
	"github.com/warp/retirement-engine/tax"
)

// DefaultAnnuityFactor converts capital into a monthly annuity
// (monthly = capital / factor).
var DefaultAnnuityFactor = decimal.NewFromInt(200)

// ConvertOptions shape the record a conversion produces.
type ConvertOptions struct {
	ID               string
	Name             string
	StartDate        string
	AnnuityFactor    decimal.Decimal // pension path; DefaultAnnuityFactor when <= 0
	IndexationRate   decimal.Decimal // pension path
	AnnualReturnRate decimal.Decimal // capital path
	IndexationMethod projection.IndexationMethod
	SpreadYears      int             // capital path; > 1 spreads the tax on a non-exempt payment
	Deferred         bool            // capital path; keep the asset out of the cash-flow table
}

// Outcome is what a successful conversion yields. Exactly one of Pension and
// Capital is set.
type Outcome struct {
	Validation   AccountResult             `json:"validation"`
	TaxTreatment tax.Treatment             `json:"tax_treatment"`
	Total        decimal.Decimal           `json:"total"`
	Pension      *projection.PensionIncome `json:"pension,omitempty"`
	Capital      *projection.CapitalAsset  `json:"capital,omitempty"`
}

// Convert validates the request and turns the selected components into a
// pension income or a capital asset. A rejected request returns the
// validation result together with an error wrapping ErrRejected.
func (v *Validator) Convert(acct Account, selected map[string]decimal.Decimal, t Type, opts ConvertOptions) (Outcome, error) {
	out := Outcome{Validation: v.ValidateAccount(acct, selected, t)}
	if !out.Validation.Valid {
		return out, fmt.Errorf("account %s: %w", acct.ID, ErrRejected)
	}

	for _, f := range selectedFields(selected) {
		out.Total = out.Total.Add(selected[f])
	}
	out.TaxTreatment = v.DominantTreatment(acct, selected, t)

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("%s %s", acct.Provider, acct.ProductType)
	}
	id := opts.ID
	if id == "" {
		id = acct.ID
	}

	switch t {
	case ToPension:
		factor := opts.AnnuityFactor
		if !factor.IsPositive() {
			factor = DefaultAnnuityFactor
		}
		out.Pension = &projection.PensionIncome{
			ID:             id,
			Name:           name,
			MonthlyAmount:  out.Total.Div(factor),
			StartDate:      opts.StartDate,
			IndexationRate: opts.IndexationRate,
			TaxTreatment:   out.TaxTreatment,
		}
	case ToCapital:
		treatment := out.TaxTreatment
		asset := &projection.CapitalAsset{
			ID:               id,
			Name:             name,
			CurrentValue:     out.Total,
			AnnualReturnRate: opts.AnnualReturnRate,
			IndexationMethod: opts.IndexationMethod,
			StartDate:        opts.StartDate,
			TaxTreatment:     treatment,
		}
		if treatment != tax.Exempt && opts.SpreadYears > 1 {
			asset.TaxTreatment = tax.TaxSpread
			asset.SpreadYears = opts.SpreadYears
		}
		if asset.IndexationMethod == "" {
			asset.IndexationMethod = projection.IndexationNone
		}
		if !opts.Deferred {
			asset.MonthlyIncome = out.Total
		}
		out.Capital = asset
	}
	return out, nil
}
