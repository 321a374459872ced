package conversion

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/tax"
)

// AccountResult is the outcome of validating a whole conversion request.
type AccountResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// selectedFields returns the fields with a positive amount, sorted so the
// error list is stable between calls.
func selectedFields(selected map[string]decimal.Decimal) []string {
	var out []string
	for f, amt := range selected {
		if amt.IsPositive() {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// ValidateAccount validates every selected component with a positive amount.
// Education funds skip per-field checks and only collect warnings. The
// request is invalid when any component fails or nothing is selected.
func (v *Validator) ValidateAccount(acct Account, selected map[string]decimal.Decimal, t Type) AccountResult {
	res := AccountResult{Valid: true, Errors: []string{}, Warnings: []string{}}

	if !t.Valid() {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Errorf("account %s: %w %q", acct.ID, ErrUnknownConversionType, t).Error())
		return res
	}

	fields := selectedFields(selected)
	if len(fields) == 0 {
		res.Valid = false
		res.Errors = append(res.Errors, ErrNothingSelected.Error())
		return res
	}

	for _, f := range fields {
		if have, ok := acct.Components[f]; ok && selected[f].GreaterThan(have) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: selected %s exceeds component balance %s", f, selected[f].StringFixed(2), have.StringFixed(2)))
		}
	}

	if acct.Kind() == EducationFund {
		res.Warnings = append(res.Warnings, "education fund: the whole balance may be withdrawn and is tax exempt")
		return res
	}

	for _, f := range fields {
		cr := v.ValidateComponent(f, selected[f], t, acct.ProductType)
		res.Warnings = append(res.Warnings, cr.Warnings...)
		if !cr.CanConvert {
			res.Valid = false
			res.Errors = append(res.Errors, cr.Errors...)
		}
	}
	return res
}

// DominantTreatment returns the single tax treatment reported for a
// conversion. Capital conversions short-circuit on product type (plain
// provident and education funds are exempt, investment provident funds pay
// capital gains) before falling back to the amount-weighted majority.
// Pension conversions are exempt only when exempt amounts exceed taxable ones.
func (v *Validator) DominantTreatment(acct Account, selected map[string]decimal.Decimal, t Type) tax.Treatment {
	if t == ToCapital {
		switch acct.Kind() {
		case ProvidentFund, EducationFund:
			return tax.Exempt
		case InvestmentProvident:
			return tax.CapitalGains
		}
	}

	byTreatment := make(map[tax.Treatment]decimal.Decimal)
	for _, f := range selectedFields(selected) {
		cr := v.ValidateComponent(f, selected[f], t, acct.ProductType)
		if cr.CanConvert {
			byTreatment[cr.TaxTreatment] = byTreatment[cr.TaxTreatment].Add(selected[f])
		}
	}

	if t == ToCapital {
		if byTreatment[tax.Exempt].GreaterThan(byTreatment[tax.CapitalGains]) {
			return tax.Exempt
		}
		return tax.CapitalGains
	}
	if byTreatment[tax.Exempt].GreaterThan(byTreatment[tax.Taxable]) {
		return tax.Exempt
	}
	return tax.Taxable
}
