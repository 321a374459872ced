package conversion

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/tax"
)

// ComponentResult is the outcome of validating one component.
type ComponentResult struct {
	CanConvert   bool          `json:"can_convert"`
	Errors       []string      `json:"errors"`
	Warnings     []string      `json:"warnings"`
	TaxTreatment tax.Treatment `json:"tax_treatment,omitempty"`

	// Err is the first failure, for errors.Is checks. Nil when CanConvert.
	Err error `json:"-"`
}

func allow(treatment tax.Treatment) ComponentResult {
	return ComponentResult{CanConvert: true, Errors: []string{}, Warnings: []string{}, TaxTreatment: treatment}
}

func deny(err *ComponentError) ComponentResult {
	return ComponentResult{Errors: []string{err.Error()}, Warnings: []string{}, Err: err}
}

// Validator evaluates conversion requests against one rule snapshot.
type Validator struct {
	Rules RuleSet
}

// NewValidator returns a validator over rules. An empty set falls back to
// the defaults.
func NewValidator(rules RuleSet) *Validator {
	if rules.Len() == 0 {
		rules = DefaultRuleSet()
	}
	return &Validator{Rules: rules}
}

// ValidateComponent decides whether amount of field may be converted in
// direction t for an account of productType.
func (v *Validator) ValidateComponent(field string, amount decimal.Decimal, t Type, productType string) ComponentResult {
	if !t.Valid() {
		return deny(&ComponentError{Field: field, Type: t, Reason: ErrUnknownConversionType})
	}

	res := v.decide(field, t, productType)
	if res.CanConvert && !amount.IsPositive() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: no positive amount to convert", field))
	}
	return res
}

func (v *Validator) decide(field string, t Type, productType string) ComponentResult {
	kind := ClassifyProduct(productType)

	// 1. Dynamic field, derived from the product type.
	if IsDynamicField(field) {
		switch kind {
		case PensionFund, ManagedInsurance:
			if t == ToPension {
				return allow(tax.Taxable)
			}
			return deny(&ComponentError{
				Field:   field,
				Type:    t,
				Message: "general contributions in a pension fund or insurance policy can only be converted to an annuity",
				Reason:  ErrNotPermitted,
			})
		case ProvidentFund, EducationFund:
			return allow(tax.Exempt)
		case InvestmentProvident:
			if t == ToPension {
				return allow(tax.Exempt)
			}
			return allow(tax.CapitalGains)
		default:
			return deny(&ComponentError{
				Field:   field,
				Type:    t,
				Message: fmt.Sprintf("cannot derive rules for general contributions from product type %q", productType),
				Reason:  ErrUnknownProductType,
			})
		}
	}

	// 2. Education fund: every component either way.
	if kind == EducationFund {
		if t == ToCapital {
			return allow(tax.CapitalGains)
		}
		return allow(tax.Exempt)
	}

	// 3. Static table.
	rule, ok := v.Rules.Get(field)
	if !ok {
		return deny(&ComponentError{Field: field, Type: t, Reason: ErrNoRule})
	}
	if !rule.Allows(t) {
		msg := rule.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("component %s cannot be converted to %s", displayName(rule), t)
		}
		return deny(&ComponentError{Field: field, Type: t, Message: msg, Reason: ErrNotPermitted})
	}
	return allow(rule.TreatmentFor(t))
}

func displayName(r Rule) string {
	if r.Label != "" {
		return r.Label
	}
	return r.Field
}
