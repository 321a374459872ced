package tax

import "github.com/shopspring/decimal"

// Treatment is how an income stream or capital amount is taxed.
type Treatment string

const (
	Taxable      Treatment = "taxable"       // progressive brackets
	Exempt       Treatment = "exempt"        // no tax
	CapitalGains Treatment = "capital_gains" // flat capital gains rate
	FixedRate    Treatment = "fixed_rate"    // flat, source-specific rate
	TaxSpread    Treatment = "tax_spread"    // lump sum spread over several years
)

// CapitalGainsRate is the flat rate on real capital gains.
var CapitalGainsRate = decimal.RequireFromString("0.25")

// Valid reports whether t is one of the known treatments.
func (t Treatment) Valid() bool {
	switch t {
	case Taxable, Exempt, CapitalGains, FixedRate, TaxSpread:
		return true
	}
	return false
}

// OrTaxable returns t, or Taxable when t is empty or unknown.
func (t Treatment) OrTaxable() Treatment {
	if t.Valid() {
		return t
	}
	return Taxable
}
