/*
Package conversion decides whether each balance component of a pension
account may become an annuity or a lump-sum capital asset, and how the result
is taxed.

PURPOSE:
  A statement lists an account's balance split into components: severance
  from the current employer, contributions before 2000, and so on. Each
  component has its own regulatory rules. This package holds those rules as
  an immutable RuleSet and evaluates conversion requests against them.

DECISION ORDER (per component):
  1. The dynamic field "general contributions" (תגמולים) is derived from the
     product type, never looked up.
  2. Education funds (קרן השתלמות): every component may go either way.
  3. Otherwise the static rule for the field decides.

KEY CONCEPTS IN THIS FILE (types.go):
  - Type:        pension or capital_asset
  - ProductKind: product family parsed from the free-text product type
  - Account:     one account record from statement ingestion

SEE ALSO:
  - rules.go: RuleSet, defaults, merge
  - validator.go: ValidateComponent
  - account.go: ValidateAccount, DominantTreatment
  - convert.go: Convert, producing projection sources
*/
package conversion

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Type is the direction of a conversion.
type Type string

const (
	ToPension Type = "pension"
	ToCapital Type = "capital_asset"
)

// Valid reports whether t is a known conversion direction.
func (t Type) Valid() bool { return t == ToPension || t == ToCapital }

// =============================================================================
// PRODUCT KINDS
// =============================================================================

// ProductKind is the product family an account belongs to.
type ProductKind string

const (
	PensionFund         ProductKind = "pension_fund"
	ManagedInsurance    ProductKind = "managed_insurance"
	ProvidentFund       ProductKind = "provident_fund"
	InvestmentProvident ProductKind = "investment_provident"
	EducationFund       ProductKind = "education_fund"
	UnknownProduct      ProductKind = "unknown"
)

// Substring markers per kind, checked in order. Investment provident funds
// must be tested before plain provident funds since their names contain the
// provident marker.
var productMarkers = []struct {
	kind    ProductKind
	markers []string
}{
	{EducationFund, []string{"השתלמות", "education", "study fund", "hishtalmut"}},
	{InvestmentProvident, []string{"גמל להשקעה", "investment provident", "investment"}},
	{ProvidentFund, []string{"גמל", "provident"}},
	{PensionFund, []string{"פנסיה", "pension"}},
	{ManagedInsurance, []string{"ביטוח", "מנהלים", "insurance"}},
}

// ClassifyProduct maps a free-text product type to its kind. Matching is
// case-insensitive on substrings.
func ClassifyProduct(productType string) ProductKind {
	p := strings.ToLower(strings.TrimSpace(productType))
	if p == "" {
		return UnknownProduct
	}
	for _, m := range productMarkers {
		for _, marker := range m.markers {
			if strings.Contains(p, marker) {
				return m.kind
			}
		}
	}
	return UnknownProduct
}

// IsEducationFund reports whether productType denotes an education fund.
func IsEducationFund(productType string) bool {
	return ClassifyProduct(productType) == EducationFund
}

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is one pension account as produced by statement ingestion.
// Components are the named sub-balances; unknown keys are carried through
// and ignored by whole-account operations.
type Account struct {
	ID          string                     `json:"id"`
	Provider    string                     `json:"provider"`
	ProductType string                     `json:"product_type"`
	Balance     decimal.Decimal            `json:"balance"`
	Components  map[string]decimal.Decimal `json:"components"`
}

// Kind is ClassifyProduct(a.ProductType).
func (a Account) Kind() ProductKind { return ClassifyProduct(a.ProductType) }
