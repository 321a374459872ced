/*
Package tax provides the progressive income tax calculator and the yearly
reference tables it runs on.

PURPOSE:
  Every tax figure in a projection row comes from this package. The
  calculator is a pure function over a bracket table: no state, no I/O, so the
  projector can call it once per taxable aggregate and again for every
  marginal delta (lump sums, tax-spread portions) in the same year.

KEY CONCEPTS IN THIS FILE (brackets.go):
  - Bracket: one rate band with an annual lower and upper limit
  - NoUpperBound: sentinel for the top band (never math.Inf)
  - CalculateByBrackets: walk the bands, tax the slice of income in each

PRECISION:
  Limits, rates and results are decimal.Decimal. Tax is exact to the agora
  and repeated per-source sums never drift.

BRACKET CONVENTION:
  Limits are cumulative annual amounts in ILS. A band covers income above the
  previous band's MaxAnnual up to its own MaxAnnual. MinAnnual is kept for
  display and validation; the width of a band is always computed from the
  previous upper limit so a table written with "+1" lower limits still
  produces identical results at the boundaries.

EXAMPLE:
  t := tax.Default2025()
  due := tax.CalculateByBrackets(decimal.NewFromInt(100000), t.Brackets)
  // 84,120 x 10% + 15,880 x 14% = 10,635.2

SEE ALSO:
  - schedule.go: Year -> Table lookup with fallback
  - ceilings.go: Pension ceiling used by the exemption rule
*/
package tax

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// NoUpperBound marks the top bracket. It is a negative sentinel so no real
// limit can collide with it.
var NoUpperBound = decimal.NewFromInt(-1)

// Bracket is one progressive rate band expressed in annual amounts.
type Bracket struct {
	MinAnnual decimal.Decimal `json:"min_annual" yaml:"min_annual"`
	MaxAnnual decimal.Decimal `json:"max_annual" yaml:"max_annual"` // NoUpperBound for the top band
	Rate      decimal.Decimal `json:"rate" yaml:"rate"`
}

// NewBracket builds a bracket from annual limits and a rate. Use upper -1
// for the top band.
func NewBracket(lower, upper int64, rate string) Bracket {
	return Bracket{
		MinAnnual: decimal.NewFromInt(lower),
		MaxAnnual: decimal.NewFromInt(upper),
		Rate:      decimal.RequireFromString(rate),
	}
}

// Unbounded reports whether the bracket has no upper limit.
func (b Bracket) Unbounded() bool { return b.MaxAnnual.Equal(NoUpperBound) }

var (
	ErrEmptyTable       = errors.New("bracket table is empty")
	ErrNotContiguous    = errors.New("brackets are not contiguous")
	ErrDecreasingRate   = errors.New("bracket rates must be non-decreasing")
	ErrMissingTopBand   = errors.New("last bracket must be unbounded")
	ErrUnboundedInterim = errors.New("only the last bracket may be unbounded")
)

// CalculateByBrackets returns the annual tax due on annualIncome.
// Zero or negative income is taxed at 0.
func CalculateByBrackets(annualIncome decimal.Decimal, brackets []Bracket) decimal.Decimal {
	if !annualIncome.IsPositive() {
		return decimal.Zero
	}

	total := decimal.Zero
	lower := decimal.Zero
	for _, b := range brackets {
		if b.Unbounded() {
			return total.Add(annualIncome.Sub(lower).Mul(b.Rate))
		}
		if b.MaxAnnual.LessThanOrEqual(lower) {
			continue
		}
		if annualIncome.LessThanOrEqual(b.MaxAnnual) {
			return total.Add(annualIncome.Sub(lower).Mul(b.Rate))
		}
		total = total.Add(b.MaxAnnual.Sub(lower).Mul(b.Rate))
		lower = b.MaxAnnual
	}
	// Table without a top band: income above the last limit is untaxed.
	return total
}

var one = decimal.NewFromInt(1)

// Validate checks the table invariants: contiguous bands starting at zero,
// non-decreasing rates and a single unbounded top band.
func Validate(brackets []Bracket) error {
	if len(brackets) == 0 {
		return ErrEmptyTable
	}
	prevMax, prevRate := decimal.Zero, decimal.Zero
	for i, b := range brackets {
		last := i == len(brackets)-1
		if b.Unbounded() && !last {
			return fmt.Errorf("bracket %d: %w", i, ErrUnboundedInterim)
		}
		if last && !b.Unbounded() {
			return ErrMissingTopBand
		}
		// Lower limit may be written as prevMax or prevMax+1.
		if b.MinAnnual.LessThan(prevMax) || b.MinAnnual.GreaterThan(prevMax.Add(one)) {
			return fmt.Errorf("bracket %d starts at %s after %s: %w", i, b.MinAnnual.StringFixed(2), prevMax.StringFixed(2), ErrNotContiguous)
		}
		if !b.Unbounded() && b.MaxAnnual.LessThanOrEqual(b.MinAnnual) {
			return fmt.Errorf("bracket %d: %w", i, ErrNotContiguous)
		}
		if b.Rate.LessThan(prevRate) {
			return fmt.Errorf("bracket %d: %w", i, ErrDecreasingRate)
		}
		prevMax, prevRate = b.MaxAnnual, b.Rate
	}
	return nil
}

// Marginal returns the extra annual tax caused by adding delta on top of
// base, with the annual credit applied to both sides and each side floored
// at zero.
func Marginal(base, delta decimal.Decimal, t Table, creditPoints decimal.Decimal) decimal.Decimal {
	before := t.Tax(base, creditPoints)
	after := t.Tax(base.Add(delta), creditPoints)
	return after.Sub(before)
}
