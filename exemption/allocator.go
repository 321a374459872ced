/*
Package exemption turns a rights-fixation result into the monthly exempt
pension for a given year and offsets it against the client's taxable pension
streams.

PURPOSE:
  Rights fixation ("קיבוע זכויות") is computed outside this engine. It leaves
  the client with a remaining exempt capital that becomes a monthly exempt
  amount from the eligibility year on. This package answers two questions:

    1. How much pension income is exempt in year Y?  (fixation.go)
    2. Which pension streams absorb that exemption?  (allocator.go)

ALLOCATION ORDER:
  The exemption is offset against the largest taxable stream first, then the
  next largest, until it is exhausted. The order in which accounts were
  entered never matters. Ties keep their original relative order (stable).

PRECISION:
  Amounts are decimal.Decimal so that offsets and sums are exact.

CONSERVATION:
  sum(before) - sum(after) == min(exempt, sum(before))
  and no single stream is reduced below zero.

EXAMPLE:
  d := decimal.NewFromInt
  after := exemption.Allocate(d(3000), []decimal.Decimal{d(1000), d(4000), d(500)})
  // after == [1000, 1000, 500]: the 4,000 stream absorbs all 3,000

SEE ALSO:
  - fixation.go: Eligibility-gated monthly exempt pension
  - projection/projector.go: Applies both per projected year
*/
package exemption

import (
	"sort"

	"github.com/shopspring/decimal"
)

type indexedAmount struct {
	amount decimal.Decimal
	index  int
}

// Allocate subtracts monthlyExempt from the pension amounts, largest first,
// and returns the post-exemption amounts in a new slice aligned with the
// input. The input slice is never modified.
func Allocate(monthlyExempt decimal.Decimal, amounts []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(amounts))
	copy(out, amounts)
	if !monthlyExempt.IsPositive() {
		return out
	}

	pool := make([]indexedAmount, 0, len(amounts))
	for i, a := range amounts {
		if a.IsPositive() {
			pool = append(pool, indexedAmount{amount: a, index: i})
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].amount.GreaterThan(pool[j].amount) })

	remaining := monthlyExempt
	for _, p := range pool {
		if !remaining.IsPositive() {
			break
		}
		offset := decimal.Min(remaining, p.amount)
		out[p.index] = p.amount.Sub(offset)
		remaining = remaining.Sub(offset)
	}
	return out
}

// Used returns how much of monthlyExempt Allocate would consume for amounts.
func Used(monthlyExempt decimal.Decimal, amounts []decimal.Decimal) decimal.Decimal {
	if !monthlyExempt.IsPositive() {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, a := range amounts {
		if a.IsPositive() {
			total = total.Add(a)
		}
	}
	return decimal.Min(monthlyExempt, total)
}
