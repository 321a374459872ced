package tax

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TABLE - One tax year's brackets and credit point value
// =============================================================================

// CreditPointValue2025 is the annual value of one credit point (242 ILS a month).
var CreditPointValue2025 = decimal.NewFromInt(2904)

// Table holds everything needed to tax one calendar year.
type Table struct {
	Year             int             `json:"year" yaml:"year"`
	Brackets         []Bracket       `json:"brackets" yaml:"brackets"`
	CreditPointValue decimal.Decimal `json:"credit_point_value" yaml:"credit_point_value"` // annual
}

// AfterCredits reduces an annual tax amount by creditPoints, floored at 0.
func (t Table) AfterCredits(annualTax, creditPoints decimal.Decimal) decimal.Decimal {
	if !creditPoints.IsPositive() {
		return annualTax
	}
	reduced := annualTax.Sub(creditPoints.Mul(t.CreditPointValue))
	if reduced.IsNegative() {
		return decimal.Zero
	}
	return reduced
}

// Tax is CalculateByBrackets on this table followed by the credit reduction.
func (t Table) Tax(annualIncome, creditPoints decimal.Decimal) decimal.Decimal {
	return t.AfterCredits(CalculateByBrackets(annualIncome, t.Brackets), creditPoints)
}

// Default2025 returns the built-in 2025 individual income tax table.
func Default2025() Table {
	return Table{
		Year: 2025,
		Brackets: []Bracket{
			NewBracket(0, 84120, "0.10"),
			NewBracket(84120, 120720, "0.14"),
			NewBracket(120720, 193800, "0.20"),
			NewBracket(193800, 269280, "0.31"),
			NewBracket(269280, 560280, "0.35"),
			NewBracket(560280, 721560, "0.47"),
			NewBracket(721560, -1, "0.50"),
		},
		CreditPointValue: CreditPointValue2025,
	}
}

// =============================================================================
// SCHEDULE - Year -> Table with fallback
// =============================================================================

// Schedule is an immutable set of yearly tables. The zero value behaves like
// a schedule holding only Default2025.
type Schedule struct {
	tables []Table // sorted by Year
}

// NewSchedule builds a schedule from tables. Later duplicates of a year
// replace earlier ones. The input slice is not retained.
func NewSchedule(tables ...Table) Schedule {
	byYear := make(map[int]Table, len(tables))
	for _, t := range tables {
		byYear[t.Year] = t
	}
	out := make([]Table, 0, len(byYear))
	for _, t := range byYear {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return Schedule{tables: out}
}

// DefaultSchedule holds only the built-in 2025 table.
func DefaultSchedule() Schedule { return NewSchedule(Default2025()) }

// For returns the table with the greatest year <= year, the earliest table
// when year precedes every entry, or Default2025 when the schedule is empty.
func (s Schedule) For(year int) Table {
	if len(s.tables) == 0 {
		return Default2025()
	}
	i := sort.Search(len(s.tables), func(i int) bool { return s.tables[i].Year > year })
	if i == 0 {
		return s.tables[0]
	}
	return s.tables[i-1]
}

// Tables returns a copy of every table in year order.
func (s Schedule) Tables() []Table {
	out := make([]Table, len(s.tables))
	copy(out, s.tables)
	return out
}

// Len returns the number of yearly tables.
func (s Schedule) Len() int { return len(s.tables) }
