package tax

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Ceiling is the monthly pension ceiling ("תקרת קצבה מזכה") published for
// one calendar year.
type Ceiling struct {
	Year    int             `json:"year"`
	Monthly decimal.Decimal `json:"monthly"`
}

// Ceilings is an immutable year -> ceiling table. The zero value behaves
// like DefaultCeilings.
type Ceilings struct {
	entries []Ceiling // sorted by Year
}

// NewCeilings builds a table from a year -> monthly ceiling map.
func NewCeilings(byYear map[int]decimal.Decimal) Ceilings {
	entries := make([]Ceiling, 0, len(byYear))
	for y, v := range byYear {
		entries = append(entries, Ceiling{Year: y, Monthly: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Year < entries[j].Year })
	return Ceilings{entries: entries}
}

var defaultCeilings = NewCeilings(map[int]decimal.Decimal{
	2012: decimal.NewFromInt(8110),
	2013: decimal.NewFromInt(8180),
	2014: decimal.NewFromInt(8250),
	2015: decimal.NewFromInt(8310),
	2016: decimal.NewFromInt(8320),
	2017: decimal.NewFromInt(8330),
	2018: decimal.NewFromInt(8380),
	2019: decimal.NewFromInt(8480),
	2020: decimal.NewFromInt(8510),
	2021: decimal.NewFromInt(8460),
	2022: decimal.NewFromInt(8660),
	2023: decimal.NewFromInt(9120),
	2024: decimal.NewFromInt(9430),
	2025: decimal.NewFromInt(9430),
})

// DefaultCeilings returns the built-in ceiling table.
func DefaultCeilings() Ceilings { return defaultCeilings }

// For returns the ceiling for year. Years after the last entry use the last
// entry, years before the first use the first. An empty table falls back to
// DefaultCeilings.
func (c Ceilings) For(year int) decimal.Decimal {
	if len(c.entries) == 0 {
		c = defaultCeilings
	}
	i := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].Year > year })
	if i == 0 {
		return c.entries[0].Monthly
	}
	return c.entries[i-1].Monthly
}

// Len returns the number of published years.
func (c Ceilings) Len() int { return len(c.entries) }
