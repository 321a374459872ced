// Package storetest holds the behaviour every store.Store implementation
// must share. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/retirement-engine/conversion"
	"github.com/warp/retirement-engine/exemption"
	"github.com/warp/retirement-engine/projection"
	"github.com/warp/retirement-engine/store"
	"github.com/warp/retirement-engine/tax"
)

// Run exercises newStore against the store.Store contract. newStore must
// return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("RulesRoundTrip", func(t *testing.T) { testRules(t, newStore(t)) })
	t.Run("TaxTables", func(t *testing.T) { testTaxTables(t, newStore(t)) })
	t.Run("Clients", func(t *testing.T) { testClients(t, newStore(t)) })
	t.Run("Runs", func(t *testing.T) { testRuns(t, newStore(t)) })
}

// EqualJSON asserts that want and got serialize identically. Decimals
// compare by value this way, whatever scale a backend returns them with.
func EqualJSON(t *testing.T, want, got any, msgAndArgs ...any) bool {
	t.Helper()
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	return assert.JSONEq(t, string(w), string(g), msgAndArgs...)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testRules(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.LoadRules(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	rec := store.RuleSetRecord{
		Version: "v1",
		Rules: []conversion.Rule{
			{Field: "b_field", CanConvertToPension: true, TaxTreatmentWhenPension: tax.Taxable, ErrorMessage: "annuity only"},
			{Field: "a_field", Label: "תגמולים", CanConvertToPension: true, CanConvertToCapital: true, TaxTreatmentWhenCapital: tax.Exempt},
		},
	}
	require.NoError(t, s.SaveRules(ctx, rec))

	got, err := s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version)
	assert.False(t, got.UpdatedAt.IsZero())
	assert.ElementsMatch(t, rec.Rules, got.Rules)

	// Saving replaces the previous set.
	require.NoError(t, s.SaveRules(ctx, store.RuleSetRecord{Version: "v2", Rules: rec.Rules[:1]}))
	got, err = s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Version)
	assert.Len(t, got.Rules, 1)

	require.NoError(t, s.DeleteRules(ctx))
	_, err = s.LoadRules(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testTaxTables(t *testing.T, s store.Store) {
	ctx := context.Background()

	tables, err := s.LoadTaxTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	t2026 := tax.Default2025()
	t2026.Year = 2026
	t2026.CreditPointValue = d("2950.5")
	require.NoError(t, s.SaveTaxTable(ctx, t2026))
	require.NoError(t, s.SaveTaxTable(ctx, tax.Default2025()))

	tables, err = s.LoadTaxTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	EqualJSON(t, tax.Default2025(), tables[0])
	EqualJSON(t, t2026, tables[1])
	assert.True(t, d("0.47").Equal(tables[0].Brackets[5].Rate), "rates read back exactly")

	// Replacing a year drops its old brackets.
	short := tax.Table{Year: 2026, CreditPointValue: d("3000"), Brackets: []tax.Bracket{tax.NewBracket(0, -1, "0.2")}}
	require.NoError(t, s.SaveTaxTable(ctx, short))
	tables, err = s.LoadTaxTables(ctx)
	require.NoError(t, err)
	EqualJSON(t, short, tables[1])
}

func sampleClient(id, name string) store.Client {
	monthly := d("3500.75")
	return store.Client{
		ID:           id,
		Name:         name,
		BirthDate:    "1961-02-14",
		CreditPoints: d("2.25"),
		Portfolio: store.Portfolio{
			Accounts: []conversion.Account{{
				ID: "acc", Provider: "Menora", ProductType: "קרן פנסיה", Balance: d("1000"),
				Components: map[string]decimal.Decimal{conversion.GeneralContributions: d("1000")},
			}},
			Pensions: []projection.PensionIncome{{ID: "p", Name: "Menora", MonthlyAmount: d("5000"), StartDate: "2026-01-01", TaxTreatment: tax.Taxable}},
			Fixation: &exemption.Summary{EligibilityYear: 2026, RemainingExemptCapital: d("500000"), RemainingMonthlyExemption: &monthly},
		},
	}
}

func testClients(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveClient(ctx, sampleClient("c2", "Yossi")))
	require.NoError(t, s.SaveClient(ctx, sampleClient("c1", "Avi")))

	got, err := s.GetClient(ctx, "c2")
	require.NoError(t, err)
	want := sampleClient("c2", "Yossi")
	EqualJSON(t, want.Portfolio, got.Portfolio)
	assert.True(t, d("2.25").Equal(got.CreditPoints))
	require.NotNil(t, got.Portfolio.Fixation)
	assert.Equal(t, "3500.75", got.Portfolio.Fixation.RemainingMonthlyExemption.String())
	assert.False(t, got.CreatedAt.IsZero())

	list, err := s.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Avi", list[0].Name)

	// Update keeps one record.
	upd := sampleClient("c2", "Yossi Cohen")
	upd.Portfolio.Pensions = nil
	require.NoError(t, s.SaveClient(ctx, upd))
	got, err = s.GetClient(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "Yossi Cohen", got.Name)
	assert.Empty(t, got.Portfolio.Pensions)

	list, err = s.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func testRuns(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.AppendRun(ctx, store.ProjectionRun{ID: "r0", ClientID: "nobody"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveClient(ctx, sampleClient("c1", "Avi")))

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	first := store.ProjectionRun{
		ID: "r1", ClientID: "c1", RuleSetVersion: "default", StartYear: 2025, HorizonYears: 2,
		DiscountRate: d("0.03"), CashFlowNPV: d("1000.5"), TotalNPV: d("1000.5"), CreatedAt: base,
		Rows: []projection.YearlyProjection{{Year: 2025, TotalMonthlyIncome: d("100"), NetMonthlyIncome: d("90"), TotalMonthlyTax: d("10")}},
	}
	second := first
	second.ID = "r2"
	second.CreatedAt = base.Add(time.Hour)

	require.NoError(t, s.AppendRun(ctx, first))
	require.NoError(t, s.AppendRun(ctx, second))

	runs, err := s.ListRuns(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID, "newest first")
	assert.True(t, d("0.03").Equal(runs[1].DiscountRate))
	assert.True(t, d("1000.5").Equal(runs[1].CashFlowNPV))
	assert.True(t, runs[1].CapitalAssetsNPV.IsZero())
	require.Len(t, runs[1].Rows, 1)
	assert.True(t, d("90").Equal(runs[1].Rows[0].NetMonthlyIncome))

	runs, err = s.ListRuns(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, runs)
}
