/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario document parses, stores a client and projects
	without warnings, and that the features each one demonstrates show up
	in its projection.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/retirement-engine/conversion"
	"github.com/warp/retirement-engine/store"
)

func loadTestScenario(t *testing.T, h *Handler, id string) store.Client {
	t.Helper()
	c, err := h.loadScenario(t.Context(), id)
	require.NoError(t, err)
	return c
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	// GIVEN: All available scenarios
	// WHEN: Loading each scenario
	// THEN: Each one stores a client that projects cleanly
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			h := setupTestHandler(t)
			c := loadTestScenario(t, h, s.ID)

			stored, err := h.Store.GetClient(t.Context(), c.ID)
			require.NoError(t, err)
			assert.NotEmpty(t, stored.Name)

			resp, _ := h.project(stored.Portfolio, ProjectionOptions{StartYear: 2025, HorizonYears: 10}, stored.CreditPoints)
			assert.Len(t, resp.Projections, 10)
			assert.Empty(t, resp.Warnings)
		})
	}
}

func TestScenario_EveryListedScenarioHasADocument(t *testing.T) {
	require.Len(t, scenarioDocuments, len(scenarios))
	for _, s := range scenarios {
		_, ok := scenarioDocuments[s.ID]
		assert.True(t, ok, s.ID)
	}
}

func TestScenario_Fixation(t *testing.T) {
	// GIVEN: 540,000 of exempt capital from 2025
	h := setupTestHandler(t)
	c := loadTestScenario(t, h, "fixation")

	// WHEN: projecting from 2025
	resp, _ := h.project(c.Portfolio, ProjectionOptions{StartYear: 2025, HorizonYears: 3}, c.CreditPoints)

	// THEN: 540,000 / 180 = 3,000 a month is offset in the eligibility year
	require.Len(t, resp.Projections, 3)
	assert.Equal(t, "3000", resp.Projections[0].ExemptPension.String())
	assert.True(t, resp.Projections[1].TotalMonthlyIncome.GreaterThan(resp.Projections[0].TotalMonthlyIncome),
		"second pension starts in 2026")
}

func TestScenario_CapitalWithdrawal(t *testing.T) {
	h := setupTestHandler(t)
	c := loadTestScenario(t, h, "capital-withdrawal")

	resp, _ := h.project(c.Portfolio, ProjectionOptions{StartYear: 2025, HorizonYears: 5}, c.CreditPoints)

	// The severance payment shows up once, in its 2026 realization year.
	var paidYears []int
	for _, row := range resp.Projections {
		for _, e := range row.IncomeBreakdown {
			if e.SourceID == "cap-severance" && e.Amount.IsPositive() {
				paidYears = append(paidYears, row.Year)
			}
		}
	}
	assert.Equal(t, []int{2026}, paidYears)

	// The deferred portfolio is valued separately.
	require.Len(t, resp.Summary.Assets, 1)
	assert.Equal(t, "cap-portfolio", resp.Summary.Assets[0].AssetID)
	assert.True(t, resp.Summary.CapitalAssetsNPV.IsPositive())

	// The scenario's account converts its severance to capital.
	require.Len(t, c.Portfolio.Accounts, 1)
	rules, _ := h.snapshot()
	res := conversion.NewValidator(rules).ValidateAccount(c.Portfolio.Accounts[0],
		map[string]decimal.Decimal{conversion.SeveranceCurrentEmployer: decimal.NewFromInt(120000)}, conversion.ToCapital)
	assert.True(t, res.Valid)
}

func TestLoadScenario_Endpoint(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "single-pension"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeAs[map[string]string](t, rec)
	assert.Equal(t, "demo-single-pension", body["client_id"])

	current := decodeAs[ScenarioDTO](t, doJSON(t, srv, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "single-pension", current.ID)

	// Loading another scenario resets the store first.
	rec = doJSON(t, srv, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "mixed-income"})
	require.Equal(t, http.StatusOK, rec.Code)
	clients := decodeAs[[]ClientDTO](t, doJSON(t, srv, http.MethodGet, "/api/clients", nil))
	require.Len(t, clients, 1)
	assert.Equal(t, "demo-mixed-income", clients[0].ID)
}

func TestLoadScenario_Unknown(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDatabase(t *testing.T) {
	h, srv := setupTestServer(t)
	createTestClient(t, srv)
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPut, "/api/rules", map[string]any{
		"version": "ops",
		"rules":   []map[string]any{{"field": "x", "can_convert_to_pension": true}},
	}).Code)

	rec := doJSON(t, srv, http.MethodPost, "/api/scenarios/reset", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	clients, err := h.Store.ListClients(t.Context())
	require.NoError(t, err)
	assert.Empty(t, clients)
	rules, _ := h.snapshot()
	assert.Equal(t, conversion.DefaultVersion, rules.Version())
}
