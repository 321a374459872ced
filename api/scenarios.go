/*
scenarios.go - Demo clients for testing and demonstrations

PURPOSE:

	Provides pre-built clients that exercise specific engine features. Each
	scenario is a YAML client document parsed by the factory exactly like an
	uploaded one, so the demos double as format examples.

AVAILABLE SCENARIOS:

	single-pension:     One indexed taxable pension, credit points only
	fixation:           Two pensions with a rights-fixation exemption
	capital-withdrawal: Severance lump sum with tax spread, deferred portfolio
	mixed-income:       Exempt, fixed-rate and time-bounded incomes

HOW SCENARIOS WORK:
 1. Reset the store when it supports it (clients, runs, reference data)
 2. Reload the reference snapshot (defaults after a reset)
 3. Parse the scenario document via factory.ParseClient
 4. Save the client

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "fixation"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add its document to 'scenarioDocuments'

NOTE:

	Loading a scenario resets the store. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: Projection endpoints used on the loaded clients
  - factory/portfolio.go: Client document format
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/retirement-engine/factory"
	"github.com/warp/retirement-engine/store"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-pension",
		Name:        "Single Pension",
		Description: "One indexed taxable pension reduced by credit points",
		Category:    "projection",
	},
	{
		ID:          "fixation",
		Name:        "Rights Fixation",
		Description: "Two pensions sharing an exempt pension from rights fixation",
		Category:    "exemption",
	},
	{
		ID:          "capital-withdrawal",
		Name:        "Capital Withdrawal",
		Description: "Severance paid as a lump sum with a 4-year tax spread, plus a deferred portfolio valued by NPV",
		Category:    "capital",
	},
	{
		ID:          "mixed-income",
		Name:        "Mixed Income",
		Description: "Exempt disability pension, rental income at a fixed rate, part-time salary ending mid-horizon",
		Category:    "projection",
	},
}

var scenarioDocuments = map[string]string{
	"single-pension": `
id: demo-single-pension
name: Yossi Cohen
birth_date: "1959-03-15"
credit_points: 2.25
portfolio:
  pensions:
    - id: pen-migdal
      name: Migdal Makefet
      monthly_amount: 8500
      start_date: "2025-01-01"
      indexation_rate: 0.02
      tax_treatment: taxable
`,
	"fixation": `
id: demo-fixation
name: Rivka Levi
birth_date: "1958-07-02"
credit_points: 2.75
portfolio:
  pensions:
    - id: pen-menora
      name: Menora Mivtachim
      monthly_amount: 12000
      start_date: "2025-01-01"
      tax_treatment: taxable
    - id: pen-clal
      name: Clal Pension
      monthly_amount: 4000
      start_date: "2026-01-01"
      tax_treatment: taxable
  fixation:
    eligibility_year: 2025
    remaining_exempt_capital: 540000
`,
	"capital-withdrawal": `
id: demo-capital-withdrawal
name: Avi Mizrahi
birth_date: "1961-11-20"
credit_points: 2.25
portfolio:
  accounts:
    - id: acc-harel
      provider: Harel
      product_type: קרן פנסיה
      balance: 300000
      components:
        general_contributions: 180000
        severance_current_employer: 120000
  pensions:
    - id: pen-phoenix
      name: Phoenix Pension
      monthly_amount: 6000
      start_date: "2026-01-01"
      tax_treatment: taxable
  capital_assets:
    - id: cap-severance
      name: Severance withdrawal
      current_value: 250000
      monthly_income: 250000
      start_date: "2026-06-01"
      tax_treatment: tax_spread
      spread_years: 4
    - id: cap-portfolio
      name: Investment portfolio
      current_value: 400000
      annual_return_rate: 0.05
      indexation_method: cpi
      start_date: "2025-01-01"
      tax_treatment: capital_gains
`,
	"mixed-income": `
id: demo-mixed-income
name: Michal Friedman
birth_date: "1963-01-09"
credit_points: 2.25
portfolio:
  pensions:
    - id: pen-disability
      name: Disability pension
      monthly_amount: 3500
      start_date: "2025-01-01"
      tax_treatment: exempt
    - id: pen-altshuler
      name: Altshuler Shaham
      monthly_amount: 7000
      start_date: "2028-01-01"
      tax_treatment: taxable
  additional_incomes:
    - id: inc-rent
      name: Apartment rent
      amount: 5000
      frequency: monthly
      start_date: "2025-01-01"
      tax_treatment: fixed_rate
      tax_rate: 0.10
    - id: inc-salary
      name: Part-time salary
      amount: 27000
      frequency: quarterly
      start_date: "2025-01-01"
      end_date: "2027-12-31"
      tax_treatment: taxable
`,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads one demo client.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if status, err := h.decode(r, &req); err != nil {
		h.fail(w, r, status, "Invalid request body", err)
		return
	}
	if _, ok := scenarioDocuments[req.ScenarioID]; !ok {
		h.fail(w, r, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	client, err := h.loadScenario(ctx, req.ScenarioID)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "loaded",
		"scenario":  req.ScenarioID,
		"client_id": client.ID,
	})
}

// ResetDatabase clears the store and restores the default reference data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// reset clears stores that support it and reloads the snapshot.
func (h *Handler) reset(ctx context.Context) error {
	if rs, ok := h.Store.(store.Resetter); ok {
		if err := rs.Reset(ctx); err != nil {
			return err
		}
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return h.LoadReference(ctx)
}

// loadScenario parses and saves one scenario document.
func (h *Handler) loadScenario(ctx context.Context, id string) (store.Client, error) {
	doc, ok := scenarioDocuments[id]
	if !ok {
		return store.Client{}, fmt.Errorf("unknown scenario %q", id)
	}
	client, warnings, err := h.Factory.ParseClient([]byte(doc), factory.FormatYAML)
	if err != nil {
		return store.Client{}, err
	}
	for _, w := range warnings {
		h.Log.Warn("scenario normalized", zap.String("scenario", id), zap.String("warning", w))
	}
	if err := h.Store.SaveClient(ctx, client); err != nil {
		return store.Client{}, err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	return client, nil
}
