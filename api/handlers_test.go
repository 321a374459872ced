/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Conversion validation, tax treatment and execution
- Projections, with and without a recorded run
- Rule overrides and tax table uploads
- Client documents in JSON and YAML
*/
package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/retirement-engine/config"
	"github.com/warp/retirement-engine/conversion"
	"github.com/warp/retirement-engine/store"
	"github.com/warp/retirement-engine/store/memory"
	"github.com/warp/retirement-engine/store/storetest"
	"github.com/warp/retirement-engine/tax"
	"go.uber.org/zap"
)

func testEngine() config.EngineConfig {
	return config.EngineConfig{
		HorizonYears:  30,
		DiscountRate:  0.03,
		CreditPoints:  2.25,
		AnnuityFactor: 200,
		InflationRate: 0.02,
	}
}

func setupTestHandler(t *testing.T) *Handler {
	st := memory.New()
	t.Cleanup(func() { st.Close() })
	return NewHandler(st, testEngine(), zap.NewNop())
}

func setupTestServer(t *testing.T) (*Handler, http.Handler) {
	h := setupTestHandler(t)
	return h, NewRouter(h, RouterOptions{MaxBodySize: 1 << 20})
}

func do(t *testing.T, srv http.Handler, method, path, contentType string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	return do(t, srv, method, path, "application/json", body)
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// assertMoney checks a decimal against its expected decimal text.
func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}

func pensionFundAccount() map[string]any {
	return map[string]any{
		"id":           "acc-harel",
		"provider":     "Harel",
		"product_type": "קרן פנסיה",
		"balance":      300000,
		"components": map[string]float64{
			conversion.GeneralContributions:     180000,
			conversion.SeveranceCurrentEmployer: 120000,
		},
	}
}

const testClientJSON = `{
  "id": "client-1",
  "name": "Dana Katz",
  "birth_date": "1960-05-01",
  "credit_points": 0,
  "portfolio": {
    "pensions": [
      {"id": "pen-1", "name": "Main pension", "monthly_amount": 10000, "start_date": "2025-01-01", "tax_treatment": "taxable"}
    ]
  }
}`

func createTestClient(t *testing.T, srv http.Handler) {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/clients", "application/json", testClientJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeAs[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, conversion.DefaultVersion, body["rule_set_version"])
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func TestValidateConversion_ComponentDeniedInPensionFund(t *testing.T) {
	// GIVEN: general contributions in a pension fund
	_, srv := setupTestServer(t)

	// WHEN: asking to convert them to capital
	rec := doJSON(t, srv, http.MethodPost, "/api/conversions/validate", map[string]any{
		"conversion_type": "capital_asset",
		"field":           conversion.GeneralContributions,
		"amount":          1000,
		"product_type":    "קרן פנסיה",
	})

	// THEN: the request succeeds and the component is refused
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeAs[conversion.ComponentResult](t, rec)
	assert.False(t, res.CanConvert)
	assert.Len(t, res.Errors, 1)
}

func TestValidateConversion_Account(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/conversions/validate", map[string]any{
		"conversion_type": "pension",
		"account":         pensionFundAccount(),
		"selected": map[string]float64{
			conversion.GeneralContributions:     180000,
			conversion.SeveranceCurrentEmployer: 120000,
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeAs[conversion.AccountResult](t, rec)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateConversion_MissingTypeIsBadRequest(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/conversions/validate", map[string]any{
		"field": conversion.GeneralContributions,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeAs[ErrorResponse](t, rec)
	details, ok := body.Details.([]any)
	require.True(t, ok, "details should list fields: %v", body.Details)
	require.Len(t, details, 1)
	assert.Equal(t, "conversion_type", details[0].(map[string]any)["field"])
}

func TestValidateConversion_EmptyBody(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/conversions/validate", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaxTreatment(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/conversions/tax-treatment", map[string]any{
		"conversion_type": "capital_asset",
		"account":         pensionFundAccount(),
		"selected":        map[string]float64{conversion.SeveranceCurrentEmployer: 120000},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeAs[TaxTreatmentDTO](t, rec)
	assert.Equal(t, tax.CapitalGains, res.TaxTreatment)
	assert.True(t, res.Validation.Valid)
}

func TestConvert_ToPensionAttachesToClient(t *testing.T) {
	// GIVEN: a stored client
	h, srv := setupTestServer(t)
	createTestClient(t, srv)

	// WHEN: converting 200,000 of general contributions to a pension
	rec := doJSON(t, srv, http.MethodPost, "/api/conversions/convert", map[string]any{
		"client_id":       "client-1",
		"conversion_type": "pension",
		"account":         pensionFundAccount(),
		"selected":        map[string]float64{conversion.GeneralContributions: 180000, conversion.SeveranceCurrentEmployer: 20000},
		"start_date":      "2026-01-01",
	})

	// THEN: the annuity is capital / 200 and lands in the portfolio
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeAs[ConversionDTO](t, rec)
	require.NotNil(t, dto.Pension)
	assertMoney(t, "1000.00", dto.Pension.MonthlyAmount)
	assertMoney(t, "200000.00", dto.Total)
	assert.Equal(t, "client-1", dto.ClientID)
	assert.Equal(t, conversion.DefaultVersion, dto.RuleSetVersion)

	c, err := h.Store.GetClient(t.Context(), "client-1")
	require.NoError(t, err)
	require.Len(t, c.Portfolio.Pensions, 2)
	assert.Equal(t, dto.Pension.ID, c.Portfolio.Pensions[1].ID)
}

func TestConvert_RejectedIsUnprocessable(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/conversions/convert", map[string]any{
		"conversion_type": "capital_asset",
		"account":         pensionFundAccount(),
		"selected":        map[string]float64{conversion.GeneralContributions: 1000},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	dto := decodeAs[ConversionDTO](t, rec)
	assert.False(t, dto.Validation.Valid)
	assert.Nil(t, dto.Capital)
}

func TestConvert_UnknownClient(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/conversions/convert", map[string]any{
		"client_id":       "nobody",
		"conversion_type": "pension",
		"account":         pensionFundAccount(),
		"selected":        map[string]float64{conversion.GeneralContributions: 1000},
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func projectionBody() map[string]any {
	return map[string]any{
		"start_year":    2025,
		"horizon_years": 3,
		"credit_points": 0,
		"discount_rate": 0,
		"pensions": []map[string]any{
			{"id": "pen-1", "name": "Main pension", "monthly_amount": 10000, "start_date": "2025-01-01", "tax_treatment": "taxable"},
		},
	}
}

func TestRunProjection(t *testing.T) {
	// GIVEN: a 10,000 monthly taxable pension and no credit points
	_, srv := setupTestServer(t)

	// WHEN: projecting three years undiscounted
	rec := doJSON(t, srv, http.MethodPost, "/api/projections", projectionBody())

	// THEN: 120,000 a year is taxed 13,435.20 by the 2025 brackets
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeAs[ProjectionResponse](t, rec)
	require.Len(t, resp.Projections, 3)
	row := resp.Projections[0]
	assert.Equal(t, 2025, row.Year)
	assertMoney(t, "10000.00", row.TotalMonthlyIncome)
	assertMoney(t, "1119.60", row.TotalMonthlyTax)
	assertMoney(t, "8880.40", row.NetMonthlyIncome)

	// 3 x 8,880.40 x 12, undiscounted.
	assertMoney(t, "319694.40", resp.Summary.CashFlowNPV)
	assert.True(t, resp.Summary.CashFlowNPV.Equal(resp.Summary.TotalNPV))
	assert.Contains(t, rec.Body.String(), `"total_monthly_tax":"1119.6"`, "money is written as decimal text")
	assert.Empty(t, resp.RunID)
	assert.NotNil(t, resp.Warnings)
}

func TestRunProjection_RecordsRunForClient(t *testing.T) {
	h, srv := setupTestServer(t)
	createTestClient(t, srv)

	body := projectionBody()
	body["client_id"] = "client-1"
	rec := doJSON(t, srv, http.MethodPost, "/api/projections", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeAs[ProjectionResponse](t, rec)
	require.NotEmpty(t, resp.RunID)

	runs, err := h.Store.ListRuns(t.Context(), "client-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].ID)
	assert.Equal(t, 3, runs[0].HorizonYears)
	assert.Len(t, runs[0].Rows, 3)
}

func TestRunProjection_UnknownClient(t *testing.T) {
	_, srv := setupTestServer(t)

	body := projectionBody()
	body["client_id"] = "nobody"
	rec := doJSON(t, srv, http.MethodPost, "/api/projections", body)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunProjection_InvalidHorizon(t *testing.T) {
	_, srv := setupTestServer(t)

	body := projectionBody()
	body["horizon_years"] = 500
	rec := doJSON(t, srv, http.MethodPost, "/api/projections", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "horizon_years")
}

func TestRunProjection_InvalidAmountsBecomeWarnings(t *testing.T) {
	_, srv := setupTestServer(t)

	body := projectionBody()
	body["pensions"] = []map[string]any{
		{"id": "pen-bad", "monthly_amount": -500, "start_date": "2025-01-01"},
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/projections", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAs[ProjectionResponse](t, rec)
	assert.Len(t, resp.Warnings, 1)
	assert.True(t, resp.Projections[0].TotalMonthlyIncome.IsZero())
}

func TestRunProjection_AcceptsDecimalStrings(t *testing.T) {
	// GIVEN: amounts sent as strings, as the API writes them
	_, srv := setupTestServer(t)
	body := projectionBody()
	body["credit_points"] = "0"
	body["pensions"] = []map[string]any{
		{"id": "pen-1", "monthly_amount": "10000.00", "start_date": "2025-01-01", "tax_treatment": "taxable"},
	}

	// WHEN: projecting
	rec := doJSON(t, srv, http.MethodPost, "/api/projections", body)

	// THEN: they are read exactly like numbers
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeAs[ProjectionResponse](t, rec)
	assertMoney(t, "1119.60", resp.Projections[0].TotalMonthlyTax)
}

func TestRunProjection_NegativeCreditPointsRejected(t *testing.T) {
	_, srv := setupTestServer(t)

	body := projectionBody()
	body["credit_points"] = -1
	rec := doJSON(t, srv, http.MethodPost, "/api/projections", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "credit_points")
}

// =============================================================================
// RULES & TAX TABLES
// =============================================================================

func TestSaveRules_MergesWithDefaultsAndResets(t *testing.T) {
	// GIVEN: an override forbidding capital on current-employer severance
	_, srv := setupTestServer(t)
	override := map[string]any{
		"version": "ops-2026",
		"rules": []map[string]any{{
			"field":                      conversion.SeveranceCurrentEmployer,
			"can_convert_to_pension":     true,
			"can_convert_to_capital":     false,
			"tax_treatment_when_pension": "taxable",
		}},
	}
	validate := map[string]any{
		"conversion_type": "capital_asset",
		"field":           conversion.SeveranceCurrentEmployer,
		"amount":          1000,
	}

	// WHEN: saving it
	rec := doJSON(t, srv, http.MethodPut, "/api/rules", override)

	// THEN: every default key survives and the override applies
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rs := decodeAs[RuleSetDTO](t, rec)
	assert.Equal(t, "ops-2026", rs.Version)
	assert.Len(t, rs.Rules, len(conversion.DefaultRules()))

	res := decodeAs[conversion.ComponentResult](t, doJSON(t, srv, http.MethodPost, "/api/conversions/validate", validate))
	assert.False(t, res.CanConvert)

	// WHEN: resetting
	rec = doJSON(t, srv, http.MethodPost, "/api/rules/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: the default rule is back
	res = decodeAs[conversion.ComponentResult](t, doJSON(t, srv, http.MethodPost, "/api/conversions/validate", validate))
	assert.True(t, res.CanConvert)
}

func TestSaveRules_YAMLBody(t *testing.T) {
	h, srv := setupTestServer(t)
	doc := `
version: yaml-ops
rules:
  - field: custom_component
    can_convert_to_pension: true
    can_convert_to_capital: true
    tax_treatment_when_pension: exempt
`
	rec := do(t, srv, http.MethodPut, "/api/rules", "application/yaml", doc)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rules, _ := h.snapshot()
	assert.Equal(t, "yaml-ops", rules.Version())
	_, ok := rules.Get("custom_component")
	assert.True(t, ok)
}

func TestSaveRules_Invalid(t *testing.T) {
	_, srv := setupTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"no rules", map[string]any{"version": "v"}},
		{"missing field", map[string]any{"rules": []map[string]any{{"can_convert_to_pension": true}}}},
		{"unknown treatment", map[string]any{"rules": []map[string]any{{"field": "x", "tax_treatment_when_pension": "free"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPut, "/api/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSaveRules_GeneratesVersion(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/rules", map[string]any{
		"rules": []map[string]any{{"field": "x", "can_convert_to_pension": true}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	rs := decodeAs[RuleSetDTO](t, rec)
	assert.Len(t, rs.Version, 36)
}

func TestGetRules_YAML(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/rules?format=yaml", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), conversion.SeveranceCurrentEmployer)
}

func TestPutTaxTable(t *testing.T) {
	// GIVEN: a flat 10% table for 2026
	h, srv := setupTestServer(t)
	body := map[string]any{
		"brackets": []map[string]any{{"min_annual": 0, "max_annual": -1, "rate": 0.10}},
	}

	// WHEN: uploading it
	rec := doJSON(t, srv, http.MethodPut, "/api/tax-tables/2026", body)

	// THEN: it joins the built-in table with the default credit point value
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decodeAs[tax.Table](t, rec)
	assert.True(t, tax.CreditPointValue2025.Equal(saved.CreditPointValue))

	list := decodeAs[TaxTablesDTO](t, doJSON(t, srv, http.MethodGet, "/api/tax-tables", nil))
	require.Len(t, list.Tables, 2)
	assert.Equal(t, 2025, list.Tables[0].Year)
	assert.Equal(t, 2026, list.Tables[1].Year)

	_, taxes := h.snapshot()
	assert.Equal(t, "0.1", taxes.For(2030).Brackets[0].Rate.String())
}

func TestPutTaxTable_Invalid(t *testing.T) {
	_, srv := setupTestServer(t)

	decreasing := map[string]any{
		"brackets": []map[string]any{
			{"min_annual": 0, "max_annual": 100000, "rate": 0.20},
			{"min_annual": 100000, "max_annual": -1, "rate": 0.10},
		},
	}
	tests := []struct {
		name string
		path string
		body any
	}{
		{"bad year", "/api/tax-tables/abc", decreasing},
		{"decreasing rates", "/api/tax-tables/2026", decreasing},
		{"no brackets", "/api/tax-tables/2026", map[string]any{"brackets": []any{}}},
		{"rate above one", "/api/tax-tables/2026", map[string]any{"brackets": []map[string]any{{"max_annual": -1, "rate": 1.5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestCreateClient_JSON(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/clients", "application/json", testClientJSON)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decodeAs[ClientDTO](t, rec)
	assert.Equal(t, "client-1", dto.ID)
	assert.NotEmpty(t, dto.CreatedAt)
	require.Len(t, dto.Portfolio.Pensions, 1)
	assert.Equal(t, tax.Taxable, dto.Portfolio.Pensions[0].TaxTreatment)

	list := decodeAs[[]ClientDTO](t, doJSON(t, srv, http.MethodGet, "/api/clients", nil))
	assert.Len(t, list, 1)
}

func TestCreateClient_YAMLWithWarnings(t *testing.T) {
	_, srv := setupTestServer(t)
	doc := `
name: Noa Bar
portfolio:
  additional_incomes:
    - name: Consulting
      amount: -100
`
	rec := do(t, srv, http.MethodPost, "/api/clients", "application/yaml", doc)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decodeAs[ClientDTO](t, rec)
	assert.NotEmpty(t, dto.ID)
	assert.Len(t, dto.Warnings, 1)
	require.Len(t, dto.Portfolio.AdditionalIncomes, 1)
	assert.True(t, dto.Portfolio.AdditionalIncomes[0].Amount.IsZero())
}

func TestCreateClient_Invalid(t *testing.T) {
	_, srv := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"malformed", "{"},
		{"missing name", `{"id": "x"}`},
		{"bad birth date", `{"name": "A", "birth_date": "01/05/1960"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/clients", "application/json", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetClient_NotFound(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/clients/nobody", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "Client not found", body.Error)
}

func TestProjectClient_RecordsRunsNewestFirst(t *testing.T) {
	// GIVEN: a stored client without credit points
	_, srv := setupTestServer(t)
	createTestClient(t, srv)

	// WHEN: projecting twice, first with the defaults then overriding the horizon
	rec := doJSON(t, srv, http.MethodPost, "/api/clients/client-1/projection", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeAs[ProjectionResponse](t, rec)
	assert.Len(t, first.Projections, 30)

	rec = doJSON(t, srv, http.MethodPost, "/api/clients/client-1/projection", map[string]any{"start_year": 2025, "horizon_years": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeAs[ProjectionResponse](t, rec)
	require.Len(t, second.Projections, 5)
	// The client's zero credit points apply, not the engine default.
	assertMoney(t, "1119.60", second.Projections[0].TotalMonthlyTax)

	// THEN: both runs are listed, newest first, without rows by default
	runs := decodeAs[[]RunDTO](t, doJSON(t, srv, http.MethodGet, "/api/clients/client-1/runs", nil))
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].ID)
	assert.Empty(t, runs[0].Rows)

	runs = decodeAs[[]RunDTO](t, doJSON(t, srv, http.MethodGet, "/api/clients/client-1/runs?rows=true", nil))
	assert.Len(t, runs[0].Rows, 5)
}

func TestListRuns_UnknownClient(t *testing.T) {
	_, srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/clients/nobody/runs", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// REFERENCE LOADING
// =============================================================================

func TestLoadReference_MergesStoredOverrides(t *testing.T) {
	h := setupTestHandler(t)
	ctx := t.Context()

	require.NoError(t, h.Store.SaveRules(ctx, store.RuleSetRecord{
		Version: "stored",
		Rules:   []conversion.Rule{{Field: "extra", CanConvertToPension: true}},
	}))
	bad := tax.Table{Year: 2027, Brackets: []tax.Bracket{tax.NewBracket(0, 1000, "0.1")}}
	require.NoError(t, h.Store.SaveTaxTable(ctx, bad))

	require.NoError(t, h.LoadReference(ctx))

	rules, taxes := h.snapshot()
	assert.Equal(t, "stored", rules.Version())
	assert.Equal(t, len(conversion.DefaultRules())+1, rules.Len())
	assert.Equal(t, 1, taxes.Len(), "invalid stored table is skipped")
	storetest.EqualJSON(t, tax.Default2025(), taxes.For(2027))
}
