/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Engine types are reused
  where their JSON form is already the contract (accounts, income sources,
  rules); request wrappers carry validator tags.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request structs are checked with go-playground/validator before they reach
  the engine. Field names in validation errors use the JSON names.

MONEY:
  Amounts and rates are shopspring/decimal values end to end. Requests may
  send them as JSON numbers or strings; responses write decimal strings, and
  every monetary output is rounded to agorot (2 places). Field names keep the
  monthly/annual unit explicit.

SEE ALSO:
  - handlers.go: Uses these types
  - validation.go: Validator setup and error formatting
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/conversion"
	"github.com/warp/retirement-engine/exemption"
	"github.com/warp/retirement-engine/projection"
	"github.com/warp/retirement-engine/store"
	"github.com/warp/retirement-engine/tax"
	"github.com/warp/retirement-engine/valuation"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// ValidationDetail describes one rejected request field.
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// =============================================================================
// RULES & TAX TABLES
// =============================================================================

// RuleSetDTO is the rule set in force.
type RuleSetDTO struct {
	Version string            `json:"version"`
	Rules   []conversion.Rule `json:"rules"`
}

// RuleDTO is one operator-supplied rule.
type RuleDTO struct {
	Field                   string `json:"field" validate:"required"`
	Label                   string `json:"label"`
	CanConvertToPension     bool   `json:"can_convert_to_pension"`
	CanConvertToCapital     bool   `json:"can_convert_to_capital"`
	TaxTreatmentWhenPension string `json:"tax_treatment_when_pension" validate:"omitempty,oneof=taxable exempt capital_gains fixed_rate tax_spread"`
	TaxTreatmentWhenCapital string `json:"tax_treatment_when_capital" validate:"omitempty,oneof=taxable exempt capital_gains fixed_rate tax_spread"`
	ErrorMessage            string `json:"error_message"`
}

// SaveRulesRequest replaces the operator overrides. An empty version gets a
// generated id.
type SaveRulesRequest struct {
	Version string    `json:"version" validate:"max=64"`
	Rules   []RuleDTO `json:"rules" validate:"required,min=1,dive"`
}

func (r RuleDTO) toRule() conversion.Rule {
	return conversion.Rule{
		Field:                   r.Field,
		Label:                   r.Label,
		CanConvertToPension:     r.CanConvertToPension,
		CanConvertToCapital:     r.CanConvertToCapital,
		TaxTreatmentWhenPension: tax.Treatment(r.TaxTreatmentWhenPension),
		TaxTreatmentWhenCapital: tax.Treatment(r.TaxTreatmentWhenCapital),
		ErrorMessage:            r.ErrorMessage,
	}
}

// BracketDTO is one bracket of an uploaded table. MaxAnnual -1 marks the
// unbounded top bracket.
type BracketDTO struct {
	MinAnnual decimal.Decimal `json:"min_annual" validate:"gte=0"`
	MaxAnnual decimal.Decimal `json:"max_annual" validate:"gte=-1"`
	Rate      decimal.Decimal `json:"rate" validate:"gte=0,lte=1"`
}

// TaxTableRequest is the body of PUT /api/tax-tables/{year}.
type TaxTableRequest struct {
	Brackets         []BracketDTO    `json:"brackets" validate:"required,min=1,dive"`
	CreditPointValue decimal.Decimal `json:"credit_point_value" validate:"gte=0"`
}

func (r TaxTableRequest) toTable(year int) tax.Table {
	t := tax.Table{Year: year, CreditPointValue: r.CreditPointValue}
	for _, b := range r.Brackets {
		t.Brackets = append(t.Brackets, tax.Bracket{MinAnnual: b.MinAnnual, MaxAnnual: b.MaxAnnual, Rate: b.Rate})
	}
	return t
}

// TaxTablesDTO lists the schedule in force.
type TaxTablesDTO struct {
	Tables []tax.Table `json:"tables"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// ValidateConversionRequest is either a single component (field, amount,
// product_type) or a whole account with its selection.
type ValidateConversionRequest struct {
	ConversionType string                     `json:"conversion_type" validate:"required"`
	Field          string                     `json:"field" validate:"required_without=Account"`
	Amount         decimal.Decimal            `json:"amount"`
	ProductType    string                     `json:"product_type"`
	Account        *conversion.Account        `json:"account"`
	Selected       map[string]decimal.Decimal `json:"selected" validate:"required_with=Account"`
}

// TaxTreatmentRequest asks for the dominant treatment of a selection.
type TaxTreatmentRequest struct {
	ConversionType string                     `json:"conversion_type" validate:"required,oneof=pension capital_asset"`
	Account        *conversion.Account        `json:"account" validate:"required"`
	Selected       map[string]decimal.Decimal `json:"selected" validate:"required,min=1"`
}

// TaxTreatmentDTO is the dominant treatment of a selection, with the
// validation it was computed alongside.
type TaxTreatmentDTO struct {
	TaxTreatment tax.Treatment            `json:"tax_treatment"`
	Validation   conversion.AccountResult `json:"validation"`
}

// ConvertRequest executes a conversion. With client_id set, the resulting
// pension or capital asset is added to the client's portfolio.
type ConvertRequest struct {
	ClientID         string                     `json:"client_id"`
	ConversionType   string                     `json:"conversion_type" validate:"required,oneof=pension capital_asset"`
	Account          *conversion.Account        `json:"account" validate:"required"`
	Selected         map[string]decimal.Decimal `json:"selected" validate:"required,min=1"`
	Name             string                     `json:"name"`
	StartDate        string                     `json:"start_date"`
	AnnuityFactor    decimal.Decimal            `json:"annuity_factor" validate:"gte=0"`
	IndexationRate   decimal.Decimal            `json:"indexation_rate" validate:"gte=-1"`
	AnnualReturnRate decimal.Decimal            `json:"annual_return_rate" validate:"gte=-1"`
	IndexationMethod string                     `json:"indexation_method" validate:"omitempty,oneof=none fixed cpi"`
	SpreadYears      int                        `json:"spread_years" validate:"gte=0,lte=10"`
	Deferred         bool                       `json:"deferred"`
}

// ConversionDTO is the outcome of a conversion.
type ConversionDTO struct {
	Validation     conversion.AccountResult  `json:"validation"`
	TaxTreatment   tax.Treatment             `json:"tax_treatment,omitempty"`
	Total          decimal.Decimal           `json:"total"`
	Pension        *projection.PensionIncome `json:"pension,omitempty"`
	Capital        *projection.CapitalAsset  `json:"capital,omitempty"`
	RuleSetVersion string                    `json:"rule_set_version"`
	ClientID       string                    `json:"client_id,omitempty"`
}

func toConversionDTO(out conversion.Outcome, version string) ConversionDTO {
	dto := ConversionDTO{
		Validation:     out.Validation,
		TaxTreatment:   out.TaxTreatment,
		Total:          money(out.Total),
		Pension:        out.Pension,
		Capital:        out.Capital,
		RuleSetVersion: version,
	}
	if dto.Pension != nil {
		p := *dto.Pension
		p.MonthlyAmount = money(p.MonthlyAmount)
		dto.Pension = &p
	}
	return dto
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// ProjectionOptions override the engine defaults for one projection.
type ProjectionOptions struct {
	StartYear     int              `json:"start_year" validate:"omitempty,gte=1900,lte=2200"`
	HorizonYears  int              `json:"horizon_years" validate:"omitempty,gte=1,lte=100"`
	CreditPoints  *decimal.Decimal `json:"credit_points" validate:"omitempty,gte=0"`
	DiscountRate  *decimal.Decimal `json:"discount_rate" validate:"omitempty,gt=-1"`
	InflationRate *decimal.Decimal `json:"inflation_rate" validate:"omitempty,gt=-1"`
}

// ProjectionRequest is the body of POST /api/projections. With client_id
// set, the run is recorded under that client.
type ProjectionRequest struct {
	ProjectionOptions
	ClientID          string                        `json:"client_id"`
	Pensions          []projection.PensionIncome    `json:"pensions"`
	AdditionalIncomes []projection.AdditionalIncome `json:"additional_incomes"`
	CapitalAssets     []projection.CapitalAsset     `json:"capital_assets"`
	Fixation          *exemption.Summary            `json:"fixation"`
}

func (r ProjectionRequest) portfolio() store.Portfolio {
	return store.Portfolio{
		Pensions:          r.Pensions,
		AdditionalIncomes: r.AdditionalIncomes,
		CapitalAssets:     r.CapitalAssets,
		Fixation:          r.Fixation,
	}
}

// ProjectionResponse is the cash-flow table with its valuation.
type ProjectionResponse struct {
	Projections    []projection.YearlyProjection `json:"projections"`
	Summary        valuation.Summary             `json:"summary"`
	Warnings       []string                      `json:"warnings"`
	RuleSetVersion string                        `json:"rule_set_version"`
	RunID          string                        `json:"run_id,omitempty"`
}

// =============================================================================
// CLIENTS
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	BirthDate    string          `json:"birth_date,omitempty"`
	CreditPoints decimal.Decimal `json:"credit_points"`
	Portfolio    store.Portfolio `json:"portfolio"`
	CreatedAt    string          `json:"created_at,omitempty"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// ClientCheck holds the validated fields of an incoming client document.
type ClientCheck struct {
	Name         string          `json:"name" validate:"required,max=200"`
	BirthDate    string          `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	CreditPoints decimal.Decimal `json:"credit_points" validate:"gte=0,lte=20"`
}

func toClientDTO(c store.Client) ClientDTO {
	dto := ClientDTO{
		ID:           c.ID,
		Name:         c.Name,
		BirthDate:    c.BirthDate,
		CreditPoints: c.CreditPoints,
		Portfolio:    c.Portfolio,
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	if !c.UpdatedAt.IsZero() {
		dto.UpdatedAt = c.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// RunDTO is a recorded projection run.
type RunDTO struct {
	ID               string                        `json:"id"`
	ClientID         string                        `json:"client_id"`
	RuleSetVersion   string                        `json:"rule_set_version"`
	StartYear        int                           `json:"start_year"`
	HorizonYears     int                           `json:"horizon_years"`
	DiscountRate     decimal.Decimal               `json:"discount_rate"`
	CashFlowNPV      decimal.Decimal               `json:"cash_flow_npv"`
	CapitalAssetsNPV decimal.Decimal               `json:"capital_assets_npv"`
	TotalNPV         decimal.Decimal               `json:"total_npv"`
	Rows             []projection.YearlyProjection `json:"rows,omitempty"`
	CreatedAt        string                        `json:"created_at"`
}

func toRunDTO(r store.ProjectionRun, withRows bool) RunDTO {
	dto := RunDTO{
		ID:               r.ID,
		ClientID:         r.ClientID,
		RuleSetVersion:   r.RuleSetVersion,
		StartYear:        r.StartYear,
		HorizonYears:     r.HorizonYears,
		DiscountRate:     r.DiscountRate,
		CashFlowNPV:      money(r.CashFlowNPV),
		CapitalAssetsNPV: money(r.CapitalAssetsNPV),
		TotalNPV:         money(r.TotalNPV),
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
	}
	if withRows {
		dto.Rows = roundRows(r.Rows)
	}
	return dto
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ROUNDING
// =============================================================================

// money rounds to agorot.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func roundEntries(in []projection.Entry) []projection.Entry {
	out := make([]projection.Entry, len(in))
	for i, e := range in {
		e.Amount = money(e.Amount)
		out[i] = e
	}
	return out
}

// roundRows returns a rounded copy of rows for display. Totals are rounded
// independently of their breakdowns.
func roundRows(rows []projection.YearlyProjection) []projection.YearlyProjection {
	out := make([]projection.YearlyProjection, len(rows))
	for i, r := range rows {
		out[i] = projection.YearlyProjection{
			Year:                   r.Year,
			TotalMonthlyIncome:     money(r.TotalMonthlyIncome),
			TotalMonthlyTax:        money(r.TotalMonthlyTax),
			NetMonthlyIncome:       money(r.NetMonthlyIncome),
			IncomeBreakdown:        roundEntries(r.IncomeBreakdown),
			TaxBreakdown:           roundEntries(r.TaxBreakdown),
			ExemptPension:          money(r.ExemptPension),
			ExemptPensionAvailable: money(r.ExemptPensionAvailable),
		}
	}
	return out
}

func roundSummary(s valuation.Summary) valuation.Summary {
	out := valuation.Summary{
		DiscountRate:     s.DiscountRate,
		CashFlowNPV:      money(s.CashFlowNPV),
		CapitalAssetsNPV: money(s.CapitalAssetsNPV),
		TotalNPV:         money(s.TotalNPV),
		Assets:           make([]valuation.AssetValuation, len(s.Assets)),
	}
	for i, a := range s.Assets {
		a.FutureValue = money(a.FutureValue)
		a.PresentValue = money(a.PresentValue)
		a.Gain = money(a.Gain)
		a.TaxableGain = money(a.TaxableGain)
		a.EstimatedTax = money(a.EstimatedTax)
		a.AfterTaxNPV = money(a.AfterTaxNPV)
		out.Assets[i] = a
	}
	return out
}
