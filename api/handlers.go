/*
handlers.go - HTTP API handlers for the retirement engine

PURPOSE:
  Exposes the conversion validator, the yearly projector and the valuation
  over a REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the engine packages.

ENDPOINTS:
  Reference data:
    GET    /api/rules                   Current merged rule set (?format=yaml)
    PUT    /api/rules                   Save operator overrides
    POST   /api/rules/reset             Drop overrides, defaults only
    GET    /api/tax-tables              Tax schedule (?format=yaml)
    PUT    /api/tax-tables/{year}       Insert or replace one year's table

  Conversions:
    POST   /api/conversions/validate      Component or whole-account validation
    POST   /api/conversions/tax-treatment Dominant tax treatment of a selection
    POST   /api/conversions/convert       Produce a pension or capital asset

  Projections:
    POST   /api/projections             Yearly table and valuation summary

  Clients:
    GET    /api/clients                 List clients
    POST   /api/clients                 Create or replace a client (JSON or YAML)
    GET    /api/clients/{id}            Client with portfolio
    POST   /api/clients/{id}/projection Project the stored portfolio and record the run
    GET    /api/clients/{id}/runs       Recorded runs, newest first

  Scenarios:
    GET    /api/scenarios               List demo clients
    GET    /api/scenarios/current       Last loaded demo client
    POST   /api/scenarios/load          Reset, then load a demo client
    POST   /api/scenarios/reset         Drop all data

  GET    /api/health                    Liveness and reference data in force

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: persistence for reference data, clients and runs
  - Factory: document parsing and normalization
  - A reference snapshot (rule set + tax schedule) replaced whole by the
    refresher or by operator edits. Each request reads it once.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, validation errors (details list the fields)
  - 404: Client not found
  - 422: Conversion rejected by the rules (body carries the validation)
  - 500: Store failures

SECURITY NOTE:
  No authentication. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - reference.go: Rule and tax table endpoints
  - clients.go: Client and run endpoints
  - scenarios.go: Demo clients
  - server.go: Router setup and middleware
*/
package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/config"
	"github.com/warp/retirement-engine/conversion"
	"github.com/warp/retirement-engine/factory"
	"github.com/warp/retirement-engine/projection"
	"github.com/warp/retirement-engine/store"
	"github.com/warp/retirement-engine/tax"
	"github.com/warp/retirement-engine/valuation"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   store.Store
	Factory *factory.Factory
	Engine  config.EngineConfig
	Log     *zap.Logger

	validate *validator.Validate

	mu              sync.RWMutex
	rules           conversion.RuleSet
	taxes           tax.Schedule
	currentScenario string
}

// NewHandler creates a handler over st. Reference data starts at the
// built-in defaults until LoadReference runs.
func NewHandler(st store.Store, engine config.EngineConfig, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:    st,
		Factory:  factory.New(),
		Engine:   engine,
		Log:      log,
		validate: newValidator(),
		rules:    conversion.DefaultRuleSet(),
		taxes:    tax.DefaultSchedule(),
	}
}

// snapshot returns the reference data in force. Both values are immutable.
func (h *Handler) snapshot() (conversion.RuleSet, tax.Schedule) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rules, h.taxes
}

// Health reports liveness and the reference data in force.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rules, taxes := h.snapshot()
	years := make([]int, 0, taxes.Len())
	for _, t := range taxes.Tables() {
		years = append(years, t.Year)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"rule_set_version": rules.Version(),
		"tax_years":        years,
	})
}

// =============================================================================
// CONVERSION HANDLERS
// =============================================================================

// ValidateConversion validates a single component or a whole account.
// Rule failures are part of a 200 response; only malformed requests fail.
func (h *Handler) ValidateConversion(w http.ResponseWriter, r *http.Request) {
	var req ValidateConversionRequest
	if status, err := h.decode(r, &req); err != nil {
		h.fail(w, r, status, "Invalid request body", err)
		return
	}

	rules, _ := h.snapshot()
	v := conversion.NewValidator(rules)
	t := conversion.Type(req.ConversionType)

	if req.Account != nil {
		res := v.ValidateAccount(*req.Account, req.Selected, t)
		h.Log.Debug("account validated",
			zap.String("account_id", req.Account.ID),
			zap.Bool("valid", res.Valid),
			zap.Int("errors", len(res.Errors)),
		)
		writeJSON(w, http.StatusOK, res)
		return
	}

	writeJSON(w, http.StatusOK, v.ValidateComponent(req.Field, req.Amount, t, req.ProductType))
}

// GetTaxTreatment returns the dominant treatment of a selection.
func (h *Handler) GetTaxTreatment(w http.ResponseWriter, r *http.Request) {
	var req TaxTreatmentRequest
	if status, err := h.decode(r, &req); err != nil {
		h.fail(w, r, status, "Invalid request body", err)
		return
	}

	rules, _ := h.snapshot()
	v := conversion.NewValidator(rules)
	t := conversion.Type(req.ConversionType)
	writeJSON(w, http.StatusOK, TaxTreatmentDTO{
		TaxTreatment: v.DominantTreatment(*req.Account, req.Selected, t),
		Validation:   v.ValidateAccount(*req.Account, req.Selected, t),
	})
}

// Convert executes a conversion, optionally attaching the result to a
// client's portfolio.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if status, err := h.decode(r, &req); err != nil {
		h.fail(w, r, status, "Invalid request body", err)
		return
	}
	ctx := r.Context()

	var client store.Client
	if req.ClientID != "" {
		c, err := h.Store.GetClient(ctx, req.ClientID)
		if err != nil {
			h.storeFailure(w, r, "Client not found", err)
			return
		}
		client = c
	}

	rules, _ := h.snapshot()
	v := conversion.NewValidator(rules)
	out, err := v.Convert(*req.Account, req.Selected, conversion.Type(req.ConversionType), conversion.ConvertOptions{
		Name:             req.Name,
		StartDate:        req.StartDate,
		AnnuityFactor:    h.annuityFactor(req.AnnuityFactor),
		IndexationRate:   req.IndexationRate,
		AnnualReturnRate: req.AnnualReturnRate,
		IndexationMethod: projection.IndexationMethod(req.IndexationMethod),
		SpreadYears:      req.SpreadYears,
		Deferred:         req.Deferred,
	})
	dto := toConversionDTO(out, rules.Version())
	if errors.Is(err, conversion.ErrRejected) {
		h.Log.Info("conversion rejected",
			zap.String("account_id", req.Account.ID),
			zap.Strings("errors", out.Validation.Errors),
		)
		writeJSON(w, http.StatusUnprocessableEntity, dto)
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Conversion failed", err)
		return
	}

	if req.ClientID != "" {
		// A fresh id per conversion so the same account can be converted twice.
		if out.Pension != nil {
			p := *out.Pension
			p.ID = uuid.NewString()
			client.Portfolio.Pensions = append(client.Portfolio.Pensions, p)
			dto.Pension.ID = p.ID
		}
		if out.Capital != nil {
			c := *out.Capital
			c.ID = uuid.NewString()
			client.Portfolio.CapitalAssets = append(client.Portfolio.CapitalAssets, c)
			dto.Capital.ID = c.ID
		}
		if err := h.Store.SaveClient(ctx, client); err != nil {
			h.fail(w, r, http.StatusInternalServerError, "Failed to save client", err)
			return
		}
		dto.ClientID = client.ID
	}

	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) annuityFactor(requested decimal.Decimal) decimal.Decimal {
	if requested.IsPositive() {
		return requested
	}
	return decimal.NewFromFloat(h.Engine.AnnuityFactor)
}

// =============================================================================
// PROJECTION HANDLERS
// =============================================================================

// RunProjection projects the sources in the body. With client_id set the
// run is recorded under that client.
func (h *Handler) RunProjection(w http.ResponseWriter, r *http.Request) {
	var req ProjectionRequest
	if status, err := h.decode(r, &req); err != nil {
		h.fail(w, r, status, "Invalid request body", err)
		return
	}
	ctx := r.Context()

	if req.ClientID != "" {
		if _, err := h.Store.GetClient(ctx, req.ClientID); err != nil {
			h.storeFailure(w, r, "Client not found", err)
			return
		}
	}

	resp, run := h.project(req.portfolio(), req.ProjectionOptions, decimal.NewFromFloat(h.Engine.CreditPoints))
	if req.ClientID != "" {
		run.ClientID = req.ClientID
		if err := h.Store.AppendRun(ctx, run); err != nil {
			h.fail(w, r, http.StatusInternalServerError, "Failed to record projection run", err)
			return
		}
		resp.RunID = run.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// project runs the projector and the valuation on p against one reference
// snapshot. The returned run carries unrounded figures and no client.
func (h *Handler) project(p store.Portfolio, opts ProjectionOptions, defaultCredits decimal.Decimal) (ProjectionResponse, store.ProjectionRun) {
	started := time.Now()
	rules, taxes := h.snapshot()
	p, warnings := factory.NormalizePortfolio(p)

	start := opts.StartYear
	if start == 0 {
		start = projection.CurrentYear()
	}
	horizon := opts.HorizonYears
	if horizon == 0 {
		horizon = h.Engine.HorizonYears
	}
	credits := defaultCredits
	if opts.CreditPoints != nil {
		credits = *opts.CreditPoints
	}
	discount := decimal.NewFromFloat(h.Engine.DiscountRate)
	if opts.DiscountRate != nil {
		discount = *opts.DiscountRate
	}
	inflation := decimal.NewFromFloat(h.Engine.InflationRate)
	if opts.InflationRate != nil {
		inflation = *opts.InflationRate
	}

	rows := projection.Run(projection.Input{
		Pensions:          p.Pensions,
		AdditionalIncomes: p.AdditionalIncomes,
		CapitalAssets:     p.CapitalAssets,
		Fixation:          p.Fixation,
		StartYear:         start,
		HorizonYears:      horizon,
		CreditPoints:      credits,
		Taxes:             taxes,
	})
	summary := valuation.Summarize(rows, p.CapitalAssets, valuation.Options{
		DiscountRate:  discount,
		HorizonYears:  horizon,
		InflationRate: inflation,
		StartYear:     start,
		Taxes:         taxes,
	})

	h.Log.Debug("projection computed",
		zap.Int("start_year", start),
		zap.Int("horizon_years", horizon),
		zap.Int("warnings", len(warnings)),
		zap.Duration("duration", time.Since(started)),
	)

	if warnings == nil {
		warnings = []string{}
	}
	resp := ProjectionResponse{
		Projections:    roundRows(rows),
		Summary:        roundSummary(summary),
		Warnings:       warnings,
		RuleSetVersion: rules.Version(),
	}
	run := store.ProjectionRun{
		ID:               uuid.NewString(),
		RuleSetVersion:   rules.Version(),
		StartYear:        start,
		HorizonYears:     horizon,
		DiscountRate:     discount,
		CashFlowNPV:      summary.CashFlowNPV,
		CapitalAssetsNPV: summary.CapitalAssetsNPV,
		TotalNPV:         summary.TotalNPV,
		Rows:             rows,
		CreatedAt:        time.Now().UTC(),
	}
	return resp, run
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if details := validationDetails(err); details != nil {
		resp.Details = details
	} else if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail logs and writes an error response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("method", r.Method),
		zap.String("route", routePattern(r)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.Log.Error(message, fields...)
	} else {
		h.Log.Debug(message, fields...)
	}
	writeError(w, status, message, err)
}

// storeFailure answers 404 for store.ErrNotFound and 500 otherwise.
func (h *Handler) storeFailure(w http.ResponseWriter, r *http.Request, notFound string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.fail(w, r, http.StatusNotFound, notFound, nil)
		return
	}
	h.fail(w, r, http.StatusInternalServerError, "Store failure", err)
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
