/*
Package store defines persistence for reference data and client portfolios.

PURPOSE:
  The engine packages are pure functions over in-memory snapshots. This
  package owns what survives a restart: operator edits to the conversion
  rules, per-year tax tables, client portfolios and the projection runs
  produced for them.

KEY INTERFACES:
  ReferenceStore: Rule overrides and tax tables
  ClientStore:    Client portfolios and their projection runs
  Store:          Both, plus Close

SNAPSHOT CONTRACT:
  Rule overrides are stored as the operator saved them. Callers merge them
  over the built-in defaults on load, so a stored set that predates a new
  default rule still yields a complete rule set.

IMPLEMENTATIONS:
  - store/sqlite: SQLite (mattn/go-sqlite3), WAL mode
  - store/memory: In-memory for tests and demos

SEE ALSO:
  - conversion/rules.go: Merge
  - api/refresher.go: periodic reload of reference data
*/
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/conversion"
	"github.com/warp/retirement-engine/exemption"
	"github.com/warp/retirement-engine/projection"
	"github.com/warp/retirement-engine/tax"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// =============================================================================
// RECORDS
// =============================================================================

// RuleSetRecord is the operator's saved rule overrides.
type RuleSetRecord struct {
	Version   string            `json:"version"`
	Rules     []conversion.Rule `json:"rules"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Portfolio is everything known about a client's retirement savings.
type Portfolio struct {
	Accounts          []conversion.Account          `json:"accounts"`
	Pensions          []projection.PensionIncome    `json:"pensions"`
	AdditionalIncomes []projection.AdditionalIncome `json:"additional_incomes"`
	CapitalAssets     []projection.CapitalAsset     `json:"capital_assets"`
	Fixation          *exemption.Summary            `json:"fixation,omitempty"`
}

// Client is one advised person.
type Client struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BirthDate    string    `json:"birth_date,omitempty"`
	CreditPoints decimal.Decimal `json:"credit_points"`
	Portfolio    Portfolio       `json:"portfolio"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProjectionRun is a persisted projection with its valuation headline.
type ProjectionRun struct {
	ID               string                        `json:"id"`
	ClientID         string                        `json:"client_id"`
	RuleSetVersion   string                        `json:"rule_set_version"`
	StartYear        int                           `json:"start_year"`
	HorizonYears     int                           `json:"horizon_years"`
	DiscountRate     decimal.Decimal               `json:"discount_rate"`
	CashFlowNPV      decimal.Decimal               `json:"cash_flow_npv"`
	CapitalAssetsNPV decimal.Decimal               `json:"capital_assets_npv"`
	TotalNPV         decimal.Decimal               `json:"total_npv"`
	Rows             []projection.YearlyProjection `json:"rows"`
	CreatedAt        time.Time                     `json:"created_at"`
}

// =============================================================================
// INTERFACES
// =============================================================================

// ReferenceStore persists rule overrides and tax tables.
type ReferenceStore interface {
	// LoadRules returns the saved overrides, or ErrNotFound when none exist.
	LoadRules(ctx context.Context) (RuleSetRecord, error)

	// SaveRules replaces the saved overrides.
	SaveRules(ctx context.Context, rec RuleSetRecord) error

	// DeleteRules drops the overrides so only defaults apply.
	DeleteRules(ctx context.Context) error

	// LoadTaxTables returns every stored table ordered by year.
	LoadTaxTables(ctx context.Context) ([]tax.Table, error)

	// SaveTaxTable inserts or replaces the table for t.Year.
	SaveTaxTable(ctx context.Context, t tax.Table) error
}

// ClientStore persists clients and their projection runs.
type ClientStore interface {
	// SaveClient inserts or updates c, keyed by c.ID.
	SaveClient(ctx context.Context, c Client) error

	// GetClient returns the client, or ErrNotFound.
	GetClient(ctx context.Context, id string) (Client, error)

	// ListClients returns every client ordered by name.
	ListClients(ctx context.Context) ([]Client, error)

	// AppendRun records a projection run. Runs are never updated.
	AppendRun(ctx context.Context, run ProjectionRun) error

	// ListRuns returns a client's runs, newest first.
	ListRuns(ctx context.Context, clientID string) ([]ProjectionRun, error)
}

// Store is the full persistence surface used by the API.
type Store interface {
	ReferenceStore
	ClientStore
	Close() error
}

// Resetter is implemented by stores that can drop all data (demo use).
type Resetter interface {
	Reset(ctx context.Context) error
}
