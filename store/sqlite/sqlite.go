/*
Package sqlite provides a SQLite-backed implementation of store.Store.

PURPOSE:
  Persists the operator's rule overrides, yearly tax tables, client
  portfolios and projection runs so several API instances can share them.

KEY TABLES:
  rule_set_meta:    Version and update time of the saved overrides (one row)
  conversion_rules: One row per overridden field
  tax_tables:       One row per tax year
  tax_brackets:     Ordered brackets of each tax year
  clients:          Client records with the portfolio as JSON
  projection_runs:  Append-only history of projections per client

MONEY COLUMNS:
  Amounts and rates are written as decimal TEXT (shopspring/decimal) so a
  stored table reads back exactly as it was saved.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  st, err := sqlite.New("./retirement.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

SEE ALSO:
  - store/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/conversion"
	"github.com/warp/retirement-engine/store"
	"github.com/warp/retirement-engine/tax"
)

// timeLayout is fixed width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ store.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rule_set_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversion_rules (
		field TEXT PRIMARY KEY,
		label TEXT,
		can_convert_to_pension INTEGER NOT NULL,
		can_convert_to_capital INTEGER NOT NULL,
		tax_treatment_when_pension TEXT,
		tax_treatment_when_capital TEXT,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS tax_tables (
		year INTEGER PRIMARY KEY,
		credit_point_value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tax_brackets (
		year INTEGER NOT NULL REFERENCES tax_tables(year) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		min_annual TEXT NOT NULL,
		max_annual TEXT NOT NULL,
		rate TEXT NOT NULL,
		PRIMARY KEY (year, position)
	);

	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		birth_date TEXT,
		credit_points TEXT NOT NULL,
		portfolio_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clients_name ON clients(name);

	CREATE TABLE IF NOT EXISTS projection_runs (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		rule_set_version TEXT,
		start_year INTEGER NOT NULL,
		horizon_years INTEGER NOT NULL,
		discount_rate TEXT NOT NULL,
		cash_flow_npv TEXT NOT NULL,
		capital_assets_npv TEXT NOT NULL,
		total_npv TEXT NOT NULL,
		rows_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Run history per client (newest first)
	CREATE INDEX IF NOT EXISTS idx_runs_client_created
		ON projection_runs(client_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RULE OVERRIDES
// =============================================================================

// LoadRules returns the saved overrides, or store.ErrNotFound.
func (s *Store) LoadRules(ctx context.Context) (store.RuleSetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec store.RuleSetRecord
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT version, updated_at FROM rule_set_meta WHERE id = 1",
	).Scan(&rec.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, store.ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT field, label, can_convert_to_pension, can_convert_to_capital,
		       tax_treatment_when_pension, tax_treatment_when_capital, error_message
		FROM conversion_rules ORDER BY field`)
	if err != nil {
		return rec, err
	}
	defer rows.Close()

	for rows.Next() {
		var r conversion.Rule
		var label, pension, capital, msg sql.NullString
		if err := rows.Scan(&r.Field, &label, &r.CanConvertToPension, &r.CanConvertToCapital, &pension, &capital, &msg); err != nil {
			return rec, err
		}
		r.Label = label.String
		r.TaxTreatmentWhenPension = tax.Treatment(pension.String)
		r.TaxTreatmentWhenCapital = tax.Treatment(capital.String)
		r.ErrorMessage = msg.String
		rec.Rules = append(rec.Rules, r)
	}
	return rec, rows.Err()
}

// SaveRules replaces the saved overrides atomically.
func (s *Store) SaveRules(ctx context.Context, rec store.RuleSetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM conversion_rules"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rule_set_meta (id, version, updated_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				version = excluded.version,
				updated_at = excluded.updated_at`,
			rec.Version, rec.UpdatedAt.UTC().Format(timeLayout),
		); err != nil {
			return err
		}
		for _, r := range rec.Rules {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversion_rules (field, label, can_convert_to_pension, can_convert_to_capital,
					tax_treatment_when_pension, tax_treatment_when_capital, error_message)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(field) DO UPDATE SET
					label = excluded.label,
					can_convert_to_pension = excluded.can_convert_to_pension,
					can_convert_to_capital = excluded.can_convert_to_capital,
					tax_treatment_when_pension = excluded.tax_treatment_when_pension,
					tax_treatment_when_capital = excluded.tax_treatment_when_capital,
					error_message = excluded.error_message`,
				r.Field, nullString(r.Label), r.CanConvertToPension, r.CanConvertToCapital,
				nullString(string(r.TaxTreatmentWhenPension)), nullString(string(r.TaxTreatmentWhenCapital)),
				nullString(r.ErrorMessage),
			); err != nil {
				return fmt.Errorf("save rule %s: %w", r.Field, err)
			}
		}
		return nil
	})
}

// DeleteRules drops the overrides.
func (s *Store) DeleteRules(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM conversion_rules"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM rule_set_meta")
		return err
	})
}

// =============================================================================
// TAX TABLES
// =============================================================================

// LoadTaxTables returns every stored table ordered by year.
func (s *Store) LoadTaxTables(ctx context.Context) ([]tax.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.year, t.credit_point_value, b.min_annual, b.max_annual, b.rate
		FROM tax_tables t
		LEFT JOIN tax_brackets b ON b.year = t.year
		ORDER BY t.year, b.position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []tax.Table
	for rows.Next() {
		var year int
		var credit string
		var minA, maxA, rate sql.NullString
		if err := rows.Scan(&year, &credit, &minA, &maxA, &rate); err != nil {
			return nil, err
		}
		if len(tables) == 0 || tables[len(tables)-1].Year != year {
			tables = append(tables, tax.Table{Year: year, CreditPointValue: parseDecimal(credit)})
		}
		if !minA.Valid {
			continue
		}
		t := &tables[len(tables)-1]
		t.Brackets = append(t.Brackets, tax.Bracket{
			MinAnnual: parseDecimal(minA.String),
			MaxAnnual: parseDecimal(maxA.String),
			Rate:      parseDecimal(rate.String),
		})
	}
	return tables, rows.Err()
}

// SaveTaxTable inserts or replaces the table for t.Year.
func (s *Store) SaveTaxTable(ctx context.Context, t tax.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tax_tables (year, credit_point_value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(year) DO UPDATE SET
				credit_point_value = excluded.credit_point_value,
				updated_at = excluded.updated_at`,
			t.Year, formatDecimal(t.CreditPointValue), time.Now().UTC().Format(timeLayout),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM tax_brackets WHERE year = ?", t.Year); err != nil {
			return err
		}
		for i, b := range t.Brackets {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO tax_brackets (year, position, min_annual, max_annual, rate) VALUES (?, ?, ?, ?, ?)",
				t.Year, i, formatDecimal(b.MinAnnual), formatDecimal(b.MaxAnnual), formatDecimal(b.Rate),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// CLIENTS
// =============================================================================

// SaveClient inserts or updates a client. An empty ID gets a new UUID.
func (s *Store) SaveClient(ctx context.Context, c store.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	portfolio, err := json.Marshal(c.Portfolio)
	if err != nil {
		return fmt.Errorf("encode portfolio: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, birth_date, credit_points, portfolio_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			birth_date = excluded.birth_date,
			credit_points = excluded.credit_points,
			portfolio_json = excluded.portfolio_json,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, nullString(c.BirthDate), formatDecimal(c.CreditPoints), string(portfolio), now, now,
	)
	return err
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, id string) (store.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, birth_date, credit_points, portfolio_json, created_at, updated_at FROM clients WHERE id = ?",
		id,
	)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, store.ErrNotFound
	}
	return c, err
}

// ListClients returns all clients ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]store.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, birth_date, credit_points, portfolio_json, created_at, updated_at FROM clients ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []store.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(sc scanner) (store.Client, error) {
	var c store.Client
	var birth sql.NullString
	var credits, portfolio, createdAt, updatedAt string
	if err := sc.Scan(&c.ID, &c.Name, &birth, &credits, &portfolio, &createdAt, &updatedAt); err != nil {
		return c, err
	}
	c.BirthDate = birth.String
	c.CreditPoints = parseDecimal(credits)
	if err := json.Unmarshal([]byte(portfolio), &c.Portfolio); err != nil {
		return c, fmt.Errorf("decode portfolio of %s: %w", c.ID, err)
	}
	c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	c.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return c, nil
}

// =============================================================================
// PROJECTION RUNS
// =============================================================================

// AppendRun records a projection run. Returns store.ErrNotFound when the
// client does not exist.
func (s *Store) AppendRun(ctx context.Context, run store.ProjectionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM clients WHERE id = ?", run.ClientID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	rowsJSON, err := json.Marshal(run.Rows)
	if err != nil {
		return fmt.Errorf("encode projection rows: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projection_runs (id, client_id, rule_set_version, start_year, horizon_years,
			discount_rate, cash_flow_npv, capital_assets_npv, total_npv, rows_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ClientID, nullString(run.RuleSetVersion), run.StartYear, run.HorizonYears,
		formatDecimal(run.DiscountRate), formatDecimal(run.CashFlowNPV),
		formatDecimal(run.CapitalAssetsNPV), formatDecimal(run.TotalNPV),
		string(rowsJSON), run.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// ListRuns returns a client's runs, newest first.
func (s *Store) ListRuns(ctx context.Context, clientID string) ([]store.ProjectionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, rule_set_version, start_year, horizon_years, discount_rate,
		       cash_flow_npv, capital_assets_npv, total_npv, rows_json, created_at
		FROM projection_runs WHERE client_id = ?
		ORDER BY created_at DESC, rowid DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []store.ProjectionRun{}
	for rows.Next() {
		var r store.ProjectionRun
		var version sql.NullString
		var discount, cashNPV, assetsNPV, totalNPV, rowsJSON, createdAt string
		if err := rows.Scan(&r.ID, &r.ClientID, &version, &r.StartYear, &r.HorizonYears,
			&discount, &cashNPV, &assetsNPV, &totalNPV, &rowsJSON, &createdAt); err != nil {
			return nil, err
		}
		r.RuleSetVersion = version.String
		r.DiscountRate = parseDecimal(discount)
		r.CashFlowNPV = parseDecimal(cashNPV)
		r.CapitalAssetsNPV = parseDecimal(assetsNPV)
		r.TotalNPV = parseDecimal(totalNPV)
		if err := json.Unmarshal([]byte(rowsJSON), &r.Rows); err != nil {
			return nil, fmt.Errorf("decode rows of run %s: %w", r.ID, err)
		}
		r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"projection_runs", "clients", "tax_brackets", "tax_tables", "conversion_rules", "rule_set_meta"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDecimal(d decimal.Decimal) string {
	return d.String()
}

// parseDecimal reads a money column; unreadable text is 0.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
