/*
Package factory converts JSON and YAML reference data into engine types.

PURPOSE:
  Operators maintain conversion rules and tax tables as files or through the
  admin API. The factory parses those documents into conversion.RuleSet and
  tax.Schedule values, validates them, and substitutes the built-in defaults
  when a document is empty or corrupt so a bad edit never stops a projection.

RULES SCHEMA:
  {
    "version": "2025-03",
    "rules": [
      {
        "field": "severance_current_employer",
        "label": "פיצויים מעסיק נוכחי",
        "can_convert_to_pension": true,
        "can_convert_to_capital": true,
        "tax_treatment_when_pension": "taxable",
        "tax_treatment_when_capital": "capital_gains"
      }
    ]
  }

TAX TABLES SCHEMA:
  {
    "tables": [
      {
        "year": 2025,
        "credit_point_value": 2904,
        "brackets": [
          {"min_annual": 0, "max_annual": 84120, "rate": 0.10},
          {"min_annual": 84120, "max_annual": -1, "rate": 0.50}
        ]
      }
    ]
  }

STRICT VS LENIENT:
  Parse* functions return an error for anything invalid.
  Load* functions never fail: they fall back to defaults and return the
  reasons as warnings for the caller to surface.

SEE ALSO:
  - portfolio.go: client portfolio documents
  - conversion/rules.go: DefaultRules, Merge
  - tax/schedule.go: Default2025
*/
package factory

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/warp/retirement-engine/conversion"
	"github.com/warp/retirement-engine/tax"
	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyRuleSet is returned when a rules document holds no rules.
	ErrEmptyRuleSet = errors.New("rule set is empty")

	// ErrEmptyBracketTable is returned when a tax tables document holds no
	// table, or a table holds no brackets.
	ErrEmptyBracketTable = errors.New("bracket table is empty")
)

// =============================================================================
// FORMATS
// =============================================================================

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension. Anything other
// than .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DetectFormat sniffs data: a leading '{' or '[' means JSON.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// ReadFile reads path and reports its format.
func ReadFile(path string) ([]byte, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return data, FormatFromPath(path), nil
}

func decode(data []byte, format Format, v any) error {
	if format == FormatYAML {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

func encode(v any, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// RuleSetDocument is the serialized form of a rule set.
type RuleSetDocument struct {
	Version string            `json:"version" yaml:"version"`
	Rules   []conversion.Rule `json:"rules" yaml:"rules"`
}

// TaxTablesDocument is the serialized form of a tax schedule.
type TaxTablesDocument struct {
	Tables []tax.Table `json:"tables" yaml:"tables"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts documents to engine types.
type Factory struct{}

// New creates a factory.
func New() *Factory {
	return &Factory{}
}

// ParseRules decodes and validates a rules document. The result holds only
// the document's rules; merge it over the defaults before use.
func (f *Factory) ParseRules(data []byte, format Format) (RuleSetDocument, error) {
	var doc RuleSetDocument
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, ErrEmptyRuleSet
	}
	if err := decode(data, format, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse rules %s: %w", format, err)
	}
	if len(doc.Rules) == 0 {
		return doc, ErrEmptyRuleSet
	}
	if err := ValidateRules(doc.Rules); err != nil {
		return doc, err
	}
	return doc, nil
}

// ValidateRules checks that every rule names a field and uses known
// treatments.
func ValidateRules(rules []conversion.Rule) error {
	for i, r := range rules {
		if strings.TrimSpace(r.Field) == "" {
			return fmt.Errorf("rule %d: field is required", i)
		}
		for _, t := range []tax.Treatment{r.TaxTreatmentWhenPension, r.TaxTreatmentWhenCapital} {
			if t != "" && !t.Valid() {
				return fmt.Errorf("rule %s: unknown tax treatment %q", r.Field, t)
			}
		}
	}
	return nil
}

// LoadRules returns the document's rules merged over the defaults. Invalid
// input yields the defaults alone with a warning.
func (f *Factory) LoadRules(data []byte, format Format) (conversion.RuleSet, []string) {
	defaults := conversion.DefaultRuleSet()
	doc, err := f.ParseRules(data, format)
	if err != nil {
		return defaults, []string{fmt.Sprintf("using default conversion rules: %v", err)}
	}
	return Overlay(doc.Version, doc.Rules), nil
}

// Overlay merges rules over the defaults under version. An empty version
// becomes "custom".
func Overlay(version string, rules []conversion.Rule) conversion.RuleSet {
	if version == "" {
		version = "custom"
	}
	return conversion.Merge(version, conversion.DefaultRuleSet(), conversion.NewRuleSet(version, rules))
}

// EncodeRules serializes rs in format.
func (f *Factory) EncodeRules(rs conversion.RuleSet, format Format) ([]byte, error) {
	return encode(RuleSetDocument{Version: rs.Version(), Rules: rs.Rules()}, format)
}

// ParseTaxTables decodes and validates a tax tables document.
func (f *Factory) ParseTaxTables(data []byte, format Format) ([]tax.Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyBracketTable
	}
	var doc TaxTablesDocument
	if err := decode(data, format, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tax tables %s: %w", format, err)
	}
	if len(doc.Tables) == 0 {
		return nil, ErrEmptyBracketTable
	}
	out := make([]tax.Table, 0, len(doc.Tables))
	for _, t := range doc.Tables {
		t, err := NormalizeTable(t)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// NormalizeTable validates t. A missing credit point value takes the 2025
// value.
func NormalizeTable(t tax.Table) (tax.Table, error) {
	if t.Year <= 0 {
		return t, fmt.Errorf("tax table: year %d is invalid", t.Year)
	}
	if len(t.Brackets) == 0 {
		return t, fmt.Errorf("tax table %d: %w", t.Year, ErrEmptyBracketTable)
	}
	if err := tax.Validate(t.Brackets); err != nil {
		return t, fmt.Errorf("tax table %d: %w", t.Year, err)
	}
	if t.CreditPointValue.IsNegative() {
		return t, fmt.Errorf("tax table %d: negative credit point value", t.Year)
	}
	if t.CreditPointValue.IsZero() {
		t.CreditPointValue = tax.CreditPointValue2025
	}
	return t, nil
}

// LoadSchedule builds a schedule from the valid tables of a document.
// Invalid tables are skipped with a warning; with none left the default
// schedule is returned.
func (f *Factory) LoadSchedule(data []byte, format Format) (tax.Schedule, []string) {
	var doc TaxTablesDocument
	if len(bytes.TrimSpace(data)) == 0 {
		return tax.DefaultSchedule(), []string{fmt.Sprintf("using default tax table: %v", ErrEmptyBracketTable)}
	}
	if err := decode(data, format, &doc); err != nil {
		return tax.DefaultSchedule(), []string{fmt.Sprintf("using default tax table: %v", err)}
	}
	return ScheduleFrom(doc.Tables)
}

// ScheduleFrom keeps the valid tables and falls back to the default schedule
// when none is valid.
func ScheduleFrom(tables []tax.Table) (tax.Schedule, []string) {
	var warnings []string
	valid := make([]tax.Table, 0, len(tables))
	for _, t := range tables {
		nt, err := NormalizeTable(t)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipping %v", err))
			continue
		}
		valid = append(valid, nt)
	}
	if len(valid) == 0 {
		warnings = append(warnings, fmt.Sprintf("using default tax table: %v", ErrEmptyBracketTable))
		return tax.DefaultSchedule(), warnings
	}
	return tax.NewSchedule(valid...), warnings
}

// EncodeSchedule serializes s in format.
func (f *Factory) EncodeSchedule(s tax.Schedule, format Format) ([]byte, error) {
	return encode(TaxTablesDocument{Tables: s.Tables()}, format)
}
