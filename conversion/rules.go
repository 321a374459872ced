package conversion

import (
	"sort"
	"strings"

	"github.com/warp/retirement-engine/tax"
)

// =============================================================================
// RULE
// =============================================================================

// Rule is the conversion rule for one balance component.
type Rule struct {
	Field                   string        `json:"field" yaml:"field"`
	Label                   string        `json:"label,omitempty" yaml:"label,omitempty"`
	CanConvertToPension     bool          `json:"can_convert_to_pension" yaml:"can_convert_to_pension"`
	CanConvertToCapital     bool          `json:"can_convert_to_capital" yaml:"can_convert_to_capital"`
	TaxTreatmentWhenPension tax.Treatment `json:"tax_treatment_when_pension" yaml:"tax_treatment_when_pension"`
	TaxTreatmentWhenCapital tax.Treatment `json:"tax_treatment_when_capital,omitempty" yaml:"tax_treatment_when_capital,omitempty"`
	ErrorMessage            string        `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Allows reports whether the rule permits direction t.
func (r Rule) Allows(t Type) bool {
	if t == ToCapital {
		return r.CanConvertToCapital
	}
	return r.CanConvertToPension
}

// TreatmentFor returns the tax treatment for direction t. The capital path
// defaults to capital_gains, the pension path to taxable.
func (r Rule) TreatmentFor(t Type) tax.Treatment {
	if t == ToCapital {
		if r.TaxTreatmentWhenCapital == "" {
			return tax.CapitalGains
		}
		return r.TaxTreatmentWhenCapital
	}
	if r.TaxTreatmentWhenPension == "" {
		return tax.Taxable
	}
	return r.TaxTreatmentWhenPension
}

// =============================================================================
// DYNAMIC FIELD
// =============================================================================

// GeneralContributions is the key of the dynamic field. Its eligibility and
// treatment depend on the account's product type.
const GeneralContributions = "general_contributions"

var dynamicAliases = []string{GeneralContributions, "general contributions", "תגמולים"}

// IsDynamicField reports whether field is the general-contributions field
// under any of its names.
func IsDynamicField(field string) bool {
	f := strings.ToLower(strings.TrimSpace(field))
	for _, alias := range dynamicAliases {
		if f == alias {
			return true
		}
	}
	return false
}

// =============================================================================
// RULE SET - Immutable snapshot keyed by field
// =============================================================================

// RuleSet is an immutable snapshot of rules. Build one with NewRuleSet or
// Merge; share it freely between goroutines.
type RuleSet struct {
	version string
	rules   map[string]Rule
}

// NewRuleSet indexes rules by field. Later duplicates win; rules with an
// empty field are dropped.
func NewRuleSet(version string, rules []Rule) RuleSet {
	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		if r.Field == "" {
			continue
		}
		m[r.Field] = r
	}
	return RuleSet{version: version, rules: m}
}

// Version identifies the snapshot.
func (rs RuleSet) Version() string { return rs.version }

// Len returns the number of rules.
func (rs RuleSet) Len() int { return len(rs.rules) }

// Get returns the rule for field.
func (rs RuleSet) Get(field string) (Rule, bool) {
	r, ok := rs.rules[field]
	return r, ok
}

// Fields returns every field key, sorted.
func (rs RuleSet) Fields() []string {
	out := make([]string, 0, len(rs.rules))
	for f := range rs.rules {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Rules returns a copy of every rule, sorted by field.
func (rs RuleSet) Rules() []Rule {
	out := make([]Rule, 0, len(rs.rules))
	for _, f := range rs.Fields() {
		out = append(out, rs.rules[f])
	}
	return out
}

// Missing returns the fields of base that rs lacks.
func (rs RuleSet) Missing(base RuleSet) []string {
	var out []string
	for _, f := range base.Fields() {
		if _, ok := rs.rules[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Merge returns defaults ∪ overrides keyed by field, overrides winning. The
// result always contains every default key, so an operator-edited set saved
// before a default rule existed picks that rule up.
func Merge(version string, defaults, overrides RuleSet) RuleSet {
	m := make(map[string]Rule, len(defaults.rules)+len(overrides.rules))
	for f, r := range defaults.rules {
		m[f] = r
	}
	for f, r := range overrides.rules {
		m[f] = r
	}
	return RuleSet{version: version, rules: m}
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultVersion is the version id of the built-in rule set.
const DefaultVersion = "default"

// Static field keys of the default rule set.
const (
	SeveranceCurrentEmployer       = "severance_current_employer"
	SeveranceAfterSettlement       = "severance_after_settlement"
	SeveranceBeforeSettlement      = "severance_before_settlement"
	SeveranceRightsContinuity      = "severance_previous_employers_rights_continuity"
	SeverancePensionContinuity     = "severance_previous_employers_pension_continuity"
	EmployeeContributionsUntil2000 = "employee_contributions_until_2000"
	EmployeeContributionsAfter2000 = "employee_contributions_after_2000"
	EmployeeContributionsAfter2008 = "employee_contributions_after_2008_non_paying"
	EmployerContributionsUntil2000 = "employer_contributions_until_2000"
	EmployerContributionsAfter2000 = "employer_contributions_after_2000"
	EmployerContributionsAfter2008 = "employer_contributions_after_2008_non_paying"
)

// DefaultRules returns the authoritative built-in rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Field: SeveranceCurrentEmployer, Label: "פיצויים מעסיק נוכחי",
			CanConvertToPension: true, CanConvertToCapital: true,
			TaxTreatmentWhenPension: tax.Taxable, TaxTreatmentWhenCapital: tax.CapitalGains,
		},
		{
			Field: SeveranceAfterSettlement, Label: "פיצויים לאחר התחשבנות",
			CanConvertToPension: true, CanConvertToCapital: true,
			TaxTreatmentWhenPension: tax.Taxable, TaxTreatmentWhenCapital: tax.Exempt,
		},
		{
			Field: SeveranceBeforeSettlement, Label: "פיצויים שלא עברו התחשבנות",
			CanConvertToPension: true, CanConvertToCapital: true,
			TaxTreatmentWhenPension: tax.Taxable, TaxTreatmentWhenCapital: tax.CapitalGains,
		},
		{
			Field: SeveranceRightsContinuity, Label: "פיצויים מעסיקים קודמים (רצף זכויות)",
			CanConvertToPension: true, CanConvertToCapital: false,
			TaxTreatmentWhenPension: tax.Taxable,
			ErrorMessage:            "severance under continuity of rights can only be converted to an annuity",
		},
		{
			Field: SeverancePensionContinuity, Label: "פיצויים מעסיקים קודמים (רצף קצבה)",
			CanConvertToPension: true, CanConvertToCapital: false,
			TaxTreatmentWhenPension: tax.Taxable,
			ErrorMessage:            "severance under continuity of annuity can only be converted to an annuity",
		},
		{
			Field: EmployeeContributionsUntil2000, Label: "תגמולי עובד עד 2000",
			CanConvertToPension: true, CanConvertToCapital: true,
			TaxTreatmentWhenPension: tax.Taxable, TaxTreatmentWhenCapital: tax.Exempt,
		},
		{
			Field: EmployeeContributionsAfter2000, Label: "תגמולי עובד אחרי 2000",
			CanConvertToPension: true, CanConvertToCapital: true,
			TaxTreatmentWhenPension: tax.Taxable, TaxTreatmentWhenCapital: tax.Exempt,
		},
		{
			Field: EmployeeContributionsAfter2008, Label: "תגמולי עובד אחרי 2008 (קופה לא משלמת)",
			CanConvertToPension: true, CanConvertToCapital: false,
			TaxTreatmentWhenPension: tax.Taxable,
			ErrorMessage:            "contributions after 2008 to a non-paying fund must be paid as an annuity",
		},
		{
			Field: EmployerContributionsUntil2000, Label: "תגמולי מעביד עד 2000",
			CanConvertToPension: true, CanConvertToCapital: true,
			TaxTreatmentWhenPension: tax.Taxable, TaxTreatmentWhenCapital: tax.Exempt,
		},
		{
			Field: EmployerContributionsAfter2000, Label: "תגמולי מעביד אחרי 2000",
			CanConvertToPension: true, CanConvertToCapital: true,
			TaxTreatmentWhenPension: tax.Taxable, TaxTreatmentWhenCapital: tax.Exempt,
		},
		{
			Field: EmployerContributionsAfter2008, Label: "תגמולי מעביד אחרי 2008 (קופה לא משלמת)",
			CanConvertToPension: true, CanConvertToCapital: false,
			TaxTreatmentWhenPension: tax.Taxable,
			ErrorMessage:            "contributions after 2008 to a non-paying fund must be paid as an annuity",
		},
		{
			// Flags are placeholders: the validator derives this field from
			// the product type.
			Field: GeneralContributions, Label: "תגמולים",
			CanConvertToPension: true, CanConvertToCapital: true,
			TaxTreatmentWhenPension: tax.Taxable, TaxTreatmentWhenCapital: tax.CapitalGains,
		},
	}
}

// DefaultRuleSet returns the built-in rules as a snapshot.
func DefaultRuleSet() RuleSet { return NewRuleSet(DefaultVersion, DefaultRules()) }
