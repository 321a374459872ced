package factory

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/retirement-engine/projection"
	"github.com/warp/retirement-engine/store"
	"gopkg.in/yaml.v3"
)

// ErrEmptyDocument is returned for an empty client document.
var ErrEmptyDocument = errors.New("document is empty")

// ClientDocument is the serialized form of a client and portfolio, as
// produced by statement ingestion or written by hand for demos.
type ClientDocument struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	BirthDate    string          `json:"birth_date,omitempty"`
	CreditPoints decimal.Decimal `json:"credit_points"`
	Portfolio    store.Portfolio `json:"portfolio"`
}

// ParseClient decodes a client document and normalizes its portfolio. The
// returned warnings describe values that were replaced by safe defaults.
func (f *Factory) ParseClient(data []byte, format Format) (store.Client, []string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return store.Client{}, nil, ErrEmptyDocument
	}
	var doc ClientDocument
	if err := decodeStruct(data, format, &doc); err != nil {
		return store.Client{}, nil, fmt.Errorf("failed to parse client %s: %w", format, err)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	p, warnings := NormalizePortfolio(doc.Portfolio)
	return store.Client{
		ID:           doc.ID,
		Name:         doc.Name,
		BirthDate:    doc.BirthDate,
		CreditPoints: doc.CreditPoints,
		Portfolio:    p,
	}, warnings, nil
}

// decodeStruct decodes JSON directly. YAML goes through a generic tree
// re-encoded as JSON so the json tags of the engine types apply.
func decodeStruct(data []byte, format Format, v any) error {
	if format != FormatYAML {
		return json.Unmarshal(data, v)
	}
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// NormalizePortfolio returns a copy of p with ids assigned, unknown tax
// treatments mapped to taxable and negative amounts zeroed. Additional
// incomes only keep exempt or fixed_rate; any other treatment is taxed on
// the brackets.
func NormalizePortfolio(p store.Portfolio) (store.Portfolio, []string) {
	var warnings []string
	amount := func(where string, v decimal.Decimal) decimal.Decimal {
		if v.IsNegative() {
			warnings = append(warnings, fmt.Sprintf("%s: invalid amount %s replaced by 0", where, v))
			return decimal.Zero
		}
		return v
	}

	out := store.Portfolio{
		Accounts:          append(p.Accounts[:0:0], p.Accounts...),
		Pensions:          make([]projection.PensionIncome, len(p.Pensions)),
		AdditionalIncomes: make([]projection.AdditionalIncome, len(p.AdditionalIncomes)),
		CapitalAssets:     make([]projection.CapitalAsset, len(p.CapitalAssets)),
	}
	if p.Fixation != nil {
		fx := *p.Fixation
		out.Fixation = &fx
	}

	for i, a := range out.Accounts {
		if a.ID == "" {
			out.Accounts[i].ID = uuid.NewString()
		}
	}
	for i, pen := range p.Pensions {
		if pen.ID == "" {
			pen.ID = uuid.NewString()
		}
		pen.MonthlyAmount = amount("pension "+pen.ID, pen.MonthlyAmount)
		pen.TaxTreatment = pen.TaxTreatment.OrTaxable()
		out.Pensions[i] = pen
	}
	for i, inc := range p.AdditionalIncomes {
		if inc.ID == "" {
			inc.ID = uuid.NewString()
		}
		inc.Amount = amount("income "+inc.ID, inc.Amount)
		if inc.Frequency == "" {
			inc.Frequency = projection.Monthly
		}
		if t := inc.Treatment(); t != inc.TaxTreatment {
			if inc.TaxTreatment != "" {
				warnings = append(warnings, fmt.Sprintf("income %s: tax treatment %q does not apply to recurring income, taxed as %s", inc.ID, inc.TaxTreatment, t))
			}
			inc.TaxTreatment = t
		}
		out.AdditionalIncomes[i] = inc
	}
	for i, a := range p.CapitalAssets {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CurrentValue = amount("asset "+a.ID, a.CurrentValue)
		a.MonthlyIncome = amount("asset "+a.ID, a.MonthlyIncome)
		if a.IndexationMethod == "" {
			a.IndexationMethod = projection.IndexationNone
		}
		a.TaxTreatment = a.TaxTreatment.OrTaxable()
		out.CapitalAssets[i] = a
	}
	return out, warnings
}
