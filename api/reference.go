package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/retirement-engine/conversion"
	"github.com/warp/retirement-engine/factory"
	"github.com/warp/retirement-engine/store"
	"github.com/warp/retirement-engine/tax"
	"go.uber.org/zap"
)

// =============================================================================
// REFERENCE DATA LOADING
// =============================================================================

// LoadReference rebuilds the snapshot from the store: saved overrides merged
// over the default rules, and the stored tax tables over the built-in one.
// Invalid stored tables are skipped with a warning.
func (h *Handler) LoadReference(ctx context.Context) error {
	rules := conversion.DefaultRuleSet()
	rec, err := h.Store.LoadRules(ctx)
	switch {
	case err == nil:
		rules = factory.Overlay(rec.Version, rec.Rules)
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to load rules: %w", err)
	}

	tables, err := h.Store.LoadTaxTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tax tables: %w", err)
	}
	// The built-in table is the base; a stored table for its year replaces it.
	taxes, warnings := factory.ScheduleFrom(append([]tax.Table{tax.Default2025()}, tables...))
	for _, w := range warnings {
		h.Log.Warn("stored tax table ignored", zap.String("reason", w))
	}

	h.mu.Lock()
	h.rules = rules
	h.taxes = taxes
	h.mu.Unlock()
	return nil
}

// ImportFiles seeds the store from optional rule and tax table documents.
// An unreadable path is an error; a document that fails to parse is logged
// and leaves the stored data untouched.
func (h *Handler) ImportFiles(ctx context.Context, rulesPath, tablesPath string) error {
	if rulesPath != "" {
		data, format, err := factory.ReadFile(rulesPath)
		if err != nil {
			return err
		}
		doc, err := h.Factory.ParseRules(data, format)
		if err != nil {
			h.Log.Warn("rules file ignored", zap.String("path", rulesPath), zap.Error(err))
		} else {
			rec := store.RuleSetRecord{Version: doc.Version, Rules: doc.Rules, UpdatedAt: time.Now().UTC()}
			if err := h.Store.SaveRules(ctx, rec); err != nil {
				return fmt.Errorf("failed to save rules from %s: %w", rulesPath, err)
			}
			h.Log.Info("rules imported", zap.String("path", rulesPath), zap.Int("rules", len(doc.Rules)))
		}
	}

	if tablesPath != "" {
		data, format, err := factory.ReadFile(tablesPath)
		if err != nil {
			return err
		}
		tables, err := h.Factory.ParseTaxTables(data, format)
		if err != nil {
			h.Log.Warn("tax tables file ignored", zap.String("path", tablesPath), zap.Error(err))
		} else {
			for _, t := range tables {
				if err := h.Store.SaveTaxTable(ctx, t); err != nil {
					return fmt.Errorf("failed to save tax table %d: %w", t.Year, err)
				}
			}
			h.Log.Info("tax tables imported", zap.String("path", tablesPath), zap.Int("tables", len(tables)))
		}
	}
	return nil
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// GetRules returns the merged rule set. ?format=yaml returns the document
// form accepted by the rules file.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	rules, _ := h.snapshot()
	if wantsYAML(r) {
		data, err := h.Factory.EncodeRules(rules, factory.FormatYAML)
		if err != nil {
			h.fail(w, r, http.StatusInternalServerError, "Failed to encode rules", err)
			return
		}
		writeDocument(w, data)
		return
	}
	writeJSON(w, http.StatusOK, RuleSetDTO{Version: rules.Version(), Rules: rules.Rules()})
}

// SaveRules stores operator overrides. Keys missing from the body keep their
// default rule. A YAML body is accepted with a yaml content type.
func (h *Handler) SaveRules(w http.ResponseWriter, r *http.Request) {
	var doc factory.RuleSetDocument
	if isYAML(r) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.fail(w, r, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		doc, err = h.Factory.ParseRules(body, factory.FormatYAML)
		if err != nil {
			h.fail(w, r, http.StatusBadRequest, "Invalid rules document", err)
			return
		}
	} else {
		var req SaveRulesRequest
		if status, err := h.decode(r, &req); err != nil {
			h.fail(w, r, status, "Invalid request body", err)
			return
		}
		doc.Version = req.Version
		for _, rd := range req.Rules {
			doc.Rules = append(doc.Rules, rd.toRule())
		}
		if err := factory.ValidateRules(doc.Rules); err != nil {
			h.fail(w, r, http.StatusBadRequest, "Invalid rules document", err)
			return
		}
	}
	if doc.Version == "" {
		doc.Version = uuid.NewString()
	}

	rec := store.RuleSetRecord{Version: doc.Version, Rules: doc.Rules, UpdatedAt: time.Now().UTC()}
	if err := h.Store.SaveRules(r.Context(), rec); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to save rules", err)
		return
	}

	rules := factory.Overlay(doc.Version, doc.Rules)
	h.mu.Lock()
	h.rules = rules
	h.mu.Unlock()

	h.Log.Info("rules saved", zap.String("version", rules.Version()), zap.Int("overrides", len(doc.Rules)))
	writeJSON(w, http.StatusOK, RuleSetDTO{Version: rules.Version(), Rules: rules.Rules()})
}

// ResetRules drops the overrides.
func (h *Handler) ResetRules(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteRules(r.Context()); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to reset rules", err)
		return
	}
	rules := conversion.DefaultRuleSet()
	h.mu.Lock()
	h.rules = rules
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, RuleSetDTO{Version: rules.Version(), Rules: rules.Rules()})
}

// =============================================================================
// TAX TABLE HANDLERS
// =============================================================================

// ListTaxTables returns the schedule in force.
func (h *Handler) ListTaxTables(w http.ResponseWriter, r *http.Request) {
	_, taxes := h.snapshot()
	if wantsYAML(r) {
		data, err := h.Factory.EncodeSchedule(taxes, factory.FormatYAML)
		if err != nil {
			h.fail(w, r, http.StatusInternalServerError, "Failed to encode tax tables", err)
			return
		}
		writeDocument(w, data)
		return
	}
	writeJSON(w, http.StatusOK, TaxTablesDTO{Tables: taxes.Tables()})
}

// PutTaxTable stores the table for {year} and reloads the schedule.
func (h *Handler) PutTaxTable(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1900 || year > 2200 {
		h.fail(w, r, http.StatusBadRequest, "Invalid year", err)
		return
	}

	var req TaxTableRequest
	if status, err := h.decode(r, &req); err != nil {
		h.fail(w, r, status, "Invalid request body", err)
		return
	}
	table, err := factory.NormalizeTable(req.toTable(year))
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "Invalid tax table", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveTaxTable(ctx, table); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to save tax table", err)
		return
	}
	if err := h.LoadReference(ctx); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to reload reference data", err)
		return
	}

	writeJSON(w, http.StatusOK, table)
}

// =============================================================================
// HELPERS
// =============================================================================

func wantsYAML(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "yaml")
}

func isYAML(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "yaml")
}

func writeDocument(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
