package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/retirement-engine/factory"
	"go.uber.org/zap"
)

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClient stores a client document, JSON or YAML by content type. The
// portfolio is normalized and the response lists every value that was
// replaced.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	format := factory.FormatJSON
	if isYAML(r) {
		format = factory.FormatYAML
	}

	client, warnings, err := h.Factory.ParseClient(body, format)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "Invalid client document", err)
		return
	}
	check := ClientCheck{Name: client.Name, BirthDate: client.BirthDate, CreditPoints: client.CreditPoints}
	if err := h.validate.Struct(check); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Invalid client document", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveClient(ctx, client); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to save client", err)
		return
	}
	saved, err := h.Store.GetClient(ctx, client.ID)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to load saved client", err)
		return
	}

	h.Log.Info("client saved", zap.String("client_id", saved.ID), zap.Int("warnings", len(warnings)))
	dto := toClientDTO(saved)
	dto.Warnings = warnings
	writeJSON(w, http.StatusCreated, dto)
}

// GetClient returns a client with its portfolio.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeFailure(w, r, "Client not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

// ProjectClient projects the stored portfolio and records the run. The body
// is optional and carries ProjectionOptions; the client's credit points
// apply unless overridden.
func (h *Handler) ProjectClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.Store.GetClient(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.storeFailure(w, r, "Client not found", err)
		return
	}

	var opts ProjectionOptions
	if status, err := h.decode(r, &opts); err != nil && !errors.Is(err, errEmptyBody) {
		h.fail(w, r, status, "Invalid request body", err)
		return
	}

	resp, run := h.project(c.Portfolio, opts, c.CreditPoints)
	run.ClientID = c.ID
	if err := h.Store.AppendRun(ctx, run); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to record projection run", err)
		return
	}
	resp.RunID = run.ID
	writeJSON(w, http.StatusOK, resp)
}

// ListRuns returns a client's recorded runs, newest first. Rows are omitted
// unless ?rows=true.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetClient(ctx, id); err != nil {
		h.storeFailure(w, r, "Client not found", err)
		return
	}

	runs, err := h.Store.ListRuns(ctx, id)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	withRows, _ := strconv.ParseBool(r.URL.Query().Get("rows"))

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run, withRows)
	}
	writeJSON(w, http.StatusOK, dtos)
}
