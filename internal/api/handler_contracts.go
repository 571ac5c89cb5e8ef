package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lakegov/internal/domain"
)

type versionRequest struct {
	Schema domain.Schema `json:"schema"`
}

type detectDriftRequest struct {
	Schema      domain.Schema `json:"schema"`
	FromVersion *int          `json:"from_version"`
}

func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	contracts, total, err := h.contracts.List(r.Context(), actor(r), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(mapSlice(contracts, contractToAPI), page, total))
}

func (h *Handler) registerContract(w http.ResponseWriter, r *http.Request) {
	var draft domain.ContractDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		h.writeError(w, r, err)
		return
	}
	reg, err := h.contracts.Register(r.Context(), actor(r), draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registrationJSON{
		Contract: contractToAPI(*reg.Contract),
		Table:    tableToAPI(*reg.Table),
	})
}

func (h *Handler) getContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contractToAPI(*c))
}

func (h *Handler) createContractVersion(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.contracts.CreateVersion(r.Context(), actor(r), chi.URLParam(r, "id"), req.Schema)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contractToAPI(*c))
}

func (h *Handler) getContractVersion(w http.ResponseWriter, r *http.Request) {
	version, err := pathInt(r, "version")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.contracts.SchemaVersion(r.Context(), actor(r), chi.URLParam(r, "id"), version)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if v.Schema.Columns == nil {
		v.Schema.Columns = []domain.Column{}
	}
	writeJSON(w, http.StatusOK, schemaVersionJSON{
		ContractID: v.ContractID,
		Version:    v.Version,
		Schema:     v.Schema,
		CreatedBy:  v.CreatedBy,
		CreatedAt:  v.CreatedAt,
	})
}

// diffContract compares two stored schema versions without recording a
// report. Both versions default to the neighbourhood of the current one.
func (h *Handler) diffContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, ok, err := queryInt(r, "to")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		to = c.CurrentSchemaVersion
	}
	from, ok, err := queryInt(r, "from")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		from = max(to-1, 1)
	}
	rep, err := h.drift.DiffVersions(r.Context(), c.ID, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeDrift(w, r, http.StatusOK, *rep)
}

func (h *Handler) listDrift(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reports, err := h.drift.List(r.Context(), c.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]driftJSON, 0, len(reports))
	for _, rep := range reports {
		d, err := driftToAPI(rep)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out = append(out, d)
	}
	writeJSON(w, http.StatusOK, listResponse[driftJSON]{Data: out, Total: int64(len(out))})
}

// detectDrift classifies a candidate schema against a stored version
// (the current one by default) and records the report.
func (h *Handler) detectDrift(w http.ResponseWriter, r *http.Request) {
	var req detectDriftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	a := actor(r)
	c, err := h.contracts.Get(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	from := c.Schema
	if req.FromVersion != nil && *req.FromVersion != c.CurrentSchemaVersion {
		v, err := h.contracts.SchemaVersion(r.Context(), a, c.ID, *req.FromVersion)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		from = v.Schema
	}
	rep, err := h.drift.Detect(r.Context(), a, c.ID, from, req.Schema)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeDrift(w, r, http.StatusCreated, *rep)
}

func (h *Handler) acknowledgeDrift(w http.ResponseWriter, r *http.Request) {
	rep, err := h.drift.Acknowledge(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeDrift(w, r, http.StatusOK, *rep)
}

func (h *Handler) writeDrift(w http.ResponseWriter, r *http.Request, status int, rep domain.DriftReport) {
	out, err := driftToAPI(rep)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, out)
}
