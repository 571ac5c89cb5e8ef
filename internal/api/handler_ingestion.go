package api

import (
	"net/http"

	"lakegov/internal/domain"
)

type ingestRequest struct {
	ContractID     string           `json:"contract_id"`
	Source         string           `json:"source"`
	TimeRange      domain.TimeRange `json:"time_range"`
	DedupeStrategy string           `json:"dedupe_strategy"`
	BatchSize      int              `json:"batch_size"`
	DryRun         *bool            `json:"dry_run"`
}

type landRequest struct {
	ContractID string        `json:"contract_id"`
	Schema     domain.Schema `json:"schema"`
	Location   string        `json:"location"`
}

type landResponse struct {
	Table tableJSON  `json:"table"`
	Drift *driftJSON `json:"drift,omitempty"`
}

// replay re-ingests a contract's producer data for a time range. dry_run
// defaults to true.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Source != "" {
		h.writeError(w, r, domain.ErrFieldValidation("source", "replay reads the contract's own source; use backfill"))
		return
	}
	res, err := h.ingestion.Replay(r.Context(), actor(r), domain.ReplayRequest{
		ContractID:     req.ContractID,
		TimeRange:      req.TimeRange,
		DedupeStrategy: req.DedupeStrategy,
		BatchSize:      req.BatchSize,
		DryRun:         req.DryRun,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) backfill(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.ingestion.Backfill(r.Context(), actor(r), domain.BackfillRequest{
		ContractID:     req.ContractID,
		Source:         req.Source,
		TimeRange:      req.TimeRange,
		DedupeStrategy: req.DedupeStrategy,
		BatchSize:      req.BatchSize,
		DryRun:         req.DryRun,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) land(w http.ResponseWriter, r *http.Request) {
	var req landRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.ingestion.Land(r.Context(), actor(r), domain.LandRequest{
		ContractID: req.ContractID,
		Schema:     req.Schema,
		Location:   req.Location,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := landResponse{Table: tableToAPI(*res.Table)}
	if res.Drift != nil {
		d, err := driftToAPI(*res.Drift)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out.Drift = &d
	}
	writeJSON(w, http.StatusCreated, out)
}
