package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"lakegov/internal/domain"
)

type proposeRequest struct {
	TableA           string                `json:"table_a"`
	TableB           string                `json:"table_b"`
	Condition        *domain.JoinCondition `json:"condition"`
	DeclaredRelation string                `json:"declared_relation"`
}

type validateRequest struct {
	OverrideFanOut bool `json:"override_fan_out"`
}

type acceptRequest struct {
	CandidateID    string `json:"candidate_id"`
	Rationale      string `json:"rationale"`
	OverrideFanOut bool   `json:"override_fan_out"`
}

func (h *Handler) listCandidates(w http.ResponseWriter, r *http.Request) {
	var state *domain.CandidateState
	if s := queryPtr(r, "state"); s != nil {
		st := domain.CandidateState(strings.ToLower(*s))
		state = &st
	}
	candidates, err := h.joins.ListCandidates(r.Context(), actor(r), queryPtr(r, "table1"), queryPtr(r, "table2"), state)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := mapSlice(candidates, candidateToAPI)
	writeJSON(w, http.StatusOK, listResponse[candidateJSON]{Data: out, Total: int64(len(out))})
}

func (h *Handler) proposeJoin(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.joins.Propose(r.Context(), actor(r), domain.ProposeRequest{
		TableA:           req.TableA,
		TableB:           req.TableB,
		Condition:        req.Condition,
		DeclaredRelation: domain.CardinalityRelation(req.DeclaredRelation),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, candidateToAPI(*c))
}

func (h *Handler) getCandidate(w http.ResponseWriter, r *http.Request) {
	c, err := h.joins.GetCandidate(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, candidateToAPI(*c))
}

// validateJoin samples the candidate and returns its report. Failing checks
// are part of a successful response; only acceptance enforces them.
func (h *Handler) validateJoin(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rep, err := h.joins.Validate(r.Context(), actor(r), chi.URLParam(r, "id"), req.OverrideFanOut)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reportToAPI(*rep))
}

func (h *Handler) rejectJoin(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.joins.Reject(r.Context(), actor(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, candidateToAPI(*c))
}

func (h *Handler) acceptJoin(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.CandidateID == "" {
		h.writeError(w, r, domain.ErrFieldValidation("candidate_id", "is required"))
		return
	}
	j, err := h.joins.Accept(r.Context(), actor(r), req.CandidateID, req.Rationale,
		domain.AcceptOptions{OverrideFanOut: req.OverrideFanOut})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acceptedToAPI(*j))
}

// listAccepted returns every accepted version of a pair's join, including
// superseded ones.
func (h *Handler) listAccepted(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	joins, err := h.joins.ListAccepted(r.Context(), actor(r), q.Get("table1"), q.Get("table2"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := mapSlice(joins, acceptedToAPI)
	writeJSON(w, http.StatusOK, listResponse[acceptedJSON]{Data: out, Total: int64(len(out))})
}

func (h *Handler) usableJoin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	j, err := h.joins.UsableJoin(r.Context(), actor(r), q.Get("table1"), q.Get("table2"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptedToAPI(*j))
}
