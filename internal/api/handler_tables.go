package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"lakegov/internal/domain"
)

type registerTableRequest struct {
	LogicalName string        `json:"logical_name"`
	Schema      domain.Schema `json:"schema"`
	Owner       string        `json:"owner"`
	ContractID  *string       `json:"contract_id"`
	Location    string        `json:"location"`
}

// promoteRequest drives any lifecycle edge. to_state defaults to ACTIVE and
// from_state, when given, must match the table's current state.
type promoteRequest struct {
	FromState           *string `json:"from_state"`
	ToState             *string `json:"to_state"`
	Reason              string  `json:"reason"`
	ExpectedRevision    *int64  `json:"expected_revision"`
	AcknowledgeWarnings bool    `json:"acknowledge_warnings"`
	DryRun              bool    `json:"dry_run"`
}

type tableStateJSON struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Version int    `json:"version"`
	Owner   string `json:"owner"`
}

func parseStateField(field string, s *string) (*domain.TableState, error) {
	if s == nil {
		return nil, nil
	}
	st, err := domain.ParseTableState(strings.ToUpper(strings.TrimSpace(*s)))
	if err != nil {
		return nil, domain.ErrFieldValidation(field, "unknown table state %q", *s)
	}
	return &st, nil
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Names             []string `json:"names"`
	IncludeDeprecated bool     `json:"include_deprecated"`
	Partial           bool     `json:"partial"`
}

// listTables returns every version of a logical name, newest first,
// optionally filtered by state.
func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		h.writeError(w, r, domain.ErrFieldValidation("name", "is required"))
		return
	}
	var state *domain.TableState
	if s := r.URL.Query().Get("state"); s != "" {
		st, err := domain.ParseTableState(strings.ToUpper(s))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		state = &st
	}
	versions, err := h.registry.History(r.Context(), actor(r), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]tableJSON, 0, len(versions))
	for _, t := range versions {
		if state != nil && t.State != *state {
			continue
		}
		out = append(out, tableToAPI(t))
	}
	writeJSON(w, http.StatusOK, listResponse[tableJSON]{Data: out, Total: int64(len(out))})
}

func (h *Handler) registerShadow(w http.ResponseWriter, r *http.Request) {
	var req registerTableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.registry.RegisterShadow(r.Context(), actor(r), domain.RegisterShadowRequest{
		LogicalName: req.LogicalName,
		Schema:      req.Schema,
		Owner:       req.Owner,
		ContractID:  req.ContractID,
		Location:    req.Location,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tableToAPI(*t))
}

func (h *Handler) registerExternal(w http.ResponseWriter, r *http.Request) {
	var req registerTableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.ContractID != nil {
		h.writeError(w, r, domain.ErrFieldValidation("contract_id", "external tables cannot be bound to a contract"))
		return
	}
	t, err := h.registry.RegisterExternal(r.Context(), actor(r), domain.RegisterExternalRequest{
		LogicalName: req.LogicalName,
		Schema:      req.Schema,
		Owner:       req.Owner,
		Location:    req.Location,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tableToAPI(*t))
}

func (h *Handler) getTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.GetByID(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableToAPI(*t))
}

func (h *Handler) getTableState(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.GetByID(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableStateJSON{ID: t.ID, State: string(t.State), Version: t.Version, Owner: t.Owner})
}

func (h *Handler) listTransitions(w http.ResponseWriter, r *http.Request) {
	edges, err := h.registry.Transitions(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]transitionJSON{"transitions": mapSlice(edges, transitionToAPI)})
}

func (h *Handler) promoteTable(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	from, err := parseStateField("from_state", req.FromState)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := parseStateField("to_state", req.ToState)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if to == nil {
		active := domain.TableActive
		to = &active
	}
	t, err := h.registry.Transition(r.Context(), actor(r), chi.URLParam(r, "id"), domain.TransitionRequest{
		From:   from,
		To:     *to,
		Reason: req.Reason,
		Promote: domain.PromoteOptions{
			ExpectedRevision:    req.ExpectedRevision,
			AcknowledgeWarnings: req.AcknowledgeWarnings,
			DryRun:              req.DryRun,
		},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableToAPI(*t))
}

func (h *Handler) deprecateTable(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.registry.Deprecate(r.Context(), actor(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableToAPI(*t))
}

func (h *Handler) restoreTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.Restore(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableToAPI(*t))
}

// resolve maps logical names to their resolvable versions. Without partial
// the call fails when any name is unresolved.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Names) == 0 {
		h.writeError(w, r, domain.ErrFieldValidation("names", "must not be empty"))
		return
	}
	if !req.Partial {
		tables, err := h.resolver.Resolve(r.Context(), actor(r), req.Names, req.IncludeDeprecated)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resolutionJSON{Resolved: mapSlice(tables, tableToAPI), Unresolved: []string{}})
		return
	}
	res, err := h.resolver.ResolvePartial(r.Context(), actor(r), req.Names, req.IncludeDeprecated)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := resolutionJSON{Resolved: mapSlice(res.Resolved, tableToAPI), Unresolved: res.Unresolved}
	if out.Unresolved == nil {
		out.Unresolved = []string{}
	}
	writeJSON(w, http.StatusOK, out)
}
