package api

import (
	"net/http"
	"time"

	"lakegov/internal/domain"
)

// listAudit returns audit entries newest first. since and until are RFC3339
// timestamps.
func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter := domain.AuditFilter{
		Actor:      queryPtr(r, "actor"),
		Action:     queryPtr(r, "action"),
		EntityType: queryPtr(r, "entity_type"),
		EntityID:   queryPtr(r, "entity_id"),
		Status:     queryPtr(r, "status"),
		Page:       page,
	}
	if filter.Since, err = queryTime(r, "since"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if filter.Until, err = queryTime(r, "until"); err != nil {
		h.writeError(w, r, err)
		return
	}

	entries, total, err := h.audit.List(r.Context(), actor(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(mapSlice(entries, auditToAPI), page, total))
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	v := queryPtr(r, name)
	if v == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, domain.ErrFieldValidation(name, "must be an RFC3339 timestamp, got %q", *v)
	}
	return &t, nil
}
