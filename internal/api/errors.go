package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"lakegov/internal/domain"
)

// errorBody is the JSON shape of every error response. EntityID and Rule name
// the entity and the violated rule whenever the error carries them.
type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	EntityID string `json:"entity_id,omitempty"`
	Rule     string `json:"rule,omitempty"`
}

// errorResponse maps a domain error to its HTTP status and body. Unknown
// errors become an opaque 500.
func errorResponse(err error) (int, errorBody) {
	var (
		validation *domain.ValidationError
		unauth     *domain.UnauthorizedError
		notFound   *domain.NotFoundError
		transition *domain.InvalidTransitionError
		concurrent *domain.ConcurrentModificationError
		conflict   *domain.ConflictError
		joinFail   *domain.JoinValidationError
		drift      *domain.DriftBreakingChangeError
		unresolved *domain.UnresolvedTableError
		tooLarge   *http.MaxBytesError
	)
	msg := err.Error()
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorBody{Code: "validation_error", Message: msg, Rule: validation.Field}
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorBody{Code: "validation_error", Message: msg}
	case errors.As(err, &unauth):
		return http.StatusForbidden, errorBody{Code: "unauthorized", Message: msg,
			EntityID: unauth.EntityID, Rule: "permission:" + string(unauth.Permission)}
	case errors.As(err, &unresolved):
		return http.StatusNotFound, errorBody{Code: "unresolved_table", Message: msg,
			EntityID: strings.Join(unresolved.Names, ","), Rule: "resolvable_state"}
	case errors.As(err, &notFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: msg}
	case errors.As(err, &transition):
		return http.StatusConflict, errorBody{Code: "invalid_transition", Message: msg,
			EntityID: transition.EntityID, Rule: fmt.Sprintf("%s->%s", transition.From, transition.To)}
	case errors.As(err, &concurrent):
		return http.StatusConflict, errorBody{Code: "concurrent_modification", Message: msg,
			EntityID: concurrent.EntityID, Rule: "revision"}
	case errors.As(err, &conflict):
		return http.StatusConflict, errorBody{Code: "conflict", Message: msg}
	case errors.As(err, &joinFail):
		return http.StatusUnprocessableEntity, errorBody{Code: "join_validation_failed", Message: msg,
			EntityID: joinFail.CandidateID, Rule: joinFail.Check}
	case errors.As(err, &drift):
		return http.StatusUnprocessableEntity, errorBody{Code: "drift_breaking_change", Message: msg,
			EntityID: drift.TableID, Rule: "drift:" + string(drift.Severity)}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal server error"}
	}
}
