// Package api exposes the governance services over HTTP/JSON under /v1.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lakegov/internal/domain"
	"lakegov/internal/middleware"
	"lakegov/internal/service/contract"
	"lakegov/internal/service/drift"
	"lakegov/internal/service/governance"
	"lakegov/internal/service/ingestion"
	"lakegov/internal/service/join"
	"lakegov/internal/service/registry"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Services groups the services the handlers call.
type Services struct {
	Registry  *registry.TableRegistry
	Resolver  *registry.Resolver
	Contracts *contract.Service
	Drift     *drift.Detector
	Ingestion *ingestion.Service
	Joins     *join.Engine
	Audit     *governance.AuditService
}

// Handler serves the /v1 API.
type Handler struct {
	registry  *registry.TableRegistry
	resolver  *registry.Resolver
	contracts *contract.Service
	drift     *drift.Detector
	ingestion *ingestion.Service
	joins     *join.Engine
	audit     *governance.AuditService
	logger    *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svcs Services, logger *slog.Logger) *Handler {
	return &Handler{
		registry:  svcs.Registry,
		resolver:  svcs.Resolver,
		contracts: svcs.Contracts,
		drift:     svcs.Drift,
		ingestion: svcs.Ingestion,
		joins:     svcs.Joins,
		audit:     svcs.Audit,
		logger:    logger.With("component", "api"),
	}
}

// Routes mounts every /v1 route on r. Authentication is applied by the
// caller.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/tables", func(r chi.Router) {
		r.Get("/", h.listTables)
		r.Post("/shadow", h.registerShadow)
		r.Post("/external", h.registerExternal)
		r.Get("/{id}", h.getTable)
		r.Get("/{id}/state", h.getTableState)
		r.Get("/{id}/transitions", h.listTransitions)
		r.Post("/{id}/promote", h.promoteTable)
		r.Post("/{id}/deprecate", h.deprecateTable)
		r.Post("/{id}/restore", h.restoreTable)
	})
	r.Post("/resolve", h.resolve)

	r.Route("/contracts", func(r chi.Router) {
		r.Get("/", h.listContracts)
		r.Post("/register", h.registerContract)
		r.Get("/{id}", h.getContract)
		r.Post("/{id}/versions", h.createContractVersion)
		r.Get("/{id}/versions/{version}", h.getContractVersion)
		r.Get("/{id}/diff", h.diffContract)
		r.Get("/{id}/drift", h.listDrift)
		r.Post("/{id}/drift", h.detectDrift)
	})
	r.Post("/drift/{id}/acknowledge", h.acknowledgeDrift)

	r.Route("/ingestion", func(r chi.Router) {
		r.Post("/replay", h.replay)
		r.Post("/backfill", h.backfill)
		r.Post("/land", h.land)
	})

	r.Route("/joins", func(r chi.Router) {
		r.Get("/candidates", h.listCandidates)
		r.Post("/candidates", h.proposeJoin)
		r.Get("/candidates/{id}", h.getCandidate)
		r.Post("/candidates/{id}/validate", h.validateJoin)
		r.Post("/candidates/{id}/reject", h.rejectJoin)
		r.Post("/accept", h.acceptJoin)
		r.Get("/accepted", h.listAccepted)
		r.Get("/usable", h.usableJoin)
	})

	r.Get("/audit", h.listAudit)
}

// actor returns the authenticated caller. A request without a principal
// carries no role and fails every permission check.
func actor(r *http.Request) domain.Actor {
	p, _ := domain.PrincipalFromContext(r.Context())
	return p.Actor()
}

// decodeJSON strictly decodes the request body into v. An empty body leaves
// v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return domain.ErrFieldValidation("body", "invalid JSON: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err and logs server-side failures.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.RequestIDFromContext(r.Context()),
		)
	}
	writeJSON(w, status, body)
}

// queryPtr returns the query parameter, or nil when it is absent or empty.
func queryPtr(r *http.Request, name string) *string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	return &v
}

func queryInt(r *http.Request, name string) (int, bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, domain.ErrFieldValidation(name, "must be an integer, got %q", v)
	}
	return n, true, nil
}

func pageFromQuery(r *http.Request) (domain.PageRequest, error) {
	maxResults, _, err := queryInt(r, "max_results")
	if err != nil {
		return domain.PageRequest{}, err
	}
	return domain.PageRequest{MaxResults: maxResults, PageToken: r.URL.Query().Get("page_token")}, nil
}

// listResponse is the envelope of paginated lists.
type listResponse[T any] struct {
	Data          []T    `json:"data"`
	NextPageToken string `json:"next_page_token,omitempty"`
	Total         int64  `json:"total"`
}

func newList[T any](data []T, page domain.PageRequest, total int64) listResponse[T] {
	if data == nil {
		data = []T{}
	}
	return listResponse[T]{
		Data:          data,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
		Total:         total,
	}
}

func mapSlice[S, T any](in []S, f func(S) T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

func pathInt(r *http.Request, name string) (int, error) {
	v := chi.URLParam(r, name)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.ErrFieldValidation(name, "must be an integer, got %q", v)
	}
	return n, nil
}
