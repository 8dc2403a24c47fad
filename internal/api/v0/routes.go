// Package v0 provides the REST API handlers of the session server.
package v0

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/pinehappi/argon/internal/api/common"
	"github.com/pinehappi/argon/internal/service"
	"github.com/pinehappi/argon/internal/session"
	"github.com/pinehappi/argon/internal/status"
	"github.com/pinehappi/argon/internal/sync/coordinator"
	"github.com/pinehappi/argon/internal/versions"
)

// ClassesResponse is the response of GET /classes
type ClassesResponse struct {
	Classes []string `json:"classes"`
	Count   int      `json:"count"`
}

// ClassResponse is the response of GET /classes/{name}
type ClassResponse struct {
	Name string `json:"name"`
}

// RefreshResponse is the response of POST /classes/refresh
type RefreshResponse struct {
	Code         status.Code `json:"code"`
	Outcome      string      `json:"outcome,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Version      string      `json:"version,omitempty"`
	ClassCount   int         `json:"classCount,omitempty"`
	PersistError string      `json:"persistError,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// StopResponse is the response of POST /stop
type StopResponse struct {
	Code status.Code `json:"code"`
}

// Routes defines the routes for the session API with dependency injection
type Routes struct {
	service service.ClassService
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.ClassService) *Routes {
	return &Routes{service: svc}
}

// HealthRouter creates a router for health, session and version endpoints
func HealthRouter(svc service.ClassService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()
	r.Get("/health", routes.health)
	r.Get("/readiness", routes.readiness)
	r.Get("/version", routes.version)
	r.Get("/details", routes.details)
	r.Post("/stop", routes.stop)

	return r
}

// ClassRouter creates a router for the class database endpoints
func ClassRouter(svc service.ClassService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()
	r.Get("/", routes.listClasses)
	r.Post("/refresh", routes.refresh)
	r.Get("/{name}", routes.getClass)

	return r
}

// health handles GET /health
func (*Routes) health(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readiness handles GET /readiness
func (rr *Routes) readiness(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.CheckReadiness(r.Context()); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// version handles GET /version
func (*Routes) version(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.Current(), http.StatusOK)
}

// details handles GET /details
func (rr *Routes) details(w http.ResponseWriter, r *http.Request) {
	details, err := rr.service.Details(r.Context())
	if err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "Failed to get details")
		common.WriteErrorResponse(w, "Failed to get session details", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, details, http.StatusOK)
}

// stop handles POST /stop
func (rr *Routes) stop(w http.ResponseWriter, r *http.Request) {
	err := rr.service.Stop(r.Context())
	switch {
	case err == nil:
		common.WriteJSONResponse(w, StopResponse{Code: status.CodeStopped}, http.StatusOK)
	case errors.Is(err, session.ErrNotRunning):
		common.WriteJSONResponse(w, StopResponse{Code: status.CodeNotRunning}, http.StatusConflict)
	default:
		logr.FromContextOrDiscard(r.Context()).Error(err, "Failed to stop session")
		common.WriteErrorResponse(w, "Failed to stop session", http.StatusInternalServerError)
	}
}

// listClasses handles GET /classes
//
// Query parameters: prefix (case-insensitive), limit
func (rr *Routes) listClasses(w http.ResponseWriter, r *http.Request) {
	var opts []service.Option[service.ListClassesOptions]

	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		opts = append(opts, service.WithPrefix(prefix))
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			common.WriteErrorResponse(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		opts = append(opts, service.WithLimit(limit))
	}

	classes, err := rr.service.ListClasses(r.Context(), opts...)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	common.WriteJSONResponse(w, ClassesResponse{Classes: classes, Count: len(classes)}, http.StatusOK)
}

// getClass handles GET /classes/{name}
func (rr *Routes) getClass(w http.ResponseWriter, r *http.Request) {
	name, err := common.GetClassNameParam(r, "name")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	canonical, err := rr.service.GetClass(r.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrClassNotFound) {
			common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
			return
		}
		common.WriteErrorResponse(w, "Failed to look up class", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, ClassResponse{Name: canonical}, http.StatusOK)
}

// refresh handles POST /classes/refresh
//
// Query parameters: force (bool)
func (rr *Routes) refresh(w http.ResponseWriter, r *http.Request) {
	force := false
	if forceStr := r.URL.Query().Get("force"); forceStr != "" {
		parsed, err := strconv.ParseBool(forceStr)
		if err != nil {
			common.WriteErrorResponse(w, "Invalid force parameter", http.StatusBadRequest)
			return
		}
		force = parsed
	}

	result, err := rr.service.Refresh(r.Context(), force)
	code := coordinator.Code(result, err)

	resp := RefreshResponse{Code: code}
	if result != nil {
		resp.Outcome = string(result.Outcome)
		if result.Reason.Evaluated() {
			resp.Reason = result.Reason.String()
		}
		resp.Version = result.Version
		resp.ClassCount = result.ClassCount
		if result.PersistErr != nil {
			resp.PersistError = result.PersistErr.Error()
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}

	common.WriteJSONResponse(w, resp, httpStatusFor(code))
}

// httpStatusFor maps a refresh code to the response status
func httpStatusFor(code status.Code) int {
	switch code {
	case status.CodeUpdated, status.CodeAlreadyCurrent:
		return http.StatusOK
	case status.CodeBusy:
		return http.StatusConflict
	case status.CodeConnectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
