// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/consumerlens/consumerlens/internal/adapters/db"
	service "github.com/consumerlens/consumerlens/internal/app"
	"github.com/consumerlens/consumerlens/internal/domain/builder"
	"github.com/consumerlens/consumerlens/internal/domain/sqlcheck"
	"github.com/consumerlens/consumerlens/internal/registry"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ListDatasets(ctx context.Context) []registry.Info
	Schema(ctx context.Context, datasetID int) (*registry.SchemaInfo, error)
	Sample(ctx context.Context, datasetID int, table string, limit int) (*service.SampleResult, error)
	Rank(ctx context.Context, datasetID int, spec builder.RankingSpec) (*service.RankResult, error)
	Profile(ctx context.Context, datasetID int, app string, withBaseline bool) (*service.ProfileResult, error)
	RunSQL(ctx context.Context, datasetID int, sql string, applyRules, markdown bool) (*service.QueryResult, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	datasetsHandler *DatasetsHandler
	healthHandler   *HealthHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		datasetsHandler: NewDatasetsHandler(deps),
		healthHandler:   NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/datasets", MetricsMiddleware(s.datasetsHandler.HandleList, "datasets"))
	mux.HandleFunc("/datasets/", MetricsMiddleware(s.datasetsHandler.HandleDataset, "datasets"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates domain sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sqlcheck.ErrValidation),
		errors.Is(err, builder.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, registry.ErrDatasetNotFound),
		errors.Is(err, registry.ErrTableNotFound),
		errors.Is(err, service.ErrAppNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, db.ErrQueryTimeout):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	case errors.Is(err, db.ErrPoolExhausted):
		writeError(w, http.StatusServiceUnavailable, "pool_exhausted", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
