package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/consumerlens/consumerlens/internal/domain/builder"
	"github.com/consumerlens/consumerlens/internal/domain/rules"
)

// DatasetsHandler handles dataset discovery and query requests.
type DatasetsHandler struct {
	deps Dependencies
}

// NewDatasetsHandler creates a new datasets handler.
func NewDatasetsHandler(deps Dependencies) *DatasetsHandler {
	return &DatasetsHandler{deps: deps}
}

// HandleList handles GET /datasets requests.
func (h *DatasetsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets": h.deps.ListDatasets(r.Context()),
	})
}

// HandleDataset dispatches /datasets/{id}/{op} requests.
func (h *DatasetsHandler) HandleDataset(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/datasets/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("dataset id must be an integer"))
		return
	}

	switch parts[1] {
	case "schema":
		h.handleSchema(w, r, id)
	case "sample":
		h.handleSample(w, r, id)
	case "rank":
		h.handleRank(w, r, id)
	case "profile":
		h.handleProfile(w, r, id)
	case "query":
		h.handleQuery(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *DatasetsHandler) handleSchema(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	info, err := h.deps.Schema(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *DatasetsHandler) handleSample(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	table := r.URL.Query().Get("table")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	res, err := h.deps.Sample(r.Context(), id, table, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// rankRequest mirrors the request schema for POST /datasets/{id}/rank.
type rankRequest struct {
	Category  string `json:"category"`
	AgeBucket string `json:"age_bucket"`
	Gender    string `json:"gender"`
	Class     string `json:"class"`
	Metric    string `json:"metric"`
	Limit     int    `json:"limit"`
}

func (h *DatasetsHandler) handleRank(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid JSON body"))
		return
	}
	res, err := h.deps.Rank(r.Context(), id, builder.RankingSpec{
		Category:  req.Category,
		AgeBucket: req.AgeBucket,
		Gender:    req.Gender,
		Class:     req.Class,
		Metric:    rules.Metric(req.Metric),
		Limit:     req.Limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// profileRequest mirrors the request schema for POST /datasets/{id}/profile.
type profileRequest struct {
	App      string `json:"app"`
	Baseline bool   `json:"baseline"`
}

func (p profileRequest) validate() error {
	if strings.TrimSpace(p.App) == "" {
		return errors.New("missing app")
	}
	return nil
}

func (h *DatasetsHandler) handleProfile(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := h.deps.Profile(r.Context(), id, strings.TrimSpace(req.App), req.Baseline)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryRequest mirrors the request schema for POST /datasets/{id}/query.
// ApplyRules defaults to true; clients opt out explicitly.
type queryRequest struct {
	SQL        string `json:"sql"`
	ApplyRules *bool  `json:"apply_rules"`
	Markdown   bool   `json:"markdown"`
}

func (q queryRequest) validate() error {
	if strings.TrimSpace(q.SQL) == "" {
		return errors.New("missing sql")
	}
	return nil
}

func (h *DatasetsHandler) handleQuery(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	applyRules := true
	if req.ApplyRules != nil {
		applyRules = *req.ApplyRules
	}
	res, err := h.deps.RunSQL(r.Context(), id, req.SQL, applyRules, req.Markdown)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
