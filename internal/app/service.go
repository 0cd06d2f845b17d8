// Package service provides the core business service that implements
// the dependencies required by the HTTP API: dataset discovery,
// filter-driven rankings, demographic profiles and validated free-form
// SQL, all on top of the weighted survey model.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/consumerlens/consumerlens/internal/adapters/db"
	"github.com/consumerlens/consumerlens/internal/domain/builder"
	"github.com/consumerlens/consumerlens/internal/domain/insight"
	"github.com/consumerlens/consumerlens/internal/domain/render"
	"github.com/consumerlens/consumerlens/internal/domain/rules"
	"github.com/consumerlens/consumerlens/internal/domain/sqlcheck"
	"github.com/consumerlens/consumerlens/internal/registry"
	"github.com/consumerlens/consumerlens/pkg/logger"
	"github.com/consumerlens/consumerlens/pkg/metrics"
)

// Service implements the API dependencies for the analytics engine.
type Service struct {
	reg      *registry.Registry
	insights *insight.Engine
	logger   logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithInsightEngine overrides the default insight engine.
func WithInsightEngine(e *insight.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.insights = e
		}
	}
}

// New constructs a Service over a dataset registry.
func New(reg *registry.Registry, opts ...Option) *Service {
	s := &Service{reg: reg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.insights == nil {
		s.insights = insight.NewEngine(insight.WithLogger(s.logger))
	}
	return s
}

// ListDatasets returns the registered datasets in id order.
func (s *Service) ListDatasets(ctx context.Context) []registry.Info {
	return s.reg.List()
}

// Schema returns table and column metadata for one dataset.
func (s *Service) Schema(ctx context.Context, datasetID int) (*registry.SchemaInfo, error) {
	return s.reg.Schema(ctx, datasetID)
}

// SampleResult carries a small unweighted slice of raw rows.
type SampleResult struct {
	DatasetID int      `json:"dataset_id"`
	Table     string   `json:"table"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
}

// Sample returns up to the sample cap of raw rows from one table. An
// empty table name falls back to the dataset's primary table.
func (s *Service) Sample(ctx context.Context, datasetID int, table string, limit int) (*SampleResult, error) {
	ds, err := s.reg.Get(datasetID)
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = ds.Table
	}
	rs, err := s.reg.Sample(ctx, datasetID, table, limit)
	if err != nil {
		return nil, err
	}
	return &SampleResult{
		DatasetID: datasetID,
		Table:     table,
		Columns:   rs.Columns,
		Rows:      rs.Rows,
		RowCount:  len(rs.Rows),
	}, nil
}

// RankEntry is one ranked app.
type RankEntry struct {
	App      string  `json:"app"`
	Category string  `json:"category"`
	Value    float64 `json:"value"`
	Share    float64 `json:"share,omitempty"`
}

// RankResult is the response of a ranking request.
type RankResult struct {
	DatasetID int               `json:"dataset_id"`
	Metric    rules.Metric      `json:"metric"`
	Total     float64           `json:"total,omitempty"`
	Entries   []RankEntry       `json:"entries"`
	Warnings  []string          `json:"warnings,omitempty"`
	Insights  []insight.Insight `json:"insights,omitempty"`
	ElapsedMS int64             `json:"elapsed_ms"`
}

// Rank executes a filter-driven app ranking on one dataset.
func (s *Service) Rank(ctx context.Context, datasetID int, spec builder.RankingSpec) (*RankResult, error) {
	ds, err := s.reg.Get(datasetID)
	if err != nil {
		return nil, err
	}
	spec.Table = ds.Table
	if err := spec.Normalize(); err != nil {
		return nil, err
	}

	start := time.Now()
	sql, args := builder.Ranking(spec)
	rs, err := ds.Executor().Query(ctx, sql, args...)
	if err != nil {
		metrics.RecordErrorByComponent("service", "rank")
		return nil, err
	}
	metrics.RecordQueryExecuted("rank")
	metrics.RecordQueryDuration("rank", float64(time.Since(start).Milliseconds()))
	metrics.RecordRowsReturned(len(rs.Rows))

	// Zero matches is a valid outcome, not an error.
	if rs.Empty() {
		metrics.RecordEmptyResult()
		return &RankResult{
			DatasetID: datasetID,
			Metric:    spec.Metric,
			Entries:   []RankEntry{},
			Warnings:  []string{"no data for these filters; relax the category or demographic filters"},
			ElapsedMS: time.Since(start).Milliseconds(),
		}, nil
	}

	// Market shares only make sense for additive metrics.
	var total float64
	if spec.Metric == rules.MetricReach {
		totalSQL, totalArgs := builder.RankingTotal(spec)
		total, err = ds.Executor().QueryScalar(ctx, totalSQL, totalArgs...)
		if err != nil {
			metrics.RecordErrorByComponent("service", "rank_total")
			return nil, err
		}
	}

	entries := make([]RankEntry, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		e := RankEntry{
			App:      db.ToString(row[0]),
			Category: db.ToString(row[1]),
			Value:    db.ToFloat(row[2]),
		}
		if spec.Metric == rules.MetricReach {
			e.Share = builder.MarketShare(e.Value, total)
		}
		entries = append(entries, e)
	}

	return &RankResult{
		DatasetID: datasetID,
		Metric:    spec.Metric,
		Total:     total,
		Entries:   entries,
		Insights:  s.insights.Analyze(ctx, rs),
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

// Segment is one slice of a demographic breakdown. Index is the
// segment's over/under representation against the population baseline,
// 100 meaning parity; zero when no baseline was requested.
type Segment struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
	Index   float64 `json:"index,omitempty"`
}

// Breakdown is one demographic axis of a profile.
type Breakdown struct {
	Dimension builder.Dimension `json:"dimension"`
	Segments  []Segment         `json:"segments"`
	Dominant  string            `json:"dominant,omitempty"`
}

// ProfileResult is the response of a profile request.
type ProfileResult struct {
	DatasetID  int               `json:"dataset_id"`
	App        string            `json:"app"`
	Reach      float64           `json:"reach"`
	Breakdowns []Breakdown       `json:"breakdowns"`
	Insights   []insight.Insight `json:"insights,omitempty"`
	ElapsedMS  int64             `json:"elapsed_ms"`
}

// Profile builds the demographic profile of one app: weighted
// breakdowns across every dimension, with population-baseline indices
// when requested. The app name is resolved exactly first, then by
// substring; an unresolvable name fails with suggestions.
func (s *Service) Profile(ctx context.Context, datasetID int, app string, withBaseline bool) (*ProfileResult, error) {
	ds, err := s.reg.Get(datasetID)
	if err != nil {
		return nil, err
	}
	exec := ds.Executor()
	start := time.Now()

	resolved, err := s.resolveApp(ctx, ds, app)
	if err != nil {
		return nil, err
	}

	res := &ProfileResult{DatasetID: datasetID, App: resolved}
	for _, dim := range builder.Dimensions() {
		labels, values, err := s.breakdown(ctx, exec, ds.Table, dim, resolved, true)
		if err != nil {
			metrics.RecordErrorByComponent("service", "profile")
			return nil, err
		}
		if dim == builder.DimGender {
			// Genders partition users, so their sum is the app's reach.
			for _, v := range values {
				res.Reach += v
			}
		}

		bd := Breakdown{Dimension: dim, Segments: make([]Segment, 0, len(labels))}
		percents := builder.Percents(values)

		var baseline map[string]float64
		if withBaseline {
			baseline, err = s.baselineShares(ctx, exec, ds.Table, dim)
			if err != nil {
				metrics.RecordErrorByComponent("service", "profile_baseline")
				return nil, err
			}
		}
		shares := builder.Shares(values)
		for i, l := range labels {
			seg := Segment{Label: l, Value: values[i], Percent: percents[i]}
			if baseline != nil {
				seg.Index = builder.Index(shares[i], baseline[l])
			}
			bd.Segments = append(bd.Segments, seg)
		}
		if label, share := builder.Dominant(labels, values); share > 0 {
			bd.Dominant = label
		}
		res.Breakdowns = append(res.Breakdowns, bd)
		res.Insights = append(res.Insights, s.insights.AnalyzeDistribution(ctx, dim, labels, values)...)
	}

	metrics.RecordQueryExecuted("profile")
	metrics.RecordQueryDuration("profile", float64(time.Since(start).Milliseconds()))
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res, nil
}

// resolveApp maps a user-supplied name to a stored app name. A single
// partial match is adopted silently; several become suggestions.
func (s *Service) resolveApp(ctx context.Context, ds *registry.Dataset, app string) (string, error) {
	exec := ds.Executor()
	rs, err := exec.Query(ctx, builder.ResolveAppExact(ds.Table), app)
	if err != nil {
		return "", err
	}
	if len(rs.Rows) > 0 {
		return db.ToString(rs.Rows[0][0]), nil
	}

	rs, err = exec.Query(ctx, builder.ResolveAppPartial(ds.Table), app)
	if err != nil {
		return "", err
	}
	switch len(rs.Rows) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrAppNotFound, app)
	case 1:
		match := db.ToString(rs.Rows[0][0])
		s.logger.Debug(ctx, "app name resolved by substring",
			logger.String("requested", app),
			logger.String("resolved", match))
		return match, nil
	default:
		suggestions := make([]string, 0, len(rs.Rows))
		for _, row := range rs.Rows {
			suggestions = append(suggestions, db.ToString(row[0]))
		}
		return "", fmt.Errorf("%w: %q is ambiguous, did you mean: %s",
			ErrAppNotFound, app, strings.Join(suggestions, ", "))
	}
}

func (s *Service) breakdown(ctx context.Context, exec *db.Executor, table string, dim builder.Dimension, app string, withApp bool) ([]string, []float64, error) {
	sql := builder.Breakdown(table, dim, withApp)
	var (
		rs  *db.RowSet
		err error
	)
	if withApp {
		rs, err = exec.Query(ctx, sql, app)
	} else {
		rs, err = exec.Query(ctx, sql)
	}
	if err != nil {
		return nil, nil, err
	}

	labels := make([]string, 0, len(rs.Rows))
	values := make([]float64, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		labels = append(labels, db.ToString(row[0]))
		values = append(values, db.ToFloat(row[1]))
	}
	if dim == builder.DimClass {
		labels, values = rules.MergeRows(labels, values)
	}
	return labels, values, nil
}

func (s *Service) baselineShares(ctx context.Context, exec *db.Executor, table string, dim builder.Dimension) (map[string]float64, error) {
	labels, values, err := s.breakdown(ctx, exec, table, dim, "", false)
	if err != nil {
		return nil, err
	}
	shares := builder.Shares(values)
	out := make(map[string]float64, len(labels))
	for i, l := range labels {
		out[l] = shares[i]
	}
	return out, nil
}

// QueryResult is the response of a validated free-form SQL request.
type QueryResult struct {
	DatasetID int               `json:"dataset_id"`
	SQL       string            `json:"sql"`
	Shape     string            `json:"shape"`
	Columns   []string          `json:"columns"`
	Rows      [][]any           `json:"rows"`
	RowCount  int               `json:"row_count"`
	Warnings  []string          `json:"warnings,omitempty"`
	Insights  []insight.Insight `json:"insights,omitempty"`
	Markdown  string            `json:"markdown,omitempty"`
	ElapsedMS int64             `json:"elapsed_ms"`
}

// RunSQL validates, normalizes and executes one read-only statement.
// applyRules enables the business-rule rewrites (weighted user counts,
// class merging). markdown adds a rendered table to the response.
func (s *Service) RunSQL(ctx context.Context, datasetID int, sql string, applyRules, markdown bool) (*QueryResult, error) {
	ds, err := s.reg.Get(datasetID)
	if err != nil {
		return nil, err
	}

	checked, err := sqlcheck.Check(sql, applyRules)
	if err != nil {
		metrics.RecordValidationRejection()
		return nil, err
	}
	for range checked.Warnings {
		metrics.RecordRewriteWarning()
	}

	start := time.Now()
	rs, err := ds.Executor().Query(ctx, checked.SQL)
	if err != nil {
		metrics.RecordErrorByComponent("service", "run_sql")
		return nil, err
	}
	metrics.RecordQueryExecuted("sql")
	metrics.RecordQueryDuration("sql", float64(time.Since(start).Milliseconds()))
	metrics.RecordRowsReturned(len(rs.Rows))

	warnings := append([]string(nil), checked.Warnings...)
	if w := weightSanity(rs); w != "" {
		warnings = append(warnings, w)
	}
	if rs.Empty() {
		metrics.RecordEmptyResult()
		warnings = append(warnings, "query returned no rows; the filters may be too narrow")
	}

	res := &QueryResult{
		DatasetID: datasetID,
		SQL:       checked.SQL,
		Shape:     checked.Shape.String(),
		Columns:   rs.Columns,
		Rows:      rs.Rows,
		RowCount:  len(rs.Rows),
		Warnings:  warnings,
		Insights:  s.insights.Analyze(ctx, rs),
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	if markdown {
		header := []string{fmt.Sprintf("**Query** (`%s`)", checked.Shape)}
		if len(res.Insights) == 0 {
			header = append(header, "_no notable insights_")
		}
		res.Markdown = render.Document(rs, header, warnings)
	}
	return res, nil
}

// weightSanity flags non-positive values in weight columns, which
// signal a broken weighting pipeline upstream.
func weightSanity(rs *db.RowSet) string {
	for i, col := range rs.Columns {
		if !rules.IsWeightColumn(col) {
			continue
		}
		for _, row := range rs.Rows {
			if row[i] == nil {
				continue
			}
			if db.ToFloat(row[i]) <= 0 {
				return fmt.Sprintf("column %q contains non-positive weights; weighted figures may be unreliable", col)
			}
		}
	}
	return ""
}
