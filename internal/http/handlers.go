package http

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"finance/internal/core"
	"finance/internal/log"
	"finance/internal/report"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Header("Cache-Control", "no-store").
		Field("status", "ok").
		Field("timestamp", s.now().Format(time.RFC3339)).
		Field("uptime", time.Since(s.startedAt).Round(time.Second).String()).
		Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.deps.Health == nil {
		checks["database"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.deps.Health.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed",
			log.FieldErrorType, log.ErrorTypeDatabase, log.FieldError, err.Error())
		checks["database"] = "failed"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	resp := NewJSONResponse()
	if httpStatus != http.StatusOK {
		resp = ErrorResponse(httpStatus, msgNotAvailable).Header("Retry-After", "5")
	}
	resp.Header("Cache-Control", "no-store").
		Field("status", status).
		Field("timestamp", s.now().Format(time.RFC3339)).
		Field("checks", checks).
		Write(w)
}

type categoryTotal struct {
	Category string     `json:"category"`
	Total    core.Money `json:"total"`
}

type kindTotal struct {
	Type  core.Kind  `json:"type"`
	Total core.Money `json:"total"`
}

type trendSeries struct {
	Labels  []string     `json:"labels"`
	Income  []core.Money `json:"income"`
	Expense []core.Money `json:"expense"`
}

// handleChartData returns the aggregates of the current month, or of the
// month named by year and month.
func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriod(r.URL.Query(), s.currentPeriod())
	if err != nil {
		s.writeError(w, r, log.OpChart, err)
		return
	}

	data, err := s.chartData(r.Context(), period)
	if err != nil {
		s.writeError(w, r, log.OpChart, err)
		return
	}

	trend := trendSeries{
		Labels:  make([]string, 0, len(data.Trend)),
		Income:  make([]core.Money, 0, len(data.Trend)),
		Expense: make([]core.Money, 0, len(data.Trend)),
	}
	for _, p := range data.Trend {
		trend.Labels = append(trend.Labels, p.Period.String())
		trend.Income = append(trend.Income, p.Income)
		trend.Expense = append(trend.Expense, p.Expense)
	}

	NewJSONResponse().
		Field("period", data.Period.String()).
		Field("summary_data", []kindTotal{
			{Type: core.KindIncome, Total: data.TotalIncome},
			{Type: core.KindExpense, Total: data.TotalExpense},
		}).
		Field("income_data", categoryTotals(data.IncomeByCategory)).
		Field("expense_data", categoryTotals(data.ExpenseByCategory)).
		Field("trend_data", trend).
		Write(w)
}

// chartData serves from the chart cache, collapsing concurrent misses.
func (s *Server) chartData(ctx context.Context, period core.Period) (core.ChartData, error) {
	data, hit, err := s.chartCache.Get(ctx, period.String(), func(ctx context.Context) (core.ChartData, error) {
		cctx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()
		return s.deps.Reports.ChartData(cctx, period)
	})
	if err == nil {
		s.deps.Metrics.ChartCacheLookup(hit)
		log.FromContext(ctx).DebugContext(ctx, "Chart data served",
			log.FieldPeriod, period.String(), "cache_hit", hit)
	}
	return data, err
}

func categoryTotals(in []core.CategoryAmount) []categoryTotal {
	out := make([]categoryTotal, 0, len(in))
	for _, c := range in {
		out = append(out, categoryTotal{Category: c.Name, Total: c.Amount})
	}
	return out
}

// handleExportCSV streams the month as a CSV attachment. The file is built
// in memory first so a failed query still gets a JSON error.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	period, err := RequirePeriod(r.URL.Query())
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	var buf bytes.Buffer
	rows, err := s.deps.Exporter.WriteCSV(ctx, &buf, period)
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "CSV export generated",
		log.FieldOperation, log.OpExport,
		log.FieldPeriod, period.String(),
		log.FieldRows, rows)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(period)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
