package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/xuri/excelize/v2"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/infrastructure"
	"nodelock/internal/license"
)

// sampleRowLimit caps report output when the license check fails. The
// degraded output looks like a short report, not an error.
const sampleRowLimit = 5

// ReportRow is one line of the activity report.
type ReportRow struct {
	Date     string  `json:"date"`
	Requests int64   `json:"requests"`
	Errors   int64   `json:"errors"`
	AvgMs    float64 `json:"avg_ms"`
}

// ReportSource supplies the rows for the report endpoints.
type ReportSource func() []ReportRow

// ReportHandler serves the licensed reporting endpoints. Each endpoint
// wraps its work in its own guard call so no single bypass unlocks
// everything.
type ReportHandler struct {
	guard  *license.Guard
	source ReportSource
	logger *slog.Logger
}

// NewReportHandler creates the report endpoint handler.
func NewReportHandler(guard *license.Guard, source ReportSource, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		guard:  guard,
		source: source,
		logger: logger.With(slog.String("component", "report_handler")),
	}
}

// Routes mounts the report endpoints on a chi router.
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/summary", h.Summary)
	r.Get("/export", h.Export)
	return r
}

// SummaryResponse is the body of GET /api/reports/summary.
type SummaryResponse struct {
	Rows          []ReportRow `json:"rows"`
	TotalRequests int64       `json:"total_requests"`
	TotalErrors   int64       `json:"total_errors"`
}

// Summary returns the activity report. Without a valid license the
// report silently shrinks to the first few rows and the totals cover
// only what is shown.
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows := license.Guarded(ctx, h.guard,
		func() []ReportRow { return h.source() },
		func() []ReportRow {
			all := h.source()
			if len(all) > sampleRowLimit {
				all = all[:sampleRowLimit]
			}
			return all
		},
	)

	resp := SummaryResponse{Rows: rows}
	for _, row := range rows {
		resp.TotalRequests += row.Requests
		resp.TotalErrors += row.Errors
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// Export streams the report as an XLSX workbook. Without a valid
// license the workbook contains only the sample rows.
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	rows := license.Guarded(ctx, h.guard,
		func() []ReportRow { return h.source() },
		func() []ReportRow {
			all := h.source()
			if len(all) > sampleRowLimit {
				all = all[:sampleRowLimit]
			}
			return all
		},
	)

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Activity"
	f.SetSheetName("Sheet1", sheet)
	header := []string{"Date", "Requests", "Errors", "Avg (ms)"}
	for i, col := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, col)
	}
	for i, row := range rows {
		values := []interface{}{row.Date, row.Requests, row.Errors, row.AvgMs}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("activity-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := f.Write(w); err != nil {
		h.logger.ErrorContext(ctx, "failed to stream report workbook",
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.NewInternalError(traceID))
	}
}
