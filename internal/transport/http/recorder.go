package http

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type dayStats struct {
	requests int64
	errors   int64
	totalDur time.Duration
}

// ActivityRecorder aggregates per-day request statistics in memory.
// It feeds the report endpoints, so the guarded output is real traffic
// data rather than a stub.
type ActivityRecorder struct {
	mu   sync.Mutex
	days map[string]*dayStats
	now  func() time.Time
}

// NewActivityRecorder creates an empty recorder.
func NewActivityRecorder() *ActivityRecorder {
	return &ActivityRecorder{
		days: make(map[string]*dayStats),
		now:  time.Now,
	}
}

// Middleware records every completed request.
func (a *ActivityRecorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := a.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.record(start, time.Since(start), ww.Status())
	})
}

func (a *ActivityRecorder) record(start time.Time, dur time.Duration, status int) {
	day := start.UTC().Format("2006-01-02")

	a.mu.Lock()
	defer a.mu.Unlock()
	stats, ok := a.days[day]
	if !ok {
		stats = &dayStats{}
		a.days[day] = stats
	}
	stats.requests++
	if status >= 500 {
		stats.errors++
	}
	stats.totalDur += dur
}

// Rows returns the recorded days as report rows, oldest first. It
// satisfies ReportSource.
func (a *ActivityRecorder) Rows() []ReportRow {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := make([]ReportRow, 0, len(a.days))
	for day, stats := range a.days {
		row := ReportRow{
			Date:     day,
			Requests: stats.requests,
			Errors:   stats.errors,
		}
		if stats.requests > 0 {
			row.AvgMs = float64(stats.totalDur.Milliseconds()) / float64(stats.requests)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows
}
