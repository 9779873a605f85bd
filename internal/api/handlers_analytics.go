package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/repguard/internal/pkg/httputil"
)

// GetDomainAnalytics returns rates across several lookback windows for
// one sending domain. Windows default to 24h, 72h and 7 days and can be
// overridden with ?windows=24,72,168.
func (h *Handlers) GetDomainAnalytics(w http.ResponseWriter, r *http.Request) {
	windows := []int{24, 72, 168}
	if raw := r.URL.Query().Get("windows"); raw != "" {
		windows = windows[:0]
		for _, part := range strings.Split(raw, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n <= 0 {
				httputil.BadRequest(w, "windows must be a comma-separated list of positive hours")
				return
			}
			windows = append(windows, n)
		}
	}

	analytics, err := h.evaluator.ComprehensiveAnalytics(r.Context(), chi.URLParam(r, "domain"), windows)
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, analytics)
}

// AnalyzeSender grades one sending domain, or all of them when
// ?target=all (the default).
func (h *Handlers) AnalyzeSender(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		target = "all"
	}
	hours := httputil.QueryInt(r, "hours", 24)

	reports, err := h.evaluator.AnalyzeSender(r.Context(), target, hours)
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, reports)
}

// IngestMetrics parses new MTA accounting and FBL files from the log
// directory and returns the per-file report plus the refreshed window
// aggregate.
func (h *Handlers) IngestMetrics(w http.ResponseWriter, r *http.Request) {
	hours := httputil.QueryInt(r, "hours", 24)
	report, err := h.ingestor.IngestWindow(r.Context(), r.URL.Query().Get("domain"), hours)
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, report)
}

// ParseDiagnosticFile summarizes one MTA diagnostic log named by ?file=.
func (h *Handlers) ParseDiagnosticFile(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	if file == "" {
		httputil.BadRequest(w, "file query parameter is required")
		return
	}
	summary, err := h.ingestor.ParseDiagnosticFile(file)
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, summary)
}
