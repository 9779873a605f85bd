package api

import (
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/httputil"
	"github.com/ignite/repguard/internal/suppression"
)

// ListSuppressions returns suppression entries with optional
// reason/source/search filters and pagination.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, total, err := h.suppressions.List(r.Context(), suppression.ListFilter{
		Reason: q.Get("reason"),
		Source: q.Get("source"),
		Search: q.Get("search"),
		Limit:  httputil.QueryInt(r, "limit", 100),
		Offset: httputil.QueryInt(r, "offset", 0),
	})
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"entries": entries,
		"total":   total,
	})
}

// RemoveSuppression deletes one address from the list. Manual removal
// always wins over whatever put the address there.
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	if err := h.suppressions.Remove(r.Context(), chi.URLParam(r, "email")); err != nil {
		serviceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ImportSuppressions ingests a CSV or plain-text file of addresses
// uploaded as multipart form field "file".
func (h *Handlers) ImportSuppressions(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	fileType := r.URL.Query().Get("type")
	if fileType == "" {
		fileType = strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	}

	result, err := h.suppressions.Import(r.Context(), file, fileType, domain.SourceImport)
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, result)
}

// ExportSuppressions streams the list as one address per line.
func (h *Handlers) ExportSuppressions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="suppressions.txt"`)
	if _, err := h.suppressions.Export(r.Context(), w); err != nil {
		// The status line is already on the wire, so the body just ends early.
		log.Printf("[API] suppression export aborted: %v", err)
	}
}

// CleanupSuppressions removes entries older than the requested number
// of days.
func (h *Handlers) CleanupSuppressions(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Days int `json:"days"`
	}
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.Days <= 0 {
		httputil.BadRequest(w, "days must be positive")
		return
	}
	removed, err := h.suppressions.Cleanup(r.Context(), in.Days)
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"removed": removed})
}

// GetSuppressionStats returns totals broken down by reason and source.
func (h *Handlers) GetSuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.suppressions.GetStats(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, stats)
}
