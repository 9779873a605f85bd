package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/repguard/internal/pkg/httputil"
)

// RunTraining triggers a system-wide training pass.
func (h *Handlers) RunTraining(w http.ResponseWriter, r *http.Request) {
	report, err := h.training.RunSystem(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, report)
}

// RunTrainingForUser triggers a training pass over one user's domains.
func (h *Handlers) RunTrainingForUser(w http.ResponseWriter, r *http.Request) {
	report, err := h.training.RunForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, report)
}

// RunTrainingForDomain triggers a training pass for a single domain.
func (h *Handlers) RunTrainingForDomain(w http.ResponseWriter, r *http.Request) {
	report, err := h.training.RunForDomain(r.Context(), chi.URLParam(r, "domainID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, report)
}

// ApplyTrainingConfig pushes the current recommendation onto the domain's
// live sending rate.
func (h *Handlers) ApplyTrainingConfig(w http.ResponseWriter, r *http.Request) {
	applied, err := h.training.ApplyConfig(r.Context(), chi.URLParam(r, "domainID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, applied)
}

// GetTrainingConfig returns the engine defaults plus per-domain configs.
func (h *Handlers) GetTrainingConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.training.GetConfig(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, cfg)
}

// GetTrainingStatus returns the per-domain stage, rate and pending action view.
func (h *Handlers) GetTrainingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.training.Status(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, status)
}

// GetTrainingStatistics returns aggregate counters, optionally scoped to
// one domain via ?domain_id=.
func (h *Handlers) GetTrainingStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.training.GetStatistics(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, stats)
}
