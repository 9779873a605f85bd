package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/repguard/internal/campaign"
	"github.com/ignite/repguard/internal/pkg/httputil"
)

// ListCampaigns returns campaigns with optional status/domain filters.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	campaigns, total, err := h.campaigns.List(r.Context(), campaign.ListFilter{
		Status:   q.Get("status"),
		DomainID: q.Get("domain_id"),
		Limit:    httputil.QueryInt(r, "limit", 50),
		Offset:   httputil.QueryInt(r, "offset", 0),
	})
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"campaigns": campaigns,
		"total":     total,
	})
}

// GetCampaign returns one campaign.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// StartCampaign moves a draft or scheduled campaign into sending.
func (h *Handlers) StartCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// PauseCampaign suspends a sending campaign.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// ResumeCampaign returns a paused campaign to sending.
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// StopCampaign cancels a campaign from any non-terminal state.
func (h *Handlers) StopCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Stop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// RunCampaign drains pending recipients through the dispatch gate until
// the budget defers, the campaign leaves sending, or everyone has been
// attempted.
func (h *Handlers) RunCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, result)
}
