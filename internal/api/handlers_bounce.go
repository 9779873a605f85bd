package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/repguard/internal/bounce"
	"github.com/ignite/repguard/internal/pkg/httputil"
)

// ListBounceCredentials returns credentials, optionally one user's via
// ?user_id=.
func (h *Handlers) ListBounceCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, creds)
}

// GetBounceCredential returns one credential.
func (h *Handlers) GetBounceCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := h.credentials.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, cred)
}

// CreateBounceCredential registers a new bounce mailbox.
func (h *Handlers) CreateBounceCredential(w http.ResponseWriter, r *http.Request) {
	var in bounce.CredentialInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	cred, err := h.credentials.Create(r.Context(), in)
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.Created(w, cred)
}

// UpdateBounceCredential modifies a bounce mailbox credential.
func (h *Handlers) UpdateBounceCredential(w http.ResponseWriter, r *http.Request) {
	var in bounce.CredentialInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	cred, err := h.credentials.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, cred)
}

// DeleteBounceCredential removes a credential.
func (h *Handlers) DeleteBounceCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		serviceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// TestBounceCredential performs the mailbox handshake and reports the
// outcome without touching processed state.
func (h *Handlers) TestBounceCredential(w http.ResponseWriter, r *http.Request) {
	res, err := h.credentials.TestConnection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ProcessBounces polls every due bounce mailbox now.
func (h *Handlers) ProcessBounces(w http.ResponseWriter, r *http.Request) {
	report, err := h.collector.RunOnce(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, report)
}

// GetBounceStatistics returns bounce processing counters, optionally
// scoped to one domain via ?domain_id=.
func (h *Handlers) GetBounceStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.collector.GetStatistics(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, stats)
}
