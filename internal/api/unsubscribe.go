package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/httputil"
)

// UnsubscribeToken signs a campaign/recipient pair into an opaque token
// for one-click unsubscribe links.
func UnsubscribeToken(secret []byte, campaignID, email string) string {
	payload := campaignID + "|" + domain.NormalizeEmail(email)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	signed := payload + "|" + hex.EncodeToString(mac.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(signed))
}

func parseUnsubscribeToken(secret []byte, token string) (campaignID, email string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("malformed token")
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("malformed token")
	}
	campaignID, email, sig := parts[0], parts[1], parts[2]

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(campaignID + "|" + email))
	want, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(want, mac.Sum(nil)) {
		return "", "", fmt.Errorf("invalid token signature")
	}
	return campaignID, email, nil
}

// Unsubscribe resolves a signed token and suppresses the recipient with
// reason unsubscribe. Safe to hit repeatedly; re-suppressing never
// downgrades a stronger existing reason.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	campaignID, email, err := parseUnsubscribeToken(h.unsubSecret, chi.URLParam(r, "token"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := h.suppressions.Suppress(r.Context(), email, domain.ReasonUnsubscribe, domain.SourceUnsubscribe, campaignID); err != nil {
		serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<html><body><p>You have been unsubscribed and will receive no further email.</p></body></html>`)
}
