package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/ignite/repguard/internal/bounce"
	"github.com/ignite/repguard/internal/campaign"
	"github.com/ignite/repguard/internal/ingest"
	"github.com/ignite/repguard/internal/pkg/httputil"
	"github.com/ignite/repguard/internal/reputation"
	"github.com/ignite/repguard/internal/suppression"
	"github.com/ignite/repguard/internal/training"
)

// Handlers bundles the services the HTTP layer fronts.
type Handlers struct {
	training     *training.Engine
	evaluator    *reputation.Evaluator
	ingestor     *ingest.Service
	credentials  *bounce.CredentialService
	collector    *bounce.Collector
	suppressions *suppression.Service
	campaigns    *campaign.Service
	runner       *campaign.Runner
	unsubSecret  []byte
}

// NewHandlers creates the handler set.
func NewHandlers(
	trainingEngine *training.Engine,
	evaluator *reputation.Evaluator,
	ingestor *ingest.Service,
	credentials *bounce.CredentialService,
	collector *bounce.Collector,
	suppressions *suppression.Service,
	campaigns *campaign.Service,
	runner *campaign.Runner,
	unsubSecret string,
) *Handlers {
	return &Handlers{
		training:     trainingEngine,
		evaluator:    evaluator,
		ingestor:     ingestor,
		credentials:  credentials,
		collector:    collector,
		suppressions: suppressions,
		campaigns:    campaigns,
		runner:       runner,
		unsubSecret:  []byte(unsubSecret),
	}
}

// serviceError maps service sentinels onto HTTP statuses.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, training.ErrDomainNotFound),
		errors.Is(err, training.ErrConfigNotFound),
		errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, bounce.ErrCredentialNotFound),
		errors.Is(err, suppression.ErrNotFound),
		errors.Is(err, fs.ErrNotExist):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, training.ErrAnalysisInProgress),
		errors.Is(err, bounce.ErrDefaultConflict),
		errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, suppression.ErrInvalidEmail),
		errors.Is(err, ingest.ErrOutsideLogDir):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}
