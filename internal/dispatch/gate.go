package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/repguard/internal/domain"
)

// SuppressionChecker answers membership queries. Satisfied by the
// suppression service.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// Denial reasons.
const (
	ReasonSuppressed  = "suppressed"
	ReasonRateLimited = "rate_limited"
)

// Decision is the gate's answer for one intended send.
type Decision struct {
	Granted    bool          `json:"granted"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Gate is the single choke point in front of the campaign sender. It never
// transmits anything itself.
type Gate struct {
	suppressions SuppressionChecker
	limiter      Limiter
	period       time.Duration
}

// NewGate creates a dispatch gate. period is the budget window the
// effective rate applies to, typically 24h.
func NewGate(suppressions SuppressionChecker, limiter Limiter, period time.Duration) *Gate {
	return &Gate{suppressions: suppressions, limiter: limiter, period: period}
}

// Allow decides one send of recipient from the given domain. Suppression
// is checked before any budget is consumed, so a suppressed recipient
// never burns a token. Errors fail closed.
func (g *Gate) Allow(ctx context.Context, d *domain.Domain, recipient string) (Decision, error) {
	suppressed, err := g.suppressions.IsSuppressed(ctx, recipient)
	if err != nil {
		return Decision{}, fmt.Errorf("suppression check for %s: %w", d.Name, err)
	}
	if suppressed {
		return Decision{Reason: ReasonSuppressed}, nil
	}

	if d.EffectiveRate <= 0 {
		return Decision{Reason: ReasonRateLimited, RetryAfter: g.period}, nil
	}

	allowed, retryAfter, err := g.limiter.Consume(ctx, d.Name, d.EffectiveRate, g.period)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		return Decision{Reason: ReasonRateLimited, RetryAfter: retryAfter}, nil
	}

	return Decision{Granted: true}, nil
}
