package campaign

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/ignite/repguard/internal/dispatch"
	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/logger"
)

// Gate decides each send. Satisfied by the dispatch gate.
type Gate interface {
	Allow(ctx context.Context, d *domain.Domain, recipient string) (dispatch.Decision, error)
}

// DomainSource resolves the sending domain. Satisfied by the training
// repository.
type DomainSource interface {
	GetDomain(ctx context.Context, domainID string) (*domain.Domain, error)
}

// Sender performs the actual transmission. The SMTP relay behind it is an
// external collaborator.
type Sender interface {
	Send(ctx context.Context, c *domain.Campaign, recipient string) error
}

// RunResult summarizes one runner pass over a campaign.
type RunResult struct {
	CampaignID string                `json:"campaign_id"`
	Status     domain.CampaignStatus `json:"status"`
	Sent       int                   `json:"sent"`
	Failed     int                   `json:"failed"`
	Suppressed int                   `json:"suppressed"`
	Deferred   bool                  `json:"deferred"`
	RetryAfter time.Duration         `json:"retry_after,omitempty"`
}

const recipientBatch = 500

// Runner walks a sending campaign's recipients through the dispatch gate.
type Runner struct {
	campaigns *Service
	domains   DomainSource
	gate      Gate
	sender    Sender
	period    time.Duration
	log       *logger.Logger
}

// NewRunner creates a campaign runner. period is the rate window the
// domain's effective rate applies to.
func NewRunner(campaigns *Service, domains DomainSource, gate Gate, sender Sender, period time.Duration) *Runner {
	return &Runner{
		campaigns: campaigns,
		domains:   domains,
		gate:      gate,
		sender:    sender,
		period:    period,
		log:       logger.For("runner"),
	}
}

// Run dispatches pending recipients of a sending campaign until the list is
// drained, the budget runs out, or the campaign leaves the sending state.
// Pause and stop take effect at the next per-recipient boundary; a send
// already granted a token completes.
func (r *Runner) Run(ctx context.Context, campaignID string) (*RunResult, error) {
	c, err := r.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignSending {
		return nil, fmt.Errorf("campaign %s is %s, not sending", c.ID, c.Status)
	}

	d, err := r.domains.GetDomain(ctx, c.DomainID)
	if err != nil {
		return nil, fmt.Errorf("resolve domain for campaign %s: %w", c.ID, err)
	}

	// Smooth sends across the window instead of bursting the whole
	// budget at once. Burst equals the budget so the pacer alone never
	// denies a send the gate would grant.
	pace := rate.Limit(float64(d.EffectiveRate) / r.period.Seconds())
	if d.EffectiveRate <= 0 {
		pace = rate.Inf
	}
	pacer := rate.NewLimiter(pace, maxInt(d.EffectiveRate, 1))

	result := &RunResult{CampaignID: c.ID, Status: c.Status}

	for {
		recipients, err := r.campaigns.repo.PendingRecipients(ctx, c.ID, recipientBatch)
		if err != nil {
			return result, err
		}
		if len(recipients) == 0 {
			break
		}

		for _, rcpt := range recipients {
			// Per-recipient boundary: reload status so operator pause
			// and stop are honored promptly.
			cur, err := r.campaigns.Get(ctx, c.ID)
			if err != nil {
				return result, err
			}
			result.Status = cur.Status
			if cur.Status != domain.CampaignSending {
				r.log.Info("run stopped by status change", "campaign", c.ID, "status", string(cur.Status))
				return result, nil
			}
			if err := ctx.Err(); err != nil {
				return result, err
			}

			dec, err := r.gate.Allow(ctx, d, rcpt)
			if err != nil {
				return result, err
			}

			switch {
			case dec.Granted:
				if err := pacer.Wait(ctx); err != nil {
					return result, err
				}
				sent := true
				if err := r.sender.Send(ctx, cur, rcpt); err != nil {
					sent = false
					r.log.Warn("send failed", "campaign", c.ID, "recipient", rcpt, "error", err)
				}
				updated, err := r.campaigns.RecordResult(ctx, c.ID, rcpt, sent)
				if err != nil {
					return result, err
				}
				if sent {
					result.Sent++
				} else {
					result.Failed++
				}
				result.Status = updated.Status
				if updated.IsTerminal() {
					return result, nil
				}

			case dec.Reason == dispatch.ReasonSuppressed:
				updated, err := r.campaigns.RecordResult(ctx, c.ID, rcpt, false)
				if err != nil {
					return result, err
				}
				result.Suppressed++
				result.Failed++
				result.Status = updated.Status
				if updated.IsTerminal() {
					return result, nil
				}

			default: // rate limited: defer the rest of the run
				result.Deferred = true
				result.RetryAfter = dec.RetryAfter
				r.log.Info("run deferred on rate budget", "campaign", c.ID, "retry_after", dec.RetryAfter)
				return result, nil
			}
		}
	}

	return result, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
