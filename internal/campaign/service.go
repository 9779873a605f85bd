package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/logger"
)

// Publisher receives domain events. Satisfied by the events bus.
type Publisher interface {
	Publish(e domain.Event)
}

// Options tune campaign failure handling.
type Options struct {
	// AbortFailurePct fails a sending campaign once its failure share
	// crosses this percentage. Zero disables the abort check.
	AbortFailurePct float64
	// AbortMinAttempts is how many attempts must accumulate before the
	// abort check applies, so one early failure cannot kill a campaign.
	AbortMinAttempts int
}

// Service drives campaign lifecycle transitions and counters. Safe for
// concurrent use.
type Service struct {
	repo Repository
	bus  Publisher
	opts Options
	log  *logger.Logger
}

// NewService creates a campaign service.
func NewService(repo Repository, bus Publisher, opts Options) *Service {
	if opts.AbortMinAttempts <= 0 {
		opts.AbortMinAttempts = 10
	}
	return &Service{repo: repo, bus: bus, opts: opts, log: logger.For("campaign")}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// Start moves a draft or scheduled campaign into sending.
func (s *Service) Start(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.transition(ctx, id, domain.CampaignSending, func(c *domain.Campaign, now time.Time) {
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
	})
}

// Pause suspends a sending campaign.
func (s *Service) Pause(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.transition(ctx, id, domain.CampaignPaused, nil)
}

// Resume moves a paused campaign back to sending.
func (s *Service) Resume(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignPaused {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, domain.CampaignSending)
	}
	return s.transition(ctx, id, domain.CampaignSending, nil)
}

// Stop cancels any non-terminal campaign. In-flight dispatch loops observe
// the new status at their next per-recipient boundary.
func (s *Service) Stop(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.transition(ctx, id, domain.CampaignCancelled, func(c *domain.Campaign, now time.Time) {
		c.CompletedAt = &now
	})
}

func (s *Service) transition(ctx context.Context, id string, next domain.CampaignStatus, mutate func(*domain.Campaign, time.Time)) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}

	now := time.Now().UTC()
	c.Status = next
	c.UpdatedAt = now
	if mutate != nil {
		mutate(c, now)
	}
	if err := s.repo.UpdateStatus(ctx, c); err != nil {
		return nil, err
	}

	s.log.Info("campaign transition", "campaign", c.ID, "status", string(next))
	return c, nil
}

// RecordResult counts one attempted send and applies the auto-transitions:
// completed once every recipient has been attempted, failed once the
// failure share crosses the abort threshold.
func (s *Service) RecordResult(ctx context.Context, id, email string, sent bool) (*domain.Campaign, error) {
	if err := s.repo.MarkAttempted(ctx, id, email, sent); err != nil {
		return nil, err
	}

	sentDelta, failedDelta := 0, 1
	if sent {
		sentDelta, failedDelta = 1, 0
	}
	c, err := s.repo.IncrementCounters(ctx, id, sentDelta, failedDelta)
	if err != nil {
		return nil, err
	}

	attempted := c.Attempted()

	if s.opts.AbortFailurePct > 0 && attempted >= s.opts.AbortMinAttempts {
		failurePct := float64(c.TotalFailed) / float64(attempted) * 100
		if failurePct > s.opts.AbortFailurePct && c.CanTransition(domain.CampaignFailed) {
			c, err = s.transition(ctx, id, domain.CampaignFailed, func(c *domain.Campaign, now time.Time) {
				c.CompletedAt = &now
			})
			if err != nil {
				return nil, err
			}
			if s.bus != nil {
				s.bus.Publish(domain.Event{
					Type:       domain.EventCampaignFailed,
					CampaignID: c.ID,
					Fields:     map[string]any{"failure_pct": failurePct, "attempted": attempted},
				})
			}
			return c, nil
		}
	}

	if c.RecipientCount > 0 && attempted >= c.RecipientCount && c.CanTransition(domain.CampaignCompleted) {
		c, err = s.transition(ctx, id, domain.CampaignCompleted, func(c *domain.Campaign, now time.Time) {
			c.CompletedAt = &now
		})
		if err != nil {
			return nil, err
		}
		if s.bus != nil {
			s.bus.Publish(domain.Event{
				Type:       domain.EventCampaignCompleted,
				CampaignID: c.ID,
				Fields:     map[string]any{"sent": c.TotalSent, "failed": c.TotalFailed},
			})
		}
	}

	return c, nil
}
