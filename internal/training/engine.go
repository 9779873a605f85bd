package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/distlock"
	"github.com/ignite/repguard/internal/pkg/logger"
)

// RatesSource provides reputation rates for a domain over a lookback
// window. Satisfied by the reputation evaluator.
type RatesSource interface {
	WindowRates(ctx context.Context, sendingDomain string, hours int) (domain.ReputationRates, error)
}

// LockFactory creates per-key distributed locks. Satisfied by distlock.Factory.
type LockFactory interface {
	For(key string) distlock.DistLock
}

// Publisher receives domain events. Satisfied by the events bus.
type Publisher interface {
	Publish(e domain.Event)
}

// Options are the engine-wide defaults. Per-domain training configs
// override the thresholds; stage caps and lookback apply to everyone.
type Options struct {
	StageCaps            []int // daily cap per stage, ascending
	LookbackHours        int
	AdvanceBouncePct     float64
	AdvanceComplaintPct  float64
	RollbackBouncePct    float64
	RollbackComplaintPct float64
	MinDwellHours        int
}

// Actions a training decision can take.
const (
	ActionAdvance  = "advance"
	ActionRollback = "rollback"
	ActionHold     = "hold"
)

// Decision is the outcome of one analysis cycle for one domain.
type Decision struct {
	DomainID   string                 `json:"domain_id"`
	Domain     string                 `json:"domain"`
	Action     string                 `json:"action"`
	FromStage  int                    `json:"from_stage"`
	ToStage    int                    `json:"to_stage"`
	FromRate   int                    `json:"from_rate"`
	ToRate     int                    `json:"to_rate"`
	Reason     string                 `json:"reason"`
	Rates      domain.ReputationRates `json:"rates"`
	Applied    bool                   `json:"applied"`
	AnalyzedAt time.Time              `json:"analyzed_at"`
}

// Engine drives the stage machine. Safe for concurrent use.
type Engine struct {
	repo  Repository
	rates RatesSource
	locks LockFactory
	bus   Publisher
	opts  Options
	log   *logger.Logger

	mu      sync.Mutex
	pending map[string]*Decision // manual-mode recommendations by domain id
}

// NewEngine creates a training engine.
func NewEngine(repo Repository, rates RatesSource, locks LockFactory, bus Publisher, opts Options) *Engine {
	return &Engine{
		repo:    repo,
		rates:   rates,
		locks:   locks,
		bus:     bus,
		opts:    opts,
		log:     logger.For("training"),
		pending: make(map[string]*Decision),
	}
}

func (e *Engine) stageCap(stage int) int {
	caps := e.opts.StageCaps
	if stage < 0 {
		stage = 0
	}
	if stage >= len(caps) {
		stage = len(caps) - 1
	}
	return caps[stage]
}

func (e *Engine) finalStage() int { return len(e.opts.StageCaps) - 1 }

func (e *Engine) defaultConfig(domainID string) *domain.TrainingConfig {
	return &domain.TrainingConfig{
		DomainID:             domainID,
		DailyLimit:           e.stageCap(0),
		AdvanceBouncePct:     e.opts.AdvanceBouncePct,
		AdvanceComplaintPct:  e.opts.AdvanceComplaintPct,
		RollbackBouncePct:    e.opts.RollbackBouncePct,
		RollbackComplaintPct: e.opts.RollbackComplaintPct,
		MinDwellHours:        e.opts.MinDwellHours,
	}
}

// AnalyzeDomain runs one analysis cycle for one domain. The per-domain
// lock serializes overlapping analyses; a held lock returns
// ErrAnalysisInProgress rather than waiting.
func (e *Engine) AnalyzeDomain(ctx context.Context, domainID string) (*Decision, error) {
	d, err := e.repo.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	return e.analyze(ctx, d)
}

func (e *Engine) analyze(ctx context.Context, d *domain.Domain) (*Decision, error) {
	lock := e.locks.For("training:domain:" + d.ID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire training lock for %s: %w", d.Name, err)
	}
	if !acquired {
		return nil, ErrAnalysisInProgress
	}
	defer lock.Release(ctx)

	cfg, err := e.repo.GetConfig(ctx, d.ID)
	if errors.Is(err, ErrConfigNotFound) {
		cfg = e.defaultConfig(d.ID)
		cfg.Stage = d.TrainingStage
	} else if err != nil {
		return nil, fmt.Errorf("load training config for %s: %w", d.Name, err)
	}

	rates, err := e.rates.WindowRates(ctx, d.Name, e.opts.LookbackHours)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", d.Name, err)
	}

	now := time.Now().UTC()
	dec := e.decide(d, cfg, rates, now)

	autoApply := d.TrainingMode == domain.TrainingAutomatic && !cfg.ManualApprovalRequired

	if dec.Action != ActionHold {
		if autoApply {
			if err := e.apply(ctx, d, cfg, dec, now); err != nil {
				return nil, err
			}
		} else {
			e.mu.Lock()
			e.pending[d.ID] = dec
			e.mu.Unlock()
		}
	}

	cfg.LastAnalysisAt = &now
	if err := e.repo.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save training config for %s: %w", d.Name, err)
	}

	return dec, nil
}

func (e *Engine) decide(d *domain.Domain, cfg *domain.TrainingConfig, r domain.ReputationRates, now time.Time) *Decision {
	dec := &Decision{
		DomainID:   d.ID,
		Domain:     d.Name,
		Action:     ActionHold,
		FromStage:  d.TrainingStage,
		ToStage:    d.TrainingStage,
		FromRate:   d.EffectiveRate,
		ToRate:     d.EffectiveRate,
		Rates:      r,
		AnalyzedAt: now,
	}

	bouncePct := r.BounceRate * 100
	complaintPct := r.ComplaintRate * 100

	// Rollback first: reputation protection beats throughput and ignores
	// dwell time.
	if bouncePct > cfg.RollbackBouncePct || complaintPct > cfg.RollbackComplaintPct {
		to := d.TrainingStage - 1
		if to < 0 {
			to = 0
		}
		rate := d.ClampRate(e.stageCap(to))
		if rate > d.EffectiveRate {
			rate = d.EffectiveRate
		}
		dec.Action = ActionRollback
		dec.ToStage = to
		dec.ToRate = rate
		dec.Reason = fmt.Sprintf("bounce %.2f%% / complaint %.2f%% over rollback thresholds %.2f%%/%.2f%%",
			bouncePct, complaintPct, cfg.RollbackBouncePct, cfg.RollbackComplaintPct)
		return dec
	}

	if r.Sent == 0 {
		dec.Reason = "no traffic in lookback window"
		return dec
	}

	if bouncePct >= cfg.AdvanceBouncePct || complaintPct >= cfg.AdvanceComplaintPct {
		dec.Reason = fmt.Sprintf("bounce %.2f%% / complaint %.2f%% not under advance thresholds %.2f%%/%.2f%%",
			bouncePct, complaintPct, cfg.AdvanceBouncePct, cfg.AdvanceComplaintPct)
		return dec
	}

	if d.TrainingStage >= e.finalStage() {
		dec.Reason = "at final stage"
		return dec
	}

	anchor := d.CreatedAt
	if d.LastTrainedAt != nil {
		anchor = *d.LastTrainedAt
	}
	if now.Sub(anchor) < cfg.MinDwell() {
		dec.Reason = fmt.Sprintf("dwell not satisfied, %s at current stage", now.Sub(anchor).Round(time.Minute))
		return dec
	}

	to := d.TrainingStage + 1
	dec.Action = ActionAdvance
	dec.ToStage = to
	dec.ToRate = d.ClampRate(e.stageCap(to))
	dec.Reason = fmt.Sprintf("bounce %.2f%% / complaint %.2f%% under advance thresholds, dwell satisfied",
		bouncePct, complaintPct)
	return dec
}

func (e *Engine) apply(ctx context.Context, d *domain.Domain, cfg *domain.TrainingConfig, dec *Decision, now time.Time) error {
	d.TrainingStage = dec.ToStage
	d.EffectiveRate = dec.ToRate
	d.LastTrainedAt = &now
	d.UpdatedAt = now
	if err := e.repo.UpdateDomainTraining(ctx, d); err != nil {
		return fmt.Errorf("apply training for %s: %w", d.Name, err)
	}

	cfg.Stage = dec.ToStage
	cfg.DailyLimit = dec.ToRate
	dec.Applied = true

	e.mu.Lock()
	delete(e.pending, d.ID)
	e.mu.Unlock()

	evType := domain.EventStageAdvanced
	if dec.Action == ActionRollback {
		evType = domain.EventStageRolledBack
	}
	if e.bus != nil {
		e.bus.Publish(domain.Event{
			Type:   evType,
			Domain: d.Name,
			Fields: map[string]any{
				"from_stage": dec.FromStage,
				"to_stage":   dec.ToStage,
				"from_rate":  dec.FromRate,
				"to_rate":    dec.ToRate,
				"reason":     dec.Reason,
			},
		})
	}

	e.log.Info("training applied", "domain", d.Name, "action", dec.Action,
		"stage", dec.ToStage, "rate", dec.ToRate)
	return nil
}

// Applied is the result of an operator apply.
type Applied struct {
	DomainID    string `json:"domain_id"`
	AppliedRate int    `json:"applied_rate"`
	Stage       int    `json:"stage"`
	Changed     bool   `json:"changed"`
}

// ApplyConfig applies the pending manual-mode recommendation for a domain.
// If no recommendation is pending, a fresh analysis runs first; a hold
// leaves the domain unchanged.
func (e *Engine) ApplyConfig(ctx context.Context, domainID string) (*Applied, error) {
	d, err := e.repo.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	dec := e.pending[domainID]
	e.mu.Unlock()

	if dec == nil {
		if dec, err = e.analyze(ctx, d); err != nil {
			return nil, err
		}
		// Automatic domains were applied inside analyze.
		if dec.Applied || dec.Action == ActionHold {
			return &Applied{DomainID: d.ID, AppliedRate: d.EffectiveRate, Stage: d.TrainingStage, Changed: dec.Applied}, nil
		}
	}

	// The apply takes the same per-domain lock the analysis cycle does,
	// so it never races a concurrent analysis or a second apply.
	lock := e.locks.For("training:domain:" + domainID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire training lock for %s: %w", d.Name, err)
	}
	if !acquired {
		return nil, ErrAnalysisInProgress
	}
	defer lock.Release(ctx)

	// Re-read under the lock. A concurrent apply may have consumed the
	// recommendation already; report the state it left behind.
	d, err = e.repo.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	dec = e.pending[domainID]
	e.mu.Unlock()
	if dec == nil {
		return &Applied{DomainID: d.ID, AppliedRate: d.EffectiveRate, Stage: d.TrainingStage, Changed: false}, nil
	}

	cfg, err := e.repo.GetConfig(ctx, d.ID)
	if errors.Is(err, ErrConfigNotFound) {
		cfg = e.defaultConfig(d.ID)
	} else if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := e.apply(ctx, d, cfg, dec, now); err != nil {
		return nil, err
	}
	if err := e.repo.SaveConfig(ctx, cfg); err != nil {
		return nil, err
	}

	return &Applied{DomainID: d.ID, AppliedRate: d.EffectiveRate, Stage: d.TrainingStage, Changed: true}, nil
}

// RunReport is the per-domain outcome summary of a batch run.
type RunReport struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Domains    int               `json:"domains"`
	Advanced   int               `json:"advanced"`
	RolledBack int               `json:"rolled_back"`
	Held       int               `json:"held"`
	Errors     map[string]string `json:"errors,omitempty"` // domain name -> message
	Decisions  []Decision        `json:"decisions"`
	Cancelled  bool              `json:"cancelled,omitempty"`
}

// RunSystem analyzes every domain. One domain's failure is recorded and
// never aborts the batch.
func (e *Engine) RunSystem(ctx context.Context) (*RunReport, error) {
	domains, err := e.repo.ListDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	return e.run(ctx, domains), nil
}

// RunForUser analyzes one user's domains.
func (e *Engine) RunForUser(ctx context.Context, userID string) (*RunReport, error) {
	domains, err := e.repo.ListDomainsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list domains for user %s: %w", userID, err)
	}
	return e.run(ctx, domains), nil
}

// RunForDomain analyzes a single domain.
func (e *Engine) RunForDomain(ctx context.Context, domainID string) (*RunReport, error) {
	d, err := e.repo.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, []domain.Domain{*d}), nil
}

func (e *Engine) run(ctx context.Context, domains []domain.Domain) *RunReport {
	report := &RunReport{
		StartedAt: time.Now().UTC(),
		Domains:   len(domains),
		Errors:    make(map[string]string),
	}

	for i := range domains {
		// Cancellation is observed at the domain boundary; a domain
		// already being analyzed finishes its unit of work.
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		d := &domains[i]
		dec, err := e.analyze(ctx, d)
		if err != nil {
			report.Errors[d.Name] = err.Error()
			e.log.Warn("training analysis failed", "domain", d.Name, "error", err)
			continue
		}
		report.Decisions = append(report.Decisions, *dec)
		switch {
		case dec.Action == ActionAdvance && dec.Applied:
			report.Advanced++
		case dec.Action == ActionRollback && dec.Applied:
			report.RolledBack++
		default:
			report.Held++
		}
	}

	report.FinishedAt = time.Now().UTC()
	return report
}

// DomainStatus is one row of the training status report.
type DomainStatus struct {
	DomainID      string              `json:"domain_id"`
	Domain        string              `json:"domain"`
	Mode          domain.TrainingMode `json:"mode"`
	Stage         int                 `json:"stage"`
	StageCap      int                 `json:"stage_cap"`
	EffectiveRate int                 `json:"effective_rate"`
	MaxMsgRate    int                 `json:"max_msg_rate"`
	LastTrainedAt *time.Time          `json:"last_trained_at,omitempty"`
	Pending       *Decision           `json:"pending,omitempty"`
}

// Status reports every domain's stage, rate and any pending recommendation.
func (e *Engine) Status(ctx context.Context) ([]DomainStatus, error) {
	domains, err := e.repo.ListDomains(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]DomainStatus, 0, len(domains))
	for _, d := range domains {
		out = append(out, DomainStatus{
			DomainID:      d.ID,
			Domain:        d.Name,
			Mode:          d.TrainingMode,
			Stage:         d.TrainingStage,
			StageCap:      e.stageCap(d.TrainingStage),
			EffectiveRate: d.EffectiveRate,
			MaxMsgRate:    d.MaxMsgRate,
			LastTrainedAt: d.LastTrainedAt,
			Pending:       e.pending[d.ID],
		})
	}
	return out, nil
}

// ConfigReport bundles the engine defaults with the per-domain configs.
type ConfigReport struct {
	Defaults Options                 `json:"defaults"`
	Domains  []domain.TrainingConfig `json:"domains"`
}

// GetConfig returns the engine defaults plus every per-domain config.
func (e *Engine) GetConfig(ctx context.Context) (*ConfigReport, error) {
	configs, err := e.repo.ListConfigs(ctx)
	if err != nil {
		return nil, err
	}
	return &ConfigReport{Defaults: e.opts, Domains: configs}, nil
}

// Statistics summarizes training state, optionally scoped to one domain.
type Statistics struct {
	TotalDomains   int                    `json:"total_domains"`
	ByStage        map[int]int            `json:"by_stage"`
	ByMode         map[string]int         `json:"by_mode"`
	PendingActions int                    `json:"pending_actions"`
	Domain         *DomainStatus          `json:"domain,omitempty"`
	DomainConfig   *domain.TrainingConfig `json:"domain_config,omitempty"`
}

// GetStatistics computes training statistics. With a domainID it adds that
// domain's status and config to the summary.
func (e *Engine) GetStatistics(ctx context.Context, domainID string) (*Statistics, error) {
	domains, err := e.repo.ListDomains(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	pendingCount := len(e.pending)
	e.mu.Unlock()

	stats := &Statistics{
		TotalDomains:   len(domains),
		ByStage:        make(map[int]int),
		ByMode:         make(map[string]int),
		PendingActions: pendingCount,
	}
	for _, d := range domains {
		stats.ByStage[d.TrainingStage]++
		stats.ByMode[string(d.TrainingMode)]++
	}

	if domainID != "" {
		d, err := e.repo.GetDomain(ctx, domainID)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		pending := e.pending[d.ID]
		e.mu.Unlock()
		stats.Domain = &DomainStatus{
			DomainID:      d.ID,
			Domain:        d.Name,
			Mode:          d.TrainingMode,
			Stage:         d.TrainingStage,
			StageCap:      e.stageCap(d.TrainingStage),
			EffectiveRate: d.EffectiveRate,
			MaxMsgRate:    d.MaxMsgRate,
			LastTrainedAt: d.LastTrainedAt,
			Pending:       pending,
		}
		if cfg, err := e.repo.GetConfig(ctx, d.ID); err == nil {
			stats.DomainConfig = cfg
		}
	}

	return stats, nil
}
