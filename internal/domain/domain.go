package domain

import "time"

// TrainingMode controls whether training recommendations are applied
// automatically or held for operator approval.
type TrainingMode string

const (
	TrainingManual    TrainingMode = "manual"
	TrainingAutomatic TrainingMode = "automatic"
)

// Domain represents a sending domain under rate training.
//
// EffectiveRate is the cap the dispatch gate enforces right now. It is
// always within [0, MaxMsgRate]; the training engine is the only writer.
type Domain struct {
	ID            string       `json:"id" db:"id"`
	UserID        string       `json:"user_id" db:"user_id"`
	Name          string       `json:"name" db:"name"`
	MaxMsgRate    int          `json:"max_msg_rate" db:"max_msg_rate"`
	EffectiveRate int          `json:"effective_rate" db:"effective_rate"`
	TrainingMode  TrainingMode `json:"training_mode" db:"training_mode"`
	TrainingStage int          `json:"training_stage" db:"training_stage"`
	LastTrainedAt *time.Time   `json:"last_trained_at" db:"last_trained_at"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

// ClampRate bounds a proposed effective rate to [0, MaxMsgRate].
func (d *Domain) ClampRate(rate int) int {
	if rate < 0 {
		return 0
	}
	if rate > d.MaxMsgRate {
		return d.MaxMsgRate
	}
	return rate
}

// TrainingConfig holds the operator-configurable thresholds and state for a
// single domain's training. One config per domain.
type TrainingConfig struct {
	DomainID               string     `json:"domain_id" db:"domain_id"`
	DailyLimit             int        `json:"daily_limit" db:"daily_limit"`
	Stage                  int        `json:"stage" db:"stage"`
	LastAnalysisAt         *time.Time `json:"last_analysis_at" db:"last_analysis_at"`
	AdvanceBouncePct       float64    `json:"advance_bounce_pct" db:"advance_bounce_pct"`
	AdvanceComplaintPct    float64    `json:"advance_complaint_pct" db:"advance_complaint_pct"`
	RollbackBouncePct      float64    `json:"rollback_bounce_pct" db:"rollback_bounce_pct"`
	RollbackComplaintPct   float64    `json:"rollback_complaint_pct" db:"rollback_complaint_pct"`
	MinDwellHours          int        `json:"min_dwell_hours" db:"min_dwell_hours"`
	ManualApprovalRequired bool       `json:"manual_approval_required" db:"manual_approval_required"`
}

// MinDwell returns the minimum time a domain must hold its current stage
// before it is eligible for advancement.
func (c TrainingConfig) MinDwell() time.Duration {
	return time.Duration(c.MinDwellHours) * time.Hour
}
