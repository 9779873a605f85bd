package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/training"
)

// TrainingRepo implements training.Repository against PostgreSQL.
type TrainingRepo struct{ db *sql.DB }

// NewTrainingRepo creates a Postgres-backed training repository.
func NewTrainingRepo(db *sql.DB) *TrainingRepo { return &TrainingRepo{db: db} }

const domainColumns = `id, user_id, name, max_msg_rate, effective_rate,
	training_mode, training_stage, last_trained_at, created_at, updated_at`

func scanDomain(row interface{ Scan(...interface{}) error }) (*domain.Domain, error) {
	d := &domain.Domain{}
	err := row.Scan(
		&d.ID, &d.UserID, &d.Name, &d.MaxMsgRate, &d.EffectiveRate,
		&d.TrainingMode, &d.TrainingStage, &d.LastTrainedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *TrainingRepo) GetDomain(ctx context.Context, domainID string) (*domain.Domain, error) {
	d, err := scanDomain(r.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE id = $1`, domainID,
	))
	if err == sql.ErrNoRows {
		return nil, training.ErrDomainNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return d, nil
}

func (r *TrainingRepo) ListDomains(ctx context.Context) ([]domain.Domain, error) {
	return r.listDomains(ctx, `SELECT `+domainColumns+` FROM domains ORDER BY name`)
}

func (r *TrainingRepo) ListDomainsByUser(ctx context.Context, userID string) ([]domain.Domain, error) {
	return r.listDomains(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE user_id = $1 ORDER BY name`, userID)
}

func (r *TrainingRepo) listDomains(ctx context.Context, q string, args ...interface{}) ([]domain.Domain, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *TrainingRepo) UpdateDomainTraining(ctx context.Context, d *domain.Domain) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE domains
		SET effective_rate = $2, training_stage = $3, training_mode = $4,
		    last_trained_at = $5, updated_at = NOW()
		WHERE id = $1
	`, d.ID, d.EffectiveRate, d.TrainingStage, d.TrainingMode, d.LastTrainedAt)
	if err != nil {
		return fmt.Errorf("update domain training: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return training.ErrDomainNotFound
	}
	return nil
}

const configColumns = `domain_id, daily_limit, stage, last_analysis_at,
	advance_bounce_pct, advance_complaint_pct, rollback_bounce_pct,
	rollback_complaint_pct, min_dwell_hours, manual_approval_required`

func scanConfig(row interface{ Scan(...interface{}) error }) (*domain.TrainingConfig, error) {
	c := &domain.TrainingConfig{}
	err := row.Scan(
		&c.DomainID, &c.DailyLimit, &c.Stage, &c.LastAnalysisAt,
		&c.AdvanceBouncePct, &c.AdvanceComplaintPct, &c.RollbackBouncePct,
		&c.RollbackComplaintPct, &c.MinDwellHours, &c.ManualApprovalRequired,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *TrainingRepo) GetConfig(ctx context.Context, domainID string) (*domain.TrainingConfig, error) {
	c, err := scanConfig(r.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM training_configs WHERE domain_id = $1`, domainID,
	))
	if err == sql.ErrNoRows {
		return nil, training.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get training config: %w", err)
	}
	return c, nil
}

func (r *TrainingRepo) SaveConfig(ctx context.Context, c *domain.TrainingConfig) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO training_configs
			(domain_id, daily_limit, stage, last_analysis_at,
			 advance_bounce_pct, advance_complaint_pct,
			 rollback_bounce_pct, rollback_complaint_pct,
			 min_dwell_hours, manual_approval_required)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (domain_id) DO UPDATE SET
			daily_limit = EXCLUDED.daily_limit,
			stage = EXCLUDED.stage,
			last_analysis_at = EXCLUDED.last_analysis_at,
			advance_bounce_pct = EXCLUDED.advance_bounce_pct,
			advance_complaint_pct = EXCLUDED.advance_complaint_pct,
			rollback_bounce_pct = EXCLUDED.rollback_bounce_pct,
			rollback_complaint_pct = EXCLUDED.rollback_complaint_pct,
			min_dwell_hours = EXCLUDED.min_dwell_hours,
			manual_approval_required = EXCLUDED.manual_approval_required
	`, c.DomainID, c.DailyLimit, c.Stage, c.LastAnalysisAt,
		c.AdvanceBouncePct, c.AdvanceComplaintPct,
		c.RollbackBouncePct, c.RollbackComplaintPct,
		c.MinDwellHours, c.ManualApprovalRequired)
	if err != nil {
		return fmt.Errorf("save training config: %w", err)
	}
	return nil
}

func (r *TrainingRepo) ListConfigs(ctx context.Context) ([]domain.TrainingConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+configColumns+` FROM training_configs ORDER BY domain_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list training configs: %w", err)
	}
	defer rows.Close()

	var out []domain.TrainingConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan training config: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
