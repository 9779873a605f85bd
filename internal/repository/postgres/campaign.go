package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/repguard/internal/campaign"
	"github.com/ignite/repguard/internal/domain"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, domain_id, name, status, recipient_count,
	total_sent, total_failed, started_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.DomainID, &c.Name, &c.Status, &c.RecipientCount,
		&c.TotalSent, &c.TotalFailed, &c.StartedAt, &c.CompletedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.DomainID != "" {
		where += fmt.Sprintf(" AND domain_id = $%d", idx)
		args = append(args, f.DomainID)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT %s FROM campaigns %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		campaignColumns, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, c *domain.Campaign) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, started_at = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $1
	`, c.ID, c.Status, c.StartedAt, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) IncrementCounters(ctx context.Context, id string, sentDelta, failedDelta int) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		UPDATE campaigns
		SET total_sent = total_sent + $2, total_failed = total_failed + $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+campaignColumns,
		id, sentDelta, failedDelta,
	))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment campaign counters: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) PendingRecipients(ctx context.Context, id string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email FROM campaign_recipients
		WHERE campaign_id = $1 AND attempted_at IS NULL
		ORDER BY position
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("pending recipients: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) MarkAttempted(ctx context.Context, id, email string, sent bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET attempted_at = NOW(), sent = $3
		WHERE campaign_id = $1 AND email = $2 AND attempted_at IS NULL
	`, id, email, sent)
	if err != nil {
		return fmt.Errorf("mark recipient attempted: %w", err)
	}
	return nil
}
