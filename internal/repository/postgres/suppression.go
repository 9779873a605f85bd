package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
// The unique index on email is what enforces one live entry per address.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppression_list WHERE email = $1)`,
		email,
	).Scan(&exists)
	return exists, err
}

func (r *SuppressionRepo) Get(ctx context.Context, email string) (*domain.SuppressionEntry, error) {
	e := &domain.SuppressionEntry{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, reason, source, COALESCE(campaign_id, ''), created_at
		FROM suppression_list
		WHERE email = $1
	`, email).Scan(&e.ID, &e.Email, &e.Reason, &e.Source, &e.CampaignID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, suppression.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get suppression: %w", err)
	}
	return e, nil
}

// reasonRank mirrors domain.SuppressionReason precedence so the upsert
// can rank reasons inside the statement.
const reasonRank = `CASE %s
			WHEN 'hard_bounce' THEN 4
			WHEN 'complaint' THEN 4
			WHEN 'soft_bounce_threshold' THEN 3
			WHEN 'manual' THEN 2
			WHEN 'unsubscribe' THEN 1
			ELSE 0 END`

func (r *SuppressionRepo) Upsert(ctx context.Context, e *domain.SuppressionEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	// The update is guarded by reason rank inside the statement, so two
	// concurrent writers cannot downgrade a hard bounce no matter how
	// their reads interleave. Equal rank keeps the existing entry.
	query := fmt.Sprintf(`
		INSERT INTO suppression_list (id, email, reason, source, campaign_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (email) DO UPDATE SET
			reason = EXCLUDED.reason,
			source = EXCLUDED.source,
			campaign_id = EXCLUDED.campaign_id
		WHERE `+reasonRank+` > `+reasonRank,
		"EXCLUDED.reason", "suppression_list.reason")
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Email, e.Reason, e.Source, e.CampaignID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert suppression: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppression_list WHERE email = $1`, email,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.SuppressionEntry, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1

	if f.Reason != "" {
		where += fmt.Sprintf(" AND reason = $%d", idx)
		args = append(args, f.Reason)
		idx++
	}
	if f.Source != "" {
		where += fmt.Sprintf(" AND source = $%d", idx)
		args = append(args, f.Source)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND email ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppression_list `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	q := fmt.Sprintf(`
		SELECT id, email, reason, source, COALESCE(campaign_id, ''), created_at
		FROM suppression_list
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		if err := rows.Scan(&e.ID, &e.Email, &e.Reason, &e.Source, &e.CampaignID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) AllEmails(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email FROM suppression_list ORDER BY email`,
	)
	if err != nil {
		return nil, fmt.Errorf("all suppressed emails: %w", err)
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

func (r *SuppressionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppression_list WHERE created_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup suppressions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
